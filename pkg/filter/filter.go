// Package filter provides the public API for embedding the feed filter.
// This is the stable API for external consumers.
package filter

import (
	"github.com/tjfontaine/polyglot-feed-filter/internal/content"
	"github.com/tjfontaine/polyglot-feed-filter/internal/runtime"
)

// Runtime runs the background, offscreen and content contexts in one process.
// See internal/runtime.Runtime for full documentation.
type Runtime = runtime.Runtime

// Option is a functional option for configuring a Runtime.
type Option = runtime.Option

// Client is the capture surface's view of a running filter.
type Client = content.Client

// Tweet is one extracted feed item.
type Tweet = content.Tweet

// New creates a new Runtime with the given options.
// Example:
//
//	rt, err := filter.New(
//	    filter.WithFileConfig("config.yaml"),
//	    filter.WithBadger("./data/feedfilter"),
//	)
var New = runtime.New

// Configuration options
var (
	// Config sources
	WithFileConfig     = runtime.WithFileConfig
	WithConfigProvider = runtime.WithConfigProvider

	// Storage
	WithBadger        = runtime.WithBadger
	WithSQLite        = runtime.WithSQLite
	WithMemoryStorage = runtime.WithMemoryStorage
	WithKVStore       = runtime.WithKVStore

	// Inference host
	WithLanguageModel = runtime.WithLanguageModel
	WithImageFetcher  = runtime.WithImageFetcher

	// Advanced options
	WithLogger    = runtime.WithLogger
	WithoutServer = runtime.WithoutServer
)
