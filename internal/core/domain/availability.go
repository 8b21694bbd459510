package domain

import (
	"strings"
)

// AvailabilityStatus is the parsed state of an inference capability.
type AvailabilityStatus int

const (
	AvailabilityUnknown AvailabilityStatus = iota
	AvailabilityAvailable
	AvailabilityDownloadable
	AvailabilityAfterDownload
	AvailabilityDownloading
	AvailabilityUnavailable
)

// Availability is the answer of the availability prober. Token keeps the
// normalized host answer so unexpected values can be told apart from
// a definite "unavailable".
type Availability struct {
	Status AvailabilityStatus
	Token  string
}

var (
	Available     = Availability{Status: AvailabilityAvailable, Token: "available"}
	Downloadable  = Availability{Status: AvailabilityDownloadable, Token: "downloadable"}
	AfterDownload = Availability{Status: AvailabilityAfterDownload, Token: "after-download"}
	Downloading   = Availability{Status: AvailabilityDownloading, Token: "downloading"}
	Unavailable   = Availability{Status: AvailabilityUnavailable, Token: "unavailable"}
)

// ParseAvailability maps a host token to an Availability. Older host
// vocabularies ("readily", "no") are accepted as aliases.
func ParseAvailability(token string) Availability {
	normalized := strings.ToLower(strings.TrimSpace(token))
	switch normalized {
	case "available", "readily":
		return Available
	case "downloadable":
		return Downloadable
	case "after-download", "afterdownload", "after_download":
		return AfterDownload
	case "downloading":
		return Downloading
	case "unavailable", "no":
		return Unavailable
	}
	return Availability{Status: AvailabilityUnknown, Token: normalized}
}

// IsUnknown reports whether the host answered with an unrecognized token.
func (a Availability) IsUnknown() bool {
	return a.Status == AvailabilityUnknown
}

func (a Availability) String() string {
	if a.IsUnknown() {
		return "unknown(" + a.Token + ")"
	}
	return a.Token
}
