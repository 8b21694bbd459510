package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-feed-filter/internal/content"
	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
	"github.com/tjfontaine/polyglot-feed-filter/internal/pkg/codec"
)

var (
	tweetID     string
	tweetText   string
	imageURLs   []string
	quotedText  string
	quotedImage []string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Ask for a verdict on one item",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tweetID == "" {
			return fmt.Errorf("--id is required")
		}
		tweet := content.Tweet{ID: tweetID, Text: tweetText, Media: media(imageURLs)}
		if quotedText != "" || len(quotedImage) > 0 {
			tweet.QuotedTweet = &domain.QuotedTweet{TextContent: quotedText, Media: media(quotedImage)}
		}

		return withClient(cmd.Context(), func(c *content.Client) error {
			resp, err := c.Evaluate(cmd.Context(), tweet)
			if err != nil {
				return err
			}
			return printJSON(codec.Encode(resp))
		})
	},
}

var checkCmd = &cobra.Command{
	Use:   "check ID...",
	Short: "Print the cached verdicts among the given item ids",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(c *content.Client) error {
			results, err := c.CheckCache(cmd.Context(), args)
			if err != nil {
				return err
			}
			return printJSON(results)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the inference session state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(c *content.Client) error {
			resp, err := c.SessionStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(codec.Encode(resp))
		})
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&tweetID, "id", "", "Item id")
	evaluateCmd.Flags().StringVarP(&tweetText, "text", "t", "", "Item text")
	evaluateCmd.Flags().StringSliceVar(&imageURLs, "image", nil, "Image URL (repeatable)")
	evaluateCmd.Flags().StringVar(&quotedText, "quoted-text", "", "Text of the quoted item")
	evaluateCmd.Flags().StringSliceVar(&quotedImage, "quoted-image", nil, "Image URL of the quoted item (repeatable)")
}

func media(urls []string) []domain.MediaItem {
	var items []domain.MediaItem
	for _, u := range urls {
		items = append(items, domain.MediaItem{Type: domain.MediaTypeImage, URL: u})
	}
	return items
}
