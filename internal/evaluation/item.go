package evaluation

import (
	"strings"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
)

// Item is one feed item to judge.
type Item struct {
	PrimaryText  string
	PrimaryMedia []domain.MediaItem
	Secondary    *Secondary
}

// Secondary is quoted content embedded in an item.
type Secondary struct {
	Text   string
	Author string
	Media  []domain.MediaItem
}

// ItemFromRequest extracts the pipeline input from an evaluate request.
func ItemFromRequest(req *domain.EvaluateRequest) Item {
	item := Item{
		PrimaryText:  req.TextContent,
		PrimaryMedia: req.Media,
	}
	if q := req.QuotedTweet; q != nil {
		sec := &Secondary{Text: q.TextContent, Media: q.Media}
		if q.Author != nil {
			sec.Author = strings.TrimSpace(*q.Author)
		}
		item.Secondary = sec
	}
	return item
}

func quoteStage(s *Secondary) string {
	if s == nil || strings.TrimSpace(s.Text) == "" {
		return ""
	}
	author := "someone"
	if s.Author != "" {
		author = "@" + strings.TrimPrefix(s.Author, "@")
	}
	return "[Quoting " + author + ": " + strings.TrimSpace(s.Text) + "]"
}

func imageStage(label string, descriptions []string) string {
	if len(descriptions) == 0 {
		return ""
	}
	return "[Images in " + label + ": " + strings.Join(descriptions, "; ") + "]"
}

func imageURLs(media []domain.MediaItem) []string {
	var urls []string
	for _, m := range media {
		if m.Type == domain.MediaTypeImage && m.URL != "" {
			urls = append(urls, m.URL)
		}
	}
	return urls
}
