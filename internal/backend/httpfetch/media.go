package httpfetch

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// decodeDataURL returns the bytes of a base64 data: URL.
// Format: data:image/jpeg;base64,/9j/4AAQSkZ...
func decodeDataURL(url string, maxBytes int64) ([]byte, error) {
	content, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return nil, fmt.Errorf("not a data URL")
	}

	metadata, data, ok := strings.Cut(content, ",")
	if !ok {
		return nil, fmt.Errorf("invalid data URL: missing comma separator")
	}

	params := strings.Split(metadata, ";")
	if !isSupportedMediaType(params[0]) {
		return nil, fmt.Errorf("unsupported media type: %q", params[0])
	}
	isBase64 := false
	for _, p := range params[1:] {
		if p == "base64" {
			isBase64 = true
			break
		}
	}
	if !isBase64 {
		return nil, fmt.Errorf("data URL must be base64 encoded")
	}

	if int64(base64.StdEncoding.DecodedLen(len(data))) > maxBytes+2 {
		return nil, fmt.Errorf("data URL exceeds %d bytes", maxBytes)
	}
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("invalid data URL: %w", err)
	}
	if int64(len(b)) > maxBytes {
		return nil, fmt.Errorf("data URL exceeds %d bytes", maxBytes)
	}
	return b, nil
}

// responseMediaType picks the media type of a fetched body. Servers that send
// no type or a generic one are judged by the URL's extension.
func responseMediaType(contentType, url string) string {
	main := mainType(contentType)
	if main == "" || main == "application/octet-stream" || main == "binary/octet-stream" {
		return inferMediaType(url)
	}
	return main
}

func inferMediaType(url string) string {
	path, _, _ := strings.Cut(strings.ToLower(url), "?")
	switch {
	case strings.HasSuffix(path, ".jpg"), strings.HasSuffix(path, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(path, ".png"):
		return "image/png"
	case strings.HasSuffix(path, ".gif"):
		return "image/gif"
	case strings.HasSuffix(path, ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

func isSupportedMediaType(mediaType string) bool {
	switch mainType(mediaType) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func mainType(mediaType string) string {
	main, _, _ := strings.Cut(mediaType, ";")
	return strings.TrimSpace(strings.ToLower(main))
}
