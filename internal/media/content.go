package media

import (
	"errors"
	"strings"
)

var ErrUnsupportedMedia = errors.New("content type is not supported")

// Category is the top-level media type an endpoint accepts.
type Category string

const (
	CategoryImage Category = "image"
	CategoryVideo Category = "video"
)

// CheckContentType accepts a declared MIME type only when it belongs to the
// expected category. The payload itself is not sniffed; the declared type is
// what gets stored as object metadata.
func CheckContentType(declared string, expected Category) error {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared == "" || !strings.HasPrefix(declared, string(expected)+"/") {
		return ErrUnsupportedMedia
	}
	if len(declared) == len(expected)+1 {
		return ErrUnsupportedMedia
	}
	return nil
}
