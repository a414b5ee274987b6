// Package cachekey derives cache keys for statically generated pages.
//
// A key identifies one cached artifact for a (locale, path, format) triple.
// Two requests that should observe the same artifact must derive the same
// key, so the path is normalized before composing: segments are
// percent-decoded and re-escaped for the internal delimiter set, and the
// index path is collapsed so `/` and `/index` share one entry.
package cachekey

import (
	"fmt"
	"net/url"
	"strings"
)

// delimiterEscaper re-escapes characters that have meaning inside a key
// after the segment has been percent-decoded. `%` goes first so decoded
// escapes survive another decode round unchanged.
var delimiterEscaper = strings.NewReplacer(
	"%", "%25",
	"/", "%2F",
	"#", "%23",
	"?", "%3F",
)

// DecodeError reports a malformed percent-encoding in a path segment.
// It is fatal for the request it occurred in.
type DecodeError struct {
	Segment string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed path segment %q: %v", e.Segment, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Deriver computes cache keys.
// The zero value is not usable, use NewDeriver.
type Deriver struct {
	statusPages map[string]struct{}
}

func NewDeriver() Deriver {
	return Deriver{
		statusPages: map[string]struct{}{
			"/404":    {},
			"/500":    {},
			"/_error": {},
		},
	}
}

// Derive composes the cache key for a resolved path.
//
// Status pages (404/500/_error) key on the page itself rather than the
// path that triggered them, so they are cached independently.
func (d Deriver) Derive(resolvedPath, locale string, amp bool) (string, error) {
	path := resolvedPath
	if !d.IsStatusPage(path) {
		normalized, err := normalizePath(path)
		if err != nil {
			return "", err
		}
		path = normalized
	}

	var key string
	if locale != "" {
		key = "/" + locale
	}
	if path != "/" || locale == "" {
		key += path
	}
	if amp {
		key += ".amp"
	}
	return key, nil
}

// IsStatusPage reports whether the page derives a status-page key.
func (d Deriver) IsStatusPage(page string) bool {
	_, ok := d.statusPages[page]
	return ok
}

func normalizePath(path string) (string, error) {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		decoded, err := url.PathUnescape(segment)
		if err != nil {
			return "", &DecodeError{Segment: segment, Err: err}
		}
		segments[i] = delimiterEscaper.Replace(decoded)
	}
	normalized := strings.Join(segments, "/")
	if normalized == "/index" {
		normalized = "/"
	}
	return normalized, nil
}
