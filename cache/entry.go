package cache

import (
	"encoding/json"
	"fmt"
	"time"

	cachestatus "github.com/render-cache/render-cache/pkg/cache-status"
)

const (
	// RevalidateUnset marks a produced response whose producer did not
	// specify a revalidation window.
	RevalidateUnset = -1
	// RevalidateNever disables background regeneration for an entry.
	RevalidateNever = 0
)

// Value is one cached response value.
// A nil Value represents a cached not-found.
type Value interface {
	kind() string
}

// PageValue is a rendered page: markup plus its serialized page data.
type PageValue struct {
	HTML     []byte
	PageData json.RawMessage
}

func (*PageValue) kind() string { return "page" }

// RedirectValue carries the serialized redirect props.
type RedirectValue struct {
	Props json.RawMessage
}

func (*RedirectValue) kind() string { return "redirect" }

// ImageValue exists in the shared store type-space (optimized image
// payloads use the same providers) but must never reach the page render
// path. Observing one there is an invariant violation.
type ImageValue struct {
	ContentType string
	Data        []byte
}

func (*ImageValue) kind() string { return "image" }

// Entry is one cache lookup result.
type Entry struct {
	// Value is nil for a cached not-found.
	Value Value
	// Revalidate is the regeneration window in seconds.
	// RevalidateNever means the entry never goes stale.
	Revalidate int
	// Age is how long ago the entry was stored. Zero for produced entries.
	Age time.Duration
	// Status is the lookup outcome, set by ResponseCache.
	Status cachestatus.Status
}

// InvariantError marks a bug in this system, as opposed to an error in
// user code or a renderer failure. It is always fatal to the request and
// is logged distinctly.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "invariant: " + e.Msg
}

// Invariantf builds an InvariantError.
func Invariantf(format string, args ...interface{}) *InvariantError {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}

// storedEntry is the serialized form written to providers.
type storedEntry struct {
	Kind        string          `json:"kind"`
	HTML        []byte          `json:"html,omitempty"`
	PageData    json.RawMessage `json:"pageData,omitempty"`
	Props       json.RawMessage `json:"props,omitempty"`
	ContentType string          `json:"contentType,omitempty"`
	Data        []byte          `json:"data,omitempty"`
	Revalidate  int             `json:"revalidate"`
}

func encodeEntry(value Value, revalidate int) ([]byte, error) {
	stored := storedEntry{Revalidate: revalidate}
	switch v := value.(type) {
	case nil:
		stored.Kind = "notFound"
	case *PageValue:
		stored.Kind = v.kind()
		stored.HTML = v.HTML
		stored.PageData = v.PageData
	case *RedirectValue:
		stored.Kind = v.kind()
		stored.Props = v.Props
	case *ImageValue:
		stored.Kind = v.kind()
		stored.ContentType = v.ContentType
		stored.Data = v.Data
	default:
		return nil, fmt.Errorf("unknown cache value type %T", value)
	}
	return json.Marshal(stored)
}

func decodeEntry(b []byte) (Value, int, error) {
	var stored storedEntry
	if err := json.Unmarshal(b, &stored); err != nil {
		return nil, 0, fmt.Errorf("could not decode cache entry: %w", err)
	}
	switch stored.Kind {
	case "notFound":
		return nil, stored.Revalidate, nil
	case "page":
		return &PageValue{HTML: stored.HTML, PageData: stored.PageData}, stored.Revalidate, nil
	case "redirect":
		return &RedirectValue{Props: stored.Props}, stored.Revalidate, nil
	case "image":
		return &ImageValue{ContentType: stored.ContentType, Data: stored.Data}, stored.Revalidate, nil
	default:
		return nil, 0, fmt.Errorf("unknown cache entry kind %q", stored.Kind)
	}
}
