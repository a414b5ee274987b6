// Package cachestatus annotates responses with the outcome of the
// cache lookup, rendered as an RFC 9211 Cache-Status header member.
package cachestatus

// HeaderName is the response header carrying the cache status.
// The header is only set for statically generated pages.
const HeaderName = "Cache-Status"

// Status is the cache lookup outcome for one request.
type Status string

const (
	// Miss means no entry existed and the producer ran before responding.
	Miss Status = "MISS"
	// Stale means a stale entry was served while regeneration happens in
	// the background.
	Stale Status = "STALE"
	// Hit means a fresh entry was served.
	Hit Status = "HIT"
	// Revalidated means the entry was regenerated synchronously because
	// of a manual revalidation request.
	Revalidated Status = "REVALIDATED"
)

// Header renders the status as a Cache-Status member for this cache.
func (s Status) Header() string {
	switch s {
	case Hit:
		return "render-cache; hit"
	case Stale:
		return "render-cache; hit; detail=STALE"
	case Revalidated:
		return "render-cache; fwd=request; stored; detail=REVALIDATED"
	default:
		return "render-cache; fwd=miss; stored"
	}
}
