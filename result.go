package rendercache

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	cachestatus "github.com/render-cache/render-cache/pkg/cache-status"
	routematcher "github.com/render-cache/render-cache/pkg/route-matcher"
)

// RenderRequest is the normalized, request-scoped view of one inbound
// request. It is owned by exactly one in-flight request and never shared
// across concurrent requests.
type RenderRequest struct {
	Pathname string
	Query    url.Values
	Locale   string
	AMP      bool
	// DataRequest asks for the serialized page data only, no markup.
	DataRequest bool
	Preview     bool
	// Bot is set from user-agent detection. Bots never receive
	// incomplete skeletons.
	Bot bool
	// ManualRevalidate carries an authenticated revalidation signal.
	ManualRevalidate bool
	// RevalidateOnlyGenerated restricts manual revalidation to paths
	// that have been generated before.
	RevalidateOnlyGenerated bool
	// SupportsDynamicHTML forces streaming-capable rendering and
	// bypasses the cache entirely.
	SupportsDynamicHTML bool
	// OnDemandGenerate is set by the coordinator when a dev-context
	// render discovers a path outside the precomputed set.
	OnDemandGenerate bool
}

// Candidate is one renderable page matched against the request path.
type Candidate struct {
	Page    string
	Params  map[string]string
	Dynamic bool
}

// Redirect is the redirect props a renderer may return in place of markup.
type Redirect struct {
	Destination string `json:"destination"`
	Permanent   bool   `json:"permanent"`
	StatusCode  int    `json:"statusCode,omitempty"`
}

func (r *Redirect) statusCode() int {
	if r.StatusCode != 0 {
		return r.StatusCode
	}
	if r.Permanent {
		return http.StatusPermanentRedirect
	}
	return http.StatusTemporaryRedirect
}

// RenderResult is what a page renderer produces.
type RenderResult struct {
	HTML     []byte
	PageData json.RawMessage
	Redirect *Redirect
	NotFound bool
	// Revalidate is the regeneration window in seconds,
	// cache.RevalidateUnset when the renderer did not set one.
	Revalidate int
}

// Renderer produces pages. Implementations are deployment-target
// specific (standalone origin process, embedded dev renderer, ...) and
// may fail with renderer-specific errors which are treated opaquely.
type Renderer interface {
	Render(ctx context.Context, page string, req *RenderRequest, params map[string]string) (*RenderResult, error)
}

// FallbackDecl is a page's precomputed fallback declaration.
type FallbackDecl struct {
	// Blocking renders synchronously on a miss.
	Blocking bool
	// Artifact names the prerendered skeleton served in static mode.
	// Empty means no static fallback.
	Artifact string
}

// Manifest is the read-only build metadata the engine consumes. It is
// populated once at startup and must be safe for concurrent readers.
type Manifest interface {
	// HasPage reports whether a literal (non-dynamic) page exists.
	HasPage(path string) bool
	// IsStatic reports whether a page is statically rendered.
	IsStatic(page string) bool
	// Fallback returns the fallback declaration for a dynamic page.
	// ok=false means fallback is disabled.
	Fallback(page string) (FallbackDecl, bool)
	// StaticPaths returns the precomputed set of generated paths for a
	// dynamic page. ok=false means the set is unknown.
	StaticPaths(page string) ([]string, bool)
	// DynamicRoutes returns the compiled dynamic routes in manifest
	// order, most specific first.
	DynamicRoutes() []routematcher.Route
}

// FallbackArtifacts provides prerendered skeleton markup for pages with
// a static fallback. Only consulted in static fallback mode.
type FallbackArtifacts interface {
	StaticFallback(page string) ([]byte, error)
}

// PayloadKind tags the body of a Payload.
type PayloadKind int

const (
	PayloadHTML PayloadKind = iota
	PayloadJSON
)

// Payload is a finished response ready to be written to the client.
type Payload struct {
	Kind       PayloadKind
	Body       []byte
	StatusCode int
	Redirect   *Redirect
	// NotFound marks a cached not-found; the dispatcher routes markup
	// requests to the 404 page.
	NotFound bool
	// Revalidate drives the Cache-Control header when positive.
	Revalidate int
	// CacheStatus is empty for purely dynamic responses.
	CacheStatus cachestatus.Status
}
