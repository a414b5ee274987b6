// Package rendercache is the request-to-response decision engine for a
// server that mixes statically pre-rendered, incrementally regenerated
// and on-demand rendered pages behind one HTTP entry point.
//
// The engine decides what to render for a request, whether a cached
// artifact may be served, whether a rebuild happens inline or in the
// background, and how to degrade on failure. Markup production, route
// compilation and storage are injected collaborators (Renderer, Manifest,
// FallbackArtifacts, cache.Provider).
package rendercache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/render-cache/render-cache/cache"
	cachekey "github.com/render-cache/render-cache/pkg/cache-key"
	cachestatus "github.com/render-cache/render-cache/pkg/cache-status"
)

// PreviewCookieName carries the preview-mode bypass token.
const PreviewCookieName = "__preview_bypass"

// Header names of the revalidation protocol.
const (
	RevalidateHeader            = "X-Prerender-Revalidate"
	RevalidateIfGeneratedHeader = "X-Prerender-Revalidate-If-Generated"
	LocaleHeader                = "X-Locale"
)

// RuntimeProfile selects deployment-context behavior explicitly instead
// of branching on ambient global state.
type RuntimeProfile struct {
	// Dev enables on-demand path discovery and surfaces original render
	// errors in responses.
	Dev bool
}

type Config struct {
	// Renderer produces pages.
	Renderer Renderer
	// Manifest is the read-only build metadata.
	Manifest Manifest
	// Artifacts provides static fallback skeletons. Optional when no
	// page declares a static fallback.
	Artifacts FallbackArtifacts
	// Cache is the storage for rendered pages.
	Cache cache.Provider
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
	// Profile selects deployment-context behavior.
	Profile RuntimeProfile
	// CatchAllPage is the last-resort page tried when no candidate
	// matches (direct-invocation deployments). Empty disables it.
	CatchAllPage string
	// PreviewToken enables preview mode when matched by the preview
	// cookie. Empty disables preview lookups.
	PreviewToken string
	// RevalidateToken authenticates manual revalidation requests.
	// Empty disables manual revalidation.
	RevalidateToken string
	// DefaultLocale is used when the request does not carry one.
	DefaultLocale string
	// DataPrefix is the path prefix of data requests, "/_data" if empty.
	DataPrefix string
	// Metrics is optional.
	Metrics *Metrics
}

// Server is the engine core. One instance serves many concurrent
// requests; the only mutable shared state is the cache store.
type Server struct {
	renderer        Renderer
	manifest        Manifest
	artifacts       FallbackArtifacts
	cache           *cache.ResponseCache
	keyer           cachekey.Deriver
	profile         RuntimeProfile
	catchAllPage    string
	previewToken    string
	revalidateToken string
	defaultLocale   string
	dataPrefix      string
	metrics         *Metrics
	log             zerolog.Logger
}

// CreateServer initializes the engine and sets up the needed variables.
func CreateServer(config Config) *Server {
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	dataPrefix := config.DataPrefix
	if dataPrefix == "" {
		dataPrefix = "/_data"
	}

	return &Server{
		renderer:        config.Renderer,
		manifest:        config.Manifest,
		artifacts:       config.Artifacts,
		cache:           cache.NewResponseCache(config.Cache, logger),
		keyer:           cachekey.NewDeriver(),
		profile:         config.Profile,
		catchAllPage:    config.CatchAllPage,
		previewToken:    config.PreviewToken,
		revalidateToken: config.RevalidateToken,
		defaultLocale:   config.DefaultLocale,
		dataPrefix:      dataPrefix,
		metrics:         config.Metrics,
		log:             logger,
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := s.normalizeRequest(r)
	ctx := r.Context()

	payload, err := s.RenderToPayload(ctx, req, RenderOpts{})
	switch {
	case err != nil:
		s.renderError(ctx, w, req, err)
	case payload == nil:
		s.serveNotFound(ctx, w, req)
	case payload.NotFound && !req.DataRequest:
		s.serveNotFound(ctx, w, req)
	default:
		s.writePayload(w, req, payload)
	}
}

// normalizeRequest builds the request-scoped view of an inbound request.
func (s *Server) normalizeRequest(r *http.Request) *RenderRequest {
	pathname := r.URL.EscapedPath()
	if pathname == "" {
		pathname = "/"
	}

	dataRequest := false
	if strings.HasPrefix(pathname, s.dataPrefix+"/") && strings.HasSuffix(pathname, ".json") {
		dataRequest = true
		pathname = strings.TrimSuffix(strings.TrimPrefix(pathname, s.dataPrefix), ".json")
		if pathname == "/index" {
			pathname = "/"
		}
	}

	locale := r.Header.Get(LocaleHeader)
	if locale == "" {
		locale = s.defaultLocale
	}

	query := r.URL.Query()
	req := &RenderRequest{
		Pathname:    pathname,
		Query:       query,
		Locale:      locale,
		AMP:         query.Get("amp") != "",
		DataRequest: dataRequest,
		Bot:         IsBot(r.Header.Get("User-Agent")),
	}

	if s.previewToken != "" {
		if cookie, err := r.Cookie(PreviewCookieName); err == nil && cookie.Value == s.previewToken {
			req.Preview = true
		}
	}
	if s.revalidateToken != "" && r.Header.Get(RevalidateHeader) == s.revalidateToken {
		req.ManualRevalidate = true
		if r.Header.Get(RevalidateIfGeneratedHeader) != "" {
			req.RevalidateOnlyGenerated = true
		}
	}
	return req
}

// renderError maps an error to a response. Fatal-by-design errors
// (decode, invariant violations) short-circuit to a fixed status;
// everything else is downgraded to a best-effort error-page render.
func (s *Server) renderError(ctx context.Context, w http.ResponseWriter, req *RenderRequest, err error) {
	var decodeErr *cachekey.DecodeError
	if errors.As(err, &decodeErr) {
		s.log.Warn().Err(err).Str("path", req.Pathname).Msg("Malformed path encoding")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	var invariantErr *cache.InvariantError
	if errors.As(err, &invariantErr) {
		// logged distinctly: this is a bug in this system, not in user code
		s.log.Error().Err(err).Bool("invariant", true).Str("path", req.Pathname).Msg("Invariant violated")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var missingErr *MissingArtifactError
	if errors.As(err, &missingErr) {
		s.log.Error().Err(err).Bool("invariant", true).Str("page", missingErr.Page).Msg("Expected build artifact is missing")
	} else {
		s.log.Error().Err(err).Str("path", req.Pathname).Msg("Render failed")
	}
	s.renderErrorPage(ctx, w, req, err)
}

// serveNotFound routes to the 404 path. Data requests receive an
// explicit not-found body instead of the 404 page markup.
func (s *Server) serveNotFound(ctx context.Context, w http.ResponseWriter, req *RenderRequest) {
	if req.DataRequest {
		s.writePayload(w, req, notFoundPayload(req))
		return
	}
	for _, page := range []string{"/404", "/_error"} {
		if !s.manifest.HasPage(page) {
			continue
		}
		payload, err := s.renderStatusPage(ctx, req, page, http.StatusNotFound)
		if err != nil {
			s.log.Error().Err(err).Str("page", page).Msg("Could not render 404 page")
			continue
		}
		s.writePayload(w, req, payload)
		return
	}
	http.Error(w, "404 page not found", http.StatusNotFound)
}

// renderErrorPage renders /500 then /_error with status 500, falling
// back to a static body if even the error page fails. The original
// error is preserved for logging; dev contexts surface it directly so
// tooling can show the original failure.
func (s *Server) renderErrorPage(ctx context.Context, w http.ResponseWriter, req *RenderRequest, cause error) {
	if !s.profile.Dev {
		for _, page := range []string{"/500", "/_error"} {
			if !s.manifest.HasPage(page) {
				continue
			}
			payload, err := s.renderStatusPage(ctx, req, page, http.StatusInternalServerError)
			if err != nil {
				s.log.Error().Err(err).Str("page", page).Msg("Could not render error page")
				continue
			}
			s.writePayload(w, req, payload)
			return
		}
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	http.Error(w, cause.Error(), http.StatusInternalServerError)
}

// writePayload writes a finished payload to the client.
func (s *Server) writePayload(w http.ResponseWriter, req *RenderRequest, payload *Payload) {
	if payload.CacheStatus != "" {
		w.Header().Set(cachestatus.HeaderName, payload.CacheStatus.Header())
	}
	if payload.Revalidate > 0 {
		w.Header().Set("Cache-Control", fmt.Sprintf("s-maxage=%d, stale-while-revalidate", payload.Revalidate))
	}

	if payload.Redirect != nil {
		w.Header().Set("Location", payload.Redirect.Destination)
		w.WriteHeader(payload.StatusCode)
		return
	}

	switch payload.Kind {
	case PayloadJSON:
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	default:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	w.WriteHeader(payload.StatusCode)
	if _, err := w.Write(payload.Body); err != nil {
		s.log.Error().Err(err).Msg("Could not write response body to client")
	}
}
