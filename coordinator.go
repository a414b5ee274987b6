package rendercache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/render-cache/render-cache/cache"
)

// renderCandidate runs the cache-miss/cache-hit decision tree for one
// page candidate: derive the key, consult the response cache, and invoke
// the renderer when a (re)generation is needed.
func (s *Server) renderCandidate(ctx context.Context, req *RenderRequest, cand Candidate) (*Payload, error) {
	isStatic := s.manifest.IsStatic(cand.Page)

	resolvedPath := req.Pathname
	if s.keyer.IsStatusPage(cand.Page) {
		resolvedPath = cand.Page
	}

	// Preview requests, pages that are not statically rendered, and
	// forced dynamic-HTML rendering never share state through the cache.
	if req.Preview || !isStatic || req.SupportsDynamicHTML {
		result, err := s.produceRender(ctx, req, cand)
		if err != nil {
			return nil, err
		}
		entry := &cache.Entry{Value: valueFromResult(result), Revalidate: result.Revalidate}
		return s.payloadFromEntry(req, entry, false)
	}

	key, err := s.keyer.Derive(resolvedPath, req.Locale, req.AMP)
	if err != nil {
		return nil, err
	}

	decl, declared := s.manifest.Fallback(cand.Page)
	staticPaths, _ := s.manifest.StaticPaths(cand.Page)

	produce := func(pctx context.Context, hadEntry bool) (*cache.Produced, error) {
		if req.ManualRevalidate && req.RevalidateOnlyGenerated && !hadEntry {
			s.log.Debug().Str("page", cand.Page).Msg("Skipping manual revalidation of never-generated path")
			return nil, nil
		}

		mode := effectiveFallback(decl, declared, req, hadEntry)
		if cand.Dynamic && !hadEntry && !req.Preview && mode != FallbackBlocking {
			if !containsPath(staticPaths, resolvedPath) {
				if !s.profile.Dev && mode != FallbackStatic {
					// this candidate does not own the path
					return nil, ErrNoFallback
				}
				if mode == FallbackStatic && !req.DataRequest && !req.ManualRevalidate {
					html, err := s.artifacts.StaticFallback(cand.Page)
					if err != nil {
						return nil, err
					}
					// Persist stays false: a skeleton must never
					// overwrite a generated entry.
					return &cache.Produced{
						Value:      &cache.PageValue{HTML: html},
						Revalidate: cache.RevalidateUnset,
					}, nil
				}
				if s.profile.Dev {
					// first-time generation of a path outside the build
					req.OnDemandGenerate = true
				}
			}
		}

		result, err := s.produceRender(pctx, req, cand)
		if err != nil {
			return nil, err
		}
		return &cache.Produced{
			Value:      valueFromResult(result),
			Revalidate: result.Revalidate,
			Persist:    true,
		}, nil
	}

	entry, err := s.cache.Get(ctx, key, produce, cache.Opts{ManualRevalidate: req.ManualRevalidate})
	if err != nil {
		return nil, err
	}
	if entry == nil {
		if req.ManualRevalidate && req.RevalidateOnlyGenerated {
			// revalidate-only-generated: content that was never built
			// is not rendered at all
			return notFoundPayload(req), nil
		}
		// a non-empty key must end with either an entry or a defined error
		return nil, cache.Invariantf("no cache entry and no error for key %s", key)
	}

	s.metrics.ObserveCacheStatus(entry.Status)
	return s.payloadFromEntry(req, entry, true)
}

func (s *Server) produceRender(ctx context.Context, req *RenderRequest, cand Candidate) (*RenderResult, error) {
	s.metrics.ObserveRender()
	result, err := s.renderer.Render(ctx, cand.Page, req, cand.Params)
	if err != nil {
		return nil, fmt.Errorf("rendering %s: %w", cand.Page, err)
	}
	if result == nil {
		return nil, cache.Invariantf("renderer returned no result for page %s", cand.Page)
	}
	return result, nil
}

func valueFromResult(result *RenderResult) cache.Value {
	switch {
	case result.NotFound:
		return nil
	case result.Redirect != nil:
		props, _ := json.Marshal(result.Redirect)
		return &cache.RedirectValue{Props: props}
	default:
		return &cache.PageValue{HTML: result.HTML, PageData: result.PageData}
	}
}

// payloadFromEntry converts a cache entry into the response payload for
// this request. Data requests receive the serialized page data, markup
// requests the stored HTML.
func (s *Server) payloadFromEntry(req *RenderRequest, entry *cache.Entry, cached bool) (*Payload, error) {
	payload := &Payload{StatusCode: http.StatusOK, Revalidate: entry.Revalidate}
	if cached {
		payload.CacheStatus = entry.Status
	}

	switch value := entry.Value.(type) {
	case nil:
		notFound := notFoundPayload(req)
		notFound.Revalidate = entry.Revalidate
		notFound.CacheStatus = payload.CacheStatus
		return notFound, nil
	case *cache.RedirectValue:
		if req.DataRequest {
			payload.Kind = PayloadJSON
			payload.Body = value.Props
			return payload, nil
		}
		var redirect Redirect
		if err := json.Unmarshal(value.Props, &redirect); err != nil {
			return nil, fmt.Errorf("could not decode redirect props: %w", err)
		}
		payload.Redirect = &redirect
		payload.StatusCode = redirect.statusCode()
		return payload, nil
	case *cache.PageValue:
		if req.DataRequest {
			payload.Kind = PayloadJSON
			payload.Body = value.PageData
		} else {
			payload.Kind = PayloadHTML
			payload.Body = value.HTML
		}
		return payload, nil
	default:
		return nil, cache.Invariantf("unexpected cache value %T in render path", value)
	}
}

func notFoundPayload(req *RenderRequest) *Payload {
	payload := &Payload{StatusCode: http.StatusNotFound, NotFound: true}
	if req.DataRequest {
		payload.Kind = PayloadJSON
		payload.Body = []byte(`{"notFound":true}`)
	}
	return payload
}

func containsPath(paths []string, path string) bool {
	for _, p := range paths {
		if p == path {
			return true
		}
	}
	return false
}
