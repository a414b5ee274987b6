package rendercache

import (
	"context"
	"errors"

	routematcher "github.com/render-cache/render-cache/pkg/route-matcher"
)

// RenderOpts modify one dispatch.
type RenderOpts struct {
	// BubbleNoFallback propagates ErrNoFallback from the last candidate
	// instead of leaving the 404 degradation to the HTTP layer. Used
	// when this render is itself a sub-step of another resolution.
	BubbleNoFallback bool
}

// RenderToPayload walks the candidate pages for a request in order:
// the literal page match first, then dynamic routes in manifest order,
// then the configured last-resort page. The first candidate that
// produces a payload wins; candidates signalling ErrNoFallback are
// skipped. A nil payload with a nil error means no candidate owns the
// path and the caller must route to the 404 path.
func (s *Server) RenderToPayload(ctx context.Context, req *RenderRequest, opts RenderOpts) (*Payload, error) {
	sawNoFallback := false

	if s.manifest.HasPage(req.Pathname) {
		payload, err := s.renderCandidate(ctx, req, Candidate{Page: req.Pathname})
		if err == nil {
			return payload, nil
		}
		if !errors.Is(err, ErrNoFallback) {
			return nil, err
		}
		sawNoFallback = true
	}

	for _, route := range s.manifest.DynamicRoutes() {
		params, ok := route.Match(req.Pathname)
		if !ok {
			continue
		}
		payload, err := s.renderCandidate(ctx, req, Candidate{
			Page:    route.Page,
			Params:  params,
			Dynamic: true,
		})
		if err == nil {
			return payload, nil
		}
		if !errors.Is(err, ErrNoFallback) {
			return nil, err
		}
		sawNoFallback = true
	}

	if s.catchAllPage != "" {
		payload, err := s.renderCandidate(ctx, req, Candidate{
			Page:    s.catchAllPage,
			Dynamic: routematcher.IsDynamic(s.catchAllPage),
		})
		if err == nil {
			return payload, nil
		}
		if !errors.Is(err, ErrNoFallback) {
			return nil, err
		}
		sawNoFallback = true
	}

	if opts.BubbleNoFallback && sawNoFallback {
		return nil, ErrNoFallback
	}
	return nil, nil
}

// renderStatusPage re-enters the candidate machinery against a synthetic
// status page id with the response status forced. Status pages are
// cached exactly like normal static pages.
func (s *Server) renderStatusPage(ctx context.Context, req *RenderRequest, page string, status int) (*Payload, error) {
	payload, err := s.renderCandidate(ctx, req, Candidate{Page: page})
	if err != nil {
		return nil, err
	}
	payload.StatusCode = status
	payload.NotFound = false
	return payload, nil
}
