package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	rendercache "github.com/render-cache/render-cache"
	"github.com/render-cache/render-cache/cache"
)

// originRenderer asks the origin application server to render a page and
// returns the structured result. The origin exposes a single render
// endpoint that answers with JSON:
//
//	{ "html": "...", "pageData": {...}, "revalidate": 60,
//	  "notFound": false, "redirect": {"destination": "/x", "permanent": true} }
//
// An absent revalidate field means the origin did not specify a window.
type originRenderer struct {
	originURL *url.URL
	client    http.Client
}

func newOriginRenderer(originURL *url.URL) *originRenderer {
	return &originRenderer{
		originURL: originURL,
		client: http.Client{
			// do not follow redirects, the origin's answer is the answer
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

type originResponse struct {
	HTML       string               `json:"html"`
	PageData   json.RawMessage      `json:"pageData"`
	Revalidate *int                 `json:"revalidate"`
	NotFound   bool                 `json:"notFound"`
	Redirect   *rendercache.Redirect `json:"redirect"`
}

func (o *originRenderer) Render(ctx context.Context, page string, req *rendercache.RenderRequest, params map[string]string) (*rendercache.RenderResult, error) {
	query := url.Values{}
	query.Set("page", page)
	query.Set("path", req.Pathname)
	if req.Locale != "" {
		query.Set("locale", req.Locale)
	}
	if req.DataRequest {
		query.Set("dataRequest", "1")
	}
	if req.Preview {
		query.Set("preview", "1")
	}
	for name, value := range params {
		query.Set("param."+name, value)
	}

	renderURL := o.originURL.String() + "/__render?" + query.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, "GET", renderURL, nil)
	if err != nil {
		return nil, err
	}
	res, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("could not reach origin: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("origin render of %s failed: %s", page, res.Status)
	}

	var out originResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("could not decode origin response: %w", err)
	}

	revalidate := cache.RevalidateUnset
	if out.Revalidate != nil {
		revalidate = *out.Revalidate
	}
	return &rendercache.RenderResult{
		HTML:       []byte(out.HTML),
		PageData:   out.PageData,
		Redirect:   out.Redirect,
		NotFound:   out.NotFound,
		Revalidate: revalidate,
	}, nil
}
