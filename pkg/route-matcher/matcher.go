// Package routematcher compiles dynamic page patterns into matchers.
//
// Patterns use bracket segments: `/blog/[slug]` captures one segment,
// `/docs/[...path]` captures the rest of the path, and `/shop/[[...cat]]`
// makes the rest optional. Compiled routes are immutable and safe for
// concurrent use. Candidate order is significant and preserved by
// CompileAll: routes are tried in the order the manifest declares them.
package routematcher

import (
	"fmt"
	"regexp"
	"strings"
)

// Route matches request paths against one compiled page pattern.
type Route struct {
	// Page is the page id the pattern was compiled from.
	Page string

	re     *regexp.Regexp
	params []string
}

// Compile builds a Route from a bracket pattern.
func Compile(page string) (Route, error) {
	segments := strings.Split(strings.TrimPrefix(page, "/"), "/")
	var expr strings.Builder
	var params []string
	expr.WriteString("^")
	for i, segment := range segments {
		switch {
		case strings.HasPrefix(segment, "[[...") && strings.HasSuffix(segment, "]]"):
			if i != len(segments)-1 {
				return Route{}, fmt.Errorf("optional catch-all must be the last segment in %q", page)
			}
			params = append(params, segment[5:len(segment)-2])
			expr.WriteString("(?:/(.+?))?")
		case strings.HasPrefix(segment, "[...") && strings.HasSuffix(segment, "]"):
			if i != len(segments)-1 {
				return Route{}, fmt.Errorf("catch-all must be the last segment in %q", page)
			}
			params = append(params, segment[4:len(segment)-1])
			expr.WriteString("/(.+?)")
		case strings.HasPrefix(segment, "[") && strings.HasSuffix(segment, "]"):
			params = append(params, segment[1:len(segment)-1])
			expr.WriteString("/([^/]+?)")
		case strings.Contains(segment, "["):
			return Route{}, fmt.Errorf("malformed segment %q in %q", segment, page)
		default:
			expr.WriteString("/" + regexp.QuoteMeta(segment))
		}
	}
	expr.WriteString("$")
	re, err := regexp.Compile(expr.String())
	if err != nil {
		return Route{}, fmt.Errorf("could not compile pattern %q: %w", page, err)
	}
	return Route{Page: page, re: re, params: params}, nil
}

// CompileAll compiles patterns preserving their order.
func CompileAll(pages []string) ([]Route, error) {
	routes := make([]Route, 0, len(pages))
	for _, page := range pages {
		route, err := Compile(page)
		if err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	return routes, nil
}

// Match returns the captured params for a pathname, or ok=false if the
// pattern does not match. Catch-all params keep their raw slash-separated
// value.
func (r Route) Match(pathname string) (map[string]string, bool) {
	groups := r.re.FindStringSubmatch(pathname)
	if groups == nil {
		return nil, false
	}
	params := make(map[string]string, len(r.params))
	for i, name := range r.params {
		params[name] = groups[i+1]
	}
	return params, true
}

// IsDynamic reports whether a page id contains dynamic segments.
func IsDynamic(page string) bool {
	return strings.Contains(page, "[")
}
