package rendercache

import (
	"errors"
	"fmt"
)

// ErrNoFallback signals that a route candidate cannot serve a path
// without a fallback. It is control flow between candidates, never a
// user-facing error: the dispatcher catches it and tries the next
// candidate or degrades to the 404 path.
var ErrNoFallback = errors.New("no fallback available for route")

// MissingArtifactError reports a build artifact (fallback skeleton,
// prerendered page) that was expected to exist but is absent. It points
// at build/runtime skew and is surfaced, not swallowed.
type MissingArtifactError struct {
	Page string
	Err  error
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("missing build artifact for page %s: %v", e.Page, e.Err)
}

func (e *MissingArtifactError) Unwrap() error { return e.Err }
