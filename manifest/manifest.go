// Package manifest loads the build metadata the engine consumes: the
// page table, per-page fallback declarations, precomputed static paths
// and the fallback artifact directory. The manifest is read once at
// startup and is immutable afterwards.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	rendercache "github.com/render-cache/render-cache"
	routematcher "github.com/render-cache/render-cache/pkg/route-matcher"
)

// File is the on-disk manifest format.
type File struct {
	// Pages in declaration order. Dynamic pages are tried in this order.
	Pages []Page `yaml:"pages"`
	// FallbackDir holds the prerendered skeleton files.
	FallbackDir string `yaml:"fallbackDir"`
}

type Page struct {
	// ID is the page id, e.g. /about or /blog/[slug].
	ID string `yaml:"id"`
	// Static marks the page as statically rendered (cacheable).
	Static bool `yaml:"static"`
	// Fallback is empty (disabled), "blocking", or the skeleton file
	// name relative to FallbackDir (static fallback).
	Fallback string `yaml:"fallback"`
	// StaticPaths is the precomputed set of generated paths.
	StaticPaths []string `yaml:"staticPaths"`
}

// Manifest implements rendercache.Manifest and
// rendercache.FallbackArtifacts.
type Manifest struct {
	pages       map[string]Page
	routes      []routematcher.Route
	fallbackDir string
}

// Load reads and compiles a manifest file.
func Load(filename string) (*Manifest, error) {
	manifestBytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var file File
	if err := yaml.Unmarshal(manifestBytes, &file); err != nil {
		return nil, fmt.Errorf("could not parse manifest %s: %w", filename, err)
	}
	return New(file)
}

// New compiles a manifest, preserving dynamic route order.
func New(file File) (*Manifest, error) {
	m := &Manifest{
		pages:       make(map[string]Page, len(file.Pages)),
		fallbackDir: file.FallbackDir,
	}
	for _, page := range file.Pages {
		if _, exists := m.pages[page.ID]; exists {
			return nil, fmt.Errorf("duplicate page id %s", page.ID)
		}
		m.pages[page.ID] = page
		if routematcher.IsDynamic(page.ID) {
			route, err := routematcher.Compile(page.ID)
			if err != nil {
				return nil, err
			}
			m.routes = append(m.routes, route)
		}
	}
	return m, nil
}

func (m *Manifest) HasPage(path string) bool {
	page, ok := m.pages[path]
	return ok && !routematcher.IsDynamic(page.ID)
}

func (m *Manifest) IsStatic(page string) bool {
	p, ok := m.pages[page]
	return ok && p.Static
}

func (m *Manifest) Fallback(page string) (rendercache.FallbackDecl, bool) {
	p, ok := m.pages[page]
	if !ok || p.Fallback == "" {
		return rendercache.FallbackDecl{}, false
	}
	if p.Fallback == "blocking" {
		return rendercache.FallbackDecl{Blocking: true}, true
	}
	return rendercache.FallbackDecl{Artifact: p.Fallback}, true
}

func (m *Manifest) StaticPaths(page string) ([]string, bool) {
	p, ok := m.pages[page]
	if !ok || p.StaticPaths == nil {
		return nil, false
	}
	return p.StaticPaths, true
}

func (m *Manifest) DynamicRoutes() []routematcher.Route {
	return m.routes
}

// StaticFallback reads the skeleton markup for a page with a static
// fallback declaration. A missing file is build/runtime skew.
func (m *Manifest) StaticFallback(page string) ([]byte, error) {
	p, ok := m.pages[page]
	if !ok || p.Fallback == "" || p.Fallback == "blocking" {
		return nil, &rendercache.MissingArtifactError{
			Page: page,
			Err:  fmt.Errorf("no static fallback declared"),
		}
	}
	markup, err := os.ReadFile(filepath.Join(m.fallbackDir, p.Fallback))
	if err != nil {
		return nil, &rendercache.MissingArtifactError{Page: page, Err: err}
	}
	return markup, nil
}
