// Package assets implements the Asset Library (§4.2): a fixed, process-wide
// lookup from a logical asset id to either a local media path (audio,
// image) or a text template. Built once at startup from the funnel
// definition and never mutated, mirroring the teacher's
// GetBuiltinConfig singleton registry shape.
package assets

import (
	"errors"
	"fmt"
	"strings"
)

// Kind distinguishes how a resolved asset should be sent.
type Kind string

const (
	KindAudio Kind = "audio"
	KindImage Kind = "image"
	KindText  Kind = "text"
)

// ErrAssetNotFound is returned by Resolve for an unknown id or alias.
var ErrAssetNotFound = errors.New("assets: asset not found")

// Definition is one entry in the library, keyed by its canonical id.
type Definition struct {
	ID       string
	Kind     Kind
	Path     string // local file path, relative to the media root; audio/image only
	Template string // text template, with {placeholder} tokens; text only
	Aliases  []string
}

// Resolved is the result of looking up an asset id.
type Resolved struct {
	ID   string
	Kind Kind
	Path string
	Text string
}

// Library is an immutable, concurrency-safe asset registry.
type Library struct {
	byID map[string]Definition
}

// New builds a Library from a set of definitions, indexing canonical ids
// and aliases into one lookup table. Duplicate ids/aliases are not
// rejected, here or elsewhere: a later definition silently replaces an
// earlier one with the same id or alias. New itself cannot fail, matching
// the Trigger Engine's "pure, cannot fail" discipline.
func New(defs []Definition) *Library {
	byID := make(map[string]Definition, len(defs)*2)
	for _, d := range defs {
		byID[d.ID] = d
		for _, alias := range d.Aliases {
			byID[alias] = d
		}
	}
	return &Library{byID: byID}
}

// Resolve looks up assetID (or one of its aliases) and, for text assets,
// substitutes placeholders from vars (e.g. {name}, {link}).
func (l *Library) Resolve(assetID string, vars map[string]string) (Resolved, error) {
	def, ok := l.byID[assetID]
	if !ok {
		return Resolved{}, fmt.Errorf("%w: %q", ErrAssetNotFound, assetID)
	}

	r := Resolved{ID: def.ID, Kind: def.Kind, Path: def.Path}
	if def.Kind == KindText {
		r.Text = substitute(def.Template, vars)
	}
	return r, nil
}

// Has reports whether assetID (or an alias) resolves to a known asset,
// used by funnel-definition validation to catch dangling asset references
// at load time rather than at send time.
func (l *Library) Has(assetID string) bool {
	_, ok := l.byID[assetID]
	return ok
}

func substitute(template string, vars map[string]string) string {
	out := template
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// Substitute applies the same {placeholder} substitution Resolve uses for
// text assets, for callers (e.g. the Response Processor) that need to
// render a literal trigger-authored string rather than a looked-up asset.
func Substitute(template string, vars map[string]string) string {
	return substitute(template, vars)
}
