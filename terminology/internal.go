package terminology

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/igpack/modifier"
)

// ErrNotExpandable is returned by InternalExpander for compositions it
// cannot expand locally.
var ErrNotExpandable = errors.New("value set cannot be expanded internally")

// InternalExpander expands compositions that enumerate concepts or include
// whole CodeSystems available locally with complete content.
type InternalExpander struct {
	codeSystems map[string][]*r4.CodeSystem
}

// NewInternalExpander creates an InternalExpander over codeSystems.
func NewInternalExpander(codeSystems []*r4.CodeSystem) *InternalExpander {
	e := &InternalExpander{codeSystems: make(map[string][]*r4.CodeSystem)}
	for _, cs := range codeSystems {
		if u := deref(cs.Url); u != "" {
			e.codeSystems[u] = append(e.codeSystems[u], cs)
		}
	}
	return e
}

// conceptSet is a compose include or exclude.
type conceptSet struct {
	system      string
	version     string
	hasFilter   bool
	hasValueSet bool
	concepts    []codeEntry
}

// codeEntry is one concept of an expansion.
type codeEntry struct {
	system  string
	version string
	code    string
	display string
}

func (c codeEntry) key() string {
	return c.system + "#" + c.code
}

func (c codeEntry) contains() r4.ValueSetExpansionContains {
	entry := r4.ValueSetExpansionContains{System: ptr(c.system), Code: ptr(c.code)}
	if c.version != "" {
		entry.Version = ptr(c.version)
	}
	if c.display != "" {
		entry.Display = ptr(c.display)
	}
	return entry
}

// Expand implements Expander.
func (e *InternalExpander) Expand(_ context.Context, vs *r4.ValueSet) (*r4.ValueSet, error) {
	if vs.Expansion != nil {
		return vs, nil
	}
	if vs.Compose == nil || len(vs.Compose.Include) == 0 {
		return nil, fmt.Errorf("%w: ValueSet %s|%s has no compose include", ErrNotExpandable, deref(vs.Url), deref(vs.Version))
	}

	var includes, excludes []conceptSet
	for _, include := range vs.Compose.Include {
		set := conceptSet{
			system:      deref(include.System),
			version:     deref(include.Version),
			hasFilter:   len(include.Filter) > 0,
			hasValueSet: len(include.ValueSet) > 0,
		}
		for _, c := range include.Concept {
			set.concepts = append(set.concepts, codeEntry{code: deref(c.Code), display: deref(c.Display)})
		}
		includes = append(includes, set)
	}
	for _, exclude := range vs.Compose.Exclude {
		set := conceptSet{
			system:      deref(exclude.System),
			version:     deref(exclude.Version),
			hasFilter:   len(exclude.Filter) > 0,
			hasValueSet: len(exclude.ValueSet) > 0,
		}
		for _, c := range exclude.Concept {
			set.concepts = append(set.concepts, codeEntry{code: deref(c.Code)})
		}
		excludes = append(excludes, set)
	}

	excluded := make(map[string]struct{})
	for _, set := range excludes {
		entries, err := e.resolve(set)
		if err != nil {
			return nil, fmt.Errorf("ValueSet %s|%s: %w", deref(vs.Url), deref(vs.Version), err)
		}
		for _, entry := range entries {
			excluded[entry.key()] = struct{}{}
		}
	}

	out, err := modifier.Clone(vs)
	if err != nil {
		return nil, err
	}
	out.Expansion = &r4.ValueSetExpansion{}

	seen := make(map[string]struct{})
	for _, set := range includes {
		entries, err := e.resolve(set)
		if err != nil {
			return nil, fmt.Errorf("ValueSet %s|%s: %w", deref(vs.Url), deref(vs.Version), err)
		}
		for _, entry := range entries {
			if _, ok := excluded[entry.key()]; ok {
				continue
			}
			if _, ok := seen[entry.key()]; ok {
				continue
			}
			seen[entry.key()] = struct{}{}
			out.Expansion.Contains = append(out.Expansion.Contains, entry.contains())
		}
	}
	return out, nil
}

// resolve lists the concepts of set.
func (e *InternalExpander) resolve(set conceptSet) ([]codeEntry, error) {
	switch {
	case set.hasFilter:
		return nil, fmt.Errorf("%w: filter on %s", ErrNotExpandable, set.system)
	case set.hasValueSet:
		return nil, fmt.Errorf("%w: value set import", ErrNotExpandable)
	case set.system == "":
		return nil, fmt.Errorf("%w: include without system", ErrNotExpandable)
	}

	cs := e.codeSystem(set.system, set.version)

	if len(set.concepts) > 0 {
		var displays map[string]string
		version := set.version
		if cs != nil {
			displays = conceptDisplays(cs)
			if version == "" {
				version = deref(cs.Version)
			}
		}
		entries := make([]codeEntry, 0, len(set.concepts))
		for _, c := range set.concepts {
			display := c.display
			if display == "" {
				display = displays[c.code]
			}
			entries = append(entries, codeEntry{system: set.system, version: version, code: c.code, display: display})
		}
		return entries, nil
	}

	if cs == nil {
		return nil, fmt.Errorf("%w: CodeSystem %s not available", ErrNotExpandable, versioned(set.system, set.version))
	}
	if content := codeOf(cs.Content); content != "complete" {
		return nil, fmt.Errorf("%w: CodeSystem %s has content %q", ErrNotExpandable, versioned(set.system, set.version), content)
	}

	var entries []codeEntry
	collectConcepts(cs.Concept, func(code, display string) {
		entries = append(entries, codeEntry{system: set.system, version: deref(cs.Version), code: code, display: display})
	})
	return entries, nil
}

// codeSystem picks the CodeSystem matching version, or the only one when
// no version is requested.
func (e *InternalExpander) codeSystem(system, version string) *r4.CodeSystem {
	candidates := e.codeSystems[system]
	if version == "" {
		if len(candidates) == 1 {
			return candidates[0]
		}
		return nil
	}
	for _, cs := range candidates {
		if deref(cs.Version) == version {
			return cs
		}
	}
	return nil
}

func collectConcepts(concepts []r4.CodeSystemConcept, add func(code, display string)) {
	for i := range concepts {
		if code := deref(concepts[i].Code); code != "" {
			add(code, deref(concepts[i].Display))
		}
		collectConcepts(concepts[i].Concept, add)
	}
}

func conceptDisplays(cs *r4.CodeSystem) map[string]string {
	displays := make(map[string]string)
	collectConcepts(cs.Concept, func(code, display string) {
		displays[code] = display
	})
	return displays
}

func versioned(u, version string) string {
	if version == "" {
		return u
	}
	return u + "|" + version
}

func codeOf[S ~string](s *S) string {
	if s == nil {
		return ""
	}
	return string(*s)
}

func ptr[T any](v T) *T {
	return &v
}
