package graph

import (
	"sort"
	"strings"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/igpack/pkg/fhirpackage"
	"github.com/gofhir/igpack/pkg/logger"
)

// extensionURLPath is the differential path whose fixed uri names an extension definition.
const extensionURLPath = "Extension.url"

// BindingStrengths lists the FHIR binding strengths, strongest first.
var BindingStrengths = []string{"required", "extensible", "preferred", "example"}

// IsBindingStrength reports whether s is a FHIR binding strength code.
func IsBindingStrength(s string) bool {
	for _, b := range BindingStrengths {
		if b == s {
			return true
		}
	}
	return false
}

// Extractor computes dependency sets and needed value sets over a corpus of
// StructureDefinitions.
type Extractor struct {
	index     *Index
	strengths []string
	fallback  func(ref string) bool
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithBindingStrengths limits collected bindings to the given strengths.
func WithBindingStrengths(strengths ...string) Option {
	return func(e *Extractor) {
		e.strengths = strengths
	}
}

// WithFallback sets a lookup consulted before a needed value set that is not
// part of the package set is reported missing.
func WithFallback(known func(ref string) bool) Option {
	return func(e *Extractor) {
		e.fallback = known
	}
}

// NewExtractor creates an Extractor over corpus.
func NewExtractor(corpus []*r4.StructureDefinition, opts ...Option) *Extractor {
	e := &Extractor{
		index:     NewIndex(corpus),
		strengths: BindingStrengths,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ForSet creates an Extractor over every StructureDefinition of set.
func ForSet(set *fhirpackage.ResolvedSet, opts ...Option) *Extractor {
	return NewExtractor(set.AllStructureDefinitions(), opts...)
}

// Index returns the lookup index of the corpus.
func (e *Extractor) Index() *Index {
	return e.index
}

// DependenciesOf returns every definition of the corpus reachable from sd,
// excluding sd. Dependencies of a definition precede it, so a base definition
// always comes before the definitions derived from it.
func (e *Extractor) DependenciesOf(sd *r4.StructureDefinition) []*r4.StructureDefinition {
	w := &walk{index: e.index, visited: make(map[string]struct{}), added: make(map[*r4.StructureDefinition]struct{})}
	w.added[sd] = struct{}{}
	w.visit(sd)
	return w.out
}

type walk struct {
	index   *Index
	visited map[string]struct{}
	added   map[*r4.StructureDefinition]struct{}
	out     []*r4.StructureDefinition
}

func (w *walk) visit(sd *r4.StructureDefinition) {
	u := deref(sd.Url)
	if _, ok := w.visited[u]; ok {
		return
	}
	if _, ok := w.visited[Key(sd)]; ok {
		return
	}
	w.visited[u] = struct{}{}
	w.visited[Key(sd)] = struct{}{}

	w.follow(sd, "base definition", deref(sd.BaseDefinition))

	if sd.Differential == nil {
		return
	}
	for i := range sd.Differential.Element {
		element := &sd.Differential.Element[i]
		if deref(element.Path) == extensionURLPath && element.FixedUri != nil {
			w.follow(sd, "extension", *element.FixedUri)
		}
		for j := range element.Type {
			for _, p := range element.Type[j].Profile {
				w.follow(sd, "profile", p)
			}
			for _, p := range element.Type[j].TargetProfile {
				w.follow(sd, "target profile", p)
			}
		}
	}
}

func (w *walk) follow(from *r4.StructureDefinition, relation, ref string) {
	if ref == "" {
		return
	}
	targets := w.index.Lookup(ref)
	if len(targets) == 0 {
		logger.Debug("%s %s of %s not found", relation, ref, Key(from))
		return
	}
	for _, target := range targets {
		w.visit(target)
		if _, ok := w.added[target]; !ok {
			w.added[target] = struct{}{}
			w.out = append(w.out, target)
		}
	}
}

// ValueSetsNeeded returns the value set references of every differential
// binding of defs whose strength is in strengths, sorted and de-duplicated.
func ValueSetsNeeded(defs []*r4.StructureDefinition, strengths []string) []string {
	allowed := make(map[string]struct{}, len(strengths))
	for _, s := range strengths {
		allowed[s] = struct{}{}
	}

	seen := make(map[string]struct{})
	for _, sd := range defs {
		if sd.Differential == nil {
			continue
		}
		for i := range sd.Differential.Element {
			binding := sd.Differential.Element[i].Binding
			if binding == nil || binding.Strength == nil || binding.ValueSet == nil || *binding.ValueSet == "" {
				continue
			}
			if _, ok := allowed[string(*binding.Strength)]; ok {
				seen[*binding.ValueSet] = struct{}{}
			}
		}
	}

	refs := make([]string, 0, len(seen))
	for ref := range seen {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// Needed is the value set demand of one package.
type Needed struct {
	// References are the bound value set references, url or url|version.
	References []string
	// ValueSets are the value sets of the package set matching a reference.
	ValueSets []*r4.ValueSet
	// Missing are references found neither in the package set nor by the fallback.
	Missing []string
}

// ValueSetsFor computes the value sets needed by roots and their
// dependencies and matches them against candidates.
func (e *Extractor) ValueSetsFor(roots []*r4.StructureDefinition, candidates []*r4.ValueSet) *Needed {
	defs := make([]*r4.StructureDefinition, 0, len(roots))
	included := make(map[*r4.StructureDefinition]struct{})
	add := func(sd *r4.StructureDefinition) {
		if _, ok := included[sd]; !ok {
			included[sd] = struct{}{}
			defs = append(defs, sd)
		}
	}
	for _, sd := range roots {
		add(sd)
		for _, dep := range e.DependenciesOf(sd) {
			add(dep)
		}
	}

	needed := &Needed{References: ValueSetsNeeded(defs, e.strengths)}
	wanted := make(map[string]struct{}, len(needed.References))
	for _, ref := range needed.References {
		wanted[ref] = struct{}{}
	}

	found := make(map[string]struct{})
	for _, vs := range candidates {
		u := deref(vs.Url)
		uv := u + "|" + deref(vs.Version)
		_, byURL := wanted[u]
		_, byURLAndVersion := wanted[uv]
		if !byURL && !byURLAndVersion {
			continue
		}
		needed.ValueSets = append(needed.ValueSets, vs)
		found[u] = struct{}{}
		found[uv] = struct{}{}
	}

	for _, ref := range needed.References {
		if _, ok := found[ref]; ok {
			continue
		}
		if e.fallback != nil && e.fallback(ref) {
			continue
		}
		needed.Missing = append(needed.Missing, ref)
	}
	return needed
}

// RequiredValueSets computes the value sets needed by the root package of set
// and logs the ones that could not be found.
func (e *Extractor) RequiredValueSets(set *fhirpackage.ResolvedSet) *Needed {
	needed := e.ValueSetsFor(set.Root().Resources().StructureDefinitions, set.AllValueSets())
	if len(needed.Missing) > 0 {
		logger.Warn("The following value sets are required for validation but could not be found in package %s or its dependencies, validation may be incomplete: [%s]",
			set.Root().Identifier(), strings.Join(needed.Missing, ", "))
	}
	return needed
}
