package fhirpackage

import (
	"sync"

	"github.com/gofhir/fhir/r4"
)

// ResolvedSet is a root package together with its transitive dependency
// closure. It is read-only after construction.
type ResolvedSet struct {
	root         *Package
	dependencies []*Package

	allOnce sync.Once
	all     *Resources
}

// NewResolvedSet creates a ResolvedSet. The root is dropped from deps if present.
func NewResolvedSet(root *Package, deps []*Package) *ResolvedSet {
	filtered := make([]*Package, 0, len(deps))
	for _, d := range deps {
		if d != root && d.Identifier() != root.Identifier() {
			filtered = append(filtered, d)
		}
	}
	return &ResolvedSet{root: root, dependencies: filtered}
}

// Root returns the root package.
func (s *ResolvedSet) Root() *Package {
	return s.root
}

// Dependencies returns the dependency packages, excluding the root.
func (s *ResolvedSet) Dependencies() []*Package {
	out := make([]*Package, len(s.dependencies))
	copy(out, s.dependencies)
	return out
}

// Packages returns the root followed by all dependencies.
func (s *ResolvedSet) Packages() []*Package {
	return append([]*Package{s.root}, s.dependencies...)
}

// Identifiers returns the identifiers of Packages.
func (s *ResolvedSet) Identifiers() []Identifier {
	pkgs := s.Packages()
	ids := make([]Identifier, len(pkgs))
	for i, p := range pkgs {
		ids[i] = p.Identifier()
	}
	return ids
}

// ParseResources parses the root and every dependency.
func (s *ResolvedSet) ParseResources() {
	for _, p := range s.Packages() {
		p.Resources()
	}
}

func (s *ResolvedSet) flatten() *Resources {
	s.allOnce.Do(func() {
		all := &Resources{}
		for _, p := range s.Packages() {
			r := p.Resources()
			all.CodeSystems = append(all.CodeSystems, r.CodeSystems...)
			all.NamingSystems = append(all.NamingSystems, r.NamingSystems...)
			all.StructureDefinitions = append(all.StructureDefinitions, r.StructureDefinitions...)
			all.ValueSets = append(all.ValueSets, r.ValueSets...)
		}
		s.all = all
	})
	return s.all
}

// AllCodeSystems returns the CodeSystems of root and dependencies.
func (s *ResolvedSet) AllCodeSystems() []*r4.CodeSystem {
	return s.flatten().CodeSystems
}

// AllNamingSystems returns the NamingSystems of root and dependencies.
func (s *ResolvedSet) AllNamingSystems() []*r4.NamingSystem {
	return s.flatten().NamingSystems
}

// AllStructureDefinitions returns the StructureDefinitions of root and dependencies.
func (s *ResolvedSet) AllStructureDefinitions() []*r4.StructureDefinition {
	return s.flatten().StructureDefinitions
}

// AllValueSets returns the ValueSets of root and dependencies.
func (s *ResolvedSet) AllValueSets() []*r4.ValueSet {
	return s.flatten().ValueSets
}

// StructureDefinitionsByURL groups AllStructureDefinitions by canonical url.
// Definitions without a url are left out.
func (s *ResolvedSet) StructureDefinitionsByURL() map[string][]*r4.StructureDefinition {
	byURL := make(map[string][]*r4.StructureDefinition)
	for _, sd := range s.AllStructureDefinitions() {
		if sd.Url == nil || *sd.Url == "" {
			continue
		}
		byURL[*sd.Url] = append(byURL[*sd.Url], sd)
	}
	return byURL
}
