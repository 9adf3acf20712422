package fhirpackage

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/igpack/pkg/logger"
)

// Entry is one file of a package archive, named relative to "package/".
type Entry struct {
	Name string
	Data []byte
}

// Resources holds the conformance resources parsed from a package.
type Resources struct {
	CodeSystems          []*r4.CodeSystem
	NamingSystems        []*r4.NamingSystem
	StructureDefinitions []*r4.StructureDefinition
	ValueSets            []*r4.ValueSet
}

// Len returns the total number of parsed resources.
func (r *Resources) Len() int {
	return len(r.CodeSystems) + len(r.NamingSystems) + len(r.StructureDefinitions) + len(r.ValueSets)
}

// Package is a downloaded package. Entries are immutable after creation;
// resources are parsed on first access and memoized.
type Package struct {
	id      Identifier
	entries []Entry

	parseOnce sync.Once
	resources *Resources
}

// New creates a Package from its archive entries.
func New(id Identifier, entries []Entry) *Package {
	return &Package{id: id, entries: entries}
}

// Identifier returns the package identifier.
func (p *Package) Identifier() Identifier {
	return p.id
}

// Entries returns the archive entries in archive order.
func (p *Package) Entries() []Entry {
	out := make([]Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Entry returns the content of the named entry.
func (p *Package) Entry(name string) ([]byte, bool) {
	for _, e := range p.entries {
		if e.Name == name {
			return e.Data, true
		}
	}
	return nil, false
}

// Descriptor parses the package.json entry.
func (p *Package) Descriptor() (*Descriptor, error) {
	data, ok := p.Entry(DescriptorEntry)
	if !ok {
		return nil, fmt.Errorf("package %s has no %s", p.id, DescriptorEntry)
	}
	d, err := ParseDescriptor(data)
	if err != nil {
		return nil, fmt.Errorf("package %s: %w", p.id, err)
	}
	return d, nil
}

// Resources parses the package entries once and returns the result.
// Entries that are not conformance resources are ignored.
func (p *Package) Resources() *Resources {
	p.parseOnce.Do(func() {
		p.resources = parseEntries(p.id, p.entries)
	})
	return p.resources
}

func parseEntries(id Identifier, entries []Entry) *Resources {
	res := &Resources{}
	for _, e := range entries {
		if e.Name == DescriptorEntry || strings.HasSuffix(e.Name, ".index.json") {
			continue
		}
		if err := parseEntry(e.Data, res); err != nil {
			logger.Warn("Skipping %s in package %s: %v", e.Name, id, err)
		}
	}
	logger.Debug("Parsed package %s: %d CodeSystems, %d NamingSystems, %d StructureDefinitions, %d ValueSets",
		id, len(res.CodeSystems), len(res.NamingSystems), len(res.StructureDefinitions), len(res.ValueSets))
	return res
}

func parseEntry(data []byte, res *Resources) error {
	var probe struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	switch probe.ResourceType {
	case "CodeSystem":
		var cs r4.CodeSystem
		if err := json.Unmarshal(data, &cs); err != nil {
			return err
		}
		res.CodeSystems = append(res.CodeSystems, &cs)
	case "NamingSystem":
		var ns r4.NamingSystem
		if err := json.Unmarshal(data, &ns); err != nil {
			return err
		}
		res.NamingSystems = append(res.NamingSystems, &ns)
	case "StructureDefinition":
		var sd r4.StructureDefinition
		if err := json.Unmarshal(data, &sd); err != nil {
			return err
		}
		res.StructureDefinitions = append(res.StructureDefinitions, &sd)
	case "ValueSet":
		var vs r4.ValueSet
		if err := json.Unmarshal(data, &vs); err != nil {
			return err
		}
		res.ValueSets = append(res.ValueSets, &vs)
	}
	return nil
}
