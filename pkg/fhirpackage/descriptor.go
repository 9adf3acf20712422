package fhirpackage

import (
	"encoding/json"
	"fmt"
	"sort"
)

// DescriptorEntry is the archive entry holding the package manifest.
const DescriptorEntry = "package.json"

// Descriptor is the package.json manifest of a FHIR NPM package.
type Descriptor struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Description  string            `json:"description,omitempty"`
	FHIRVersions []string          `json:"fhirVersions,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// ParseDescriptor decodes a package.json document.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse package descriptor: %w", err)
	}
	return &d, nil
}

// DependencyIdentifiers returns the declared dependencies ordered by name.
func (d *Descriptor) DependencyIdentifiers() []Identifier {
	ids := make([]Identifier, 0, len(d.Dependencies))
	for name, version := range d.Dependencies {
		ids = append(ids, Identifier{Name: name, Version: version})
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Name != ids[j].Name {
			return ids[i].Name < ids[j].Name
		}
		return ids[i].Version < ids[j].Version
	})
	return ids
}
