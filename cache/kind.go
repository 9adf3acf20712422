package cache

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/igpack/pkg/fhirpackage"
)

// Key addresses one cache slot.
type Key struct {
	ResourceType string
	URL          string
	Version      string
}

// String returns "ResourceType/url|version".
func (k Key) String() string {
	return k.ResourceType + "/" + k.URL + "|" + k.Version
}

// Validate reports an error when any part of the key is empty.
func (k Key) Validate() error {
	if k.ResourceType == "" || k.URL == "" || k.Version == "" {
		return fmt.Errorf("invalid cache key %q: resource type, url and version must not be empty", k.String())
	}
	return nil
}

// Kind supplies identity and serialization for one cached resource type.
type Kind[T any] struct {
	ResourceType string
	// Ext is the file extension before any compression suffix, e.g. ".json".
	Ext       string
	URL       func(T) string
	Version   func(T) string
	IsDraft   func(T) bool
	Marshal   func(T) ([]byte, error)
	Unmarshal func(key Key, data []byte) (T, error)
}

// KeyOf derives the cache key of v.
func (k Kind[T]) KeyOf(v T) Key {
	return Key{ResourceType: k.ResourceType, URL: k.URL(v), Version: k.Version(v)}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func isDraft[S ~string](status *S) bool {
	return status != nil && string(*status) == "draft"
}

func marshalJSON[T any](v *T) ([]byte, error) {
	return json.Marshal(v)
}

func unmarshalJSON[T any](_ Key, data []byte) (*T, error) {
	v := new(T)
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	return v, nil
}

// ValueSetKind caches expanded ValueSets.
var ValueSetKind = Kind[*r4.ValueSet]{
	ResourceType: "ValueSet",
	Ext:          ".json",
	URL:          func(vs *r4.ValueSet) string { return deref(vs.Url) },
	Version:      func(vs *r4.ValueSet) string { return deref(vs.Version) },
	IsDraft:      func(vs *r4.ValueSet) bool { return isDraft(vs.Status) },
	Marshal:      marshalJSON[r4.ValueSet],
	Unmarshal:    unmarshalJSON[r4.ValueSet],
}

// StructureDefinitionKind caches StructureDefinitions with snapshots.
var StructureDefinitionKind = Kind[*r4.StructureDefinition]{
	ResourceType: "StructureDefinition",
	Ext:          ".json",
	URL:          func(sd *r4.StructureDefinition) string { return deref(sd.Url) },
	Version:      func(sd *r4.StructureDefinition) string { return deref(sd.Version) },
	IsDraft:      func(sd *r4.StructureDefinition) bool { return isDraft(sd.Status) },
	Marshal:      marshalJSON[r4.StructureDefinition],
	Unmarshal:    unmarshalJSON[r4.StructureDefinition],
}

// CodeSystemKind caches CodeSystems.
var CodeSystemKind = Kind[*r4.CodeSystem]{
	ResourceType: "CodeSystem",
	Ext:          ".json",
	URL:          func(cs *r4.CodeSystem) string { return deref(cs.Url) },
	Version:      func(cs *r4.CodeSystem) string { return deref(cs.Version) },
	IsDraft:      func(cs *r4.CodeSystem) bool { return isDraft(cs.Status) },
	Marshal:      marshalJSON[r4.CodeSystem],
	Unmarshal:    unmarshalJSON[r4.CodeSystem],
}

// PackageKind caches downloaded packages as .tgz, keyed by name and version.
var PackageKind = Kind[*fhirpackage.Package]{
	ResourceType: "Package",
	Ext:          ".tgz",
	URL:          func(p *fhirpackage.Package) string { return p.Identifier().Name },
	Version:      func(p *fhirpackage.Package) string { return p.Identifier().Version },
	Marshal:      func(p *fhirpackage.Package) ([]byte, error) { return p.Archive() },
	Unmarshal: func(key Key, data []byte) (*fhirpackage.Package, error) {
		return fhirpackage.ReadArchive(fhirpackage.NewIdentifier(key.URL, key.Version), bytes.NewReader(data))
	},
}
