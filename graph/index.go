package graph

import (
	"github.com/gofhir/fhir/r4"
)

// Index looks up StructureDefinitions by canonical url or by url|version.
type Index struct {
	byURL           map[string][]*r4.StructureDefinition
	byURLAndVersion map[string]*r4.StructureDefinition
}

// NewIndex indexes sds. Definitions without a url are skipped.
func NewIndex(sds []*r4.StructureDefinition) *Index {
	idx := &Index{
		byURL:           make(map[string][]*r4.StructureDefinition),
		byURLAndVersion: make(map[string]*r4.StructureDefinition),
	}
	for _, sd := range sds {
		u := deref(sd.Url)
		if u == "" {
			continue
		}
		idx.byURL[u] = append(idx.byURL[u], sd)
		if v := deref(sd.Version); v != "" {
			idx.byURLAndVersion[u+"|"+v] = sd
		}
	}
	return idx
}

// Lookup returns every definition matching ref, a url or url|version.
func (idx *Index) Lookup(ref string) []*r4.StructureDefinition {
	if ref == "" {
		return nil
	}
	matches := append([]*r4.StructureDefinition(nil), idx.byURL[ref]...)
	if sd, ok := idx.byURLAndVersion[ref]; ok && !contains(matches, sd) {
		matches = append(matches, sd)
	}
	return matches
}

// Len returns the number of indexed urls.
func (idx *Index) Len() int {
	return len(idx.byURL)
}

func contains(sds []*r4.StructureDefinition, sd *r4.StructureDefinition) bool {
	for _, s := range sds {
		if s == sd {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Key returns url|version of sd.
func Key(sd *r4.StructureDefinition) string {
	return deref(sd.Url) + "|" + deref(sd.Version)
}
