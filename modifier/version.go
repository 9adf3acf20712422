package modifier

import (
	"strings"

	"github.com/gofhir/fhir/r4"
)

// VersionIncluder fills in the version of expansion entries that lack one.
// The version is taken from the expansion's "version" parameters
// (system|version) or, failing that, from the single compose include of the
// entry's system that lists its code. Ambiguous entries stay unversioned.
type VersionIncluder struct {
	PassThrough
}

// PostExpansion implements ValueSetModifier.
func (VersionIncluder) PostExpansion(original, expanded *r4.ValueSet) *r4.ValueSet {
	if expanded == nil || expanded.Expansion == nil || !anyUnversioned(expanded.Expansion.Contains) {
		return expanded
	}

	versions := expansionVersions(expanded.Expansion)
	fillVersions(expanded.Expansion.Contains, func(system, code string) string {
		if v, ok := versions[system]; ok && v != "" {
			return v
		}
		return includeVersion(original, system, code)
	})
	return expanded
}

func anyUnversioned(contains []r4.ValueSetExpansionContains) bool {
	for i := range contains {
		if contains[i].Version == nil || anyUnversioned(contains[i].Contains) {
			return true
		}
	}
	return false
}

// expansionVersions maps system to version. Systems declared more than once
// map to "".
func expansionVersions(expansion *r4.ValueSetExpansion) map[string]string {
	versions := make(map[string]string)
	for _, p := range expansion.Parameter {
		if deref(p.Name) != "version" || p.ValueUri == nil {
			continue
		}
		parts := strings.Split(*p.ValueUri, "|")
		if len(parts) != 2 {
			continue
		}
		if _, dup := versions[parts[0]]; dup {
			versions[parts[0]] = ""
			continue
		}
		versions[parts[0]] = parts[1]
	}
	return versions
}

func fillVersions(contains []r4.ValueSetExpansionContains, lookup func(system, code string) string) {
	for i := range contains {
		c := &contains[i]
		if c.Version == nil {
			if v := lookup(deref(c.System), deref(c.Code)); v != "" {
				c.Version = &v
			}
		}
		fillVersions(c.Contains, lookup)
	}
}

func includeVersion(vs *r4.ValueSet, system, code string) string {
	if vs == nil || vs.Compose == nil {
		return ""
	}
	var matches []string
	for i := range vs.Compose.Include {
		include := &vs.Compose.Include[i]
		if deref(include.System) != system {
			continue
		}
		for _, concept := range include.Concept {
			if deref(concept.Code) == code {
				matches = append(matches, deref(include.Version))
				break
			}
		}
	}
	if len(matches) != 1 {
		return ""
	}
	return matches[0]
}
