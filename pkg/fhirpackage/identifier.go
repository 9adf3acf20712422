// Package fhirpackage models FHIR NPM packages: identifiers, downloaded
// package archives, their descriptors and resolved dependency closures.
package fhirpackage

import (
	"fmt"
	"regexp"
	"strings"
)

// wildcardPattern matches versions of the form MAJOR.MINOR.x.
var wildcardPattern = regexp.MustCompile(`^(\d+\.\d+\.)x$`)

// Identifier names one package version. The zero value is not valid.
type Identifier struct {
	Name    string
	Version string
}

// NewIdentifier creates an Identifier.
func NewIdentifier(name, version string) Identifier {
	return Identifier{Name: name, Version: version}
}

// ParseIdentifier parses the canonical "name|version" form.
func ParseIdentifier(s string) (Identifier, error) {
	parts := strings.Split(strings.TrimSpace(s), "|")
	if len(parts) != 2 {
		return Identifier{}, fmt.Errorf("invalid package identifier %q: expected name|version", s)
	}
	name, version := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if name == "" || version == "" {
		return Identifier{}, fmt.Errorf("invalid package identifier %q: name and version must not be empty", s)
	}
	return Identifier{Name: name, Version: version}, nil
}

// ParseIdentifiers parses a list of "name|version" strings, skipping blanks.
func ParseIdentifiers(list []string) ([]Identifier, error) {
	ids := make([]Identifier, 0, len(list))
	for _, s := range list {
		if strings.TrimSpace(s) == "" {
			continue
		}
		id, err := ParseIdentifier(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// String returns "name|version".
func (id Identifier) String() string {
	return id.Name + "|" + id.Version
}

// IsWildcard reports whether the version has the form MAJOR.MINOR.x.
func (id Identifier) IsWildcard() bool {
	return wildcardPattern.MatchString(id.Version)
}

// WildcardPrefix returns "MAJOR.MINOR." for wildcard versions and "" otherwise.
func (id Identifier) WildcardPrefix() string {
	m := wildcardPattern.FindStringSubmatch(id.Version)
	if m == nil {
		return ""
	}
	return m[1]
}

// WithVersion returns a copy of id with a different version.
func (id Identifier) WithVersion(version string) Identifier {
	return Identifier{Name: id.Name, Version: version}
}
