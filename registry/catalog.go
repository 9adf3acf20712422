package registry

import (
	"regexp"
	"strconv"

	"github.com/Masterminds/semver/v3"

	"github.com/gofhir/igpack/pkg/fhirpackage"
)

// VersionCatalog is the registry listing of all versions of one package.
type VersionCatalog struct {
	ID          string                 `json:"_id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	DistTags    DistTags               `json:"dist-tags"`
	Versions    map[string]VersionInfo `json:"versions"`
}

// DistTags holds named version tags.
type DistTags struct {
	Latest string `json:"latest,omitempty"`
}

// VersionInfo describes one published version.
type VersionInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	FHIRVersion string `json:"fhirVersion,omitempty"`
	Version     string `json:"version"`
	Dist        Dist   `json:"dist"`
	URL         string `json:"url,omitempty"`
	Unlisted    string `json:"unlisted,omitempty"`
}

// Dist holds download details of a version.
type Dist struct {
	Shasum  string `json:"shasum,omitempty"`
	Tarball string `json:"tarball,omitempty"`
}

// Latest returns the version tagged latest.
func (c *VersionCatalog) Latest() string {
	return c.DistTags.Latest
}

// TarballURL returns the download URL of version, preferring dist.tarball.
func (c *VersionCatalog) TarballURL(version string) (string, bool) {
	info, ok := c.Versions[version]
	if !ok {
		return "", false
	}
	if info.Dist.Tarball != "" {
		return info.Dist.Tarball, true
	}
	if info.URL != "" {
		return info.URL, true
	}
	return "", false
}

// LatestPatch returns the listed version "prefix<n>" with the largest n.
// prefix must have the form MAJOR.MINOR.
func (c *VersionCatalog) LatestPatch(prefix string) (string, bool) {
	if !prefixPattern.MatchString(prefix) {
		return "", false
	}
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `(\d+)$`)

	var best string
	var bestVersion *semver.Version
	bestPatch := -1
	for v := range c.Versions {
		m := pattern.FindStringSubmatch(v)
		if m == nil {
			continue
		}
		patch, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		parsed, err := semver.NewVersion(v)
		if err != nil {
			continue
		}
		if bestVersion == nil || parsed.GreaterThan(bestVersion) || (parsed.Equal(bestVersion) && patch > bestPatch) {
			best, bestVersion, bestPatch = v, parsed, patch
		}
	}
	return best, bestVersion != nil
}

var prefixPattern = regexp.MustCompile(`^\d+\.\d+\.$`)

// ResolveWildcard maps a MAJOR.MINOR.x identifier onto the latest matching
// listed version. Non-wildcard identifiers and unmatched wildcards are
// returned unchanged with false.
func (c *VersionCatalog) ResolveWildcard(id fhirpackage.Identifier) (fhirpackage.Identifier, bool) {
	if !id.IsWildcard() {
		return id, false
	}
	version, ok := c.LatestPatch(id.WildcardPrefix())
	if !ok {
		return id, false
	}
	return id.WithVersion(version), true
}
