package terminology

import (
	"context"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/igpack/cache"
	"github.com/gofhir/igpack/modifier"
	"github.com/gofhir/igpack/pkg/logger"
)

// Expander expands ValueSets.
type Expander interface {
	Expand(ctx context.Context, vs *r4.ValueSet) (*r4.ValueSet, error)
}

// ExpanderFunc adapts a function to Expander.
type ExpanderFunc func(ctx context.Context, vs *r4.ValueSet) (*r4.ValueSet, error)

// Expand calls f(ctx, vs).
func (f ExpanderFunc) Expand(ctx context.Context, vs *r4.ValueSet) (*r4.ValueSet, error) {
	return f(ctx, vs)
}

// CodeSystemVersions lists the versions of a CodeSystem known to a server.
type CodeSystemVersions interface {
	SupportedCodeSystemVersions(ctx context.Context, csURL string) ([]URLAndVersion, error)
}

// StarVersionExpander expands ValueSets with a single include of version
// "*" once per known version of the included CodeSystem and merges the
// results. Every other ValueSet goes to the delegate unchanged.
type StarVersionExpander struct {
	delegate Expander
	versions CodeSystemVersions
}

// NewStarVersionExpander creates a StarVersionExpander.
func NewStarVersionExpander(delegate Expander, versions CodeSystemVersions) *StarVersionExpander {
	return &StarVersionExpander{delegate: delegate, versions: versions}
}

// Expand implements Expander.
func (e *StarVersionExpander) Expand(ctx context.Context, vs *r4.ValueSet) (*r4.ValueSet, error) {
	system, ok := starSystem(vs)
	if !ok {
		return e.delegate.Expand(ctx, vs)
	}

	versions, err := e.versions.SupportedCodeSystemVersions(ctx, system)
	if err != nil {
		return nil, err
	}
	sortVersions(versions)

	out, err := modifier.Clone(vs)
	if err != nil {
		return nil, err
	}
	out.Expansion = &r4.ValueSetExpansion{}

	for _, v := range versions {
		logger.Debug("Expanding ValueSet %s|%s with version wildcard include for CodeSystem %s|%s",
			deref(vs.Url), deref(vs.Version), v.URL, v.Version)

		single, err := modifier.Clone(vs)
		if err != nil {
			return nil, err
		}
		single.Compose.Include = single.Compose.Include[:1]
		include := &single.Compose.Include[0]
		version := v.Version
		include.System = &system
		include.Version = &version
		include.Concept = nil
		include.Filter = nil
		include.ValueSet = nil

		expanded, err := e.delegate.Expand(ctx, single)
		if err != nil {
			return nil, err
		}
		if expanded.Expansion == nil {
			continue
		}
		for i := range expanded.Expansion.Contains {
			expanded.Expansion.Contains[i].Version = &version
		}
		out.Expansion.Contains = append(out.Expansion.Contains, expanded.Expansion.Contains...)
	}
	return out, nil
}

// starSystem returns the system of the only include when its version is "*".
func starSystem(vs *r4.ValueSet) (string, bool) {
	if vs == nil || vs.Compose == nil || len(vs.Compose.Include) != 1 {
		return "", false
	}
	include := vs.Compose.Include[0]
	if deref(include.Version) != "*" || deref(include.System) == "" {
		return "", false
	}
	return *include.System, true
}

// sortVersions orders semantic versions numerically and everything else lexically.
func sortVersions(versions []URLAndVersion) {
	sort.SliceStable(versions, func(i, j int) bool {
		a, errA := semver.NewVersion(versions[i].Version)
		b, errB := semver.NewVersion(versions[j].Version)
		if errA == nil && errB == nil {
			return a.LessThan(b)
		}
		return versions[i].Version < versions[j].Version
	})
}

// ModifyingExpander runs a modifier pipeline around its delegate.
type ModifyingExpander struct {
	delegate Expander
	pipeline modifier.ValueSetPipeline
}

// NewModifyingExpander creates a ModifyingExpander.
func NewModifyingExpander(delegate Expander, pipeline modifier.ValueSetPipeline) *ModifyingExpander {
	return &ModifyingExpander{delegate: delegate, pipeline: pipeline}
}

// Expand implements Expander.
func (e *ModifyingExpander) Expand(ctx context.Context, vs *r4.ValueSet) (*r4.ValueSet, error) {
	modified, err := e.pipeline.PreExpansion(vs)
	if err != nil {
		return nil, err
	}
	expanded, err := e.delegate.Expand(ctx, modified)
	if err != nil {
		return nil, err
	}
	return e.pipeline.PostExpansion(modified, expanded)
}

// CachingExpander serves expansions from a ValueSet cache and writes
// through on a miss. ValueSets without url or version bypass the cache.
type CachingExpander struct {
	delegate Expander
	cache    *cache.Content[*r4.ValueSet]
	guard    cache.Guard[*r4.ValueSet]
}

// NewCachingExpander creates a CachingExpander.
func NewCachingExpander(delegate Expander, c *cache.Content[*r4.ValueSet]) *CachingExpander {
	return &CachingExpander{delegate: delegate, cache: c}
}

// Expand implements Expander.
func (e *CachingExpander) Expand(ctx context.Context, vs *r4.ValueSet) (*r4.ValueSet, error) {
	if vs.Expansion != nil {
		logger.Debug("ValueSet %s|%s already expanded", deref(vs.Url), deref(vs.Version))
		return vs, nil
	}

	key := e.cache.Kind().KeyOf(vs)
	if err := key.Validate(); err != nil {
		logger.Debug("Not caching expansion: %v", err)
		return e.delegate.Expand(ctx, vs)
	}

	return e.guard.Do(key, func() (*r4.ValueSet, error) {
		cached, ok, err := e.cache.Read(ctx, key.URL, key.Version)
		if err != nil {
			return nil, err
		}
		if ok {
			return cached, nil
		}

		expanded, err := e.delegate.Expand(ctx, vs)
		if err != nil {
			return nil, err
		}
		if err := e.cache.Kind().KeyOf(expanded).Validate(); err != nil {
			logger.Debug("Not caching expansion of %s: %v", key, err)
			return expanded, nil
		}
		return e.cache.Write(ctx, expanded)
	})
}
