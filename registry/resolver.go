package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofhir/igpack/pkg/fhirpackage"
	"github.com/gofhir/igpack/pkg/logger"
)

// PackageClient fetches version catalogs and package archives.
type PackageClient interface {
	Catalog(ctx context.Context, name string) (*VersionCatalog, error)
	Download(ctx context.Context, id fhirpackage.Identifier) (*fhirpackage.Package, error)
}

// DefaultNoDownload lists packages assumed to be provided by the caller.
var DefaultNoDownload = []fhirpackage.Identifier{
	{Name: "hl7.fhir.r4.core", Version: "4.0.1"},
}

// ErrExcludedRoot is returned when a root identifier is on the no-download list.
var ErrExcludedRoot = errors.New("package is on the no-download list")

// ResolveError names the package whose download or descriptor failed.
type ResolveError struct {
	Identifier fhirpackage.Identifier
	Err        error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("failed to resolve package %s: %v", e.Identifier, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// Resolver computes the dependency closure of root packages.
type Resolver struct {
	client     PackageClient
	noDownload map[fhirpackage.Identifier]struct{}
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithNoDownload replaces the no-download list.
func WithNoDownload(ids ...fhirpackage.Identifier) ResolverOption {
	return func(r *Resolver) {
		r.noDownload = make(map[fhirpackage.Identifier]struct{}, len(ids))
		for _, id := range ids {
			r.noDownload[id] = struct{}{}
		}
	}
}

// NewResolver creates a Resolver downloading through client.
func NewResolver(client PackageClient, opts ...ResolverOption) *Resolver {
	r := &Resolver{client: client}
	WithNoDownload(DefaultNoDownload...)(r)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// packageMap is an insertion-ordered Identifier -> Package map.
type packageMap struct {
	order []fhirpackage.Identifier
	byID  map[fhirpackage.Identifier]*fhirpackage.Package
}

func newPackageMap() *packageMap {
	return &packageMap{byID: make(map[fhirpackage.Identifier]*fhirpackage.Package)}
}

func (m *packageMap) get(id fhirpackage.Identifier) (*fhirpackage.Package, bool) {
	p, ok := m.byID[id]
	return p, ok
}

func (m *packageMap) put(id fhirpackage.Identifier, p *fhirpackage.Package) bool {
	if _, ok := m.byID[id]; ok {
		return false
	}
	m.byID[id] = p
	m.order = append(m.order, id)
	return true
}

// resolution is the state of one Resolve call, shared across its roots.
type resolution struct {
	global *packageMap
	// edges holds the concrete dependencies of every expanded package.
	edges map[fhirpackage.Identifier][]fhirpackage.Identifier
}

// Resolve returns one ResolvedSet per root, in input order. Packages shared
// between roots are downloaded once. Any download or descriptor failure
// aborts the whole call.
func (r *Resolver) Resolve(ctx context.Context, roots []fhirpackage.Identifier) ([]*fhirpackage.ResolvedSet, error) {
	state := &resolution{
		global: newPackageMap(),
		edges:  make(map[fhirpackage.Identifier][]fhirpackage.Identifier),
	}

	sets := make([]*fhirpackage.ResolvedSet, 0, len(roots))
	for _, root := range roots {
		perRoot := newPackageMap()
		concrete, err := r.resolve(ctx, root, perRoot, state)
		if err != nil {
			return nil, err
		}

		rootPackage, ok := perRoot.get(concrete)
		if !ok {
			return nil, &ResolveError{Identifier: root, Err: ErrExcludedRoot}
		}

		deps := make([]*fhirpackage.Package, 0, len(perRoot.order))
		for _, id := range perRoot.order {
			if id != concrete {
				deps = append(deps, perRoot.byID[id])
			}
		}
		sets = append(sets, fhirpackage.NewResolvedSet(rootPackage, deps))
		logger.Info("Resolved package %s with %d dependencies", concrete, len(deps))
	}
	return sets, nil
}

// ResolveOne resolves a single root.
func (r *Resolver) ResolveOne(ctx context.Context, root fhirpackage.Identifier) (*fhirpackage.ResolvedSet, error) {
	sets, err := r.Resolve(ctx, []fhirpackage.Identifier{root})
	if err != nil {
		return nil, err
	}
	return sets[0], nil
}

func (r *Resolver) excluded(id fhirpackage.Identifier) bool {
	_, ok := r.noDownload[id]
	return ok
}

// resolve adds id and its dependencies to perRoot and returns the concrete
// identifier id was resolved to.
func (r *Resolver) resolve(ctx context.Context, id fhirpackage.Identifier, perRoot *packageMap, state *resolution) (fhirpackage.Identifier, error) {
	if r.reuse(id, perRoot, state) {
		return id, nil
	}
	if r.excluded(id) {
		logger.Debug("Not downloading package %s", id)
		return id, nil
	}

	concrete, err := r.resolveWildcard(ctx, id)
	if err != nil {
		return id, err
	}
	if concrete != id {
		if r.reuse(concrete, perRoot, state) {
			return concrete, nil
		}
		if r.excluded(concrete) {
			logger.Debug("Not downloading package %s (resolved from %s)", concrete, id)
			return concrete, nil
		}
	}

	logger.Debug("Downloading validation package %s", concrete)
	pkg, err := r.client.Download(ctx, concrete)
	if err != nil {
		return concrete, &ResolveError{Identifier: concrete, Err: err}
	}
	descriptor, err := pkg.Descriptor()
	if err != nil {
		return concrete, &ResolveError{Identifier: concrete, Err: err}
	}

	state.global.put(concrete, pkg)
	perRoot.put(concrete, pkg)

	deps := descriptor.DependencyIdentifiers()
	resolvedDeps := make([]fhirpackage.Identifier, 0, len(deps))
	for _, dep := range deps {
		resolvedDep, err := r.resolve(ctx, dep, perRoot, state)
		if err != nil {
			return concrete, err
		}
		resolvedDeps = append(resolvedDeps, resolvedDep)
	}
	state.edges[concrete] = resolvedDeps
	return concrete, nil
}

// reuse registers an already expanded package, and the closure recorded for
// it, in perRoot without downloading anything. It reports whether id was
// already known.
func (r *Resolver) reuse(id fhirpackage.Identifier, perRoot *packageMap, state *resolution) bool {
	pkg, ok := state.global.get(id)
	if !ok {
		return false
	}
	if !perRoot.put(id, pkg) {
		return true
	}
	for _, dep := range state.edges[id] {
		r.reuse(dep, perRoot, state)
	}
	return true
}

func (r *Resolver) resolveWildcard(ctx context.Context, id fhirpackage.Identifier) (fhirpackage.Identifier, error) {
	if !id.IsWildcard() {
		return id, nil
	}

	catalog, err := r.client.Catalog(ctx, id.Name)
	if err != nil {
		return id, &ResolveError{Identifier: id, Err: err}
	}
	concrete, ok := catalog.ResolveWildcard(id)
	if !ok {
		logger.Warn("No version of %s matches %s", id.Name, id.Version)
		return id, nil
	}
	logger.Debug("Resolved %s to %s", id, concrete)
	return concrete, nil
}
