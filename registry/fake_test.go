package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gofhir/igpack/pkg/fhirpackage"
)

// fakeRegistry serves in-memory packages and counts downloads.
type fakeRegistry struct {
	mu        sync.Mutex
	packages  map[fhirpackage.Identifier]*fhirpackage.Package
	catalogs  map[string]*VersionCatalog
	downloads map[fhirpackage.Identifier]int
	failing   map[fhirpackage.Identifier]error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		packages:  map[fhirpackage.Identifier]*fhirpackage.Package{},
		catalogs:  map[string]*VersionCatalog{},
		downloads: map[fhirpackage.Identifier]int{},
		failing:   map[fhirpackage.Identifier]error{},
	}
}

// add registers name|version with the given "name|version" dependencies.
func (f *fakeRegistry) add(id string, deps ...string) *fakeRegistry {
	parsed, err := fhirpackage.ParseIdentifier(id)
	if err != nil {
		panic(err)
	}
	dependencies := map[string]string{}
	for _, d := range deps {
		dep, err := fhirpackage.ParseIdentifier(d)
		if err != nil {
			panic(err)
		}
		dependencies[dep.Name] = dep.Version
	}
	descriptor, _ := json.Marshal(fhirpackage.Descriptor{Name: parsed.Name, Version: parsed.Version, Dependencies: dependencies})

	f.packages[parsed] = fhirpackage.New(parsed, []fhirpackage.Entry{{Name: fhirpackage.DescriptorEntry, Data: descriptor}})
	catalog, ok := f.catalogs[parsed.Name]
	if !ok {
		catalog = &VersionCatalog{ID: parsed.Name, Name: parsed.Name, Versions: map[string]VersionInfo{}}
		f.catalogs[parsed.Name] = catalog
	}
	catalog.Versions[parsed.Version] = VersionInfo{Name: parsed.Name, Version: parsed.Version}
	return f
}

func (f *fakeRegistry) Catalog(_ context.Context, name string) (*VersionCatalog, error) {
	c, ok := f.catalogs[name]
	if !ok {
		return nil, &StatusError{URL: name, StatusCode: 404}
	}
	return c, nil
}

func (f *fakeRegistry) Download(_ context.Context, id fhirpackage.Identifier) (*fhirpackage.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads[id]++
	if err, ok := f.failing[id]; ok {
		return nil, err
	}
	p, ok := f.packages[id]
	if !ok {
		return nil, fmt.Errorf("package %s not found: %w", id, &StatusError{URL: id.String(), StatusCode: 404})
	}
	return p, nil
}

func (f *fakeRegistry) downloadCount(id string) int {
	parsed, _ := fhirpackage.ParseIdentifier(id)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads[parsed]
}

func (f *fakeRegistry) totalDownloads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.downloads {
		total += n
	}
	return total
}
