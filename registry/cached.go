package registry

import (
	"context"

	"github.com/gofhir/igpack/cache"
	"github.com/gofhir/igpack/pkg/fhirpackage"
	"github.com/gofhir/igpack/pkg/logger"
)

// CachingClient serves downloads from a package cache and writes through on
// a miss. Catalog requests are always delegated.
type CachingClient struct {
	delegate PackageClient
	cache    *cache.Content[*fhirpackage.Package]
	guard    cache.Guard[*fhirpackage.Package]
}

// NewCachingClient wraps delegate with c.
func NewCachingClient(delegate PackageClient, c *cache.Content[*fhirpackage.Package]) *CachingClient {
	return &CachingClient{delegate: delegate, cache: c}
}

// Catalog delegates to the wrapped client.
func (c *CachingClient) Catalog(ctx context.Context, name string) (*VersionCatalog, error) {
	return c.delegate.Catalog(ctx, name)
}

// Download returns the cached package or downloads and caches it.
func (c *CachingClient) Download(ctx context.Context, id fhirpackage.Identifier) (*fhirpackage.Package, error) {
	key := c.cache.Key(id.Name, id.Version)
	return c.guard.Do(key, func() (*fhirpackage.Package, error) {
		pkg, ok, err := c.cache.Read(ctx, id.Name, id.Version)
		if err != nil {
			return nil, err
		}
		if ok {
			logger.Debug("Package %s read from cache", id)
			return pkg, nil
		}

		pkg, err = c.delegate.Download(ctx, id)
		if err != nil {
			return nil, err
		}
		return c.cache.Write(ctx, pkg)
	})
}
