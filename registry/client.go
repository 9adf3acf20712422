// Package registry downloads FHIR packages from an npm-style package
// registry and resolves their transitive dependency closure.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofhir/igpack/cache"
	"github.com/gofhir/igpack/pkg/fhirpackage"
	"github.com/gofhir/igpack/pkg/logger"
)

const (
	// DefaultRegistryURL is the package server used when none is configured.
	DefaultRegistryURL = "https://packages.simplifier.net"

	// DefaultTimeout for HTTP requests.
	DefaultTimeout = 5 * time.Minute

	catalogCacheSize = 64
)

// StatusError reports a non-2xx registry response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("registry request %s failed: status %d", e.URL, e.StatusCode)
}

// Client is a package registry client.
type Client struct {
	httpClient  *http.Client
	registryURL string
	catalogs    *cache.Memory[string, *VersionCatalog]
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithRegistryURL sets a custom registry URL.
func WithRegistryURL(u string) ClientOption {
	return func(c *Client) {
		c.registryURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new registry client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		registryURL: DefaultRegistryURL,
		catalogs:    cache.NewMemory[string, *VersionCatalog](catalogCacheSize),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// RegistryURL returns the registry base URL.
func (c *Client) RegistryURL() string {
	return c.registryURL
}

// Catalog fetches the version listing of a package. Listings are memoized
// for the lifetime of the client.
func (c *Client) Catalog(ctx context.Context, name string) (*VersionCatalog, error) {
	if catalog, ok := c.catalogs.Get(name); ok {
		return catalog, nil
	}

	catalogURL := c.registryURL + "/" + url.PathEscape(name)
	body, err := c.get(ctx, catalogURL, "application/json")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch versions of %s: %w", name, err)
	}
	defer body.Close()

	var catalog VersionCatalog
	if err := json.NewDecoder(body).Decode(&catalog); err != nil {
		return nil, fmt.Errorf("failed to decode versions of %s: %w", name, err)
	}

	c.catalogs.Set(name, &catalog)
	return &catalog, nil
}

// Download fetches the archive of id. The tarball URL is taken from the
// catalog when the version is listed there, else {registry}/{name}/{version}.
func (c *Client) Download(ctx context.Context, id fhirpackage.Identifier) (*fhirpackage.Package, error) {
	tarballURL := c.registryURL + "/" + url.PathEscape(id.Name) + "/" + url.PathEscape(id.Version)
	if catalog, err := c.Catalog(ctx, id.Name); err != nil {
		logger.Debug("No catalog for %s, downloading %s directly: %v", id.Name, tarballURL, err)
	} else if listed, ok := catalog.TarballURL(id.Version); ok {
		tarballURL = listed
	}

	logger.Info("Downloading package %s from %s", id, tarballURL)
	body, err := c.get(ctx, tarballURL, "application/tar+gzip, application/gzip, application/octet-stream")
	if err != nil {
		return nil, fmt.Errorf("failed to download package %s: %w", id, err)
	}
	defer body.Close()

	return fhirpackage.ReadArchive(id, body)
}

func (c *Client) get(ctx context.Context, target, accept string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &StatusError{URL: target, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}
