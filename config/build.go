package config

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/igpack/cache"
	"github.com/gofhir/igpack/modifier"
	"github.com/gofhir/igpack/pkg/fhirpackage"
	"github.com/gofhir/igpack/pkg/logger"
	"github.com/gofhir/igpack/pkg/transport"
	"github.com/gofhir/igpack/registry"
	"github.com/gofhir/igpack/snapshot"
	"github.com/gofhir/igpack/terminology"
)

// UserAgent is sent with every request.
var UserAgent = "igpack"

func (c *Config) transportOptions(s Server) transport.Options {
	return transport.Options{
		TrustedCertificates:          s.TrustedCertificates,
		ClientCertificate:            s.ClientCertificate,
		ClientCertificateKey:         s.ClientCertificateKey,
		ClientCertificateKeyPassword: s.ClientCertificateKeyPassword,
		Username:                     s.Username,
		Password:                     s.Password,
		ConnectTimeout:               s.ConnectTimeout,
		ReadTimeout:                  s.ReadTimeout,
		Retries:                      s.Retries,
		UserAgent:                    UserAgent,
		Proxy: transport.Proxy{
			URL:      c.Proxy.URL,
			Username: c.Proxy.Username,
			Password: c.Proxy.Password,
			NoProxy:  c.Proxy.NoProxy,
		},
	}
}

// HTTPClient builds the client for s.
func (c *Config) HTTPClient(s Server) (*http.Client, error) {
	return transport.NewClient(c.transportOptions(s))
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() (logger.Level, error) {
	return logger.ParseLevel(c.Log.Level)
}

// RootPackages parses validation.packages.
func (c *Config) RootPackages() ([]fhirpackage.Identifier, error) {
	return fhirpackage.ParseIdentifiers(c.Validation.Packages)
}

// PackageCache opens the package cache. Archives are stored as is.
func (c *Config) PackageCache() (*cache.Content[*fhirpackage.Package], error) {
	return cache.NewContent(c.Package.CacheFolder, cache.PackageKind,
		cache.WithCodec(cache.Identity(cache.PackageKind.Ext)))
}

// ValueSetCache opens the expanded ValueSet cache.
func (c *Config) ValueSetCache() (*cache.Content[*r4.ValueSet], error) {
	codec, err := cache.ParseCodec(c.Cache.Compression, cache.ValueSetKind.Ext)
	if err != nil {
		return nil, &Error{Key: "cache.compression", Err: err}
	}
	return cache.NewContent(c.ValueSet.CacheFolder, cache.ValueSetKind,
		cache.WithCodec(codec), cache.WithCacheDraft(c.ValueSet.CacheDraftResources))
}

// StructureDefinitionCache opens the snapshot cache.
func (c *Config) StructureDefinitionCache() (*cache.Content[*r4.StructureDefinition], error) {
	codec, err := cache.ParseCodec(c.Cache.Compression, cache.StructureDefinitionKind.Ext)
	if err != nil {
		return nil, &Error{Key: "cache.compression", Err: err}
	}
	return cache.NewContent(c.StructureDefinition.CacheFolder, cache.StructureDefinitionKind,
		cache.WithCodec(codec), cache.WithCacheDraft(c.StructureDefinition.CacheDraftResources))
}

// Resolver builds a package resolver downloading through the configured
// registry and package cache.
func (c *Config) Resolver() (*registry.Resolver, *cache.Content[*fhirpackage.Package], error) {
	httpClient, err := c.HTTPClient(c.Package.Server)
	if err != nil {
		return nil, nil, &Error{Key: "package.server", Err: err}
	}
	packages, err := c.PackageCache()
	if err != nil {
		return nil, nil, err
	}
	noDownload, err := fhirpackage.ParseIdentifiers(c.Package.NoDownload)
	if err != nil {
		return nil, nil, &Error{Key: "package.noDownload", Err: err}
	}

	client := registry.NewClient(registry.WithRegistryURL(c.Package.Server.BaseURL), registry.WithHTTPClient(httpClient))
	return registry.NewResolver(registry.NewCachingClient(client, packages), registry.WithNoDownload(noDownload...)), packages, nil
}

// TerminologyClient builds the terminology server client.
func (c *Config) TerminologyClient() (*terminology.Client, error) {
	s := c.ValueSet.Expansion.Server
	httpClient, err := c.HTTPClient(s)
	if err != nil {
		return nil, &Error{Key: "valueset.expansion.server", Err: err}
	}
	return terminology.NewClient(
		terminology.WithServerURL(s.BaseURL),
		terminology.WithHTTPClient(httpClient),
		terminology.WithVerbose(s.Verbose),
	), nil
}

// ValueSetPipeline builds the configured ValueSet modifiers.
func (c *Config) ValueSetPipeline() (modifier.ValueSetPipeline, error) {
	p, err := modifier.NewRegistry().ValueSetPipeline(c.ValueSet.Modifiers)
	if err != nil {
		return nil, &Error{Key: "valueset.modifiers", Err: err}
	}
	return p, nil
}

// StructureDefinitionPipeline builds the configured StructureDefinition modifiers.
func (c *Config) StructureDefinitionPipeline() (modifier.StructureDefinitionPipeline, error) {
	p, err := modifier.NewRegistry().StructureDefinitionPipeline(c.StructureDefinition.Modifiers)
	if err != nil {
		return nil, &Error{Key: "structuredefinition.modifiers", Err: err}
	}
	return p, nil
}

// ExpanderWrapper returns the decorator applied to every expansion branch:
// the configured modifiers around the expander, the ValueSet cache around
// both.
func (c *Config) ExpanderWrapper() (func(terminology.Expander) terminology.Expander, *cache.Content[*r4.ValueSet], error) {
	pipeline, err := c.ValueSetPipeline()
	if err != nil {
		return nil, nil, err
	}
	valueSets, err := c.ValueSetCache()
	if err != nil {
		return nil, nil, err
	}
	wrap := func(e terminology.Expander) terminology.Expander {
		return terminology.NewCachingExpander(terminology.NewModifyingExpander(e, pipeline), valueSets)
	}
	return wrap, valueSets, nil
}

// SnapshotGenerator wraps engine with the configured StructureDefinition
// modifiers and the snapshot cache. A nil engine yields a nil generator.
func (c *Config) SnapshotGenerator(engine snapshot.Generator) (snapshot.Generator, *cache.Content[*r4.StructureDefinition], error) {
	if engine == nil {
		return nil, nil, nil
	}
	pipeline, err := c.StructureDefinitionPipeline()
	if err != nil {
		return nil, nil, err
	}
	definitions, err := c.StructureDefinitionCache()
	if err != nil {
		return nil, nil, err
	}
	return snapshot.NewCachingGenerator(snapshot.NewModifyingGenerator(engine, pipeline), definitions), definitions, nil
}

// CorePackage is the FHIR R4 core package.
const CorePackage = "hl7.fhir.r4.core"

// CoreValueSetBase is the canonical base of the core package value sets.
const CoreValueSetBase = "http://hl7.org/fhir/ValueSet/"

// ValueSetLookup finds value sets outside the resolved packages.
// *terminology.Client implements it.
type ValueSetLookup interface {
	HasValueSet(ctx context.Context, valueSetURL, version string) (bool, error)
}

// ValueSetFallback returns the lookup for value sets found in no resolved
// package. Core value sets count as known while the core package is
// excluded from download; anything else is asked of lookup, when given.
func (c *Config) ValueSetFallback(ctx context.Context, lookup ValueSetLookup) func(ref string) bool {
	coreExcluded := false
	if ids, err := fhirpackage.ParseIdentifiers(c.Package.NoDownload); err == nil {
		for _, id := range ids {
			if id.Name == CorePackage {
				coreExcluded = true
			}
		}
	}

	return func(ref string) bool {
		valueSetURL, version, _ := strings.Cut(ref, "|")
		if coreExcluded && strings.HasPrefix(valueSetURL, CoreValueSetBase) {
			return true
		}
		if lookup == nil {
			return false
		}
		found, err := lookup.HasValueSet(ctx, valueSetURL, version)
		if err != nil {
			logger.Debug("Lookup of ValueSet %s failed: %v", ref, err)
			return false
		}
		return found
	}
}
