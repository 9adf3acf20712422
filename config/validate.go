package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/gofhir/igpack/cache"
	"github.com/gofhir/igpack/graph"
	"github.com/gofhir/igpack/modifier"
	"github.com/gofhir/igpack/pkg/fhirpackage"
	"github.com/gofhir/igpack/pkg/logger"
)

// Error reports an invalid configuration value.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid configuration %s: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func invalid(key, format string, args ...any) error {
	return &Error{Key: key, Err: fmt.Errorf(format, args...)}
}

// Validate checks every value and prepares the cache folders. It runs
// before any network activity. All problems are reported, joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(validateIdentifiers("validation.packages", c.Validation.Packages))
	add(validateIdentifiers("package.noDownload", c.Package.NoDownload))

	for _, strength := range c.ValueSet.BindingStrengths {
		if !graph.IsBindingStrength(strength) {
			add(invalid("valueset.bindingStrengths", "unknown binding strength %q", strength))
		}
	}

	registry := modifier.NewRegistry()
	if _, err := registry.ValueSetPipeline(c.ValueSet.Modifiers); err != nil {
		add(&Error{Key: "valueset.modifiers", Err: err})
	}
	if _, err := registry.StructureDefinitionPipeline(c.StructureDefinition.Modifiers); err != nil {
		add(&Error{Key: "structuredefinition.modifiers", Err: err})
	}

	if _, err := cache.ParseCodec(c.Cache.Compression, ".json"); err != nil {
		add(&Error{Key: "cache.compression", Err: err})
	}

	add(c.validateServer("package.server", c.Package.Server))
	add(c.validateServer("valueset.expansion.server", c.ValueSet.Expansion.Server))

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		add(&Error{Key: "log.level", Err: err})
	}
	if !strings.EqualFold(c.Output.Format, "json") {
		add(invalid("output.format", "unsupported format %q (supported: json)", c.Output.Format))
	}

	for key, folder := range map[string]string{
		"package.cacheFolder":             c.Package.CacheFolder,
		"valueset.cacheFolder":            c.ValueSet.CacheFolder,
		"structuredefinition.cacheFolder": c.StructureDefinition.CacheFolder,
	} {
		add(prepareFolder(key, folder))
	}

	return errors.Join(errs...)
}

func validateIdentifiers(key string, values []string) error {
	ids, err := fhirpackage.ParseIdentifiers(values)
	if err != nil {
		return &Error{Key: key, Err: err}
	}
	for _, id := range ids {
		if (strings.HasSuffix(id.Version, ".x") || strings.HasSuffix(id.Version, ".*")) && !id.IsWildcard() {
			return invalid(key, "malformed wildcard version in %s (expected MAJOR.MINOR.x)", id)
		}
	}
	return nil
}

func (c *Config) validateServer(key string, s Server) error {
	u, err := url.Parse(s.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid(key+".baseUrl", "expected an http or https url, got %q", s.BaseURL)
	}
	if err := c.transportOptions(s).Validate(); err != nil {
		return &Error{Key: key, Err: err}
	}
	return nil
}

// prepareFolder creates a local cache folder and checks it is writable.
// Storage URLs other than file:// are left to the storage service.
func prepareFolder(key, folder string) error {
	if folder == "" {
		return invalid(key, "must not be empty")
	}
	if strings.Contains(folder, "://") {
		if !strings.HasPrefix(folder, "file://") {
			return nil
		}
		folder = strings.TrimPrefix(folder, "file://")
	}

	if err := os.MkdirAll(folder, 0o755); err != nil {
		return invalid(key, "cannot create %s: %v", folder, err)
	}
	probe, err := os.CreateTemp(folder, ".write-probe-*")
	if err != nil {
		return invalid(key, "%s is not writable: %v", folder, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}
