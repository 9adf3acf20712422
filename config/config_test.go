package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofhir/fhir/r4"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gofhir/igpack/modifier"
	"github.com/gofhir/igpack/snapshot"
	"github.com/gofhir/igpack/terminology"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func withTempFolders(t *testing.T, cfg *Config) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg.Package.CacheFolder = filepath.Join(dir, "Package")
	cfg.ValueSet.CacheFolder = filepath.Join(dir, "ValueSet")
	cfg.StructureDefinition.CacheFolder = filepath.Join(dir, "StructureDefinition")
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Validation.Packages)
	assert.Equal(t, DefaultConfig().Package.CacheFolder, cfg.Package.CacheFolder)
	assert.Equal(t, []string{"hl7.fhir.r4.core|4.0.1"}, cfg.Package.NoDownload)
	assert.Equal(t, "https://packages.simplifier.net", cfg.Package.Server.BaseURL)
	assert.Equal(t, []string{"required", "extensible", "preferred", "example"}, cfg.ValueSet.BindingStrengths)
	assert.Equal(t, []string{modifier.VersionIncluderName}, cfg.ValueSet.Modifiers)
	assert.Equal(t, 10*time.Second, cfg.ValueSet.Expansion.Server.ConnectTimeout)
	assert.True(t, cfg.Output.Pretty)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "igpack.yaml", `
validation:
  packages:
    - de.medizininformatikinitiative.kerndatensatz.person|2024.0.0
package:
  noDownload: []
  server:
    baseUrl: https://packages.example.org
    readTimeout: 30s
valueset:
  bindingStrengths: [required]
  expansion:
    server:
      username: tx
      password: secret
cache:
  compression: zstd
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"de.medizininformatikinitiative.kerndatensatz.person|2024.0.0"}, cfg.Validation.Packages)
	assert.Empty(t, cfg.Package.NoDownload)
	assert.Equal(t, "https://packages.example.org", cfg.Package.Server.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Package.Server.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Package.Server.ConnectTimeout)
	assert.Equal(t, []string{"required"}, cfg.ValueSet.BindingStrengths)
	assert.Equal(t, "tx", cfg.ValueSet.Expansion.Server.Username)
	assert.Equal(t, "zstd", cfg.Cache.Compression)
}

func TestLoad_EnvAndFlags(t *testing.T) {
	t.Setenv("IGPACK_LOG_LEVEL", "warn")
	t.Setenv("IGPACK_VALUESET_EXPANSION_SERVER_BASEURL", "https://tx.example.org/fhir")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "https://tx.example.org/fhir", cfg.ValueSet.Expansion.Server.BaseURL)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String(FlagLogLevel, "info", "")
	flags.String(FlagOutput, "", "")
	require.NoError(t, flags.Parse([]string{"--log-level", "debug"}))

	cfg, err = Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Empty(t, cfg.Output.File)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
}

func TestValidate(t *testing.T) {
	var useCases = []struct {
		description string
		modify      func(c *Config)
		expectKey   string
	}{
		{description: "defaults", modify: func(c *Config) {}},
		{description: "packages", modify: func(c *Config) { c.Validation.Packages = []string{"a|1.0.0", "b|1.2.x"} }},
		{description: "non semantic version", modify: func(c *Config) { c.Validation.Packages = []string{"a|current"} }},
		{description: "malformed identifier", modify: func(c *Config) { c.Validation.Packages = []string{"a"} }, expectKey: "validation.packages"},
		{description: "malformed wildcard", modify: func(c *Config) { c.Validation.Packages = []string{"a|1.x"} }, expectKey: "validation.packages"},
		{description: "malformed no download", modify: func(c *Config) { c.Package.NoDownload = []string{"core"} }, expectKey: "package.noDownload"},
		{description: "binding strength", modify: func(c *Config) { c.ValueSet.BindingStrengths = []string{"mandatory"} }, expectKey: "valueset.bindingStrengths"},
		{description: "value set modifier", modify: func(c *Config) { c.ValueSet.Modifiers = []string{"unknown"} }, expectKey: "valueset.modifiers"},
		{description: "structure definition modifier", modify: func(c *Config) {
			c.StructureDefinition.Modifiers = []string{modifier.VersionIncluderName}
		}, expectKey: "structuredefinition.modifiers"},
		{description: "compression", modify: func(c *Config) { c.Cache.Compression = "brotli" }, expectKey: "cache.compression"},
		{description: "server url", modify: func(c *Config) { c.Package.Server.BaseURL = "packages" }, expectKey: "package.server.baseUrl"},
		{description: "conflicting auth", modify: func(c *Config) { c.ValueSet.Expansion.Server.Username = "tx" }, expectKey: "valueset.expansion.server"},
		{description: "log level", modify: func(c *Config) { c.Log.Level = "loud" }, expectKey: "log.level"},
		{description: "output format", modify: func(c *Config) { c.Output.Format = "xml" }, expectKey: "output.format"},
		{description: "empty cache folder", modify: func(c *Config) { c.ValueSet.CacheFolder = "" }, expectKey: "valueset.cacheFolder"},
	}

	for _, useCase := range useCases {
		cfg := withTempFolders(t, DefaultConfig())
		useCase.modify(cfg)
		err := cfg.Validate()
		if useCase.expectKey == "" {
			assert.NoError(t, err, useCase.description)
			continue
		}
		var cfgErr *Error
		require.ErrorAs(t, err, &cfgErr, useCase.description)
		assert.Equal(t, useCase.expectKey, cfgErr.Key, useCase.description)
	}
}

func TestValidate_CreatesCacheFolders(t *testing.T) {
	cfg := withTempFolders(t, DefaultConfig())
	require.NoError(t, cfg.Validate())
	for _, folder := range []string{cfg.Package.CacheFolder, cfg.ValueSet.CacheFolder, cfg.StructureDefinition.CacheFolder} {
		info, err := os.Stat(folder)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestValidate_UnwritableCacheFolder(t *testing.T) {
	cfg := withTempFolders(t, DefaultConfig())
	cfg.Package.CacheFolder = writeFile(t, "not-a-folder", "x")
	var cfgErr *Error
	require.ErrorAs(t, cfg.Validate(), &cfgErr)
	assert.Equal(t, "package.cacheFolder", cfgErr.Key)
}

func TestBuilders(t *testing.T) {
	cfg := withTempFolders(t, DefaultConfig())
	cfg.Cache.Compression = "zstd"
	require.NoError(t, cfg.Validate())

	resolver, packages, err := cfg.Resolver()
	require.NoError(t, err)
	assert.NotNil(t, resolver)
	assert.True(t, strings.HasSuffix(packages.Path(packages.Key("a", "1.0.0")), ".tgz"))

	valueSets, err := cfg.ValueSetCache()
	require.NoError(t, err)
	assert.Contains(t, valueSets.Path(valueSets.Key("http://example.org/vs", "1")), ".json.zst")

	client, err := cfg.TerminologyClient()
	require.NoError(t, err)
	assert.Equal(t, "https://ontoserver.mii-termserv.de/fhir", client.BaseURL())

	vsPipeline, err := cfg.ValueSetPipeline()
	require.NoError(t, err)
	assert.Len(t, vsPipeline, 1)
	sdPipeline, err := cfg.StructureDefinitionPipeline()
	require.NoError(t, err)
	assert.Len(t, sdPipeline, 2)
}

func TestExpanderWrapper(t *testing.T) {
	cfg := withTempFolders(t, DefaultConfig())
	require.NoError(t, cfg.Validate())

	wrap, valueSets, err := cfg.ExpanderWrapper()
	require.NoError(t, err)

	var calls int
	expander := wrap(terminology.ExpanderFunc(func(_ context.Context, vs *r4.ValueSet) (*r4.ValueSet, error) {
		calls++
		out, err := modifier.Clone(vs)
		if err != nil {
			return nil, err
		}
		code := "m"
		out.Expansion = &r4.ValueSetExpansion{Contains: []r4.ValueSetExpansionContains{{Code: &code}}}
		return out, nil
	}))

	u, v := "http://example.org/vs/gender", "1.0.0"
	for i := 0; i < 2; i++ {
		_, err := expander.Expand(context.Background(), &r4.ValueSet{Url: &u, Version: &v})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(1), valueSets.Stats().Writes)
	assert.Equal(t, uint64(1), valueSets.Stats().Hits)
}

func TestSnapshotGenerator(t *testing.T) {
	cfg := withTempFolders(t, DefaultConfig())
	require.NoError(t, cfg.Validate())

	generator, definitions, err := cfg.SnapshotGenerator(nil)
	require.NoError(t, err)
	assert.Nil(t, generator)
	assert.Nil(t, definitions)

	var calls int
	engine := snapshot.GeneratorFunc(func(_ context.Context, sd *r4.StructureDefinition, _ snapshot.Definitions) (*snapshot.Result, error) {
		calls++
		out, err := modifier.Clone(sd)
		if err != nil {
			return nil, err
		}
		out.Snapshot = &r4.StructureDefinitionSnapshot{Element: out.Differential.Element}
		return &snapshot.Result{Definition: out}, nil
	})
	generator, definitions, err = cfg.SnapshotGenerator(engine)
	require.NoError(t, err)

	var sd r4.StructureDefinition
	require.NoError(t, json.Unmarshal([]byte(`{
		"resourceType": "StructureDefinition",
		"url": "http://example.org/sd/patient",
		"version": "1.0.0",
		"status": "active",
		"type": "Patient",
		"differential": {"element": [{"id": "Patient", "path": "Patient"}]}
	}`), &sd))
	for i := 0; i < 2; i++ {
		result, err := generator.Generate(context.Background(), &sd, nil)
		require.NoError(t, err)
		assert.True(t, snapshot.HasSnapshot(result.Definition))
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(1), definitions.Stats().Writes)
}

type fakeLookup struct {
	known map[string]bool
	err   error
	asked []string
}

func (f *fakeLookup) HasValueSet(_ context.Context, valueSetURL, version string) (bool, error) {
	f.asked = append(f.asked, valueSetURL+"|"+version)
	return f.known[valueSetURL], f.err
}

func TestValueSetFallback(t *testing.T) {
	var useCases = []struct {
		description string
		noDownload  []string
		lookup      *fakeLookup
		ref         string
		expect      bool
		expectAsked int
	}{
		{description: "core excluded", noDownload: []string{"hl7.fhir.r4.core|4.0.1"}, ref: "http://hl7.org/fhir/ValueSet/administrative-gender|4.0.1", expect: true},
		{description: "core downloaded", noDownload: nil, ref: "http://hl7.org/fhir/ValueSet/administrative-gender|4.0.1"},
		{description: "server knows", lookup: &fakeLookup{known: map[string]bool{"http://example.org/vs/a": true}}, ref: "http://example.org/vs/a|1.0.0", expect: true, expectAsked: 1},
		{description: "server does not know", lookup: &fakeLookup{}, ref: "http://example.org/vs/b", expectAsked: 1},
		{description: "server fails", lookup: &fakeLookup{known: map[string]bool{"http://example.org/vs/a": true}, err: errors.New("down")}, ref: "http://example.org/vs/a", expectAsked: 1},
		{description: "core not asked", noDownload: []string{"hl7.fhir.r4.core|4.0.1"}, lookup: &fakeLookup{}, ref: "http://hl7.org/fhir/ValueSet/languages", expect: true},
	}

	for _, useCase := range useCases {
		cfg := DefaultConfig()
		cfg.Package.NoDownload = useCase.noDownload
		var lookup ValueSetLookup
		if useCase.lookup != nil {
			lookup = useCase.lookup
		}
		known := cfg.ValueSetFallback(context.Background(), lookup)
		assert.Equal(t, useCase.expect, known(useCase.ref), useCase.description)
		if useCase.lookup != nil {
			assert.Len(t, useCase.lookup.asked, useCase.expectAsked, useCase.description)
		}
	}
}
