// Package config loads the igpack configuration from defaults, an optional
// YAML or properties file, IGPACK_ environment variables and command line
// flags, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gofhir/igpack/graph"
	"github.com/gofhir/igpack/modifier"
	"github.com/gofhir/igpack/pkg/transport"
	"github.com/gofhir/igpack/registry"
	"github.com/gofhir/igpack/terminology"
)

// EnvPrefix prefixes environment overrides, e.g. IGPACK_LOG_LEVEL.
const EnvPrefix = "IGPACK"

// Flag names bound to configuration keys by Load.
const (
	FlagLogLevel = "log-level"
	FlagOutput   = "output"
)

// Config is the complete configuration surface.
type Config struct {
	Validation          Validation          `mapstructure:"validation"`
	Package             Package             `mapstructure:"package"`
	ValueSet            ValueSet            `mapstructure:"valueset"`
	StructureDefinition StructureDefinition `mapstructure:"structuredefinition"`
	Cache               Cache               `mapstructure:"cache"`
	Proxy               Proxy               `mapstructure:"proxy"`
	Log                 Log                 `mapstructure:"log"`
	Output              Output              `mapstructure:"output"`
}

// Validation lists the packages to prepare, as name|version.
type Validation struct {
	Packages []string `mapstructure:"packages"`
}

// Package configures package download and caching.
type Package struct {
	NoDownload  []string `mapstructure:"nodownload"`
	CacheFolder string   `mapstructure:"cachefolder"`
	Server      Server   `mapstructure:"server"`
}

// ValueSet configures value set selection, expansion and caching.
type ValueSet struct {
	BindingStrengths    []string  `mapstructure:"bindingstrengths"`
	CacheFolder         string    `mapstructure:"cachefolder"`
	CacheDraftResources bool      `mapstructure:"cachedraftresources"`
	Expansion           Expansion `mapstructure:"expansion"`
	Modifiers           []string  `mapstructure:"modifiers"`
}

// Expansion configures the terminology server.
type Expansion struct {
	Server Server `mapstructure:"server"`
}

// StructureDefinition configures snapshot caching and modifiers.
type StructureDefinition struct {
	CacheFolder         string   `mapstructure:"cachefolder"`
	CacheDraftResources bool     `mapstructure:"cachedraftresources"`
	Modifiers           []string `mapstructure:"modifiers"`
}

// Cache configures cache encoding.
type Cache struct {
	Compression string `mapstructure:"compression"`
}

// Server configures one remote server connection.
type Server struct {
	BaseURL                      string        `mapstructure:"baseurl"`
	TrustedCertificates          string        `mapstructure:"trustedcertificates"`
	ClientCertificate            string        `mapstructure:"clientcertificate"`
	ClientCertificateKey         string        `mapstructure:"clientcertificatekey"`
	ClientCertificateKeyPassword string        `mapstructure:"clientcertificatekeypassword"`
	Username                     string        `mapstructure:"username"`
	Password                     string        `mapstructure:"password"`
	ConnectTimeout               time.Duration `mapstructure:"connecttimeout"`
	ReadTimeout                  time.Duration `mapstructure:"readtimeout"`
	Retries                      int           `mapstructure:"retries"`
	Verbose                      bool          `mapstructure:"verbose"`
}

// Proxy configures the outbound proxy shared by all servers.
type Proxy struct {
	URL      string   `mapstructure:"url"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	NoProxy  []string `mapstructure:"noproxy"`
}

// Log configures logging.
type Log struct {
	Level string `mapstructure:"level"`
}

// Output configures how results are written.
type Output struct {
	Format string `mapstructure:"format"`
	Pretty bool   `mapstructure:"pretty"`
	// File receives the result; empty means stdout.
	File string `mapstructure:"file"`
}

// DefaultCacheRoot is the parent of the default cache folders.
func DefaultCacheRoot() string {
	return filepath.Join(os.TempDir(), "igpack_cache")
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	root := DefaultCacheRoot()
	server := func(baseURL string) Server {
		return Server{
			BaseURL:        baseURL,
			ConnectTimeout: transport.DefaultConnectTimeout,
			ReadTimeout:    transport.DefaultReadTimeout,
			Retries:        2,
		}
	}
	noDownload := make([]string, 0, len(registry.DefaultNoDownload))
	for _, id := range registry.DefaultNoDownload {
		noDownload = append(noDownload, id.String())
	}

	return &Config{
		Package: Package{
			NoDownload:  noDownload,
			CacheFolder: filepath.Join(root, "Package"),
			Server:      server(registry.DefaultRegistryURL),
		},
		ValueSet: ValueSet{
			BindingStrengths:    append([]string(nil), graph.BindingStrengths...),
			CacheFolder:         filepath.Join(root, "ValueSet"),
			CacheDraftResources: true,
			Expansion:           Expansion{Server: server(terminology.DefaultServerURL)},
			Modifiers:           []string{modifier.VersionIncluderName},
		},
		StructureDefinition: StructureDefinition{
			CacheFolder:         filepath.Join(root, "StructureDefinition"),
			CacheDraftResources: true,
			Modifiers:           []string{modifier.ClosedTypeSlicingRemoverName, modifier.SliceMinFixerName},
		},
		Cache:  Cache{Compression: "gzip"},
		Log:    Log{Level: "info"},
		Output: Output{Format: "json", Pretty: true},
	}
}

func setServerDefaults(v *viper.Viper, prefix string, s Server) {
	v.SetDefault(prefix+".baseUrl", s.BaseURL)
	v.SetDefault(prefix+".trustedCertificates", s.TrustedCertificates)
	v.SetDefault(prefix+".clientCertificate", s.ClientCertificate)
	v.SetDefault(prefix+".clientCertificateKey", s.ClientCertificateKey)
	v.SetDefault(prefix+".clientCertificateKeyPassword", s.ClientCertificateKeyPassword)
	v.SetDefault(prefix+".username", s.Username)
	v.SetDefault(prefix+".password", s.Password)
	v.SetDefault(prefix+".connectTimeout", s.ConnectTimeout)
	v.SetDefault(prefix+".readTimeout", s.ReadTimeout)
	v.SetDefault(prefix+".retries", s.Retries)
	v.SetDefault(prefix+".verbose", s.Verbose)
}

func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()
	v.SetDefault("validation.packages", defaults.Validation.Packages)
	v.SetDefault("package.noDownload", defaults.Package.NoDownload)
	v.SetDefault("package.cacheFolder", defaults.Package.CacheFolder)
	setServerDefaults(v, "package.server", defaults.Package.Server)
	v.SetDefault("valueset.bindingStrengths", defaults.ValueSet.BindingStrengths)
	v.SetDefault("valueset.cacheFolder", defaults.ValueSet.CacheFolder)
	v.SetDefault("valueset.cacheDraftResources", defaults.ValueSet.CacheDraftResources)
	setServerDefaults(v, "valueset.expansion.server", defaults.ValueSet.Expansion.Server)
	v.SetDefault("valueset.modifiers", defaults.ValueSet.Modifiers)
	v.SetDefault("structuredefinition.cacheFolder", defaults.StructureDefinition.CacheFolder)
	v.SetDefault("structuredefinition.cacheDraftResources", defaults.StructureDefinition.CacheDraftResources)
	v.SetDefault("structuredefinition.modifiers", defaults.StructureDefinition.Modifiers)
	v.SetDefault("cache.compression", defaults.Cache.Compression)
	v.SetDefault("proxy.url", defaults.Proxy.URL)
	v.SetDefault("proxy.username", defaults.Proxy.Username)
	v.SetDefault("proxy.password", defaults.Proxy.Password)
	v.SetDefault("proxy.noProxy", defaults.Proxy.NoProxy)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("output.format", defaults.Output.Format)
	v.SetDefault("output.pretty", defaults.Output.Pretty)
	v.SetDefault("output.file", defaults.Output.File)
}

// Load reads the configuration. path may be empty; flags may be nil. Only
// flags that were set on the command line override other sources.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &Error{Key: "config", Err: fmt.Errorf("failed to read config file %s: %w", path, err)}
		}
	}

	if flags != nil {
		for key, name := range map[string]string{"log.level": FlagLogLevel, "output.file": FlagOutput} {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, &Error{Key: key, Err: err}
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &Error{Key: "config", Err: fmt.Errorf("failed to decode configuration: %w", err)}
	}
	return &cfg, nil
}
