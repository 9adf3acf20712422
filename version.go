package igpack

// Version of igpack, reported by the CLI.
var Version = "0.1.0"

// FHIRVersion represents a FHIR specification version.
type FHIRVersion string

// Supported FHIR versions.
const (
	// R4 is FHIR Release 4 (4.0.1)
	R4 FHIRVersion = "R4"
)

// String returns the version string.
func (v FHIRVersion) String() string {
	return string(v)
}

// IsValid returns true if this is a supported FHIR version.
func (v FHIRVersion) IsValid() bool {
	_, ok := versionConfigs[v]
	return ok
}

// versionConfig holds version-specific configuration.
type versionConfig struct {
	// FHIRVersionString is the version string used in package descriptors
	FHIRVersionString string
}

var versionConfigs = map[FHIRVersion]versionConfig{
	R4: {FHIRVersionString: "4.0.1"},
}

// getVersionConfig returns the configuration for a FHIR version.
func getVersionConfig(v FHIRVersion) (versionConfig, bool) {
	cfg, ok := versionConfigs[v]
	return cfg, ok
}
