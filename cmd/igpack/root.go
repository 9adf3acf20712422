package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gofhir/igpack/config"
	"github.com/gofhir/igpack/pkg/fhirpackage"
	"github.com/gofhir/igpack/pkg/logger"
)

const usage = `igpack resolves FHIR implementation guide packages with their
dependency closure and prepares them for validation: the value sets bound
by the package profiles are expanded and cached.

Examples:
  igpack resolve de.medizininformatikinitiative.kerndatensatz.person|2025.0.0
  igpack prepare --output prepared.json
  igpack ping`

// cfgFile is the optional configuration file given with --config
var cfgFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "igpack",
		Short:         "Resolve and prepare FHIR validation packages",
		Long:          usage,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file (yaml or properties)")
	root.PersistentFlags().String(config.FlagLogLevel, "", "log level: debug, info, warn, error, none")

	root.AddCommand(newResolveCmd())
	root.AddCommand(newPrepareCmd())
	root.AddCommand(newPingCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// loadConfig loads and validates the configuration of cmd. Positional
// identifiers replace validation.packages.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if len(args) > 0 {
		cfg.Validation.Packages = args
	}

	level, err := cfg.LogLevel()
	if err != nil {
		return nil, &config.Error{Key: "log.level", Err: err}
	}
	logger.SetLevel(level)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func rootPackages(cfg *config.Config) ([]fhirpackage.Identifier, error) {
	ids, err := cfg.RootPackages()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no packages given, pass name|version arguments or set validation.packages")
	}
	return ids, nil
}
