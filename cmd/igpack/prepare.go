package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gofhir/igpack"
	"github.com/gofhir/igpack/config"
	"github.com/gofhir/igpack/pkg/logger"
	"github.com/gofhir/igpack/terminology"
)

// prepareOutput is the document written by prepare.
type prepareOutput struct {
	*igpack.Result
	Metrics igpack.Snapshot `json:"metrics"`
}

func newPrepareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prepare [name|version...]",
		Short: "Resolve packages and expand the value sets their profiles bind",
		RunE:  runPrepare,
	}
	cmd.Flags().StringP(config.FlagOutput, "o", "", "write the result to this file instead of stdout")
	return cmd
}

func runPrepare(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	ids, err := rootPackages(cfg)
	if err != nil {
		return err
	}

	client, err := cfg.TerminologyClient()
	if err != nil {
		return err
	}
	caps, err := client.Metadata(ctx)
	if err != nil {
		return fmt.Errorf("connection test against terminology server %s failed: %w", client.BaseURL(), err)
	}
	logger.Info("Connected to terminology server %s (FHIR %s)", client.BaseURL(), caps.FHIRVersion)

	wrap, valueSets, err := cfg.ExpanderWrapper()
	if err != nil {
		return err
	}

	resolver, packages, err := cfg.Resolver()
	if err != nil {
		return err
	}

	metrics := igpack.NewMetrics()
	preparer, err := igpack.New(resolver,
		igpack.WithExpander(terminology.NewStarVersionExpander(client, client)),
		igpack.WithExpanderWrapper(wrap),
		igpack.WithValueSetFallback(cfg.ValueSetFallback(ctx, client)),
		igpack.WithBindingStrengths(cfg.ValueSet.BindingStrengths...),
		igpack.WithMetrics(metrics))
	if err != nil {
		return err
	}

	result, err := preparer.Prepare(ctx, ids)
	if err != nil {
		return err
	}
	metrics.AddCacheStats(packages.Stats())
	metrics.AddCacheStats(valueSets.Stats())

	for _, issue := range result.Warnings() {
		logger.Warn("%s", issue)
	}
	logger.Info("Prepared %d packages: %d value sets expanded, %d warnings",
		len(result.Sets), result.ValueSetCount(), result.WarningCount())

	return writeOutput(cmd.OutOrStdout(), cfg.Output, prepareOutput{Result: result, Metrics: metrics.Snapshot()})
}

func writeOutput(stdout io.Writer, out config.Output, v any) error {
	var (
		data []byte
		err  error
	)
	if out.Pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	data = append(data, '\n')

	if out.File == "" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(out.File, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", out.File, err)
	}
	logger.Info("Wrote result to %s", out.File)
	return nil
}
