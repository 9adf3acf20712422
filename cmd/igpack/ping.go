package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gofhir/igpack"
)

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Show the terminology server metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, args)
			if err != nil {
				return err
			}
			client, err := cfg.TerminologyClient()
			if err != nil {
				return err
			}
			caps, err := client.Metadata(cmd.Context())
			if err != nil {
				return fmt.Errorf("terminology server %s is not reachable: %w", client.BaseURL(), err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "server:       %s\n", client.BaseURL())
			fmt.Fprintf(out, "fhirVersion:  %s\n", caps.FHIRVersion)
			if caps.SoftwareName != "" {
				fmt.Fprintf(out, "software:     %s %s\n", caps.SoftwareName, caps.SoftwareVersion)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the igpack version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "igpack v%s (FHIR %s)\n", igpack.Version, igpack.R4)
		},
	}
}
