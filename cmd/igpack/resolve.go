package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [name|version...]",
		Short: "Resolve packages and print their dependency closure",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, args)
			if err != nil {
				return err
			}
			ids, err := rootPackages(cfg)
			if err != nil {
				return err
			}
			resolver, _, err := cfg.Resolver()
			if err != nil {
				return err
			}

			sets, err := resolver.Resolve(cmd.Context(), ids)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, set := range sets {
				fmt.Fprintln(out, set.Root().Identifier())
				for _, dep := range set.Dependencies() {
					fmt.Fprintf(out, "  %s\n", dep.Identifier())
				}
			}
			return nil
		},
	}
}
