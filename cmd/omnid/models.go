package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"omnid/internal/common/fsutil"
	"omnid/internal/registry"
)

func newModelsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the GGUF models found in the models directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts, lookupEnv)
			if err != nil {
				return err
			}
			dir, err := fsutil.AbsDir(cfg.ModelsDir)
			if err != nil {
				return err
			}
			models, err := registry.LoadDir(dir)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tFAMILY\tQUANT\tSIZE_MB")
			for _, m := range models {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", m.ID, orDash(m.Family), orDash(m.Quant), m.SizeBytes>>20)
			}
			return tw.Flush()
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
