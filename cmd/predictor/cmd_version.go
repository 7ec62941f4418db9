package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MJE43/stake-pf-predict-go/internal/api"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := api.GetVersionInfo()
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), info)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "predictor version %s (commit: %s, built: %s)\n",
				info.EngineVersion, info.GitCommit, info.BuildTime)
			return err
		},
	}
}
