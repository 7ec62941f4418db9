package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBackendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backend",
		Short: "Select an inference backend and report which one is active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, appOptions{pipeline: true})
			if err != nil {
				return err
			}
			defer a.close()

			st := a.selector.Status()
			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				return writeJSON(out, st)
			}
			fmt.Fprintf(out, "mode:     %s\n", st.Mode)
			fmt.Fprintf(out, "backend:  %s\n", st.Backend)
			if st.Device != "" {
				fmt.Fprintf(out, "device:   %s\n", st.Device)
			}
			fmt.Fprintf(out, "degraded: %t\n", st.Degraded)
			if st.Reason != "" {
				fmt.Fprintf(out, "reason:   %s\n", st.Reason)
			}
			return nil
		},
	}
}
