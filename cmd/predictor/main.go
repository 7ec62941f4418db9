// Command predictor derives Mines and Coinflip predictions from provably-fair
// seeds.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "predictor",
		Short: "Seed-driven predictions for Mines and Coinflip",
		Long: `predictor hashes a client seed, server seed hash and nonce into a
feature vector, scores it on the best available inference backend and
formats the scores as a Mines grid or a Coinflip sequence.

When no accelerated backend is available it runs degraded on a
simulated backend whose output is random.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file (default $PREDICTOR_CONFIG)")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("log-level", "", "Override log level: info, debug or trace")

	rootCmd.AddCommand(
		newVersionCmd(),
		newPredictCmd(),
		newDigestCmd(),
		newBackendCmd(),
		newServeCmd(),
		newHistoryCmd(),
		newSeedsCmd(),
	)
	return rootCmd
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
