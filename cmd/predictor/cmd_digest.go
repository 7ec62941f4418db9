package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MJE43/stake-pf-predict-go/internal/engine"
)

func newDigestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Print the HMAC digest and feature vector for a seed triple",
		Long: `Print the deterministic half of a prediction: the HMAC digest of
"client_seed:nonce" keyed by the server seed hash, and the feature vector
built from it. No backend is involved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			algorithm, _ := cmd.Flags().GetString("algorithm")
			if algorithm == "" {
				algorithm = cfg.HashAlgorithm
			}
			size, _ := cmd.Flags().GetInt("size")
			if size == 0 {
				size = cfg.SeedVectorSize
			}

			client, _ := cmd.Flags().GetString("client-seed")
			server, _ := cmd.Flags().GetString("server-seed-hash")
			nonce, _ := cmd.Flags().GetString("nonce")
			seeds, err := engine.ParseSeedTriple(client, server, nonce)
			if err != nil {
				return err
			}

			hasher, err := engine.NewHasher(algorithm)
			if err != nil {
				return err
			}
			digest, err := hasher.Hash(seeds)
			if err != nil {
				return err
			}
			features, err := engine.BuildFeatures(digest, size)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				return writeJSON(out, map[string]any{
					"algorithm":    hasher.Algorithm(),
					"digest":       digest.Hex(),
					"feature_size": len(features),
					"features":     features,
					"seeds":        seeds,
				})
			}
			fmt.Fprintf(out, "algorithm: %s\n", hasher.Algorithm())
			fmt.Fprintf(out, "message:   %s\n", seeds.Message())
			fmt.Fprintf(out, "digest:    %s\n", digest.Hex())
			show, _ := cmd.Flags().GetBool("features")
			if show {
				for i, f := range features {
					fmt.Fprintf(out, "%4d %.6f\n", i, f)
				}
			}
			return nil
		},
	}
	cmd.Flags().String("client-seed", "", "Client seed")
	cmd.Flags().String("server-seed-hash", "", "Hashed server seed")
	cmd.Flags().String("nonce", "", "Nonce (non-negative integer)")
	cmd.Flags().String("algorithm", "", "Digest algorithm (default from config)")
	cmd.Flags().Int("size", 0, "Feature vector size (default from config)")
	cmd.Flags().Bool("features", false, "Also print the feature vector")
	return cmd
}
