package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MJE43/stake-pf-predict-go/internal/backend"
	"github.com/MJE43/stake-pf-predict-go/internal/engine"
	"github.com/MJE43/stake-pf-predict-go/internal/games"
)

func newPredictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict <mines|coinflip>",
		Short: "Run one prediction",
		Long: `Run one prediction for a game. Seeds come either from the seed flags
or from a saved profile; a profile's nonce advances after each use.`,
		Example: `  predictor predict mines --client-seed abc --server-seed-hash def --nonce 1
  predictor predict coinflip --profile main --pace`,
		Args: cobra.ExactArgs(1),
		RunE: runPredict,
	}
	cmd.Flags().String("client-seed", "", "Client seed")
	cmd.Flags().String("server-seed-hash", "", "Hashed server seed as shown by the site")
	cmd.Flags().String("nonce", "", "Nonce (non-negative integer)")
	cmd.Flags().String("profile", "", "Use and advance a saved seed profile")
	cmd.Flags().Bool("pace", false, "Reveal coinflip outcomes one at a time")
	return cmd
}

func runPredict(cmd *cobra.Command, args []string) error {
	kind, err := backend.ParseGameKind(args[0])
	if err != nil {
		return err
	}
	pace, _ := cmd.Flags().GetBool("pace")
	jsonOut := jsonOutput(cmd)

	a, err := newApp(cmd, appOptions{pipeline: true, store: true, pacing: pace && !jsonOut})
	if err != nil {
		return err
	}
	defer a.close()

	seeds, profile, err := seedsFromFlags(cmd, a)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	streamed := false
	if kind == backend.GameCoinflip && !jsonOut {
		if a.selector.Degraded() {
			fmt.Fprintln(out, degradedNotice)
		}
		fmt.Fprintln(out, "coinflip:")
		ctx = games.WithCoinflipObserver(ctx, func(e games.CoinflipEntry) {
			renderFlip(out, seeds.Nonce, e)
		})
		streamed = true
	}

	pred, err := a.pipeline.Predict(ctx, kind, seeds)
	if err != nil {
		return err
	}
	if profile != "" {
		if _, err := a.vault().Advance(profile); err != nil {
			return fmt.Errorf("advance profile %s: %w", profile, err)
		}
	}
	if jsonOut {
		return writeJSON(out, pred)
	}
	renderPrediction(out, pred, streamed)
	return nil
}

// seedsFromFlags reads seeds from either the seed flags or --profile. The
// profile name is returned so its nonce can be advanced after a successful
// prediction.
func seedsFromFlags(cmd *cobra.Command, a *app) (engine.SeedTriple, string, error) {
	profile, _ := cmd.Flags().GetString("profile")
	client, _ := cmd.Flags().GetString("client-seed")
	server, _ := cmd.Flags().GetString("server-seed-hash")
	nonce, _ := cmd.Flags().GetString("nonce")

	if profile != "" {
		if client != "" || server != "" || nonce != "" {
			return engine.SeedTriple{}, "", errors.New("use either --profile or the seed flags, not both")
		}
		p, err := a.vault().Load(profile)
		if err != nil {
			return engine.SeedTriple{}, "", err
		}
		return p.Seeds(), p.Name, nil
	}
	seeds, err := engine.ParseSeedTriple(client, server, nonce)
	return seeds, "", err
}
