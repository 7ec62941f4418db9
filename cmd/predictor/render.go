package main

import (
	"fmt"
	"io"

	"github.com/MJE43/stake-pf-predict-go/internal/backend"
	"github.com/MJE43/stake-pf-predict-go/internal/games"
	"github.com/MJE43/stake-pf-predict-go/internal/pipeline"
)

const degradedNotice = "warning: running on the simulated backend; results are random and carry no signal"

func renderFlip(w io.Writer, baseNonce uint64, e games.CoinflipEntry) {
	fmt.Fprintf(w, "  nonce %-6d %-5s %3d%%\n", baseNonce+uint64(e.NonceOffset), e.Outcome, e.ConfidencePercent)
}

// renderPrediction prints a human-readable prediction. When streamed is set
// the degraded notice and coinflip entries were already written.
func renderPrediction(w io.Writer, p pipeline.Prediction, streamed bool) {
	if p.Mode == backend.ModeSimulated && !streamed {
		fmt.Fprintln(w, degradedNotice)
	}
	fmt.Fprintf(w, "game:    %s\n", p.Kind)
	fmt.Fprintf(w, "backend: %s (%s)\n", p.Backend, p.Mode)
	fmt.Fprintf(w, "nonce:   %d\n", p.Seeds.Nonce)
	fmt.Fprintf(w, "id:      %s\n", p.ID)

	switch p.Kind {
	case backend.GameMines:
		fmt.Fprintf(w, "\nsafe tiles: %d/25 (o = safe, x = avoid)\n", p.Result.Mines.SafeCount())
		fmt.Fprint(w, p.Result.Mines.String())
	case backend.GameCoinflip:
		if streamed {
			return
		}
		fmt.Fprintln(w)
		for _, e := range p.Result.Coinflip {
			renderFlip(w, p.Seeds.Nonce, e)
		}
	}
}
