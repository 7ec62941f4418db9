package games

import (
	"context"
	"fmt"

	"github.com/MJE43/stake-pf-predict-go/internal/backend"
)

// DefaultSafeProbability is the per-tile chance of a "safe" flag.
const DefaultSafeProbability = 0.85

// MinesFormatter flags each tile safe with probability SafeProbability. The
// draws are independent of the raw scores, which are only shape-checked.
type MinesFormatter struct {
	SafeProbability float64
	Rand            Source
}

func (f MinesFormatter) Format(ctx context.Context, raw []float64) (Result, error) {
	if err := checkScores(backend.GameMines, raw); err != nil {
		return Result{}, err
	}
	if !(f.SafeProbability >= 0 && f.SafeProbability <= 1) {
		return Result{}, fmt.Errorf("mines safe probability must be within [0,1], got %v", f.SafeProbability)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	src := f.Rand
	if src == nil {
		src = DefaultSource
	}

	grid := new(MinesGrid)
	for pos := 0; pos < gridTiles; pos++ {
		grid[pos/gridSize][pos%gridSize] = src.Float64() < f.SafeProbability
	}
	return Result{Kind: backend.GameMines, Mines: grid}, nil
}

// MinesThresholdFormatter flags tile i safe when raw[i] >= Threshold. It is
// the formatter to use once a backend carries trained weights.
type MinesThresholdFormatter struct {
	Threshold float64
}

func (f MinesThresholdFormatter) Format(ctx context.Context, raw []float64) (Result, error) {
	if err := checkScores(backend.GameMines, raw); err != nil {
		return Result{}, err
	}

	grid := new(MinesGrid)
	for pos, score := range raw {
		grid[pos/gridSize][pos%gridSize] = score >= f.Threshold
	}
	return Result{Kind: backend.GameMines, Mines: grid}, nil
}
