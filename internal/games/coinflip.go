package games

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/MJE43/stake-pf-predict-go/internal/backend"
)

// DefaultCoinflipLength is the number of flips in one sequence.
const DefaultCoinflipLength = 10

var hundred = decimal.NewFromInt(100)

// CoinflipFormatter produces Length outcomes, one per nonce offset. Each
// outcome is heads when its draw exceeds 0.5. Pacer runs between consecutive
// outcomes, so the first one is produced immediately.
type CoinflipFormatter struct {
	Length int
	Rand   Source
	Pacer  Pacer
}

type observerKey struct{}

// WithCoinflipObserver attaches fn to ctx. CoinflipFormatter calls it with
// each entry as soon as the entry is produced, so callers can render the
// sequence progressively.
func WithCoinflipObserver(ctx context.Context, fn func(CoinflipEntry)) context.Context {
	return context.WithValue(ctx, observerKey{}, fn)
}

func coinflipObserver(ctx context.Context) func(CoinflipEntry) {
	fn, _ := ctx.Value(observerKey{}).(func(CoinflipEntry))
	return fn
}

func (f CoinflipFormatter) Format(ctx context.Context, raw []float64) (Result, error) {
	if err := checkScores(backend.GameCoinflip, raw); err != nil {
		return Result{}, err
	}
	if f.Length <= 0 {
		return Result{}, fmt.Errorf("coinflip sequence length must be positive, got %d", f.Length)
	}

	src := f.Rand
	if src == nil {
		src = DefaultSource
	}
	pacer := f.Pacer
	if pacer == nil {
		pacer = NoPacer{}
	}
	observe := coinflipObserver(ctx)

	seq := make(CoinflipSequence, 0, f.Length)
	for i := 0; i < f.Length; i++ {
		if i > 0 {
			if err := pacer.Pace(ctx); err != nil {
				return Result{}, err
			}
		} else if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		entry := CoinflipEntry{NonceOffset: i}
		outcome, pct, err := flip(src.Float64())
		if err != nil {
			return Result{}, fmt.Errorf("coinflip offset %d: %w", i, err)
		}
		entry.Outcome, entry.ConfidencePercent = outcome, pct
		seq = append(seq, entry)
		if observe != nil {
			observe(entry)
		}
	}
	return Result{Kind: backend.GameCoinflip, Coinflip: seq}, nil
}

// flip maps a draw in [0,1] to an outcome and the confidence of that outcome
// in percent, rounded half up. The confidence is always within [50,100].
// Draws outside [0,1], NaN included, are rejected.
func flip(draw float64) (Outcome, int, error) {
	if !(draw >= 0 && draw <= 1) {
		return "", 0, fmt.Errorf("draw %v outside [0,1]", draw)
	}
	outcome := Tails
	if draw > 0.5 {
		outcome = Heads
	}
	p := math.Max(draw, 1-draw)
	pct := decimal.NewFromFloat(p).Mul(hundred).Round(0).IntPart()
	return outcome, int(min(max(pct, 50), 100)), nil
}
