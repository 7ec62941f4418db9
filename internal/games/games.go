// Package games turns raw backend scores into game-shaped results.
package games

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/MJE43/stake-pf-predict-go/internal/backend"
)

const (
	gridSize  = 5
	gridTiles = gridSize * gridSize
)

// Formatter post-processes the raw scores of one model into a Result.
type Formatter interface {
	Format(ctx context.Context, raw []float64) (Result, error)
}

// Source supplies uniform draws in [0,1). *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// DefaultSource draws from the runtime's shared generator and is safe for
// concurrent use.
var DefaultSource Source = globalSource{}

// Result is one prediction, discriminated by Kind. Exactly one of Mines or
// Coinflip is set.
type Result struct {
	Kind     backend.GameKind `json:"kind"`
	Mines    *MinesGrid       `json:"mines,omitempty"`
	Coinflip CoinflipSequence `json:"coinflip,omitempty"`
}

// String renders the result as plain text.
func (r Result) String() string {
	switch {
	case r.Mines != nil:
		return r.Mines.String()
	case r.Coinflip != nil:
		return r.Coinflip.String()
	default:
		return ""
	}
}

// MinesGrid holds a "safe" flag per tile, row-major.
type MinesGrid [gridSize][gridSize]bool

// SafeCount returns the number of tiles flagged safe.
func (g *MinesGrid) SafeCount() int {
	n := 0
	for r := 0; r < gridSize; r++ {
		for c := 0; c < gridSize; c++ {
			if g[r][c] {
				n++
			}
		}
	}
	return n
}

// Flat returns the tiles in left-to-right, top-to-bottom order.
func (g *MinesGrid) Flat() []bool {
	out := make([]bool, 0, gridTiles)
	for r := 0; r < gridSize; r++ {
		for c := 0; c < gridSize; c++ {
			out = append(out, g[r][c])
		}
	}
	return out
}

// String draws safe tiles as "o" and risky tiles as "x".
func (g *MinesGrid) String() string {
	var b strings.Builder
	for r := 0; r < gridSize; r++ {
		for c := 0; c < gridSize; c++ {
			if c > 0 {
				b.WriteByte(' ')
			}
			if g[r][c] {
				b.WriteByte('o')
			} else {
				b.WriteByte('x')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Outcome is one coin face.
type Outcome string

const (
	Heads Outcome = "heads"
	Tails Outcome = "tails"
)

// CoinflipEntry is one predicted flip. ConfidencePercent is the probability
// of the chosen outcome, not of heads.
type CoinflipEntry struct {
	NonceOffset       int     `json:"nonce_offset"`
	Outcome           Outcome `json:"outcome"`
	ConfidencePercent int     `json:"confidence_percent"`
}

// CoinflipSequence is ordered by NonceOffset starting at 0.
type CoinflipSequence []CoinflipEntry

func (s CoinflipSequence) String() string {
	var b strings.Builder
	for _, e := range s {
		fmt.Fprintf(&b, "+%d %-5s %3d%%\n", e.NonceOffset, e.Outcome, e.ConfidencePercent)
	}
	return b.String()
}

// checkScores enforces the backend shape contract before formatting.
func checkScores(kind backend.GameKind, raw []float64) error {
	if want := kind.OutputUnits(); len(raw) != want {
		return fmt.Errorf("%w: %s formatter expects %d scores, got %d", backend.ErrShapeMismatch, kind, want, len(raw))
	}
	return nil
}
