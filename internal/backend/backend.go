// Package backend defines the pluggable scoring interface and its two
// implementations: a hardware-assisted backend that runs dense kernels and a
// simulated backend that only honours the output shape.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/MJE43/stake-pf-predict-go/internal/engine"
)

// Mode identifies which backend family is serving predictions.
type Mode int

const (
	ModeUninitialized Mode = iota
	ModeAccelerated
	ModeSimulated
)

func (m Mode) String() string {
	switch m {
	case ModeAccelerated:
		return "accelerated"
	case ModeSimulated:
		return "simulated"
	default:
		return "uninitialized"
	}
}

// MarshalText renders the mode by name in JSON and YAML.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "accelerated":
		*m = ModeAccelerated
	case "simulated":
		*m = ModeSimulated
	case "uninitialized", "":
		*m = ModeUninitialized
	default:
		return fmt.Errorf("unknown backend mode %q", text)
	}
	return nil
}

// GameKind selects the model output width and the result formatter.
type GameKind string

const (
	GameMines    GameKind = "mines"
	GameCoinflip GameKind = "coinflip"
)

const (
	minesOutputUnits    = 25
	coinflipOutputUnits = 1
)

// Kinds lists the supported games in menu order.
func Kinds() []GameKind {
	return []GameKind{GameMines, GameCoinflip}
}

// ParseGameKind accepts a game name or its 1-based menu position.
func ParseGameKind(s string) (GameKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mines", "mine", "1":
		return GameMines, nil
	case "coinflip", "coin", "flip", "2":
		return GameCoinflip, nil
	}
	return "", &engine.InputError{Field: "game", Reason: fmt.Sprintf("unknown game %q", s)}
}

// OutputUnits is the number of scores a model for this game produces.
func (k GameKind) OutputUnits() int {
	switch k {
	case GameMines:
		return minesOutputUnits
	case GameCoinflip:
		return coinflipOutputUnits
	default:
		return 0
	}
}

// Valid reports whether k is a supported game.
func (k GameKind) Valid() bool {
	return k.OutputUnits() > 0
}

// InferenceBackend is implemented by every scoring backend. Callers are
// written once against this interface; implementations differ only in how
// values are produced and what they cost.
type InferenceBackend interface {
	// Name is a short identifier used in logs and status output.
	Name() string

	// Mode is the selector mode this backend represents.
	Mode() Mode

	// Initialize acquires the underlying compute resource. A failure is a
	// signal to switch backends, never to abort.
	Initialize(ctx context.Context) error

	// BuildModel constructs a layered scoring model for kind whose input
	// width is inputSize.
	BuildModel(kind GameKind, inputSize int) (*Model, error)

	// Predict returns exactly model.OutputUnits() scores in [0,1].
	Predict(ctx context.Context, model *Model, features engine.FeatureVector) ([]float64, error)

	// Dispose releases backend-held resources. It is safe to call with nil,
	// already released, or foreign handles and never panics.
	Dispose(handles ...Handle)
}

// Handle is anything Dispose can release.
type Handle interface {
	Release()
}

func disposeAll(handles []Handle) {
	for _, h := range handles {
		if h == nil {
			continue
		}
		h.Release()
	}
}
