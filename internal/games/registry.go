package games

import (
	"sort"

	"github.com/MJE43/stake-pf-predict-go/internal/backend"
)

// GameSpec describes a supported game.
type GameSpec struct {
	ID          backend.GameKind `json:"id"`
	Name        string           `json:"name"`
	OutputUnits int              `json:"output_units"`
	ResultLabel string           `json:"result_label"`
}

var registry = map[backend.GameKind]GameSpec{
	backend.GameMines: {
		ID:          backend.GameMines,
		Name:        "Mines",
		OutputUnits: backend.GameMines.OutputUnits(),
		ResultLabel: "grid",
	},
	backend.GameCoinflip: {
		ID:          backend.GameCoinflip,
		Name:        "Coinflip",
		OutputUnits: backend.GameCoinflip.OutputUnits(),
		ResultLabel: "sequence",
	},
}

// Get looks up a game by id or alias.
func Get(id string) (GameSpec, bool) {
	kind, err := backend.ParseGameKind(id)
	if err != nil {
		return GameSpec{}, false
	}
	spec, ok := registry[kind]
	return spec, ok
}

// List returns every supported game sorted by id.
func List() []GameSpec {
	out := make([]GameSpec, 0, len(registry))
	for _, spec := range registry {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Options configures DefaultFormatters.
type Options struct {
	SafeProbability float64
	CoinflipLength  int
	Pacer           Pacer
	Rand            Source
}

// Formatters maps each game to its formatter.
type Formatters map[backend.GameKind]Formatter

// DefaultFormatters returns the baseline random formatters for both games.
// A non-positive CoinflipLength falls back to DefaultCoinflipLength.
func DefaultFormatters(opts Options) Formatters {
	if opts.CoinflipLength <= 0 {
		opts.CoinflipLength = DefaultCoinflipLength
	}
	return Formatters{
		backend.GameMines: MinesFormatter{
			SafeProbability: opts.SafeProbability,
			Rand:            opts.Rand,
		},
		backend.GameCoinflip: CoinflipFormatter{
			Length: opts.CoinflipLength,
			Rand:   opts.Rand,
			Pacer:  opts.Pacer,
		},
	}
}
