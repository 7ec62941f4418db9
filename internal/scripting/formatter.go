package scripting

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/MJE43/stake-pf-predict-go/internal/backend"
	"github.com/MJE43/stake-pf-predict-go/internal/games"
)

// Hook names a script may define.
const (
	MinesHook    = "mines"
	CoinflipHook = "coinflip"
)

// Options configures script-backed formatters.
type Options struct {
	CoinflipLength int
	Pacer          games.Pacer
	Rand           games.Source
	CallTimeout    time.Duration
}

// ScriptFormatter delegates post-processing of one game to a script hook.
//
//	mines(scores)       -> 25 booleans, true = safe
//	coinflip(scores, n) -> n draws in [0,1]
type ScriptFormatter struct {
	vm     *VM
	kind   backend.GameKind
	length int
	pacer  games.Pacer
}

// NewScriptFormatter binds kind to its hook in vm.
func NewScriptFormatter(vm *VM, kind backend.GameKind, opts Options) (*ScriptFormatter, error) {
	hook := hookFor(kind)
	if hook == "" {
		return nil, fmt.Errorf("%w: no script hook for game %q", backend.ErrShapeMismatch, kind)
	}
	if !vm.HasFunc(hook) {
		return nil, fmt.Errorf("%s(): %w", hook, ErrFunctionMissing)
	}
	length := opts.CoinflipLength
	if length <= 0 {
		length = games.DefaultCoinflipLength
	}
	return &ScriptFormatter{vm: vm, kind: kind, length: length, pacer: opts.Pacer}, nil
}

func hookFor(kind backend.GameKind) string {
	switch kind {
	case backend.GameMines:
		return MinesHook
	case backend.GameCoinflip:
		return CoinflipHook
	default:
		return ""
	}
}

func (f *ScriptFormatter) Format(ctx context.Context, raw []float64) (games.Result, error) {
	if want := f.kind.OutputUnits(); len(raw) != want {
		return games.Result{}, fmt.Errorf("%w: %s script expects %d scores, got %d", backend.ErrShapeMismatch, f.kind, want, len(raw))
	}
	scores := make([]any, len(raw))
	for i, v := range raw {
		scores[i] = v
	}

	switch f.kind {
	case backend.GameMines:
		return f.formatMines(ctx, scores)
	default:
		return f.formatCoinflip(ctx, raw, scores)
	}
}

func (f *ScriptFormatter) formatMines(ctx context.Context, scores []any) (games.Result, error) {
	out, err := f.vm.Call(ctx, MinesHook, scores)
	if err != nil {
		return games.Result{}, err
	}
	items, err := exportList(MinesHook, out, backend.GameMines.OutputUnits())
	if err != nil {
		return games.Result{}, err
	}

	flags := make([]float64, len(items))
	for i, item := range items {
		safe, ok := item.(bool)
		if !ok {
			return games.Result{}, fmt.Errorf("%w: %s() element %d is %T, want boolean", backend.ErrShapeMismatch, MinesHook, i, item)
		}
		if safe {
			flags[i] = 1
		}
	}
	return games.MinesThresholdFormatter{Threshold: 0.5}.Format(ctx, flags)
}

func (f *ScriptFormatter) formatCoinflip(ctx context.Context, raw []float64, scores []any) (games.Result, error) {
	out, err := f.vm.Call(ctx, CoinflipHook, scores, f.length)
	if err != nil {
		return games.Result{}, err
	}
	items, err := exportList(CoinflipHook, out, f.length)
	if err != nil {
		return games.Result{}, err
	}

	draws := make([]float64, len(items))
	for i, item := range items {
		v, ok := toFloat(item)
		if !ok || !(v >= 0 && v <= 1) {
			return games.Result{}, fmt.Errorf("%w: %s() element %d = %v, want number in [0,1]", backend.ErrShapeMismatch, CoinflipHook, i, item)
		}
		draws[i] = v
	}

	inner := games.CoinflipFormatter{Length: f.length, Rand: &replay{draws: draws}, Pacer: f.pacer}
	return inner.Format(ctx, raw)
}

func exportList(hook string, out any, want int) ([]any, error) {
	items, ok := out.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s() returned %T, want array", backend.ErrShapeMismatch, hook, out)
	}
	if len(items) != want {
		return nil, fmt.Errorf("%w: %s() returned %d elements, want %d", backend.ErrShapeMismatch, hook, len(items), want)
	}
	return items, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// replay feeds pre-computed draws to a games formatter in order.
type replay struct {
	draws []float64
	next  int
}

func (r *replay) Float64() float64 {
	v := r.draws[r.next]
	r.next++
	return v
}

// Overlay returns a copy of base where every game the script defines a hook
// for is served by a ScriptFormatter.
func Overlay(vm *VM, base games.Formatters, opts Options) (games.Formatters, error) {
	out := make(games.Formatters, len(base))
	for k, f := range base {
		out[k] = f
	}
	bound := 0
	for _, kind := range backend.Kinds() {
		if !vm.HasFunc(hookFor(kind)) {
			continue
		}
		sf, err := NewScriptFormatter(vm, kind, opts)
		if err != nil {
			return nil, err
		}
		out[kind] = sf
		bound++
	}
	if bound == 0 {
		return nil, fmt.Errorf("script defines neither %s() nor %s(): %w", MinesHook, CoinflipHook, ErrFunctionMissing)
	}
	return out, nil
}

// LoadFile compiles the script at path and overlays its hooks on base.
func LoadFile(path string, base games.Formatters, opts Options) (games.Formatters, *VM, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read script: %w", err)
	}
	var rand func() float64
	if opts.Rand != nil {
		rand = opts.Rand.Float64
	}
	vm := NewVM(rand)
	vm.SetCallTimeout(opts.CallTimeout)
	if err := vm.Execute(string(src)); err != nil {
		return nil, nil, err
	}
	fs, err := Overlay(vm, base, opts)
	if err != nil {
		return nil, nil, err
	}
	return fs, vm, nil
}
