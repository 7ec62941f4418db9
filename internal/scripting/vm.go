// Package scripting runs user-supplied JavaScript post-processors in a
// sandboxed goja runtime.
package scripting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

var (
	// ErrFunctionMissing is returned when a script does not define a hook.
	ErrFunctionMissing = errors.New("script function not defined")

	// ErrTimeout is returned when a script call is interrupted.
	ErrTimeout = errors.New("script timed out")
)

// LogEntry represents a single log message from the script.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// VM wraps a goja runtime with sandbox restrictions.
type VM struct {
	runtime *goja.Runtime
	mu      sync.Mutex

	logs    []LogEntry
	logsMu  sync.Mutex
	maxLogs int

	callTimeout time.Duration
}

const (
	scriptInitTimeout  = 2 * time.Second
	defaultCallTimeout = time.Second
)

// NewVM creates a sandboxed goja runtime. rand, if non-nil, backs
// Math.random so scripts can be made reproducible.
func NewVM(rand func() float64) *VM {
	vm := &VM{
		runtime:     goja.New(),
		maxLogs:     500,
		callTimeout: defaultCallTimeout,
	}
	if rand != nil {
		vm.runtime.SetRandSource(goja.RandSource(rand))
	}
	vm.injectGlobalFunctions()
	return vm
}

// SetCallTimeout bounds every hook invocation. Non-positive values restore
// the default.
func (vm *VM) SetCallTimeout(d time.Duration) {
	if d <= 0 {
		d = defaultCallTimeout
	}
	vm.callTimeout = d
}

func (vm *VM) injectGlobalFunctions() {
	vm.runtime.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}

		vm.logsMu.Lock()
		if len(vm.logs) >= vm.maxLogs {
			vm.logs = vm.logs[1:]
		}
		vm.logs = append(vm.logs, LogEntry{Time: time.Now(), Message: strings.Join(parts, " ")})
		vm.logsMu.Unlock()

		return goja.Undefined()
	})

	console := vm.runtime.NewObject()
	console.Set("log", vm.runtime.Get("log"))
	vm.runtime.Set("console", console)

	// Block dangerous globals.
	vm.runtime.Set("require", goja.Undefined())
	vm.runtime.Set("fetch", goja.Undefined())
	vm.runtime.Set("XMLHttpRequest", goja.Undefined())
	vm.runtime.Set("eval", goja.Undefined())
	vm.runtime.Set("Function", goja.Undefined())
}

// Execute runs script source once to register its hooks.
func (vm *VM) Execute(source string) error {
	return vm.runWithTimeout(context.Background(), scriptInitTimeout, func() error {
		vm.mu.Lock()
		defer vm.mu.Unlock()
		vm.runtime.ClearInterrupt()
		if _, err := vm.runtime.RunString(source); err != nil {
			return fmt.Errorf("script execution error: %w", err)
		}
		return nil
	})
}

// HasFunc reports whether the script defined a callable global name.
func (vm *VM) HasFunc(name string) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	_, ok := goja.AssertFunction(vm.runtime.Get(name))
	return ok
}

// Call invokes the global function name and exports its return value.
func (vm *VM) Call(ctx context.Context, name string, args ...any) (any, error) {
	var out any
	err := vm.runWithTimeout(ctx, vm.callTimeout, func() error {
		vm.mu.Lock()
		defer vm.mu.Unlock()
		vm.runtime.ClearInterrupt()

		fn := vm.runtime.Get(name)
		if fn == nil || goja.IsUndefined(fn) || goja.IsNull(fn) {
			return fmt.Errorf("%s(): %w", name, ErrFunctionMissing)
		}
		callable, ok := goja.AssertFunction(fn)
		if !ok {
			return fmt.Errorf("%s is not a function", name)
		}

		values := make([]goja.Value, len(args))
		for i, a := range args {
			values[i] = vm.runtime.ToValue(a)
		}
		result, err := callable(goja.Undefined(), values...)
		if err != nil {
			return fmt.Errorf("%s() error: %w", name, err)
		}
		out = result.Export()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Logs returns a copy of the script log buffer.
func (vm *VM) Logs() []LogEntry {
	vm.logsMu.Lock()
	defer vm.logsMu.Unlock()
	out := make([]LogEntry, len(vm.logs))
	copy(out, vm.logs)
	return out
}

func (vm *VM) runWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var reason error
	select {
	case err := <-done:
		return err
	case <-timer.C:
		reason = ErrTimeout
	case <-ctx.Done():
		reason = ctx.Err()
	}

	// Interrupt a runaway script execution.
	vm.runtime.Interrupt(reason.Error())
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %v", reason, err)
		}
		return reason
	case <-time.After(200 * time.Millisecond):
		return reason
	}
}
