package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

var (
	ErrUnknownOperation = errors.New("unknown operation")
	ErrArity            = errors.New("wrong number of arguments")
)

// Handler executes one operation with its positional arguments.
type Handler func(args []json.RawMessage) error

// Adapter is what the worker-side command channel dispatches to.
// Implementations may also implement Done() <-chan struct{} to signal that the engine has shut down.
type Adapter interface {
	Dispatch(op string, args []json.RawMessage) error
}

// Factory builds the adapter from the construction arguments. It is called once per worker process.
type Factory func(log *zap.SugaredLogger, args ConstructionArgs) (Adapter, error)

// Registry maps operation names to handlers.
// Registration is not goroutine-safe and should finish before the first Dispatch.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

func (r *Registry) Register(name string, h Handler) error {
	if name == "" {
		return errors.New("registering handler: empty operation name")
	}
	if h == nil {
		return fmt.Errorf("registering %q: nil handler", name)
	}
	if _, ok := r.handlers[name]; ok {
		return fmt.Errorf("registering %q: already registered", name)
	}
	r.handlers[name] = h
	return nil
}

func (r *Registry) MustRegister(name string, h Handler) {
	if err := r.Register(name, h); err != nil {
		panic(err)
	}
}

func (r *Registry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Names returns the registered operation names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Dispatch(op string, args []json.RawMessage) error {
	h, ok := r.handlers[op]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownOperation, op)
	}
	if err := h(args); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Bind0 adapts a function taking no arguments.
func Bind0(f func() error) Handler {
	return func(args []json.RawMessage) error {
		if err := checkArity(args, 0); err != nil {
			return err
		}
		return f()
	}
}

// Bind1 adapts a function taking one argument, decoded from JSON.
func Bind1[T any](f func(T) error) Handler {
	return func(args []json.RawMessage) error {
		if err := checkArity(args, 1); err != nil {
			return err
		}
		var a T
		if err := decodeArg(args, 0, &a); err != nil {
			return err
		}
		return f(a)
	}
}

// Bind2 adapts a function taking two arguments, decoded from JSON in order.
func Bind2[T, U any](f func(T, U) error) Handler {
	return func(args []json.RawMessage) error {
		if err := checkArity(args, 2); err != nil {
			return err
		}
		var a T
		if err := decodeArg(args, 0, &a); err != nil {
			return err
		}
		var b U
		if err := decodeArg(args, 1, &b); err != nil {
			return err
		}
		return f(a, b)
	}
}

func checkArity(args []json.RawMessage, n int) error {
	if len(args) != n {
		return fmt.Errorf("%w: got %d, want %d", ErrArity, len(args), n)
	}
	return nil
}

func decodeArg(args []json.RawMessage, i int, v any) error {
	if err := json.Unmarshal(args[i], v); err != nil {
		return fmt.Errorf("decoding argument %d: %w", i, err)
	}
	return nil
}
