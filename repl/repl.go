package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

var (
	ErrMethodExists  = errors.New("repl method already registered")
	ErrUnknownMethod = errors.New("unknown repl method")
)

const prompt = "> "

// MethodFunc is a helper callable from the repl prompt
type MethodFunc func(ctx context.Context, r *Repl, args []string) error

type method struct {
	description string
	fn          MethodFunc
}

// Repl is a line oriented shell exposing registered helper methods.
// Helpers share state through Set / Get (IE: loadDb stores the database as "db").
type Repl struct {
	mu      sync.RWMutex
	methods map[string]method
	values  map[string]any

	out io.Writer
}

func New() *Repl {
	return &Repl{
		methods: make(map[string]method),
		values:  make(map[string]any),
		out:     io.Discard,
	}
}

// AddMethod registers a helper method
func (r *Repl) AddMethod(name, description string, fn MethodFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.methods[name]; exists || name == "help" || name == "exit" {
		return fmt.Errorf("%w: %s", ErrMethodExists, name)
	}

	r.methods[name] = method{description: description, fn: fn}
	return nil
}

// Methods returns the sorted method names
func (r *Repl) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

func (r *Repl) Set(name string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.values[name] = value
}

func (r *Repl) Get(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.values[name]
	return v, ok
}

// Printf writes to the output of the running session
func (r *Repl) Printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

// Writer is the output of the running session, io.Discard before Start
func (r *Repl) Writer() io.Writer { return r.out }

// Call invokes a method by name
func (r *Repl) Call(ctx context.Context, name string, args ...string) error {
	r.mu.RLock()
	m, ok := r.methods[name]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMethod, name)
	}

	return m.fn(ctx, r, args)
}

// Start reads commands from in until exit, EOF or the context is cancelled.
// Method errors are printed and the session continues.
func (r *Repl) Start(ctx context.Context, in io.Reader, out io.Writer) error {
	r.out = out
	defer func() { r.out = io.Discard }()

	scanner := bufio.NewScanner(in)

	fmt.Fprint(out, prompt)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			fmt.Fprint(out, prompt)
			continue
		}

		switch fields[0] {
		case "exit":
			return nil
		case "help":
			r.help(out)
		default:
			if err := r.Call(ctx, fields[0], fields[1:]...); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}

		fmt.Fprint(out, prompt)
	}

	return scanner.Err()
}

func (r *Repl) help(out io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fmt.Fprintln(out, "Available methods:")
	for _, name := range r.sortedLocked() {
		fmt.Fprintf(out, "  %-20s %s\n", name, r.methods[name].description)
	}
	fmt.Fprintf(out, "  %-20s %s\n", "help", "list available methods")
	fmt.Fprintf(out, "  %-20s %s\n", "exit", "leave the repl")
}

func (r *Repl) sortedLocked() []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
