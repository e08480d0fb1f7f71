package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	ErrCheckerExists    = errors.New("health checker already registered")
	ErrInvalidChecker   = errors.New("binding does not implement a health checker")
	ErrResolverNotFound = errors.New("health check has no binding resolver")
)

// Report is the result of a single checker
type Report struct {
	DisplayName string         `json:"displayName"`
	Healthy     bool           `json:"healthy"`
	Message     string         `json:"message,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// FullReport is the aggregated output of every registered checker
type FullReport struct {
	Healthy   bool              `json:"healthy"`
	CheckedAt time.Time         `json:"checkedAt"`
	Report    map[string]Report `json:"report"`
}

// Checker reports the health of a single service
type Checker interface {
	Report(ctx context.Context) (Report, error)
}

// CheckerFunc adapts a function to a Checker
type CheckerFunc func(ctx context.Context) (Report, error)

func (fn CheckerFunc) Report(ctx context.Context) (Report, error) { return fn(ctx) }

// Resolver resolves container bindings for binding backed checkers
type Resolver func(name string) (any, error)

type entry struct {
	checker Checker
	binding string
}

// HealthCheck keeps the registered checkers of the application
type HealthCheck struct {
	mu       sync.RWMutex
	checkers map[string]entry
	resolver Resolver
	live     func() bool
}

// New returns a HealthCheck resolving binding checkers through resolver
func New(resolver Resolver) *HealthCheck {
	return &HealthCheck{
		checkers: make(map[string]entry),
		resolver: resolver,
	}
}

// AddChecker registers a checker under name
func (hc *HealthCheck) AddChecker(name string, checker Checker) error {
	return hc.add(name, entry{checker: checker})
}

// AddBindingChecker registers a checker resolved from the container on first use
func (hc *HealthCheck) AddBindingChecker(name, binding string) error {
	return hc.add(name, entry{binding: binding})
}

func (hc *HealthCheck) add(name string, e entry) error {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	if _, exists := hc.checkers[name]; exists {
		return fmt.Errorf("%w: %s", ErrCheckerExists, name)
	}

	hc.checkers[name] = e
	return nil
}

// Servicing returns the sorted names of registered checkers
func (hc *HealthCheck) Servicing() []string {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	names := make([]string, 0, len(hc.checkers))
	for name := range hc.checkers {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// SetLiveness overrides the liveness check, by default the app is always live
func (hc *HealthCheck) SetLiveness(fn func() bool) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.live = fn
}

func (hc *HealthCheck) IsLive() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	if hc.live == nil {
		return true
	}
	return hc.live()
}

// IsHealthy runs a report and returns its health
func (hc *HealthCheck) IsHealthy(ctx context.Context) bool {
	return hc.Report(ctx).Healthy
}

// Report runs every checker concurrently. A checker returning an error is
// reported unhealthy, it never aborts the other checks.
func (hc *HealthCheck) Report(ctx context.Context) FullReport {
	hc.mu.RLock()
	checkers := make(map[string]entry, len(hc.checkers))
	for name, e := range hc.checkers {
		checkers[name] = e
	}
	hc.mu.RUnlock()

	var mu sync.Mutex
	report := FullReport{
		Healthy:   true,
		CheckedAt: time.Now(),
		Report:    make(map[string]Report, len(checkers)),
	}

	g, gctx := errgroup.WithContext(ctx)

	for name, e := range checkers {
		g.Go(func() error {
			r := hc.run(gctx, name, e)

			mu.Lock()
			defer mu.Unlock()

			report.Report[name] = r
			if !r.Healthy {
				report.Healthy = false
			}
			return nil
		})
	}

	_ = g.Wait()

	return report
}

func (hc *HealthCheck) run(ctx context.Context, name string, e entry) Report {
	checker, err := hc.checker(e)
	if err != nil {
		return Report{DisplayName: name, Message: err.Error()}
	}

	r, err := checker.Report(ctx)
	if err != nil {
		return Report{DisplayName: name, Message: err.Error()}
	}

	if r.DisplayName == "" {
		r.DisplayName = name
	}

	return r
}

func (hc *HealthCheck) checker(e entry) (Checker, error) {
	if e.checker != nil {
		return e.checker, nil
	}

	if hc.resolver == nil {
		return nil, ErrResolverNotFound
	}

	v, err := hc.resolver(e.binding)
	if err != nil {
		return nil, err
	}

	checker, ok := v.(Checker)
	if !ok {
		return nil, fmt.Errorf("%w: %s (%T)", ErrInvalidChecker, e.binding, v)
	}

	return checker, nil
}
