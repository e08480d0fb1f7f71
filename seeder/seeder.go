// Package seeder runs database seeders, optionally restricted to some
// environments.
package seeder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kubit-go/kubit/database"
	"github.com/sirupsen/logrus"
)

var (
	ErrSeederExists   = errors.New("seeder already registered")
	ErrSeederNotFound = errors.New("seeder is not registered")
)

// Seeder fills the database
type Seeder interface {
	Run(ctx context.Context, db *database.Database) error
}

// EnvironmentsRestricted seeders only run in the listed environments
type EnvironmentsRestricted interface {
	Environments() []string
}

// DevelopmentOnly seeders only run in development
type DevelopmentOnly interface {
	DevelopmentOnly() bool
}

// SeederFunc adapts a function to a Seeder
type SeederFunc func(ctx context.Context, db *database.Database) error

func (fn SeederFunc) Run(ctx context.Context, db *database.Database) error { return fn(ctx, db) }

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusIgnored   Status = "ignored"
	StatusFailed    Status = "failed"
)

// Result is the outcome of one seeder
type Result struct {
	Name         string `json:"name"`
	Status       Status `json:"status"`
	SkipReason   string `json:"skipReason,omitempty"`
	Error        error  `json:"-"`
	ErrorMessage string `json:"error,omitempty"`
}

// SeedsRunner keeps the seeders by name and runs them in name order
type SeedsRunner struct {
	db          *database.Database
	environment string
	logger      *logrus.Logger

	mu      sync.RWMutex
	seeders map[string]Seeder
}

func NewSeedsRunner(db *database.Database, environment string, logger *logrus.Logger) *SeedsRunner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &SeedsRunner{
		db:          db,
		environment: environment,
		logger:      logger,
		seeders:     make(map[string]Seeder),
	}
}

func (r *SeedsRunner) Register(name string, s Seeder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seeders[name]; ok {
		return fmt.Errorf("%w: %s", ErrSeederExists, name)
	}

	r.seeders[name] = s
	return nil
}

// Names returns the sorted seeder names
func (r *SeedsRunner) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.seeders))
	for name := range r.seeders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run runs the named seeders in the given order, every seeder when no name
// is given. A failing seeder does not stop the ones after it.
func (r *SeedsRunner) Run(ctx context.Context, names ...string) ([]Result, error) {
	if len(names) == 0 {
		names = r.Names()
	}

	seeders := make([]Seeder, 0, len(names))

	r.mu.RLock()
	for _, name := range names {
		s, ok := r.seeders[name]
		if !ok {
			r.mu.RUnlock()
			return nil, fmt.Errorf("%w: %s", ErrSeederNotFound, name)
		}
		seeders = append(seeders, s)
	}
	r.mu.RUnlock()

	results := make([]Result, 0, len(names))

	for i, s := range seeders {
		results = append(results, r.run(ctx, names[i], s))
	}

	return results, nil
}

func (r *SeedsRunner) run(ctx context.Context, name string, s Seeder) Result {
	result := Result{Name: name, Status: StatusPending}

	if reason, skip := r.skip(s); skip {
		result.Status = StatusIgnored
		result.SkipReason = reason
		r.logger.Debugf("seeder %s ignored: %s", name, reason)
		return result
	}

	if err := s.Run(ctx, r.db); err != nil {
		result.Status = StatusFailed
		result.Error = err
		result.ErrorMessage = err.Error()
		r.logger.WithError(err).Errorf("seeder %s failed", name)
		return result
	}

	result.Status = StatusCompleted
	r.logger.Infof("seeded %s", name)

	return result
}

func (r *SeedsRunner) skip(s Seeder) (string, bool) {
	if do, ok := s.(DevelopmentOnly); ok && do.DevelopmentOnly() && r.environment != "development" {
		return "Enabled only in development environment", true
	}

	if er, ok := s.(EnvironmentsRestricted); ok {
		envs := er.Environments()
		if len(envs) == 0 {
			return "", false
		}
		for _, env := range envs {
			if env == r.environment {
				return "", false
			}
		}
		return fmt.Sprintf("Enabled only in %v environments", envs), true
	}

	return "", false
}

// Failed reports if any result failed
func Failed(results []Result) bool {
	for _, r := range results {
		if r.Status == StatusFailed {
			return true
		}
	}
	return false
}
