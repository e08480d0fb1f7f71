// Package factory builds fake models for tests and seeders.
//
//	users := factory.Define(manager, func(fc *factory.FactoryContext) User {
//		return User{Email: fc.Faker.Email()}
//	}).State("admin", func(u *User, _ *factory.FactoryContext) { u.Role = "admin" })
//
//	admin, err := users.Query().Apply("admin").Create(ctx)
package factory

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/kubit-go/kubit/database"
	"github.com/kubit-go/kubit/orm"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrUnknownState    = errors.New("unknown factory state")
	ErrUnknownRelation = errors.New("unknown factory relation")
	ErrFactoryNotFound = errors.New("factory is not defined")
)

// FactoryContext is handed to definitions, states and relations
type FactoryContext struct {
	Faker     *gofakeit.Faker
	IsStubbed bool
	Tx        *gorm.DB
}

// Decimal returns a random decimal between min and max rounded to places
func (fc *FactoryContext) Decimal(min, max float64, places int32) decimal.Decimal {
	return decimal.NewFromFloat(fc.Faker.Float64Range(min, max)).Round(places)
}

// FactoryManager keeps the factories by model name and the stub id sequences
type FactoryManager struct {
	db     *database.Database
	naming orm.SnakeCaseNamingStrategy
	faker  *gofakeit.Faker

	mu        sync.RWMutex
	factories map[string]any
	sequences map[string]uint64
}

func NewFactoryManager(db *database.Database, naming orm.SnakeCaseNamingStrategy) *FactoryManager {
	return &FactoryManager{
		db:        db,
		naming:    naming,
		faker:     gofakeit.New(0),
		factories: make(map[string]any),
		sequences: make(map[string]uint64),
	}
}

// Seed makes the fake data deterministic
func (m *FactoryManager) Seed(seed int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.faker = gofakeit.New(seed)
}

func (m *FactoryManager) Faker() *gofakeit.Faker {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.faker
}

func (m *FactoryManager) Database() *database.Database { return m.db }

func (m *FactoryManager) register(name string, f any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.factories[name] = f
}

// Names returns the sorted model names having a factory
func (m *FactoryManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.factories))
	for name := range m.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *FactoryManager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.factories[name]
	return ok
}

// ResetSequences restarts the stub ids
func (m *FactoryManager) ResetSequences() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sequences = make(map[string]uint64)
}

func (m *FactoryManager) nextID(model string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sequences[model]++
	return m.sequences[model]
}

// Get returns the factory of T
func Get[T any](m *FactoryManager) (*Factory[T], error) {
	name := modelName[T]()

	m.mu.RLock()
	f, ok := m.factories[name]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFactoryNotFound, name)
	}
	return f.(*Factory[T]), nil
}

func modelName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().Name()
}
