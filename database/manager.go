package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kubit-go/kubit/health"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

var ErrConnectionNotFound = errors.New("database connection not found")

type ConnectionState string

const (
	StateRegistered ConnectionState = "registered"
	StateOpen       ConnectionState = "open"
	StateClosed     ConnectionState = "closed"
)

// ConnectionNode is a named connection and its config, DB is nil until connected
type ConnectionNode struct {
	Name   string
	Config ConnectionConfig
	State  ConnectionState
	DB     *gorm.DB
}

// ConnectionManager opens connections lazily and keeps them by name
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[string]*ConnectionNode

	logger  *logrus.Logger
	emitter Emitter
	namer   schema.Namer
}

func NewConnectionManager(logger *logrus.Logger, emitter Emitter, namer schema.Namer) *ConnectionManager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &ConnectionManager{
		connections: make(map[string]*ConnectionNode),
		logger:      logger,
		emitter:     emitter,
		namer:       namer,
	}
}

// Add registers a connection config, adding a known name is a no-op
func (m *ConnectionManager) Add(name string, cfg ConnectionConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.connections[name]; ok {
		m.logger.Debugf("database connection %s is already registered", name)
		return
	}

	m.connections[name] = &ConnectionNode{Name: name, Config: cfg, State: StateRegistered}
}

// Patch replaces the config of a connection, an open connection is closed first
func (m *ConnectionManager) Patch(name string, cfg ConnectionConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if node, ok := m.connections[name]; ok && node.State == StateOpen {
		if err := closeNode(node); err != nil {
			return err
		}
	}

	m.connections[name] = &ConnectionNode{Name: name, Config: cfg, State: StateRegistered}
	return nil
}

func (m *ConnectionManager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.connections[name]
	return ok
}

func (m *ConnectionManager) IsConnected(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, ok := m.connections[name]
	return ok && node.State == StateOpen
}

// Names returns the sorted connection names
func (m *ConnectionManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.connections))
	for name := range m.connections {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// Get returns a copy of the connection node
func (m *ConnectionManager) Get(name string) (ConnectionNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	node, ok := m.connections[name]
	if !ok {
		return ConnectionNode{}, fmt.Errorf("%w: %s", ErrConnectionNotFound, name)
	}

	return *node, nil
}

// Connect opens the connection when it is not open yet and returns it
func (m *ConnectionManager) Connect(name string) (*gorm.DB, error) {
	m.mu.RLock()
	node, ok := m.connections[name]
	if ok && node.State == StateOpen {
		db := node.DB
		m.mu.RUnlock()
		return db, nil
	}
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// raced with another Connect or a Patch
	node, ok = m.connections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, name)
	}

	if node.State == StateOpen {
		return node.DB, nil
	}

	db, err := m.open(node)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", name, err)
	}

	node.DB = db
	node.State = StateOpen

	m.logger.Debugf("database connection %s opened (%s)", name, node.Config.Client)

	return db, nil
}

func (m *ConnectionManager) open(node *ConnectionNode) (*gorm.DB, error) {
	d, err := dialector(node.Config)
	if err != nil {
		return nil, err
	}

	cfg := &gorm.Config{
		Logger:         newLogger(m.logger, node.Name, node.Config, m.emitter),
		NamingStrategy: m.namer,
	}

	db, err := gorm.Open(d, cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	pool := node.Config.Pool
	if pool.MaxOpen > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpen)
	}
	if pool.MaxIdle > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdle)
	}
	if pool.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.MaxLifetime)
	}

	// every new connection to :memory: is a brand new database
	if isMemory(node.Config) {
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

// Close closes the connection, it can be connected again later
func (m *ConnectionManager) Close(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.connections[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, name)
	}

	return closeNode(node)
}

// Release closes the connection and forgets it
func (m *ConnectionManager) Release(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.connections[name]
	if !ok {
		return nil
	}

	delete(m.connections, name)
	return closeNode(node)
}

// CloseAll closes every open connection concurrently
func (m *ConnectionManager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		errMu sync.Mutex
		errs  []error
	)

	g, _ := errgroup.WithContext(ctx)

	for _, node := range m.connections {
		if node.State != StateOpen {
			continue
		}

		g.Go(func() error {
			if err := closeNode(node); err != nil {
				errMu.Lock()
				errs = append(errs, fmt.Errorf("failed to close %s: %w", node.Name, err))
				errMu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()

	return errors.Join(errs...)
}

func closeNode(node *ConnectionNode) error {
	if node.State != StateOpen || node.DB == nil {
		return nil
	}

	sqlDB, err := node.DB.DB()
	if err != nil {
		return err
	}

	node.State = StateClosed
	node.DB = nil

	return sqlDB.Close()
}

// Report pings every connection with health_check enabled
func (m *ConnectionManager) Report(ctx context.Context) (health.Report, error) {
	m.mu.RLock()
	names := make([]string, 0, len(m.connections))
	for name, node := range m.connections {
		if node.Config.HealthCheck {
			names = append(names, name)
		}
	}
	m.mu.RUnlock()

	sort.Strings(names)

	var mu sync.Mutex
	meta := make(map[string]any, len(names))
	healthy := true

	g, gctx := errgroup.WithContext(ctx)

	for _, name := range names {
		g.Go(func() error {
			entry := map[string]any{"healthy": true, "message": "Connection is healthy"}

			if err := m.ping(gctx, name); err != nil {
				entry = map[string]any{"healthy": false, "message": "Unable to reach the database server", "error": err.Error()}
			}

			mu.Lock()
			defer mu.Unlock()

			meta[name] = entry
			if !entry["healthy"].(bool) {
				healthy = false
			}
			return nil
		})
	}

	_ = g.Wait()

	report := health.Report{
		DisplayName: "Database",
		Healthy:     healthy,
		Message:     "All connections are healthy",
		Meta:        meta,
	}

	if !healthy {
		report.Message = "One or more connections are not healthy"
	}

	return report, nil
}

func (m *ConnectionManager) ping(ctx context.Context, name string) error {
	db, err := m.Connect(name)
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	return sqlDB.PingContext(ctx)
}
