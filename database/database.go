package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kubit-go/kubit/health"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

var (
	ErrNoGlobalTransaction     = errors.New("no global transaction in progress")
	ErrGlobalTransactionActive = errors.New("global transaction already in progress")
)

// Options are the collaborators of a Database, all optional
type Options struct {
	Logger  *logrus.Logger
	Emitter Emitter

	// NamingStrategy is handed to gorm (IE: orm.SnakeCaseNamingStrategy)
	NamingStrategy schema.Namer
}

// Database is the entry point to every configured connection
type Database struct {
	config  Config
	manager *ConnectionManager
	logger  *logrus.Logger

	mu       sync.RWMutex
	globalTx map[string]*gorm.DB
}

// New validates the config and registers every connection, nothing is
// opened until a connection is used
func New(cfg Config, opts Options) (*Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	db := &Database{
		config:   cfg,
		manager:  NewConnectionManager(logger, opts.Emitter, opts.NamingStrategy),
		logger:   logger,
		globalTx: make(map[string]*gorm.DB),
	}

	for name, cc := range cfg.Connections {
		db.manager.Add(name, cc)
	}

	return db, nil
}

func (db *Database) Config() Config                { return db.config }
func (db *Database) Manager() *ConnectionManager   { return db.manager }
func (db *Database) PrimaryConnectionName() string { return db.config.Connection }

func (db *Database) connectionName(name []string) string {
	if len(name) > 0 && name[0] != "" {
		return name[0]
	}
	return db.config.Connection
}

// ConnectionConfig returns the config of the named connection, the primary one by default
func (db *Database) ConnectionConfig(name ...string) (ConnectionConfig, error) {
	n := db.connectionName(name)

	cc, ok := db.config.Connections[n]
	if !ok {
		return cc, fmt.Errorf("%w: %s", ErrConnectionNotFound, n)
	}
	return cc, nil
}

// Connection returns the named connection (primary by default), the global
// transaction is returned instead while one is in progress
func (db *Database) Connection(name ...string) (*gorm.DB, error) {
	n := db.connectionName(name)

	db.mu.RLock()
	tx, ok := db.globalTx[n]
	db.mu.RUnlock()

	if ok {
		return tx, nil
	}

	return db.manager.Connect(n)
}

// Query starts a query on table
func (db *Database) Query(ctx context.Context, table string, connection ...string) (*gorm.DB, error) {
	conn, err := db.Connection(connection...)
	if err != nil {
		return nil, err
	}
	return conn.WithContext(ctx).Table(table), nil
}

// RawQuery prepares a raw sql query, the caller runs it with Scan, Rows or Exec
func (db *Database) RawQuery(ctx context.Context, sql string, args ...any) (*gorm.DB, error) {
	conn, err := db.Connection()
	if err != nil {
		return nil, err
	}
	return conn.WithContext(ctx).Raw(sql, args...), nil
}

// Transaction runs fn in a transaction, nested in a savepoint when a global
// transaction is in progress
func (db *Database) Transaction(ctx context.Context, fn func(tx *gorm.DB) error, connection ...string) error {
	conn, err := db.Connection(connection...)
	if err != nil {
		return err
	}
	return conn.WithContext(ctx).Transaction(fn)
}

// BeginGlobalTransaction starts a transaction every following query of the
// connection runs in, tests roll it back to reset the database
func (db *Database) BeginGlobalTransaction(ctx context.Context, connection ...string) (*gorm.DB, error) {
	n := db.connectionName(connection)

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.globalTx[n]; ok {
		return nil, fmt.Errorf("%w: %s", ErrGlobalTransactionActive, n)
	}

	conn, err := db.manager.Connect(n)
	if err != nil {
		return nil, err
	}

	tx := conn.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	db.globalTx[n] = tx
	return tx, nil
}

func (db *Database) CommitGlobalTransaction(connection ...string) error {
	tx, err := db.popGlobalTransaction(connection)
	if err != nil {
		return err
	}
	return tx.Commit().Error
}

func (db *Database) RollbackGlobalTransaction(connection ...string) error {
	tx, err := db.popGlobalTransaction(connection)
	if err != nil {
		return err
	}
	return tx.Rollback().Error
}

func (db *Database) popGlobalTransaction(connection []string) (*gorm.DB, error) {
	n := db.connectionName(connection)

	db.mu.Lock()
	defer db.mu.Unlock()

	tx, ok := db.globalTx[n]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoGlobalTransaction, n)
	}

	delete(db.globalTx, n)
	return tx, nil
}

func (db *Database) InGlobalTransaction(connection ...string) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, ok := db.globalTx[db.connectionName(connection)]
	return ok
}

// HasHealthChecksEnabled reports if any connection has health_check set
func (db *Database) HasHealthChecksEnabled() bool {
	for _, cc := range db.config.Connections {
		if cc.HealthCheck {
			return true
		}
	}
	return false
}

// Report implements health.Checker
func (db *Database) Report(ctx context.Context) (health.Report, error) {
	return db.manager.Report(ctx)
}

// Close rolls back pending global transactions and closes every connection
func (db *Database) Close(ctx context.Context) error {
	db.mu.Lock()
	var errs []error
	for name, tx := range db.globalTx {
		if err := tx.Rollback().Error; err != nil {
			errs = append(errs, err)
		}
		delete(db.globalTx, name)
	}
	db.mu.Unlock()

	return errors.Join(append(errs, db.manager.CloseAll(ctx))...)
}

var _ health.Checker = &Database{}
