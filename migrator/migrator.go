// Package migrator applies and rolls back migrations in batches and tracks
// them in the schema table of a connection.
package migrator

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/kubit-go/kubit/database"
	"github.com/kubit-go/kubit/schema"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	EventMigrationStart     = "migration:start"
	EventMigrationCompleted = "migration:completed"
	EventMigrationError     = "migration:error"
)

var (
	ErrAlreadyRun           = errors.New("migrator instance has already been used")
	ErrMigrationLocked      = errors.New("unable to acquire lock, concurrent migrations are not allowed")
	ErrRollbackInProduction = errors.New("rollbacks are disabled in production")
	ErrMissingMigration     = errors.New("cannot perform rollback, migration file is missing")
	ErrInvalidDirection     = errors.New("invalid migration direction")
)

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Status of a migrator run
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusError     Status = "error"
)

// FileStatus is the status of one migration of a run
type FileStatus string

const (
	FilePending   FileStatus = "pending"
	FileCompleted FileStatus = "completed"
	FileError     FileStatus = "error"
)

// ListStatus is the status of a migration reported by List
type ListStatus string

const (
	ListPending  ListStatus = "pending"
	ListMigrated ListStatus = "migrated"
	ListCorrupt  ListStatus = "corrupt"
)

type Options struct {
	Direction      Direction
	DryRun         bool
	ConnectionName string

	// Batch is the batch to roll back to, 0 rolls everything back and nil
	// rolls the latest batch back. Ignored when migrating up.
	Batch *int

	Source     Source
	Production bool

	Logger  *logrus.Logger
	Emitter database.Emitter
}

// MigratedFile is a migration touched by a run
type MigratedFile struct {
	Name    string     `json:"name"`
	Status  FileStatus `json:"status"`
	Batch   int        `json:"batch"`
	Queries []string   `json:"queries"`
}

// ListNode is a migration reported by List
type ListNode struct {
	Name          string     `json:"name"`
	Status        ListStatus `json:"status"`
	Batch         int        `json:"batch,omitempty"`
	MigrationTime *time.Time `json:"migrationTime,omitempty"`
}

// MigrationEvent is the payload of the migration:* events
type MigrationEvent struct {
	Name      string    `json:"name"`
	Direction Direction `json:"direction"`
	DryRun    bool      `json:"dryRun"`
	Err       error     `json:"-"`
}

// schemaRow is one row of the schema table
type schemaRow struct {
	ID            uint      `gorm:"primaryKey"`
	Name          string    `gorm:"size:255;not null"`
	Batch         int       `gorm:"not null"`
	MigrationTime time.Time `gorm:"not null"`
}

// Migrator runs once, create a new one per run
type Migrator struct {
	db     *database.Database
	opts   Options
	config database.ConnectionConfig
	logger *logrus.Entry

	mu       sync.RWMutex
	ran      bool
	status   Status
	err      error
	migrated []*MigratedFile
}

func New(db *database.Database, opts Options) (*Migrator, error) {
	if opts.Direction == "" {
		opts.Direction = DirectionUp
	}
	if opts.Direction != DirectionUp && opts.Direction != DirectionDown {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDirection, opts.Direction)
	}

	if opts.ConnectionName == "" {
		opts.ConnectionName = db.PrimaryConnectionName()
	}

	cfg, err := db.ConnectionConfig(opts.ConnectionName)
	if err != nil {
		return nil, err
	}

	if opts.Source == nil {
		sources := make([]Source, 0, len(cfg.Migrations.Paths))
		for _, p := range cfg.Migrations.Paths {
			sources = append(sources, FileSource{Dir: p})
		}
		opts.Source = Sources(sources...)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Migrator{
		db:     db,
		opts:   opts,
		config: cfg,
		logger: logger.WithFields(logrus.Fields{"connection": opts.ConnectionName, "direction": opts.Direction}),
		status: StatusPending,
	}, nil
}

func (m *Migrator) Direction() Direction { return m.opts.Direction }
func (m *Migrator) DryRun() bool         { return m.opts.DryRun }

func (m *Migrator) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Error is the error of a failed run
func (m *Migrator) Error() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// MigratedFiles returns the migrations of the run in execution order
func (m *Migrator) MigratedFiles() []MigratedFile {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ret := make([]MigratedFile, 0, len(m.migrated))
	for _, f := range m.migrated {
		ret = append(ret, *f)
	}
	return ret
}

// Run migrates up or down. A failing migration stops the run, its error is
// returned and kept in Error.
func (m *Migrator) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.ran {
		m.mu.Unlock()
		return ErrAlreadyRun
	}
	m.ran = true
	m.mu.Unlock()

	err := m.run(ctx)
	if err != nil {
		m.fail(err)
	}
	return err
}

func (m *Migrator) run(ctx context.Context) error {
	if m.opts.Direction == DirectionDown && m.opts.Production && m.config.Migrations.DisableRollbacksInProduction {
		return ErrRollbackInProduction
	}

	conn, err := m.db.Connection(m.opts.ConnectionName)
	if err != nil {
		return err
	}
	conn = conn.WithContext(ctx)

	if err := m.makeSchemaTable(conn); err != nil {
		return err
	}

	if !m.shouldLock() {
		return m.migrate(ctx, conn)
	}

	// advisory locks belong to a session, the whole run stays on one connection
	return conn.Connection(func(c *gorm.DB) error {
		if err := m.lock(c); err != nil {
			return err
		}
		defer m.unlock(c)

		return m.migrate(ctx, c)
	})
}

func (m *Migrator) migrate(ctx context.Context, conn *gorm.DB) error {
	if m.opts.Direction == DirectionUp {
		return m.runUp(ctx, conn)
	}
	return m.runDown(ctx, conn)
}

func (m *Migrator) runUp(ctx context.Context, conn *gorm.DB) error {
	files, err := m.files()
	if err != nil {
		return err
	}

	rows, err := m.migratedRows(conn)
	if err != nil {
		return err
	}

	done := make(map[string]struct{}, len(rows))
	latest := 0
	for _, r := range rows {
		done[r.Name] = struct{}{}
		latest = max(latest, r.Batch)
	}

	batch := latest + 1

	var pending []MigrationFile
	for _, f := range files {
		if _, ok := done[f.Name]; !ok {
			pending = append(pending, f)
		}
	}

	if len(pending) == 0 {
		m.setStatus(StatusSkipped)
		return nil
	}

	for _, f := range pending {
		m.track(f.Name, batch)
	}

	for _, f := range pending {
		if err := m.execute(ctx, conn, f, batch); err != nil {
			return err
		}
	}

	m.setStatus(StatusCompleted)
	return nil
}

func (m *Migrator) runDown(ctx context.Context, conn *gorm.DB) error {
	files, err := m.files()
	if err != nil {
		return err
	}

	byName := make(map[string]MigrationFile, len(files))
	for _, f := range files {
		byName[f.Name] = f
	}

	rows, err := m.migratedRows(conn)
	if err != nil {
		return err
	}

	latest := 0
	for _, r := range rows {
		latest = max(latest, r.Batch)
	}

	target := latest - 1
	if m.opts.Batch != nil {
		target = *m.opts.Batch
	}

	var rollback []schemaRow
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Batch > target {
			rollback = append(rollback, rows[i])
		}
	}

	if len(rollback) == 0 {
		m.setStatus(StatusSkipped)
		return nil
	}

	for _, r := range rollback {
		if _, ok := byName[r.Name]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingMigration, r.Name)
		}
		m.track(r.Name, r.Batch)
	}

	for _, r := range rollback {
		if err := m.execute(ctx, conn, byName[r.Name], r.Batch); err != nil {
			return err
		}
	}

	m.setStatus(StatusCompleted)
	return nil
}

// execute runs one migration and records it in the schema table, both in a
// transaction unless the migration disables them
func (m *Migrator) execute(ctx context.Context, conn *gorm.DB, f MigrationFile, batch int) error {
	event := MigrationEvent{Name: f.Name, Direction: m.opts.Direction, DryRun: m.opts.DryRun}
	m.emit(ctx, EventMigrationStart, event)

	s := schema.New()
	if m.opts.Direction == DirectionUp {
		f.Migration.Up(s)
	} else {
		f.Migration.Down(s)
	}

	var (
		queries []string
		err     error
	)

	switch {
	case m.opts.DryRun:
		queries, err = s.DryRun(ctx, conn)
	case transactionsDisabled(f.Migration):
		queries, err = s.Execute(ctx, conn)
		if err == nil {
			err = m.record(conn, f.Name, batch)
		}
	default:
		err = conn.Transaction(func(tx *gorm.DB) error {
			var txErr error
			if queries, txErr = s.Execute(ctx, tx); txErr != nil {
				return txErr
			}
			return m.record(tx, f.Name, batch)
		})
	}

	m.mu.Lock()
	for _, mf := range m.migrated {
		if mf.Name == f.Name {
			mf.Queries = queries
			mf.Status = FileCompleted
			if err != nil {
				mf.Status = FileError
			}
		}
	}
	m.mu.Unlock()

	if err != nil {
		event.Err = err
		m.emit(ctx, EventMigrationError, event)
		m.logger.WithError(err).Errorf("migration %s failed", f.Name)
		return fmt.Errorf("migration %s failed: %w", f.Name, err)
	}

	m.emit(ctx, EventMigrationCompleted, event)
	m.logger.Infof("migrated %s", f.Name)

	return nil
}

func transactionsDisabled(mig schema.Migration) bool {
	td, ok := mig.(schema.TransactionDisabler)
	return ok && td.DisableTransactions()
}

func (m *Migrator) record(tx *gorm.DB, name string, batch int) error {
	table := tx.Table(m.config.MigrationsTable())

	if m.opts.Direction == DirectionUp {
		return table.Create(&schemaRow{Name: name, Batch: batch, MigrationTime: time.Now()}).Error
	}
	return table.Where("name = ?", name).Delete(&schemaRow{}).Error
}

// List reports every migration: migrated rows in order, then the pending files.
// Rows without a file are corrupt.
func (m *Migrator) List(ctx context.Context) ([]ListNode, error) {
	conn, err := m.db.Connection(m.opts.ConnectionName)
	if err != nil {
		return nil, err
	}
	conn = conn.WithContext(ctx)

	if err := m.makeSchemaTable(conn); err != nil {
		return nil, err
	}

	files, err := m.files()
	if err != nil {
		return nil, err
	}

	rows, err := m.migratedRows(conn)
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(files))
	for _, f := range files {
		known[f.Name] = struct{}{}
	}

	done := make(map[string]struct{}, len(rows))
	nodes := make([]ListNode, 0, len(files)+len(rows))

	for _, r := range rows {
		done[r.Name] = struct{}{}

		status := ListMigrated
		if _, ok := known[r.Name]; !ok {
			status = ListCorrupt
		}

		migratedAt := r.MigrationTime
		nodes = append(nodes, ListNode{Name: r.Name, Status: status, Batch: r.Batch, MigrationTime: &migratedAt})
	}

	for _, f := range files {
		if _, ok := done[f.Name]; !ok {
			nodes = append(nodes, ListNode{Name: f.Name, Status: ListPending})
		}
	}

	return nodes, nil
}

func (m *Migrator) files() ([]MigrationFile, error) {
	files, err := m.opts.Source.Migrations()
	if err != nil {
		return nil, err
	}

	sortFiles(files, m.config.Migrations.NaturalSort)
	return files, nil
}

func (m *Migrator) migratedRows(conn *gorm.DB) ([]schemaRow, error) {
	var rows []schemaRow
	err := conn.Table(m.config.MigrationsTable()).Order("id").Find(&rows).Error
	return rows, err
}

func (m *Migrator) makeSchemaTable(conn *gorm.DB) error {
	table := m.config.MigrationsTable()

	if conn.Migrator().HasTable(table) {
		return nil
	}

	return conn.Table(table).Migrator().CreateTable(&schemaRow{})
}

func (m *Migrator) shouldLock() bool {
	if m.opts.DryRun || m.config.Migrations.DisableLocks {
		return false
	}

	dialect, _ := database.DialectOf(m.config.Client)
	return dialect == database.DialectPostgres && !m.db.InGlobalTransaction(m.opts.ConnectionName)
}

func (m *Migrator) lockKey() int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(m.opts.ConnectionName + ":" + m.config.MigrationsTable()))
	return int64(h.Sum64())
}

func (m *Migrator) lock(conn *gorm.DB) error {
	var acquired bool
	if err := conn.Raw("SELECT pg_try_advisory_lock(?)", m.lockKey()).Scan(&acquired).Error; err != nil {
		return err
	}

	if !acquired {
		return ErrMigrationLocked
	}
	return nil
}

func (m *Migrator) unlock(conn *gorm.DB) {
	var released bool
	if err := conn.Raw("SELECT pg_advisory_unlock(?)", m.lockKey()).Scan(&released).Error; err != nil {
		m.logger.WithError(err).Warn("failed to release the migration lock")
	}
}

func (m *Migrator) track(name string, batch int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.migrated = append(m.migrated, &MigratedFile{Name: name, Status: FilePending, Batch: batch})
}

func (m *Migrator) setStatus(s Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = s
}

func (m *Migrator) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.status = StatusError
	m.err = err
}

func (m *Migrator) emit(ctx context.Context, name string, event MigrationEvent) {
	if m.opts.Emitter != nil {
		m.opts.Emitter.Emit(ctx, name, event)
	}
}
