// Package schema queues table changes for migrations. A migration fills a
// Schema in Up or Down and the migrator runs the queue, for real or dry.
package schema

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Migration is a Go migration registered on the migrator
type Migration interface {
	Up(s *Schema)
	Down(s *Schema)
}

// TransactionDisabler is implemented by migrations that cannot run in a
// transaction (IE: CREATE INDEX CONCURRENTLY)
type TransactionDisabler interface {
	DisableTransactions() bool
}

type migrationFuncs struct {
	up, down func(s *Schema)
}

func (m migrationFuncs) Up(s *Schema)   { m.up(s) }
func (m migrationFuncs) Down(s *Schema) { m.down(s) }

// NewMigration builds a Migration out of two functions
func NewMigration(up, down func(s *Schema)) Migration {
	noop := func(*Schema) {}
	if up == nil {
		up = noop
	}
	if down == nil {
		down = noop
	}
	return migrationFuncs{up: up, down: down}
}

type opFunc func(tx *gorm.DB, dryRun bool) error

type op struct {
	name string
	fn   opFunc
}

// Schema is the queue of operations of one migration direction
type Schema struct {
	ops []op
}

func New() *Schema {
	return &Schema{}
}

func (s *Schema) push(name string, fn opFunc) *Schema {
	s.ops = append(s.ops, op{name: name, fn: fn})
	return s
}

// Ops returns the names of the queued operations
func (s *Schema) Ops() []string {
	names := make([]string, 0, len(s.ops))
	for _, o := range s.ops {
		names = append(names, o.name)
	}
	return names
}

func (s *Schema) Len() int { return len(s.ops) }

// CreateTable creates the tables of models, the columns come from the model fields
func (s *Schema) CreateTable(models ...any) *Schema {
	return s.push("createTable", func(tx *gorm.DB, _ bool) error {
		return tx.Migrator().CreateTable(models...)
	})
}

// CreateTableIfNotExists skips the models whose table exists, dry runs
// cannot look and create every table
func (s *Schema) CreateTableIfNotExists(models ...any) *Schema {
	return s.push("createTableIfNotExists", func(tx *gorm.DB, dryRun bool) error {
		for _, m := range models {
			if !dryRun && tx.Migrator().HasTable(m) {
				continue
			}
			if err := tx.Migrator().CreateTable(m); err != nil {
				return err
			}
		}
		return nil
	})
}

// DropTable drops tables given by name or model, a missing table is an error
func (s *Schema) DropTable(tables ...any) *Schema {
	return s.push("dropTable", func(tx *gorm.DB, _ bool) error {
		for _, t := range tables {
			name, err := tableName(tx, t)
			if err != nil {
				return err
			}
			if err := tx.Exec("DROP TABLE ?", clause.Table{Name: name}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Schema) DropTableIfExists(tables ...any) *Schema {
	return s.push("dropTableIfExists", func(tx *gorm.DB, _ bool) error {
		for _, t := range tables {
			name, err := tableName(tx, t)
			if err != nil {
				return err
			}
			if err := tx.Exec("DROP TABLE IF EXISTS ?", clause.Table{Name: name}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Schema) RenameTable(from, to any) *Schema {
	return s.push("renameTable", func(tx *gorm.DB, _ bool) error {
		oldName, err := tableName(tx, from)
		if err != nil {
			return err
		}
		newName, err := tableName(tx, to)
		if err != nil {
			return err
		}
		return tx.Exec("ALTER TABLE ? RENAME TO ?", clause.Table{Name: oldName}, clause.Table{Name: newName}).Error
	})
}

// AddColumn adds the column of a model field
func (s *Schema) AddColumn(model any, field string) *Schema {
	return s.push("addColumn", func(tx *gorm.DB, _ bool) error {
		return tx.Migrator().AddColumn(model, field)
	})
}

func (s *Schema) DropColumn(table any, column string) *Schema {
	return s.push("dropColumn", func(tx *gorm.DB, _ bool) error {
		name, err := tableName(tx, table)
		if err != nil {
			return err
		}
		return tx.Exec("ALTER TABLE ? DROP COLUMN ?", clause.Table{Name: name}, clause.Column{Name: column}).Error
	})
}

func (s *Schema) RenameColumn(table any, from, to string) *Schema {
	return s.push("renameColumn", func(tx *gorm.DB, _ bool) error {
		name, err := tableName(tx, table)
		if err != nil {
			return err
		}
		return tx.Exec("ALTER TABLE ? RENAME COLUMN ? TO ?",
			clause.Table{Name: name}, clause.Column{Name: from}, clause.Column{Name: to}).Error
	})
}

// CreateIndex indexes columns of table
func (s *Schema) CreateIndex(table any, name string, columns ...string) *Schema {
	return s.createIndex("createIndex", "CREATE INDEX ? ON ? ?", table, name, columns)
}

func (s *Schema) CreateUniqueIndex(table any, name string, columns ...string) *Schema {
	return s.createIndex("createUniqueIndex", "CREATE UNIQUE INDEX ? ON ? ?", table, name, columns)
}

func (s *Schema) createIndex(opName, sql string, table any, name string, columns []string) *Schema {
	return s.push(opName, func(tx *gorm.DB, _ bool) error {
		if len(columns) == 0 {
			return fmt.Errorf("index %s has no columns", name)
		}

		t, err := tableName(tx, table)
		if err != nil {
			return err
		}

		cols := make([]any, 0, len(columns))
		for _, c := range columns {
			cols = append(cols, clause.Column{Name: c})
		}

		return tx.Exec(sql, clause.Column{Name: name}, clause.Table{Name: t}, cols).Error
	})
}

func (s *Schema) DropIndex(name string) *Schema {
	return s.push("dropIndex", func(tx *gorm.DB, _ bool) error {
		return tx.Exec("DROP INDEX ?", clause.Column{Name: name}).Error
	})
}

// Raw queues a raw statement
func (s *Schema) Raw(sql string, args ...any) *Schema {
	return s.push("raw", func(tx *gorm.DB, _ bool) error {
		return tx.Exec(sql, args...).Error
	})
}

// Defer queues arbitrary work (IE: backfilling a column), it is skipped by dry runs
func (s *Schema) Defer(fn func(tx *gorm.DB) error) *Schema {
	return s.push("defer", func(tx *gorm.DB, dryRun bool) error {
		if dryRun {
			return nil
		}
		return fn(tx)
	})
}

// Execute runs the queued operations in order on db
func (s *Schema) Execute(ctx context.Context, db *gorm.DB) ([]string, error) {
	return s.run(ctx, db, false)
}

// DryRun runs the queue on a dry run session and returns the sql it would execute
func (s *Schema) DryRun(ctx context.Context, db *gorm.DB) ([]string, error) {
	return s.run(ctx, db, true)
}

func (s *Schema) run(ctx context.Context, db *gorm.DB, dryRun bool) ([]string, error) {
	capture := newCaptureLogger(db.Logger, dryRun)

	tx := db.Session(&gorm.Session{
		DryRun:  dryRun,
		Logger:  capture,
		Context: ctx,
	})

	for i, o := range s.ops {
		if err := o.fn(tx, dryRun); err != nil {
			return capture.Queries(), fmt.Errorf("schema operation %d (%s) failed: %w", i+1, o.name, err)
		}
	}

	return capture.Queries(), nil
}

func tableName(tx *gorm.DB, t any) (string, error) {
	if name, ok := t.(string); ok {
		return strings.TrimSpace(name), nil
	}

	stmt := &gorm.Statement{DB: tx}
	if err := stmt.Parse(t); err != nil {
		return "", err
	}
	return stmt.Table, nil
}
