package lucid

import (
	"context"
	"strings"

	"github.com/kubit-go/kubit/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const sqliteSequence = "sqlite_sequence"

// tables lists the user tables of a connection
func tables(conn *gorm.DB) ([]string, error) {
	all, err := conn.Migrator().GetTables()
	if err != nil {
		return nil, err
	}

	ret := make([]string, 0, len(all))
	for _, t := range all {
		if strings.HasPrefix(t, "sqlite_") {
			continue
		}
		ret = append(ret, t)
	}
	return ret, nil
}

// wipe drops every table of the connection, the schema table included
func wipe(ctx context.Context, db *database.Database, connection string) ([]string, error) {
	conn, err := db.Connection(connection)
	if err != nil {
		return nil, err
	}
	conn = conn.WithContext(ctx)

	names, err := tables(conn)
	if err != nil {
		return nil, err
	}

	if len(names) == 0 {
		return names, nil
	}

	dropped := make([]any, 0, len(names))
	for _, name := range names {
		dropped = append(dropped, name)
	}

	return names, conn.Migrator().DropTable(dropped...)
}

// truncate empties every table but the schema one and resets their sequences
func truncate(ctx context.Context, db *database.Database, connection string) error {
	cc, err := db.ConnectionConfig(connection)
	if err != nil {
		return err
	}

	dialect, err := database.DialectOf(cc.Client)
	if err != nil {
		return err
	}

	conn, err := db.Connection(connection)
	if err != nil {
		return err
	}
	conn = conn.WithContext(ctx)

	names, err := tables(conn)
	if err != nil {
		return err
	}

	hasSequences := dialect == database.DialectSQLite && conn.Migrator().HasTable(sqliteSequence)

	for _, name := range names {
		if name == cc.MigrationsTable() {
			continue
		}

		table := clause.Table{Name: name}

		if dialect == database.DialectPostgres {
			if err := conn.Exec("TRUNCATE ? RESTART IDENTITY CASCADE", table).Error; err != nil {
				return err
			}
			continue
		}

		if err := conn.Exec("DELETE FROM ?", table).Error; err != nil {
			return err
		}
		if hasSequences {
			if err := conn.Exec("DELETE FROM ? WHERE name = ?", clause.Table{Name: sqliteSequence}, name).Error; err != nil {
				return err
			}
		}
	}

	return nil
}
