package lucid

import (
	"context"

	"github.com/kubit-go/kubit"
	"github.com/kubit-go/kubit/database"
	"github.com/kubit-go/kubit/testutils"
)

// DBTestUtils is the "db" test helper. Every helper returns the cleanup
// undoing it, suites defer it or hand it to t.Cleanup.
//
//	db, _ := testutils.Helper[*lucid.DBTestUtils](app.TestUtils(), "db")
//	cleanup, err := db.Migrate(ctx)
//	require.NoError(t, err)
//	t.Cleanup(func() { _ = cleanup() })
type DBTestUtils struct {
	app *kubit.Application
	ace *kubit.Ace
}

func NewDBTestUtils(app *kubit.Application, ace *kubit.Ace) *DBTestUtils {
	return &DBTestUtils{app: app, ace: ace}
}

func (u *DBTestUtils) exec(ctx context.Context, args []string, connection []string) error {
	if len(connection) > 0 && connection[0] != "" {
		args = append(args, "--connection", connection[0])
	}
	return u.ace.Exec(ctx, args)
}

// Migrate runs the pending migrations, the cleanup rolls every batch back.
// The cleanup keeps the values of ctx but not its cancellation.
func (u *DBTestUtils) Migrate(ctx context.Context, connection ...string) (testutils.Cleanup, error) {
	if err := u.exec(ctx, []string{"migration:run", "--force"}, connection); err != nil {
		return nil, err
	}

	cleanupCtx := context.WithoutCancel(ctx)
	return func() error {
		return u.exec(cleanupCtx, []string{"migration:reset", "--force"}, connection)
	}, nil
}

// Truncate migrates like Migrate but its cleanup keeps the tables: every
// table except the schema one is emptied and its id sequence reset
func (u *DBTestUtils) Truncate(ctx context.Context, connection ...string) (testutils.Cleanup, error) {
	if err := u.exec(ctx, []string{"migration:run", "--force"}, connection); err != nil {
		return nil, err
	}

	cleanupCtx := context.WithoutCancel(ctx)
	return func() error {
		db, err := kubit.Use[*database.Database](u.app.Container(), BindingDatabase)
		if err != nil {
			return err
		}

		name := ""
		if len(connection) > 0 {
			name = connection[0]
		}
		return truncate(cleanupCtx, db, name)
	}, nil
}

// Seed runs the seeders, every one of them when no name is given
func (u *DBTestUtils) Seed(ctx context.Context, names ...string) (testutils.Cleanup, error) {
	args := []string{"db:seed"}
	for _, name := range names {
		args = append(args, "--files", name)
	}

	if err := u.ace.Exec(ctx, args); err != nil {
		return nil, err
	}
	return testutils.Noop, nil
}

// WithGlobalTransaction runs every query of the connection in a transaction
// the cleanup rolls back
func (u *DBTestUtils) WithGlobalTransaction(ctx context.Context, connection ...string) (testutils.Cleanup, error) {
	db, err := kubit.Use[*database.Database](u.app.Container(), BindingDatabase)
	if err != nil {
		return nil, err
	}

	if _, err := db.BeginGlobalTransaction(ctx, connection...); err != nil {
		return nil, err
	}

	return func() error {
		return db.RollbackGlobalTransaction(connection...)
	}, nil
}
