package lucid

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kubit-go/kubit"
	"github.com/kubit-go/kubit/migrator"
	"github.com/kubit-go/kubit/seeder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationCommands(t *testing.T) {
	p := newProvider()
	app, _ := newTestApp(t, p)

	run := func(t *testing.T, args ...string) string {
		t.Helper()

		out, err := execAce(t, app, args...)
		require.NoError(t, err, out)
		return out
	}

	t.Run("status lists pending migrations", func(t *testing.T) {
		out := run(t, "migration:status")

		assert.Contains(t, out, "Name")
		assert.Regexp(t, `1_create_users\s+pending\s+NA`, out)
	})

	t.Run("dry run prints the queries without migrating", func(t *testing.T) {
		out := run(t, "migration:run", "--dry-run")

		assert.Contains(t, out, "❯ dry run 1_create_users")
		assert.Contains(t, out, "CREATE TABLE `users`")
		assert.False(t, hasTable(t, app, "users"))
	})

	t.Run("run migrates the pending migrations", func(t *testing.T) {
		out := run(t, "migration:run")

		assert.Equal(t, "❯ migrated 1_create_users\n", out)
		assert.True(t, hasTable(t, app, "users"))

		assert.Equal(t, "Already up to date\n", run(t, "migration:run"))
		assert.Regexp(t, `1_create_users\s+migrated\s+1`, run(t, "migration:status"))
	})

	t.Run("rollback reverts the latest batch", func(t *testing.T) {
		p.Migrations.MustRegister("2_create_posts", createPosts())

		assert.Equal(t, "❯ migrated 2_create_posts\n", run(t, "migration:run"))
		assert.Regexp(t, `2_create_posts\s+migrated\s+2`, run(t, "migration:status"))

		assert.Equal(t, "❯ reverted 2_create_posts\n", run(t, "migration:rollback"))
		assert.False(t, hasTable(t, app, "posts"))
		assert.True(t, hasTable(t, app, "users"))

		assert.Equal(t, "❯ migrated 2_create_posts\n", run(t, "migration:run"))
		assert.Equal(t, "❯ reverted 2_create_posts\n❯ reverted 1_create_users\n", run(t, "migration:rollback", "--batch", "0"))
		assert.False(t, hasTable(t, app, "users"))

		assert.Equal(t, "Already at latest batch\n", run(t, "migration:rollback"))
	})

	t.Run("refresh resets, migrates and seeds", func(t *testing.T) {
		run(t, "migration:run")

		out := run(t, "migration:refresh", "--seed")

		assert.Equal(t, strings.Join([]string{
			"❯ reverted 2_create_posts",
			"❯ reverted 1_create_users",
			"❯ migrated 1_create_users",
			"❯ migrated 2_create_posts",
			"❯ completed users",
		}, "\n")+"\n", out)
		assert.Equal(t, int64(2), countUsers(t, app))
	})

	t.Run("reset rolls every batch back", func(t *testing.T) {
		out := run(t, "migration:reset")

		assert.Contains(t, out, "❯ reverted 1_create_users")
		assert.False(t, hasTable(t, app, "users"))
	})

	t.Run("fresh drops every table before migrating", func(t *testing.T) {
		run(t, "migration:run")
		run(t, "db:seed")

		out := run(t, "migration:fresh")

		assert.Contains(t, out, "❯ dropped users")
		assert.Contains(t, out, "❯ dropped kubit_schema")
		assert.Contains(t, out, "❯ migrated 1_create_users")
		assert.Equal(t, int64(0), countUsers(t, app))
	})

	t.Run("db:seed runs the named seeders", func(t *testing.T) {
		out := run(t, "db:seed", "--files", "users")

		assert.Equal(t, "❯ completed users\n", out)
		assert.Equal(t, int64(2), countUsers(t, app))

		// a second run hits the unique index
		out, err := execAce(t, app, "db:seed")
		assert.ErrorIs(t, err, ErrSeedersFailed)
		assert.Contains(t, out, "❯ error users")

		_, err = execAce(t, app, "db:seed", "--files", "missing")
		assert.ErrorIs(t, err, seeder.ErrSeederNotFound)
	})

	t.Run("db:wipe drops every table", func(t *testing.T) {
		out := run(t, "db:wipe")

		assert.Contains(t, out, "❯ dropped users")
		assert.Contains(t, out, "❯ dropped posts")
		assert.False(t, hasTable(t, app, "users"))
		assert.False(t, hasTable(t, app, "kubit_schema"))
	})

	t.Run("it should fail on an unknown connection", func(t *testing.T) {
		_, err := execAce(t, app, "migration:run", "--connection", "missing")
		assert.Error(t, err)
	})
}

func TestMigrationRunFromFiles(t *testing.T) {
	app, _ := newTestApp(t, &DatabaseServiceProvider{})

	dir := app.MakePath("database", "migrations")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1_tags.up.sql"), []byte("CREATE TABLE tags (id integer primary key, name text);\n-- endStatement\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1_tags.down.sql"), []byte("DROP TABLE tags;\n"), 0o644))

	out, err := execAce(t, app, "migration:run")
	require.NoError(t, err)
	assert.Equal(t, "❯ migrated 1_tags\n", out)
	assert.True(t, hasTable(t, app, "tags"))

	out, err = execAce(t, app, "migration:rollback")
	require.NoError(t, err)
	assert.Equal(t, "❯ reverted 1_tags\n", out)
	assert.False(t, hasTable(t, app, "tags"))
}

func TestMakeMigrationCommand(t *testing.T) {
	app, _ := newTestApp(t, newProvider())

	t.Run("it should write into the first migrations path", func(t *testing.T) {
		out, err := execAce(t, app, "make:migration", "create posts")
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 2)
		assert.Regexp(t, `^❯ create database/migrations/\d{14}_create_posts\.up\.sql$`, lines[0])
		assert.Regexp(t, `^❯ create database/migrations/\d{14}_create_posts\.down\.sql$`, lines[1])

		files, err := filepath.Glob(app.MakePath("database", "migrations", "*_create_posts.*.sql"))
		require.NoError(t, err)
		assert.Len(t, files, 2)
	})

	t.Run("it should honor the folder flag", func(t *testing.T) {
		out, err := execAce(t, app, "make:migration", "add tags", "--folder", "stubs")
		require.NoError(t, err)
		assert.Contains(t, out, "❯ create stubs/")

		files, err := filepath.Glob(app.MakePath("stubs", "*_add_tags.up.sql"))
		require.NoError(t, err)
		assert.Len(t, files, 1)
	})

	t.Run("it should require a name", func(t *testing.T) {
		_, err := execAce(t, app, "make:migration")
		assert.Error(t, err)
	})
}

func TestProductionConfirmation(t *testing.T) {
	app, _ := newTestApp(t, newProvider())

	kubit.SetEnv(kubit.Production)
	t.Cleanup(func() { kubit.SetEnv(kubit.Test) })

	withTerminal := func(t *testing.T, terminal bool, input string) {
		t.Helper()

		prev := isTerminal
		isTerminal = func(io.Reader) bool { return terminal }
		t.Cleanup(func() {
			isTerminal = prev
			app.Ace().Root().SetIn(nil)
		})

		app.Ace().Root().SetIn(strings.NewReader(input))
	}

	t.Run("it should refuse without a terminal", func(t *testing.T) {
		withTerminal(t, false, "")

		_, err := execAce(t, app, "migration:run")
		assert.ErrorIs(t, err, ErrForceRequired)
		assert.False(t, hasTable(t, app, "users"))
	})

	t.Run("it should cancel when the answer is not yes", func(t *testing.T) {
		withTerminal(t, true, "n\n")

		out, err := execAce(t, app, "migration:run")
		require.NoError(t, err)
		assert.Contains(t, out, "(y/N)")
		assert.Contains(t, out, "Cancelled")
		assert.False(t, hasTable(t, app, "users"))
	})

	t.Run("it should run once confirmed", func(t *testing.T) {
		withTerminal(t, true, "yes\n")

		out, err := execAce(t, app, "migration:run")
		require.NoError(t, err)
		assert.Contains(t, out, "❯ migrated 1_create_users")
	})

	t.Run("it should skip the prompt with --force", func(t *testing.T) {
		withTerminal(t, false, "")

		out, err := execAce(t, app, "db:wipe", "--force")
		require.NoError(t, err)
		assert.Contains(t, out, "❯ dropped users")
	})

	t.Run("it should not prompt for read only commands", func(t *testing.T) {
		withTerminal(t, false, "")

		_, err := execAce(t, app, "migration:status")
		assert.NoError(t, err)
	})
}

func TestMigratorFactoryDefaults(t *testing.T) {
	app, _ := newTestApp(t, newProvider())

	build := kubit.MustUse[MigratorFactory](app.Container(), BindingMigrator)

	m, err := build(migrator.Options{Direction: migrator.DirectionDown, DryRun: true})
	require.NoError(t, err)
	assert.True(t, m.DryRun())

	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, migrator.StatusSkipped, m.Status())

	_, err = build(migrator.Options{ConnectionName: "missing"})
	assert.Error(t, err)
}
