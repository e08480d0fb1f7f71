package database

import (
	"context"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type post struct {
	ID    uint
	Title string
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []QueryEvent
}

func (e *recordingEmitter) Emit(_ context.Context, name string, data any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if name == EventQuery {
		e.events = append(e.events, data.(QueryEvent))
	}
}

func memoryConfig() Config {
	return Config{
		Connection: "sqlite",
		Connections: map[string]ConnectionConfig{
			"sqlite": {Client: "sqlite", HealthCheck: true},
			"other":  {Client: "sqlite3", Connection: ConnectionOptions{Filename: ":memory:"}},
		},
	}
}

func newTestDatabase(t *testing.T, opts Options) *Database {
	t.Helper()

	if opts.Logger == nil {
		logger, _ := test.NewNullLogger()
		opts.Logger = logger
	}

	db, err := New(memoryConfig(), opts)
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close(context.Background()) })

	conn, err := db.Connection()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&post{}))

	return db
}

func TestConfigFromViper(t *testing.T) {
	t.Run("it should read the database section", func(t *testing.T) {
		v := viper.New()
		v.Set("database", map[string]any{
			"connection": "pg",
			"connections": map[string]any{
				"pg": map[string]any{
					"client":         "pg",
					"health_check":   true,
					"slow_threshold": "250ms",
					"connection":     map[string]any{"host": "db", "port": 5433, "database": "blog"},
					"pool":           map[string]any{"max_open": 10},
					"migrations":     map[string]any{"paths": []string{"database/migrations"}},
				},
			},
		})

		cfg, err := ConfigFromViper(v)
		require.NoError(t, err)

		pg := cfg.Connections["pg"]
		assert.Equal(t, "pg", cfg.Connection)
		assert.True(t, pg.HealthCheck)
		assert.Equal(t, "250ms", pg.SlowThreshold.String())
		assert.Equal(t, 5433, pg.Connection.Port)
		assert.Equal(t, 10, pg.Pool.MaxOpen)
		assert.Equal(t, []string{"database/migrations"}, pg.Migrations.Paths)
		assert.Equal(t, "kubit_schema", pg.MigrationsTable())
	})

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no connections", Config{Connection: "pg"}},
		{"unknown client", Config{Connection: "pg", Connections: map[string]ConnectionConfig{"pg": {Client: "mysql"}}}},
		{"missing default", Config{Connection: "pg", Connections: map[string]ConnectionConfig{"other": {Client: "pg"}}}},
		{"negative pool", Config{Connection: "pg", Connections: map[string]ConnectionConfig{"pg": {Client: "pg", Pool: PoolConfig{MaxOpen: -1}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	assert.Equal(t,
		"dbname=blog host=127.0.0.1 port=5432 user=app password=secret sslmode=disable",
		postgresDSN(ConnectionOptions{Database: "blog", User: "app", Password: "secret"}))

	assert.Equal(t, "postgres://db/blog", postgresDSN(ConnectionOptions{URL: "postgres://db/blog"}))

	t.Setenv("DATABASE_URL", "postgres://env/blog")
	assert.Equal(t, "postgres://env/blog", postgresDSN(ConnectionOptions{}))
}

func TestDialectOf(t *testing.T) {
	for client, expected := range map[string]Dialect{
		"pg": DialectPostgres, "postgres": DialectPostgres, "PostgreSQL": DialectPostgres,
		"sqlite": DialectSQLite, "sqlite3": DialectSQLite,
	} {
		d, err := DialectOf(client)
		require.NoError(t, err)
		assert.Equal(t, expected, d, client)
	}

	_, err := DialectOf("oracle")
	assert.ErrorIs(t, err, ErrUnsupportedClient)
}

func TestConnectionManager(t *testing.T) {
	logger, _ := test.NewNullLogger()
	m := NewConnectionManager(logger, nil, nil)

	m.Add("primary", ConnectionConfig{Client: "sqlite"})
	m.Add("primary", ConnectionConfig{Client: "pg"})

	node, err := m.Get("primary")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", node.Config.Client, "adding twice keeps the first config")
	assert.Equal(t, StateRegistered, node.State)

	_, err = m.Get("missing")
	assert.ErrorIs(t, err, ErrConnectionNotFound)

	_, err = m.Connect("missing")
	assert.ErrorIs(t, err, ErrConnectionNotFound)

	first, err := m.Connect("primary")
	require.NoError(t, err)
	second, err := m.Connect("primary")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.True(t, m.IsConnected("primary"))

	sqlDB, err := first.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)

	require.NoError(t, m.Close("primary"))
	assert.False(t, m.IsConnected("primary"))
	assert.True(t, m.Has("primary"))

	require.NoError(t, m.Patch("primary", ConnectionConfig{Client: "sqlite3"}))
	node, _ = m.Get("primary")
	assert.Equal(t, "sqlite3", node.Config.Client)

	_, err = m.Connect("primary")
	require.NoError(t, err)

	require.NoError(t, m.Release("primary"))
	assert.False(t, m.Has("primary"))
	assert.Equal(t, []string{}, m.Names())
}

func TestCloseAll(t *testing.T) {
	logger, _ := test.NewNullLogger()
	m := NewConnectionManager(logger, nil, nil)

	for _, name := range []string{"a", "b", "c"} {
		m.Add(name, ConnectionConfig{Client: "sqlite"})
		_, err := m.Connect(name)
		require.NoError(t, err)
	}

	require.NoError(t, m.CloseAll(context.Background()))

	for _, name := range m.Names() {
		assert.False(t, m.IsConnected(name), name)
	}
}

func TestDatabase(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t, Options{})

	assert.Equal(t, "sqlite", db.PrimaryConnectionName())
	assert.True(t, db.HasHealthChecksEnabled())

	t.Run("it should query a table", func(t *testing.T) {
		q, err := db.Query(ctx, "posts")
		require.NoError(t, err)
		require.NoError(t, q.Create(map[string]any{"title": "hello"}).Error)

		var titles []string
		q, err = db.Query(ctx, "posts")
		require.NoError(t, err)
		require.NoError(t, q.Pluck("title", &titles).Error)

		assert.Equal(t, []string{"hello"}, titles)
	})

	t.Run("it should run raw queries", func(t *testing.T) {
		var count int64
		q, err := db.RawQuery(ctx, "SELECT count(*) FROM posts WHERE title = ?", "hello")
		require.NoError(t, err)
		require.NoError(t, q.Scan(&count).Error)

		assert.Equal(t, int64(1), count)
	})

	t.Run("it should roll a transaction back on error", func(t *testing.T) {
		err := db.Transaction(ctx, func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(&post{Title: "rolled back"}).Error)
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)

		conn, _ := db.Connection()
		var count int64
		conn.Model(&post{}).Where("title = ?", "rolled back").Count(&count)
		assert.Zero(t, count)
	})

	t.Run("it should use the global transaction", func(t *testing.T) {
		tx, err := db.BeginGlobalTransaction(ctx)
		require.NoError(t, err)
		assert.True(t, db.InGlobalTransaction())

		_, err = db.BeginGlobalTransaction(ctx)
		assert.ErrorIs(t, err, ErrGlobalTransactionActive)

		conn, err := db.Connection()
		require.NoError(t, err)
		assert.Same(t, tx, conn)

		require.NoError(t, conn.Create(&post{Title: "temporary"}).Error)
		require.NoError(t, db.RollbackGlobalTransaction())

		conn, _ = db.Connection()
		var count int64
		conn.Model(&post{}).Where("title = ?", "temporary").Count(&count)
		assert.Zero(t, count)

		assert.ErrorIs(t, db.CommitGlobalTransaction(), ErrNoGlobalTransaction)
	})

	t.Run("it should report the health of checked connections", func(t *testing.T) {
		report, err := db.Report(ctx)
		require.NoError(t, err)

		assert.True(t, report.Healthy)
		assert.Equal(t, "All connections are healthy", report.Message)
		assert.Contains(t, report.Meta, "sqlite")
		assert.NotContains(t, report.Meta, "other")
	})

	t.Run("it should fail on unknown connections", func(t *testing.T) {
		_, err := db.Connection("missing")
		assert.ErrorIs(t, err, ErrConnectionNotFound)
	})
}

func TestQueryEvents(t *testing.T) {
	emitter := &recordingEmitter{}
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	cfg := memoryConfig()
	primary := cfg.Connections["sqlite"]
	primary.Debug = true
	cfg.Connections["sqlite"] = primary

	db, err := New(cfg, Options{Logger: logger, Emitter: emitter})
	require.NoError(t, err)
	defer db.Close(context.Background())

	conn, err := db.Connection()
	require.NoError(t, err)
	require.NoError(t, conn.Exec("SELECT 1").Error)

	emitter.mu.Lock()
	defer emitter.mu.Unlock()

	require.NotEmpty(t, emitter.events)
	last := emitter.events[len(emitter.events)-1]
	assert.Equal(t, "sqlite", last.Connection)
	assert.Equal(t, "SELECT 1", last.SQL)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "sqlite", hook.LastEntry().Data["connection"])
}
