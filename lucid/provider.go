// Package lucid wires the database layer into a kubit application. The
// DatabaseServiceProvider registers the database, orm, schema, factory,
// seeder and migrator bindings and ships the migration:* and db:* commands.
//
//	err := kubit.NewIgnitor(root, kubit.Options{
//		Providers: []kubit.Provider{
//			&lucid.DatabaseServiceProvider{Migrations: migrations.Registry},
//		},
//	}).Ace().Handle(os.Args[1:])
package lucid

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/kubit-go/kubit"
	"github.com/kubit-go/kubit/database"
	"github.com/kubit-go/kubit/factory"
	"github.com/kubit-go/kubit/health"
	"github.com/kubit-go/kubit/migrator"
	"github.com/kubit-go/kubit/orm"
	"github.com/kubit-go/kubit/repl"
	"github.com/kubit-go/kubit/schema"
	"github.com/kubit-go/kubit/seeder"
	"github.com/kubit-go/kubit/testutils"
	"github.com/kubit-go/kubit/validation"
	"github.com/sirupsen/logrus"
)

const (
	BindingDatabase = "Kubit/Database"
	BindingOrm      = "Kubit/Orm"
	BindingSchema   = "Kubit/Schema"
	BindingFactory  = "Kubit/Factory"
	BindingSeeder   = "Kubit/Seeder"
	BindingMigrator = "Kubit/Migrator"

	healthCheckerName = "lucid"
	testUtilsName     = "db"
)

// MigratorFactory is what Kubit/Migrator resolves to, every call returns a
// new single use Migrator with the application logger and emitter
type MigratorFactory func(opts migrator.Options) (*migrator.Migrator, error)

// SchemaBase is what Kubit/Schema resolves to: the schema builders migrations
// start from, next to the registry the provider runs them from
type SchemaBase struct {
	Migrations *migrator.Registry
}

func (SchemaBase) New() *schema.Schema { return schema.New() }

func (SchemaBase) NewMigration(up, down func(s *schema.Schema)) schema.Migration {
	return schema.NewMigration(up, down)
}

// Register adds a Go migration built from up and down to the registry
func (b *SchemaBase) Register(name string, up, down func(s *schema.Schema)) error {
	return b.Migrations.Register(name, schema.NewMigration(up, down))
}

type DatabaseServiceProvider struct {
	// Migrations are the Go migrations, they run next to the sql files of
	// the configured migrations paths
	Migrations *migrator.Registry

	Seeders map[string]seeder.Seeder

	// Models are exposed to the repl by loadModels
	Models map[string]any

	// Factories defines the model factories once the manager is built
	Factories func(m *factory.FactoryManager)

	NamingStrategy orm.SnakeCaseNamingStrategy
}

func (p *DatabaseServiceProvider) Name() string { return "lucid" }

func (p *DatabaseServiceProvider) Register(app *kubit.Application) error {
	if p.Migrations == nil {
		p.Migrations = migrator.NewRegistry()
	}

	c := app.Container()

	return errors.Join(
		c.Singleton(BindingDatabase, func(*kubit.Container) (any, error) {
			cfg, err := database.ConfigFromViper(app.Config())
			if err != nil {
				return nil, err
			}

			return database.New(cfg, database.Options{
				Logger:         app.Logger(),
				Emitter:        app,
				NamingStrategy: p.NamingStrategy,
			})
		}),

		c.Singleton(BindingOrm, func(c *kubit.Container) (any, error) {
			db, err := kubit.Use[*database.Database](c, BindingDatabase)
			if err != nil {
				return nil, err
			}
			return orm.NewAdapter(db, p.NamingStrategy), nil
		}),

		c.Singleton(BindingSchema, func(*kubit.Container) (any, error) {
			return &SchemaBase{Migrations: p.Migrations}, nil
		}),

		c.Singleton(BindingFactory, func(c *kubit.Container) (any, error) {
			db, err := kubit.Use[*database.Database](c, BindingDatabase)
			if err != nil {
				return nil, err
			}

			m := factory.NewFactoryManager(db, p.NamingStrategy)
			if p.Factories != nil {
				p.Factories(m)
			}
			return m, nil
		}),

		c.Singleton(BindingSeeder, func(c *kubit.Container) (any, error) {
			db, err := kubit.Use[*database.Database](c, BindingDatabase)
			if err != nil {
				return nil, err
			}

			runner := seeder.NewSeedsRunner(db, kubit.Env(), app.Logger())
			for name, s := range p.Seeders {
				if err := runner.Register(name, s); err != nil {
					return nil, err
				}
			}
			return runner, nil
		}),

		c.Bind(BindingMigrator, func(c *kubit.Container) (any, error) {
			db, err := kubit.Use[*database.Database](c, BindingDatabase)
			if err != nil {
				return nil, err
			}
			return p.migratorFactory(app, db), nil
		}),
	)
}

func (p *DatabaseServiceProvider) migratorFactory(app *kubit.Application, db *database.Database) MigratorFactory {
	return func(opts migrator.Options) (*migrator.Migrator, error) {
		if opts.ConnectionName == "" {
			opts.ConnectionName = db.PrimaryConnectionName()
		}

		if opts.Source == nil {
			cfg, err := db.ConnectionConfig(opts.ConnectionName)
			if err != nil {
				return nil, err
			}

			sources := []migrator.Source{p.Migrations}
			for _, dir := range cfg.Migrations.Paths {
				sources = append(sources, migrator.FileSource{Dir: appPath(app, dir)})
			}
			opts.Source = migrator.Sources(sources...)
		}

		if opts.Logger == nil {
			opts.Logger = app.Logger()
		}
		if opts.Emitter == nil {
			opts.Emitter = app
		}
		opts.Production = opts.Production || kubit.IsProduction()

		return migrator.New(db, opts)
	}
}

func (p *DatabaseServiceProvider) Boot(app *kubit.Application) error {
	c := app.Container()

	if !app.InEnvironment(kubit.EnvironmentRepl) {
		err := c.WithBindings([]string{kubit.BindingHealthCheck, BindingDatabase}, func(values ...any) error {
			hc, db := values[0].(*health.HealthCheck), values[1].(*database.Database)
			if !db.HasHealthChecksEnabled() {
				return nil
			}
			return hc.AddBindingChecker(healthCheckerName, BindingDatabase)
		})
		if err != nil {
			return err
		}

		err = c.WithBindings([]string{kubit.BindingValidator, BindingDatabase, kubit.BindingLogger}, func(values ...any) error {
			return extendValidator(values[0].(*validation.Validator), values[1].(*database.Database), values[2].(*logrus.Logger))
		})
		if err != nil {
			return err
		}
	}

	if app.InEnvironment(kubit.EnvironmentRepl) {
		err := c.WithBindings([]string{kubit.BindingRepl}, func(values ...any) error {
			return p.defineReplBindings(app, values[0].(*repl.Repl))
		})
		if err != nil {
			return err
		}
	}

	return c.WithBindings([]string{kubit.BindingTestUtils, kubit.BindingAce}, func(values ...any) error {
		return values[0].(*testutils.TestUtils).Register(testUtilsName, NewDBTestUtils(app, values[1].(*kubit.Ace)))
	})
}

// Shutdown closes the connections, the database is left alone when nothing resolved it
func (p *DatabaseServiceProvider) Shutdown(ctx context.Context, app *kubit.Application) error {
	if !app.Container().IsResolved(BindingDatabase) {
		return nil
	}

	db, err := kubit.Use[*database.Database](app.Container(), BindingDatabase)
	if err != nil {
		return err
	}
	return db.Close(ctx)
}

// appPath resolves a configured path against the application root
func appPath(app *kubit.Application, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return app.MakePath(path)
}

var (
	_ kubit.Provider         = &DatabaseServiceProvider{}
	_ kubit.ProviderBoot     = &DatabaseServiceProvider{}
	_ kubit.ProviderShutdown = &DatabaseServiceProvider{}
	_ kubit.ProviderCommands = &DatabaseServiceProvider{}
)
