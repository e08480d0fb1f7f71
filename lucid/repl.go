package lucid

import (
	"context"
	"sort"
	"strings"

	"github.com/kubit-go/kubit"
	"github.com/kubit-go/kubit/database"
	"github.com/kubit-go/kubit/factory"
	"github.com/kubit-go/kubit/migrator"
	"github.com/kubit-go/kubit/repl"
)

func (p *DatabaseServiceProvider) defineReplBindings(app *kubit.Application, r *repl.Repl) error {
	c := app.Container()

	loadDb := func(ctx context.Context, r *repl.Repl, args []string) error {
		db, err := kubit.Use[*database.Database](c, BindingDatabase)
		if err != nil {
			return err
		}

		r.Set("db", db)
		r.Printf("Loaded database module. You can access it using the \"db\" variable\n")
		return nil
	}

	loadModels := func(ctx context.Context, r *repl.Repl, args []string) error {
		names := make([]string, 0, len(p.Models))
		for name, model := range p.Models {
			r.Set(name, model)
			names = append(names, name)
		}
		sort.Strings(names)

		r.Set("models", p.Models)
		r.Printf("Loaded models: %s\n", strings.Join(names, ", "))
		return nil
	}

	loadFactories := func(ctx context.Context, r *repl.Repl, args []string) error {
		m, err := kubit.Use[*factory.FactoryManager](c, BindingFactory)
		if err != nil {
			return err
		}

		r.Set("factory", m)
		r.Printf("Loaded factories: %s\n", strings.Join(m.Names(), ", "))
		return nil
	}

	migrationStatus := func(ctx context.Context, r *repl.Repl, args []string) error {
		newMigrator, err := kubit.Use[MigratorFactory](c, BindingMigrator)
		if err != nil {
			return err
		}

		opts := migrator.Options{}
		if len(args) > 0 {
			opts.ConnectionName = args[0]
		}

		m, err := newMigrator(opts)
		if err != nil {
			return err
		}

		nodes, err := m.List(ctx)
		if err != nil {
			return err
		}

		return printMigrationList(r.Writer(), nodes)
	}

	methods := []struct {
		name, description string
		fn                repl.MethodFunc
	}{
		{"loadDb", "Load database provider to the db property", loadDb},
		{"loadModels", "Load the registered models to the models property", loadModels},
		{"loadFactories", "Load the model factories to the factory property", loadFactories},
		{"migrationStatus", "Print the migrations status of a connection (default: primary)", migrationStatus},
	}

	for _, m := range methods {
		if err := r.AddMethod(m.name, m.description, m.fn); err != nil {
			return err
		}
	}

	return nil
}
