package lucid

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/kubit-go/kubit"
	"github.com/kubit-go/kubit/database"
	"github.com/kubit-go/kubit/migrator"
	"github.com/kubit-go/kubit/seeder"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const defaultMigrationsPath = "database/migrations"

var (
	ErrForceRequired = errors.New("running in production without a terminal, use --force to continue")
	ErrSeedersFailed = errors.New("one or more seeders failed")
)

// isTerminal reports if the confirmation prompt can be answered
var isTerminal = func(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Commands are the migration:* and db:* commands
func (p *DatabaseServiceProvider) Commands() []*cobra.Command {
	run := &cobra.Command{
		Use:   "migration:run",
		Short: "Migrate database by running pending migrations",
		Args:  cobra.NoArgs,
		RunE:  kubit.Command(migrationRun),
	}
	migrationFlags(run, true)

	rollback := &cobra.Command{
		Use:   "migration:rollback",
		Short: "Rollback migrations to a given batch number",
		Args:  cobra.NoArgs,
		RunE:  kubit.Command(migrationRollback),
	}
	migrationFlags(rollback, true)
	rollback.Flags().Int("batch", -1, "Rollback to this batch, 0 rolls everything back (default: the latest batch)")

	status := &cobra.Command{
		Use:   "migration:status",
		Short: "Check migrations current status",
		Args:  cobra.NoArgs,
		RunE:  kubit.Command(migrationStatus),
	}
	status.Flags().StringP("connection", "c", "", "Define a custom database connection")

	reset := &cobra.Command{
		Use:   "migration:reset",
		Short: "Rollback all migrations",
		Args:  cobra.NoArgs,
		RunE:  kubit.Command(migrationReset),
	}
	migrationFlags(reset, true)

	refresh := &cobra.Command{
		Use:   "migration:refresh",
		Short: "Rollback and migrate database",
		Args:  cobra.NoArgs,
		RunE:  kubit.Command(migrationRefresh),
	}
	migrationFlags(refresh, true)
	refresh.Flags().Bool("seed", false, "Run seeders")

	fresh := &cobra.Command{
		Use:   "migration:fresh",
		Short: "Drop all tables and re-migrate the database",
		Args:  cobra.NoArgs,
		RunE:  kubit.Command(migrationFresh),
	}
	migrationFlags(fresh, false)
	fresh.Flags().Bool("seed", false, "Run seeders")

	seedCmd := &cobra.Command{
		Use:   "db:seed",
		Short: "Execute database seeders",
		Args:  cobra.NoArgs,
		RunE:  kubit.Command(dbSeed),
	}
	seedCmd.Flags().StringSlice("files", nil, "Run only the named seeders, in this order")

	wipeCmd := &cobra.Command{
		Use:   "db:wipe",
		Short: "Drop all tables in database",
		Args:  cobra.NoArgs,
		RunE:  kubit.Command(dbWipe),
	}
	migrationFlags(wipeCmd, false)

	makeCmd := &cobra.Command{
		Use:   "make:migration <name>",
		Short: "Make a new migration file",
		Args:  cobra.ExactArgs(1),
		RunE:  kubit.Command(makeMigration),
	}
	makeCmd.Flags().StringP("connection", "c", "", "The connection the migration belongs to")
	makeCmd.Flags().String("folder", "", "Create the files in this folder (default: the first migrations path)")

	return []*cobra.Command{run, rollback, status, reset, refresh, fresh, seedCmd, wipeCmd, makeCmd}
}

func migrationFlags(cmd *cobra.Command, dryRun bool) {
	cmd.Flags().BoolP("force", "f", false, "Explicitly force to run in production")
	cmd.Flags().StringP("connection", "c", "", "Define a custom database connection")
	if dryRun {
		cmd.Flags().Bool("dry-run", false, "Print SQL queries, instead of running them")
	}
}

func migrationRun(app *kubit.Application, cmd *cobra.Command, args []string) error {
	ok, err := confirmProduction(cmd, "You are in production environment, want to continue running migrations?")
	if err != nil || !ok {
		return err
	}

	return migrate(app, cmd, migratorOptions(cmd, migrator.DirectionUp))
}

func migrationRollback(app *kubit.Application, cmd *cobra.Command, args []string) error {
	ok, err := confirmProduction(cmd, "You are in production environment, want to continue rolling back migrations?")
	if err != nil || !ok {
		return err
	}

	opts := migratorOptions(cmd, migrator.DirectionDown)
	if batch, _ := cmd.Flags().GetInt("batch"); batch >= 0 {
		opts.Batch = &batch
	}

	return migrate(app, cmd, opts)
}

func migrationReset(app *kubit.Application, cmd *cobra.Command, args []string) error {
	ok, err := confirmProduction(cmd, "You are in production environment, want to continue resetting migrations?")
	if err != nil || !ok {
		return err
	}

	return migrate(app, cmd, resetOptions(cmd))
}

func migrationRefresh(app *kubit.Application, cmd *cobra.Command, args []string) error {
	ok, err := confirmProduction(cmd, "You are in production environment, want to continue refreshing migrations?")
	if err != nil || !ok {
		return err
	}

	if err := migrate(app, cmd, resetOptions(cmd)); err != nil {
		return err
	}

	if err := migrate(app, cmd, migratorOptions(cmd, migrator.DirectionUp)); err != nil {
		return err
	}

	return seedAfter(app, cmd)
}

func migrationFresh(app *kubit.Application, cmd *cobra.Command, args []string) error {
	ok, err := confirmProduction(cmd, "You are in production environment, want to drop every table and migrate again?")
	if err != nil || !ok {
		return err
	}

	if err := wipeTables(app, cmd); err != nil {
		return err
	}

	if err := migrate(app, cmd, migratorOptions(cmd, migrator.DirectionUp)); err != nil {
		return err
	}

	return seedAfter(app, cmd)
}

func migrationStatus(app *kubit.Application, cmd *cobra.Command, args []string) error {
	m, err := newMigrator(app, migratorOptions(cmd, migrator.DirectionUp))
	if err != nil {
		return err
	}

	nodes, err := m.List(cmd.Context())
	if err != nil {
		return err
	}

	return printMigrationList(cmd.OutOrStdout(), nodes)
}

func dbSeed(app *kubit.Application, cmd *cobra.Command, args []string) error {
	names, _ := cmd.Flags().GetStringSlice("files")
	return seed(app, cmd, names)
}

func dbWipe(app *kubit.Application, cmd *cobra.Command, args []string) error {
	ok, err := confirmProduction(cmd, "You are in production environment, want to continue dropping every table?")
	if err != nil || !ok {
		return err
	}

	return wipeTables(app, cmd)
}

func makeMigration(app *kubit.Application, cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("folder")

	if dir == "" {
		db, err := kubit.Use[*database.Database](app.Container(), BindingDatabase)
		if err != nil {
			return err
		}

		connection, _ := cmd.Flags().GetString("connection")
		cc, err := db.ConnectionConfig(connection)
		if err != nil {
			return err
		}

		dir = defaultMigrationsPath
		if len(cc.Migrations.Paths) > 0 {
			dir = cc.Migrations.Paths[0]
		}
	}

	files, err := migrator.MakeMigration(appPath(app, dir), args[0])
	if err != nil {
		return err
	}

	for _, f := range files {
		if rel, err := filepath.Rel(app.AppRoot, f); err == nil {
			f = rel
		}
		fmt.Fprintf(cmd.OutOrStdout(), "❯ create %s\n", f)
	}
	return nil
}

func migratorOptions(cmd *cobra.Command, direction migrator.Direction) migrator.Options {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	connection, _ := cmd.Flags().GetString("connection")

	return migrator.Options{
		Direction:      direction,
		DryRun:         dryRun,
		ConnectionName: connection,
	}
}

func resetOptions(cmd *cobra.Command) migrator.Options {
	opts := migratorOptions(cmd, migrator.DirectionDown)
	opts.Batch = new(int)
	return opts
}

func newMigrator(app *kubit.Application, opts migrator.Options) (*migrator.Migrator, error) {
	build, err := kubit.Use[MigratorFactory](app.Container(), BindingMigrator)
	if err != nil {
		return nil, err
	}
	return build(opts)
}

// migrate runs one migrator and prints the touched files
func migrate(app *kubit.Application, cmd *cobra.Command, opts migrator.Options) error {
	m, err := newMigrator(app, opts)
	if err != nil {
		return err
	}

	err = m.Run(cmd.Context())
	printMigratedFiles(cmd.OutOrStdout(), m)

	return err
}

func printMigratedFiles(w io.Writer, m *migrator.Migrator) {
	if m.Status() == migrator.StatusSkipped {
		if m.Direction() == migrator.DirectionUp {
			fmt.Fprintln(w, "Already up to date")
		} else {
			fmt.Fprintln(w, "Already at latest batch")
		}
		return
	}

	action := "migrated"
	if m.Direction() == migrator.DirectionDown {
		action = "reverted"
	}

	for _, f := range m.MigratedFiles() {
		switch {
		case f.Status == migrator.FileError:
			fmt.Fprintf(w, "❯ error %s\n", f.Name)
		case f.Status == migrator.FilePending:
			fmt.Fprintf(w, "❯ pending %s\n", f.Name)
		case m.DryRun():
			fmt.Fprintf(w, "❯ dry run %s\n", f.Name)
			for _, q := range f.Queries {
				fmt.Fprintf(w, "  %s\n", q)
			}
		default:
			fmt.Fprintf(w, "❯ %s %s\n", action, f.Name)
		}
	}
}

func printMigrationList(w io.Writer, nodes []migrator.ListNode) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Name\tStatus\tBatch\tMessage")

	for _, n := range nodes {
		batch := "NA"
		if n.Batch > 0 {
			batch = strconv.Itoa(n.Batch)
		}

		message := ""
		if n.Status == migrator.ListCorrupt {
			message = "The migration file is missing on filesystem"
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.Name, n.Status, batch, message)
	}

	return tw.Flush()
}

func wipeTables(app *kubit.Application, cmd *cobra.Command) error {
	db, err := kubit.Use[*database.Database](app.Container(), BindingDatabase)
	if err != nil {
		return err
	}

	connection, _ := cmd.Flags().GetString("connection")
	dropped, err := wipe(cmd.Context(), db, connection)
	if err != nil {
		return err
	}

	for _, table := range dropped {
		fmt.Fprintf(cmd.OutOrStdout(), "❯ dropped %s\n", table)
	}
	return nil
}

func seedAfter(app *kubit.Application, cmd *cobra.Command) error {
	if ok, _ := cmd.Flags().GetBool("seed"); !ok {
		return nil
	}
	return seed(app, cmd, nil)
}

func seed(app *kubit.Application, cmd *cobra.Command, names []string) error {
	runner, err := kubit.Use[*seeder.SeedsRunner](app.Container(), BindingSeeder)
	if err != nil {
		return err
	}

	results, err := runner.Run(cmd.Context(), names...)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, r := range results {
		switch r.Status {
		case seeder.StatusIgnored:
			fmt.Fprintf(w, "❯ ignored %s (%s)\n", r.Name, r.SkipReason)
		case seeder.StatusFailed:
			fmt.Fprintf(w, "❯ error %s (%s)\n", r.Name, r.ErrorMessage)
		default:
			fmt.Fprintf(w, "❯ completed %s\n", r.Name)
		}
	}

	if seeder.Failed(results) {
		return ErrSeedersFailed
	}
	return nil
}

// confirmProduction lets destructive commands through outside of production,
// with --force or once the user confirmed on a terminal
func confirmProduction(cmd *cobra.Command, question string) (bool, error) {
	force, _ := cmd.Flags().GetBool("force")
	if force || !kubit.IsProduction() {
		return true, nil
	}

	if !isTerminal(cmd.InOrStdin()) {
		return false, ErrForceRequired
	}

	fmt.Fprintf(cmd.OutOrStdout(), "❯ %s (y/N) ", question)

	answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
	return false, nil
}
