package kubit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	kerrors "github.com/kubit-go/kubit/errors"
	"github.com/kubit-go/kubit/repl"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	// AnnotationEnvironment selects the environment the app is booted in (defaults to console)
	AnnotationEnvironment = "environment"

	// AnnotationLoadApp "false" only sets the app up without registering providers
	AnnotationLoadApp = "loadApp"

	shutdownTimeout = 10 * time.Second
)

var (
	// ErrorExit and ErrorNone stop a command without reporting a failure
	ErrorExit = errors.New("exit")
	ErrorNone = errors.New("none")

	ErrAceNotFound = errors.New("command is not running inside ace")
	ErrUnhealthy   = errors.New("application is unhealthy")
)

// CLICommand is a function type representing a CLI command handler.
// It receives the booted application, a Cobra command, and the command's arguments.
//
// Example:
//
//	func deleteUser(app *kubit.Application, cmd *cobra.Command, args []string) error {
//	    fmt.Println("Deleting user:", args)
//	    return nil
//	}
type CLICommand func(*Application, *cobra.Command, []string) error

// Ace is the console kernel. It builds the cobra tree out of the built-in,
// provider and user commands and boots an application per command run.
type Ace struct {
	appRoot string
	options Options

	// app is set when the kernel belongs to a running application,
	// commands then reuse it instead of booting their own
	app *Application

	mu      sync.Mutex
	running atomic.Bool
	root    *cobra.Command
}

func newAce(appRoot string, options Options, app *Application) *Ace {
	ace := &Ace{appRoot: appRoot, options: options, app: app}
	ace.root = ace.bindCommands()
	return ace
}

// Root returns the root cobra command
func (ace *Ace) Root() *cobra.Command { return ace.root }

// Handle runs the command line args (os.Args[1:]), a failure is printed on
// the error output before being returned
func (ace *Ace) Handle(args []string) error {
	err := ace.Exec(context.Background(), args)
	if err != nil {
		fmt.Fprintf(ace.root.ErrOrStderr(), "Application Error: %s\n", errorString(err))
	}
	return err
}

// Exec runs a command in process. A command of this kernel can Exec another
// one with its own context (IE: db test utils running migration:run), the
// nested run reuses the lock held by the outer one.
func (ace *Ace) Exec(ctx context.Context, args []string) error {
	if outer, _ := ctx.Value(aceCtxKey{}).(*Ace); outer != ace || !ace.running.Load() {
		ace.mu.Lock()
		defer ace.mu.Unlock()

		ace.running.Store(true)
		defer ace.running.Store(false)
	}

	ace.root.SetArgs(args)
	return ace.root.ExecuteContext(context.WithValue(ctx, aceCtxKey{}, ace))
}

// boundTo returns a kernel sharing the command tree whose commands run on app
func (ace *Ace) boundTo(app *Application) *Ace {
	return &Ace{appRoot: ace.appRoot, options: ace.options, app: app, root: ace.root}
}

func errorString(err error) string {
	var ke kerrors.Error
	if errors.As(err, &ke) && ke.Caller != "" {
		return fmt.Sprintf("(%s) %s", ke.Error(), ke.Caller)
	}
	return err.Error()
}

type aceCtxKey struct{}

// Command wraps a CLICommand to execute within a booted application.
//
// Example:
//
//	{
//	    Use:  "delete-users [emailpattern] [orgID]",
//	    RunE: kubit.Command(deleteUser),
//	}
func Command(command CLICommand) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ace, _ := cmd.Context().Value(aceCtxKey{}).(*Ace)
		if ace == nil {
			return ErrAceNotFound
		}

		// the cobra tree outlives a run, the next Exec starts from the defaults
		defer resetCommand(cmd)

		return ace.run(cmd, func(app *Application) error {
			err := command(app, cmd, args)

			if err != nil && !errors.Is(err, ErrorExit) && !errors.Is(err, ErrorNone) {
				return err
			}
			return nil
		})
	}
}

func resetCommand(cmd *cobra.Command) {
	// cobra only hands the root context to a command without one
	cmd.SetContext(nil)

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
}

func (ace *Ace) run(cmd *cobra.Command, fn AppFunc) error {
	if ace.app != nil {
		return fn(ace.app)
	}

	app := NewApplication(ace.appRoot, commandEnvironment(cmd), ace.options)
	app.aceOnce.Do(func() { app.ace = ace.boundTo(app) })

	var err error
	if cmd.Annotations[AnnotationLoadApp] == "false" {
		err = app.Setup()
	} else {
		err = app.Boot()
	}

	if err == nil {
		err = fn(app)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return errors.Join(err, app.Shutdown(ctx))
}

func commandEnvironment(cmd *cobra.Command) Environment {
	if env := cmd.Annotations[AnnotationEnvironment]; env != "" {
		return Environment(env)
	}
	return EnvironmentConsole
}

func (ace *Ace) bindCommands() *cobra.Command {
	name := ace.options.Name
	if name == "" {
		name = "kubit"
	}

	rootCMD := &cobra.Command{
		Use:           name,
		Short:         fmt.Sprintf("%s console", name),
		Version:       ace.options.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCMD.AddCommand(builtinCommands()...)

	// provider commands are static on the provider values so they can be
	// bound before any application is booted
	rootCMD.AddCommand(providerCommands(ace.options.Providers)...)

	// Any misc commands defined by the end user
	rootCMD.AddCommand(ace.options.Commands...)

	return rootCMD
}

func builtinCommands() []*cobra.Command {
	return []*cobra.Command{
		{
			Use:         "serve",
			Short:       "Start the http server",
			Annotations: map[string]string{AnnotationEnvironment: string(EnvironmentWeb)},
			RunE: Command(func(app *Application, cmd *cobra.Command, args []string) error {
				return serve(cmd.Context(), app)
			}),
		},
		{
			Use:     "routes:list",
			Short:   "Lists registered routes",
			Aliases: []string{"routes"},
			RunE: Command(func(app *Application, cmd *cobra.Command, args []string) error {
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(RoutesList(app.Routes()), "\n"))
				return nil
			}),
		},
		{
			Use:   "providers:list",
			Short: "List registered providers",
			RunE: Command(func(app *Application, cmd *cobra.Command, args []string) error {
				for pos, name := range app.Providers().Names() {
					fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", pos+1, name)
				}
				return nil
			}),
		},
		{
			Use:   "bindings:list",
			Short: "List container bindings",
			RunE: Command(func(app *Application, cmd *cobra.Command, args []string) error {
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(app.Container().Bindings(), "\n"))
				return nil
			}),
		},
		{
			Use:         "repl",
			Short:       "Start an interactive shell",
			Annotations: map[string]string{AnnotationEnvironment: string(EnvironmentRepl)},
			RunE: Command(func(app *Application, cmd *cobra.Command, args []string) error {
				r, err := Use[*repl.Repl](app.Container(), BindingRepl)
				if err != nil {
					return err
				}
				return r.Start(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
			}),
		},
		{
			Use:   "health",
			Short: "Run the health checks and print the report",
			RunE: Command(func(app *Application, cmd *cobra.Command, args []string) error {
				report := app.HealthCheck().Report(cmd.Context())

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}

				if !report.Healthy {
					return ErrUnhealthy
				}
				return nil
			}),
		},
	}
}

// serve starts the web service and blocks until ctx is done or a signal is received
func serve(ctx context.Context, app *Application) error {
	ws, err := Use[*WebService](app.Container(), BindingServer)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- ws.Start() }()

	if err := app.Ready(); err != nil {
		_ = ws.Stop()
		return err
	}

	select {
	case <-ctx.Done():
		app.Logger().Info("signal received, stopping web service")
		return ws.Stop()
	case err := <-errCh:
		return err
	}
}

// RoutesList returns the sorted "[METHOD] /path" lines of the tree
func RoutesList(root *Route) []string {
	lines := buildPath(root, "")
	sort.Strings(lines)
	return lines
}
