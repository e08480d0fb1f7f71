package kubit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/kubit-go/kubit/health"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execAce(t *testing.T, ace *Ace, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	ace.Root().SetOut(&out)
	ace.Root().SetErr(&out)

	err := ace.Exec(context.Background(), args)
	return out.String(), err
}

func TestAceBuiltinCommands(t *testing.T) {
	var calls []string

	app, err := NewTestApplication(t.TempDir(), Options{
		Providers: []Provider{&recordingProvider{name: "first", calls: &calls}},
		Initializer: func(app *Application) error {
			app.Routes().Get("/posts", noop)
			return nil
		},
	})
	require.NoError(t, err)

	t.Run("bindings:list", func(t *testing.T) {
		out, err := execAce(t, app.Ace(), "bindings:list")
		require.NoError(t, err)

		assert.Contains(t, out, BindingApplication+"\n")
		assert.Contains(t, out, "test/first\n")
	})

	t.Run("providers:list", func(t *testing.T) {
		out, err := execAce(t, app.Ace(), "providers:list")
		require.NoError(t, err)

		assert.Equal(t, "1. first\n", out)
	})

	t.Run("routes:list", func(t *testing.T) {
		out, err := execAce(t, app.Ace(), "routes")
		require.NoError(t, err)

		assert.Contains(t, out, "[GET] /posts")
		assert.Contains(t, out, "[GET] /health")
	})

	t.Run("health", func(t *testing.T) {
		require.NoError(t, app.HealthCheck().AddChecker("cache", health.CheckerFunc(func(context.Context) (health.Report, error) {
			return health.Report{Healthy: true}, nil
		})))

		out, err := execAce(t, app.Ace(), "health")
		require.NoError(t, err)

		report := health.FullReport{}
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.True(t, report.Healthy)
		assert.Equal(t, "cache", report.Report["cache"].DisplayName)

		require.NoError(t, app.HealthCheck().AddChecker("queue", health.CheckerFunc(func(context.Context) (health.Report, error) {
			return health.Report{Healthy: false, Message: "down"}, nil
		})))

		_, err = execAce(t, app.Ace(), "health")
		assert.ErrorIs(t, err, ErrUnhealthy)
	})

	// commands reuse the application, they never shut it down
	assert.Equal(t, StateBooted, app.State())
	assert.NotContains(t, calls, "first:shutdown")
}

func TestAceCommandLifecycle(t *testing.T) {
	var calls []string
	var seen []*Application

	record := func(app *Application, cmd *cobra.Command, args []string) error {
		seen = append(seen, app)
		calls = append(calls, string(app.Environment())+":"+string(app.State())+":"+strings.Join(args, ","))
		return nil
	}

	ig := NewIgnitor(t.TempDir(), Options{
		Name:      "blog",
		Providers: []Provider{&recordingProvider{name: "first", calls: &calls}},
		Commands: []*cobra.Command{
			{Use: "import", RunE: Command(record)},
			{Use: "setup-only", Annotations: map[string]string{AnnotationLoadApp: "false"}, RunE: Command(record)},
			{Use: "in-web", Annotations: map[string]string{AnnotationEnvironment: string(EnvironmentWeb)}, RunE: Command(record)},
			{Use: "quit", RunE: Command(func(*Application, *cobra.Command, []string) error { return ErrorExit })},
		},
	})

	ace := ig.Ace()
	assert.Equal(t, "blog", ace.Root().Use)

	t.Run("it should boot and shut the app down around the command", func(t *testing.T) {
		calls = nil

		_, err := execAce(t, ace, "import", "a", "b")
		require.NoError(t, err)

		assert.Equal(t, []string{
			"first:register", "first:boot", "console:booted:a,b", "first:shutdown",
		}, calls)
		assert.Equal(t, StateShutdown, seen[len(seen)-1].State())
	})

	t.Run("it should only set the app up when loadApp is false", func(t *testing.T) {
		calls = nil

		_, err := execAce(t, ace, "setup-only")
		require.NoError(t, err)

		assert.Equal(t, []string{"console:setup:"}, calls)
	})

	t.Run("it should boot in the annotated environment", func(t *testing.T) {
		calls = nil

		_, err := execAce(t, ace, "in-web")
		require.NoError(t, err)

		assert.Contains(t, calls, "web:booted:")
	})

	t.Run("it should swallow ErrorExit", func(t *testing.T) {
		_, err := execAce(t, ace, "quit")
		assert.NoError(t, err)
	})

	t.Run("it should fail outside of ace", func(t *testing.T) {
		cmd := &cobra.Command{Use: "x"}
		cmd.SetContext(context.Background())

		assert.ErrorIs(t, Command(record)(cmd, nil), ErrAceNotFound)
	})
}

func TestAceResetsFlags(t *testing.T) {
	var seen []string

	cmd := &cobra.Command{
		Use: "import",
		RunE: Command(func(app *Application, cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			files, _ := cmd.Flags().GetStringSlice("files")
			seen = append(seen, fmt.Sprintf("%v:%s", dryRun, strings.Join(files, ",")))
			return nil
		}),
	}
	cmd.Flags().Bool("dry-run", false, "")
	cmd.Flags().StringSlice("files", nil, "")

	app, err := NewTestApplication(t.TempDir(), Options{Commands: []*cobra.Command{cmd}})
	require.NoError(t, err)

	_, err = execAce(t, app.Ace(), "import", "--dry-run", "--files", "a", "--files", "b")
	require.NoError(t, err)
	_, err = execAce(t, app.Ace(), "import")
	require.NoError(t, err)
	_, err = execAce(t, app.Ace(), "import", "--files", "c")
	require.NoError(t, err)

	assert.Equal(t, []string{"true:a,b", "false:", "false:c"}, seen)
}

// execWithin fails the test instead of hanging when the run never returns
func execWithin(t *testing.T, ace *Ace, args ...string) error {
	t.Helper()

	done := make(chan error, 1)
	go func() { done <- ace.Exec(context.Background(), args) }()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("ace %v did not return", args)
		return nil
	}
}

func TestAceNestedExec(t *testing.T) {
	var outerApp, innerApp *Application

	commands := func() []*cobra.Command {
		return []*cobra.Command{
			{
				Use: "outer",
				RunE: Command(func(app *Application, cmd *cobra.Command, args []string) error {
					outerApp = app

					ace, err := Use[*Ace](app.Container(), BindingAce)
					if err != nil {
						return err
					}
					return ace.Exec(cmd.Context(), []string{"inner"})
				}),
			},
			{
				Use: "inner",
				RunE: Command(func(app *Application, cmd *cobra.Command, args []string) error {
					innerApp = app
					return nil
				}),
			},
		}
	}

	t.Run("it should reuse the app booted by the outer command", func(t *testing.T) {
		outerApp, innerApp = nil, nil

		ace := NewIgnitor(t.TempDir(), Options{Commands: commands()}).Ace()
		require.NoError(t, execWithin(t, ace, "outer"))

		require.NotNil(t, outerApp)
		assert.Same(t, outerApp, innerApp)
		assert.Equal(t, StateShutdown, outerApp.State())

		// the kernel stays usable after a nested run
		require.NoError(t, execWithin(t, ace, "inner"))
		assert.NotSame(t, outerApp, innerApp)
	})

	t.Run("it should run nested commands on an application kernel", func(t *testing.T) {
		outerApp, innerApp = nil, nil

		app, err := NewTestApplication(t.TempDir(), Options{Commands: commands()})
		require.NoError(t, err)

		require.NoError(t, execWithin(t, app.Ace(), "outer"))
		assert.Same(t, app, outerApp)
		assert.Same(t, app, innerApp)
	})
}

func TestAceHandleReportsErrors(t *testing.T) {
	ace := NewIgnitor(t.TempDir(), Options{
		Commands: []*cobra.Command{
			{Use: "fail", RunE: Command(func(*Application, *cobra.Command, []string) error {
				return errors.New("migrations are locked")
			})},
		},
	}).Ace()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "command error", args: []string{"fail"}, want: "Application Error: migrations are locked\n"},
		{name: "unknown command", args: []string{"no-such-command"}, want: `Application Error: unknown command "no-such-command"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			ace.Root().SetErr(&out)

			err := ace.Handle(tt.args)
			require.Error(t, err)
			assert.Contains(t, out.String(), tt.want)
		})
	}
}
