package kubit

import (
	"context"
	"errors"
	"testing"

	"github.com/kubit-go/kubit/repl"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mocks and Helpers
func mockAppFunc(success bool) AppFunc {
	return func(app *Application) error {
		if !success {
			return errors.New("mock error")
		}
		return nil
	}
}

type recordingProvider struct {
	name     string
	calls    *[]string
	failOn   string
	commands []*cobra.Command
}

func (p *recordingProvider) Name() string { return p.name }

func (p *recordingProvider) record(hook string) error {
	*p.calls = append(*p.calls, p.name+":"+hook)
	if p.failOn == hook {
		return errors.New(p.name + " failed on " + hook)
	}
	return nil
}

func (p *recordingProvider) Register(app *Application) error {
	if err := p.record("register"); err != nil {
		return err
	}
	return app.Container().Instance("test/"+p.name, p.name)
}

func (p *recordingProvider) Boot(*Application) error  { return p.record("boot") }
func (p *recordingProvider) Ready(*Application) error { return p.record("ready") }
func (p *recordingProvider) Shutdown(context.Context, *Application) error {
	return p.record("shutdown")
}
func (p *recordingProvider) Commands() []*cobra.Command { return p.commands }

// registerOnly has none of the optional hooks
type registerOnly struct{}

func (registerOnly) Register(*Application) error { return nil }

func TestAppFuncChain(t *testing.T) {
	tests := []struct {
		name         string
		initializers []AppFunc
		expectErr    bool
	}{
		{
			name:         "All initializers succeed",
			initializers: []AppFunc{mockAppFunc(true), mockAppFunc(true)},
			expectErr:    false,
		},
		{
			name:         "One initializer fails",
			initializers: []AppFunc{mockAppFunc(true), mockAppFunc(false), mockAppFunc(true)},
			expectErr:    true,
		},
		{
			name:         "Empty initializer chain",
			initializers: []AppFunc{},
			expectErr:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AppFuncChain(tt.initializers...)(&Application{})
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplicationLifecycle(t *testing.T) {
	t.Run("it should run the hooks in order and shut down in reverse", func(t *testing.T) {
		var calls []string

		app := NewApplication(t.TempDir(), EnvironmentTest, Options{
			Providers: []Provider{
				&recordingProvider{name: "first", calls: &calls},
				registerOnly{},
				&recordingProvider{name: "second", calls: &calls},
			},
			Initializer: func(*Application) error {
				calls = append(calls, "initializer")
				return nil
			},
		})

		var states []ApplicationState
		app.On(EventStateChanged, func(_ context.Context, e *Event) {
			states = append(states, e.Data.(ApplicationStateChanged).State)
		})

		require.NoError(t, app.Boot())
		require.NoError(t, app.Ready())
		require.NoError(t, app.Shutdown(context.Background()))

		assert.Equal(t, []string{
			"first:register", "second:register",
			"first:boot", "second:boot",
			"initializer",
			"first:ready", "second:ready",
			"second:shutdown", "first:shutdown",
		}, calls)

		assert.Equal(t, []ApplicationState{
			StateSetup, StateRegistered, StateBooted, StateReady, StateShutdown,
		}, states)
	})

	t.Run("it should stop at the first failing provider", func(t *testing.T) {
		var calls []string

		app := NewApplication(t.TempDir(), EnvironmentTest, Options{
			Providers: []Provider{
				&recordingProvider{name: "first", calls: &calls, failOn: "boot"},
				&recordingProvider{name: "second", calls: &calls},
			},
		})

		err := app.Boot()
		assert.ErrorContains(t, err, "failed to boot provider first")
		assert.Equal(t, StateErrored, app.State())
		assert.NotContains(t, calls, "second:boot")

		assert.ErrorIs(t, app.Boot(), ErrInvalidState)
	})

	t.Run("it should join shutdown errors and keep going", func(t *testing.T) {
		var calls []string

		app := NewApplication(t.TempDir(), EnvironmentTest, Options{
			Providers: []Provider{
				&recordingProvider{name: "first", calls: &calls, failOn: "shutdown"},
				&recordingProvider{name: "second", calls: &calls, failOn: "shutdown"},
			},
		})
		require.NoError(t, app.Boot())

		err := app.Shutdown(context.Background())
		assert.ErrorContains(t, err, "first failed on shutdown")
		assert.ErrorContains(t, err, "second failed on shutdown")

		assert.NoError(t, app.Shutdown(context.Background()), "second shutdown is a no-op")
	})

	t.Run("it should refuse transitions out of order", func(t *testing.T) {
		app := NewApplication(t.TempDir(), EnvironmentTest, Options{})

		assert.ErrorIs(t, app.BootProviders(), ErrInvalidState)
		assert.Equal(t, StateInitiated, app.State())
	})
}

func TestApplicationCoreBindings(t *testing.T) {
	app, err := NewTestApplication(t.TempDir(), Options{})
	require.NoError(t, err)

	for _, name := range []string{
		BindingApplication, BindingConfig, BindingLogger, BindingEvent, BindingRoute,
		BindingServer, BindingHealthCheck, BindingValidator, BindingTestUtils, BindingAce,
	} {
		assert.True(t, app.Container().HasBinding(name), name)
	}

	assert.False(t, app.Container().HasBinding(BindingRepl))
	assert.Same(t, app, MustUse[*Application](app.Container(), BindingApplication))
	assert.Same(t, app.Ace(), MustUse[*Ace](app.Container(), BindingAce))
	assert.True(t, app.HealthCheck().IsLive())

	t.Run("it should bind the repl in the repl environment", func(t *testing.T) {
		replApp := NewApplication(t.TempDir(), EnvironmentRepl, Options{})
		require.NoError(t, replApp.Boot())

		r, err := Use[*repl.Repl](replApp.Container(), BindingRepl)
		require.NoError(t, err)
		assert.Same(t, replApp.Repl(), r)
	})
}

func TestGetProvider(t *testing.T) {
	var calls []string
	p := &recordingProvider{name: "first", calls: &calls}

	app := NewApplication(t.TempDir(), EnvironmentTest, Options{Providers: []Provider{p, registerOnly{}}})

	assert.Same(t, p, GetProvider[*recordingProvider](app, "first"))
	assert.Nil(t, GetProvider[*recordingProvider](app, "missing"))
	assert.Equal(t, []string{"first", "kubit.registerOnly"}, app.Providers().Names())
}
