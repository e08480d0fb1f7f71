package kubit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kubit-go/kubit/health"
	"github.com/kubit-go/kubit/repl"
	"github.com/kubit-go/kubit/testutils"
	"github.com/kubit-go/kubit/validation"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var (
	ErrInvalidState = errors.New("invalid application state transition")
)

type ApplicationState string

const (
	StateInitiated  ApplicationState = "initiated"
	StateSetup      ApplicationState = "setup"
	StateRegistered ApplicationState = "registered"
	StateBooted     ApplicationState = "booted"
	StateReady      ApplicationState = "ready"
	StateShutdown   ApplicationState = "shutdown"
	StateErrored    ApplicationState = "errored"
)

// Container binding names of the services every application provides
const (
	BindingApplication = "Kubit/Application"
	BindingConfig      = "Kubit/Config"
	BindingLogger      = "Kubit/Logger"
	BindingEvent       = "Kubit/Event"
	BindingRoute       = "Kubit/Route"
	BindingServer      = "Kubit/Server"
	BindingHealthCheck = "Kubit/HealthCheck"
	BindingValidator   = "Kubit/Validator"
	BindingTestUtils   = "Kubit/TestUtils"
	BindingAce         = "Kubit/Ace"
	BindingRepl        = "Kubit/Repl"
)

// AppFunc represents a function signature for application initializers.
type AppFunc func(*Application) error

// Application holds the container, the providers and the shared services
// (config, logger, events, routes) of a kubit app. It moves through
// initiated -> setup -> registered -> booted -> ready -> shutdown.
type Application struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	AppRoot   string    `json:"app_root"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`

	environment Environment
	options     Options

	logger    *logrus.Logger
	events    *EventManager
	config    *viper.Viper
	container *Container
	providers *ProviderManager
	routes    *Route

	health    *health.HealthCheck
	validator *validation.Validator
	testUtils *testutils.TestUtils
	repl      *repl.Repl

	aceOnce sync.Once
	ace     *Ace

	// lifecycle lock, state has its own so listeners can read it
	mu         sync.Mutex
	stateMu    sync.RWMutex
	state      ApplicationState
	registered bool
}

func (a *Application) Config() *viper.Viper             { return a.config }
func (a *Application) Logger() *logrus.Logger           { return a.logger }
func (a *Application) Events() *EventManager            { return a.events }
func (a *Application) Container() *Container            { return a.container }
func (a *Application) Providers() *ProviderManager      { return a.providers }
func (a *Application) Routes() *Route                   { return a.routes }
func (a *Application) HealthCheck() *health.HealthCheck { return a.health }
func (a *Application) Validator() *validation.Validator { return a.validator }
func (a *Application) TestUtils() *testutils.TestUtils  { return a.testUtils }
func (a *Application) Environment() Environment         { return a.environment }
func (a *Application) Options() Options                 { return a.options }

func (a *Application) InEnvironment(env Environment) bool { return a.environment == env }

// MakePath joins parts onto the application root
func (a *Application) MakePath(parts ...string) string {
	return filepath.Join(append([]string{a.AppRoot}, parts...)...)
}

// Emit emits a named event (IE: db:query)
func (a *Application) Emit(ctx context.Context, name string, data any) {
	a.events.Emit(ctx, name, data)
}

// Repl returns the repl, nil outside of the repl environment
func (a *Application) Repl() *repl.Repl { return a.repl }

func (a *Application) State() ApplicationState {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()

	return a.state
}

// IsReady returns true once providers are booted
func (a *Application) IsReady() bool {
	s := a.State()
	return s == StateBooted || s == StateReady
}

// Ace returns the console kernel bound to this application
func (a *Application) Ace() *Ace {
	a.aceOnce.Do(func() {
		a.ace = newAce(a.AppRoot, a.options, a)
	})
	return a.ace
}

// changeState changes application state within the application
// and dispatches to all those who care
func (a *Application) changeState(state ApplicationState) {
	a.stateMu.Lock()
	if a.state == StateShutdown {
		a.stateMu.Unlock()
		return
	}
	a.state = state
	a.stateMu.Unlock()

	a.logger.Debugf("application state changed to %s", state)

	a.events.Dispatch(
		WithApplication(context.Background(), a),
		ApplicationStateChanged{state},
	)
}

func (a *Application) transition(from, to ApplicationState, fn func() error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if current := a.State(); current != from {
		return fmt.Errorf("%w: cannot move from %s to %s", ErrInvalidState, current, to)
	}

	if err := fn(); err != nil {
		a.changeState(StateErrored)
		return err
	}

	a.changeState(to)
	return nil
}

// Setup reads the config, configures the logger and the http.cors middleware
// and registers the core bindings
func (a *Application) Setup() error {
	return a.transition(StateInitiated, StateSetup, func() error {
		if a.options.Preboot != nil {
			if err := a.options.Preboot(a); err != nil {
				return err
			}
		}

		if err := readConfig(a.config); err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		if err := configureLogger(a.logger, a.config); err != nil {
			return fmt.Errorf("failed to configure logger: %w", err)
		}

		if name := a.config.GetString("app.name"); name != "" && a.Name == "" {
			a.Name = name
		}

		if err := a.installCors(); err != nil {
			return err
		}

		if a.options.WatchConfig && a.config.ConfigFileUsed() != "" {
			watchConfig(a)
		}

		return a.registerCoreBindings()
	})
}

// RegisterProviders runs Register on every provider in order
func (a *Application) RegisterProviders() error {
	return a.transition(StateSetup, StateRegistered, func() error {
		a.providers.bindEvents(a)
		a.registered = true

		return a.providers.register(a)
	})
}

// BootProviders runs Boot on every provider and then the initializer
func (a *Application) BootProviders() error {
	return a.transition(StateRegistered, StateBooted, func() error {
		if err := a.providers.boot(a); err != nil {
			return err
		}

		if a.options.Initializer == nil {
			return nil
		}

		return a.options.Initializer(a)
	})
}

// Ready runs the Ready hooks, called when the app starts serving
func (a *Application) Ready() error {
	return a.transition(StateBooted, StateReady, func() error {
		return a.providers.ready(a)
	})
}

// Boot runs the lifecycle up to booted
func (a *Application) Boot() error {
	steps := []struct {
		state ApplicationState
		fn    func() error
	}{
		{StateInitiated, a.Setup},
		{StateSetup, a.RegisterProviders},
		{StateRegistered, a.BootProviders},
	}

	for _, step := range steps {
		if a.State() != step.state {
			continue
		}
		if err := step.fn(); err != nil {
			return err
		}
	}

	if a.State() != StateBooted && a.State() != StateReady {
		return fmt.Errorf("%w: application is %s", ErrInvalidState, a.State())
	}

	return nil
}

// Shutdown shuts the providers down in reverse order, it is safe to call more than once
func (a *Application) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.State() == StateShutdown {
		return nil
	}

	a.changeState(StateShutdown)

	var err error
	if a.registered {
		err = a.providers.shutdown(ctx, a)
	}

	a.events.Dispatch(WithApplication(ctx, a), ApplicationShutdown{})

	if err != nil {
		a.logger.Errorf("shutdown finished with errors: %v", err)
	}

	return err
}

func (a *Application) On(event string, fnc EventFunc) {
	a.Events().Register(event, fnc)
}

func (a *Application) Off(event string, fnc EventFunc) {
	a.Events().Unregister(event, fnc)
}

// ConfigChanged dispatches the ConfigChanged event
func (a *Application) ConfigChanged() {
	a.Events().Dispatch(
		WithApplication(context.Background(), a),
		&ConfigChanged{Config: a.config},
	)
}

func (a *Application) registerCoreBindings() error {
	c := a.container

	errs := []error{
		c.Instance(BindingApplication, a),
		c.Instance(BindingConfig, a.config),
		c.Instance(BindingLogger, a.logger),
		c.Instance(BindingEvent, a.events),
		c.Instance(BindingRoute, a.routes),
		c.Singleton(BindingServer, func(*Container) (any, error) {
			return NewWebService(a), nil
		}),
		c.Instance(BindingHealthCheck, a.health),
		c.Instance(BindingValidator, a.validator),
		c.Instance(BindingTestUtils, a.testUtils),
		c.Singleton(BindingAce, func(*Container) (any, error) {
			return a.Ace(), nil
		}),
	}

	if a.InEnvironment(EnvironmentRepl) {
		a.repl = repl.New()
		errs = append(errs, c.Instance(BindingRepl, a.repl))
	}

	return errors.Join(errs...)
}

// AppFuncChain returns a single AppFunc that executes multiple initializers
// sequentially. If any initializer fails, the chain is interrupted and the error is returned.
func AppFuncChain(initializers ...AppFunc) AppFunc {
	return func(app *Application) error {
		for pos := range initializers {
			if initializers[pos] == nil {
				continue
			}

			if err := initializers[pos](app); err != nil {
				return err
			}
		}

		return nil
	}
}

// NewApplication creates an Application rooted at appRoot for the given environment.
// Nothing is read or registered until Setup is called.
func NewApplication(appRoot string, environment Environment, options Options) *Application {
	if environment == "" {
		environment = EnvironmentUnknown
	}

	logger := options.Logger
	if logger == nil {
		logger = NewLogger()
	}

	hostname, _ := os.Hostname()

	a := &Application{
		Name:        options.Name,
		Version:     options.Version,
		AppRoot:     appRoot,
		Hostname:    hostname,
		StartedAt:   time.Now(),
		environment: environment,
		options:     options,
		logger:      logger,
		events:      NewEventManager(),
		config:      newConfig(appRoot, options.Name),
		container:   NewContainer(),
		providers:   NewProviderManager(options.Providers...),
		validator:   validation.New(),
		testUtils:   testutils.New(),
		state:       StateInitiated,
	}

	a.health = health.New(a.container.Resolve)
	a.health.SetLiveness(a.IsReady)

	a.routes = NewRouteRoot().
		Get("/health", renderHealth).
		Get("/routes", renderRoutes)

	return a
}

// NewTestApplication builds and boots an application in the test environment
func NewTestApplication(appRoot string, options Options) (*Application, error) {
	app := NewApplication(appRoot, EnvironmentTest, options)

	if err := app.Boot(); err != nil {
		return nil, err
	}

	return app, nil
}

type appCtxKey struct{}

// WithApplication stores the application on the context
func WithApplication(ctx context.Context, a *Application) context.Context {
	return context.WithValue(ctx, appCtxKey{}, a)
}

// ApplicationFromContext returns the application stored on the context
func ApplicationFromContext(ctx context.Context) *Application {
	if wctx, ok := ctx.(*WebContext); ok {
		return wctx.Application()
	}

	a, _ := ctx.Value(appCtxKey{}).(*Application)
	return a
}
