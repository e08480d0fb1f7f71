package kubit

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// Provider registers bindings into the application container. Everything
// else a provider can do is opt in through the optional interfaces below.
type Provider interface {
	Register(app *Application) error
}

// ProviderBoot runs once every provider has registered its bindings
type ProviderBoot interface {
	Boot(app *Application) error
}

// ProviderReady runs when the application is ready (IE: the http server is up)
type ProviderReady interface {
	Ready(app *Application) error
}

// ProviderShutdown releases resources, providers are shut down in reverse order
type ProviderShutdown interface {
	Shutdown(ctx context.Context, app *Application) error
}

// ProviderCommands provides a list of commands that the provider provides
type ProviderCommands interface {
	Commands() []*cobra.Command
}

type ProviderEvents interface {
	Events() map[string]EventFunc
}

type Namer interface {
	Name() string
}

// ProviderName returns the provider name, falling back to the type name
func ProviderName(p Provider) string {
	if n, ok := p.(Namer); ok {
		if name := n.Name(); name != "" {
			return name
		}
	}
	return fmt.Sprintf("%T", p)
}

// ProviderManager keeps providers in registration order and runs their hooks
type ProviderManager struct {
	providers []Provider
}

func NewProviderManager(providers ...Provider) *ProviderManager {
	return &ProviderManager{providers: append([]Provider{}, providers...)}
}

func (pm *ProviderManager) Providers() []Provider {
	return append([]Provider{}, pm.providers...)
}

func (pm *ProviderManager) Names() []string {
	names := make([]string, 0, len(pm.providers))
	for _, p := range pm.providers {
		names = append(names, ProviderName(p))
	}
	return names
}

func (pm *ProviderManager) bindEvents(app *Application) {
	for pos := range pm.providers {
		if p, ok := pm.providers[pos].(ProviderEvents); ok {
			for name, event := range p.Events() {
				app.Events().Register(name, event)
			}
		}
	}
}

func (pm *ProviderManager) register(app *Application) error {
	for pos := range pm.providers {
		if err := pm.providers[pos].Register(app); err != nil {
			return fmt.Errorf("failed to register provider %s: %w", ProviderName(pm.providers[pos]), err)
		}
	}
	return nil
}

func (pm *ProviderManager) boot(app *Application) error {
	for pos := range pm.providers {
		if p, ok := pm.providers[pos].(ProviderBoot); ok {
			if err := p.Boot(app); err != nil {
				return fmt.Errorf("failed to boot provider %s: %w", ProviderName(pm.providers[pos]), err)
			}
		}
	}
	return nil
}

func (pm *ProviderManager) ready(app *Application) error {
	for pos := range pm.providers {
		if p, ok := pm.providers[pos].(ProviderReady); ok {
			if err := p.Ready(app); err != nil {
				return fmt.Errorf("failed to ready provider %s: %w", ProviderName(pm.providers[pos]), err)
			}
		}
	}
	return nil
}

// shutdown runs in reverse order and keeps going on failures
func (pm *ProviderManager) shutdown(ctx context.Context, app *Application) error {
	var shutdownErrors []error

	for pos := len(pm.providers) - 1; pos >= 0; pos-- {
		if p, ok := pm.providers[pos].(ProviderShutdown); ok {
			if err := p.Shutdown(ctx, app); err != nil {
				shutdownErrors = append(shutdownErrors, fmt.Errorf("failed to shutdown provider %s: %w", ProviderName(pm.providers[pos]), err))
			}
		}
	}

	return errors.Join(shutdownErrors...)
}

// Commands collects all CLI commands from registered providers
func (pm *ProviderManager) Commands() []*cobra.Command {
	return providerCommands(pm.providers)
}

func providerCommands(providers []Provider) []*cobra.Command {
	var commands []*cobra.Command

	for pos := range providers {
		if pc, ok := providers[pos].(ProviderCommands); ok {
			commands = append(commands, pc.Commands()...)
		}
	}

	return commands
}

// GetProvider retrieves a provider by name with type safety
//
//	db := kubit.GetProvider[*lucid.DatabaseServiceProvider](app, "lucid")
func GetProvider[T Provider](app *Application, name string) T {
	var zero T

	if app == nil {
		return zero
	}

	for _, p := range app.providers.providers {
		if ProviderName(p) != name {
			continue
		}
		if t, ok := p.(T); ok {
			return t
		}
	}

	return zero
}
