package kubit

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type Options struct {
	// Name of the application, the config app.name is used when empty
	Name string

	Version string

	// Providers are registered, booted and shut down in this order
	Providers []Provider

	// Commands are added to the Ace kernel next to the built-in ones
	Commands []*cobra.Command

	// Preboot runs before the config is read
	Preboot AppFunc

	// Initializer runs last once every provider is booted,
	// routes and business wiring belong here
	Initializer AppFunc

	// WatchConfig if true will watch the config file for changes and
	// dispatch a ConfigChanged event when the file is changed
	WatchConfig bool

	// Logger overrides the default logger
	Logger *logrus.Logger
}
