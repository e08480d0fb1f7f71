package kubit

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const configName = "config"

// newConfig builds the viper instance looking for the config files in the app root
// and its config folder. This is the place for global defaults used by every package.
func newConfig(appRoot, name string) *viper.Viper {
	v := viper.New()

	v.SetConfigName(configName)
	v.AddConfigPath(appRoot)
	v.AddConfigPath(filepath.Join(appRoot, "config"))

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.name", name)
	v.SetDefault("app.key", "")
	v.SetDefault("http.bind", "")
	v.SetDefault("http.port", "3333")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "")

	return v
}

// readConfig reads in the config file, a missing file is not an error
// everything can be provided through the environment
func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

// watchConfig reloads the config on change and dispatches ConfigChanged
func watchConfig(app *Application) {
	app.config.OnConfigChange(func(e fsnotify.Event) {
		app.Logger().Infof("config changed (%s %s)", e.Op.String(), e.Name)
		app.ConfigChanged()
	})
	app.config.WatchConfig()
}
