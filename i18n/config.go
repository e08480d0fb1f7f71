package i18n

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid i18n config")

// Config is the i18n section of the application config
//
//	i18n:
//	  default_locale: en
//	  supported_locales: [en, fr, pt-BR]
//	  fallback_locales:
//	    pt-BR: pt
//	  translations_path: resources/lang
//	  loaders: [yaml, json]
type Config struct {
	DefaultLocale    string            `mapstructure:"default_locale" validate:"required"`
	SupportedLocales []string          `mapstructure:"supported_locales"`
	FallbackLocales  map[string]string `mapstructure:"fallback_locales"`
	TranslationsPath string            `mapstructure:"translations_path"`
	Loaders          []string          `mapstructure:"loaders" validate:"dive,oneof=yaml json"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("i18n.default_locale", "en")
	v.SetDefault("i18n.translations_path", "resources/lang")
	v.SetDefault("i18n.loaders", []string{"yaml", "json"})
}

// ConfigFromViper reads and validates the i18n section
func ConfigFromViper(v *viper.Viper) (Config, error) {
	setDefaults(v)

	var cfg Config
	if err := v.UnmarshalKey("i18n", &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return cfg, nil
}
