package i18n

import (
	"context"
	"path/filepath"

	"github.com/kubit-go/kubit"
	"github.com/kubit-go/kubit/validation"
)

const BindingI18n = "Kubit/I18n"

// I18nProvider binds the I18nManager. Translations are read from the
// translations_path folder, Loaders are merged over them in order.
type I18nProvider struct {
	Loaders []Loader
}

func (p *I18nProvider) Name() string { return "i18n" }

func (p *I18nProvider) Register(app *kubit.Application) error {
	return app.Container().Singleton(BindingI18n, func(*kubit.Container) (any, error) {
		cfg, err := ConfigFromViper(app.Config())
		if err != nil {
			return nil, err
		}

		dir := cfg.TranslationsPath
		if !filepath.IsAbs(dir) {
			dir = app.MakePath(dir)
		}

		loaders := append([]Loader{FSLoader{Dir: dir, Formats: cfg.Loaders}}, p.Loaders...)

		return NewManager(cfg, Options{
			Logger:  app.Logger(),
			Emitter: app,
			Loaders: loaders,
		}), nil
	})
}

// Boot loads the translations and translates the validation messages in
// the default locale
func (p *I18nProvider) Boot(app *kubit.Application) error {
	return app.Container().WithBindings([]string{BindingI18n, kubit.BindingValidator}, func(values ...any) error {
		m, v := values[0].(*I18nManager), values[1].(*validation.Validator)

		if err := m.ReloadTranslations(); err != nil {
			return err
		}

		v.SetMessageProvider(m.Locale(m.DefaultLocale()).ValidatorMessages())
		return nil
	})
}

// Events reloads the translations when the config file changes
func (p *I18nProvider) Events() map[string]kubit.EventFunc {
	return map[string]kubit.EventFunc{
		kubit.EventConfigChanged: func(ctx context.Context, _ *kubit.Event) {
			app := kubit.ApplicationFromContext(ctx)
			if app == nil || !app.Container().IsResolved(BindingI18n) {
				return
			}

			m, err := kubit.Use[*I18nManager](app.Container(), BindingI18n)
			if err != nil {
				return
			}

			if err := m.ReloadTranslations(); err != nil {
				app.Logger().WithError(err).Error("failed to reload translations")
			}
		},
	}
}

var (
	_ kubit.Provider       = &I18nProvider{}
	_ kubit.ProviderBoot   = &I18nProvider{}
	_ kubit.ProviderEvents = &I18nProvider{}
)

// ContextKey is the WebContext key DetectLocale stores the formatter under
const ContextKey = "i18n"

// FromContext returns the formatter of the request, the default locale one
// when DetectLocale did not run
func FromContext(wctx *kubit.WebContext) *I18n {
	if v, ok := wctx.Get(ContextKey); ok {
		if i, ok := v.(*I18n); ok {
			return i
		}
	}

	c := wctx.Container()
	if c == nil {
		return nil
	}

	m, err := kubit.Use[*I18nManager](c, BindingI18n)
	if err != nil {
		return nil
	}
	return m.Locale(m.DefaultLocale())
}
