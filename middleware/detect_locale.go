package middleware

import (
	"github.com/kubit-go/kubit"
	"github.com/kubit-go/kubit/i18n"
)

// DetectLocale picks the supported locale closest to the Accept-Language
// header, the default locale otherwise, and stores its formatter on the
// context. Handlers read it back with i18n.FromContext.
func DetectLocale(next kubit.HandlerFunc) kubit.HandlerFunc {
	return func(wctx *kubit.WebContext) {
		m, err := kubit.Use[*i18n.I18nManager](wctx.Container(), i18n.BindingI18n)
		if err != nil {
			wctx.Logger().WithError(err).Error("i18n is not registered")
			next(wctx)
			return
		}

		locale := m.GetSupportedLocale(wctx.RequestHeaders().Values("Accept-Language")...)
		if locale == "" {
			locale = m.DefaultLocale()
		}

		wctx.Set(i18n.ContextKey, m.Locale(locale))
		wctx.AddHeader("Content-Language", locale)

		next(wctx)
	}
}
