package i18n

import (
	"errors"
	"fmt"

	"github.com/kubit-go/kubit/validation"
	"golang.org/x/text/language"
)

// I18n formats the messages of one locale, falling back to the fallback
// locale for missing keys. It is cheap, build one per request.
type I18n struct {
	manager        *I18nManager
	locale         string
	fallbackLocale string
}

func (i *I18n) Locale() string         { return i.locale }
func (i *I18n) FallbackLocale() string { return i.fallbackLocale }

// SwitchLocale changes the locale and its fallback
func (i *I18n) SwitchLocale(locale string) {
	i.locale = locale
	i.fallbackLocale = i.manager.FallbackLocale(locale)
}

func (i *I18n) HasMessage(key string) bool {
	return i.manager.has(i.locale, key)
}

func (i *I18n) HasFallbackMessage(key string) bool {
	return i.manager.has(i.fallbackLocale, key)
}

// FormatMessage formats the message stored under key. A missing key returns
// "translation missing: <locale>, <key>", a message failing to format is
// logged and returned unformatted.
func (i *I18n) FormatMessage(key string, data map[string]any) string {
	for _, locale := range []string{i.locale, i.fallbackLocale} {
		msg, ok, err := i.manager.message(locale, key)
		if !ok {
			continue
		}
		if err != nil {
			i.manager.logger.WithError(err).Errorf("failed to parse %s of %s", key, locale)
			return i.manager.source(locale, key)
		}

		return i.format(msg, language.Make(locale), key, data)
	}

	i.manager.missing(i.locale, key)
	return fmt.Sprintf("translation missing: %s, %s", i.locale, key)
}

// T is FormatMessage
func (i *I18n) T(key string, data map[string]any) string {
	return i.FormatMessage(key, data)
}

// FormatRawMessage formats a message that is not part of the translations
func (i *I18n) FormatRawMessage(source string, data map[string]any) (string, error) {
	msg, err := ParseMessage(source)
	if err != nil {
		return "", err
	}
	return msg.Format(language.Make(i.locale), data)
}

func (i *I18n) format(msg *Message, tag language.Tag, key string, data map[string]any) string {
	out, err := msg.Format(tag, data)
	if err != nil {
		entry := i.manager.logger.WithError(err)
		if errors.Is(err, ErrMissingArgument) {
			entry.Warnf("failed to format %s", key)
		} else {
			entry.Errorf("failed to format %s", key)
		}
		return msg.String()
	}
	return out
}

// ValidatorMessages provides the validation messages of the locale. A field
// specific message (validator.shared.<field>.<rule>) wins over the rule one
// (validator.shared.<rule>), both get the field, rule and param arguments:
//
//	validator:
//	  shared:
//	    required: "{field} is required"
//	    email:
//	      unique: That email is taken
func (i *I18n) ValidatorMessages() validation.MessageProvider {
	return validation.MessageProviderFunc(func(field, rule, param string) (string, bool) {
		data := map[string]any{"field": field, "rule": rule, "param": param}

		for _, key := range []string{
			"validator.shared." + field + "." + rule,
			"validator.shared." + rule,
		} {
			if i.HasMessage(key) || i.HasFallbackMessage(key) {
				return i.FormatMessage(key, data), true
			}
		}
		return "", false
	})
}
