// Package i18n loads translations per locale and formats ICU style messages
// with the CLDR plural rules of golang.org/x/text.
package i18n

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

const EventMissingTranslation = "i18n:missing:translation"

// Emitter is what the manager needs from the application event manager
type Emitter interface {
	Emit(ctx context.Context, name string, data any)
}

// MissingTranslationEvent is the payload of i18n:missing:translation
type MissingTranslationEvent struct {
	Key    string `json:"key"`
	Locale string `json:"locale"`
}

type Options struct {
	Logger  *logrus.Logger
	Emitter Emitter
	Loaders []Loader
}

// I18nManager keeps the translations of every locale and builds the
// per locale formatters
type I18nManager struct {
	config  Config
	logger  *logrus.Logger
	emitter Emitter
	loaders []Loader

	mu           sync.RWMutex
	translations Translations
	parsed       map[string]*Message
}

func NewManager(cfg Config, opts Options) *I18nManager {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &I18nManager{
		config:       cfg,
		logger:       logger,
		emitter:      opts.Emitter,
		loaders:      opts.Loaders,
		translations: Translations{},
		parsed:       make(map[string]*Message),
	}
}

func (m *I18nManager) Config() Config        { return m.config }
func (m *I18nManager) DefaultLocale() string { return m.config.DefaultLocale }

// ReloadTranslations runs every loader again, a failing loader keeps the
// current translations
func (m *I18nManager) ReloadTranslations() error {
	translations := Translations{}

	for _, l := range m.loaders {
		t, err := l.Load()
		if err != nil {
			return err
		}
		translations.merge(t)
	}

	m.mu.Lock()
	m.translations = translations
	m.parsed = make(map[string]*Message)
	m.mu.Unlock()

	m.logger.Debugf("loaded translations of %d locales", len(translations))
	return nil
}

// Translations returns a copy of the loaded translations
func (m *I18nManager) Translations() Translations {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ret := make(Translations, len(m.translations))
	ret.merge(m.translations)
	return ret
}

// SupportedLocales are the configured locales, the loaded ones and the
// default one otherwise
func (m *I18nManager) SupportedLocales() []string {
	if len(m.config.SupportedLocales) > 0 {
		return append([]string{}, m.config.SupportedLocales...)
	}

	m.mu.RLock()
	locales := make([]string, 0, len(m.translations)+1)
	for locale := range m.translations {
		locales = append(locales, locale)
	}
	m.mu.RUnlock()

	if !contains(locales, m.config.DefaultLocale) {
		locales = append(locales, m.config.DefaultLocale)
	}

	sort.Strings(locales)
	return locales
}

// GetSupportedLocale returns the supported locale closest to the user
// languages, languages can be Accept-Language header values. An empty
// string means nothing matched.
func (m *I18nManager) GetSupportedLocale(languages ...string) string {
	var wanted []language.Tag
	for _, l := range languages {
		tags, _, err := language.ParseAcceptLanguage(l)
		if err != nil {
			continue
		}
		wanted = append(wanted, tags...)
	}

	if len(wanted) == 0 {
		return ""
	}

	supported := m.SupportedLocales()
	tags := make([]language.Tag, 0, len(supported))
	for _, locale := range supported {
		tags = append(tags, language.Make(locale))
	}

	_, index, confidence := language.NewMatcher(tags).Match(wanted...)
	if confidence == language.No {
		return ""
	}
	return supported[index]
}

// FallbackLocale is the configured fallback of locale, the default locale otherwise
func (m *I18nManager) FallbackLocale(locale string) string {
	if fallback, ok := m.config.FallbackLocales[locale]; ok && fallback != "" {
		return fallback
	}
	return m.config.DefaultLocale
}

// Locale returns a formatter for locale
func (m *I18nManager) Locale(locale string) *I18n {
	i := &I18n{manager: m}
	i.SwitchLocale(locale)
	return i
}

func (m *I18nManager) has(locale, key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.translations[locale][key]
	return ok
}

// message returns the parsed message of key, parsed messages are cached
// until the next reload
func (m *I18nManager) message(locale, key string) (*Message, bool, error) {
	cacheKey := locale + "\x00" + key

	m.mu.RLock()
	source, ok := m.translations[locale][key]
	parsed := m.parsed[cacheKey]
	m.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if parsed != nil {
		return parsed, true, nil
	}

	msg, err := ParseMessage(source)
	if err != nil {
		return nil, true, err
	}

	m.mu.Lock()
	m.parsed[cacheKey] = msg
	m.mu.Unlock()

	return msg, true, nil
}

func (m *I18nManager) source(locale, key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.translations[locale][key]
}

func (m *I18nManager) missing(locale, key string) {
	m.logger.WithFields(logrus.Fields{"locale": locale, "key": key}).Debug("translation missing")

	if m.emitter != nil {
		m.emitter.Emit(context.Background(), EventMissingTranslation, MissingTranslationEvent{Key: key, Locale: locale})
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
