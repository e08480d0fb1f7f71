package i18n

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Translations are the messages of every locale: locale -> key -> message
type Translations map[string]map[string]string

// merge copies other over t
func (t Translations) merge(other Translations) {
	for locale, messages := range other {
		if t[locale] == nil {
			t[locale] = make(map[string]string, len(messages))
		}
		for key, msg := range messages {
			t[locale][key] = msg
		}
	}
}

// Loader loads translations, the manager merges every loader in order
type Loader interface {
	Load() (Translations, error)
}

type LoaderFunc func() (Translations, error)

func (fn LoaderFunc) Load() (Translations, error) { return fn() }

// decoders by file extension
var decoders = map[string]func([]byte, *map[string]any) error{
	"yaml": func(b []byte, out *map[string]any) error { return yaml.Unmarshal(b, out) },
	"json": func(b []byte, out *map[string]any) error { return json.Unmarshal(b, out) },
}

var extensions = map[string][]string{
	"yaml": {".yaml", ".yml"},
	"json": {".json"},
}

// FSLoader reads <Dir>/<locale>/<group>.<ext> files, nested keys are joined
// with dots and prefixed with the group:
//
//	# resources/lang/en/messages.yaml
//	greeting: Hello {name}
//	posts:
//	  count: "{n, plural, one {# post} other {# posts}}"
//
// defines messages.greeting and messages.posts.count. A missing folder has no
// translations.
type FSLoader struct {
	Dir     string
	Formats []string
}

func (l FSLoader) Load() (Translations, error) {
	ret := Translations{}

	entries, err := os.ReadDir(l.Dir)
	if os.IsNotExist(err) {
		return ret, nil
	}
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		locale := entry.Name()
		messages, err := l.loadLocale(filepath.Join(l.Dir, locale))
		if err != nil {
			return nil, err
		}
		if len(messages) > 0 {
			ret[locale] = messages
		}
	}

	return ret, nil
}

func (l FSLoader) loadLocale(dir string) (map[string]string, error) {
	messages := map[string]string{}

	for _, format := range l.Formats {
		decode, ok := decoders[format]
		if !ok {
			return nil, fmt.Errorf("%w: unknown loader %s", ErrInvalidConfig, format)
		}

		for _, ext := range extensions[format] {
			files, err := filepath.Glob(filepath.Join(dir, "*"+ext))
			if err != nil {
				return nil, err
			}

			for _, file := range files {
				b, err := os.ReadFile(file)
				if err != nil {
					return nil, err
				}

				var content map[string]any
				if err := decode(b, &content); err != nil {
					return nil, fmt.Errorf("failed to parse %s: %w", file, err)
				}

				group := strings.TrimSuffix(filepath.Base(file), ext)
				flatten(group, content, messages)
			}
		}
	}

	return messages, nil
}

func flatten(prefix string, content map[string]any, out map[string]string) {
	for key, value := range content {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}

		switch v := value.(type) {
		case map[string]any:
			flatten(full, v, out)
		case nil:
			continue
		default:
			out[full] = fmt.Sprint(v)
		}
	}
}
