package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestMessageFormat(t *testing.T) {
	tests := []struct {
		name   string
		tag    language.Tag
		source string
		data   map[string]any
		want   string
	}{
		{
			name:   "plain text",
			source: "Hello world",
			want:   "Hello world",
		},
		{
			name:   "interpolation",
			source: "Hello {name}, welcome to {app}",
			data:   map[string]any{"name": "Virk", "app": "kubit"},
			want:   "Hello Virk, welcome to kubit",
		},
		{
			name:   "exact plural match",
			source: "{count, plural, =0 {no posts} one {# post} other {# posts}}",
			data:   map[string]any{"count": 0},
			want:   "no posts",
		},
		{
			name:   "plural one",
			source: "{count, plural, =0 {no posts} one {# post} other {# posts}}",
			data:   map[string]any{"count": 1},
			want:   "1 post",
		},
		{
			name:   "plural other with grouping",
			source: "{count, plural, one {# post} other {# posts}}",
			data:   map[string]any{"count": 1200},
			want:   "1,200 posts",
		},
		{
			name:   "french zero is singular",
			tag:    language.French,
			source: "{count, plural, one {# fichier} other {# fichiers}}",
			data:   map[string]any{"count": 0},
			want:   "0 fichier",
		},
		{
			name:   "plural offset",
			source: "{guests, plural, offset:1 =0 {nobody} =1 {you} one {you and # other} other {you and # others}}",
			data:   map[string]any{"guests": 3},
			want:   "you and 2 others",
		},
		{
			name:   "plural offset singular",
			source: "{guests, plural, offset:1 =0 {nobody} =1 {you} one {you and # other} other {you and # others}}",
			data:   map[string]any{"guests": 2},
			want:   "you and 1 other",
		},
		{
			name:   "selectordinal",
			source: "{rank, selectordinal, one {#st} two {#nd} few {#rd} other {#th}}",
			data:   map[string]any{"rank": 23},
			want:   "23rd",
		},
		{
			name:   "selectordinal other",
			source: "{rank, selectordinal, one {#st} two {#nd} few {#rd} other {#th}}",
			data:   map[string]any{"rank": 11},
			want:   "11th",
		},
		{
			name:   "select",
			source: "{gender, select, male {He} female {She} other {They}} replied",
			data:   map[string]any{"gender": "female"},
			want:   "She replied",
		},
		{
			name:   "select falls back to other",
			source: "{gender, select, male {He} female {She} other {They}} replied",
			data:   map[string]any{"gender": "unknown"},
			want:   "They replied",
		},
		{
			name:   "select nested in plural keeps the hash",
			source: "{n, plural, one {{kind, select, photo {# photo} other {# file}}} other {{kind, select, photo {# photos} other {# files}}}}",
			data:   map[string]any{"n": 4, "kind": "photo"},
			want:   "4 photos",
		},
		{
			name:   "number",
			source: "Total: {total, number}",
			data:   map[string]any{"total": 1234.5},
			want:   "Total: 1,234.5",
		},
		{
			name:   "number in german",
			tag:    language.German,
			source: "Summe: {total, number}",
			data:   map[string]any{"total": 1234.5},
			want:   "Summe: 1.234,5",
		},
		{
			name:   "hash outside plural is text",
			source: "Issue #{id}",
			data:   map[string]any{"id": 12},
			want:   "Issue #12",
		},
		{
			name:   "quoted braces",
			source: "Use '{name}' to interpolate",
			want:   "Use {name} to interpolate",
		},
		{
			name:   "escaped quote",
			source: "It''s {name}",
			data:   map[string]any{"name": "here"},
			want:   "It's here",
		},
		{
			name:   "lone apostrophe",
			source: "I'm {name}",
			data:   map[string]any{"name": "Virk"},
			want:   "I'm Virk",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag := tt.tag
			if tag == language.Und {
				tag = language.English
			}

			msg, err := ParseMessage(tt.source)
			require.NoError(t, err)
			assert.Equal(t, tt.source, msg.String())

			got, err := msg.Format(tag, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMessageParseErrors(t *testing.T) {
	sources := map[string]string{
		"unclosed placeholder": "Hello {name",
		"stray closing brace":  "Hello }",
		"missing name":         "Hello {}",
		"missing other case":   "{n, plural, one {# post}}",
		"unsupported type":     "{d, date, short}",
		"invalid offset":       "{n, plural, offset:x other {#}}",
		"unclosed case":        "{n, plural, other {# posts}",
	}

	for name, source := range sources {
		t.Run(name, func(t *testing.T) {
			_, err := ParseMessage(source)
			assert.ErrorIs(t, err, ErrInvalidMessage)
		})
	}
}

func TestMessageFormatErrors(t *testing.T) {
	t.Run("it should fail on a missing argument", func(t *testing.T) {
		msg, err := ParseMessage("Hello {name}")
		require.NoError(t, err)

		_, err = msg.Format(language.English, nil)
		assert.ErrorIs(t, err, ErrMissingArgument)
	})

	t.Run("it should fail when a plural value is not a number", func(t *testing.T) {
		msg, err := ParseMessage("{n, plural, other {#}}")
		require.NoError(t, err)

		_, err = msg.Format(language.English, map[string]any{"n": "many"})
		assert.Error(t, err)
	})

	t.Run("numeric strings are numbers", func(t *testing.T) {
		msg, err := ParseMessage("{n, plural, one {# post} other {# posts}}")
		require.NoError(t, err)

		got, err := msg.Format(language.English, map[string]any{"n": "3"})
		require.NoError(t, err)
		assert.Equal(t, "3 posts", got)
	})
}

func TestOperands(t *testing.T) {
	tests := []struct {
		n             float64
		i, v, w, f, t int
	}{
		{n: 1, i: 1},
		{n: 1.5, i: 1, v: 1, w: 1, f: 5, t: 5},
		{n: -2.25, i: 2, v: 2, w: 2, f: 25, t: 25},
	}

	for _, tt := range tests {
		i, v, w, f, tr := operands(tt.n)
		assert.Equal(t, []int{tt.i, tt.v, tt.w, tt.f, tt.t}, []int{i, v, w, f, tr}, "operands of %v", tt.n)
	}
}
