package kubit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureLogger(t *testing.T) {
	t.Run("it should apply the format", func(t *testing.T) {
		v := newConfig(t.TempDir(), "test")
		v.Set("logger.format", "json")

		l := NewLogger()
		require.NoError(t, configureLogger(l, v))

		assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)
	})

	t.Run("it should keep warn level in tests", func(t *testing.T) {
		v := newConfig(t.TempDir(), "test")
		v.Set("logger.level", "debug")

		l := NewLogger()
		require.NoError(t, configureLogger(l, v))

		assert.Equal(t, logrus.WarnLevel, l.Level)
	})

	t.Run("it should write to the rotated file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "logs", "app.log")

		v := newConfig(dir, "test")
		v.Set("logger.file.path", path)
		v.Set("logger.file.max_size", 1)

		l := NewLogger()
		require.NoError(t, configureLogger(l, v))

		l.Error("written to disk")

		b, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(b), "written to disk")
	})
}

func TestReadConfig(t *testing.T) {
	t.Run("it should not fail without a config file", func(t *testing.T) {
		assert.NoError(t, readConfig(newConfig(t.TempDir(), "test")))
	})

	t.Run("it should read the config folder", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.yaml"), []byte("app:\n  name: blog\nhttp:\n  port: 8080\n"), 0o600))

		app := NewApplication(dir, EnvironmentTest, Options{})
		require.NoError(t, app.Setup())

		assert.Equal(t, "blog", app.Name)
		assert.Equal(t, ":8080", bindFromConfig(app, "http.bind", "http.port"))
	})
}
