package seeder

import (
	"context"
	"testing"

	"github.com/kubit-go/kubit/database"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countrySeeder struct {
	envs []string
	ran  *[]string
}

func (s countrySeeder) Run(context.Context, *database.Database) error {
	*s.ran = append(*s.ran, "countries")
	return nil
}

func (s countrySeeder) Environments() []string { return s.envs }

type fakeDataSeeder struct{ ran *[]string }

func (s fakeDataSeeder) Run(context.Context, *database.Database) error {
	*s.ran = append(*s.ran, "fake")
	return nil
}

func (fakeDataSeeder) DevelopmentOnly() bool { return true }

func TestSeedsRunner(t *testing.T) {
	tests := []struct {
		name     string
		env      string
		statuses []Status
		ran      []string
	}{
		{"development", "development", []Status{StatusCompleted, StatusFailed, StatusCompleted, StatusCompleted}, []string{"countries", "fake", "users"}},
		{"production", "production", []Status{StatusIgnored, StatusFailed, StatusIgnored, StatusCompleted}, []string{"users"}},
		{"test", "test", []Status{StatusCompleted, StatusFailed, StatusIgnored, StatusCompleted}, []string{"countries", "users"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := test.NewNullLogger()
			var ran []string

			r := NewSeedsRunner(nil, tt.env, logger)
			require.NoError(t, r.Register("1_countries", countrySeeder{envs: []string{"development", "test"}, ran: &ran}))
			require.NoError(t, r.Register("2_broken", SeederFunc(func(context.Context, *database.Database) error { return assert.AnError })))
			require.NoError(t, r.Register("3_fake", fakeDataSeeder{ran: &ran}))
			require.NoError(t, r.Register("4_users", SeederFunc(func(context.Context, *database.Database) error {
				ran = append(ran, "users")
				return nil
			})))

			results, err := r.Run(context.Background())
			require.NoError(t, err)

			statuses := make([]Status, 0, len(results))
			for _, res := range results {
				statuses = append(statuses, res.Status)
			}

			assert.Equal(t, tt.statuses, statuses)
			assert.Equal(t, tt.ran, ran)
			assert.True(t, Failed(results))
			assert.ErrorIs(t, results[1].Error, assert.AnError)
		})
	}
}

func TestSeedsRunnerNames(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var order []string

	r := NewSeedsRunner(nil, "test", logger)
	for _, name := range []string{"b", "a"} {
		name := name
		require.NoError(t, r.Register(name, SeederFunc(func(context.Context, *database.Database) error {
			order = append(order, name)
			return nil
		})))
	}

	assert.ErrorIs(t, r.Register("a", SeederFunc(nil)), ErrSeederExists)

	results, err := r.Run(context.Background(), "b", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, order)
	assert.False(t, Failed(results))
	assert.Equal(t, "b", results[0].Name)

	_, err = r.Run(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSeederNotFound)

	ignored := NewSeedsRunner(nil, "production", logger)
	require.NoError(t, ignored.Register("fake", fakeDataSeeder{ran: &order}))
	results, err = ignored.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Enabled only in development environment", results[0].SkipReason)
}
