package kubit

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/kubit-go/kubit/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestHarness(t *testing.T) {
	type post struct {
		Title string `json:"title" validate:"required"`
	}

	h, err := NewTestHarness(t.TempDir(), Options{
		Initializer: func(app *Application) error {
			app.Routes().Post("/posts", func(wctx *WebContext) {
				var p post
				if err := wctx.Marshal(&p); err != nil {
					wctx.RenderError(err)
					return
				}

				if err := wctx.Application().Validator().Validate(wctx, p); err != nil {
					wctx.RenderError(err)
					return
				}

				wctx.SetStatus(http.StatusCreated)
				wctx.RenderJSON(p)
			})
			return nil
		},
	})
	require.NoError(t, err)

	t.Run("it should send json", func(t *testing.T) {
		var p post

		resp := h.Post("/posts").WithJSON(post{Title: "hello"}).Send()
		resp.AssertStatus(t, http.StatusCreated).
			AssertHeader(t, "Content-Type", "application/json").
			AssertBodyContains(t, "hello")

		require.NoError(t, resp.Unmarshal(&p))
		assert.Equal(t, "hello", p.Title)
	})

	t.Run("it should render validation errors", func(t *testing.T) {
		h.Post("/posts").WithBody(`{}`).Send().
			AssertStatus(t, http.StatusUnprocessableEntity).
			AssertBodyContains(t, "title failed on the required rule")
	})

	t.Run("it should report health", func(t *testing.T) {
		h.Get("/health").Send().
			AssertStatus(t, http.StatusOK).
			AssertBodyContains(t, `"isLive":true`)

		require.NoError(t, h.App.HealthCheck().AddChecker("redis", health.CheckerFunc(func(context.Context) (health.Report, error) {
			return health.Report{}, fmt.Errorf("connection refused")
		})))

		h.Get("/health").Send().
			AssertStatus(t, http.StatusServiceUnavailable).
			AssertBodyContains(t, "connection refused")
	})

	t.Run("it should return 404 for unknown routes", func(t *testing.T) {
		h.Request(http.MethodGet, "/missing").Send().AssertStatus(t, http.StatusNotFound)
	})
}
