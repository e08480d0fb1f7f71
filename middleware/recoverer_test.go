package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kubit-go/kubit"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T, method, path string) (*kubit.WebContext, *httptest.ResponseRecorder, *test.Hook) {
	t.Helper()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	app := kubit.NewApplication(t.TempDir(), kubit.EnvironmentTest, kubit.Options{Logger: logger})
	require.NoError(t, app.Setup())

	w := httptest.NewRecorder()
	return kubit.NewWebContext(app, httptest.NewRequest(method, path, nil), w), w, hook
}

func TestRecoverer(t *testing.T) {
	tests := []struct {
		name       string
		handler    kubit.HandlerFunc
		wantStatus int
		wantLog    bool
	}{
		{
			name:       "Recover from panic",
			handler:    func(*kubit.WebContext) { panic("test panic") },
			wantStatus: http.StatusInternalServerError,
			wantLog:    true,
		},
		{
			name: "Keep the status already written",
			handler: func(wctx *kubit.WebContext) {
				wctx.Response().WriteHeader(http.StatusAccepted)
				panic("late panic")
			},
			wantStatus: http.StatusAccepted,
			wantLog:    true,
		},
		{
			name:       "No panic",
			handler:    func(wctx *kubit.WebContext) { wctx.RenderText("ok") },
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wctx, recorder, hook := newTestContext(t, http.MethodGet, "/")

			Recoverer(tt.handler)(wctx)

			assert.Equal(t, tt.wantStatus, recorder.Code)

			if !tt.wantLog {
				assert.Nil(t, hook.LastEntry())
				return
			}

			require.NotNil(t, hook.LastEntry())
			assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
			assert.Contains(t, hook.LastEntry().Message, "recovered from panic")
			assert.Contains(t, hook.LastEntry().Data, "stack")
		})
	}

	t.Run("it should repanic on ErrAbortHandler", func(t *testing.T) {
		wctx, _, _ := newTestContext(t, http.MethodGet, "/")

		assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
			Recoverer(func(*kubit.WebContext) { panic(http.ErrAbortHandler) })(wctx)
		})
	})
}
