package kubit

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
)

// WebService is the http server of the application, bound as Kubit/Server
type WebService struct {
	application *Application
	server      *http.Server
	running     atomic.Bool
}

// NewWebService builds the http.Server from the http config section
//
//	http:
//	  bind: 0.0.0.0:3333
//	  port: 3333
//	  timeouts:
//	    read: 5s
func NewWebService(app *Application) *WebService {
	ws := &WebService{application: app}

	cfg := app.config
	ws.server = &http.Server{
		Addr:              bindFromConfig(app, "http.bind", "http.port"),
		Handler:           ws,
		ReadTimeout:       cfg.GetDuration("http.timeouts.read"),
		WriteTimeout:      cfg.GetDuration("http.timeouts.write"),
		IdleTimeout:       cfg.GetDuration("http.timeouts.idle"),
		ReadHeaderTimeout: cfg.GetDuration("http.timeouts.header"),
	}

	return ws
}

func (*WebService) Name() string       { return "web" }
func (ws *WebService) IsRunning() bool { return ws.running.Load() }
func (ws *WebService) Addr() string    { return ws.server.Addr }

// Start blocks until the server is stopped
func (ws *WebService) Start() error {
	ws.running.Store(true)
	defer ws.running.Store(false)

	ws.application.logger.Infof("listening on %s", ws.server.Addr)
	if err := ws.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down
func (ws *WebService) Stop() error {
	if !ws.running.Load() {
		return nil
	}

	ws.application.logger.Trace("shutting down webserver")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return ws.server.Shutdown(ctx)
}

func (ws *WebService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	RouteRequest(ws.application, r, w)
}

func bindFromConfig(a *Application, fullBindEnv, portEnv string) string {
	bind := a.config.GetString(fullBindEnv)
	if bind == "" {
		bind = ":" + a.config.GetString(portEnv)
	}
	if bind == ":" {
		bind = ":3333"
	}
	return bind
}

// ServeHTTP lets the application be mounted on any http server (IE: httptest)
func (a *Application) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	RouteRequest(a, r, w)
}
