package kubit

import (
	"context"
	"errors"
)

// Ignitor is the entry point of a kubit app, it knows where the app lives
// and how it is composed and builds the kernel for the requested run mode.
//
//	func main() {
//		if err := kubit.NewIgnitor(cwd, options).Ace().Handle(os.Args[1:]); err != nil {
//			os.Exit(1)
//		}
//	}
type Ignitor struct {
	appRoot string
	options Options
}

func NewIgnitor(appRoot string, options ...Options) *Ignitor {
	ig := &Ignitor{appRoot: appRoot}
	if len(options) > 0 {
		ig.options = options[0]
	}
	return ig
}

func (ig *Ignitor) AppRoot() string { return ig.appRoot }

// Ace returns the console kernel
func (ig *Ignitor) Ace() *Ace {
	return newAce(ig.appRoot, ig.options, nil)
}

// HTTPServer returns the http kernel
func (ig *Ignitor) HTTPServer() *HTTPServer {
	return &HTTPServer{ignitor: ig}
}

// Application builds and boots an app without starting anything, mostly for tests
func (ig *Ignitor) Application(environment Environment) (*Application, error) {
	app := NewApplication(ig.appRoot, environment, ig.options)

	if err := app.Boot(); err != nil {
		return nil, errors.Join(err, app.Shutdown(context.Background()))
	}

	return app, nil
}

// HTTPServer boots the app in the web environment and serves it until
// SIGINT / SIGTERM
type HTTPServer struct {
	ignitor *Ignitor
}

func (s *HTTPServer) Start(ctx context.Context) error {
	app, err := s.ignitor.Application(EnvironmentWeb)
	if err != nil {
		return err
	}

	err = serve(ctx, app)

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return errors.Join(err, app.Shutdown(sctx))
}
