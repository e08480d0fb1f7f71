package kubit

import (
	"flag"
	"os"
	"strings"
	"sync"
)

const (
	envVarName = "APP_ENV"

	Production  = "production"
	Staging     = "staging"
	Development = "development"
	Test        = "test"
)

// Environment is the mode the application was booted for. Providers use it to
// skip work that does not make sense (IE: health checks inside the repl).
type Environment string

const (
	EnvironmentWeb     Environment = "web"
	EnvironmentConsole Environment = "console"
	EnvironmentRepl    Environment = "repl"
	EnvironmentTest    Environment = "test"
	EnvironmentUnknown Environment = "unknown"
)

func (e Environment) String() string { return string(e) }

var (
	envLock    sync.RWMutex
	currentENV = ""
)

// Env returns the current node environment of the application (APP_ENV)
func Env() string {
	envLock.RLock()
	if currentENV != "" {
		defer envLock.RUnlock()
		return currentENV
	}
	envLock.RUnlock()

	envLock.Lock()
	defer envLock.Unlock()

	currentENV = detectEnv()
	return currentENV
}

// SetEnv overrides the detected environment, mostly useful in tests
func SetEnv(env string) {
	envLock.Lock()
	defer envLock.Unlock()

	currentENV = env
}

func detectEnv() string {
	if env := os.Getenv(envVarName); env != "" {
		return env
	}

	if strings.HasSuffix(os.Args[0], ".test") {
		return Test
	}

	if strings.Contains(os.Args[0], "/_test/") {
		return Test
	}

	if flag.Lookup("test.v") != nil {
		return Test
	}

	return Development
}

// IsTest returns if current env is test
func IsTest() bool { return Env() == Test }

// IsProduction returns true if we are running in production mode
func IsProduction() bool { return Env() == Production }

// IsDevelopment returns true if current env is development
func IsDevelopment() bool { return Env() == Development }

// IsStaging returns true if current env is staging
func IsStaging() bool { return Env() == Staging }

// IsDevelopmentOrTest returns true if we are development or test mode
// this is good for stubs
func IsDevelopmentOrTest() bool {
	return IsTest() || IsDevelopment()
}
