package kubit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	HeaderOrigin                        = "Origin"
	HeaderVary                          = "Vary"
	HeaderAccessControlRequestHeaders   = "Access-Control-Request-Headers"
	HeaderAccessControlAllowOrigin      = "Access-Control-Allow-Origin"
	HeaderAccessControlAllowMethods     = "Access-Control-Allow-Methods"
	HeaderAccessControlAllowHeaders     = "Access-Control-Allow-Headers"
	HeaderAccessControlAllowCredentials = "Access-Control-Allow-Credentials"
	HeaderAccessControlExposeHeaders    = "Access-Control-Expose-Headers"
	HeaderAccessControlMaxAge           = "Access-Control-Max-Age"

	corsAny = "*"
)

var defaultCorsMethods = []string{http.MethodGet, http.MethodHead, http.MethodPost}

// CorsOptions is the http.cors config section, a "*" origin or header allows any
//
//	http:
//	  cors:
//	    enabled: true
//	    origins: [https://kubit.dev, "https://*.kubit.dev"]
//	    methods: [GET, POST]
//	    headers: [Content-Type, Authorization]
//	    expose_headers: [X-Request-ID]
//	    credentials: true
//	    max_age: 10m
type CorsOptions struct {
	Enabled       bool          `mapstructure:"enabled"`
	Origins       []string      `mapstructure:"origins"`
	Methods       []string      `mapstructure:"methods"`
	Headers       []string      `mapstructure:"headers"`
	ExposeHeaders []string      `mapstructure:"expose_headers"`
	Credentials   bool          `mapstructure:"credentials"`
	MaxAge        time.Duration `mapstructure:"max_age"`
}

// CorsFromConfig reads the http.cors section
func CorsFromConfig(v *viper.Viper) (CorsOptions, error) {
	var opts CorsOptions
	if err := v.UnmarshalKey("http.cors", &opts); err != nil {
		return opts, fmt.Errorf("invalid http.cors config: %w", err)
	}
	return opts, nil
}

// Cors answers preflight requests and adds the cors headers to responses
// for allowed origins. Other requests reach the handler untouched.
func Cors(opts CorsOptions) MiddlewareFunc {
	policy := newCorsPolicy(opts)

	return func(next HandlerFunc) HandlerFunc {
		return func(wctx *WebContext) {
			r := wctx.Request()

			if r.Method == http.MethodOptions && r.Header.Get(HeaderAccessControlRequestMethod) != "" {
				policy.preflight(wctx)
				return
			}

			policy.decorate(wctx)
			next(wctx)
		}
	}
}

// installCors puts the configured cors middleware on the route root
func (a *Application) installCors() error {
	opts, err := CorsFromConfig(a.config)
	if err != nil || !opts.Enabled {
		return err
	}

	a.routes.Use(Cors(opts))
	return nil
}

type corsPolicy struct {
	anyOrigin bool
	origins   map[string]bool
	patterns  []string

	anyHeader bool
	headers   map[string]bool

	methods      map[string]bool
	allowMethods string

	expose      string
	credentials bool
	maxAge      string
}

func newCorsPolicy(opts CorsOptions) *corsPolicy {
	p := &corsPolicy{
		origins:     map[string]bool{},
		headers:     map[string]bool{HeaderOrigin: true},
		methods:     map[string]bool{},
		expose:      strings.Join(canonicalHeaders(opts.ExposeHeaders), ","),
		credentials: opts.Credentials,
	}

	for _, origin := range opts.Origins {
		origin = strings.ToLower(strings.TrimSpace(origin))

		switch {
		case origin == corsAny:
			p.anyOrigin = true
		case strings.ContainsAny(origin, "*?"):
			p.patterns = append(p.patterns, origin)
		case origin != "":
			p.origins[origin] = true
		}
	}

	for _, header := range opts.Headers {
		if header == corsAny {
			p.anyHeader = true
			continue
		}
		p.headers[http.CanonicalHeaderKey(strings.TrimSpace(header))] = true
	}

	methods := opts.Methods
	if len(methods) == 0 {
		methods = defaultCorsMethods
	}

	allowed := make([]string, 0, len(methods))
	for _, m := range methods {
		m = strings.ToUpper(m)
		if !p.methods[m] {
			p.methods[m] = true
			allowed = append(allowed, m)
		}
	}
	p.allowMethods = strings.Join(allowed, ",")

	if opts.MaxAge > 0 {
		p.maxAge = strconv.Itoa(int(opts.MaxAge / time.Second))
	}

	return p
}

func (p *corsPolicy) preflight(wctx *WebContext) {
	r := wctx.Request()
	h := wctx.ResponseHeaders()

	h.Add(HeaderVary, HeaderOrigin)
	h.Add(HeaderVary, HeaderAccessControlRequestMethod)
	h.Add(HeaderVary, HeaderAccessControlRequestHeaders)

	origin := r.Header.Get(HeaderOrigin)
	method := strings.ToUpper(r.Header.Get(HeaderAccessControlRequestMethod))
	requested := canonicalHeaders(strings.Split(r.Header.Get(HeaderAccessControlRequestHeaders), ","))

	switch {
	case !p.allowsOrigin(origin):
		wctx.Logger().Tracef("cors preflight: origin %q not allowed", origin)
	case !p.allowsMethod(method):
		wctx.Logger().Tracef("cors preflight: method %s not allowed", method)
	case !p.allowsHeaders(requested):
		wctx.Logger().Tracef("cors preflight: headers %v not allowed", requested)
	default:
		p.allow(h, origin)
		h.Set(HeaderAccessControlAllowMethods, p.allowMethods)

		if len(requested) > 0 {
			h.Set(HeaderAccessControlAllowHeaders, strings.Join(requested, ","))
		}
		if p.maxAge != "" {
			h.Set(HeaderAccessControlMaxAge, p.maxAge)
		}
	}

	wctx.Response().WriteHeader(http.StatusNoContent)
}

func (p *corsPolicy) decorate(wctx *WebContext) {
	r := wctx.Request()

	origin := r.Header.Get(HeaderOrigin)
	if origin == "" {
		return
	}

	h := wctx.ResponseHeaders()
	if !p.anyOrigin || p.credentials {
		h.Add(HeaderVary, HeaderOrigin)
	}

	if !p.allowsOrigin(origin) || !p.allowsMethod(r.Method) {
		wctx.Logger().Tracef("cors: %s from %q not allowed", r.Method, origin)
		return
	}

	p.allow(h, origin)
}

// allow writes the headers shared by preflight and actual responses,
// a wildcard origin is echoed back when credentials are allowed
func (p *corsPolicy) allow(h http.Header, origin string) {
	if p.anyOrigin && !p.credentials {
		h.Set(HeaderAccessControlAllowOrigin, corsAny)
	} else {
		h.Set(HeaderAccessControlAllowOrigin, origin)
	}

	if p.credentials {
		h.Set(HeaderAccessControlAllowCredentials, "true")
	}
	if p.expose != "" {
		h.Set(HeaderAccessControlExposeHeaders, p.expose)
	}
}

func (p *corsPolicy) allowsOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	if p.anyOrigin {
		return true
	}

	origin = strings.ToLower(origin)
	if p.origins[origin] {
		return true
	}

	for _, pattern := range p.patterns {
		if wildcardMatch(pattern, origin) {
			return true
		}
	}
	return false
}

func (p *corsPolicy) allowsMethod(method string) bool {
	return method == http.MethodOptions || p.methods[method]
}

func (p *corsPolicy) allowsHeaders(requested []string) bool {
	if p.anyHeader {
		return true
	}

	for _, header := range requested {
		if !p.headers[header] {
			return false
		}
	}
	return true
}

// canonicalHeaders trims and canonicalizes a header list, dropping empty entries
func canonicalHeaders(list []string) []string {
	var out []string
	for _, header := range list {
		if header = strings.TrimSpace(header); header != "" {
			out = append(out, http.CanonicalHeaderKey(header))
		}
	}
	return out
}

// wildcardMatch matches str against a pattern where * matches any run of
// characters and ? exactly one
func wildcardMatch(pattern, str string) bool {
	p, s := 0, 0
	backtrackP, backtrackS := -1, -1

	for s < len(str) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == str[s]):
			p++
			s++
		case p < len(pattern) && pattern[p] == '*':
			backtrackP, backtrackS = p, s
			p++
		case backtrackP != -1:
			backtrackS++
			p, s = backtrackP+1, backtrackS
		default:
			return false
		}
	}

	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}
