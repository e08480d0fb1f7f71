package kubit

import (
	"fmt"
	"math/bits"
	"net/http"
	"sort"
	"strings"
)

const (
	HeaderAllow                      = "Allow"
	HeaderAccessControlRequestMethod = "Access-Control-Request-Method"
)

// RouteVars holds the route path variables of a request
type RouteVars struct {
	keys   []string
	values []string
}

// Get returns the value for the given key, or empty string if not found.
func (rv *RouteVars) Get(key string) string {
	if rv == nil {
		return ""
	}

	for i := range rv.keys {
		if rv.keys[i] == key {
			return rv.values[i]
		}
	}

	return ""
}

func (rv *RouteVars) set(key, value string) {
	rv.keys = append(rv.keys, key)
	rv.values = append(rv.values, value)
}

// Len returns the number of variables.
func (rv *RouteVars) Len() int {
	if rv == nil {
		return 0
	}
	return len(rv.keys)
}

// Map returns a copy of the variables
func (rv *RouteVars) Map() map[string]string {
	ret := make(map[string]string, rv.Len())
	if rv == nil {
		return ret
	}

	for i := range rv.keys {
		ret[rv.keys[i]] = rv.values[i]
	}
	return ret
}

type methodType uint

const (
	STUB    methodType = 0x001
	CONNECT methodType = 0x002
	DELETE  methodType = 0x004
	GET     methodType = 0x008
	HEAD    methodType = 0x010
	OPTIONS methodType = 0x020
	PATCH   methodType = 0x040
	POST    methodType = 0x080
	PUT     methodType = 0x100
	TRACE   methodType = 0x200
)

const allIndex = 10

type Controller interface {
	Routes(*Route)
}

var (
	ALL methodType = CONNECT | DELETE | GET | HEAD | OPTIONS | PATCH | POST | PUT | TRACE

	methods = map[string]methodType{
		http.MethodConnect: CONNECT,
		http.MethodDelete:  DELETE,
		http.MethodGet:     GET,
		http.MethodHead:    HEAD,
		http.MethodOptions: OPTIONS,
		http.MethodPatch:   PATCH,
		http.MethodPost:    POST,
		http.MethodPut:     PUT,
		http.MethodTrace:   TRACE,
	}
)

func routeVariables(re *Route, segments []string) *RouteVars {
	ret := &RouteVars{}

	if re == nil || len(segments) == 0 {
		return ret
	}

	p := re

	// Walk backwards through the segments
	for i := len(segments) - 1; i >= 0 && p != nil; i-- {
		if p.token != nil && p.token.isDynamic {
			ret.set(p.token.value, segments[i])
		}

		p = p.parent
	}

	return ret
}

// HandlerFunc Defines our handler function
type HandlerFunc func(*WebContext)

// MiddlewareFunc defines our middleware function
type MiddlewareFunc func(HandlerFunc) HandlerFunc

// Route is an entry into our routing tree
type Route struct {
	token *RouteToken

	// Index 0-9: STUB..TRACE
	// Index 10: ALL
	handlers [11]HandlerFunc
	chained  [11]HandlerFunc

	children   []*Route
	middleware []MiddlewareFunc

	allowed     methodType
	allowHeader string

	noOp HandlerFunc

	parent *Route
	root   *Route
}

func (re *Route) Token() *RouteToken  { return re.token }
func (re *Route) Children() []*Route  { return re.children }
func (re *Route) Parent() *Route      { return re.parent }
func (re *Route) HasHandlers() bool   { return re.allowed != 0 }
func (re *Route) AllowHeader() string { return re.allowHeader }

// FindChildByToken find a child given a route token
func (re *Route) FindChildByToken(token *RouteToken) *Route {
	for pos := range re.children {
		if re.children[pos].token.Equal(token) {
			return re.children[pos]
		}
	}
	return nil
}

func (re *Route) Allow() []string {
	ret := []string{}

	if re.allowed == 0 {
		return ret
	}

	for name, mt := range methods {
		if re.allowed&mt != 0 {
			ret = append(ret, name)
		}
	}
	sort.Strings(ret)
	return ret
}

// IsAllowed returns if a method is allowed on a route
func (re *Route) IsAllowed(method string) bool {
	if mt, found := methods[method]; found {
		return re.allowed&mt != 0
	}
	return false
}

func methodIndex(m methodType) int {
	if m == ALL {
		return allIndex
	}
	return bits.TrailingZeros(uint(m))
}

func FindRouteBySegments(root *Route, segments []string) *Route {
	if len(segments) == 0 || (len(segments) == 1 && segments[0] == "/") {
		return root
	}

	return root.search(segments)
}

func FindRoute(root *Route, path string) *Route {
	return FindRouteBySegments(root, pathSegments(path))
}

// search walks the tree depth first, static children are sorted ahead of
// dynamic ones so /users/new wins over /users/{id}. A node without handlers
// never terminates a match so siblings still get a chance.
func (re *Route) search(segments []string) *Route {
	if len(segments) == 0 {
		return re
	}

	if re.token != nil {
		if !re.token.Match(segments[0]) {
			return nil
		}

		if len(segments) == 1 {
			if re.allowed == 0 {
				return nil
			}
			return re
		}

		segments = segments[1:]
	}

	for pos := range re.children {
		if found := re.children[pos].search(segments); found != nil {
			return found
		}
	}

	return nil
}

func (re *Route) Length() (cnt int) {
	for _, c := range re.children {
		cnt = cnt + c.Length() + 1
	}
	return
}

func NewRouteRoot() *Route {
	rt := NewRoute(nil)
	rt.token = &RouteToken{value: "/"}

	return rt
}

func NewRoute(root *Route) *Route {
	return &Route{
		middleware: []MiddlewareFunc{},
		root:       root,
		noOp:       noOpHandler,
	}
}

func (re *Route) updateHandlers() {
	middleware := re.resolveMiddleware()

	re.chained = [11]HandlerFunc{}
	for i := range re.handlers {
		if h := re.handlers[i]; h != nil {
			re.chained[i] = chain(middleware, h)
		}
	}

	// ALL handlers fill every method that has no handler of its own
	if allH := re.chained[allIndex]; allH != nil {
		for _, mType := range methods {
			idx := methodIndex(mType)
			if re.chained[idx] == nil {
				re.chained[idx] = allH
			}
		}
	}

	for _, child := range re.children {
		child.updateHandlers()
	}

	re.noOp = chain(middleware, noOpHandler)
	re.allowHeader = strings.Join(re.Allow(), ",")
}

func (re *Route) resolveMiddleware() []MiddlewareFunc {
	middleware := []MiddlewareFunc{}

	for cur := re; cur != nil; cur = cur.parent {
		middleware = append(append([]MiddlewareFunc{}, cur.middleware...), middleware...)
	}

	return middleware
}

func (re *Route) add(path string, handler HandlerFunc, httpMethods methodType) *Route {
	tokens := tokenize(path)
	if len(tokens) == 0 {
		return re
	}

	root := re.root
	if root == nil {
		root = re
	}

	r := re
	for pos := range tokens {
		if tokens[pos].value == "/" && !tokens[pos].isDynamic {
			r = re
		} else {
			node := r.FindChildByToken(tokens[pos])

			if node == nil {
				node = NewRoute(root)
				node.parent = r
				node.token = tokens[pos]
				r.children = append(r.children, node)

				// static routes first, then dynamic routes
				sort.SliceStable(r.children, func(i, j int) bool {
					return !r.children[i].token.isDynamic && r.children[j].token.isDynamic
				})

				node.updateHandlers()
			}
			r = node
		}
	}

	if handler == nil || httpMethods == 0 {
		return r
	}

	if httpMethods == ALL {
		r.handlers[allIndex] = handler
	} else {
		for _, mType := range methods {
			if httpMethods&mType != 0 {
				r.handlers[methodIndex(mType)] = handler
			}
		}
	}

	r.allowed |= httpMethods
	r.updateHandlers()

	return r
}

// Use adds middleware to the route and everything below it
func (re *Route) Use(fns ...MiddlewareFunc) *Route {
	re.middleware = append(re.middleware, fns...)

	re.updateHandlers()

	return re
}

// Add adds a route returning the route we called add on for chaining,
// use Namespace or Mount to chain on a child route
func (re *Route) Add(path string, h HandlerFunc, meth methodType) *Route {
	re.add(path, h, meth)

	return re
}

// Match adds a route for a list of method names
func (re *Route) Match(path string, h HandlerFunc, httpMethods ...string) *Route {
	var mt methodType
	for _, m := range httpMethods {
		mt |= methods[strings.ToUpper(m)]
	}
	return re.Add(path, h, mt)
}

// Any adds a route answering every method
func (re *Route) Any(path string, h HandlerFunc) *Route { return re.Add(path, h, ALL) }

// Get adds a get route
func (re *Route) Get(path string, h HandlerFunc) *Route { return re.Add(path, h, GET) }

// Post adds a post route
func (re *Route) Post(path string, h HandlerFunc) *Route { return re.Add(path, h, POST) }

// Put adds a put route
func (re *Route) Put(path string, h HandlerFunc) *Route { return re.Add(path, h, PUT) }

// Patch adds a patch route
func (re *Route) Patch(path string, h HandlerFunc) *Route { return re.Add(path, h, PATCH) }

// Delete adds a delete route
func (re *Route) Delete(path string, h HandlerFunc) *Route { return re.Add(path, h, DELETE) }

// Connect adds a connect route
func (re *Route) Connect(path string, h HandlerFunc) *Route { return re.Add(path, h, CONNECT) }

// Options adds an options route
func (re *Route) Options(path string, h HandlerFunc) *Route { return re.Add(path, h, OPTIONS) }

// Head add a route for a head request
func (re *Route) Head(path string, h HandlerFunc) *Route { return re.Add(path, h, HEAD) }

// Mount mounts a controller under path
func (re *Route) Mount(path string, c Controller) *Route {
	return re.Namespace(path, c.Routes)
}

// Namespace creates (or reuses) the node at path and hands it to f,
// middleware added inside f only applies to that subtree
func (re *Route) Namespace(path string, f func(r *Route)) *Route {
	r := re.add(path, nil, 0)

	f(r)

	return re
}

func (re *Route) Route(path string, f func(r *Route)) *Route {
	return re.Namespace(path, f)
}

// RouteRequest dispatches the request through the application route tree
func RouteRequest(a *Application, r *http.Request, w http.ResponseWriter) {
	path := r.URL.Path

	if len(path) == 0 {
		w.WriteHeader(http.StatusNotAcceptable)
		return
	}

	segments := pathSegments(path)

	re := FindRouteBySegments(a.routes, segments)
	if re == nil || re.allowed == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	wctx := NewWebContext(a, r, w)
	wctx.route = re
	wctx.segments = segments

	// Resolve method for CORS preflight or actual request
	method := r.Method
	if r.Method == http.MethodOptions {
		if m := r.Header.Get(HeaderAccessControlRequestMethod); m != "" {
			method = m
		}
	}

	if mt, ok := methods[method]; ok {
		if handler := re.chained[methodIndex(mt)]; handler != nil {
			if method == r.Method {
				handler(wctx)
				return
			}
			re.noOp(wctx)
			return
		}
	}

	w.Header().Set(HeaderAllow, re.allowHeader)
	w.WriteHeader(http.StatusMethodNotAllowed)
}

func chain(middlewares []MiddlewareFunc, endpoint HandlerFunc) HandlerFunc {
	if len(middlewares) == 0 {
		return endpoint
	}

	h := middlewares[len(middlewares)-1](endpoint)
	for i := len(middlewares) - 2; i >= 0; i-- {
		h = middlewares[i](h)
	}

	return h
}

func renderRoutes(c *WebContext) {
	if !IsDevelopment() {
		c.Response().WriteHeader(http.StatusNotFound)
		return
	}

	root := c.route
	for root.parent != nil {
		root = root.parent
	}

	c.RenderText(strings.Join(RoutesList(root), "\n"))
}

func buildPath(route *Route, prefix string) []string {
	ret := []string{}

	if route.token != nil {
		if route.token.value == "/" && !route.token.isDynamic {
			prefix = "/"
		} else {
			if prefix != "/" {
				prefix += "/"
			}

			if route.token.isDynamic {
				pattern := ""
				if m := route.token.matcher; m != "" {
					pattern = ":" + m
				}

				prefix += fmt.Sprintf("{%s%s}", route.token.value, pattern)
			} else {
				prefix += route.token.value
			}
		}
	}

	for _, k := range route.Allow() {
		ret = append(ret, fmt.Sprintf("[%s] %s", k, prefix))
	}

	for _, child := range route.children {
		ret = append(ret, buildPath(child, prefix)...)
	}

	return ret
}

func noOpHandler(*WebContext) {}
