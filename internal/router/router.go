package router

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/langgate/internal/observability"
	"github.com/vyrodovalexey/langgate/internal/util"
)

const (
	msgNotFound = "Not found"
	msgInternal = "Internal server error"
)

// ErrRouterFrozen is returned when registering after the router has begun
// serving requests.
var ErrRouterFrozen = errors.New("router is frozen: routes must be registered before serving")

var supportedMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodDelete:  {},
	http.MethodPatch:   {},
	http.MethodOptions: {},
}

// ConnInfo describes the connection a request arrived on.
type ConnInfo struct {
	RemoteAddr string
}

// RemoteIP returns the connection's peer address without the port.
func (c ConnInfo) RemoteIP() string {
	host, _, err := net.SplitHostPort(c.RemoteAddr)
	if err != nil {
		return c.RemoteAddr
	}
	return host
}

// Route is an immutable registration of method, pattern, middlewares and
// handler. Name identifies it in logs, metrics and spans, e.g.
// "GET /users/:id".
type Route struct {
	Method      string
	Pattern     string
	Middlewares []Middleware
	Handler     HandlerFunc
	Name        string

	compiled *Pattern
}

// Match is the result of resolving a request.
type Match struct {
	Route  *Route
	Params Params
}

// Router dispatches requests to registered routes through an onion of
// global and per-route middlewares. Routes are registered at startup; the
// table is frozen the first time a request is dispatched and read without
// locks afterwards.
type Router struct {
	mu       sync.Mutex
	frozen   atomic.Bool
	routes   map[string][]*Route
	global   []Middleware
	patterns *Cache

	logger  observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
	now     func() time.Time

	headFallback bool
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the access and error logger.
func WithLogger(logger observability.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithMetrics records request metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// WithTracer opens a server span per request.
func WithTracer(t *observability.Tracer) Option {
	return func(r *Router) {
		r.tracer = t
	}
}

// WithPatternCache uses c instead of the process-wide pattern cache.
func WithPatternCache(c *Cache) Option {
	return func(r *Router) {
		r.patterns = c
	}
}

// WithClock overrides the clock used for request durations.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		r.now = now
	}
}

// WithoutHeadFallback makes HEAD requests match HEAD routes only.
func WithoutHeadFallback() Option {
	return func(r *Router) {
		r.headFallback = false
	}
}

// New creates an empty router.
func New(opts ...Option) *Router {
	r := &Router{
		routes:   make(map[string][]*Route),
		patterns: defaultCache,
		logger:   observability.NopLogger(),
		now:      time.Now,

		headFallback: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Use appends a global middleware, applied to every route ahead of the
// route's own middlewares.
func (r *Router) Use(mw ...Middleware) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return ErrRouterFrozen
	}
	for _, m := range mw {
		if m == nil {
			return util.NewConfigError("router.middleware", "must not be nil")
		}
	}
	r.global = append(r.global, mw...)
	return nil
}

// Route registers handler for spec, which is either "METHOD /path" or
// "/path" (GET).
func (r *Router) Route(spec string, handler HandlerFunc, mw ...Middleware) (*Route, error) {
	method, pattern := http.MethodGet, strings.TrimSpace(spec)
	if i := strings.IndexByte(pattern, ' '); i > 0 {
		method, pattern = strings.ToUpper(pattern[:i]), strings.TrimSpace(pattern[i+1:])
	}
	return r.Handle(method, pattern, handler, mw...)
}

// Handle registers handler for method and pattern. An empty method means
// GET.
func (r *Router) Handle(method, pattern string, handler HandlerFunc, mw ...Middleware) (*Route, error) {
	if handler == nil {
		return nil, util.NewConfigError("route.handler", fmt.Sprintf("%s %s: handler is required", method, pattern))
	}
	if pattern == "" {
		return nil, util.NewConfigError("route.pattern", "pathname is required")
	}
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)
	if _, ok := supportedMethods[method]; !ok {
		return nil, util.NewConfigError("route.method", fmt.Sprintf("unsupported method %q", method))
	}
	for _, m := range mw {
		if m == nil {
			return nil, util.NewConfigError("route.middleware", fmt.Sprintf("%s %s: nil middleware", method, pattern))
		}
	}

	compiled, err := r.patterns.Compile(pattern)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return nil, ErrRouterFrozen
	}

	route := &Route{
		Method:      method,
		Pattern:     compiled.Template(),
		Middlewares: append([]Middleware(nil), mw...),
		Handler:     handler,
		Name:        method + " " + compiled.Template(),
		compiled:    compiled,
	}
	r.routes[method] = append(r.routes[method], route)
	return route, nil
}

// MustRoute is Route that panics on error, for static route tables.
func (r *Router) MustRoute(spec string, handler HandlerFunc, mw ...Middleware) *Route {
	route, err := r.Route(spec, handler, mw...)
	if err != nil {
		panic(err)
	}
	return route
}

// Freeze ends the registration phase. Dispatch and ServeHTTP call it
// implicitly.
func (r *Router) Freeze() {
	if r.frozen.Load() {
		return
	}
	r.mu.Lock()
	r.frozen.Store(true)
	r.mu.Unlock()
}

// Routes returns the registered routes in registration order per method.
func (r *Router) Routes() []*Route {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Route
	for _, m := range []string{
		http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodDelete, http.MethodPatch, http.MethodOptions,
	} {
		out = append(out, r.routes[m]...)
	}
	return out
}

// Resolve finds the first route registered for the request's exact method
// whose pattern matches the normalized path.
//
// HEAD is the one exception to exact-method matching: when no HEAD route
// matches, the GET routes are tried, and Response.Write drops the body.
// WithoutHeadFallback turns this off. Resolve reads the route table without
// locking and is safe for concurrent use only once the router is frozen.
func (r *Router) Resolve(req *http.Request) (*Match, bool) {
	path := req.URL.EscapedPath()
	if m, ok := r.resolve(req.Method, path); ok {
		return m, true
	}
	if req.Method == http.MethodHead && r.headFallback {
		return r.resolve(http.MethodGet, path)
	}
	return nil, false
}

func (r *Router) resolve(method, path string) (*Match, bool) {
	for _, route := range r.routes[method] {
		if params, ok := route.compiled.Match(path); ok {
			return &Match{Route: route, Params: params}, true
		}
	}
	return nil, false
}

// Dispatch runs the full lifecycle for one request and always returns a
// response: 404 when nothing matches, 500 when the chain returns an error
// or panics. Exactly one access log line is written per call.
func (r *Router) Dispatch(req *http.Request, conn ConnInfo) *Response {
	r.Freeze()
	match, found := r.Resolve(req)
	return r.dispatch(req, conn, match, found)
}

// dispatch runs the lifecycle for an already resolved request. The router
// must be frozen.
func (r *Router) dispatch(req *http.Request, conn ConnInfo, match *Match, found bool) (resp *Response) {
	start := r.now()

	routeName := observability.UnmatchedRoute
	if found {
		routeName = match.Route.Name
	}

	ctx := util.ContextWithStartTime(req.Context(), start)
	ctx = util.ContextWithRoute(ctx, routeName)
	req = req.WithContext(ctx)

	if r.metrics != nil {
		r.metrics.IncrementActiveRequests(req.Method)
		defer r.metrics.DecrementActiveRequests(req.Method)
	}

	defer func() {
		duration := r.now().Sub(start)
		r.logAccess(req, resp, routeName, duration)
		if r.metrics != nil {
			r.metrics.RecordRequest(req.Method, routeName, resp.Status, duration)
		}
	}()

	if !found {
		return Error(http.StatusNotFound, msgNotFound)
	}

	req = req.WithContext(ContextWithParams(req.Context(), match.Params))
	return r.execute(req, conn, match)
}

func (r *Router) execute(req *http.Request, conn ConnInfo, match *Match) (resp *Response) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithContext(req.Context()).Error("panic in request chain",
				observability.String("route", match.Route.Name),
				observability.Any("panic", rec),
				observability.String("stack", string(debug.Stack())),
			)
			resp = Error(http.StatusInternalServerError, msgInternal)
		}
	}()

	chain := make([]Middleware, 0, len(r.global)+len(match.Route.Middlewares))
	chain = append(chain, r.global...)
	chain = append(chain, match.Route.Middlewares...)

	c := &cursor{
		chain:   chain,
		route:   match.Route,
		params:  match.Params,
		conn:    conn,
		handler: match.Route.Handler,
	}

	out, err := c.next(req)
	if err != nil {
		r.logger.WithContext(req.Context()).Error("request failed",
			observability.String("route", match.Route.Name),
			observability.Error(err),
		)
		return Error(http.StatusInternalServerError, msgInternal)
	}
	if out == nil {
		r.logger.WithContext(req.Context()).Error("handler returned no response",
			observability.String("route", match.Route.Name),
		)
		return Error(http.StatusInternalServerError, msgInternal)
	}
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	return out
}

func (r *Router) logAccess(req *http.Request, resp *Response, route string, duration time.Duration) {
	requestID := resp.Header.Get(util.HeaderRequestID)
	if requestID == "" {
		requestID = req.Header.Get(util.HeaderRequestID)
	}
	r.logger.Info("request",
		observability.String("method", req.Method),
		observability.String("path", req.URL.Path),
		observability.Int("status", resp.Status),
		observability.Duration("duration", duration),
		observability.String("route", route),
		observability.String("request_id", requestID),
	)
}

// ServeHTTP adapts Dispatch to net/http. The route is resolved once and
// names the server span when a tracer is set.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.Freeze()
	conn := ConnInfo{RemoteAddr: req.RemoteAddr}
	match, found := r.Resolve(req)
	if r.tracer == nil {
		r.dispatch(req, conn, match, found).Write(w, req.Method)
		return
	}

	name := observability.UnmatchedRoute
	if found {
		name = match.Route.Name
	}
	ctx, span := r.tracer.StartServerSpan(req, name)
	resp := r.dispatch(req.WithContext(ctx), conn, match, found)
	resp.Write(w, req.Method)
	observability.EndServerSpan(span, resp.Status)
}

type paramsKey struct{}

// ContextWithParams attaches path parameters to ctx.
func ContextWithParams(ctx context.Context, p Params) context.Context {
	return context.WithValue(ctx, paramsKey{}, p)
}

// ParamsFromContext returns the path parameters of the matched route.
func ParamsFromContext(ctx context.Context) Params {
	if p, ok := ctx.Value(paramsKey{}).(Params); ok {
		return p
	}
	return Params{}
}
