package router

import "net/http"

// Next invokes the remainder of the chain with req.
type Next func(req *http.Request) (*Response, error)

// Middleware wraps the rest of the chain. It may return a response without
// calling next to short-circuit; code after next runs on the way out. next
// must be called at most once.
type Middleware func(req *http.Request, next Next, conn ConnInfo, route *Route) (*Response, error)

// HandlerFunc is the terminal handler of a route.
type HandlerFunc func(req *http.Request, params Params, conn ConnInfo) (*Response, error)

// cursor walks one request through [global..., route...] and then the
// handler. Each call to next advances index by exactly one, so nested calls
// unwind in reverse registration order.
type cursor struct {
	chain   []Middleware
	index   int
	route   *Route
	params  Params
	conn    ConnInfo
	handler HandlerFunc
}

func (c *cursor) next(req *http.Request) (*Response, error) {
	if c.index >= len(c.chain) {
		return c.handler(req, c.params, c.conn)
	}
	mw := c.chain[c.index]
	c.index++
	return mw(req, c.next, c.conn, c.route)
}
