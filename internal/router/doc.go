// Package router dispatches HTTP requests to handlers through ordered
// middleware chains.
//
// Routes are registered at startup with a method and a path template.
// Templates are "/"-separated segments where ":name" captures one segment
// and a trailing "*" captures the rest of the path:
//
//	r := router.New(router.WithLogger(logger))
//	_ = r.Use(requestID, rateLimit)
//	_, _ = r.Route("GET /users/:id", getUser, authenticate)
//	http.ListenAndServe(":4242", r)
//
// Resolution filters by exact method, then takes the first registered
// route whose pattern matches. The chain for a request is the global
// middlewares followed by the route's own, wrapped around the handler:
// each middleware either returns a response itself or calls next, and
// code after next runs on the way back out.
//
// The route table freezes on the first dispatched request. Registration
// after that fails with ErrRouterFrozen, and lookups take no lock.
package router
