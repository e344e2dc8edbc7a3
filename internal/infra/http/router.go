package http

import (
	"net/http"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Router is the routing surface the route tables are written against.
// Per-route middleware runs in order, the first one outermost, so a guard
// listed after the rate limiter only sees requests the limiter let through:
//
//	r.POST("/authz/check", h.Check, limit, guard)
type Router interface {
	GET(path string, handler http.HandlerFunc, middlewares ...Middleware)
	POST(path string, handler http.HandlerFunc, middlewares ...Middleware)
	PATCH(path string, handler http.HandlerFunc, middlewares ...Middleware)
	DELETE(path string, handler http.HandlerFunc, middlewares ...Middleware)

	// Group mounts routes under prefix; its middleware wraps all of them.
	Group(prefix string, fn func(Router), middlewares ...Middleware)

	// Use installs global middleware. Call it before registering routes.
	Use(middlewares ...Middleware)

	Handler() http.Handler

	// Walk visits every registered route.
	Walk(fn func(method, path string, handler http.Handler) error) error
}
