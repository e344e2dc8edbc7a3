package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type chiRouter struct {
	mux chi.Router
}

var _ Router = (*chiRouter)(nil)

// NewChiRouter returns a Router backed by chi. {param} placeholders are
// read back with chi.URLParam.
func NewChiRouter() Router {
	mux := chi.NewRouter()
	// RealIP must run before the rate limiter keys anonymous callers by IP.
	mux.Use(chimw.RealIP, chimw.CleanPath, chimw.StripSlashes)
	return &chiRouter{mux: mux}
}

func (r *chiRouter) GET(path string, h http.HandlerFunc, mws ...Middleware) {
	r.mux.Method(http.MethodGet, path, chain(h, mws))
}

func (r *chiRouter) POST(path string, h http.HandlerFunc, mws ...Middleware) {
	r.mux.Method(http.MethodPost, path, chain(h, mws))
}

func (r *chiRouter) PATCH(path string, h http.HandlerFunc, mws ...Middleware) {
	r.mux.Method(http.MethodPatch, path, chain(h, mws))
}

func (r *chiRouter) DELETE(path string, h http.HandlerFunc, mws ...Middleware) {
	r.mux.Method(http.MethodDelete, path, chain(h, mws))
}

func (r *chiRouter) Group(prefix string, fn func(Router), mws ...Middleware) {
	r.mux.Route(prefix, func(sub chi.Router) {
		for _, mw := range mws {
			sub.Use(mw)
		}
		fn(&chiRouter{mux: sub})
	})
}

func (r *chiRouter) Use(mws ...Middleware) {
	for _, mw := range mws {
		r.mux.Use(mw)
	}
}

func (r *chiRouter) Handler() http.Handler {
	return r.mux
}

func (r *chiRouter) Walk(fn func(method, path string, handler http.Handler) error) error {
	return chi.Walk(r.mux, func(method, route string, handler http.Handler, _ ...func(http.Handler) http.Handler) error {
		// chi registers a catch-all for mounted sub-routers.
		if route == "/*" {
			return nil
		}
		return fn(method, route, handler)
	})
}

// chain wraps h so that mws[0] runs first.
func chain(h http.Handler, mws []Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
