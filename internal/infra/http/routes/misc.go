package routes

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openctemio/authz/internal/infra/http/handler"
)

// registerHealthRoutes registers health check endpoints.
func registerHealthRoutes(router Router, h *handler.HealthHandler) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})
}

// registerAuthzRoutes registers the authorization queries. They need an
// authenticated caller only.
func registerAuthzRoutes(r Router, h *handler.AuthzHandler, checkLimit Middleware) {
	var mws []Middleware
	if checkLimit != nil {
		mws = append(mws, checkLimit)
	}
	r.POST("/authz/check", h.Check, mws...)
	r.GET("/me/permissions", h.MyPermissions)
}
