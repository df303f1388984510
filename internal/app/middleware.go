package app

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/grouplan/grouplan/internal/metrics"
	"github.com/grouplan/grouplan/internal/rest"
	"github.com/grouplan/grouplan/pkg/user"
	log "github.com/sirupsen/logrus"
)

// SetupMiddleware wires all HTTP middlewares for the application. Every route is measured;
// only api routes require a user and are rate limited.
func SetupMiddleware(root *mux.Router, api *mux.Router, deps *Dependencies) {
	root.Use(metricsMiddleware(deps.Metrics))
	api.Use(userMiddleware(deps.UserService))
	if deps.RateLimiter != nil {
		api.Use(deps.RateLimiter.Middleware)
	}
}

// userMiddleware propagates the X-User-Id header into the context for downstream services.
// API requests without a known user are rejected.
func userMiddleware(users user.Service) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			userIdHeader := req.Header.Get("X-User-Id")
			if userIdHeader == "" {
				log.Debugf("missing user header on %s", req.URL.Path)
				rest.WriteJSON(w, http.StatusForbidden, rest.ErrorResponse{Error: "permission_denied", Details: "missing X-User-Id header"})
				return
			}

			u, err := users.GetUser(req.Context(), userIdHeader)
			if err != nil {
				if errors.Is(err, user.ErrUserNotFound) {
					log.Debugf("user not found: %s", userIdHeader)
					rest.WriteJSON(w, http.StatusForbidden, rest.ErrorResponse{Error: "permission_denied", Details: "unknown user"})
					return
				}
				log.Errorf("failed to get user: %v", err)
				rest.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, req.WithContext(user.WithUser(req.Context(), u)))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// metricsMiddleware records every request by its route template so path variables do not explode label cardinality.
func metricsMiddleware(collector metrics.MetricsCollector) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, req)

			route := req.URL.Path
			if current := mux.CurrentRoute(req); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			elapsed := time.Since(start)
			collector.RecordRequest(route, req.Method, rec.status, elapsed)
			log.Debugf("%s %s -> %d (%s)", req.Method, route, rec.status, elapsed)
		})
	}
}
