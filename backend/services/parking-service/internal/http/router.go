package httpserver

import (
	"net/http"

	"parkingops/backend/services/parking-service/internal/http/handlers"
	"parkingops/backend/services/parking-service/internal/http/middleware"
)

// Routes groups handlers.
type Routes struct {
	Sessions            *handlers.SessionsHandler
	Webhook             *handlers.WebhookHandler
	InvalidateSchedules http.HandlerFunc
	Feed                http.HandlerFunc
	Health              http.HandlerFunc
}

// NewRouter registers endpoints. Operator routes go through auth; refunds also need the
// admin role.
func NewRouter(routes Routes, auth func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()

	operator := func(handler http.HandlerFunc) http.Handler {
		return middleware.Chain(handler, auth)
	}
	admin := func(handler http.HandlerFunc) http.Handler {
		return middleware.Chain(handler, auth, middleware.RequireRole(middleware.RoleAdmin))
	}

	if s := routes.Sessions; s != nil {
		mux.Handle("/sessions/check-in", method(http.MethodPost, operator(s.CheckIn)))
		mux.Handle("/sessions/{id}", method(http.MethodGet, operator(s.Get)))
		mux.Handle("/sessions/{id}/check-out", method(http.MethodPost, operator(s.CheckOut)))
		mux.Handle("/sessions/{id}/finish", method(http.MethodPost, operator(s.Finish)))
		mux.Handle("/sessions/{id}/cancel", method(http.MethodPost, operator(s.Cancel)))
		mux.Handle("/sessions/{id}/refund", method(http.MethodPost, admin(s.Refund)))
		mux.Handle("/sessions/{id}/quote", method(http.MethodGet, operator(s.Quote)))
		mux.Handle("/lots/{lotID}/sessions/active", method(http.MethodGet, operator(s.ActiveByPlate)))
	}
	if routes.Webhook != nil {
		mux.Handle("/payments/webhook", method(http.MethodPost, http.HandlerFunc(routes.Webhook.Handle)))
	}
	if routes.InvalidateSchedules != nil {
		mux.Handle("/internal/lots/{lotID}/fee-schedules/invalidate", method(http.MethodPost, operator(routes.InvalidateSchedules)))
	}
	if routes.Feed != nil {
		mux.Handle("/ws/sessions", method(http.MethodGet, routes.Feed))
	}
	if routes.Health != nil {
		mux.Handle("/health", method(http.MethodGet, routes.Health))
	}
	return mux
}

func method(expected string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
