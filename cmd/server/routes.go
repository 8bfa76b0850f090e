package main

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/darsh8000an/study-buddy-matcher/internal/handlers"
	"github.com/darsh8000an/study-buddy-matcher/internal/middleware"
)

type routes struct {
	health   *handlers.HealthHandler
	matches  *handlers.MatchHandler
	profiles *handlers.ProfileHandler
	socket   http.Handler

	auth          *middleware.AuthMiddleware
	requestLimit  *middleware.RateLimiter
	security      *middleware.SecurityHeaders
	requestLogger *middleware.RequestLogger
	corsOrigins   []string
}

func newRouter(rt routes) http.Handler {
	requireAuth := rt.auth.RequireAuth

	mux := http.NewServeMux()

	// Health endpoints (no auth)
	mux.HandleFunc("GET /health", rt.health.Health)
	mux.HandleFunc("GET /ready", rt.health.Ready)
	mux.HandleFunc("GET /live", rt.health.Live)

	// Match endpoints
	mux.Handle("GET /api/matches/suggestions", requireAuth(http.HandlerFunc(rt.matches.Suggestions)))
	mux.Handle("GET /api/matches", requireAuth(http.HandlerFunc(rt.matches.List)))
	mux.Handle("POST /api/matches/requests", requireAuth(rt.requestLimit.Limit(http.HandlerFunc(rt.matches.SendRequest))))
	mux.Handle("PUT /api/matches/{id}/accept", requireAuth(http.HandlerFunc(rt.matches.Accept)))
	mux.Handle("PUT /api/matches/{id}/decline", requireAuth(http.HandlerFunc(rt.matches.Decline)))

	// Profile endpoints
	mux.Handle("GET /api/users", requireAuth(http.HandlerFunc(rt.profiles.List)))
	mux.Handle("GET /api/users/search", requireAuth(http.HandlerFunc(rt.profiles.SearchText)))
	mux.Handle("GET /api/users/me", requireAuth(http.HandlerFunc(rt.profiles.Me)))
	mux.Handle("PUT /api/users/me", requireAuth(http.HandlerFunc(rt.profiles.UpdateMe)))
	mux.Handle("DELETE /api/users/me", requireAuth(http.HandlerFunc(rt.profiles.DeleteMe)))
	mux.Handle("GET /api/users/{id}", requireAuth(http.HandlerFunc(rt.profiles.Get)))

	// Socket transport authenticates with ?token= on connect.
	if rt.socket != nil {
		mux.Handle("/socket.io/", rt.socket)
	}

	// Build middleware chain (order matters: outermost first)
	var handler http.Handler = mux
	handler = rt.requestLogger.Apply(handler)
	handler = rt.auth.Authenticate(handler)
	handler = rt.security.Apply(handler)
	handler = cors.New(cors.Options{
		AllowedOrigins:   rt.corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(handler)

	return handler
}
