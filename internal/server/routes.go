package server

import (
	"net/http"

	"github.com/dgellow/identity-bot/internal/auth"
	"github.com/dgellow/identity-bot/internal/metrics"
)

// Routes collects what the HTTP surface needs
type Routes struct {
	Auth           *auth.Service
	Messages       *MessagesHandler
	Metrics        *metrics.Metrics
	RateLimiter    *RateLimiter
	AllowedOrigins []string
	// Realm names the bot in WWW-Authenticate challenges
	Realm string
}

// Handler builds the mux with per-route middleware, wrapped in request
// logging and panic recovery
func (rt Routes) Handler() http.Handler {
	mux := http.NewServeMux()
	authHandlers := NewAuthHandlers(rt.Auth)
	limit := rt.RateLimiter.Middleware()
	cors := NewCORSMiddleware(rt.AllowedOrigins)

	mux.Handle("GET /auth/{provider}/callback", ChainMiddleware(http.HandlerFunc(authHandlers.CallbackHandler), limit))
	mux.Handle("GET /auth/start", ChainMiddleware(http.HandlerFunc(authHandlers.StartHandler), limit))

	mux.Handle("POST /api/messages", ChainMiddleware(rt.Messages, cors))
	mux.Handle("GET /api/decodeIdToken", ChainMiddleware(DecodeIDTokenHandler(rt.Realm), cors))
	mux.Handle("OPTIONS /api/", ChainMiddleware(http.NotFoundHandler(), cors))

	mux.HandleFunc("GET /ping", PingHandler)
	mux.Handle("GET /health", NewHealthHandler())
	mux.Handle("GET /metrics", rt.Metrics.Handler())

	return ChainMiddleware(mux,
		NewLoggerMiddleware("http", rt.Metrics),
		NewRecoverMiddleware("http"),
	)
}
