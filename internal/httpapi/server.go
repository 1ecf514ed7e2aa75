// Package httpapi exposes the stock catalog and the auth endpoints over
// HTTP/JSON.
package httpapi

import (
	"context"
	"net/http"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"
	"github.com/rs/cors"
	"github.com/safar/qr-stock/internal/auth"
	"github.com/safar/qr-stock/internal/catalog"
	"github.com/safar/qr-stock/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func init() {
	// Prices go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Verifier turns a bearer token into the caller identity.
type Verifier interface {
	Verify(token string) (models.Identity, error)
}

type Config struct {
	UploadDir      string
	MaxUploadBytes int64
	AllowedOrigins []string
}

type Server struct {
	catalog  *catalog.Service
	auth     *auth.Service
	verifier Verifier
	logger   *zap.Logger
	cfg      Config
	health   func(context.Context) error
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithHealthCheck makes /healthz report the result of check.
func WithHealthCheck(check func(context.Context) error) Option {
	return func(s *Server) { s.health = check }
}

func New(cat *catalog.Service, authSvc *auth.Service, cfg Config, opts ...Option) *Server {
	s := &Server{
		catalog:  cat,
		auth:     authSvc,
		verifier: authSvc,
		logger:   zap.NewNop(),
		cfg:      cfg,
	}
	if s.cfg.MaxUploadBytes <= 0 {
		s.cfg.MaxUploadBytes = 10 << 20
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Routes() http.Handler {
	standard := alice.New(s.recoverPanic, s.logRequest, secureHeaders)
	authed := standard.Append(s.authenticate)

	mux := pat.New()

	mux.Get("/healthz", standard.ThenFunc(s.handleHealth))

	mux.Post("/auth/register", standard.ThenFunc(s.handleRegister))
	mux.Post("/auth/login", standard.ThenFunc(s.handleLogin))

	mux.Post("/stocks/upload", authed.ThenFunc(s.handleUpload))
	mux.Get("/stocks", authed.ThenFunc(s.handleListStock))
	mux.Get("/stocks/:id", authed.ThenFunc(s.handleGetStock))
	mux.Add(http.MethodPatch, "/stocks/:id", authed.ThenFunc(s.handleUpdateStock))
	mux.Del("/stocks/:id", authed.ThenFunc(s.handleDeleteStock))
	mux.Get("/search", authed.ThenFunc(s.handleSearch))

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return c.Handler(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
