package receipt

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/zombor/receipt-genie/internal/ingest"
	"github.com/zombor/receipt-genie/internal/telemetry"
)

// Ingester runs the ingestion pipeline for one upload
type Ingester interface {
	Ingest(ctx context.Context, state ingest.State, up ingest.Upload) (*ingest.Outcome, ingest.State, error)
}

// Options configures optional server behaviour
type Options struct {
	// AllowRegistration exposes POST /api/register
	AllowRegistration bool
	// Metrics is served on /metrics when set
	Metrics *telemetry.Metrics
}

// Server handles HTTP requests for receipts
type Server struct {
	service  *Service
	pipeline Ingester
	sessions *ingest.Sessions
	opts     Options
	mux      *http.ServeMux
}

type userKey struct{}

// userFromContext returns the authenticated email set by requireAuth
func userFromContext(ctx context.Context) string {
	email, _ := ctx.Value(userKey{}).(string)
	return email
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, pipeline Ingester, opts Options) *Server {
	return NewServerWithMux(service, pipeline, opts, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, pipeline Ingester, opts Options, mux *http.ServeMux) *Server {
	s := &Server{
		service:  service,
		pipeline: pipeline,
		sessions: ingest.NewSessions(),
		opts:     opts,
		mux:      mux,
	}
	s.registerRoutes()
	return s
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth checks basic auth credentials against the user store
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email, password, ok := r.BasicAuth()
		if ok {
			user, err := s.service.Authenticate(email, password)
			if err == nil {
				next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user.Email)))
				return
			}
			if !errors.Is(err, ErrInvalidCredentials) {
				slog.Error("Error authenticating user", "email", email, "error", err)
				corsError(w, "Internal server error", http.StatusInternalServerError)
				return
			}
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="Receipt Genie"`)
		corsError(w, "Unauthorized", http.StatusUnauthorized)
	}
}

// registerRoutes registers all API routes on the server's mux
// Routes must be registered from most specific to least specific to avoid conflicts
func (s *Server) registerRoutes() {
	if s.opts.AllowRegistration {
		s.mux.HandleFunc("POST /api/register", s.handleRegister)
	}

	// Ingestion session
	s.mux.HandleFunc("GET /api/session", s.requireAuth(s.handleGetSession))
	s.mux.HandleFunc("DELETE /api/session", s.requireAuth(s.handleResetSession))

	// API endpoints - receipts (most specific paths first)
	s.mux.HandleFunc("GET /api/receipts/{id}/file", s.requireAuth(s.handleGetReceiptFile))
	s.mux.HandleFunc("GET /api/receipts/{id}/export.csv", s.requireAuth(s.handleExportReceipt))
	s.mux.HandleFunc("GET /api/receipts/{id}", s.requireAuth(s.handleGetReceipt))
	s.mux.HandleFunc("DELETE /api/receipts/{id}", s.requireAuth(s.handleDeleteReceipt))
	s.mux.HandleFunc("GET /api/receipts", s.requireAuth(s.handleListReceipts))
	s.mux.HandleFunc("POST /api/receipts", s.requireAuth(s.handleUploadReceipt))

	// API endpoints - reporting
	s.mux.HandleFunc("GET /api/analytics", s.requireAuth(s.handleAnalytics))
	s.mux.HandleFunc("GET /api/budgets", s.requireAuth(s.handleGetBudgets))
	s.mux.HandleFunc("PUT /api/budgets", s.requireAuth(s.handlePutBudgets))

	if s.opts.Metrics != nil {
		s.mux.Handle("GET /metrics", s.opts.Metrics.Handler())
	}

	// Static HTML interface (register last as it's the catch-all)
	s.mux.HandleFunc("GET /index.html", s.handleIndex)
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
}

// Handler returns the mux wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.mux)
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
