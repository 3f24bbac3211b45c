// Package web serves the admin HTTP API: CRUD over clips and phrases,
// coordinated with the clip files on disk.
package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hecklerbot/heckler/internal/config"
	"github.com/hecklerbot/heckler/internal/observe"
	"github.com/hecklerbot/heckler/internal/store"
)

// maxUploadBytes caps multipart clip uploads.
const maxUploadBytes = 50 << 20

// shutdownGrace is how long in-flight requests get to finish.
const shutdownGrace = 15 * time.Second

// StatusFunc reports the database server version and the number of
// open pool connections. A non-nil error means the backend cannot be
// reached and the status endpoint answers 503.
type StatusFunc func(ctx context.Context) (version string, connections int, err error)

// Server is the admin API. Build one with [New], then mount
// [Server.Handler].
type Server struct {
	store    store.Store
	dataDir  string
	user     string
	password string
	status   StatusFunc
	metrics  *observe.Metrics
}

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithStatusFunc supplies the backend probe for the status endpoint.
func WithStatusFunc(fn StatusFunc) Option {
	return func(s *Server) { s.status = fn }
}

// WithMetrics wraps every route in the observability middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New returns a [Server] over st. user and password form the single
// credential required on every route except the status and metrics
// endpoints.
func New(st store.Store, dataDir, user, password string, opts ...Option) *Server {
	s := &Server{
		store:    st,
		dataDir:  dataDir,
		user:     user,
		password: password,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	authed := http.NewServeMux()
	authed.HandleFunc("GET /v1/clips/{$}", s.listClips)
	authed.HandleFunc("POST /v1/clips/{$}", s.createClip)
	authed.HandleFunc("GET /v1/clips/{id}/{$}", s.getClip)
	authed.HandleFunc("PUT /v1/clips/{id}/{$}", s.updateClip)
	authed.HandleFunc("DELETE /v1/clips/{id}/{$}", s.deleteClip)
	authed.HandleFunc("GET /v1/clips/{id}/audio", s.clipAudio)
	authed.HandleFunc("GET /v1/phrases/{$}", s.listPhrases)
	authed.HandleFunc("POST /v1/phrases/{$}", s.createPhrase)
	authed.HandleFunc("GET /v1/phrases/{id}/{$}", s.getPhrase)
	authed.HandleFunc("DELETE /v1/phrases/{id}/{$}", s.deletePhrase)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status/{$}", s.statusHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/", s.basicAuth(authed))

	if s.metrics != nil {
		return observe.Middleware(s.metrics)(mux)
	}
	return mux
}

// basicAuth enforces the configured credential pair with constant-time
// comparison. The Authorization header is sensitive and never logged.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, password, ok := r.BasicAuth()
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.user)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1
		if !ok || !userOK || !passOK {
			w.Header().Set("WWW-Authenticate", `Basic realm="heckler"`)
			writeJSON(w, http.StatusUnauthorized, errorBody("authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe runs handler on the address from cfg until ctx is
// cancelled, then shuts down with a grace period. TLS is enabled when
// both certificate and key paths are configured.
func ListenAndServe(ctx context.Context, cfg config.HTTPAPIConfig, handler http.Handler) error {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return fmt.Errorf("web: parse listen URL %q: %w", cfg.URL, err)
	}

	srv := &http.Server{
		Addr:              u.Host,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("admin API listening", "addr", srv.Addr, "tls", cfg.TLSCertificate != "")
		if cfg.TLSCertificate != "" {
			errCh <- srv.ListenAndServeTLS(cfg.TLSCertificate, cfg.TLSKey)
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web: shutdown: %w", err)
	}
	return nil
}

// errBadRequest marks client errors that map to 400.
var errBadRequest = errors.New("bad request")
