// Package devserver is an in-memory stand-in for a Mailpit server. It
// serves the list, search, mutation and event endpoints the viewer uses,
// for tests and local development.
package devserver

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/wesm/pitwatch/internal/remote"
)

// DefaultVersion is reported by /api/v1/info and stats notifications.
const DefaultVersion = "v1.21.0"

// Config configures a Server.
type Config struct {
	Username string
	Password string
	Version  string
	// MaxMessages prunes the oldest messages beyond this count; zero
	// disables pruning.
	MaxMessages int
	// StatsPerSecond throttles stats notifications. Zero means 4.
	StatsPerSecond float64
	Logger         *slog.Logger
}

// Server is the development server.
type Server struct {
	cfg    Config
	store  *Store
	hub    *hub
	logger *slog.Logger
	router chi.Router
	server *http.Server

	// closing ends event stream subscriptions on Shutdown.
	closing context.Context
	close   context.CancelFunc

	// mu orders mutations with their notifications.
	mu sync.Mutex

	statsMu      sync.Mutex
	statsLimiter *rate.Limiter
	statsPending bool
}

// New creates a server with an empty mailbox.
func New(cfg Config) *Server {
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.StatsPerSecond <= 0 {
		cfg.StatsPerSecond = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		cfg:          cfg,
		store:        NewStore(cfg.MaxMessages),
		hub:          newHub(cfg.Logger),
		logger:       cfg.Logger,
		statsLimiter: rate.NewLimiter(rate.Limit(cfg.StatsPerSecond), 1),
	}
	s.closing, s.close = context.WithCancel(context.Background())
	s.router = s.setupRouter()
	return s
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(s.authMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/messages", s.handleList)
		r.Put("/messages", s.handleSetRead)
		r.Delete("/messages", s.handleDelete)
		r.Get("/search", s.handleSearch)
		r.Put("/tags", s.handleSetTags)
		r.Get("/message/{id}/raw", s.handleRaw)
		r.Get("/info", s.handleInfo)
	})
	r.Get("/api/events", s.handleEvents)
	return r
}

// Handler returns the HTTP handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Store returns the mailbox. Mutating it directly does not notify
// subscribers; use the Server methods for that.
func (s *Server) Store() *Store {
	return s.store
}

// Subscribers returns the number of connected event stream clients.
func (s *Server) Subscribers() int {
	return s.hub.count()
}

// ListenAndServe serves on addr until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.logger.Info("starting development server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown disconnects event stream subscribers and gracefully shuts down
// the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.close()
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down development server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// authMiddleware enforces basic auth when credentials are configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Username == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.Username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(s.cfg.Password)) != 1 {
			s.logger.Warn("unauthorized request", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Basic realm="Mailpit"`)
			http.Error(w, "Unauthorised.", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AddMessage stores raw as a new message and notifies subscribers.
func (s *Server) AddMessage(raw []byte) (remote.MessageSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary, pruned, err := s.store.Add(raw)
	if err != nil {
		return remote.MessageSummary{}, err
	}
	s.hub.broadcast(remote.Notification{Type: remote.NotifyNew, Data: summary})
	if pruned {
		s.hub.broadcast(remote.Notification{Type: remote.NotifyPrune})
	}
	s.broadcastStats()
	return summary, nil
}

// DeleteMessages deletes the given messages, or every message when ids is
// empty, and notifies subscribers.
func (s *Server) DeleteMessages(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ids) == 0 {
		if s.store.DeleteAll() > 0 {
			s.hub.broadcast(remote.Notification{Type: remote.NotifyPrune})
			s.broadcastStats()
		}
		return
	}
	deleted := s.store.Delete(ids)
	for _, id := range deleted {
		s.hub.broadcast(remote.Notification{Type: remote.NotifyDelete, Data: remote.DeleteData{ID: id}})
	}
	if len(deleted) > 0 {
		s.broadcastStats()
	}
}

// SetTags replaces the tags of the given messages and notifies
// subscribers of each change.
func (s *Server) SetTags(ids, tags []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := s.store.SetTags(ids, tags)
	for _, id := range changed {
		s.hub.broadcast(remote.Notification{
			Type: remote.NotifyUpdate,
			Data: remote.UpdateData{ID: id, Tags: normalizeTags(tags)},
		})
	}
}

// SetRead updates read flags (see Store.SetRead) and notifies subscribers
// of the new counts.
func (s *Server) SetRead(ids []string, search string, read bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store.SetRead(ids, search, read) > 0 {
		s.broadcastStats()
	}
}

// broadcastStats sends a stats notification, at most StatsPerSecond
// times a second. A throttled notification is sent late with the counts
// current at that time.
func (s *Server) broadcastStats() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if s.statsPending {
		return
	}
	delay := s.statsLimiter.Reserve().Delay()
	if delay == 0 {
		s.hub.broadcast(s.stats())
		return
	}
	s.statsPending = true
	time.AfterFunc(delay, func() {
		s.statsMu.Lock()
		s.statsPending = false
		s.statsMu.Unlock()
		s.hub.broadcast(s.stats())
	})
}

func (s *Server) stats() remote.Notification {
	total, unread := s.store.Counts()
	return remote.Notification{
		Type: remote.NotifyStats,
		Data: remote.StatsData{Total: float64(total), Unread: float64(unread), Version: s.cfg.Version},
	}
}
