// Package api exposes the reminder service over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/lyrebird-dev/chime/internal/repository"
	"github.com/lyrebird-dev/chime/internal/service"
)

// Server is the HTTP API server.
type Server struct {
	reminders   *service.ReminderService
	users       repository.UserRepository
	idempotency repository.IdempotencyRepository
	log         *logrus.Logger
	httpServer  *http.Server
}

// NewServer creates the API server listening on the given port.
func NewServer(port string, reminders *service.ReminderService, users repository.UserRepository, idempotency repository.IdempotencyRepository, registry *prometheus.Registry, log *logrus.Logger) *Server {
	s := &Server{
		reminders:   reminders,
		users:       users,
		idempotency: idempotency,
		log:         log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("POST /api/reminders", s.authenticated(s.handleCreateReminder))
	mux.HandleFunc("GET /api/reminders", s.authenticated(s.handleListReminders))
	mux.HandleFunc("POST /api/reminders/bulk", s.authenticated(s.handleCreateBulk))
	mux.HandleFunc("GET /api/reminders/{id}", s.authenticated(s.handleGetReminder))
	mux.HandleFunc("PUT /api/reminders/{id}", s.authenticated(s.handleUpdateReminder))
	mux.HandleFunc("DELETE /api/reminders/{id}", s.authenticated(s.handleDeleteReminder))
	mux.HandleFunc("POST /api/reminders/{id}/test-trigger", s.authenticated(s.handleTestTrigger))
	mux.HandleFunc("GET /api/reminders/{id}/preview", s.authenticated(s.handlePreview))

	s.httpServer = &http.Server{
		Addr:         ":" + port,
		Handler:      s.logging(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start blocks serving requests until the listener fails or the server is
// shut down.
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("HTTP server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// logging is the outermost middleware.
func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Debug("Request handled")
	})
}
