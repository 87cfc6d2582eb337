package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/daslan/birdwatch/internal/domain"
	"github.com/daslan/birdwatch/internal/hub"
)

const (
	defaultTweetLimit = 200
	maxTweetLimit     = 200
)

// Server serves the read API used for initial front-end hydration and the
// websocket endpoint clients subscribe to afterwards.
type Server struct {
	posts      domain.PostRepository
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates the HTTP server on the given port.
func NewServer(port int, posts domain.PostRepository, wsHub *hub.Hub, logger *slog.Logger) *Server {
	s := &Server{
		posts:  posts,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tweets", s.handleListTweets)
	mux.HandleFunc("GET /ws", wsHub.ServeWS)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      withLogging(logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListTweets returns the most recent stored posts, newest first.
func (s *Server) handleListTweets(w http.ResponseWriter, r *http.Request) {
	limit := defaultTweetLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > maxTweetLimit {
			writeError(w, http.StatusBadRequest, "InvalidRequest",
				fmt.Sprintf("limit must be between 1 and %d", maxTweetLimit))
			return
		}
		limit = parsed
	}

	posts, err := s.posts.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list recent posts", "limit", limit, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to fetch tweets")
		return
	}
	if posts == nil {
		posts = []domain.Post{}
	}

	writeJSON(w, http.StatusOK, posts)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade reach the underlying connection through
// the logging wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}
