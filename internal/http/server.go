// Package http is the JSON API for the household ledger.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"cozyfin/internal/auth"
	"cozyfin/internal/log"
	"cozyfin/internal/services"
)

// StatusReporter exposes whether the backing store is serving from cache.
type StatusReporter interface {
	Degraded() bool
}

type Server struct {
	http.Server
	svc         *services.LedgerService
	auth        *auth.Service
	status      StatusReporter
	logger      *log.Logger
	rateLimiter *rateLimiter

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server. status may be nil when the store has no degraded mode.
func NewServer(addr string, svc *services.LedgerService, authSvc *auth.Service, status StatusReporter, logger *log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
		},
		svc:         svc,
		auth:        authSvc,
		status:      status,
		logger:      logger.WithComponent(log.ComponentHTTP),
		rateLimiter: newRateLimiter(),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/login", s.handleLogin)

	protect := func(h http.HandlerFunc) http.Handler { return s.auth.Middleware(h) }
	mux.Handle("POST /api/transactions", protect(s.handleCreateTransaction))
	mux.Handle("GET /api/transactions", protect(s.handleListTransactions))
	mux.Handle("DELETE /api/transactions/{id}", protect(s.handleDeleteTransaction))
	mux.Handle("POST /api/transactions/{id}/receipt", protect(s.handleUploadReceipt))
	mux.Handle("GET /api/transactions/{id}/receipt", protect(s.handleGetReceipt))
	mux.Handle("GET /api/summary/combined", protect(s.handleCombinedSummary))
	mux.Handle("GET /api/summary/{user}", protect(s.handleUserSummary))
	mux.Handle("GET /api/goal", protect(s.handleGoal))
	mux.Handle("PUT /api/goal", protect(s.handleUpdateGoal))
	mux.Handle("GET /api/chart/{user}", protect(s.handleChart))
	mux.Handle("GET /api/profiles/{user}", protect(s.handleGetProfile))
	mux.Handle("PUT /api/profiles/{user}", protect(s.handleSaveProfile))
	mux.Handle("POST /api/profiles/{user}/savings-accounts", protect(s.handleAddSavingsAccount))
	mux.Handle("POST /api/profiles/{user}/fixed-expenses", protect(s.handleAddFixedExpense))
	mux.Handle("POST /api/profiles/{user}/debts", protect(s.handleAddDebt))
	mux.Handle("GET /api/export", protect(s.handleExportWorkbook))
	mux.Handle("GET /api/export/{user}", protect(s.handleExportHistory))
	mux.Handle("GET /api/events", protect(s.handleEvents))

	chain := log.Middleware(logger)(
		log.RequestIDMiddleware(requestID)(
			s.withCommon(mux)))
	s.Handler = chain

	return s
}

// withCommon adds security headers, access logging, and per-IP rate limiting
// on mutating requests.
func (s *Server) withCommon(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ip := clientIP(r)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(ip) {
			s.logger.WarnContext(r.Context(), "rate limit exceeded",
				"client_ip", ip, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.logger.InfoContext(r.Context(), "request completed",
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", ip)
	})
}

// Shutdown stops the rate limiter's cleanup goroutine along with the
// listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(b)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleStatus reports whether reads are currently served from the stale
// cache, so the client can show its continue-offline banner.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	degraded := false
	if s.status != nil {
		degraded = s.status.Degraded()
	}
	respondJSON(w, http.StatusOK, map[string]bool{"degraded": degraded})
}
