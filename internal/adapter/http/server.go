// Package http exposes the webhook-receiving edge plus health, readiness,
// and metrics endpoints.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/disaster-mail-ingest/internal/domain"
	"github.com/couchcryptid/disaster-mail-ingest/internal/observability"
	"github.com/couchcryptid/disaster-mail-ingest/internal/verify"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes caps inbound webhook bodies. Alert emails with attachments
// stay well under this.
const maxBodyBytes = 30 << 20

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Enqueuer accepts a job onto the ingestion queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job domain.QueueJob) error
}

// Server handles inbound email webhooks. The handler does only the fast
// path: verify the signature, lift out the email bytes, enqueue, respond.
// Everything slow or fallible beyond that happens in the queue consumer, so
// the provider gets its response within its delivery timeout.
type Server struct {
	httpServer *http.Server
	verifier   *verify.Verifier
	queue      Enqueuer
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewServer creates an HTTP server with the webhook route plus /healthz,
// /readyz, and /metrics.
func NewServer(addr string, verifier *verify.Verifier, queue Enqueuer, ready ReadinessChecker, logger *slog.Logger, metrics *observability.Metrics) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		verifier: verifier,
		queue:    queue,
		logger:   logger,
		metrics:  metrics,
	}

	// Method-qualified patterns make the mux answer 405 for non-POST
	// requests to the webhook path.
	mux.HandleFunc("POST /webhook/gdacs", s.handleWebhook)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	// Capture the exact body bytes before any parse: the SendGrid scheme
	// signs these bytes, and re-deriving them from a parsed form would
	// break verification.
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.respondWebhook(w, "unknown", http.StatusBadRequest, "unreadable body")
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(rawBody))

	req := verify.Classify(r, rawBody)
	provider := string(req.Provider)

	if !s.verifier.Verify(req) {
		s.logger.Warn("webhook signature verification failed",
			"provider", provider, "remote_addr", r.RemoteAddr)
		s.respondWebhook(w, provider, http.StatusForbidden, "signature verification failed")
		return
	}

	payload := emailPayload(r, req)
	if len(payload) == 0 {
		s.respondWebhook(w, provider, http.StatusBadRequest, "missing email content")
		return
	}

	job := domain.QueueJob{
		JobID:      uuid.NewString(),
		Provider:   provider,
		Source:     domain.ParseSource(r.URL.Query().Get("source")),
		EnqueuedAt: time.Now().UTC(),
		Payload:    payload,
	}

	if err := s.queue.Enqueue(r.Context(), job); err != nil {
		// The provider retries on 5xx; acceptance genuinely failed here.
		s.logger.Error("enqueue failed", "job_id", job.JobID, "error", err)
		s.respondWebhook(w, provider, http.StatusInternalServerError, "enqueue failed")
		return
	}

	s.metrics.JobsEnqueued.Inc()
	s.metrics.WebhookRequests.WithLabelValues(provider, "accepted").Inc()
	s.logger.Info("webhook accepted", "job_id", job.JobID, "provider", provider, "source", job.Source)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"jobId":  job.JobID,
	})
}

// emailPayload lifts the raw email bytes out of the request. Mailgun posts
// the MIME message as a form field; SendGrid's scheme signs the raw body,
// which is the message itself.
func emailPayload(r *http.Request, req verify.Request) []byte {
	switch req.Provider {
	case verify.ProviderMailgun:
		// Classify already parsed the form.
		if v := r.FormValue("body-mime"); v != "" {
			return []byte(v)
		}
		if v := r.FormValue("email"); v != "" {
			return []byte(v)
		}
		return nil
	case verify.ProviderSendGrid:
		return bytes.TrimSpace(req.RawBody)
	default:
		return nil
	}
}

func (s *Server) respondWebhook(w http.ResponseWriter, provider string, status int, message string) {
	outcome := "error"
	switch status {
	case http.StatusForbidden:
		outcome = "forbidden"
	case http.StatusBadRequest:
		outcome = "bad_request"
	}
	s.metrics.WebhookRequests.WithLabelValues(provider, outcome).Inc()
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response body
}
