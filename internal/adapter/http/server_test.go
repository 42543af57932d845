package http_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	httpadapter "github.com/couchcryptid/disaster-mail-ingest/internal/adapter/http"
	"github.com/couchcryptid/disaster-mail-ingest/internal/domain"
	"github.com/couchcryptid/disaster-mail-ingest/internal/observability"
	"github.com/couchcryptid/disaster-mail-ingest/internal/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "key-mailgun-test"

// --- mocks ---

type mockEnqueuer struct {
	jobs []domain.QueueJob
	err  error
}

func (m *mockEnqueuer) Enqueue(_ context.Context, job domain.QueueJob) error {
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job)
	return nil
}

type readyStub struct{ err error }

func (r *readyStub) CheckReadiness(context.Context) error { return r.err }

func newTestServer(t *testing.T, queue *mockEnqueuer, ready *readyStub) (*httpadapter.Server, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	verifier, err := verify.NewVerifier(testSigningKey, base64.StdEncoding.EncodeToString(pub))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httpadapter.NewServer(":0", verifier, queue, ready, logger, observability.NewMetricsForTesting())
	return srv, priv
}

func mailgunSignature(timestamp, token string) string {
	mac := hmac.New(sha256.New, []byte(testSigningKey))
	mac.Write([]byte(timestamp + token))
	return hex.EncodeToString(mac.Sum(nil))
}

// mailgunForm builds a multipart form the way Mailgun posts inbound email.
func mailgunForm(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

const rawEmail = "From: alerts@gdacs.org\r\nContent-Type: text/plain\r\n\r\n{\"eventId\":\"e1\",\"latitude\":10,\"longitude\":20,\"magnitude\":5}"

// --- tests ---

func TestWebhook_MailgunAccepted(t *testing.T) {
	queue := &mockEnqueuer{}
	srv, _ := newTestServer(t, queue, &readyStub{})

	body, contentType := mailgunForm(t, map[string]string{
		"timestamp": "1",
		"token":     "abc",
		"signature": mailgunSignature("1", "abc"),
		"body-mime": rawEmail,
	})

	req := httptest.NewRequest(http.MethodPost, "/webhook/gdacs?source=GDACS", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "accepted", resp["status"])
	assert.NotEmpty(t, resp["jobId"])

	require.Len(t, queue.jobs, 1)
	job := queue.jobs[0]
	assert.Equal(t, resp["jobId"], job.JobID)
	assert.Equal(t, "mailgun", job.Provider)
	assert.Equal(t, domain.SourceGDACS, job.Source)
	assert.Equal(t, 0, job.Attempts)
	assert.Equal(t, rawEmail, string(job.Payload))
	assert.False(t, job.EnqueuedAt.IsZero())
}

func TestWebhook_MailgunBadSignature(t *testing.T) {
	queue := &mockEnqueuer{}
	srv, _ := newTestServer(t, queue, &readyStub{})

	form := url.Values{
		"timestamp": {"1"},
		"token":     {"abc"},
		"signature": {mailgunSignature("2", "abc")}, // signed over different timestamp
		"body-mime": {rawEmail},
	}
	req := httptest.NewRequest(http.MethodPost, "/webhook/gdacs", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, queue.jobs, "rejected requests are never enqueued")
}

func TestWebhook_MailgunMissingEmailContent(t *testing.T) {
	queue := &mockEnqueuer{}
	srv, _ := newTestServer(t, queue, &readyStub{})

	form := url.Values{
		"timestamp": {"1"},
		"token":     {"abc"},
		"signature": {mailgunSignature("1", "abc")},
	}
	req := httptest.NewRequest(http.MethodPost, "/webhook/gdacs", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, queue.jobs)
}

func TestWebhook_SendGridAccepted(t *testing.T) {
	queue := &mockEnqueuer{}
	srv, priv := newTestServer(t, queue, &readyStub{})

	timestamp := "1714140600"
	nonce := "n-1"
	message := []byte(timestamp + nonce + rawEmail)
	signature := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, message))

	req := httptest.NewRequest(http.MethodPost, "/webhook/gdacs?source=USGS", strings.NewReader(rawEmail))
	req.Header.Set(verify.HeaderSignature, signature)
	req.Header.Set(verify.HeaderTimestamp, timestamp)
	req.Header.Set(verify.HeaderNonce, nonce)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "sendgrid", queue.jobs[0].Provider)
	assert.Equal(t, domain.SourceUSGS, queue.jobs[0].Source)
	assert.Equal(t, rawEmail, string(queue.jobs[0].Payload))
}

func TestWebhook_SendGridMutatedBodyRejected(t *testing.T) {
	queue := &mockEnqueuer{}
	srv, priv := newTestServer(t, queue, &readyStub{})

	timestamp := "1714140600"
	nonce := "n-1"
	message := []byte(timestamp + nonce + rawEmail)
	signature := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, message))

	// Body differs from the signed bytes by one character.
	req := httptest.NewRequest(http.MethodPost, "/webhook/gdacs", strings.NewReader(rawEmail+"x"))
	req.Header.Set(verify.HeaderSignature, signature)
	req.Header.Set(verify.HeaderTimestamp, timestamp)
	req.Header.Set(verify.HeaderNonce, nonce)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, queue.jobs)
}

func TestWebhook_UnrecognizedRequestRejected(t *testing.T) {
	queue := &mockEnqueuer{}
	srv, _ := newTestServer(t, queue, &readyStub{})

	req := httptest.NewRequest(http.MethodPost, "/webhook/gdacs", strings.NewReader(`{"eventId":"e1"}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, &mockEnqueuer{}, &readyStub{})

	req := httptest.NewRequest(http.MethodGet, "/webhook/gdacs", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWebhook_EnqueueFailure(t *testing.T) {
	queue := &mockEnqueuer{err: errors.New("broker down")}
	srv, _ := newTestServer(t, queue, &readyStub{})

	body, contentType := mailgunForm(t, map[string]string{
		"timestamp": "1",
		"token":     "abc",
		"signature": mailgunSignature("1", "abc"),
		"body-mime": rawEmail,
	})

	req := httptest.NewRequest(http.MethodPost, "/webhook/gdacs", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	// Generic message only, no internals.
	assert.NotContains(t, rec.Body.String(), "broker down")
}

func TestHealthAndReadiness(t *testing.T) {
	ready := &readyStub{err: errors.New("no jobs processed")}
	srv, _ := newTestServer(t, &mockEnqueuer{}, ready)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready.err = nil
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
