// Package verify authenticates inbound email webhooks against the claimed
// provider's signature scheme.
package verify

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// SendGrid-style signed-webhook headers. The signed message is
// timestamp || nonce || raw body, with the body being the exact bytes the
// provider sent, captured before any body-consuming parse.
const (
	HeaderSignature = "X-Email-Signature"
	HeaderTimestamp = "X-Email-Timestamp"
	HeaderNonce     = "X-Email-Nonce"
)

// Provider tags which signature scheme a request claims.
type Provider string

const (
	ProviderMailgun  Provider = "mailgun"
	ProviderSendGrid Provider = "sendgrid"
	ProviderUnknown  Provider = "unknown"
)

// Request is the provider-tagged verification material pulled off an inbound
// webhook. Exactly one scheme's fields are populated.
type Request struct {
	Provider Provider

	// Mailgun form fields.
	Timestamp string
	Token     string
	Signature string

	// SendGrid headers plus the exact raw body bytes that were signed.
	SGSignature string
	SGTimestamp string
	SGNonce     string
	RawBody     []byte
}

// Classify inspects a request and selects the signature scheme by field
// presence: SendGrid headers win, then Mailgun form fields. A request
// matching neither is ProviderUnknown and can never verify.
//
// The caller must have restored r.Body after capturing rawBody, since
// Mailgun classification parses the form.
func Classify(r *http.Request, rawBody []byte) Request {
	if r.Header.Get(HeaderSignature) != "" {
		return Request{
			Provider:    ProviderSendGrid,
			SGSignature: r.Header.Get(HeaderSignature),
			SGTimestamp: r.Header.Get(HeaderTimestamp),
			SGNonce:     r.Header.Get(HeaderNonce),
			RawBody:     rawBody,
		}
	}

	// ParseMultipartForm falls back to ParseForm for urlencoded bodies.
	// Errors are deliberately ignored: an unparseable form simply has no
	// Mailgun fields and classifies as unknown.
	_ = r.ParseMultipartForm(32 << 20)

	if r.FormValue("signature") != "" || r.FormValue("token") != "" || r.FormValue("timestamp") != "" {
		return Request{
			Provider:  ProviderMailgun,
			Timestamp: r.FormValue("timestamp"),
			Token:     r.FormValue("token"),
			Signature: r.FormValue("signature"),
		}
	}

	return Request{Provider: ProviderUnknown}
}

// Verifier checks webhook signatures. Keys are pre-shared per provider; a
// provider with no configured key never verifies.
type Verifier struct {
	mailgunSigningKey []byte
	sendgridPublicKey ed25519.PublicKey
}

// NewVerifier builds a Verifier from the configured secrets. The SendGrid
// public key is base64-encoded; an empty string disables that provider.
func NewVerifier(mailgunSigningKey, sendgridPublicKeyB64 string) (*Verifier, error) {
	v := &Verifier{}
	if mailgunSigningKey != "" {
		v.mailgunSigningKey = []byte(mailgunSigningKey)
	}
	if sendgridPublicKeyB64 != "" {
		key, err := base64.StdEncoding.DecodeString(sendgridPublicKeyB64)
		if err != nil {
			return nil, fmt.Errorf("decode sendgrid public key: %w", err)
		}
		if len(key) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("sendgrid public key: got %d bytes, want %d", len(key), ed25519.PublicKeySize)
		}
		v.sendgridPublicKey = key
	}
	return v, nil
}

// Verify reports whether the request's signature is authentic. It fails
// closed: missing fields, missing keys, and unknown providers all return
// false, never an error.
func (v *Verifier) Verify(req Request) bool {
	switch req.Provider {
	case ProviderMailgun:
		return v.verifyMailgun(req.Timestamp, req.Token, req.Signature)
	case ProviderSendGrid:
		return v.verifySendGrid(req.SGSignature, req.SGTimestamp, req.SGNonce, req.RawBody)
	default:
		return false
	}
}

// verifyMailgun checks HMAC-SHA256 over timestamp || token against the
// lowercase hex digest in the signature field.
func (v *Verifier) verifyMailgun(timestamp, token, signature string) bool {
	if len(v.mailgunSigningKey) == 0 || timestamp == "" || token == "" || signature == "" {
		return false
	}

	provided, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, v.mailgunSigningKey)
	mac.Write([]byte(timestamp + token))
	return hmac.Equal(provided, mac.Sum(nil))
}

// verifySendGrid checks an Ed25519 signature over timestamp || nonce || body.
func (v *Verifier) verifySendGrid(signature, timestamp, nonce string, body []byte) bool {
	if len(v.sendgridPublicKey) == 0 || signature == "" || timestamp == "" || nonce == "" {
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}

	message := make([]byte, 0, len(timestamp)+len(nonce)+len(body))
	message = append(message, timestamp...)
	message = append(message, nonce...)
	message = append(message, body...)

	return ed25519.Verify(v.sendgridPublicKey, message, sig)
}
