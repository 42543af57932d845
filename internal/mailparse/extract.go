// Package mailparse decomposes raw MIME email bytes into text body parts
// and attachments.
package mailparse

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
)

// defaultFilename names attachments whose disposition carries no filename.
const defaultFilename = "attachment"

// maxPartBytes bounds how much of a single part is decoded, protecting the
// pipeline from pathological messages.
const maxPartBytes = 25 << 20

// Attachment is a decoded attachment-disposition leaf part.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Extraction is the flattened content of a MIME tree: decoded text bodies in
// document order and all attachments.
type Extraction struct {
	TextParts   []string
	Attachments []Attachment
}

// Empty reports whether extraction found no content at all.
func (e Extraction) Empty() bool {
	return len(e.TextParts) == 0 && len(e.Attachments) == 0
}

// Extract parses raw email bytes and walks the MIME tree, collecting leaf
// text/* parts and attachments. Container parts are recursed into, never
// treated as content. Malformed input yields an empty Extraction rather than
// an error: extraction is a pure function of the bytes and the same input
// always produces the same output.
func Extract(raw []byte) Extraction {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return Extraction{}
	}

	var out Extraction
	walkPart(textproto.MIMEHeader(msg.Header), msg.Body, &out)
	return out
}

// walkPart handles one node of the MIME tree: multipart containers recurse
// into their children, leaves are decoded and classified.
func walkPart(header textproto.MIMEHeader, body io.Reader, out *Extraction) {
	contentType := header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return
		}
		reader := multipart.NewReader(body, boundary)
		for {
			part, err := reader.NextPart()
			if err != nil {
				return
			}
			walkPart(part.Header, part, out)
		}
	}

	data, err := decodeBody(body, header.Get("Content-Transfer-Encoding"))
	if err != nil {
		return
	}

	disposition, dparams, _ := mime.ParseMediaType(header.Get("Content-Disposition"))
	if disposition == "attachment" {
		filename := dparams["filename"]
		if filename == "" {
			filename = defaultFilename
		}
		out.Attachments = append(out.Attachments, Attachment{
			Filename:    filename,
			ContentType: mediaType,
			Data:        data,
		})
		return
	}

	// A blank text leaf is not content. This also covers non-mail input
	// that net/mail tolerates, like a single JSON line whose "key": "value"
	// pairs scan as one header with an empty body; without real parts the
	// extraction stays empty and callers treat the input as not-mail.
	if strings.HasPrefix(mediaType, "text/") && strings.TrimSpace(string(data)) != "" {
		out.TextParts = append(out.TextParts, string(data))
	}
}

// decodeBody reads a leaf body honoring its content-transfer-encoding.
// 7bit, 8bit, and binary bodies pass through untouched.
func decodeBody(body io.Reader, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		body = base64.NewDecoder(base64.StdEncoding, body)
	case "quoted-printable":
		body = quotedprintable.NewReader(body)
	}
	return io.ReadAll(io.LimitReader(body, maxPartBytes))
}
