package pipeline

import (
	"bytes"
	"strings"

	"github.com/couchcryptid/disaster-mail-ingest/internal/domain"
	"github.com/couchcryptid/disaster-mail-ingest/internal/mailparse"
)

// selectContent picks the alert document out of a job's payload. The payload
// is usually raw MIME: a structured attachment (the feeds attach their alert
// as JSON or XML) beats the message body text. Payloads that are not MIME at
// all pass through as-is, since some providers post the alert document directly.
func selectContent(job domain.QueueJob) []byte {
	extraction := mailparse.Extract(job.Payload)
	if extraction.Empty() {
		return bytes.TrimSpace(job.Payload)
	}

	if att := pickAlertAttachment(extraction.Attachments); att != nil {
		return att.Data
	}

	for _, part := range extraction.TextParts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			return []byte(trimmed)
		}
	}

	if len(extraction.Attachments) > 0 {
		return extraction.Attachments[0].Data
	}
	return nil
}

// pickAlertAttachment returns the first attachment that looks like a
// structured alert document.
func pickAlertAttachment(attachments []mailparse.Attachment) *mailparse.Attachment {
	for i := range attachments {
		att := &attachments[i]
		switch att.ContentType {
		case "application/json", "application/xml", "text/xml", "application/geo+json", "application/rss+xml":
			return att
		}
		if strings.HasSuffix(att.Filename, ".json") || strings.HasSuffix(att.Filename, ".xml") {
			return att
		}
	}
	return nil
}
