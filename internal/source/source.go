// Package source is the boundary to the external record source: a paginated
// list-by-query of opaque ids plus a get-by-id returning headers and
// base64url-encoded MIME part bodies.
package source

import (
	"context"
	"strings"

	"github.com/mailsense/voicepack/internal/extract"
)

// Page is one page of record identifiers.
type Page struct {
	IDs       []string
	NextToken string
}

// Source lists and fetches records. Implementations wrap the real provider;
// tests script one.
type Source interface {
	// ListIDs returns up to maxResults ids matching query, starting at
	// pageToken ("" for the first page). An empty NextToken means the
	// source is exhausted.
	ListIDs(ctx context.Context, query, pageToken string, maxResults int) (Page, error)

	// Get fetches the full detail for one id.
	Get(ctx context.Context, id string) (Detail, error)
}

// Header is one name/value header pair.
type Header struct {
	Name  string
	Value string
}

// Part is one MIME body part; Data is base64url-encoded.
type Part struct {
	MIMEType string
	Data     string
}

// Detail is the structured form of one record as returned by the source.
// Raw, when set, is the base64url-encoded RFC 5322 message and is used as a
// fallback when no structured parts are present.
type Detail struct {
	ID      string
	Headers []Header
	Parts   []Part
	Body    Part
	Raw     string
}

// Header returns the first header with the given name (case-insensitive),
// or fallback when absent.
func (d Detail) Header(name, fallback string) string {
	for _, h := range d.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return fallback
}

// DecodingErrorPlaceholder stands in for a body that could not be decoded.
// The record is still ingested so the failure is visible in the corpus.
const DecodingErrorPlaceholder = "[Body decoding error]"

// Body selects and decodes the best body for a record: the first text/plain
// part, else the first text/html part (tags stripped), else the top-level
// body, else the raw message parsed as RFC 5322.
func Body(d Detail) string {
	var htmlBody string
	for _, p := range d.Parts {
		switch p.MIMEType {
		case "text/plain":
			return decodeOrPlaceholder(p.Data)
		case "text/html":
			if htmlBody == "" {
				htmlBody = p.Data
			}
		}
	}
	if htmlBody != "" {
		return extract.CleanHTML(decodeOrPlaceholder(htmlBody))
	}
	if d.Body.Data != "" {
		return decodeOrPlaceholder(d.Body.Data)
	}
	if d.Raw != "" {
		decoded, ok := extract.DecodeBody(d.Raw)
		if !ok {
			return DecodingErrorPlaceholder
		}
		return bodyFromRawMessage(decoded)
	}
	return ""
}

func decodeOrPlaceholder(data string) string {
	if data == "" {
		return ""
	}
	decoded, ok := extract.DecodeBody(data)
	if !ok {
		return DecodingErrorPlaceholder
	}
	return decoded
}
