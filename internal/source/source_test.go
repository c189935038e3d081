package source

import (
	"encoding/base64"
	"strings"
	"testing"
)

func b64url(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestDetail_Header(t *testing.T) {
	t.Parallel()

	d := Detail{Headers: []Header{
		{Name: "Subject", Value: "hello"},
		{Name: "To", Value: "a@example.com"},
	}}
	if got := d.Header("subject", "No Subject"); got != "hello" {
		t.Fatalf("got=%q", got)
	}
	if got := d.Header("Date", "Unknown"); got != "Unknown" {
		t.Fatalf("got=%q", got)
	}
}

func TestBody_PrefersPlainText(t *testing.T) {
	t.Parallel()

	d := Detail{Parts: []Part{
		{MIMEType: "text/html", Data: b64url("<p>html body</p>")},
		{MIMEType: "text/plain", Data: b64url("plain body")},
	}}
	if got := Body(d); got != "plain body" {
		t.Fatalf("got=%q", got)
	}
}

func TestBody_FallsBackToCleanedHTML(t *testing.T) {
	t.Parallel()

	d := Detail{Parts: []Part{
		{MIMEType: "text/html", Data: b64url("<p>hello <b>there</b></p>")},
	}}
	if got := Body(d); got != "hello there" {
		t.Fatalf("got=%q", got)
	}
}

func TestBody_TopLevelBody(t *testing.T) {
	t.Parallel()

	d := Detail{Body: Part{MIMEType: "text/plain", Data: b64url("top level")}}
	if got := Body(d); got != "top level" {
		t.Fatalf("got=%q", got)
	}
}

func TestBody_DecodeErrorPlaceholder(t *testing.T) {
	t.Parallel()

	d := Detail{Parts: []Part{{MIMEType: "text/plain", Data: "!!!bad!!!"}}}
	if got := Body(d); got != DecodingErrorPlaceholder {
		t.Fatalf("got=%q", got)
	}
}

func TestBody_RawMessageFallback(t *testing.T) {
	t.Parallel()

	raw := strings.Join([]string{
		"From: me@example.com",
		"To: you@example.com",
		"Subject: raw test",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"raw message body",
		"",
	}, "\r\n")

	d := Detail{Raw: b64url(raw)}
	got := Body(d)
	if !strings.Contains(got, "raw message body") {
		t.Fatalf("got=%q", got)
	}
}

func TestBody_Empty(t *testing.T) {
	t.Parallel()

	if got := Body(Detail{}); got != "" {
		t.Fatalf("got=%q", got)
	}
}
