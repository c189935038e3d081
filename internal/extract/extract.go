// Package extract isolates authored text from quoted, forwarded, and
// signature text in a raw message body.
package extract

import (
	"encoding/base64"
	"html"
	"regexp"
	"strings"
)

// Quote introductions latch the scanner into quote mode for the rest of the
// record: attribution lines, header echoes, quoted lines, forwarded-message
// banners, horizontal rules, and mobile boilerplate.
var quoteRe = regexp.MustCompile(`^(` +
	`On .+ wrote:$` +
	`|>` +
	`|(From|Date|Subject|To): ` +
	`|-+ ?Original Message ?-+` +
	`|-+ ?Forwarded message ?-+` +
	`|_+$` +
	`|Sent from ` +
	`)`)

// Signature openers end the authored portion, but only once at least one
// content line has been kept. A bare "--" on the first line is still content.
var signatureRe = regexp.MustCompile(`(?i)^(` +
	`-{2,}$` +
	`|_{2,}$` +
	`|(regards|best|thanks|thank you|sincerely|cheers),$` +
	`)`)

var deviceSignatureRe = regexp.MustCompile(`(?i)^(sent from my .+|get outlook for .+)$`)

// AuthoredContent scans rawBody line by line and returns only the text the
// sender wrote. Both scanner states are latched: once a quote introduction or
// signature opener is seen, nothing after it is kept. A body with no
// recognizable markers and no kept lines is returned unchanged (fail open); a
// body that is nothing but quoted material yields the empty string.
func AuthoredContent(rawBody string) string {
	if rawBody == "" {
		return ""
	}

	var kept []string
	inQuote := false
	reachedSignature := false

	for _, line := range strings.Split(rawBody, "\n") {
		trimmed := strings.TrimSpace(line)

		if inQuote || reachedSignature {
			continue
		}
		if quoteRe.MatchString(trimmed) {
			inQuote = true
			continue
		}
		if len(kept) > 0 && signatureRe.MatchString(trimmed) {
			reachedSignature = true
			continue
		}
		// Drop blank lines before the first content line.
		if len(kept) == 0 && trimmed == "" {
			continue
		}
		kept = append(kept, line)
	}

	if len(kept) == 0 {
		if inQuote || reachedSignature {
			return ""
		}
		return rawBody
	}
	return stripDeviceSignature(strings.Join(kept, "\n"))
}

// stripDeviceSignature removes trailing device boilerplate lines such as
// "Sent from my iPhone" from the end of the authored content.
func stripDeviceSignature(content string) string {
	lines := strings.Split(strings.TrimRight(content, " \t\n"), "\n")
	for len(lines) > 0 {
		last := strings.TrimSpace(lines[len(lines)-1])
		if last == "" || deviceSignatureRe.MatchString(last) {
			lines = lines[:len(lines)-1]
			continue
		}
		break
	}
	return strings.Join(lines, "\n")
}

// CleanHTML unescapes entities and strips tags from an HTML body part,
// collapsing runs of whitespace.
func CleanHTML(htmlContent string) string {
	if htmlContent == "" {
		return ""
	}
	text := html.UnescapeString(htmlContent)
	text = tagRe.ReplaceAllString(text, " ")
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

var (
	tagRe   = regexp.MustCompile(`<[^>]+>`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// DecodeBody decodes a base64url-encoded message body part. The source pads
// inconsistently, so missing padding is tolerated.
func DecodeBody(data string) (string, bool) {
	if data == "" {
		return "", true
	}
	b, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", false
	}
	return string(b), true
}
