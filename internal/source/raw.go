package source

import (
	"errors"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/mailsense/voicepack/internal/extract"
)

// bodyFromRawMessage parses a decoded RFC 5322 message and extracts the best
// text body: first text/plain inline part, else first text/html part with
// tags stripped. Parse failures fall back to the decoding placeholder rather
// than dropping the record.
func bodyFromRawMessage(raw string) string {
	mr, err := mail.CreateReader(strings.NewReader(raw))
	if err != nil {
		return DecodingErrorPlaceholder
	}

	var htmlBody string
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A malformed part does not invalidate parts already seen.
			break
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ctype, _, err := h.ContentType()
		if err != nil {
			continue
		}

		switch ctype {
		case "text/plain":
			b, err := io.ReadAll(p.Body)
			if err != nil {
				continue
			}
			return string(b)
		case "text/html":
			if htmlBody == "" {
				if b, err := io.ReadAll(p.Body); err == nil {
					htmlBody = string(b)
				}
			}
		}
	}

	if htmlBody != "" {
		return extract.CleanHTML(htmlBody)
	}
	return DecodingErrorPlaceholder
}
