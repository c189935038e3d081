// Package corpus defines the on-disk record format shared by the fetch,
// chunking, and convergence stages.
//
// A serialized record is a header block followed by the authored content and
// an 80-character "=" rule:
//
//	Email ID: <id>
//	Date: <date>
//	To: <recipient>
//	Subject: <subject>
//	Your Content:
//	<content>
//	================================================================================
//
// The corpus blob for a user is the append-only concatenation of these
// entries. Downstream stages treat the corpus as an unordered bag of records
// re-discoverable by the boundary pattern.
package corpus

import (
	"fmt"
	"regexp"
	"strings"
)

// Record is one sent item fetched from the record source. AuthoredContent is
// derived once at ingestion and never mutated afterwards.
type Record struct {
	ID              string
	Timestamp       string
	Recipient       string
	Subject         string
	RawBody         string
	AuthoredContent string
}

// Rule separates serialized records in the corpus blob.
const Rule = "================================================================================"

// Serialize renders the record in the corpus wire format, including the
// trailing rule and blank line.
func Serialize(r Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Email ID: %s\n", r.ID)
	fmt.Fprintf(&b, "Date: %s\n", r.Timestamp)
	fmt.Fprintf(&b, "To: %s\n", r.Recipient)
	fmt.Fprintf(&b, "Subject: %s\n", r.Subject)
	b.WriteString("Your Content:\n")
	b.WriteString(r.AuthoredContent)
	b.WriteString("\n" + Rule + "\n\n")
	return b.String()
}

var boundaryRe = regexp.MustCompile(
	`Email ID: [^\n]+\nDate: [^\n]+\nTo: [^\n]+\nSubject: [^\n]+\nYour Content:\n[\s\S]*?\n={80}`)

// SplitRecords extracts serialized record entries from text in order. It
// returns nil when no record boundaries are recognizable, in which case
// callers fall back to raw token-window chunking.
func SplitRecords(text string) []string {
	return boundaryRe.FindAllString(text, -1)
}

// IDSet is the set of record ids already durably written to the corpus blob.
// An id is added only after its serialized record has been appended, so any
// id present here is skipped on resume.
type IDSet map[string]struct{}

// ParseIDSet reads a newline-delimited progress document. Blank lines are
// ignored.
func ParseIDSet(doc string) IDSet {
	s := make(IDSet)
	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			s[line] = struct{}{}
		}
	}
	return s
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Add(id string) {
	s[id] = struct{}{}
}

// FormatIDs renders ids as lines for appending to the progress document.
func FormatIDs(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return strings.Join(ids, "\n") + "\n"
}
