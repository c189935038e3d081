package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// SplitMboxOptions controls how SplitMbox writes per-message files.
type SplitMboxOptions struct {
	// OverwriteExisting controls whether existing output files may be
	// replaced. If false and a file already exists, SplitMbox returns an
	// error.
	OverwriteExisting bool

	// DirMode is used when creating the output directory (defaults to 0o755).
	DirMode fs.FileMode

	// FileMode is used when creating output files (defaults to 0o644).
	FileMode fs.FileMode
}

// SplitMboxResult contains basic stats from a split run.
type SplitMboxResult struct {
	MessagesWritten int
	BytesWritten    int64
}

// SplitMbox reads an mbox export and writes one RFC 5322 file per message
// into outputDir, named after a sanitized Message-ID header (sequential
// fallback). The output directory is directly usable as a DirSource root.
//
// Messages are delimited by "From " separator lines; ">From" quoting inside
// bodies is unquoted one level. The input is streamed, never fully buffered.
func SplitMbox(ctx context.Context, inputPath, outputDir string, opts SplitMboxOptions) (SplitMboxResult, error) {
	if inputPath == "" {
		return SplitMboxResult{}, errors.New("SplitMbox: inputPath is empty")
	}
	if outputDir == "" {
		return SplitMboxResult{}, errors.New("SplitMbox: outputDir is empty")
	}
	if opts.DirMode == 0 {
		opts.DirMode = 0o755
	}
	if opts.FileMode == 0 {
		opts.FileMode = 0o644
	}
	if err := os.MkdirAll(outputDir, opts.DirMode); err != nil {
		return SplitMboxResult{}, fmt.Errorf("SplitMbox: mkdir outputDir: %w", err)
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return SplitMboxResult{}, fmt.Errorf("SplitMbox: open input: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(bufio.NewReaderSize(f, 1<<20))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	seen := make(map[string]int)
	var res SplitMboxResult
	var current []string
	inMessage := false

	flush := func() error {
		if !inMessage {
			return nil
		}
		n, err := writeMboxMessage(outputDir, current, seen, opts)
		if err != nil {
			return err
		}
		res.MessagesWritten++
		res.BytesWritten += n
		current = current[:0]
		return nil
	}

	for sc.Scan() {
		select {
		case <-ctx.Done():
			return SplitMboxResult{}, ctx.Err()
		default:
		}

		line := sc.Text()
		if strings.HasPrefix(line, "From ") {
			if err := flush(); err != nil {
				return SplitMboxResult{}, err
			}
			inMessage = true
			continue
		}
		if !inMessage {
			// Garbage before the first separator; mbox files start with
			// "From ", anything else is not ours to interpret.
			continue
		}
		if strings.HasPrefix(line, ">") && strings.HasPrefix(strings.TrimLeft(line, ">"), "From ") {
			line = line[1:]
		}
		current = append(current, line)
	}
	if err := sc.Err(); err != nil {
		return SplitMboxResult{}, fmt.Errorf("SplitMbox: scan input: %w", err)
	}
	if err := flush(); err != nil {
		return SplitMboxResult{}, err
	}

	if res.MessagesWritten == 0 {
		return SplitMboxResult{}, errors.New("SplitMbox: no messages found (is the input an mbox file?)")
	}
	return res, nil
}

func writeMboxMessage(outputDir string, lines []string, seen map[string]int, opts SplitMboxOptions) (int64, error) {
	base := sanitizeFileComponent(messageIDFromLines(lines))
	if base == "" {
		base = "message"
	}

	seenCount := seen[base]
	seen[base] = seenCount + 1
	name := base
	if seenCount > 0 {
		name = fmt.Sprintf("%s-%d", base, seenCount+1)
	}
	name += ".eml"

	outPath := filepath.Join(outputDir, name)
	if !opts.OverwriteExisting {
		if _, err := os.Stat(outPath); err == nil {
			return 0, fmt.Errorf("SplitMbox: output file already exists: %s", outPath)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("SplitMbox: stat output file: %w", err)
		}
	}

	data := []byte(strings.Join(lines, "\r\n") + "\r\n")
	if err := writeMessageAtomic(outputDir, outPath, data, opts.FileMode); err != nil {
		return 0, fmt.Errorf("SplitMbox: write %s: %w", name, err)
	}
	return int64(len(data)), nil
}

// messageIDFromLines pulls the Message-ID header value from the header
// section, stripped of angle brackets. Empty when absent or malformed.
func messageIDFromLines(lines []string) string {
	for i, line := range lines {
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if !strings.EqualFold(textproto.CanonicalMIMEHeaderKey(key), "Message-Id") {
			continue
		}
		value = strings.TrimSpace(value)
		// Header may be folded onto the next line.
		if value == "" && i+1 < len(lines) {
			value = strings.TrimSpace(lines[i+1])
		}
		return strings.Trim(value, "<>")
	}
	return ""
}

func sanitizeFileComponent(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.' || r == '@':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "._-")
}

func writeMessageAtomic(tmpDir, finalPath string, data []byte, mode fs.FileMode) error {
	tmp, err := os.CreateTemp(tmpDir, "mbox_split_*.eml")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, finalPath)
}
