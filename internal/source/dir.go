package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/emersion/go-message/mail"
)

// DirSource serves RFC 5322 message files from a directory, one message per
// file. The file name (without extension) is the record id. It stands in for
// a remote mail provider in local runs and tests of the full daemon.
type DirSource struct {
	dir string
}

func NewDirSource(dir string) (*DirSource, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("source: stat %s: %w", dir, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("source: %s is not a directory", dir)
	}
	return &DirSource{dir: dir}, nil
}

// ListIDs returns file-derived ids in name order. The query is accepted for
// interface compatibility and ignored; a directory is already "the sent
// folder". The page token is a numeric offset.
func (s *DirSource) ListIDs(_ context.Context, _ string, pageToken string, maxResults int) (Page, error) {
	ids, err := s.allIDs()
	if err != nil {
		return Page{}, err
	}

	start := 0
	if pageToken != "" {
		start, err = strconv.Atoi(pageToken)
		if err != nil {
			return Page{}, fmt.Errorf("source: bad page token %q", pageToken)
		}
	}
	if start >= len(ids) {
		return Page{}, nil
	}
	end := len(ids)
	if maxResults > 0 && start+maxResults < end {
		end = start + maxResults
	}

	page := Page{IDs: ids[start:end]}
	if end < len(ids) {
		page.NextToken = strconv.Itoa(end)
	}
	return page, nil
}

func (s *DirSource) Get(_ context.Context, id string) (Detail, error) {
	path, err := s.pathFor(id)
	if err != nil {
		return Detail{}, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Detail{}, fmt.Errorf("source: read %s: %w", id, err)
	}

	d := Detail{
		ID:  id,
		Raw: base64.URLEncoding.EncodeToString(raw),
	}
	// Surface the standard headers so callers need not re-parse the raw
	// message; a malformed header section just leaves them empty.
	if mr, err := mail.CreateReader(strings.NewReader(string(raw))); err == nil {
		for _, name := range []string{"Date", "To", "Subject", "From"} {
			if v, err := mr.Header.Text(name); err == nil && v != "" {
				d.Headers = append(d.Headers, Header{Name: name, Value: v})
			}
		}
	}
	return d, nil
}

func (s *DirSource) allIDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("source: read dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name := e.Name()
		ids = append(ids, strings.TrimSuffix(name, filepath.Ext(name)))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *DirSource) pathFor(id string) (string, error) {
	if strings.ContainsAny(id, `/\`) || id == "" || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("source: bad record id %q", id)
	}
	for _, ext := range []string{".eml", ".txt", ""} {
		p := filepath.Join(s.dir, id+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("source: record %s not found", id)
}
