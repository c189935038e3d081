package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FSStore keeps each document at <root>/<namespace>/<userKey>/<fileName>.
// Writes go through a same-directory tempfile and rename so readers never
// observe a half-written document.
type FSStore struct {
	root      string
	namespace string
}

func NewFSStore(root, namespace string) (*FSStore, error) {
	if root == "" {
		return nil, errors.New("blob: root is empty")
	}
	if namespace == "" {
		return nil, errors.New("blob: namespace is empty")
	}
	if err := os.MkdirAll(filepath.Join(root, namespace), 0o755); err != nil {
		return nil, fmt.Errorf("blob: mkdir root: %w", err)
	}
	return &FSStore{root: root, namespace: namespace}, nil
}

func (s *FSStore) path(userKey, name string) string {
	return filepath.Join(s.root, s.namespace, userKey, name)
}

func (s *FSStore) Exists(_ context.Context, userKey, name string) (bool, error) {
	_, err := os.Stat(s.path(userKey, name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *FSStore) Read(_ context.Context, userKey, name string) (string, error) {
	b, err := os.ReadFile(s.path(userKey, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	return string(b), nil
}

func (s *FSStore) Write(_ context.Context, userKey, name, content string) error {
	return writeFileAtomicSameDir(s.path(userKey, name), []byte(content), 0o644)
}

func (s *FSStore) Append(ctx context.Context, userKey, name, content string) error {
	return AppendReadModifyWrite(ctx, s, userKey, name, content)
}

func (s *FSStore) List(_ context.Context, userKey string) ([]string, error) {
	dir := filepath.Join(s.root, s.namespace, userKey)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".tmp_") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *FSStore) Delete(_ context.Context, userKey, name string) error {
	err := os.Remove(s.path(userKey, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func writeFileAtomicSameDir(path string, data []byte, mode fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp_blob_*")
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
	return os.Rename(tmpName, path)
}
