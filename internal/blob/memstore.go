package blob

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu   sync.Mutex
	docs map[string]string

	// AppendLog records every Append target in call order, so tests can
	// assert that corpus and progress writes are flushed together.
	AppendLog []string
}

func NewMemStore() *MemStore {
	return &MemStore{docs: make(map[string]string)}
}

func (s *MemStore) key(userKey, name string) string {
	return userKey + "/" + name
}

func (s *MemStore) Exists(_ context.Context, userKey, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.docs[s.key(userKey, name)]
	return ok, nil
}

func (s *MemStore) Read(_ context.Context, userKey, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[s.key(userKey, name)]
	if !ok {
		return "", ErrNotFound
	}
	return doc, nil
}

func (s *MemStore) Write(_ context.Context, userKey, name, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[s.key(userKey, name)] = content
	return nil
}

func (s *MemStore) Append(_ context.Context, userKey, name, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(userKey, name)
	s.docs[k] += content
	s.AppendLog = append(s.AppendLog, name)
	return nil
}

func (s *MemStore) List(_ context.Context, userKey string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := userKey + "/"
	var names []string
	for k := range s.docs {
		if strings.HasPrefix(k, prefix) {
			names = append(names, strings.TrimPrefix(k, prefix))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemStore) Delete(_ context.Context, userKey, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, s.key(userKey, name))
	return nil
}
