package blob

import (
	"context"
	"errors"
	"testing"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFSStore(t.TempDir(), "voicepack")
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	return map[string]Store{
		"fs":  fsStore,
		"mem": NewMemStore(),
	}
}

func TestStore_WriteReadExists(t *testing.T) {
	t.Parallel()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ok, err := s.Exists(ctx, "u1", "corpus.txt")
			if err != nil || ok {
				t.Fatalf("exists before write: ok=%v err=%v", ok, err)
			}
			if _, err := s.Read(ctx, "u1", "corpus.txt"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("read missing: err=%v", err)
			}

			if err := s.Write(ctx, "u1", "corpus.txt", "hello"); err != nil {
				t.Fatalf("write: %v", err)
			}
			got, err := s.Read(ctx, "u1", "corpus.txt")
			if err != nil || got != "hello" {
				t.Fatalf("read: got=%q err=%v", got, err)
			}
			ok, err = s.Exists(ctx, "u1", "corpus.txt")
			if err != nil || !ok {
				t.Fatalf("exists after write: ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestStore_AppendConcatenates(t *testing.T) {
	t.Parallel()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			// Append to a missing key creates it.
			if err := s.Append(ctx, "u1", "progress.txt", "a\n"); err != nil {
				t.Fatalf("append: %v", err)
			}
			if err := s.Append(ctx, "u1", "progress.txt", "b\n"); err != nil {
				t.Fatalf("append: %v", err)
			}
			got, err := s.Read(ctx, "u1", "progress.txt")
			if err != nil || got != "a\nb\n" {
				t.Fatalf("got=%q err=%v", got, err)
			}
		})
	}
}

func TestStore_ListAndDelete(t *testing.T) {
	t.Parallel()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for _, f := range []string{"b.txt", "a.txt"} {
				if err := s.Write(ctx, "u1", f, "x"); err != nil {
					t.Fatalf("write %s: %v", f, err)
				}
			}
			if err := s.Write(ctx, "u2", "other.txt", "x"); err != nil {
				t.Fatalf("write: %v", err)
			}

			names, err := s.List(ctx, "u1")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(names) != 2 || names[0] != "a.txt" || names[1] != "b.txt" {
				t.Fatalf("names=%v", names)
			}

			if err := s.Delete(ctx, "u1", "a.txt"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			// Deleting a missing key is not an error.
			if err := s.Delete(ctx, "u1", "a.txt"); err != nil {
				t.Fatalf("delete missing: %v", err)
			}
			names, err = s.List(ctx, "u1")
			if err != nil || len(names) != 1 || names[0] != "b.txt" {
				t.Fatalf("names=%v err=%v", names, err)
			}
		})
	}
}

func TestFSStore_UserIsolation(t *testing.T) {
	t.Parallel()

	s, err := NewFSStore(t.TempDir(), "ns")
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	ctx := context.Background()
	if err := s.Write(ctx, "alice", "doc.txt", "a"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := s.Read(ctx, "bob", "doc.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
