package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func exercise(t *testing.T, db Database) {
	t.Helper()
	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	value := []byte("v1")
	if err := db.Put([]byte("k"), value); err != nil {
		t.Fatalf("put: %v", err)
	}
	value[0] = 'x'
	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("expected v1, got %q", got)
	}
	if err := db.Delete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get([]byte("k")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	if err := db.Put([]byte("old"), []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	err = db.Apply([]Write{
		{Key: []byte("head"), Value: []byte("2")},
		{Key: []byte("hist/2"), Value: []byte("2")},
		{Key: []byte("old")},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got, err := db.Get([]byte("head")); err != nil || string(got) != "2" {
		t.Fatalf("expected batched head, got %q (%v)", got, err)
	}
	if _, err := db.Get([]byte("old")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected batched delete, got %v", err)
	}
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exercise(t, db)
}

func TestLevelDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	db, err := NewLevelDB(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	exercise(t, db)
	if err := db.Put([]byte("persist"), []byte("yes")); err != nil {
		t.Fatalf("put: %v", err)
	}
	db.Close()

	reopened, err := NewLevelDB(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Get([]byte("persist"))
	if err != nil || string(got) != "yes" {
		t.Fatalf("expected persisted value, got %q (%v)", got, err)
	}
}
