package storage

import (
	"path/filepath"
	"testing"
)

func TestNewStoreMemory(t *testing.T) {
	for _, kind := range []string{"", KindMemory} {
		store, err := NewStore(kind, "")
		if err != nil {
			t.Fatalf("new memory store: %v", err)
		}
		if _, ok := store.(*MemoryStore); !ok {
			t.Fatalf("expected memory store for %q, got %T", kind, store)
		}
	}
}

func TestNewStoreSQLite(t *testing.T) {
	store, err := NewStore(KindSQLite, filepath.Join(t.TempDir(), "f.db"))
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	if _, ok := store.(*SQLiteStore); !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	if _, err := NewStore(KindSQLite, ""); err == nil {
		t.Fatal("expected missing path error")
	}
}

func TestNewStoreUnsupported(t *testing.T) {
	_, err := NewStore("unknown", "")
	if err == nil {
		t.Fatal("expected unsupported store error")
	}
}
