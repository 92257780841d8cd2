package credential

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/cxykevin/mizar0/storage"
	storageStructs "github.com/cxykevin/mizar0/storage/structs"
)

func newTestPool(t *testing.T) (*Pool, storage.Store) {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir(), 30)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	registry := NewRegistry("")
	return NewPool(store, registry, 0.002), store
}

func TestSelectLowestBalance(t *testing.T) {
	pool, store := newTestPool(t)
	store.SetCredential(&storageStructs.Credentials{Key: "A", Balance: 5})
	store.SetCredential(&storageStructs.Credentials{Key: "B", Balance: 2})

	cred, err := pool.Select()
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if cred.Key != "B" {
		t.Errorf("Select = %s; want B", cred.Key)
	}
}

func TestSelectEmptyPool(t *testing.T) {
	pool, _ := newTestPool(t)
	if _, err := pool.Select(); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("expected ErrNoCredentials, got %v", err)
	}
}

func TestSeedIdempotent(t *testing.T) {
	pool, store := newTestPool(t)
	if err := pool.Seed([]string{"k1", "k2"}); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	// 记一笔用量后再次seed不应清零
	cred, _ := store.GetCredential("k1")
	pool.RecordUsage(cred, 1000)
	if err := pool.Seed([]string{"k1", "k2"}); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	cred, _ = store.GetCredential("k1")
	if cred.Tokens != 1000 {
		t.Errorf("Seed should not reset usage, Tokens = %d", cred.Tokens)
	}
}

func TestRoundRobin(t *testing.T) {
	pool, _ := newTestPool(t)
	keys := []string{"k1", "k2", "k3"}
	want := []string{"k1", "k2", "k3", "k1"}
	for i, expected := range want {
		got, err := pool.SelectAlternate(keys, ModeSequential)
		if err != nil {
			t.Fatalf("SelectAlternate failed: %v", err)
		}
		if got != expected {
			t.Errorf("call %d = %s; want %s", i+1, got, expected)
		}
	}
}

func TestRandomSkipsBlacklisted(t *testing.T) {
	pool, _ := newTestPool(t)
	pool.Blacklist("k2")

	for i := 0; i < 50; i++ {
		got, err := pool.SelectAlternate([]string{"k1", "k2", "k3"}, ModeRandom)
		if err != nil {
			t.Fatalf("SelectAlternate failed: %v", err)
		}
		if got == "k2" {
			t.Fatal("blacklisted key should never be selected")
		}
	}
}

func TestAllBlacklisted(t *testing.T) {
	pool, _ := newTestPool(t)
	pool.Blacklist("k2")
	if _, err := pool.SelectAlternate([]string{"k2"}, ModeRandom); !errors.Is(err, ErrAllBlacklisted) {
		t.Errorf("expected ErrAllBlacklisted, got %v", err)
	}
}

func TestBlacklistIdempotent(t *testing.T) {
	registry := NewRegistry("")
	registry.Blacklist("k1")
	registry.Blacklist("k1")
	if !registry.Has("k1") {
		t.Error("k1 should be blacklisted")
	}
	if registry.Has("k2") {
		t.Error("k2 should not be blacklisted")
	}
}

func TestRegistryPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blacklist.json")
	registry := NewRegistry(path)
	registry.Blacklist("k1")

	// 重新加载
	registry = NewRegistry(path)
	if !registry.Has("k1") {
		t.Error("blacklist should survive reload")
	}
}

func TestRecordUsage(t *testing.T) {
	pool, store := newTestPool(t)
	store.SetCredential(&storageStructs.Credentials{Key: "k1"})
	cred, _ := store.GetCredential("k1")

	if err := pool.RecordUsage(cred, 500); err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}
	if err := pool.RecordUsage(cred, 500); err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}

	if cred.Queries != 2 {
		t.Errorf("Queries = %d; want 2", cred.Queries)
	}
	if cred.Tokens != 1000 {
		t.Errorf("Tokens = %d; want 1000", cred.Tokens)
	}
	// balance = tokens/1000 * unit_price
	if cred.Balance != 0.002 {
		t.Errorf("Balance = %f; want 0.002", cred.Balance)
	}

	// 写穿存储
	saved, _ := store.GetCredential("k1")
	if saved.Tokens != 1000 {
		t.Errorf("write-through failed, stored Tokens = %d", saved.Tokens)
	}
}
