package ledger

import (
	"io/ioutil"
	"os"
	"testing"

	cm "github.com/mosaicnetworks/quilt/src/common"
)

func initBadgerStore(cacheSize int, t *testing.T) *BadgerStore {
	os.Mkdir("test_data", os.ModeDir|0777)
	dir, err := ioutil.TempDir("test_data", "badger")
	if err != nil {
		t.Fatal(err)
	}

	store, err := NewBadgerStore(cacheSize, dir)
	if err != nil {
		t.Fatal(err)
	}

	return store
}

func removeBadgerStore(store *BadgerStore, t *testing.T) {
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(store.path); err != nil {
		t.Fatal(err)
	}
}

func TestBadgerPageRoundtrip(t *testing.T) {
	store := initBadgerStore(10, t)
	defer removeBadgerStore(store, t)

	key := []byte("key-a")

	if _, err := store.GetPage(key); !cm.IsStore(err, cm.KeyNotFound) {
		t.Fatalf("expected KeyNotFound, got %v", err)
	}

	page := NewPage(key)
	page.Balance = 100
	page.Memory = []byte("memory")
	page.UpdateMemHash()

	if err := store.SetPage(page); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetPage(key)
	if err != nil {
		t.Fatal(err)
	}
	if got.Balance != 100 {
		t.Fatalf("balance should be 100, not %d", got.Balance)
	}
	if string(got.Memory) != "memory" {
		t.Fatalf("memory should be %q, not %q", "memory", got.Memory)
	}
}

func TestBadgerCompareAndSwapPage(t *testing.T) {
	store := initBadgerStore(10, t)
	defer removeBadgerStore(store, t)

	key := []byte("key-b")

	if _, err := store.GetOrCreatePage(key); err != nil {
		t.Fatal(err)
	}

	page := NewPage(key)
	page.Balance = 10
	page.Version = 1
	if err := store.CompareAndSwapPage(0, page); err != nil {
		t.Fatal(err)
	}

	err := store.CompareAndSwapPage(0, page)
	if !cm.IsStore(err, cm.VersionMismatch) {
		t.Fatalf("expected VersionMismatch, got %v", err)
	}
}

func TestBadgerReload(t *testing.T) {
	store := initBadgerStore(10, t)
	path := store.path
	defer os.RemoveAll(path)

	key := []byte("key-c")

	page := NewPage(key)
	page.Balance = 77
	page.Version = 3
	if err := store.SetPage(page); err != nil {
		t.Fatal(err)
	}

	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	//reopen and check the page survived
	reloaded, err := LoadBadgerStore(10, path)
	if err != nil {
		t.Fatal(err)
	}
	defer reloaded.Close()

	got, err := reloaded.GetPage(key)
	if err != nil {
		t.Fatal(err)
	}
	if got.Balance != 77 || got.Version != 3 {
		t.Fatalf("reloaded page should be {77 3}, got {%d %d}", got.Balance, got.Version)
	}

	if reloaded.PageCount() != 1 {
		t.Fatalf("PageCount should be 1, not %d", reloaded.PageCount())
	}
}

func TestLoadBadgerStoreMissingPath(t *testing.T) {
	if _, err := LoadBadgerStore(10, "test_data/no_such_db"); err == nil {
		t.Fatal("LoadBadgerStore should fail on a missing path")
	}
}
