package ledger

import (
	"sort"
	"testing"

	cm "github.com/mosaicnetworks/quilt/src/common"
)

func TestInmemPageRoundtrip(t *testing.T) {
	store := NewInmemStore(10)

	key := []byte("key-a")

	if _, err := store.GetPage(key); !cm.IsStore(err, cm.KeyNotFound) {
		t.Fatalf("expected KeyNotFound, got %v", err)
	}

	page := NewPage(key)
	page.Balance = 100
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

	//the store must hand out copies
	got.Balance = 5
	again, err := store.GetPage(key)
	if err != nil {
		t.Fatal(err)
	}
	if again.Balance != 100 {
		t.Fatalf("mutating a returned page leaked into the store")
	}
}

func TestInmemGetOrCreatePage(t *testing.T) {
	store := NewInmemStore(10)

	key := []byte("key-b")

	page, err := store.GetOrCreatePage(key)
	if err != nil {
		t.Fatal(err)
	}
	if page.Balance != 0 || page.Version != 0 {
		t.Fatalf("fresh page should be zeroed, got %#v", page)
	}

	//the allocation must be durable
	if _, err := store.GetPage(key); err != nil {
		t.Fatal(err)
	}

	if store.PageCount() != 1 {
		t.Fatalf("PageCount should be 1, not %d", store.PageCount())
	}
}

func TestInmemCompareAndSwapPage(t *testing.T) {
	store := NewInmemStore(10)

	key := []byte("key-c")

	page, err := store.GetOrCreatePage(key)
	if err != nil {
		t.Fatal(err)
	}

	page.Balance = 50
	page.Version = 1
	if err := store.CompareAndSwapPage(0, page); err != nil {
		t.Fatal(err)
	}

	//a second swap against the stale version must fail
	page.Version = 2
	err = store.CompareAndSwapPage(0, page)
	if !cm.IsStore(err, cm.VersionMismatch) {
		t.Fatalf("expected VersionMismatch, got %v", err)
	}

	//and against the current version must pass
	if err := store.CompareAndSwapPage(1, page); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetPage(key)
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != 2 {
		t.Fatalf("version should be 2, not %d", got.Version)
	}
}

func TestInmemPageKeysSorted(t *testing.T) {
	store := NewInmemStore(10)

	for _, k := range []string{"zzz", "aaa", "mmm"} {
		if _, err := store.GetOrCreatePage([]byte(k)); err != nil {
			t.Fatal(err)
		}
	}

	pageKeys := store.PageKeys()
	if len(pageKeys) != 3 {
		t.Fatalf("PageKeys should have 3 items, not %d", len(pageKeys))
	}
	if !sort.StringsAreSorted(pageKeys) {
		t.Fatalf("PageKeys should be sorted: %v", pageKeys)
	}
}
