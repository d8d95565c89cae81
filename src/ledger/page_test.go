package ledger

import (
	"bytes"
	"testing"
)

func TestPageCopyIsolation(t *testing.T) {
	page := NewPage([]byte("owner"))
	page.Balance = 10
	page.Memory = []byte("hello")
	page.UpdateMemHash()

	cp := page.Copy()
	cp.Balance = 99
	cp.Memory[0] = 'H'

	if page.Balance != 10 {
		t.Fatalf("balance should be 10, not %d", page.Balance)
	}
	if !bytes.Equal(page.Memory, []byte("hello")) {
		t.Fatalf("memory should be %q, not %q", "hello", page.Memory)
	}
}

func TestPageMemHash(t *testing.T) {
	page := NewPage([]byte("owner"))

	empty := append([]byte{}, page.MemHash...)

	page.Memory = []byte("content")
	page.UpdateMemHash()

	if bytes.Equal(page.MemHash, empty) {
		t.Fatal("MemHash should change with memory")
	}
}

func TestMarshalPage(t *testing.T) {
	page := NewPage([]byte("owner"))
	page.Program = []byte("program")
	page.Balance = 42
	page.Version = 7
	page.Memory = []byte("memory")
	page.UpdateMemHash()

	raw, err := page.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	newPage := new(Page)
	if err := newPage.Unmarshal(raw); err != nil {
		t.Fatal(err)
	}

	h1, err := page.Hash()
	if err != nil {
		t.Fatal(err)
	}
	h2, err := newPage.Hash()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(h1, h2) {
		t.Fatal("page hashes differ after roundtrip")
	}
}

func TestPageHashCoversVersion(t *testing.T) {
	page := NewPage([]byte("owner"))

	h1, err := page.Hash()
	if err != nil {
		t.Fatal(err)
	}

	page.Version++

	h2, err := page.Hash()
	if err != nil {
		t.Fatal(err)
	}

	if bytes.Equal(h1, h2) {
		t.Fatal("page hash should cover the version")
	}
}
