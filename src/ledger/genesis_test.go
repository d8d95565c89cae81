package ledger

import (
	"io/ioutil"
	"os"
	"testing"
)

func TestJSONGenesisRoundtrip(t *testing.T) {
	os.Mkdir("test_data", os.ModeDir|0777)
	dir, err := ioutil.TempDir("test_data", "genesis")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	alice := NewPage([]byte("alice"))
	alice.Balance = 1000

	journal := NewPage([]byte("journal"))
	journal.Program = []byte("journal-program")
	journal.Memory = []byte("hello")
	journal.UpdateMemHash()

	jg := NewJSONGenesis(dir)
	if err := jg.SetPages([]*Page{alice, journal}); err != nil {
		t.Fatal(err)
	}

	pages, err := jg.Pages()
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 {
		t.Fatalf("genesis should have 2 pages, not %d", len(pages))
	}

	if pages[0].Balance != 1000 {
		t.Fatalf("alice balance should be 1000, not %d", pages[0].Balance)
	}
	if pages[0].Version != 0 {
		t.Fatalf("genesis pages start at version 0, not %d", pages[0].Version)
	}

	if string(pages[1].Program) != "journal-program" {
		t.Fatalf("journal program should survive the roundtrip, got %q", pages[1].Program)
	}
	if string(pages[1].Memory) != "hello" {
		t.Fatalf("journal memory should survive the roundtrip, got %q", pages[1].Memory)
	}
}

func TestJSONGenesisMissingFile(t *testing.T) {
	jg := NewJSONGenesis("test_data/no_such_dir")
	if _, err := jg.Pages(); err == nil {
		t.Fatal("Pages should fail when the genesis file is missing")
	}
}
