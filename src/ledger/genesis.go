package ledger

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"sync"

	cm "github.com/mosaicnetworks/quilt/src/common"
)

const jsonGenesisPath = "genesis.json"

// GenesisEntry describes one page to allocate before the runtime accepts its
// first batch. The key, program, and memory fields are hex strings so human
// operators can manipulate the file.
type GenesisEntry struct {
	Key     string `json:"key"`
	Balance uint64 `json:"balance"`
	Program string `json:"program,omitempty"`
	Memory  string `json:"memory,omitempty"`
}

// JSONGenesis reads the initial page allocations from a JSON file on disk.
type JSONGenesis struct {
	l    sync.Mutex
	path string
}

// NewJSONGenesis creates a new JSONGenesis store.
func NewJSONGenesis(base string) *JSONGenesis {
	path := filepath.Join(base, jsonGenesisPath)
	store := &JSONGenesis{
		path: path,
	}
	return store
}

// Pages reads the genesis file and converts every entry into a Page at
// version 0.
func (j *JSONGenesis) Pages() ([]*Page, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := ioutil.ReadFile(j.path)
	if err != nil {
		return nil, err
	}

	if len(buf) == 0 {
		return nil, nil
	}

	var entries []*GenesisEntry
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&entries); err != nil {
		return nil, err
	}

	pages := make([]*Page, 0, len(entries))
	for _, entry := range entries {
		page, err := entry.Page()
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}

	return pages, nil
}

// SetPages writes page allocations out as a genesis file.
func (j *JSONGenesis) SetPages(pages []*Page) error {
	j.l.Lock()
	defer j.l.Unlock()

	entries := make([]*GenesisEntry, 0, len(pages))
	for _, page := range pages {
		entry := &GenesisEntry{
			Key:     page.OwnerHex(),
			Balance: page.Balance,
		}
		if len(page.Program) > 0 {
			entry.Program = cm.EncodeToString(page.Program)
		}
		if len(page.Memory) > 0 {
			entry.Memory = cm.EncodeToString(page.Memory)
		}
		entries = append(entries, entry)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(entries); err != nil {
		return err
	}

	return ioutil.WriteFile(j.path, buf.Bytes(), 0755)
}

// Page converts a GenesisEntry into a Page at version 0.
func (e *GenesisEntry) Page() (*Page, error) {
	key, err := cm.DecodeFromString(e.Key)
	if err != nil {
		return nil, err
	}

	page := NewPage(key)
	page.Balance = e.Balance

	if e.Program != "" {
		program, err := cm.DecodeFromString(e.Program)
		if err != nil {
			return nil, err
		}
		page.Program = program
	}

	if e.Memory != "" {
		memory, err := cm.DecodeFromString(e.Memory)
		if err != nil {
			return nil, err
		}
		page.Memory = memory
		page.UpdateMemHash()
	}

	return page, nil
}
