package ledger

import (
	"bytes"

	"github.com/mosaicnetworks/quilt/src/common"
	"github.com/mosaicnetworks/quilt/src/crypto"
	"github.com/ugorji/go/codec"
)

// Page is the unit of account state. A page is addressed by the public key of
// its owner, holds a balance, and carries a memory blob that only its
// assigned program may rewrite. The version counts committed mutations and is
// the fencing token for optimistic writes.
type Page struct {
	Owner   []byte //public key the page is addressed by
	Program []byte //program in charge of the page's memory; empty for the system program
	Balance uint64
	Version uint64
	MemHash []byte //SHA256 of Memory, maintained on commit
	Memory  []byte

	ownerHex string
}

// NewPage instantiates a fresh Page with zero balance, zero version, empty
// memory, and no assigned program.
func NewPage(owner []byte) *Page {
	return &Page{
		Owner:   owner,
		Program: []byte{},
		MemHash: crypto.SHA256([]byte{}),
		Memory:  []byte{},
	}
}

// OwnerHex returns the string representation of the page's address.
func (p *Page) OwnerHex() string {
	if p.ownerHex == "" {
		p.ownerHex = common.EncodeToString(p.Owner)
	}
	return p.ownerHex
}

// Copy returns a deep copy of the Page. Handlers work on copies so a rejected
// call leaves no trace in the store.
func (p *Page) Copy() *Page {
	np := &Page{
		Owner:   append([]byte{}, p.Owner...),
		Program: append([]byte{}, p.Program...),
		Balance: p.Balance,
		Version: p.Version,
		MemHash: append([]byte{}, p.MemHash...),
		Memory:  append([]byte{}, p.Memory...),
	}
	return np
}

// UpdateMemHash recomputes the page's MemHash from its current Memory.
func (p *Page) UpdateMemHash() {
	p.MemHash = crypto.SHA256(p.Memory)
}

// Marshal returns the canonical JSON encoding of a Page. The encoding is
// canonical because page hashes feed the state digest.
func (p *Page) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(p); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal converts a canonical JSON encoded Page to a Page
func (p *Page) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	if err := dec.Decode(p); err != nil {
		return err
	}

	return nil
}

// Hash returns the SHA256 hash of the canonical JSON encoded Page.
func (p *Page) Hash() ([]byte, error) {
	hashBytes, err := p.Marshal()
	if err != nil {
		return nil, err
	}
	return crypto.SHA256(hashBytes), nil
}
