package ledger

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"

	"github.com/mosaicnetworks/quilt/src/common"
	"github.com/mosaicnetworks/quilt/src/crypto"
	"github.com/mosaicnetworks/quilt/src/crypto/keys"
	"github.com/ugorji/go/codec"
)

/*******************************************************************************
CallBody
*******************************************************************************/

// CallBody contains the payload of a Call: the pages it intends to touch, the
// entry point to invoke, and the anti-replay anchors. It is the part of a
// Call covered by the proofs.
type CallBody struct {
	Keys     [][]byte //addresses of the pages the call may touch; Keys[0] is the caller
	LastID   uint64   //id of a recent checkpoint the call is anchored to
	LastHash []byte   //hash of that checkpoint
	Program  []byte   //address of the invoked program; empty for the system program
	Fee      uint64   //scheduling fee, debited from the caller page
	Version  uint64   //must be strictly greater than the caller page's version
	Method   uint8    //entry point within the program
	Payload  []byte   //opaque argument blob handed to the handler
}

// Marshal returns the canonical JSON encoding of a CallBody. The encoding is
// canonical because the bytes are signed and hashed; two encodings of the same
// body must be identical on every node that verifies them.
func (cb *CallBody) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(cb); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal converts a canonical JSON encoded CallBody to a CallBody
func (cb *CallBody) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	if err := dec.Decode(cb); err != nil {
		return err
	}

	return nil
}

// Hash returns the SHA256 hash of the canonical JSON encoded CallBody. This is
// the value the proofs sign.
func (cb *CallBody) Hash() ([]byte, error) {
	hashBytes, err := cb.Marshal()
	if err != nil {
		return nil, err
	}
	return crypto.SHA256(hashBytes), nil
}

/*******************************************************************************
Call
*******************************************************************************/

// Call is the unit of work submitted to the runtime. It contains a CallBody
// and one proof per referenced key, aligned with Body.Keys. An empty string
// marks an absent proof; only Proofs[0], the caller's proof, is mandatory.
type Call struct {
	Body   CallBody
	Proofs []string

	caller string
	hash   []byte
	hex    string
}

// NewCall instantiates a new Call with an empty proof slot per key.
func NewCall(body CallBody) *Call {
	return &Call{
		Body:   body,
		Proofs: make([]string, len(body.Keys)),
	}
}

// Caller returns the string representation of the caller's key, Keys[0].
func (c *Call) Caller() string {
	if c.caller == "" && len(c.Body.Keys) > 0 {
		c.caller = common.EncodeToString(c.Body.Keys[0])
	}
	return c.caller
}

// Keys returns the addresses of the pages the call may touch.
func (c *Call) Keys() [][]byte {
	return c.Body.Keys
}

// ProgramHex returns the string representation of the invoked program's
// address.
func (c *Call) ProgramHex() string {
	return common.EncodeToString(c.Body.Program)
}

// Sign signs the hash of the Call's body with an ecdsa sig and records it in
// the proof slot of the matching key. It returns an error if the key derived
// from privKey is not referenced by the call.
func (c *Call) Sign(privKey *ecdsa.PrivateKey) error {
	pubBytes := keys.FromPublicKey(&privKey.PublicKey)

	slot := -1
	for i, k := range c.Body.Keys {
		if bytes.Equal(k, pubBytes) {
			slot = i
			break
		}
	}
	if slot < 0 {
		return fmt.Errorf("key %s is not referenced by the call", common.EncodeToString(pubBytes))
	}

	signBytes, err := c.Body.Hash()
	if err != nil {
		return err
	}

	R, S, err := keys.Sign(privKey, signBytes)
	if err != nil {
		return err
	}

	if len(c.Proofs) != len(c.Body.Keys) {
		c.Proofs = make([]string, len(c.Body.Keys))
	}
	c.Proofs[slot] = keys.EncodeSignature(R, S)

	return nil
}

// Verify verifies the Call's proofs. The caller's proof must be present and
// valid; further proofs are optional but every present proof must verify
// against its aligned key.
func (c *Call) Verify() (bool, error) {
	if len(c.Body.Keys) == 0 {
		return false, fmt.Errorf("call references no keys")
	}

	if len(c.Proofs) != len(c.Body.Keys) {
		return false, fmt.Errorf("%d proofs for %d keys", len(c.Proofs), len(c.Body.Keys))
	}

	if c.Proofs[0] == "" {
		return false, fmt.Errorf("missing caller proof")
	}

	signBytes, err := c.Body.Hash()
	if err != nil {
		return false, err
	}

	for i, proof := range c.Proofs {
		if proof == "" {
			continue
		}

		pubKey := keys.ToPublicKey(c.Body.Keys[i])
		if pubKey == nil {
			return false, fmt.Errorf("key %d is not a curve point", i)
		}

		r, s, err := keys.DecodeSignature(proof)
		if err != nil {
			return false, err
		}

		if !keys.Verify(pubKey, signBytes, r, s) {
			return false, nil
		}
	}

	return true, nil
}

// HasProof returns true if the call carries a proof for the given key. It is
// only meaningful after Verify has accepted the call.
func (c *Call) HasProof(key []byte) bool {
	for i, k := range c.Body.Keys {
		if bytes.Equal(k, key) && i < len(c.Proofs) && c.Proofs[i] != "" {
			return true
		}
	}
	return false
}

// Marshal returns the canonical JSON encoding of the Call, proofs included.
func (c *Call) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(c); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal converts a canonical JSON encoded Call to a Call
func (c *Call) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	if err := dec.Decode(c); err != nil {
		return err
	}

	return nil
}

// Hash returns the SHA256 hash of the canonical JSON-encoded body
func (c *Call) Hash() ([]byte, error) {
	if len(c.hash) == 0 {
		hash, err := c.Body.Hash()
		if err != nil {
			return nil, err
		}
		c.hash = hash
	}

	return c.hash, nil
}

// Hex returns a hex string representation of the Call's hash
func (c *Call) Hex() string {
	if c.hex == "" {
		hash, _ := c.Hash()
		c.hex = common.EncodeToString(hash)
	}

	return c.hex
}
