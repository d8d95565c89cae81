// Package keys implements the public key cryptography used throughout Quilt.
//
// Every page in the ledger is addressed by the uncompressed form of a public
// key, and every call carries one proof per referenced key. A caller owns a
// cryptographic key-pair; the private key signs call bodies, and the public
// key is both the page address and the material the runtime uses to verify
// the proofs.
//
// Quilt uses elliptic curve cryptography (ECDSA) with the secp256k1 curve. We
// chose the secp256k1 curve because it is also used by Bitcoin and Ethereum
// which means that Bitcoin and Ethereum keys can be used to hold Quilt pages.
package keys
