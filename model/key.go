package model

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/ripemd160"
)

// PublicKey is a serialized public key and its hash160.
type PublicKey struct {
	Raw  []byte
	Hash []byte
}

func NewPublicKey(raw []byte) PublicKey {
	return PublicKey{Raw: raw, Hash: Hash160(raw)}
}

func (k PublicKey) String() string {
	return hex.EncodeToString(k.Hash)
}

// Hash160 is ripemd160(sha256(b)).
func Hash160(b []byte) []byte {
	s := sha256.Sum256(b)
	r := ripemd160.New()
	r.Write(s[:])
	return r.Sum(nil)
}
