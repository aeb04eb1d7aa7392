package model

import (
	"fmt"
	"time"

	"github.com/lbryio/lbcd/chaincfg/chainhash"
	"github.com/lbryio/lbcd/wire"
)

// Block is a stored header. A Block is a value snapshot of what storage holds; changing
// a field does nothing until the block goes back through a storage call.
type Block struct {
	Hash          chainhash.Hash
	PrevHash      chainhash.Hash
	MerkleRoot    chainhash.Hash
	ClaimTrieRoot chainhash.Hash
	Version       int32
	Bits          uint32
	Nonce         uint32
	Timestamp     time.Time
	Height        int
	Stale         bool
}

// Header rebuilds the lbcd wire header the block was created from.
func (b Block) Header() *wire.BlockHeader {
	return &wire.BlockHeader{
		Version:    b.Version,
		PrevBlock:  b.PrevHash,
		MerkleRoot: b.MerkleRoot,
		ClaimTrie:  b.ClaimTrieRoot,
		Timestamp:  b.Timestamp,
		Bits:       b.Bits,
		Nonce:      b.Nonce,
	}
}

func (b Block) String() string {
	state := "confirmed"
	if b.Stale {
		state = "stale"
	}
	return fmt.Sprintf("%d (%s, %s)", b.Height, b.Hash, state)
}
