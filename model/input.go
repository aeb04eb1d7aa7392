package model

import (
	"fmt"

	"github.com/lbryio/lbcd/chaincfg/chainhash"
)

type Input struct {
	PrevHash  chainhash.Hash
	PrevIndex uint32
	Script    Script // unlocking script, empty until signed
	Sequence  uint32
}

func (i Input) IsCoinbase() bool {
	return i.PrevHash == chainhash.Hash{}
}

// Outpoint is the "txid:index" key of the output this input spends.
func (i Input) Outpoint() string {
	return fmt.Sprintf("%s:%d", i.PrevHash, i.PrevIndex)
}
