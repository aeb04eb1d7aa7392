package model

import (
	"fmt"

	"github.com/lbryio/lbcd/chaincfg/chainhash"
)

type Output struct {
	Value   int64
	Index   int
	Script  Script // locking script
	Type    ScriptType
	Class   string // txscript class name, e.g. "pubkeyhash" or "nulldata"
	KeyHash []byte
	Spent   bool

	Stake             bool   // claim, update or support output; locked until abandoned
	ClaimID           string // set on claim-name outputs
	PurchaseClaimHash string // set on purchase data outputs
}

// UnspentOutput is an output together with the hash of the transaction that created it.
type UnspentOutput struct {
	Output
	TransactionHash chainhash.Hash
}

func (u UnspentOutput) Outpoint() string {
	return fmt.Sprintf("%s:%d", u.TransactionHash, u.Index)
}
