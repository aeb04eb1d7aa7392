package model

import (
	"github.com/lbryio/lbcd/chaincfg/chainhash"
	"github.com/lbryio/lbcd/wire"
)

type Transaction struct {
	Hash      chainhash.Hash
	BlockHash chainhash.Hash // zero until the transaction is included in a block
	Version   int32
	Inputs    []Input
	Outputs   []Output
	LockTime  uint32
}

// MsgTx converts the transaction into its lbcd wire form. The result does not share
// memory with t.
func (t Transaction) MsgTx() *wire.MsgTx {
	msg := wire.NewMsgTx(t.Version)
	msg.LockTime = t.LockTime
	for _, in := range t.Inputs {
		prev := in.PrevHash
		txIn := wire.NewTxIn(wire.NewOutPoint(&prev, in.PrevIndex), in.Script.Copy(), nil)
		txIn.Sequence = in.Sequence
		msg.AddTxIn(txIn)
	}
	for _, out := range t.Outputs {
		msg.AddTxOut(wire.NewTxOut(out.Value, out.Script.Copy()))
	}
	return msg
}

// SerializeSize is the byte length of the transaction as it would go over the wire.
func (t Transaction) SerializeSize() int {
	return t.MsgTx().SerializeSize()
}

func (t Transaction) OutputValue() int64 {
	var total int64
	for _, out := range t.Outputs {
		total += out.Value
	}
	return total
}
