package wallet

import (
	"github.com/OdyseeTeam/fast-wallet/model"

	"github.com/lbryio/lbcd/wire"
)

// unsignedTx is a transaction whose inputs and outputs are still being assembled. It
// cannot be signed; seal it first.
type unsignedTx struct {
	tx       model.Transaction
	previous []model.UnspentOutput
}

func (u *unsignedTx) addInput(in model.Input, prev model.UnspentOutput) {
	u.tx.Inputs = append(u.tx.Inputs, in)
	u.previous = append(u.previous, prev)
}

func (u *unsignedTx) addOutput(out model.Output) {
	u.tx.Outputs = append(u.tx.Outputs, out)
}

func (u *unsignedTx) setOutputValue(index int, value int64) {
	u.tx.Outputs[index].Value = value
}

func (u *unsignedTx) size() int {
	return u.tx.SerializeSize()
}

// seal freezes outputs and lock time. The unsigned transaction must not be used afterwards.
func (u *unsignedTx) seal() *SealedTx {
	tx := u.tx
	tx.Inputs = append([]model.Input(nil), u.tx.Inputs...)
	tx.Outputs = append([]model.Output(nil), u.tx.Outputs...)
	return &SealedTx{tx: tx, previous: append([]model.UnspentOutput(nil), u.previous...)}
}

// SealedTx is a transaction whose outputs and lock time are final. Only the unlocking
// scripts of its inputs can still change, which is what signing does.
type SealedTx struct {
	tx       model.Transaction
	previous []model.UnspentOutput
}

// MsgTx returns a copy of the transaction in wire form, as signatures commit to it.
func (s *SealedTx) MsgTx() *wire.MsgTx {
	return s.tx.MsgTx()
}

func (s *SealedTx) NumInputs() int {
	return len(s.tx.Inputs)
}

// PreviousOutput is the output spent by input index.
func (s *SealedTx) PreviousOutput(index int) model.UnspentOutput {
	return s.previous[index]
}

func (s *SealedTx) setUnlockingScript(index int, script model.Script) {
	s.tx.Inputs[index].Script = script
}

// Transaction returns the transaction with its hash filled in.
func (s *SealedTx) Transaction() model.Transaction {
	tx := s.tx
	tx.Inputs = append([]model.Input(nil), s.tx.Inputs...)
	tx.Outputs = append([]model.Output(nil), s.tx.Outputs...)
	tx.Hash = tx.MsgTx().TxHash()
	return tx
}
