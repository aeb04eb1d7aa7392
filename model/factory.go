package model

import (
	"encoding/hex"

	"github.com/OdyseeTeam/fast-wallet/lbrycrd"

	"github.com/cockroachdb/errors"
	"github.com/lbryio/lbcd/chaincfg"
	"github.com/lbryio/lbcd/chaincfg/chainhash"
	"github.com/lbryio/lbcd/txscript"
	"github.com/lbryio/lbcd/wire"
)

// Factory builds model records from raw fields. It is safe for concurrent use.
type Factory struct {
	params *chaincfg.Params
}

func NewFactory(params *chaincfg.Params) *Factory {
	if params == nil {
		params = &chaincfg.MainNetParams
	}
	return &Factory{params: params}
}

// Block builds the successor of previous from header. The new block is not stale.
func (f *Factory) Block(header *wire.BlockHeader, previous Block) Block {
	return f.BlockAtHeight(header, previous.Height+1)
}

func (f *Factory) BlockAtHeight(header *wire.BlockHeader, height int) Block {
	return Block{
		Hash:          header.BlockHash(),
		PrevHash:      header.PrevBlock,
		MerkleRoot:    header.MerkleRoot,
		ClaimTrieRoot: header.ClaimTrie,
		Version:       header.Version,
		Bits:          header.Bits,
		Nonce:         header.Nonce,
		Timestamp:     header.Timestamp,
		Height:        height,
	}
}

func (f *Factory) Transaction(version int32, lockTime uint32) Transaction {
	return Transaction{Version: version, LockTime: lockTime}
}

func (f *Factory) Input(prevHash chainhash.Hash, prevIndex uint32, script Script, sequence uint32) Input {
	return Input{PrevHash: prevHash, PrevIndex: prevIndex, Script: script, Sequence: sequence}
}

func (f *Factory) Output(value int64, index int, lockingScript Script, scriptType ScriptType, keyHash []byte) (Output, error) {
	if value < 0 {
		return Output{}, errors.Newf("negative output value %d", value)
	}
	if index < 0 {
		return Output{}, errors.Newf("negative output index %d", index)
	}
	if len(lockingScript) == 0 {
		return Output{}, errors.New("empty locking script")
	}
	return Output{
		Value:   value,
		Index:   index,
		Script:  lockingScript,
		Type:    scriptType,
		KeyHash: keyHash,
	}, nil
}

// TransactionFromWire converts a transaction read off the wire (or out of a block file)
// and classifies its outputs.
func (f *Factory) TransactionFromWire(msg *wire.MsgTx, blockHash chainhash.Hash) Transaction {
	tx := Transaction{
		Hash:      msg.TxHash(),
		BlockHash: blockHash,
		Version:   msg.Version,
		LockTime:  msg.LockTime,
	}

	for _, in := range msg.TxIn {
		tx.Inputs = append(tx.Inputs, f.Input(in.PreviousOutPoint.Hash, in.PreviousOutPoint.Index, in.SignatureScript, in.Sequence))
	}

	for n, out := range msg.TxOut {
		tx.Outputs = append(tx.Outputs, f.classify(tx.Hash, n, out))
	}

	return tx
}

func (f *Factory) classify(txHash chainhash.Hash, n int, out *wire.TxOut) Output {
	o := Output{Value: out.Value, Index: n, Script: out.PkScript}

	class, addresses, _, err := txscript.ExtractPkScriptAddrs(out.PkScript, f.params)
	if err != nil {
		o.Class = txscript.NonStandardTy.String()
		return o
	}
	o.Class = class.String()
	o.Type = scriptTypeOf(class)
	if len(addresses) == 1 {
		o.KeyHash = addresses[0].ScriptAddress()
		if class == txscript.PubKeyTy {
			o.KeyHash = Hash160(o.KeyHash)
		}
	}

	if class == txscript.NullDataTy {
		o.PurchaseClaimHash = lbrycrd.PurchaseClaimID(out.PkScript)
		return o
	}

	claimScript, err := txscript.ExtractClaimScript(out.PkScript)
	if err != nil || claimScript == nil {
		return o
	}
	o.Stake = true
	if claimScript.Opcode == txscript.OP_CLAIMNAME {
		o.ClaimID, _ = lbrycrd.ClaimIDFromOutpoint(txHash.String(), n)
	} else if len(claimScript.ClaimID) > 0 {
		o.ClaimID = hex.EncodeToString(lbrycrd.ReverseBytes(claimScript.ClaimID))
	}
	return o
}
