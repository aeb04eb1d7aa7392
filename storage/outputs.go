package storage

import (
	"encoding/hex"

	"github.com/OdyseeTeam/fast-wallet/model"

	"github.com/cockroachdb/errors"
	"github.com/genjidb/genji/document"
	"github.com/genjidb/genji/types"
	"github.com/lbryio/lbcd/chaincfg/chainhash"
)

// confirmedTransactions returns the hashes of transactions linked to at least one
// block that is not stale.
func (d *DB) confirmedTransactions() (map[string]struct{}, error) {
	stale := make(map[string]struct{})
	err := d.iterate("SELECT hash FROM blocks WHERE stale = true", func(doc types.Document) error {
		var row blockRow
		err := document.StructScan(doc, &row)
		if err != nil {
			return errors.WithStack(err)
		}
		stale[row.Hash] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}

	confirmed := make(map[string]struct{})
	err = d.iterate("SELECT * FROM tx_blocks", func(doc types.Document) error {
		var row txBlockRow
		err := document.StructScan(doc, &row)
		if err != nil {
			return errors.WithStack(err)
		}
		if _, ok := stale[row.BlockHash]; !ok {
			confirmed[row.TxHash] = struct{}{}
		}
		return nil
	})
	return confirmed, err
}

// unspent returns the unspent stored outputs of confirmed transactions that keep passes.
func (d *DB) unspent(keep func(outputRow) bool) ([]model.UnspentOutput, error) {
	confirmed, err := d.confirmedTransactions()
	if err != nil {
		return nil, err
	}

	var utxos []model.UnspentOutput
	err = d.iterate("SELECT * FROM outputs WHERE spent = false ORDER BY outpoint", func(doc types.Document) error {
		var row outputRow
		err := document.StructScan(doc, &row)
		if err != nil {
			return errors.WithStack(err)
		}
		if _, ok := confirmed[row.TxHash]; !ok || !keep(row) {
			return nil
		}
		u, err := row.unspentOutput()
		if err != nil {
			return err
		}
		utxos = append(utxos, u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return utxos, nil
}

// AllUnspentOutputs returns the spendable watched outputs of transactions in confirmed
// blocks. Outputs of unconfirmed transactions and of stale blocks are left out, and so
// are claim and support stakes and purchase data outputs.
func (d *DB) AllUnspentOutputs() ([]model.UnspentOutput, error) {
	return d.unspent(func(r outputRow) bool {
		return !r.Stake && r.KeyHash != ""
	})
}

// Claims returns the confirmed unspent claim and support outputs paying watched keys.
func (d *DB) Claims() ([]model.UnspentOutput, error) {
	return d.unspent(func(r outputRow) bool { return r.Stake })
}

// Purchases returns the purchase data outputs of confirmed wallet transactions.
func (d *DB) Purchases() ([]model.UnspentOutput, error) {
	return d.unspent(func(r outputRow) bool { return r.PurchaseClaimHash != "" })
}

// Balance is the total value of AllUnspentOutputs.
func (d *DB) Balance() (int64, error) {
	utxos, err := d.AllUnspentOutputs()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, u := range utxos {
		total += u.Value
	}
	return total, nil
}

func (r outputRow) unspentOutput() (model.UnspentOutput, error) {
	txHash, err := chainhash.NewHashFromStr(r.TxHash)
	if err != nil {
		return model.UnspentOutput{}, errors.Wrapf(err, "output %s", r.Outpoint)
	}
	keyHash, err := hex.DecodeString(r.KeyHash)
	if err != nil {
		return model.UnspentOutput{}, errors.Wrapf(err, "output %s", r.Outpoint)
	}
	return model.UnspentOutput{
		Output: model.Output{
			Value:             r.Amount,
			Index:             int(r.Idx),
			Script:            r.Script,
			Type:              model.ScriptType(r.ScriptType),
			Class:             r.Class,
			KeyHash:           keyHash,
			Spent:             r.Spent,
			Stake:             r.Stake,
			ClaimID:           r.ClaimID,
			PurchaseClaimHash: r.PurchaseClaimHash,
		},
		TransactionHash: *txHash,
	}, nil
}
