package storage

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/OdyseeTeam/fast-wallet/model"

	"github.com/cockroachdb/errors"
	"github.com/genjidb/genji"
	"github.com/genjidb/genji/document"
	"github.com/genjidb/genji/types"
	"github.com/lbryio/lbcd/chaincfg/chainhash"
	"github.com/lbryio/lbcd/wire"
)

type transactionRow struct {
	Hash string `genji:"hash"`
	Raw  []byte `genji:"raw"`
}

// txBlockRow links a transaction to one block that includes it. The same transaction
// may be mined in competing blocks.
type txBlockRow struct {
	ID        string `genji:"id"`
	TxHash    string `genji:"tx_hash"`
	BlockHash string `genji:"block_hash"`
}

type inputRow struct {
	ID           string `genji:"id"`
	TxHash       string `genji:"tx_hash"`
	PrevOutpoint string `genji:"prev_outpoint"`
}

type outputRow struct {
	Outpoint          string `genji:"outpoint"`
	TxHash            string `genji:"tx_hash"`
	Idx               int64  `genji:"idx"`
	Amount            int64  `genji:"amount"`
	Script            []byte `genji:"script"`
	ScriptType        int64  `genji:"script_type"`
	Class             string `genji:"class"`
	KeyHash           string `genji:"key_hash"`
	Spent             bool   `genji:"spent"`
	Stake             bool   `genji:"stake"`
	ClaimID           string `genji:"claim_id"`
	PurchaseClaimHash string `genji:"purchase_claim_hash"`
}

var unconfirmed = chainhash.Hash{}.String()

func (d *DB) iterate(q string, fn func(doc types.Document) error, args ...interface{}) error {
	res, err := d.db.Query(q, args...)
	if err != nil {
		return errors.Wrap(err, q)
	}
	defer res.Close()
	return errors.Wrap(res.Iterate(fn), q)
}

func (d *DB) exists(q string, args ...interface{}) (bool, error) {
	found := false
	err := d.iterate(q, func(types.Document) error {
		found = true
		return nil
	}, args...)
	return found, err
}

// iterateTx is iterate inside a transaction.
func iterateTx(tx *genji.Tx, q string, fn func(doc types.Document) error, args ...interface{}) error {
	res, err := tx.Query(q, args...)
	if err != nil {
		return errors.Wrap(err, q)
	}
	defer res.Close()
	return errors.Wrap(res.Iterate(fn), q)
}

func existsTx(tx *genji.Tx, q string, args ...interface{}) (bool, error) {
	found := false
	err := iterateTx(tx, q, func(types.Document) error {
		found = true
		return nil
	}, args...)
	return found, err
}

// Watch limits the outputs the store keeps to those paying one of keyHashes. With no
// watched keys every output is kept.
func (d *DB) Watch(keyHashes ...[]byte) {
	d.watchMu.Lock()
	defer d.watchMu.Unlock()
	if d.watched == nil {
		d.watched = make(map[string]struct{})
	}
	for _, h := range keyHashes {
		d.watched[hex.EncodeToString(h)] = struct{}{}
	}
}

func (d *DB) isWatched(keyHash []byte) bool {
	d.watchMu.RLock()
	defer d.watchMu.RUnlock()
	if len(d.watched) == 0 {
		return true
	}
	_, ok := d.watched[hex.EncodeToString(keyHash)]
	return ok
}

// Relevant reports whether tx pays a watched key or spends an output the store holds.
func (d *DB) Relevant(tx model.Transaction) (bool, error) {
	for _, out := range tx.Outputs {
		if len(out.KeyHash) > 0 && d.isWatched(out.KeyHash) {
			return true, nil
		}
	}
	for _, in := range tx.Inputs {
		if in.IsCoinbase() {
			continue
		}
		ok, err := d.exists("SELECT outpoint FROM outputs WHERE outpoint = ?", in.Outpoint())
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// AddTransaction records tx, the outputs it pays to watched keys along with any purchase
// data outputs, and its inputs, and marks the outputs it spends. A confirmed transaction
// is also linked to its block. Adding a known transaction again only adds the link, so a
// transaction mined in competing blocks keeps one link per block.
func (d *DB) AddTransaction(tx model.Transaction) error {
	hash := tx.Hash.String()
	blockHash := tx.BlockHash.String()

	var raw bytes.Buffer
	err := tx.MsgTx().Serialize(&raw)
	if err != nil {
		return errors.WithStack(err)
	}

	return d.update(func(gtx *genji.Tx) error {
		known, err := existsTx(gtx, "SELECT hash FROM transactions WHERE hash = ?", hash)
		if err != nil {
			return err
		}
		if !known {
			err = d.insertTransaction(gtx, tx, raw.Bytes())
			if err != nil {
				return err
			}
		}
		if blockHash == unconfirmed {
			return nil
		}

		link := &txBlockRow{ID: hash + ":" + blockHash, TxHash: hash, BlockHash: blockHash}
		linked, err := existsTx(gtx, "SELECT id FROM tx_blocks WHERE id = ?", link.ID)
		if err != nil || linked {
			return err
		}
		return errors.Wrapf(gtx.Exec("INSERT INTO tx_blocks VALUES ?", link), "linking %s to block %s", hash, blockHash)
	})
}

func (d *DB) insertTransaction(gtx *genji.Tx, tx model.Transaction, raw []byte) error {
	hash := tx.Hash.String()
	err := gtx.Exec("INSERT INTO transactions VALUES ?", &transactionRow{Hash: hash, Raw: raw})
	if err != nil {
		return errors.Wrapf(err, "inserting transaction %s", hash)
	}

	for _, out := range tx.Outputs {
		watched := len(out.KeyHash) > 0 && d.isWatched(out.KeyHash)
		if !watched && out.PurchaseClaimHash == "" {
			continue
		}
		row := &outputRow{
			Outpoint:          model.UnspentOutput{Output: out, TransactionHash: tx.Hash}.Outpoint(),
			TxHash:            hash,
			Idx:               int64(out.Index),
			Amount:            out.Value,
			Script:            out.Script,
			ScriptType:        int64(out.Type),
			Class:             out.Class,
			KeyHash:           hex.EncodeToString(out.KeyHash),
			Stake:             out.Stake,
			ClaimID:           out.ClaimID,
			PurchaseClaimHash: out.PurchaseClaimHash,
		}
		// the spending transaction may have been stored first
		row.Spent, err = existsTx(gtx, "SELECT id FROM inputs WHERE prev_outpoint = ?", row.Outpoint)
		if err != nil {
			return err
		}
		err = gtx.Exec("INSERT INTO outputs VALUES ?", row)
		if err != nil {
			return errors.Wrapf(err, "inserting output %s", row.Outpoint)
		}
	}

	for n, in := range tx.Inputs {
		if in.IsCoinbase() {
			continue
		}
		row := &inputRow{
			ID:           fmt.Sprintf("%s:%d", hash, n),
			TxHash:       hash,
			PrevOutpoint: in.Outpoint(),
		}
		err = gtx.Exec("INSERT INTO inputs VALUES ?", row)
		if err != nil {
			return errors.Wrapf(err, "inserting input %s", row.ID)
		}
		err = gtx.Exec("UPDATE outputs SET spent = true WHERE outpoint = ?", row.PrevOutpoint)
		if err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// dropTransaction deletes a transaction with its inputs and outputs. Outputs it spent
// become unspent unless another stored input still spends them.
func dropTransaction(tx *genji.Tx, hash string) error {
	var outpoints []string
	err := iterateTx(tx, "SELECT prev_outpoint FROM inputs WHERE tx_hash = ?", func(doc types.Document) error {
		var row inputRow
		err := document.StructScan(doc, &row)
		if err != nil {
			return errors.WithStack(err)
		}
		outpoints = append(outpoints, row.PrevOutpoint)
		return nil
	}, hash)
	if err != nil {
		return err
	}

	for _, q := range []string{
		"DELETE FROM inputs WHERE tx_hash = ?",
		"DELETE FROM outputs WHERE tx_hash = ?",
		"DELETE FROM transactions WHERE hash = ?",
	} {
		err = tx.Exec(q, hash)
		if err != nil {
			return errors.Wrap(err, q)
		}
	}

	for _, op := range outpoints {
		spent, err := existsTx(tx, "SELECT id FROM inputs WHERE prev_outpoint = ?", op)
		if err != nil {
			return err
		}
		if spent {
			continue
		}
		err = tx.Exec("UPDATE outputs SET spent = false WHERE outpoint = ?", op)
		if err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// HasTransaction reports whether the transaction is still stored.
func (d *DB) HasTransaction(hash string) (bool, error) {
	return d.exists("SELECT hash FROM transactions WHERE hash = ?", hash)
}

// TransactionsOf returns the stored transactions included in block.
func (d *DB) TransactionsOf(block model.Block) ([]model.Transaction, error) {
	var hashes []string
	err := d.iterate("SELECT tx_hash FROM tx_blocks WHERE block_hash = ?", func(doc types.Document) error {
		var row txBlockRow
		err := document.StructScan(doc, &row)
		if err != nil {
			return errors.WithStack(err)
		}
		hashes = append(hashes, row.TxHash)
		return nil
	}, block.Hash.String())
	if err != nil {
		return nil, err
	}

	txs := make([]model.Transaction, 0, len(hashes))
	for _, h := range hashes {
		err = d.iterate("SELECT * FROM transactions WHERE hash = ?", func(doc types.Document) error {
			var row transactionRow
			err := document.StructScan(doc, &row)
			if err != nil {
				return errors.WithStack(err)
			}
			msg := &wire.MsgTx{}
			err = msg.Deserialize(bytes.NewReader(row.Raw))
			if err != nil {
				return errors.Wrapf(err, "decoding transaction %s", row.Hash)
			}
			txs = append(txs, d.factory.TransactionFromWire(msg, block.Hash))
			return nil
		}, h)
		if err != nil {
			return nil, err
		}
	}
	return txs, nil
}

// blockTransactions lists the hashes of the transactions linked to blockHash.
func blockTransactions(tx *genji.Tx, blockHash string) ([]string, error) {
	var hashes []string
	err := iterateTx(tx, "SELECT tx_hash FROM tx_blocks WHERE block_hash = ?", func(doc types.Document) error {
		var row txBlockRow
		err := document.StructScan(doc, &row)
		if err != nil {
			return errors.WithStack(err)
		}
		hashes = append(hashes, row.TxHash)
		return nil
	}, blockHash)
	return hashes, err
}
