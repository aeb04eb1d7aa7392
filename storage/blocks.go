package storage

import (
	"time"

	"github.com/OdyseeTeam/fast-wallet/blockchain"
	"github.com/OdyseeTeam/fast-wallet/model"

	"github.com/cockroachdb/errors"
	"github.com/genjidb/genji"
	"github.com/genjidb/genji/document"
	"github.com/genjidb/genji/types"
	"github.com/lbryio/lbcd/chaincfg/chainhash"
)

type blockRow struct {
	Hash          string `genji:"hash"`
	PrevHash      string `genji:"prev_hash"`
	MerkleRoot    string `genji:"merkle_root"`
	ClaimTrieRoot string `genji:"claim_trie_root"`
	Version       int64  `genji:"version"`
	Bits          int64  `genji:"bits"`
	Nonce         int64  `genji:"nonce"`
	Timestamp     int64  `genji:"unix_time"`
	Height        int64  `genji:"height"`
	Stale         bool   `genji:"stale"`
}

func newBlockRow(b model.Block) *blockRow {
	return &blockRow{
		Hash:          b.Hash.String(),
		PrevHash:      b.PrevHash.String(),
		MerkleRoot:    b.MerkleRoot.String(),
		ClaimTrieRoot: b.ClaimTrieRoot.String(),
		Version:       int64(b.Version),
		Bits:          int64(b.Bits),
		Nonce:         int64(b.Nonce),
		Timestamp:     b.Timestamp.Unix(),
		Height:        int64(b.Height),
		Stale:         b.Stale,
	}
}

func (r blockRow) block() (model.Block, error) {
	var hashes [4]*chainhash.Hash
	for i, s := range []string{r.Hash, r.PrevHash, r.MerkleRoot, r.ClaimTrieRoot} {
		h, err := chainhash.NewHashFromStr(s)
		if err != nil {
			return model.Block{}, errors.Wrapf(err, "block %s", r.Hash)
		}
		hashes[i] = h
	}

	return model.Block{
		Hash:          *hashes[0],
		PrevHash:      *hashes[1],
		MerkleRoot:    *hashes[2],
		ClaimTrieRoot: *hashes[3],
		Version:       int32(r.Version),
		Bits:          uint32(r.Bits),
		Nonce:         uint32(r.Nonce),
		Timestamp:     time.Unix(r.Timestamp, 0),
		Height:        int(r.Height),
		Stale:         r.Stale,
	}, nil
}

func (d *DB) queryBlocks(q string, args ...interface{}) ([]model.Block, error) {
	res, err := d.db.Query(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, q)
	}
	defer res.Close()

	var blocks []model.Block
	err = res.Iterate(func(doc types.Document) error {
		var row blockRow
		err := document.StructScan(doc, &row)
		if err != nil {
			return errors.WithStack(err)
		}
		b, err := row.block()
		if err != nil {
			return err
		}
		blocks = append(blocks, b)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, q)
	}
	return blocks, nil
}

func (d *DB) queryBlock(q string, args ...interface{}) (*model.Block, error) {
	blocks, err := d.queryBlocks(q, args...)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, nil
	}
	return &blocks[0], nil
}

func (d *DB) BlockByHash(hash chainhash.Hash) (*model.Block, error) {
	return d.queryBlock("SELECT * FROM blocks WHERE hash = ?", hash.String())
}

func (d *DB) Block(stale bool, order blockchain.Order) (*model.Block, error) {
	if order == blockchain.Descending {
		return d.queryBlock("SELECT * FROM blocks WHERE stale = ? ORDER BY height DESC LIMIT 1", stale)
	}
	return d.queryBlock("SELECT * FROM blocks WHERE stale = ? ORDER BY height ASC LIMIT 1", stale)
}

func (d *DB) Blocks(heightGte int, stale bool) ([]model.Block, error) {
	return d.queryBlocks("SELECT * FROM blocks WHERE height >= ? AND stale = ? ORDER BY height", heightGte, stale)
}

func (d *DB) BlocksByStale(stale bool) ([]model.Block, error) {
	return d.queryBlocks("SELECT * FROM blocks WHERE stale = ? ORDER BY height", stale)
}

func (d *DB) AddBlock(block model.Block) error {
	return d.update(func(tx *genji.Tx) error {
		return errors.Wrapf(tx.Exec("INSERT INTO blocks VALUES ?", newBlockRow(block)), "inserting block %s", block.Hash)
	})
}

func (d *DB) UnstaleAllBlocks() error {
	return d.update(func(tx *genji.Tx) error {
		return errors.WithStack(tx.Exec("UPDATE blocks SET stale = false WHERE stale = true"))
	})
}

// DeleteBlocks removes the blocks and their inclusion links. A transaction is dropped,
// with its inputs and outputs, only once no stored block includes it. Outputs its
// inputs had spent become unspent again.
func (d *DB) DeleteBlocks(blocks []model.Block) error {
	return d.update(func(tx *genji.Tx) error {
		var carried []string
		for _, b := range blocks {
			hashes, err := blockTransactions(tx, b.Hash.String())
			if err != nil {
				return err
			}
			carried = append(carried, hashes...)

			err = tx.Exec("DELETE FROM tx_blocks WHERE block_hash = ?", b.Hash.String())
			if err != nil {
				return errors.WithStack(err)
			}
			err = tx.Exec("DELETE FROM blocks WHERE hash = ?", b.Hash.String())
			if err != nil {
				return errors.WithStack(err)
			}
		}

		for _, h := range carried {
			included, err := existsTx(tx, "SELECT id FROM tx_blocks WHERE tx_hash = ?", h)
			if err != nil {
				return err
			}
			if included {
				continue
			}
			err = dropTransaction(tx, h)
			if err != nil {
				return err
			}
		}
		return nil
	})
}
