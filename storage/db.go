package storage

import (
	"sync"

	"github.com/OdyseeTeam/fast-wallet/blockchain"
	"github.com/OdyseeTeam/fast-wallet/model"

	"github.com/cockroachdb/errors"
	"github.com/genjidb/genji"
	"github.com/lbryio/lbcd/chaincfg"
	"github.com/sirupsen/logrus"
)

var schema = []string{
	"CREATE TABLE IF NOT EXISTS blocks (hash TEXT PRIMARY KEY)",
	"CREATE INDEX IF NOT EXISTS blocks_height ON blocks (height)",
	"CREATE TABLE IF NOT EXISTS transactions (hash TEXT PRIMARY KEY)",
	"CREATE TABLE IF NOT EXISTS tx_blocks (id TEXT PRIMARY KEY)",
	"CREATE INDEX IF NOT EXISTS tx_blocks_tx ON tx_blocks (tx_hash)",
	"CREATE INDEX IF NOT EXISTS tx_blocks_block ON tx_blocks (block_hash)",
	"CREATE TABLE IF NOT EXISTS inputs (id TEXT PRIMARY KEY)",
	"CREATE INDEX IF NOT EXISTS inputs_tx ON inputs (tx_hash)",
	"CREATE TABLE IF NOT EXISTS outputs (outpoint TEXT PRIMARY KEY)",
	"CREATE INDEX IF NOT EXISTS outputs_tx ON outputs (tx_hash)",
}

// DB stores blocks, wallet transactions and their outputs in genji.
type DB struct {
	db      *genji.DB
	factory *model.Factory

	// serializes multi-statement writes; genji allows a single write transaction at a time
	writeMu sync.Mutex

	watchMu sync.RWMutex
	watched map[string]struct{} // hex key hashes
}

// Open opens (or creates) the database at path. Use ":memory:" for a throwaway store.
func Open(path string, params *chaincfg.Params) (*DB, error) {
	db, err := genji.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}

	for _, q := range schema {
		err = db.Exec(q)
		if err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "creating schema: %s", q)
		}
	}

	logrus.Debugf("opened storage at %s", path)
	return &DB{db: db, factory: model.NewFactory(params)}, nil
}

func (d *DB) Close() error {
	return errors.WithStack(d.db.Close())
}

// update runs fn inside a write transaction, rolling back if fn fails. Reads fn makes
// through tx see its own writes.
func (d *DB) update(fn func(tx *genji.Tx) error) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	tx, err := d.db.Begin(true)
	if err != nil {
		return errors.WithStack(err)
	}
	defer tx.Rollback()

	err = fn(tx)
	if err != nil {
		return err
	}
	return errors.WithStack(tx.Commit())
}

var _ blockchain.Storage = (*DB)(nil)
