package blockchain

import (
	"sync"

	"github.com/OdyseeTeam/fast-wallet/model"

	"github.com/cockroachdb/errors"
	"github.com/lbryio/lbcd/chaincfg/chainhash"
	"github.com/lbryio/lbcd/wire"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoPreviousBlock is returned by Connect when the header's previous block is not
	// stored yet. Fetch the missing ancestors and retry.
	ErrNoPreviousBlock = errors.New("no previous block")

	// ErrValidationFailed marks every error returned by the Validator.
	ErrValidationFailed = errors.New("block validation failed")
)

type Order int

const (
	Ascending Order = iota
	Descending
)

// Storage is the durable block store the chain works against. Lookups return a nil
// block and a nil error when nothing matches.
type Storage interface {
	BlockByHash(hash chainhash.Hash) (*model.Block, error)
	// Block returns the lowest (Ascending) or highest (Descending) block with the given stale flag.
	Block(stale bool, order Order) (*model.Block, error)
	Blocks(heightGte int, stale bool) ([]model.Block, error)
	BlocksByStale(stale bool) ([]model.Block, error)
	AddBlock(block model.Block) error
	// DeleteBlocks removes the blocks and their transactions in one transaction.
	DeleteBlocks(blocks []model.Block) error
	UnstaleAllBlocks() error
	TransactionsOf(block model.Block) ([]model.Transaction, error)
}

type Validator interface {
	Validate(block, previous model.Block) error
}

type Factory interface {
	Block(header *wire.BlockHeader, previous model.Block) model.Block
	BlockAtHeight(header *wire.BlockHeader, height int) model.Block
}

// Listener is told about every block that is stored and every transaction that goes away
// with a deleted block.
type Listener interface {
	OnInsert(block model.Block)
	OnDelete(transactionHashes map[string]struct{})
}

type Chain interface {
	Connect(header *wire.BlockHeader) (model.Block, error)
	ForceAdd(header *wire.BlockHeader, height int) (model.Block, error)
	HandleFork() error
	ResolveForks() error
	DeleteBlocks(blocks []model.Block) error
	Tip() (*model.Block, error)
	SetListener(l Listener)
}

type Config struct {
	Storage   Storage
	Validator Validator
	Factory   Factory
	Listener  Listener // optional
}

type client struct {
	sync.Mutex

	storage   Storage
	validator Validator
	factory   Factory

	listenerMu sync.RWMutex
	listener   Listener
}

func New(config Config) (Chain, error) {
	if config.Storage == nil {
		return nil, errors.New("chain needs a storage")
	}
	if config.Validator == nil {
		return nil, errors.New("chain needs a validator")
	}
	if config.Factory == nil {
		return nil, errors.New("chain needs a factory")
	}
	return &client{
		storage:   config.Storage,
		validator: config.Validator,
		factory:   config.Factory,
		listener:  config.Listener,
	}, nil
}

func (c *client) SetListener(l Listener) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.listener = l
}

func (c *client) notifyInsert(block model.Block) {
	c.listenerMu.RLock()
	l := c.listener
	c.listenerMu.RUnlock()
	if l != nil {
		l.OnInsert(block)
	}
}

func (c *client) notifyDelete(hashes map[string]struct{}) {
	c.listenerMu.RLock()
	l := c.listener
	c.listenerMu.RUnlock()
	if l != nil {
		l.OnDelete(hashes)
	}
}

// Connect links header onto its stored predecessor. New blocks are stored stale until
// HandleFork confirms them. Connecting a known header returns the stored block.
func (c *client) Connect(header *wire.BlockHeader) (model.Block, error) {
	c.Lock()
	defer c.Unlock()

	hash := header.BlockHash()
	existing, err := c.storage.BlockByHash(hash)
	if err != nil {
		return model.Block{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	previous, err := c.storage.BlockByHash(header.PrevBlock)
	if err != nil {
		return model.Block{}, err
	}
	if previous == nil {
		return model.Block{}, errors.Wrapf(ErrNoPreviousBlock, "block %s, previous %s", hash, header.PrevBlock)
	}

	block := c.factory.Block(header, *previous)
	err = c.validator.Validate(block, *previous)
	if err != nil {
		if !errors.Is(err, ErrValidationFailed) {
			err = errors.Mark(err, ErrValidationFailed)
		}
		return model.Block{}, errors.Wrapf(err, "block %d (%s)", block.Height, hash)
	}
	block.Stale = true

	err = c.storage.AddBlock(block)
	if err != nil {
		return model.Block{}, err
	}
	logrus.Debugf("connected block %s", block)
	c.notifyInsert(block)

	return block, nil
}

// ForceAdd stores a trusted checkpoint at height without looking for its predecessor.
func (c *client) ForceAdd(header *wire.BlockHeader, height int) (model.Block, error) {
	c.Lock()
	defer c.Unlock()

	existing, err := c.storage.BlockByHash(header.BlockHash())
	if err != nil {
		return model.Block{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	block := c.factory.BlockAtHeight(header, height)
	err = c.storage.AddBlock(block)
	if err != nil {
		return model.Block{}, err
	}
	logrus.Infof("added checkpoint block %s", block)
	c.notifyInsert(block)

	return block, nil
}

// HandleFork settles one pending stale run against the confirmed blocks. The longer
// branch wins; a stale run that only extends the confirmed tip is simply confirmed.
func (c *client) HandleFork() error {
	c.Lock()
	defer c.Unlock()
	return c.handleFork()
}

func (c *client) handleFork() error {
	firstStale, err := c.storage.Block(true, Ascending)
	if err != nil {
		return err
	}
	if firstStale == nil {
		return nil
	}

	confirmedTip := 0
	lastConfirmed, err := c.storage.Block(false, Descending)
	if err != nil {
		return err
	}
	if lastConfirmed != nil {
		confirmedTip = lastConfirmed.Height
	}

	if firstStale.Height > confirmedTip {
		return c.storage.UnstaleAllBlocks()
	}

	lastStale, err := c.storage.Block(true, Descending)
	if err != nil {
		return err
	}
	lastStaleHeight := firstStale.Height
	if lastStale != nil {
		lastStaleHeight = lastStale.Height
	}

	if lastStaleHeight > confirmedTip {
		losing, err := c.storage.Blocks(firstStale.Height, false)
		if err != nil {
			return err
		}
		logrus.Infof("reorg: replacing %d blocks from height %d with stale branch ending at %d",
			len(losing), firstStale.Height, lastStaleHeight)
		err = c.deleteBlocks(losing)
		if err != nil {
			return err
		}
		return c.storage.UnstaleAllBlocks()
	}

	losing, err := c.storage.BlocksByStale(true)
	if err != nil {
		return err
	}
	logrus.Infof("dropping %d stale blocks from height %d, confirmed tip is %d", len(losing), firstStale.Height, confirmedTip)
	return c.deleteBlocks(losing)
}

// ResolveForks calls HandleFork until no stale block is left.
func (c *client) ResolveForks() error {
	c.Lock()
	defer c.Unlock()

	for {
		err := c.handleFork()
		if err != nil {
			return err
		}
		stale, err := c.storage.Block(true, Ascending)
		if err != nil {
			return err
		}
		if stale == nil {
			return nil
		}
	}
}

// DeleteBlocks removes blocks and reports the hashes of the transactions they carried.
func (c *client) DeleteBlocks(blocks []model.Block) error {
	c.Lock()
	defer c.Unlock()
	return c.deleteBlocks(blocks)
}

func (c *client) deleteBlocks(blocks []model.Block) error {
	if len(blocks) == 0 {
		return nil
	}

	hashes := make(map[string]struct{})
	for _, block := range blocks {
		txs, err := c.storage.TransactionsOf(block)
		if err != nil {
			return err
		}
		for _, tx := range txs {
			hashes[tx.Hash.String()] = struct{}{}
		}
	}

	err := c.storage.DeleteBlocks(blocks)
	if err != nil {
		return err
	}
	c.notifyDelete(hashes)

	return nil
}

// Tip is the highest confirmed block, or nil if there is none.
func (c *client) Tip() (*model.Block, error) {
	return c.storage.Block(false, Descending)
}
