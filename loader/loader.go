package loader

import (
	"context"
	"io"
	"path/filepath"

	"github.com/OdyseeTeam/fast-wallet/blockchain"
	"github.com/OdyseeTeam/fast-wallet/model"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru"
	"github.com/lbryio/lbcd/chaincfg"
	"github.com/lbryio/lbcd/chaincfg/chainhash"
	"github.com/lbryio/lbcd/wire"
	"github.com/sirupsen/logrus"
)

const (
	defaultOrphanPoolSize = 1000
	defaultRecentSize     = 2000
	defaultResolveEvery   = 100
)

// Recorder stores the wallet transactions found in loaded blocks.
type Recorder interface {
	Relevant(tx model.Transaction) (bool, error)
	AddTransaction(tx model.Transaction) error
}

type Config struct {
	BlocksDir string
	Params    *chaincfg.Params
	Chain     blockchain.Chain
	Recorder  Recorder // optional
	// Blocks finds stored blocks. Without it a branch that lost a fork resolution is not
	// reconnected when it grows later.
	Blocks BlockFinder

	// MaxHeight stops loading at block files that start above it. 0 = no limit.
	MaxHeight int
	// OrphanPoolSize bounds how many blocks wait for their parent. Defaults to 1000.
	OrphanPoolSize int
	// RecentSize bounds how many connected blocks are remembered for reconnecting a
	// dropped branch. Defaults to 2000.
	RecentSize int
	// ResolveEvery settles the pending branch once it is this long. Defaults to 100.
	ResolveEvery int
}

// BlockFinder looks up stored blocks by hash. A missing block is nil.
type BlockFinder interface {
	BlockByHash(hash chainhash.Hash) (*model.Block, error)
}

// Loader feeds the blocks of an lbrycrd data directory into the chain. Files are read in
// the order of the block index, but blocks inside a file are not sorted, so blocks whose
// parent is not connected yet wait in an orphan pool keyed by the parent's hash.
//
// Stale blocks are settled one branch at a time: the pending branch is resolved before a
// block that does not extend it is connected. A branch that loses is deleted from the
// chain but kept in a pool of recent blocks, and reconnected if a later block builds on
// it.
type Loader struct {
	config  Config
	factory *model.Factory
	orphans *lru.Cache
	recent  *lru.Cache // block hash -> *wire.MsgBlock

	pendingTip chainhash.Hash
	pending    int // stale blocks connected since the last resolution

	connected int
}

func New(config Config) (*Loader, error) {
	if config.Chain == nil {
		return nil, errors.New("loader needs a chain")
	}
	if config.Params == nil {
		config.Params = &chaincfg.MainNetParams
	}
	if config.OrphanPoolSize <= 0 {
		config.OrphanPoolSize = defaultOrphanPoolSize
	}
	if config.RecentSize <= 0 {
		config.RecentSize = defaultRecentSize
	}
	if config.ResolveEvery <= 0 {
		config.ResolveEvery = defaultResolveEvery
	}

	orphans, err := lru.New(config.OrphanPoolSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	recent, err := lru.New(config.RecentSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &Loader{
		config:  config,
		factory: model.NewFactory(config.Params),
		orphans: orphans,
		recent:  recent,
	}, nil
}

// Load reads every block file under BlocksDir and settles forks at the end. A reader
// goroutine decodes blocks while the caller's goroutine connects them.
func (l *Loader) Load(ctx context.Context) error {
	blockFiles, err := blockFilesOrderedByHeight(l.config.BlocksDir)
	if err != nil {
		return err
	}
	logrus.Infof("loading %d block files from %s", len(blockFiles), l.config.BlocksDir)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	blocks := make(chan *wire.MsgBlock, 64)
	readErr := make(chan error, 1)
	go func() {
		defer close(blocks)
		readErr <- l.read(ctx, blockFiles, blocks)
	}()

	for block := range blocks {
		err = l.AddBlock(block)
		if err != nil {
			cancel()
			for range blocks {
			}
			return err
		}
	}

	err = <-readErr
	if err != nil {
		return err
	}

	err = l.Settle()
	if err != nil {
		return err
	}

	if n := l.orphans.Len(); n > 0 {
		logrus.Warnf("%d blocks never found their parent", n)
	}
	return nil
}

func (l *Loader) read(ctx context.Context, blockFiles []*BlockFile, out chan<- *wire.MsgBlock) error {
	for _, bf := range blockFiles {
		if l.config.MaxHeight > 0 && bf.firstHeight > l.config.MaxHeight {
			continue
		}

		err := bf.open(l.config.Params.Net)
		if err != nil {
			return err
		}
		logrus.Debugf("reading %s (heights %d-%d)", filepath.Base(bf.Filename()), bf.firstHeight, bf.lastHeight)

		err = l.readFile(ctx, bf, out)
		closeErr := bf.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			logrus.Errorf("%+v", closeErr)
		}
	}
	return nil
}

func (l *Loader) readFile(ctx context.Context, bf *BlockFile, out chan<- *wire.MsgBlock) error {
	for {
		block, err := bf.NextBlock()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		select {
		case out <- block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// AddBlock connects block, or parks it until its parent arrives. A block with no parent
// (the genesis block) is added as the checkpoint at height 0.
func (l *Loader) AddBlock(block *wire.MsgBlock) error {
	queue := []*wire.MsgBlock{block}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		freed, err := l.connect(next, true)
		if err != nil {
			return err
		}
		queue = append(queue, freed...)

		if l.pending >= l.config.ResolveEvery {
			err = l.Settle()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Settle resolves the pending stale branch against the confirmed chain.
func (l *Loader) Settle() error {
	l.pending = 0
	l.pendingTip = chainhash.Hash{}
	return l.config.Chain.ResolveForks()
}

// connect stores block and returns the orphans that were waiting for it. With revive set,
// a block whose parent was dropped by an earlier resolution brings its branch back.
func (l *Loader) connect(block *wire.MsgBlock, revive bool) ([]*wire.MsgBlock, error) {
	if block.Header.PrevBlock == (chainhash.Hash{}) {
		stored, err := l.config.Chain.ForceAdd(&block.Header, 0)
		if err != nil {
			return nil, err
		}
		return l.stored(stored, block)
	}

	if l.pending > 0 && block.Header.PrevBlock != l.pendingTip {
		err := l.Settle()
		if err != nil {
			return nil, err
		}
	}

	stored, err := l.config.Chain.Connect(&block.Header)
	if errors.Is(err, blockchain.ErrNoPreviousBlock) {
		if !revive {
			l.park(block)
			return nil, nil
		}
		branch, err := l.droppedBranch(block.Header.PrevBlock)
		if err != nil {
			return nil, err
		}
		if len(branch) == 0 {
			l.park(block)
			return nil, nil
		}
		logrus.Debugf("reconnecting %d dropped blocks under %s", len(branch), block.BlockHash())

		var freed []*wire.MsgBlock
		for _, b := range append(branch, block) {
			children, err := l.connect(b, false)
			if err != nil {
				return nil, err
			}
			freed = append(freed, children...)
		}
		return freed, nil
	}
	if errors.Is(err, blockchain.ErrValidationFailed) {
		logrus.Warnf("skipping invalid block: %v", err)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if stored.Stale && stored.Hash != l.pendingTip {
		l.pendingTip = stored.Hash
		l.pending++
	}
	return l.stored(stored, block)
}

// stored records the wallet transactions of a stored block and hands back the orphans
// that were waiting for it.
func (l *Loader) stored(stored model.Block, block *wire.MsgBlock) ([]*wire.MsgBlock, error) {
	l.recent.Add(stored.Hash, block)

	err := l.record(stored, block)
	if err != nil {
		return nil, err
	}

	l.connected++
	if l.connected%10000 == 0 {
		logrus.Infof("connected %dk blocks, at height %d", l.connected/1000, stored.Height)
	}
	return l.adopt(stored.Hash), nil
}

// droppedBranch walks back from parent through recently connected blocks that are no
// longer stored, and returns them oldest first. It is empty unless the walk reaches a
// stored block.
func (l *Loader) droppedBranch(parent chainhash.Hash) ([]*wire.MsgBlock, error) {
	if l.config.Blocks == nil {
		return nil, nil
	}

	var branch []*wire.MsgBlock
	for {
		v, ok := l.recent.Get(parent)
		if !ok {
			return nil, nil
		}
		block := v.(*wire.MsgBlock)
		branch = append(branch, block)

		parent = block.Header.PrevBlock
		found, err := l.config.Blocks.BlockByHash(parent)
		if err != nil {
			return nil, err
		}
		if found != nil {
			break
		}
	}

	for i, j := 0, len(branch)-1; i < j; i, j = i+1, j-1 {
		branch[i], branch[j] = branch[j], branch[i]
	}
	return branch, nil
}

func (l *Loader) record(stored model.Block, block *wire.MsgBlock) error {
	if l.config.Recorder == nil {
		return nil
	}
	for _, msg := range block.Transactions {
		tx := l.factory.TransactionFromWire(msg, stored.Hash)
		relevant, err := l.config.Recorder.Relevant(tx)
		if err != nil {
			return err
		}
		if !relevant {
			continue
		}
		err = l.config.Recorder.AddTransaction(tx)
		if err != nil {
			return errors.Wrapf(err, "recording %s from block %d", tx.Hash, stored.Height)
		}
		logrus.Debugf("recorded %s from block %d", tx.Hash, stored.Height)
	}
	return nil
}

func (l *Loader) park(block *wire.MsgBlock) {
	parent := block.Header.PrevBlock
	var siblings []*wire.MsgBlock
	if v, ok := l.orphans.Get(parent); ok {
		siblings = v.([]*wire.MsgBlock)
	}
	hash := block.BlockHash()
	for _, s := range siblings {
		if s.BlockHash() == hash {
			return
		}
	}
	if l.orphans.Add(parent, append(siblings, block)) {
		logrus.Debugf("orphan pool full, evicted the oldest parked blocks")
	}
}

func (l *Loader) adopt(parent chainhash.Hash) []*wire.MsgBlock {
	v, ok := l.orphans.Get(parent)
	if !ok {
		return nil
	}
	l.orphans.Remove(parent)
	return v.([]*wire.MsgBlock)
}

// Orphans is the number of parents that parked blocks are waiting for.
func (l *Loader) Orphans() int {
	return l.orphans.Len()
}
