package main

import (
	"sync"

	"github.com/OdyseeTeam/fast-wallet/model"
	"github.com/OdyseeTeam/fast-wallet/storage"

	"github.com/lbryio/lbcutil"
	"github.com/sirupsen/logrus"
)

// ledger follows chain events and reports the wallet balance as blocks come and go.
type ledger struct {
	balance     func() (int64, error)
	known       func(hash string) (bool, error) // optional; still stored after a delete
	reportEvery int

	mu       sync.Mutex
	inserted int
	dropped  map[string]struct{}
}

func newLedger(balance func() (int64, error), reportEvery int) *ledger {
	return &ledger{
		balance:     balance,
		reportEvery: reportEvery,
		dropped:     make(map[string]struct{}),
	}
}

func (l *ledger) OnInsert(block model.Block) {
	l.mu.Lock()
	l.inserted++
	report := l.reportEvery > 0 && block.Height%l.reportEvery == 0
	l.mu.Unlock()

	if report {
		l.report("at height %d", block.Height)
	}
}

// OnDelete remembers the transactions that left the chain. They stay dropped until a
// block carrying them is stored again. A transaction another stored block still
// includes did not leave.
func (l *ledger) OnDelete(transactionHashes map[string]struct{}) {
	var left []string
	for h := range transactionHashes {
		if l.known != nil {
			kept, err := l.known(h)
			if err != nil {
				logrus.Errorf("%+v", err)
			} else if kept {
				continue
			}
		}
		left = append(left, h)
	}
	if len(left) == 0 {
		return
	}

	l.mu.Lock()
	for _, h := range left {
		l.dropped[h] = struct{}{}
		logrus.Infof("transaction %s left the chain", h)
	}
	l.mu.Unlock()

	l.report("after dropping %d transactions", len(left))
}

// confirmed clears a dropped transaction that was mined again.
func (l *ledger) confirmed(hash string) {
	l.mu.Lock()
	delete(l.dropped, hash)
	l.mu.Unlock()
}

func (l *ledger) Dropped() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	hashes := make([]string, 0, len(l.dropped))
	for h := range l.dropped {
		hashes = append(hashes, h)
	}
	return hashes
}

func (l *ledger) report(format string, args ...interface{}) {
	if l.balance == nil {
		return
	}
	b, err := l.balance()
	if err != nil {
		logrus.Errorf("%+v", err)
		return
	}
	logrus.WithField("balance", lbcutil.Amount(b).String()).Infof(format, args...)
}

// recorder stores the wallet transactions the loader finds and tells the ledger.
type recorder struct {
	*storage.DB
	ledger *ledger
}

func (r recorder) AddTransaction(tx model.Transaction) error {
	err := r.DB.AddTransaction(tx)
	if err != nil {
		return err
	}
	r.ledger.confirmed(tx.Hash.String())
	return nil
}
