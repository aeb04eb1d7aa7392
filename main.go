package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/OdyseeTeam/fast-wallet/blockchain"
	"github.com/OdyseeTeam/fast-wallet/loader"
	"github.com/OdyseeTeam/fast-wallet/model"
	"github.com/OdyseeTeam/fast-wallet/server"
	"github.com/OdyseeTeam/fast-wallet/storage"
	"github.com/OdyseeTeam/fast-wallet/wallet"

	"github.com/cockroachdb/errors"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/jessevdk/go-flags"
	"github.com/lbryio/lbcd/chaincfg"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
)

const blocksPerDay = 537 // 1 every 161 sec

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		os.Exit(configExitCode(err))
	}

	err = run(cfg)
	if err != nil {
		logrus.Fatalf("%+v", err)
	}
}

// configExitCode logs err unless the flags parser already printed it, and returns the
// exit status for it.
func configExitCode(err error) int {
	var flagsErr *flags.Error
	if errors.As(err, &flagsErr) {
		if flagsErr.Type == flags.ErrHelp {
			return 0
		}
		return 1
	}
	logrus.Errorf("invalid configuration: %+v", err)
	return 1
}

func run(cfg *config) error {
	if cfg.MemProfile {
		defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
	}

	params := cfg.params()
	db, err := storage.Open(cfg.DBPath, params)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, w := range cfg.Watch {
		keyHash, _ := decodeKeyHash(w)
		db.Watch(keyHash)
	}

	var signer *wallet.KeyringSigner
	var owner model.PublicKey
	if cfg.Send.enabled() {
		signer, owner, err = keyring(cfg.Send.Key)
		if err != nil {
			return err
		}
		db.Watch(owner.Hash)
	}

	led := newLedger(db.Balance, blocksPerDay)
	led.known = db.HasTransaction
	chain, err := blockchain.New(blockchain.Config{
		Storage:   db,
		Validator: blockchain.NewHeaderValidator(params),
		Factory:   model.NewFactory(params),
		Listener:  led,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, err := loader.New(loader.Config{
		BlocksDir: cfg.BlocksDir,
		Params:    params,
		Chain:     chain,
		Recorder:  recorder{DB: db, ledger: led},
		Blocks:    db,
		MaxHeight: cfg.MaxHeight,
	})
	if err != nil {
		return err
	}
	err = l.Load(ctx)
	if err != nil {
		return err
	}

	tip, err := chain.Tip()
	if err != nil {
		return err
	}
	if tip != nil {
		logrus.Infof("loaded up to %s", tip)
	}
	led.report("after loading")
	if dropped := led.Dropped(); len(dropped) > 0 {
		logrus.Warnf("%d wallet transactions are no longer in the chain", len(dropped))
	}

	if cfg.Send.enabled() {
		destination, _ := decodeKeyHash(cfg.Send.To)
		raw, err := send(db, signer, owner, params, cfg.Send, destination)
		if err != nil {
			return err
		}
		fmt.Println(raw)
	}

	if cfg.Listen == "" {
		return nil
	}
	return server.New(cfg.Listen, db).Start(ctx)
}

func keyring(keyHex string) (*wallet.KeyringSigner, model.PublicKey, error) {
	b, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, model.PublicKey{}, errors.Wrap(err, "send.key")
	}
	if len(b) != 32 {
		return nil, model.PublicKey{}, errors.Newf("send.key must be 32 bytes, got %d", len(b))
	}
	signer := wallet.NewKeyringSigner()
	owner := signer.Add(secp256k1.PrivKeyFromBytes(b))
	return signer, owner, nil
}

// send builds and signs a payment from owner's coins, records it as unconfirmed so its
// inputs are not offered again, and returns the raw transaction hex.
func send(db *storage.DB, signer wallet.Signer, owner model.PublicKey, params *chaincfg.Params, opts sendConfig, destination []byte) (string, error) {
	builder, err := wallet.NewBuilder(wallet.Config{
		Selector: wallet.LargestFirstSelector{},
		Provider: db,
		Signer:   signer,
		Scripter: wallet.NewScriptBuilder(params),
		Factory:  model.NewFactory(params),
	})
	if err != nil {
		return "", err
	}

	tx, err := builder.BuildTransaction(opts.Amount, opts.FeeRate, model.P2PKH, owner, model.PublicKey{Hash: destination})
	if err != nil {
		return "", err
	}

	err = db.AddTransaction(*tx)
	if err != nil {
		builder.Release(tx)
		return "", err
	}

	var raw bytes.Buffer
	err = tx.MsgTx().Serialize(&raw)
	if err != nil {
		return "", errors.WithStack(err)
	}
	logrus.Infof("built %s paying %d to %x", tx.Hash, tx.Outputs[0].Value, destination)
	return hex.EncodeToString(raw.Bytes()), nil
}
