package main

import (
	"encoding/hex"

	"github.com/cockroachdb/errors"
	"github.com/jessevdk/go-flags"
	"github.com/lbryio/lbcd/chaincfg"
	"github.com/sirupsen/logrus"
)

const (
	defaultDBPath  = "wallet.db"
	defaultListen  = "127.0.0.1:8855"
	defaultFeeRate = 10
)

type config struct {
	BlocksDir  string   `long:"blocksdir" description:"lbrycrd blocks directory (the one holding blk*.dat and index/)" required:"true"`
	DBPath     string   `long:"db" description:"wallet database path, or :memory:"`
	Network    string   `long:"network" description:"network the blocks belong to" choice:"mainnet" choice:"testnet" choice:"regtest" default:"mainnet"`
	MaxHeight  int      `long:"maxheight" description:"stop loading at this height (0 = load everything)"`
	Watch      []string `long:"watch" description:"hex hash160 of a key whose payments are tracked; repeat for more keys"`
	Listen     string   `long:"listen" description:"HTTP address for the read API; empty disables it"`
	LogLevel   string   `long:"loglevel" description:"logrus level" default:"info"`
	MemProfile bool     `long:"memprofile" description:"write a memory profile to the working directory"`

	Send sendConfig `group:"Send" namespace:"send"`
}

type sendConfig struct {
	Key     string `long:"key" description:"hex private key that owns the coins to spend"`
	To      string `long:"to" description:"hex hash160 of the destination key"`
	Amount  int64  `long:"amount" description:"amount in deweys, fee included"`
	FeeRate int64  `long:"feerate" description:"deweys per byte"`
}

func (c sendConfig) enabled() bool {
	return c.To != ""
}

func loadConfig(args []string) (*config, error) {
	cfg := &config{
		DBPath: defaultDBPath,
		Listen: defaultListen,
		Send:   sendConfig{FeeRate: defaultFeeRate},
	}

	parser := flags.NewParser(cfg, flags.PrintErrors|flags.HelpFlag)
	_, err := parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "loglevel")
	}
	logrus.SetLevel(level)

	for _, w := range cfg.Watch {
		if _, err := decodeKeyHash(w); err != nil {
			return nil, errors.Wrapf(err, "watch %s", w)
		}
	}
	if cfg.Send.enabled() {
		if cfg.Send.Key == "" {
			return nil, errors.New("--send.to needs --send.key")
		}
		if _, err := decodeKeyHash(cfg.Send.To); err != nil {
			return nil, errors.Wrap(err, "send.to")
		}
	}

	return cfg, nil
}

func (c *config) params() *chaincfg.Params {
	switch c.Network {
	case "testnet":
		return &chaincfg.TestNet3Params
	case "regtest":
		return &chaincfg.RegressionNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

func decodeKeyHash(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(b) != 20 {
		return nil, errors.Newf("key hash must be 20 bytes, got %d", len(b))
	}
	return b, nil
}
