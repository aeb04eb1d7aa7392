package wallet

import (
	"sync"

	"github.com/OdyseeTeam/fast-wallet/model"

	"github.com/cockroachdb/errors"
	"github.com/lbryio/lbcd/chaincfg/chainhash"
	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrInvalidFeeRate          = errors.New("fee rate must be positive")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrInsufficientValueForFee = errors.New("value does not cover the fee")
	ErrSigningFailure          = errors.New("signing failed")
)

const (
	txVersion  = 1
	txLockTime = 0
	txSequence = 0
)

type Selector interface {
	// Select returns a subset of candidates worth at least target, or ErrInsufficientFunds.
	Select(target int64, candidates []model.UnspentOutput) ([]model.UnspentOutput, error)
}

type Provider interface {
	AllUnspentOutputs() ([]model.UnspentOutput, error)
}

type Signer interface {
	SignatureData(tx *SealedTx, index int) ([][]byte, error)
}

type Scripter interface {
	LockingScript(scriptType model.ScriptType, keyHash []byte) (model.Script, error)
	UnlockingScript(params [][]byte) (model.Script, error)
}

type Factory interface {
	Transaction(version int32, lockTime uint32) model.Transaction
	Input(prevHash chainhash.Hash, prevIndex uint32, script model.Script, sequence uint32) model.Input
	Output(value int64, index int, lockingScript model.Script, scriptType model.ScriptType, keyHash []byte) (model.Output, error)
}

type Config struct {
	Selector Selector
	Provider Provider
	Signer   Signer
	Scripter Scripter
	Factory  Factory
}

// Builder assembles and signs spending transactions. Coins picked for a transaction
// stay reserved so a concurrent build cannot pick them again.
type Builder struct {
	mu       sync.Mutex
	reserved map[string]struct{}

	selector Selector
	provider Provider
	signer   Signer
	scripter Scripter
	factory  Factory
}

func NewBuilder(config Config) (*Builder, error) {
	switch {
	case config.Selector == nil:
		return nil, errors.New("builder needs a selector")
	case config.Provider == nil:
		return nil, errors.New("builder needs a provider")
	case config.Signer == nil:
		return nil, errors.New("builder needs a signer")
	case config.Scripter == nil:
		return nil, errors.New("builder needs a script builder")
	case config.Factory == nil:
		return nil, errors.New("builder needs a factory")
	}
	return &Builder{
		reserved: make(map[string]struct{}),
		selector: config.Selector,
		provider: config.Provider,
		signer:   config.Signer,
		scripter: config.Scripter,
		factory:  config.Factory,
	}, nil
}

// BuildTransaction pays value to destinationKey. The fee is taken out of value; what
// the selected coins hold beyond value goes back to changeKey unless it is worth less
// than the output that would carry it, in which case it goes to the fee.
func (b *Builder) BuildTransaction(value, feeRate int64, scriptType model.ScriptType, changeKey, destinationKey model.PublicKey) (*model.Transaction, error) {
	if value <= 0 {
		return nil, errors.Wrapf(ErrInvalidAmount, "value %d", value)
	}
	if feeRate <= 0 {
		return nil, errors.Wrapf(ErrInvalidFeeRate, "fee rate %d", feeRate)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	candidates, err := b.provider.AllUnspentOutputs()
	if err != nil {
		return nil, errors.Wrap(err, "listing unspent outputs")
	}
	candidates = b.unreserved(candidates)

	selected, err := b.selector.Select(value, candidates)
	if err != nil {
		return nil, err
	}

	unsigned := &unsignedTx{tx: b.factory.Transaction(txVersion, txLockTime)}
	var totalInput int64
	for _, utxo := range selected {
		unsigned.addInput(b.factory.Input(utxo.TransactionHash, uint32(utxo.Index), nil, txSequence), utxo)
		totalInput += utxo.Value
	}
	if len(selected) == 0 || totalInput < value {
		return nil, errors.Wrapf(ErrInsufficientFunds, "selected %d for a %d payment", totalInput, value)
	}

	destination, err := b.output(0, 0, destinationKey, scriptType)
	if err != nil {
		return nil, err
	}
	unsigned.addOutput(destination)

	fee := EstimateFee(unsigned.size(), len(selected), feeRate)
	if fee >= value {
		return nil, errors.Wrapf(ErrInsufficientValueForFee, "fee %d, value %d", fee, value)
	}
	unsigned.setOutputValue(0, value-fee)

	remainder := totalInput - value
	if remainder > FeePerOutput(feeRate) {
		change, err := b.output(remainder, 1, changeKey, scriptType)
		if err != nil {
			return nil, err
		}
		unsigned.addOutput(change)
	}

	sealed := unsigned.seal()
	for i := 0; i < sealed.NumInputs(); i++ {
		params, err := b.signer.SignatureData(sealed, i)
		if err != nil {
			if !errors.Is(err, ErrSigningFailure) && !errors.Is(err, model.ErrUnsupportedScriptType) {
				err = errors.Mark(err, ErrSigningFailure)
			}
			return nil, errors.Wrapf(err, "signing input %d", i)
		}
		script, err := b.scripter.UnlockingScript(params)
		if err != nil {
			return nil, errors.Wrapf(err, "unlocking script for input %d", i)
		}
		sealed.setUnlockingScript(i, script)
	}

	tx := sealed.Transaction()
	for _, utxo := range selected {
		b.reserved[utxo.Outpoint()] = struct{}{}
	}
	logrus.Debugf("built %s: %d inputs, %d outputs, fee %d", tx.Hash, len(tx.Inputs), len(tx.Outputs), totalInput-tx.OutputValue())

	return &tx, nil
}

// Release returns the coins tx spends to the pool, for a transaction that will not be
// broadcast.
func (b *Builder) Release(tx *model.Transaction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, in := range tx.Inputs {
		delete(b.reserved, in.Outpoint())
	}
}

// unreserved drops reserved coins from candidates. Reservations for coins the provider
// no longer reports are forgotten.
func (b *Builder) unreserved(candidates []model.UnspentOutput) []model.UnspentOutput {
	still := make(map[string]struct{}, len(b.reserved))
	var free []model.UnspentOutput
	for _, c := range candidates {
		op := c.Outpoint()
		if _, ok := b.reserved[op]; ok {
			still[op] = struct{}{}
			continue
		}
		free = append(free, c)
	}
	b.reserved = still
	return free
}

func (b *Builder) output(value int64, index int, key model.PublicKey, scriptType model.ScriptType) (model.Output, error) {
	script, err := b.scripter.LockingScript(scriptType, key.Hash)
	if err != nil {
		return model.Output{}, err
	}
	return b.factory.Output(value, index, script, scriptType, key.Hash)
}
