package wallet

import (
	"bytes"
	"testing"

	"github.com/OdyseeTeam/fast-wallet/model"

	"github.com/cockroachdb/errors"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/lbryio/lbcd/chaincfg"
	"github.com/lbryio/lbcd/chaincfg/chainhash"
	"github.com/lbryio/lbcd/txscript"
	"github.com/stretchr/testify/require"
)

type staticProvider struct {
	utxos []model.UnspentOutput
	err   error
}

func (p *staticProvider) AllUnspentOutputs() ([]model.UnspentOutput, error) {
	return p.utxos, p.err
}

type failingSigner struct{ err error }

func (s failingSigner) SignatureData(*SealedTx, int) ([][]byte, error) { return nil, s.err }

type fixture struct {
	params   *chaincfg.Params
	scripts  *ScriptBuilder
	signer   *KeyringSigner
	owner    model.PublicKey
	payee    model.PublicKey
	provider *staticProvider
	builder  *Builder
}

func privateKey(seed byte) *secp256k1.PrivateKey {
	return secp256k1.PrivKeyFromBytes(bytes.Repeat([]byte{seed}, 32))
}

func newFixture(t *testing.T, values ...int64) *fixture {
	t.Helper()
	f := &fixture{
		params:   &chaincfg.RegressionNetParams,
		signer:   NewKeyringSigner(),
		provider: &staticProvider{},
	}
	f.scripts = NewScriptBuilder(f.params)
	f.owner = f.signer.Add(privateKey(1))
	f.payee = model.NewPublicKey(privateKey(2).PubKey().SerializeCompressed())

	for i, v := range values {
		f.provider.utxos = append(f.provider.utxos, f.utxo(t, byte(i+1), v))
	}

	var err error
	f.builder, err = NewBuilder(Config{
		Selector: LargestFirstSelector{},
		Provider: f.provider,
		Signer:   f.signer,
		Scripter: f.scripts,
		Factory:  model.NewFactory(f.params),
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) utxo(t *testing.T, seed byte, value int64) model.UnspentOutput {
	script, err := f.scripts.LockingScript(model.P2PKH, f.owner.Hash)
	require.NoError(t, err)
	var hash chainhash.Hash
	hash[0] = seed
	return model.UnspentOutput{
		Output: model.Output{
			Value:   value,
			Index:   int(seed % 3),
			Script:  script,
			Type:    model.P2PKH,
			KeyHash: f.owner.Hash,
		},
		TransactionHash: hash,
	}
}

// verify runs every input of tx through the script engine against the outputs it spends.
func (f *fixture) verify(t *testing.T, tx *model.Transaction) {
	t.Helper()
	byOutpoint := make(map[string]model.UnspentOutput)
	for _, u := range f.provider.utxos {
		byOutpoint[u.Outpoint()] = u
	}
	msg := tx.MsgTx()
	for i, in := range tx.Inputs {
		prev, ok := byOutpoint[in.Outpoint()]
		require.True(t, ok, "input %d spends unknown %s", i, in.Outpoint())
		vm, err := txscript.NewEngine(prev.Script, msg, i, txscript.StandardVerifyFlags, nil, nil, prev.Value)
		require.NoError(t, err)
		require.NoError(t, vm.Execute(), "input %d", i)
	}
}

func TestBuildTransactionWithChange(t *testing.T) {
	f := newFixture(t, 150000)

	tx, err := f.builder.BuildTransaction(100000, 10, model.P2PKH, f.owner, f.payee)
	require.NoError(t, err)

	require.EqualValues(t, 1, tx.Version)
	require.EqualValues(t, 0, tx.LockTime)
	require.Len(t, tx.Inputs, 1)
	require.EqualValues(t, 0, tx.Inputs[0].Sequence)
	require.NotEmpty(t, tx.Inputs[0].Script)

	require.Len(t, tx.Outputs, 2)
	// 85 unsigned bytes plus 108 for the one signature, at 10 per byte.
	require.EqualValues(t, 100000-1930, tx.Outputs[0].Value)
	require.Equal(t, f.payee.Hash, tx.Outputs[0].KeyHash)
	require.EqualValues(t, 50000, tx.Outputs[1].Value)
	require.Equal(t, f.owner.Hash, tx.Outputs[1].KeyHash)
	require.Equal(t, tx.MsgTx().TxHash(), tx.Hash)

	f.verify(t, tx)
}

func TestBuildTransactionDustGoesToFee(t *testing.T) {
	f := newFixture(t, 100300)

	tx, err := f.builder.BuildTransaction(100000, 10, model.P2PKH, f.owner, f.payee)
	require.NoError(t, err)
	require.Len(t, tx.Outputs, 1)
	require.EqualValues(t, 98070, tx.Outputs[0].Value)

	f.verify(t, tx)
}

func TestBuildTransactionChangeAtThreshold(t *testing.T) {
	// A remainder equal to the cost of one output is still dust.
	f := newFixture(t, 100320)
	tx, err := f.builder.BuildTransaction(100000, 10, model.P2PKH, f.owner, f.payee)
	require.NoError(t, err)
	require.Len(t, tx.Outputs, 1)

	f = newFixture(t, 100321)
	tx, err = f.builder.BuildTransaction(100000, 10, model.P2PKH, f.owner, f.payee)
	require.NoError(t, err)
	require.Len(t, tx.Outputs, 2)
	require.EqualValues(t, 321, tx.Outputs[1].Value)
}

func TestBuildTransactionSeveralInputs(t *testing.T) {
	f := newFixture(t, 40000, 70000, 10000)

	tx, err := f.builder.BuildTransaction(100000, 1, model.P2PKH, f.owner, f.payee)
	require.NoError(t, err)
	require.Len(t, tx.Inputs, 2)

	var in int64
	for _, i := range tx.Inputs {
		for _, u := range f.provider.utxos {
			if u.Outpoint() == i.Outpoint() {
				in += u.Value
			}
		}
	}
	require.EqualValues(t, 110000, in)
	// 126 unsigned bytes plus two signatures.
	require.EqualValues(t, 100000-342, tx.Outputs[0].Value)
	require.EqualValues(t, 10000, tx.Outputs[1].Value)

	f.verify(t, tx)
}

func TestBuildTransactionInsufficientValueForFee(t *testing.T) {
	f := newFixture(t, 150000)

	_, err := f.builder.BuildTransaction(1000, 10, model.P2PKH, f.owner, f.payee)
	require.True(t, errors.Is(err, ErrInsufficientValueForFee), err)

	// A fee exactly equal to value is rejected too.
	_, err = f.builder.BuildTransaction(1930, 10, model.P2PKH, f.owner, f.payee)
	require.True(t, errors.Is(err, ErrInsufficientValueForFee), err)

	// Nothing was reserved by the failed builds.
	_, err = f.builder.BuildTransaction(1931, 10, model.P2PKH, f.owner, f.payee)
	require.NoError(t, err)
}

func TestBuildTransactionInsufficientFunds(t *testing.T) {
	f := newFixture(t, 500, 400)

	_, err := f.builder.BuildTransaction(1000, 1, model.P2PKH, f.owner, f.payee)
	require.True(t, errors.Is(err, ErrInsufficientFunds), err)

	empty := newFixture(t)
	_, err = empty.builder.BuildTransaction(1, 1, model.P2PKH, f.owner, f.payee)
	require.True(t, errors.Is(err, ErrInsufficientFunds), err)
}

func TestBuildTransactionInvalidArguments(t *testing.T) {
	f := newFixture(t, 150000)

	_, err := f.builder.BuildTransaction(0, 10, model.P2PKH, f.owner, f.payee)
	require.True(t, errors.Is(err, ErrInvalidAmount), err)
	_, err = f.builder.BuildTransaction(-5, 10, model.P2PKH, f.owner, f.payee)
	require.True(t, errors.Is(err, ErrInvalidAmount), err)
	_, err = f.builder.BuildTransaction(1000, 0, model.P2PKH, f.owner, f.payee)
	require.True(t, errors.Is(err, ErrInvalidFeeRate), err)
}

func TestBuildTransactionUnsupportedScriptType(t *testing.T) {
	f := newFixture(t, 150000)

	_, err := f.builder.BuildTransaction(100000, 10, model.P2PK, f.owner, f.payee)
	require.True(t, errors.Is(err, model.ErrUnsupportedScriptType), err)
}

func TestBuildTransactionMissingKey(t *testing.T) {
	f := newFixture(t, 150000)
	f.builder.signer = NewKeyringSigner(privateKey(9))

	_, err := f.builder.BuildTransaction(100000, 10, model.P2PKH, f.owner, f.payee)
	require.True(t, errors.Is(err, ErrSigningFailure), err)
}

func TestBuildTransactionSignerErrorsAreMarked(t *testing.T) {
	f := newFixture(t, 150000)
	f.builder.signer = failingSigner{err: errors.New("hardware wallet unplugged")}

	_, err := f.builder.BuildTransaction(100000, 10, model.P2PKH, f.owner, f.payee)
	require.True(t, errors.Is(err, ErrSigningFailure), err)
	require.Contains(t, err.Error(), "hardware wallet unplugged")
}

func TestBuildTransactionProviderError(t *testing.T) {
	f := newFixture(t)
	f.provider.err = errors.New("db closed")

	_, err := f.builder.BuildTransaction(100, 1, model.P2PKH, f.owner, f.payee)
	require.Error(t, err)
	require.Contains(t, err.Error(), "db closed")
}

func TestBuildTransactionReservesOutputs(t *testing.T) {
	f := newFixture(t, 150000, 120000)

	first, err := f.builder.BuildTransaction(100000, 10, model.P2PKH, f.owner, f.payee)
	require.NoError(t, err)
	second, err := f.builder.BuildTransaction(100000, 10, model.P2PKH, f.owner, f.payee)
	require.NoError(t, err)
	require.NotEqual(t, first.Inputs[0].Outpoint(), second.Inputs[0].Outpoint())

	_, err = f.builder.BuildTransaction(100000, 10, model.P2PKH, f.owner, f.payee)
	require.True(t, errors.Is(err, ErrInsufficientFunds), err)

	f.builder.Release(first)
	third, err := f.builder.BuildTransaction(100000, 10, model.P2PKH, f.owner, f.payee)
	require.NoError(t, err)
	require.Equal(t, first.Inputs[0].Outpoint(), third.Inputs[0].Outpoint())
}

func TestReservationsForgottenWhenSpent(t *testing.T) {
	f := newFixture(t, 150000)

	_, err := f.builder.BuildTransaction(100000, 10, model.P2PKH, f.owner, f.payee)
	require.NoError(t, err)
	require.Len(t, f.builder.reserved, 1)

	spent := f.provider.utxos
	f.provider.utxos = nil
	_, err = f.builder.BuildTransaction(100000, 10, model.P2PKH, f.owner, f.payee)
	require.True(t, errors.Is(err, ErrInsufficientFunds), err)
	require.Empty(t, f.builder.reserved)

	// The coin shows up again, e.g. after the spending transaction was dropped by a reorg.
	f.provider.utxos = spent
	_, err = f.builder.BuildTransaction(100000, 10, model.P2PKH, f.owner, f.payee)
	require.NoError(t, err)
}

func TestNewBuilderRequiresCollaborators(t *testing.T) {
	_, err := NewBuilder(Config{})
	require.Error(t, err)

	_, err = NewBuilder(Config{
		Selector: LargestFirstSelector{},
		Provider: &staticProvider{},
		Signer:   NewKeyringSigner(),
		Scripter: NewScriptBuilder(nil),
	})
	require.Error(t, err)
}
