package wallet

import (
	"github.com/OdyseeTeam/fast-wallet/model"

	"github.com/cockroachdb/errors"
	"github.com/lbryio/lbcd/chaincfg"
	"github.com/lbryio/lbcd/txscript"
	"github.com/lbryio/lbcutil"
)

// ScriptBuilder encodes locking scripts for key hashes and unlocking scripts for
// signature data.
type ScriptBuilder struct {
	params *chaincfg.Params
}

func NewScriptBuilder(params *chaincfg.Params) *ScriptBuilder {
	if params == nil {
		params = &chaincfg.MainNetParams
	}
	return &ScriptBuilder{params: params}
}

func (s *ScriptBuilder) Address(scriptType model.ScriptType, keyHash []byte) (lbcutil.Address, error) {
	var addr lbcutil.Address
	var err error
	switch scriptType {
	case model.P2PKH:
		addr, err = lbcutil.NewAddressPubKeyHash(keyHash, s.params)
	case model.P2SH:
		addr, err = lbcutil.NewAddressScriptHashFromHash(keyHash, s.params)
	case model.P2WPKH:
		addr, err = lbcutil.NewAddressWitnessPubKeyHash(keyHash, s.params)
	default:
		return nil, errors.Wrapf(model.ErrUnsupportedScriptType, "cannot lock to %s", scriptType)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return addr, nil
}

func (s *ScriptBuilder) LockingScript(scriptType model.ScriptType, keyHash []byte) (model.Script, error) {
	addr, err := s.Address(scriptType, keyHash)
	if err != nil {
		return nil, err
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return script, nil
}

// UnlockingScript pushes each element of params, in order.
func (s *ScriptBuilder) UnlockingScript(params [][]byte) (model.Script, error) {
	b := txscript.NewScriptBuilder()
	for _, p := range params {
		b.AddData(p)
	}
	script, err := b.Script()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return script, nil
}
