package model

import (
	"encoding/hex"

	"github.com/cockroachdb/errors"
	"github.com/lbryio/lbcd/txscript"
)

var ErrUnsupportedScriptType = errors.New("unsupported script type")

type Script []byte

func (s Script) String() string { return hex.EncodeToString(s) }
func (s Script) Bytes() []byte  { return s }

func (s Script) Copy() Script {
	if s == nil {
		return nil
	}
	c := make(Script, len(s))
	copy(c, s)
	return c
}

type ScriptType int

const (
	ScriptTypeUnknown ScriptType = iota
	P2PKH
	P2PK
	P2SH
	P2WPKH
)

func (t ScriptType) String() string {
	switch t {
	case P2PKH:
		return "p2pkh"
	case P2PK:
		return "p2pk"
	case P2SH:
		return "p2sh"
	case P2WPKH:
		return "p2wpkh"
	default:
		return "unknown"
	}
}

// ParseScriptType is the inverse of ScriptType.String.
func ParseScriptType(s string) (ScriptType, error) {
	switch s {
	case "p2pkh":
		return P2PKH, nil
	case "p2pk":
		return P2PK, nil
	case "p2sh":
		return P2SH, nil
	case "p2wpkh":
		return P2WPKH, nil
	}
	return ScriptTypeUnknown, errors.Wrapf(ErrUnsupportedScriptType, "%q", s)
}

func scriptTypeOf(class txscript.ScriptClass) ScriptType {
	switch class {
	case txscript.PubKeyHashTy:
		return P2PKH
	case txscript.PubKeyTy:
		return P2PK
	case txscript.ScriptHashTy:
		return P2SH
	case txscript.WitnessV0PubKeyHashTy:
		return P2WPKH
	default:
		return ScriptTypeUnknown
	}
}
