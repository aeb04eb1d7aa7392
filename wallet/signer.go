package wallet

import (
	"encoding/hex"
	"sync"

	"github.com/OdyseeTeam/fast-wallet/model"

	"github.com/cockroachdb/errors"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/lbryio/lbcd/txscript"
)

// KeyringSigner signs pay-to-pubkey-hash inputs with the private keys it holds.
type KeyringSigner struct {
	mu   sync.RWMutex
	keys map[string]*secp256k1.PrivateKey // by hex hash160 of the compressed public key
}

func NewKeyringSigner(keys ...*secp256k1.PrivateKey) *KeyringSigner {
	k := &KeyringSigner{keys: make(map[string]*secp256k1.PrivateKey)}
	for _, key := range keys {
		k.Add(key)
	}
	return k
}

// Add stores key and returns its public key.
func (k *KeyringSigner) Add(key *secp256k1.PrivateKey) model.PublicKey {
	pub := model.NewPublicKey(key.PubKey().SerializeCompressed())
	k.mu.Lock()
	k.keys[hex.EncodeToString(pub.Hash)] = key
	k.mu.Unlock()
	return pub
}

func (k *KeyringSigner) PublicKeys() []model.PublicKey {
	k.mu.RLock()
	defer k.mu.RUnlock()
	var pubs []model.PublicKey
	for _, key := range k.keys {
		pubs = append(pubs, model.NewPublicKey(key.PubKey().SerializeCompressed()))
	}
	return pubs
}

// SignatureData returns the signature and public key that unlock input index.
func (k *KeyringSigner) SignatureData(tx *SealedTx, index int) ([][]byte, error) {
	prev := tx.PreviousOutput(index)
	if prev.Type != model.P2PKH {
		return nil, errors.Wrapf(model.ErrUnsupportedScriptType, "cannot sign %s input %d", prev.Type, index)
	}

	k.mu.RLock()
	key, ok := k.keys[hex.EncodeToString(prev.KeyHash)]
	k.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrSigningFailure, "no key for %x", prev.KeyHash)
	}

	hash, err := txscript.CalcSignatureHash(prev.Script, txscript.SigHashAll, tx.MsgTx(), index)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "input %d", index), ErrSigningFailure)
	}
	sig := ecdsa.Sign(key, hash).Serialize()

	return [][]byte{
		append(sig, byte(txscript.SigHashAll)),
		key.PubKey().SerializeCompressed(),
	}, nil
}
