package blockchain

import (
	"time"

	"github.com/OdyseeTeam/fast-wallet/model"

	"github.com/cockroachdb/errors"
	lbcdchain "github.com/lbryio/lbcd/blockchain"
	"github.com/lbryio/lbcd/chaincfg"
)

const maxTimeDrift = 2 * time.Hour

// HeaderValidator checks what a header-only client can check: linkage, height, the
// encoded target against the network's proof-of-work limit and the timestamp.
type HeaderValidator struct {
	Params *chaincfg.Params
	Now    func() time.Time
}

func NewHeaderValidator(params *chaincfg.Params) *HeaderValidator {
	return &HeaderValidator{Params: params, Now: time.Now}
}

func (v *HeaderValidator) Validate(block, previous model.Block) error {
	if block.PrevHash != previous.Hash {
		return errors.Wrapf(ErrValidationFailed, "previous hash %s does not match %s", block.PrevHash, previous.Hash)
	}
	if block.Height != previous.Height+1 {
		return errors.Wrapf(ErrValidationFailed, "height %d does not follow %d", block.Height, previous.Height)
	}

	target := lbcdchain.CompactToBig(block.Bits)
	if target.Sign() <= 0 {
		return errors.Wrapf(ErrValidationFailed, "target %064x is not positive", target)
	}
	if v.Params != nil && target.Cmp(v.Params.PowLimit) > 0 {
		return errors.Wrapf(ErrValidationFailed, "target %064x is above the pow limit %064x", target, v.Params.PowLimit)
	}

	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	if block.Timestamp.After(now().Add(maxTimeDrift)) {
		return errors.Wrapf(ErrValidationFailed, "timestamp %s is too far in the future", block.Timestamp)
	}

	return nil
}
