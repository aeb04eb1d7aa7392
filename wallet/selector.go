package wallet

import (
	"sort"

	"github.com/OdyseeTeam/fast-wallet/model"

	"github.com/cockroachdb/errors"
)

// LargestFirstSelector spends the biggest coins first, which keeps the input count
// (and so the fee) low.
type LargestFirstSelector struct{}

func (LargestFirstSelector) Select(target int64, candidates []model.UnspentOutput) ([]model.UnspentOutput, error) {
	sorted := append([]model.UnspentOutput(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Value > sorted[j].Value
	})

	var total int64
	for i, u := range sorted {
		total += u.Value
		if total >= target {
			return sorted[:i+1], nil
		}
	}
	return nil, errors.Wrapf(ErrInsufficientFunds, "need %d, have %d", target, total)
}
