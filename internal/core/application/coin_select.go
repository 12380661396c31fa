package application

import (
	"strings"

	"github.com/ark-network/ark-wallet-api/internal/core/domain"
	"golang.org/x/exp/slices"
)

type CoinSelection struct {
	Selected []domain.VirtualOutpoint
	Total    uint64
	Change   uint64
}

// SelectCoins returns the smallest set of vtxos covering amount. Coins are
// ordered by amount desc, expiry asc and outpoint, so the same candidates
// always produce the same selection. A non-zero change below dust is never
// returned: a same-size cover with exact or non-dust change is preferred,
// and if allowChange is set more coins are added until the change clears
// dust.
func SelectCoins(
	candidates []domain.VirtualOutpoint, amount, dust uint64, allowChange bool,
) (*CoinSelection, error) {
	if amount <= 0 {
		return nil, domain.NewBelowDustError("amount", amount, dust)
	}

	sorted := append([]domain.VirtualOutpoint(nil), candidates...)
	slices.SortStableFunc(sorted, compareCoins)

	available := uint64(0)
	for _, coin := range sorted {
		available += coin.Amount
	}
	if available < amount {
		return nil, &domain.InsufficientFundsError{Available: available, Required: amount}
	}

	selected := make([]domain.VirtualOutpoint, 0)
	total := uint64(0)
	notSelected := sorted
	for len(notSelected) > 0 && total < amount {
		selected = append(selected, notSelected[0])
		total += notSelected[0].Amount
		notSelected = notSelected[1:]
	}

	if validChange(total-amount, dust) {
		return newCoinSelection(selected, total, amount), nil
	}

	if swapped, swappedTotal, ok := swapForValidChange(
		selected, notSelected, total, amount, dust,
	); ok {
		return newCoinSelection(swapped, swappedTotal, amount), nil
	}

	if !allowChange {
		return nil, domain.NewBelowDustError("change", total-amount, dust)
	}

	for len(notSelected) > 0 && !validChange(total-amount, dust) {
		selected = append(selected, notSelected[0])
		total += notSelected[0].Amount
		notSelected = notSelected[1:]
	}
	if !validChange(total-amount, dust) {
		return nil, domain.NewBelowDustError("change", total-amount, dust)
	}

	return newCoinSelection(selected, total, amount), nil
}

// swapForValidChange replaces one selected coin with a not selected one so
// that the selection still covers amount with exact or non-dust change.
// Selected coins are tried from the last one, candidates in sorted order.
func swapForValidChange(
	selected, notSelected []domain.VirtualOutpoint, total, amount, dust uint64,
) ([]domain.VirtualOutpoint, uint64, bool) {
	for i := len(selected) - 1; i >= 0; i-- {
		for _, candidate := range notSelected {
			newTotal := total - selected[i].Amount + candidate.Amount
			if newTotal < amount || !validChange(newTotal-amount, dust) {
				continue
			}

			swapped := append([]domain.VirtualOutpoint(nil), selected...)
			swapped[i] = candidate
			slices.SortStableFunc(swapped, compareCoins)
			return swapped, newTotal, true
		}
	}
	return nil, 0, false
}

func validChange(change, dust uint64) bool {
	return change == 0 || change >= dust
}

func newCoinSelection(selected []domain.VirtualOutpoint, total, amount uint64) *CoinSelection {
	return &CoinSelection{
		Selected: selected,
		Total:    total,
		Change:   total - amount,
	}
}

func compareCoins(a, b domain.VirtualOutpoint) int {
	if a.Amount != b.Amount {
		if a.Amount > b.Amount {
			return -1
		}
		return 1
	}
	if !a.ExpiresAt.Equal(b.ExpiresAt) {
		if a.ExpiresAt.Before(b.ExpiresAt) {
			return -1
		}
		return 1
	}
	return strings.Compare(a.Outpoint.String(), b.Outpoint.String())
}
