package inmemorydb

import (
	"context"
	"sync"

	"github.com/ark-network/ark-wallet-api/internal/core/domain"
)

type settlementRepository struct {
	lock        *sync.RWMutex
	settlements map[string][]domain.Settlement
}

func NewSettlementRepository(_ ...interface{}) (domain.SettlementRepository, error) {
	return &settlementRepository{&sync.RWMutex{}, make(map[string][]domain.Settlement)}, nil
}

func (r *settlementRepository) Add(_ context.Context, settlement domain.Settlement) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.settlements[settlement.WalletID] = append(r.settlements[settlement.WalletID], settlement)
	return nil
}

func (r *settlementRepository) GetByWallet(_ context.Context, walletID string) ([]domain.Settlement, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	stored := r.settlements[walletID]
	settlements := make([]domain.Settlement, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		settlements = append(settlements, stored[i])
	}
	return settlements, nil
}

func (r *settlementRepository) Close() {}
