package inmemorydb

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ark-network/ark-wallet-api/internal/core/domain"
)

type walletRepository struct {
	lock    *sync.RWMutex
	wallets map[string]domain.Wallet
}

func NewWalletRepository(_ ...interface{}) (domain.WalletRepository, error) {
	return &walletRepository{&sync.RWMutex{}, make(map[string]domain.Wallet)}, nil
}

func (r *walletRepository) Add(_ context.Context, wallet domain.Wallet) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.wallets[wallet.ID]; ok {
		return fmt.Errorf("wallet %s already exists", wallet.ID)
	}
	r.wallets[wallet.ID] = wallet
	return nil
}

func (r *walletRepository) Get(_ context.Context, id string) (*domain.Wallet, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	wallet, ok := r.wallets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrWalletNotFound, id)
	}
	return &wallet, nil
}

func (r *walletRepository) List(_ context.Context) ([]domain.Wallet, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	wallets := make([]domain.Wallet, 0, len(r.wallets))
	for _, wallet := range r.wallets {
		wallets = append(wallets, wallet)
	}
	sort.SliceStable(wallets, func(i, j int) bool {
		if wallets[i].CreatedAt == wallets[j].CreatedAt {
			return wallets[i].ID < wallets[j].ID
		}
		return wallets[i].CreatedAt < wallets[j].CreatedAt
	})
	return wallets, nil
}

func (r *walletRepository) Close() {}
