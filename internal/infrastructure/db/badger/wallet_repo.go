package badgerdb

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ark-network/ark-wallet-api/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
	"golang.org/x/exp/slices"
)

const walletStoreDir = "wallets"

type walletRepository struct {
	store  *badgerhold.Store
	stopGC func()
}

type walletDTO struct {
	ID              string `badgerhold:"key"`
	PubKey          string
	EncryptedPrvkey []byte
	CreatedAt       int64 `badgerhold:"index"`
}

func NewWalletRepository(config ...interface{}) (domain.WalletRepository, error) {
	baseDir, logger, err := parseConfig(config)
	if err != nil {
		return nil, err
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, walletStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open wallet store: %s", err)
	}

	stopGC := func() {}
	if len(dir) > 0 {
		stopGC = startGC(store, logger)
	}

	return &walletRepository{store, stopGC}, nil
}

func (r *walletRepository) Add(_ context.Context, wallet domain.Wallet) error {
	dto := walletDTO(wallet)

	err := withRetry(func() error {
		return r.store.Insert(dto.ID, dto)
	})
	if errors.Is(err, badgerhold.ErrKeyExists) {
		return fmt.Errorf("wallet %s already exists", wallet.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to add wallet: %w", err)
	}
	return nil
}

func (r *walletRepository) Get(_ context.Context, id string) (*domain.Wallet, error) {
	var dto walletDTO
	if err := r.store.Get(id, &dto); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrWalletNotFound, id)
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	wallet := domain.Wallet(dto)
	return &wallet, nil
}

func (r *walletRepository) List(_ context.Context) ([]domain.Wallet, error) {
	var dtos []walletDTO
	if err := r.store.Find(&dtos, nil); err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	slices.SortStableFunc(dtos, func(a, b walletDTO) int {
		if a.CreatedAt != b.CreatedAt {
			return cmp.Compare(a.CreatedAt, b.CreatedAt)
		}
		return strings.Compare(a.ID, b.ID)
	})

	wallets := make([]domain.Wallet, 0, len(dtos))
	for _, dto := range dtos {
		wallets = append(wallets, domain.Wallet(dto))
	}
	return wallets, nil
}

func (r *walletRepository) Close() {
	r.stopGC()
	// nolint:all
	r.store.Close()
}
