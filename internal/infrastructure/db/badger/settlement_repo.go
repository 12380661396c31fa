package badgerdb

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ark-network/ark-wallet-api/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const settlementStoreDir = "settlements"

type settlementRepository struct {
	store  *badgerhold.Store
	stopGC func()
}

type settlementDTO struct {
	WalletID   string `badgerhold:"index"`
	Kind       string
	Status     string
	Txid       string
	Amount     uint64
	Error      string
	CreatedAt  int64
	RecordedAt int64
}

func NewSettlementRepository(config ...interface{}) (domain.SettlementRepository, error) {
	baseDir, logger, err := parseConfig(config)
	if err != nil {
		return nil, err
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, settlementStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open settlement store: %s", err)
	}

	stopGC := func() {}
	if len(dir) > 0 {
		stopGC = startGC(store, logger)
	}

	return &settlementRepository{store, stopGC}, nil
}

func (r *settlementRepository) Add(_ context.Context, settlement domain.Settlement) error {
	dto := settlementDTO{
		WalletID:   settlement.WalletID,
		Kind:       string(settlement.Kind),
		Status:     string(settlement.Status),
		Txid:       settlement.Txid,
		Amount:     settlement.Amount,
		Error:      settlement.Error,
		CreatedAt:  settlement.CreatedAt,
		RecordedAt: time.Now().UnixNano(),
	}

	if err := withRetry(func() error {
		return r.store.Insert(badgerhold.NextSequence(), dto)
	}); err != nil {
		return fmt.Errorf("failed to add settlement: %w", err)
	}
	return nil
}

func (r *settlementRepository) GetByWallet(_ context.Context, walletID string) ([]domain.Settlement, error) {
	var dtos []settlementDTO
	query := badgerhold.Where("WalletID").Eq(walletID).Index("WalletID").SortBy("RecordedAt").Reverse()
	if err := r.store.Find(&dtos, query); err != nil {
		return nil, fmt.Errorf("failed to get settlements: %w", err)
	}

	settlements := make([]domain.Settlement, 0, len(dtos))
	for _, dto := range dtos {
		settlements = append(settlements, domain.Settlement{
			WalletID:  dto.WalletID,
			Kind:      domain.SettlementKind(dto.Kind),
			Status:    domain.SettlementStatus(dto.Status),
			Txid:      dto.Txid,
			Amount:    dto.Amount,
			Error:     dto.Error,
			CreatedAt: dto.CreatedAt,
		})
	}
	return settlements, nil
}

func (r *settlementRepository) Close() {
	r.stopGC()
	// nolint:all
	r.store.Close()
}
