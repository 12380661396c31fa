package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ark-network/ark-wallet-api/internal/core/domain"
)

const (
	insertSettlement = `INSERT INTO settlement (wallet_id, kind, status, txid, amount, error, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	selectSettlementsByWallet = `SELECT wallet_id, kind, status, txid, amount, error, created_at
FROM settlement WHERE wallet_id = ? ORDER BY created_at DESC, id DESC`
)

type settlementRepository struct {
	db *sql.DB
}

func NewSettlementRepository(config ...interface{}) (domain.SettlementRepository, error) {
	db, err := parseConfig(config)
	if err != nil {
		return nil, fmt.Errorf("cannot open settlement repository: %w", err)
	}
	return &settlementRepository{db}, nil
}

func (r *settlementRepository) Add(ctx context.Context, settlement domain.Settlement) error {
	if _, err := r.db.ExecContext(
		ctx, insertSettlement,
		settlement.WalletID,
		string(settlement.Kind),
		string(settlement.Status),
		settlement.Txid,
		int64(settlement.Amount),
		settlement.Error,
		settlement.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to add settlement: %w", err)
	}
	return nil
}

func (r *settlementRepository) GetByWallet(ctx context.Context, walletID string) ([]domain.Settlement, error) {
	rows, err := r.db.QueryContext(ctx, selectSettlementsByWallet, walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to get settlements: %w", err)
	}
	defer rows.Close()

	settlements := make([]domain.Settlement, 0)
	for rows.Next() {
		var (
			settlement   domain.Settlement
			kind, status string
			amount       int64
		)
		if err := rows.Scan(
			&settlement.WalletID, &kind, &status, &settlement.Txid,
			&amount, &settlement.Error, &settlement.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to get settlements: %w", err)
		}
		settlement.Kind = domain.SettlementKind(kind)
		settlement.Status = domain.SettlementStatus(status)
		settlement.Amount = uint64(amount)
		settlements = append(settlements, settlement)
	}
	return settlements, rows.Err()
}

func (r *settlementRepository) Close() {
	_ = r.db.Close()
}
