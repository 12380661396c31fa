package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ark-network/ark-wallet-api/internal/core/domain"
)

const (
	insertWallet = `INSERT INTO wallet (id, pubkey, encrypted_prvkey, created_at) VALUES (?, ?, ?, ?)`
	selectWallet = `SELECT id, pubkey, encrypted_prvkey, created_at FROM wallet WHERE id = ?`
	listWallets  = `SELECT id, pubkey, encrypted_prvkey, created_at FROM wallet ORDER BY created_at, id`
)

type walletRepository struct {
	db *sql.DB
}

func NewWalletRepository(config ...interface{}) (domain.WalletRepository, error) {
	db, err := parseConfig(config)
	if err != nil {
		return nil, fmt.Errorf("cannot open wallet repository: %w", err)
	}
	return &walletRepository{db}, nil
}

func (r *walletRepository) Add(ctx context.Context, wallet domain.Wallet) error {
	return execTx(ctx, r.db, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM wallet WHERE id = ?`, wallet.ID).Scan(&exists)
		if err != nil {
			return err
		}
		if exists > 0 {
			return fmt.Errorf("wallet %s already exists", wallet.ID)
		}

		_, err = tx.ExecContext(
			ctx, insertWallet, wallet.ID, wallet.PubKey, wallet.EncryptedPrvkey, wallet.CreatedAt,
		)
		return err
	})
}

func (r *walletRepository) Get(ctx context.Context, id string) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := r.db.QueryRowContext(ctx, selectWallet, id).Scan(
		&wallet.ID, &wallet.PubKey, &wallet.EncryptedPrvkey, &wallet.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrWalletNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) List(ctx context.Context) ([]domain.Wallet, error) {
	rows, err := r.db.QueryContext(ctx, listWallets)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	wallets := make([]domain.Wallet, 0)
	for rows.Next() {
		var wallet domain.Wallet
		if err := rows.Scan(
			&wallet.ID, &wallet.PubKey, &wallet.EncryptedPrvkey, &wallet.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to list wallets: %w", err)
		}
		wallets = append(wallets, wallet)
	}
	return wallets, rows.Err()
}

func (r *walletRepository) Close() {
	_ = r.db.Close()
}
