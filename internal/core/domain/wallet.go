package domain

import "context"

type Wallet struct {
	ID              string
	PubKey          string
	EncryptedPrvkey []byte
	CreatedAt       int64
}

type WalletRepository interface {
	Add(ctx context.Context, wallet Wallet) error
	// Get returns ErrWalletNotFound if there's no wallet for the given id
	Get(ctx context.Context, id string) (*Wallet, error)
	List(ctx context.Context) ([]Wallet, error)
	Close()
}
