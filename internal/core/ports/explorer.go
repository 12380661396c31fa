package ports

import (
	"context"

	"github.com/ark-network/ark-wallet-api/internal/core/domain"
)

type Explorer interface {
	// FindOutpoints returns every output ever paid to the address, with
	// confirmation and spent status
	FindOutpoints(ctx context.Context, address string) ([]domain.ExplorerUtxo, error)
	BaseURL() string
}

type Faucet interface {
	Fund(ctx context.Context, address string, amount float64) (txid, output string, err error)
}
