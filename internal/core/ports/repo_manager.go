package ports

import "github.com/ark-network/ark-wallet-api/internal/core/domain"

type RepoManager interface {
	Wallets() domain.WalletRepository
	Settlements() domain.SettlementRepository
	Close()
}
