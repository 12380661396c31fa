package application

import (
	"context"

	"github.com/ark-network/ark-wallet-api/internal/core/domain"
)

type Service interface {
	CreateWallet(ctx context.Context) (string, error)
	GetAddress(ctx context.Context, walletID string) (*WalletAddress, error)
	GetBalance(ctx context.Context, walletID string) (*WalletBalance, error)
	// Settle moves every spendable vtxo and boarding utxo of the wallet into
	// a new vtxo owned by toAddress, the wallet's own address if empty
	Settle(ctx context.Context, walletID, toAddress string) (*RoundResult, error)
	SendToArkAddress(ctx context.Context, walletID, address string, amount uint64) (string, error)
	Faucet(ctx context.Context, address string, amount float64) (*FaucetResult, error)
	GetHistory(ctx context.Context, walletID string) ([]domain.Settlement, error)
	GetInfo(ctx context.Context) domain.ServerInfo
	Close()
}

type WalletAddress struct {
	WalletID        string
	OnchainAddress  string
	OffchainAddress string
}

type WalletBalance struct {
	WalletID string
	Offchain OffchainBalance
	Boarding BoardingBalance
}

type OffchainBalance struct {
	Spendable uint64
	Expired   uint64
}

type BoardingBalance struct {
	Spendable uint64
	Expired   uint64
	Pending   uint64
}

type FaucetResult struct {
	Address string
	Amount  float64
	Txid    string
	Output  string
}
