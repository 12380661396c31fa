package domain

import "context"

type SettlementKind string

const (
	SettlementKindRound  SettlementKind = "settle"
	SettlementKindRedeem SettlementKind = "send"
)

type SettlementStatus string

const (
	SettlementStatusFinalized SettlementStatus = "finalized"
	SettlementStatusNoop      SettlementStatus = "noop"
	SettlementStatusFailed    SettlementStatus = "failed"
)

// Settlement is the record of one settle or send request outcome
type Settlement struct {
	WalletID  string
	Kind      SettlementKind
	Status    SettlementStatus
	Txid      string
	Amount    uint64
	Error     string
	CreatedAt int64
}

type SettlementRepository interface {
	Add(ctx context.Context, settlement Settlement) error
	// GetByWallet returns the settlements of the wallet, newest first
	GetByWallet(ctx context.Context, walletID string) ([]Settlement, error)
	Close()
}
