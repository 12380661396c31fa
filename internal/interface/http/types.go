package httpservice

import (
	"encoding/hex"

	"github.com/ark-network/ark-wallet-api/internal/core/application"
	"github.com/ark-network/ark-wallet-api/internal/core/domain"
)

type createWalletResponse struct {
	WalletID string `json:"wallet_id"`
}

type getAddressResponse struct {
	WalletID        string `json:"wallet_id"`
	OnchainAddress  string `json:"onchain_address"`
	OffchainAddress string `json:"offchain_address"`
}

type offchainBalance struct {
	Spendable uint64 `json:"spendable"`
	Expired   uint64 `json:"expired"`
}

type boardingBalance struct {
	Spendable uint64 `json:"spendable"`
	Expired   uint64 `json:"expired"`
	Pending   uint64 `json:"pending"`
}

type getBalanceResponse struct {
	WalletID        string          `json:"wallet_id"`
	OffchainBalance offchainBalance `json:"offchain_balance"`
	BoardingBalance boardingBalance `json:"boarding_balance"`
}

type sendToArkAddressRequest struct {
	WalletID string `json:"wallet_id" binding:"required"`
	Address  string `json:"address" binding:"required"`
	Amount   uint64 `json:"amount" binding:"required"`
}

type sendToArkAddressResponse struct {
	WalletID  string `json:"wallet_id"`
	ToAddress string `json:"to_address"`
	Amount    uint64 `json:"amount"`
	Txid      string `json:"txid"`
}

type settleRequest struct {
	WalletID  string `json:"wallet_id" binding:"required"`
	ToAddress string `json:"to_address"`
}

type settleResponse struct {
	WalletID string `json:"wallet_id"`
	Success  bool   `json:"success"`
	Txid     string `json:"txid,omitempty"`
	Error    string `json:"error,omitempty"`
}

type faucetRequest struct {
	OnchainAddress string  `json:"onchain_address"`
	Amount         float64 `json:"amount"`
}

type faucetResponse struct {
	Success bool    `json:"success"`
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
	Txid    string  `json:"txid,omitempty"`
	Error   string  `json:"error,omitempty"`
	Output  string  `json:"output"`
}

type settlement struct {
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	Txid      string `json:"txid,omitempty"`
	Amount    uint64 `json:"amount"`
	Error     string `json:"error,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

type infoResponse struct {
	Version             string `json:"version"`
	Pubkey              string `json:"pubkey"`
	Network             string `json:"network"`
	Dust                uint64 `json:"dust"`
	VtxoTreeExpiry      string `json:"vtxo_tree_expiry"`
	UnilateralExitDelay string `json:"unilateral_exit_delay"`
	BoardingExitDelay   string `json:"boarding_exit_delay"`
	RoundInterval       int64  `json:"round_interval"`
	ForfeitAddress      string `json:"forfeit_address"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type walletBalance struct {
	*application.WalletBalance
}

func (b walletBalance) toResponse() getBalanceResponse {
	return getBalanceResponse{
		WalletID: b.WalletID,
		OffchainBalance: offchainBalance{
			Spendable: b.Offchain.Spendable,
			Expired:   b.Offchain.Expired,
		},
		BoardingBalance: boardingBalance{
			Spendable: b.Boarding.Spendable,
			Expired:   b.Boarding.Expired,
			Pending:   b.Boarding.Pending,
		},
	}
}

type settlementList []domain.Settlement

func (l settlementList) toResponse() []settlement {
	list := make([]settlement, 0, len(l))
	for _, s := range l {
		list = append(list, settlement{
			Kind:      string(s.Kind),
			Status:    string(s.Status),
			Txid:      s.Txid,
			Amount:    s.Amount,
			Error:     s.Error,
			CreatedAt: s.CreatedAt,
		})
	}
	return list
}

type serverInfo domain.ServerInfo

func (i serverInfo) toResponse() infoResponse {
	var pubkey string
	if i.PubKey != nil {
		pubkey = hex.EncodeToString(i.PubKey.SerializeCompressed())
	}

	return infoResponse{
		Version:             i.Version,
		Pubkey:              pubkey,
		Network:             i.Network.Name,
		Dust:                i.Dust,
		VtxoTreeExpiry:      i.VtxoTreeExpiry.String(),
		UnilateralExitDelay: i.UnilateralExitDelay.String(),
		BoardingExitDelay:   i.BoardingExitDelay.String(),
		RoundInterval:       i.RoundInterval,
		ForfeitAddress:      i.ForfeitAddress,
	}
}
