package ports

import (
	"context"

	"github.com/ark-network/ark-wallet-api/common/tree"
	"github.com/ark-network/ark-wallet-api/internal/core/domain"
)

// TransportClient is the client side of the server RPC surface. Malformed
// responses are reported as domain.ErrConversion, callers treat any other
// failure as a network error.
type TransportClient interface {
	GetInfo(ctx context.Context) (*domain.ServerInfo, error)
	ListVtxos(ctx context.Context, addr string) (spendable, spent []domain.Vtxo, err error)
	RegisterInputsForNextRound(ctx context.Context, inputs []domain.RoundInput) (string, error)
	RegisterOutputsForNextRound(
		ctx context.Context, paymentID string, outputs []domain.RoundOutput,
		cosignersPubkeys []string, ephemeral bool,
	) error
	Ping(ctx context.Context, paymentID string) error
	// GetEventStream returns the ordered stream of round events and a
	// function closing it
	GetEventStream(ctx context.Context) (<-chan domain.RoundEventChannel, func(), error)
	SubmitTreeNonces(ctx context.Context, roundID, cosignerPubkey string, nonces tree.TreeNonces) error
	SubmitTreeSignatures(ctx context.Context, roundID, cosignerPubkey string, signatures tree.TreePartialSigs) error
	SubmitSignedForfeitTxs(ctx context.Context, signedForfeitTxs []string, signedRoundTx string) error
	SubmitRedeemTx(ctx context.Context, redeemTx string) (signedRedeemTx, txid string, err error)
	Close()
}
