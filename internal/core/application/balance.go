package application

import (
	"github.com/ark-network/ark-wallet-api/common/tree"
	"github.com/ark-network/ark-wallet-api/internal/core/domain"
)

// ListVirtualOutpoints classifies the wallet vtxos at snapshot time: a vtxo
// is expired once its expiry time is reached and it hasn't been swept,
// spendable otherwise, unless it is spent.
func ListVirtualOutpoints(
	snapshot domain.ChainSnapshot, vtxoScript *tree.VtxoScript, vtxos []domain.Vtxo,
) domain.VirtualOutpoints {
	outpoints := domain.VirtualOutpoints{
		Spendable: make([]domain.VirtualOutpoint, 0),
		Expired:   make([]domain.VirtualOutpoint, 0),
		Settled:   make([]domain.VirtualOutpoint, 0),
	}

	now := snapshot.Now()
	for _, vtxo := range vtxos {
		out := domain.VirtualOutpoint{Vtxo: vtxo, VtxoScript: vtxoScript}

		switch {
		case vtxo.Spent || vtxo.Swept:
			outpoints.Settled = append(outpoints.Settled, out)
		case !vtxo.ExpiresAt.IsZero() && !now.Before(vtxo.ExpiresAt):
			outpoints.Expired = append(outpoints.Expired, out)
		default:
			outpoints.Spendable = append(outpoints.Spendable, out)
		}
	}

	return outpoints
}

// ListBoardingOutpoints classifies the utxos found at the boarding
// addresses: unconfirmed ones are pending, the ones whose exit delay is
// elapsed are expired, the others are spendable.
func ListBoardingOutpoints(
	snapshot domain.ChainSnapshot, boardingOutputs []domain.BoardingOutput,
) domain.BoardingOutpoints {
	outpoints := domain.BoardingOutpoints{
		Spendable: make([]domain.BoardingOutpoint, 0),
		Expired:   make([]domain.BoardingOutpoint, 0),
		Pending:   make([]domain.BoardingOutpoint, 0),
		Settled:   make([]domain.BoardingOutpoint, 0),
	}

	now := snapshot.Now()
	for _, output := range boardingOutputs {
		for _, utxo := range snapshot.Utxos(output.Address) {
			out := domain.BoardingOutpoint{ExplorerUtxo: utxo, Output: output}

			switch {
			case utxo.Spent:
				outpoints.Settled = append(outpoints.Settled, out)
			case !utxo.Confirmed:
				outpoints.Pending = append(outpoints.Pending, out)
			case !now.Before(utxo.ConfirmedAt.Add(output.ExitDelay.Duration())):
				outpoints.Expired = append(outpoints.Expired, out)
			default:
				outpoints.Spendable = append(outpoints.Spendable, out)
			}
		}
	}

	return outpoints
}
