package application

import (
	"fmt"

	"github.com/ark-network/ark-wallet-api/common"
	"github.com/ark-network/ark-wallet-api/common/tree"
	"github.com/ark-network/ark-wallet-api/internal/core/domain"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/waddrmgr"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
)

type redeemInput struct {
	coin     domain.VirtualOutpoint
	pkScript []byte
	proof    *tree.TaprootMerkleProof
	witness  int
}

// BuildRedeemTx spends the selected coins offchain to the receiver. The
// change, if any, goes back to changeScript and pays the fees. Every input
// spends through its collaborative leaf.
func BuildRedeemTx(
	selection *CoinSelection,
	receiverScript []byte, amount uint64,
	changeScript []byte,
	feeRate chainfee.SatPerKVByte,
	dust uint64,
) (*psbt.Packet, error) {
	if selection == nil || len(selection.Selected) <= 0 {
		return nil, fmt.Errorf("missing vtxos")
	}

	inputs := make([]redeemInput, 0, len(selection.Selected))
	for _, coin := range selection.Selected {
		if coin.VtxoScript == nil {
			return nil, domain.NewSigningError(fmt.Errorf("missing script for vtxo %s", coin.Outpoint))
		}

		pkScript, err := coin.VtxoScript.PkScript()
		if err != nil {
			return nil, domain.NewSigningError(err)
		}

		proof, closure, err := coin.VtxoScript.ForfeitProof()
		if err != nil {
			return nil, domain.NewSigningError(err)
		}

		inputs = append(inputs, redeemInput{coin, pkScript, proof, closure.WitnessSize()})
	}

	outputs := []*wire.TxOut{{Value: int64(amount), PkScript: receiverScript}}

	change := selection.Change
	if change > 0 {
		fees, err := redeemFees(inputs, 2, feeRate)
		if err != nil {
			return nil, err
		}
		if change < fees+dust {
			return nil, domain.NewBelowDustError("change after fees", subOrZero(change, fees), dust)
		}
		outputs = append(outputs, &wire.TxOut{Value: int64(change - fees), PkScript: changeScript})
	} else if feeRate > 0 {
		return nil, domain.NewInvalidRequestError("a non-zero fee rate requires change to pay the fees")
	}

	ins := make([]*wire.OutPoint, 0, len(inputs))
	sequences := make([]uint32, 0, len(inputs))
	for _, in := range inputs {
		outpoint, err := in.coin.Outpoint.ToWire()
		if err != nil {
			return nil, err
		}
		ins = append(ins, outpoint)
		sequences = append(sequences, wire.MaxTxInSequenceNum)
	}

	redeemPtx, err := psbt.New(ins, outputs, 2, 0, sequences)
	if err != nil {
		return nil, err
	}

	for i, in := range inputs {
		redeemPtx.Inputs[i].WitnessUtxo = &wire.TxOut{
			Value:    int64(in.coin.Amount),
			PkScript: in.pkScript,
		}
		if err := addTapLeafScript(redeemPtx, i, in.proof); err != nil {
			return nil, domain.NewSigningError(err)
		}
	}

	return redeemPtx, nil
}

// SignRedeemTx signs every input of the redeem tx.
func SignRedeemTx(redeemPtx *psbt.Packet, pubkey *btcec.PublicKey, sign SignFunc) (string, error) {
	for i := range redeemPtx.Inputs {
		if err := signTapscriptInput(redeemPtx, i, pubkey, sign); err != nil {
			return "", err
		}
	}
	return redeemPtx.B64Encode()
}

func redeemFees(inputs []redeemInput, numOutputs int, feeRate chainfee.SatPerKVByte) (uint64, error) {
	if feeRate <= 0 {
		return 0, nil
	}

	tapscripts := make([]*waddrmgr.Tapscript, 0, len(inputs))
	witnessSize := 0
	for _, in := range inputs {
		tapscripts = append(tapscripts, in.proof.Tapscript())
		if in.witness > witnessSize {
			witnessSize = in.witness
		}
	}

	return common.ComputeRedeemTxFee(feeRate, tapscripts, witnessSize, numOutputs)
}

func subOrZero(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}
