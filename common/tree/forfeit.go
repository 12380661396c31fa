package tree

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// BuildForfeitTx returns the unsigned forfeit tx spending the connector and
// the vtxo to the server forfeit script. The connector is input 0.
func BuildForfeitTx(
	connectorInput, vtxoInput *wire.OutPoint,
	connectorPrevout, vtxoPrevout *wire.TxOut,
	feeAmount uint64,
	serverScript []byte,
	txLocktime uint32,
) (*psbt.Packet, error) {
	if connectorInput == nil || vtxoInput == nil {
		return nil, fmt.Errorf("missing forfeit input")
	}
	if connectorPrevout == nil || vtxoPrevout == nil {
		return nil, fmt.Errorf("missing forfeit prevout")
	}

	amount := vtxoPrevout.Value + connectorPrevout.Value - int64(feeAmount)
	if amount <= 0 {
		return nil, fmt.Errorf(
			"forfeit fee %d exceeds inputs amount %d", feeAmount, vtxoPrevout.Value+connectorPrevout.Value,
		)
	}

	ins := []*wire.OutPoint{connectorInput, vtxoInput}
	outs := []*wire.TxOut{{
		Value:    amount,
		PkScript: serverScript,
	}}

	vtxoSequence := wire.MaxTxInSequenceNum
	if txLocktime != 0 {
		vtxoSequence = wire.MaxTxInSequenceNum - 1
	}
	txSequence := []uint32{wire.MaxTxInSequenceNum, vtxoSequence}

	partialTx, err := psbt.New(ins, outs, 2, txLocktime, txSequence)
	if err != nil {
		return nil, err
	}

	updater, err := psbt.NewUpdater(partialTx)
	if err != nil {
		return nil, err
	}

	if err := updater.AddInWitnessUtxo(connectorPrevout, 0); err != nil {
		return nil, err
	}

	if err := updater.AddInWitnessUtxo(vtxoPrevout, 1); err != nil {
		return nil, err
	}

	if err := updater.AddInSighashType(txscript.SigHashDefault, 1); err != nil {
		return nil, err
	}

	return partialTx, nil
}
