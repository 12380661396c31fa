package common

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcwallet/waddrmgr"
	"github.com/lightningnetwork/lnd/input"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
)

// ComputeForfeitTxFee estimates the fee of a forfeit tx spending a connector
// (key path) and a vtxo (tapscript path) to a single server output.
func ComputeForfeitTxFee(
	feeRate chainfee.SatPerKVByte,
	tapscript *waddrmgr.Tapscript,
	witnessSize int,
	serverScriptClass txscript.ScriptClass,
) (uint64, error) {
	txWeightEstimator := &input.TxWeightEstimator{}

	txWeightEstimator.AddTaprootKeySpendInput(txscript.SigHashDefault) // connector input
	txWeightEstimator.AddTapscriptInput(
		lntypes.WeightUnit(witnessSize),
		tapscript,
	)

	if err := addOutputByClass(txWeightEstimator, serverScriptClass); err != nil {
		return 0, err
	}

	return uint64(feeRate.FeeForVSize(lntypes.VByte(txWeightEstimator.VSize())).ToUnit(btcutil.AmountSatoshi)), nil
}

// ComputeRedeemTxFee estimates the fee of an offchain redeem tx spending
// the given vtxo tapscripts to numOutputs taproot outputs.
func ComputeRedeemTxFee(
	feeRate chainfee.SatPerKVByte,
	tapscripts []*waddrmgr.Tapscript,
	witnessSize int,
	numOutputs int,
) (uint64, error) {
	if len(tapscripts) <= 0 {
		return 0, fmt.Errorf("missing inputs")
	}
	if numOutputs <= 0 {
		return 0, fmt.Errorf("missing outputs")
	}

	txWeightEstimator := &input.TxWeightEstimator{}
	for _, tapscript := range tapscripts {
		txWeightEstimator.AddTapscriptInput(lntypes.WeightUnit(witnessSize), tapscript)
	}
	for i := 0; i < numOutputs; i++ {
		txWeightEstimator.AddP2TROutput()
	}

	return uint64(feeRate.FeeForVSize(lntypes.VByte(txWeightEstimator.VSize())).ToUnit(btcutil.AmountSatoshi)), nil
}

func addOutputByClass(estimator *input.TxWeightEstimator, class txscript.ScriptClass) error {
	switch class {
	case txscript.PubKeyHashTy:
		estimator.AddP2PKHOutput()
	case txscript.ScriptHashTy:
		estimator.AddP2SHOutput()
	case txscript.WitnessV0PubKeyHashTy:
		estimator.AddP2WKHOutput()
	case txscript.WitnessV0ScriptHashTy:
		estimator.AddP2WSHOutput()
	case txscript.WitnessV1TaprootTy:
		estimator.AddP2TROutput()
	default:
		return fmt.Errorf("unknown server script class: %v", class)
	}
	return nil
}
