package application

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ark-network/ark-wallet-api/common/tree"
	"github.com/ark-network/ark-wallet-api/internal/core/domain"
	"github.com/ark-network/ark-wallet-api/internal/core/ports"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// SignFunc returns the schnorr signature of digest made with the private
// key of pubkey.
type SignFunc func(pubkey *btcec.PublicKey, digest []byte) (*schnorr.Signature, error)

// SignFuncFromSigner adapts a single key signer, it refuses any other key.
func SignFuncFromSigner(signer ports.Signer) SignFunc {
	return func(pubkey *btcec.PublicKey, digest []byte) (*schnorr.Signature, error) {
		if !bytes.Equal(schnorr.SerializePubKey(pubkey), schnorr.SerializePubKey(signer.PubKey())) {
			return nil, fmt.Errorf("unknown signing key %x", schnorr.SerializePubKey(pubkey))
		}
		return signer.SignSchnorr(digest)
	}
}

// SignRoundTx signs the boarding inputs of the round tx through their
// collaborative leaf and returns the b64 encoded psbt. With no boarding
// inputs it returns an empty string, no signature is produced.
func SignRoundTx(
	roundTx string, boardingInputs []domain.BoardingOutpoint,
	pubkey *btcec.PublicKey, sign SignFunc,
) (string, error) {
	if len(boardingInputs) <= 0 {
		return "", nil
	}

	ptx, err := psbt.NewFromRawBytes(strings.NewReader(roundTx), true)
	if err != nil {
		return "", domain.NewConversionError("round tx", err)
	}

	for _, boardingInput := range boardingInputs {
		outpoint, err := boardingInput.Outpoint.ToWire()
		if err != nil {
			return "", err
		}

		inputIndex := findInput(ptx, *outpoint)
		if inputIndex < 0 {
			return "", domain.NewConversionError(
				"round tx", fmt.Errorf("boarding input %s not found", boardingInput.Outpoint),
			)
		}

		pkScript, err := boardingInput.Output.VtxoScript.PkScript()
		if err != nil {
			return "", domain.NewSigningError(err)
		}

		prevout := &wire.TxOut{Value: int64(boardingInput.Amount), PkScript: pkScript}
		if witnessUtxo := ptx.Inputs[inputIndex].WitnessUtxo; witnessUtxo != nil {
			if witnessUtxo.Value != prevout.Value || !bytes.Equal(witnessUtxo.PkScript, prevout.PkScript) {
				return "", domain.NewConversionError(
					"round tx", fmt.Errorf("prevout mismatch for boarding input %s", boardingInput.Outpoint),
				)
			}
		} else {
			ptx.Inputs[inputIndex].WitnessUtxo = prevout
		}

		proof, _, err := boardingInput.Output.VtxoScript.ForfeitProof()
		if err != nil {
			return "", domain.NewSigningError(err)
		}

		if err := addTapLeafScript(ptx, inputIndex, proof); err != nil {
			return "", domain.NewSigningError(err)
		}

		if err := signTapscriptInput(ptx, inputIndex, pubkey, sign); err != nil {
			return "", err
		}
	}

	return ptx.B64Encode()
}

func findInput(ptx *psbt.Packet, outpoint wire.OutPoint) int {
	for i, in := range ptx.UnsignedTx.TxIn {
		if in.PreviousOutPoint == outpoint {
			return i
		}
	}
	return -1
}

func addTapLeafScript(ptx *psbt.Packet, inputIndex int, proof *tree.TaprootMerkleProof) error {
	controlBlock, err := proof.ControlBlock.ToBytes()
	if err != nil {
		return err
	}

	ptx.Inputs[inputIndex].TaprootLeafScript = []*psbt.TaprootTapLeafScript{{
		ControlBlock: controlBlock,
		Script:       proof.Script,
		LeafVersion:  txscript.BaseLeafVersion,
	}}
	return nil
}

// signTapscriptInput adds the signature of pubkey for the leaf revealed by
// the given input. Every input of the tx must carry its witness utxo.
func signTapscriptInput(ptx *psbt.Packet, inputIndex int, pubkey *btcec.PublicKey, sign SignFunc) error {
	input := ptx.Inputs[inputIndex]
	if len(input.TaprootLeafScript) <= 0 {
		return domain.NewSigningError(fmt.Errorf("missing tapscript leaf for input %d", inputIndex))
	}

	prevouts := make(map[wire.OutPoint]*wire.TxOut)
	for i, in := range ptx.Inputs {
		if in.WitnessUtxo == nil {
			return domain.NewSigningError(fmt.Errorf("missing witness utxo for input %d", i))
		}
		prevouts[ptx.UnsignedTx.TxIn[i].PreviousOutPoint] = in.WitnessUtxo
	}
	prevoutFetcher := txscript.NewMultiPrevOutFetcher(prevouts)
	txsighashes := txscript.NewTxSigHashes(ptx.UnsignedTx, prevoutFetcher)

	leaf := input.TaprootLeafScript[0]
	tapLeaf := txscript.NewTapLeaf(leaf.LeafVersion, leaf.Script)

	preimage, err := txscript.CalcTapscriptSignaturehash(
		txsighashes,
		txscript.SigHashDefault,
		ptx.UnsignedTx,
		inputIndex,
		prevoutFetcher,
		tapLeaf,
	)
	if err != nil {
		return domain.NewSigningError(err)
	}

	sig, err := sign(pubkey, preimage)
	if err != nil {
		return domain.NewSigningError(err)
	}

	leafHash := tapLeaf.TapHash()
	ptx.Inputs[inputIndex].SighashType = txscript.SigHashDefault
	ptx.Inputs[inputIndex].TaprootScriptSpendSig = append(
		ptx.Inputs[inputIndex].TaprootScriptSpendSig,
		&psbt.TaprootScriptSpendSig{
			XOnlyPubKey: schnorr.SerializePubKey(pubkey),
			LeafHash:    leafHash.CloneBytes(),
			Signature:   sig.Serialize(),
			SigHash:     txscript.SigHashDefault,
		},
	)
	return nil
}
