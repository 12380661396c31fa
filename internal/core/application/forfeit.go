package application

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ark-network/ark-wallet-api/common"
	"github.com/ark-network/ark-wallet-api/common/tree"
	"github.com/ark-network/ark-wallet-api/internal/core/domain"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	"golang.org/x/sync/errgroup"
)

// forfeitParams are the round finalization parameters shared by all the
// forfeit txs of a round.
type forfeitParams struct {
	connectors      tree.TxTree
	connectorsIndex map[string]domain.Outpoint
	feeRate         chainfee.SatPerKVByte
	forfeitScript   []byte
	forfeitClass    txscript.ScriptClass
	dust            uint64
}

// CreateAndSignForfeits builds and signs one forfeit tx per vtxo. Either
// every forfeit is returned or none is.
func CreateAndSignForfeits(
	ctx context.Context,
	info domain.ServerInfo,
	event domain.RoundFinalizationStarted,
	vtxos []domain.VirtualOutpoint,
	pubkey *btcec.PublicKey,
	sign SignFunc,
) ([]string, error) {
	if len(vtxos) <= 0 {
		return nil, nil
	}

	forfeitScript, forfeitClass, err := info.ForfeitPkScript()
	if err != nil {
		return nil, err
	}

	params := forfeitParams{
		connectors:      event.Connectors,
		connectorsIndex: event.ConnectorsIndex,
		feeRate:         event.MinRelayFeeRate,
		forfeitScript:   forfeitScript,
		forfeitClass:    forfeitClass,
		dust:            info.Dust,
	}

	signedForfeits := make([]string, len(vtxos))
	g, gctx := errgroup.WithContext(ctx)
	for i, vtxo := range vtxos {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			forfeit, err := createAndSignForfeit(params, vtxo, pubkey, sign)
			if err != nil {
				return fmt.Errorf("forfeit of vtxo %s: %w", vtxo.Outpoint, err)
			}
			signedForfeits[i] = forfeit
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return signedForfeits, nil
}

func createAndSignForfeit(
	params forfeitParams, vtxo domain.VirtualOutpoint, pubkey *btcec.PublicKey, sign SignFunc,
) (string, error) {
	if vtxo.VtxoScript == nil {
		return "", domain.NewSigningError(fmt.Errorf("missing vtxo script"))
	}

	connectorOutpoint, ok := params.connectorsIndex[vtxo.Outpoint.String()]
	if !ok {
		return "", domain.NewConversionError("connectors index", fmt.Errorf("missing connector"))
	}

	connectorInput, err := connectorOutpoint.ToWire()
	if err != nil {
		return "", err
	}

	connectorPrevout, err := findConnectorOutput(params.connectors, connectorOutpoint)
	if err != nil {
		return "", err
	}

	vtxoInput, err := vtxo.Outpoint.ToWire()
	if err != nil {
		return "", err
	}

	vtxoPkScript, err := vtxo.VtxoScript.PkScript()
	if err != nil {
		return "", domain.NewSigningError(err)
	}

	proof, closure, err := vtxo.VtxoScript.ForfeitProof()
	if err != nil {
		return "", domain.NewSigningError(err)
	}

	if !isCosigner(closure, pubkey) {
		return "", domain.NewSigningError(fmt.Errorf("wallet key is not a signer of the forfeit leaf"))
	}

	feeAmount, err := common.ComputeForfeitTxFee(
		params.feeRate, proof.Tapscript(), closure.WitnessSize(), params.forfeitClass,
	)
	if err != nil {
		return "", err
	}

	forfeitAmount := int64(vtxo.Amount) + connectorPrevout.Value - int64(feeAmount)
	if forfeitAmount < int64(params.dust) {
		if forfeitAmount < 0 {
			forfeitAmount = 0
		}
		return "", domain.NewBelowDustError("forfeit output", uint64(forfeitAmount), params.dust)
	}

	forfeitTx, err := tree.BuildForfeitTx(
		connectorInput,
		vtxoInput,
		connectorPrevout,
		&wire.TxOut{Value: int64(vtxo.Amount), PkScript: vtxoPkScript},
		feeAmount,
		params.forfeitScript,
		0,
	)
	if err != nil {
		return "", err
	}

	if err := addTapLeafScript(forfeitTx, 1, proof); err != nil {
		return "", domain.NewSigningError(err)
	}

	if err := signTapscriptInput(forfeitTx, 1, pubkey, sign); err != nil {
		return "", err
	}

	return forfeitTx.B64Encode()
}

func findConnectorOutput(connectors tree.TxTree, outpoint domain.Outpoint) (*wire.TxOut, error) {
	node, ok := connectors.Find(outpoint.Txid)
	if !ok {
		return nil, domain.NewConversionError(
			"connectors", fmt.Errorf("connector tx %s not found", outpoint.Txid),
		)
	}

	ptx, err := psbt.NewFromRawBytes(strings.NewReader(node.Tx), true)
	if err != nil {
		return nil, domain.NewConversionError("connectors", err)
	}

	if int(outpoint.VOut) >= len(ptx.UnsignedTx.TxOut) {
		return nil, domain.NewConversionError(
			"connectors", fmt.Errorf("connector index out of bounds: %s", outpoint),
		)
	}

	return ptx.UnsignedTx.TxOut[outpoint.VOut], nil
}

func isCosigner(closure tree.Closure, pubkey *btcec.PublicKey) bool {
	multisig, ok := closure.(*tree.MultisigClosure)
	if !ok {
		return false
	}

	xonly := schnorr.SerializePubKey(pubkey)
	for _, key := range multisig.PubKeys {
		if bytes.Equal(schnorr.SerializePubKey(key), xonly) {
			return true
		}
	}
	return false
}
