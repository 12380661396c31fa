package application

import (
	"strings"
	"testing"

	"github.com/ark-network/ark-wallet-api/common"
	"github.com/ark-network/ark-wallet-api/common/tree"
	"github.com/ark-network/ark-wallet-api/internal/core/domain"
	"github.com/ark-network/ark-wallet-api/internal/core/ports"
	"github.com/ark-network/ark-wallet-api/internal/infrastructure/wallet/singlekey"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

type testWallet struct {
	signer     ports.Signer
	vtxoScript *tree.VtxoScript
	boarding   domain.BoardingOutput
	address    string
}

func newTestWallet(t *testing.T, info domain.ServerInfo) *testWallet {
	t.Helper()

	prvkey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pubkey := prvkey.PubKey()

	vtxoScript := tree.NewDefaultVtxoScript(pubkey, info.PubKey, info.UnilateralExitDelay)
	tapKey, _, err := vtxoScript.TapTree()
	require.NoError(t, err)

	addr, err := (&common.Address{
		HRP: info.Network.Addr, Server: info.PubKey, VtxoTapKey: tapKey,
	}).Encode()
	require.NoError(t, err)

	return &testWallet{
		signer:     singlekey.NewSigner(prvkey),
		vtxoScript: vtxoScript,
		boarding: domain.BoardingOutput{
			Address:    "bcrt1pboarding",
			VtxoScript: tree.NewDefaultVtxoScript(pubkey, info.PubKey, info.BoardingDelay()),
			ExitDelay:  info.BoardingDelay(),
		},
		address: addr,
	}
}

func (w *testWallet) vtxo(outpoint domain.Outpoint, amount uint64) domain.VirtualOutpoint {
	return domain.VirtualOutpoint{
		Vtxo:       domain.Vtxo{Outpoint: outpoint, Amount: amount},
		VtxoScript: w.vtxoScript,
	}
}

func (w *testWallet) boardingUtxo(t *testing.T, outpoint domain.Outpoint, amount uint64) domain.BoardingOutpoint {
	return domain.BoardingOutpoint{
		ExplorerUtxo: domain.ExplorerUtxo{Outpoint: outpoint, Amount: amount, Confirmed: true},
		Output:       w.boarding,
	}
}

func (w *testWallet) boardingPrevout(t *testing.T, amount uint64) *wire.TxOut {
	t.Helper()

	pkScript, err := w.boarding.VtxoScript.PkScript()
	require.NoError(t, err)
	return &wire.TxOut{Value: int64(amount), PkScript: pkScript}
}

func (w *testWallet) sign() SignFunc {
	return SignFuncFromSigner(w.signer)
}

func decodePtx(t *testing.T, b64 string) *psbt.Packet {
	t.Helper()

	ptx, err := psbt.NewFromRawBytes(strings.NewReader(b64), true)
	require.NoError(t, err)
	return ptx
}

// requireTapscriptSig checks the input carries a valid signature of pubkey
// for the revealed leaf.
func requireTapscriptSig(t *testing.T, ptx *psbt.Packet, inputIndex int, pubkey *btcec.PublicKey) {
	t.Helper()

	input := ptx.Inputs[inputIndex]
	require.Len(t, input.TaprootLeafScript, 1)
	require.Len(t, input.TaprootScriptSpendSig, 1)

	prevouts := make(map[wire.OutPoint]*wire.TxOut)
	for i, in := range ptx.Inputs {
		require.NotNil(t, in.WitnessUtxo)
		prevouts[ptx.UnsignedTx.TxIn[i].PreviousOutPoint] = in.WitnessUtxo
	}
	fetcher := txscript.NewMultiPrevOutFetcher(prevouts)

	leaf := txscript.NewBaseTapLeaf(input.TaprootLeafScript[0].Script)
	digest, err := txscript.CalcTapscriptSignaturehash(
		txscript.NewTxSigHashes(ptx.UnsignedTx, fetcher),
		txscript.SigHashDefault, ptx.UnsignedTx, inputIndex, fetcher, leaf,
	)
	require.NoError(t, err)

	spendSig := input.TaprootScriptSpendSig[0]
	leafHash := leaf.TapHash()
	require.Equal(t, leafHash[:], spendSig.LeafHash)
	require.Equal(t, schnorr.SerializePubKey(pubkey), spendSig.XOnlyPubKey)

	sig, err := schnorr.ParseSignature(spendSig.Signature)
	require.NoError(t, err)
	require.True(t, sig.Verify(digest, pubkey))

	// the revealed leaf must commit to the spent output
	controlBlock, err := txscript.ParseControlBlock(input.TaprootLeafScript[0].ControlBlock)
	require.NoError(t, err)
	rootHash := controlBlock.RootHash(input.TaprootLeafScript[0].Script)
	outputKey := txscript.ComputeTaprootOutputKey(tree.UnspendableKey(), rootHash)
	expectedScript, err := common.P2TRScript(outputKey)
	require.NoError(t, err)
	require.Equal(t, expectedScript, input.WitnessUtxo.PkScript)
}
