// Package fixtures builds server side round data for tests.
package fixtures

import (
	"fmt"

	"github.com/ark-network/ark-wallet-api/common"
	"github.com/ark-network/ark-wallet-api/common/tree"
	"github.com/ark-network/ark-wallet-api/internal/core/domain"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	Dust            = 330
	ConnectorAmount = 1000
	serverFunds     = 100_000_000
)

var (
	TreeExpiry   = common.RelativeLocktime{Type: common.LocktimeTypeSecond, Value: 512 * 20}
	ExitDelay    = common.RelativeLocktime{Type: common.LocktimeTypeSecond, Value: 512 * 10}
	BoardingExit = common.RelativeLocktime{Type: common.LocktimeTypeBlock, Value: 144}
)

// ServerInfo returns the info of a regtest server owning serverKey, whose
// forfeit address is the key path taproot address of serverKey.
func ServerInfo(serverKey *btcec.PublicKey) domain.ServerInfo {
	forfeitAddr, _ := btcutil.NewAddressTaproot(
		schnorr.SerializePubKey(serverKey), &chaincfg.RegressionNetParams,
	)

	return domain.ServerInfo{
		Version:             "test",
		PubKey:              serverKey,
		Network:             common.BitcoinRegTest,
		Dust:                Dust,
		VtxoTreeExpiry:      TreeExpiry,
		UnilateralExitDelay: ExitDelay,
		BoardingExitDelay:   BoardingExit,
		RoundInterval:       10,
		ForfeitAddress:      forfeitAddr.EncodeAddress(),
	}
}

type BoardingInput struct {
	Outpoint domain.Outpoint
	Prevout  *wire.TxOut
}

type RoundParams struct {
	ServerKey      *btcec.PublicKey
	Cosigners      []*btcec.PublicKey
	ReceiverScript []byte
	Amount         uint64
	Vtxos          []domain.Outpoint
	Boarding       []BoardingInput
}

// Round is the data the server sends along the round events.
type Round struct {
	RoundTx         string
	RoundTxid       string
	VtxoTree        tree.TxTree
	Connectors      tree.TxTree
	ConnectorsIndex map[string]domain.Outpoint
}

// NewRound returns a round whose tx is funded by the server and the given
// boarding inputs. The vtxo tree is made of a single leaf paying Amount to
// ReceiverScript, the connectors of a single tx with one output per vtxo.
func NewRound(p RoundParams) (*Round, error) {
	sweepRoot, err := tree.SweepRoot(p.ServerKey, TreeExpiry)
	if err != nil {
		return nil, err
	}

	aggregatedKey, err := tree.AggregateKeys(p.Cosigners, sweepRoot)
	if err != nil {
		return nil, err
	}
	sharedScript, err := common.P2TRScript(aggregatedKey.FinalKey)
	if err != nil {
		return nil, err
	}
	serverScript, err := common.P2TRScript(p.ServerKey)
	if err != nil {
		return nil, err
	}

	fundingHash := chainhash.DoubleHashH([]byte("server funding"))
	ins := []*wire.OutPoint{wire.NewOutPoint(&fundingHash, 0)}
	prevouts := []*wire.TxOut{{Value: serverFunds, PkScript: serverScript}}
	for _, b := range p.Boarding {
		outpoint, err := b.Outpoint.ToWire()
		if err != nil {
			return nil, err
		}
		ins = append(ins, outpoint)
		prevouts = append(prevouts, b.Prevout)
	}

	outs := []*wire.TxOut{{Value: int64(p.Amount), PkScript: sharedScript}}
	if len(p.Vtxos) > 0 {
		outs = append(outs, &wire.TxOut{
			Value: int64(ConnectorAmount * len(p.Vtxos)), PkScript: serverScript,
		})
	}

	roundPtx, err := newPtx(ins, outs)
	if err != nil {
		return nil, err
	}
	for i, prevout := range prevouts {
		roundPtx.Inputs[i].WitnessUtxo = prevout
	}
	roundTx, err := roundPtx.B64Encode()
	if err != nil {
		return nil, err
	}
	roundTxid := roundPtx.UnsignedTx.TxHash()

	leafPtx, err := newPtx(
		[]*wire.OutPoint{wire.NewOutPoint(&roundTxid, 0)},
		[]*wire.TxOut{{Value: int64(p.Amount), PkScript: p.ReceiverScript}},
	)
	if err != nil {
		return nil, err
	}
	for _, cosigner := range p.Cosigners {
		if err := tree.AddCosignerKey(0, leafPtx, cosigner); err != nil {
			return nil, err
		}
	}
	leafNode, err := newNode(leafPtx, roundTxid.String(), true)
	if err != nil {
		return nil, err
	}

	round := &Round{
		RoundTx:         roundTx,
		RoundTxid:       roundTxid.String(),
		VtxoTree:        tree.TxTree{{leafNode}},
		ConnectorsIndex: make(map[string]domain.Outpoint),
	}

	if len(p.Vtxos) <= 0 {
		return round, nil
	}

	connectorOuts := make([]*wire.TxOut, 0, len(p.Vtxos))
	for range p.Vtxos {
		connectorOuts = append(connectorOuts, &wire.TxOut{Value: ConnectorAmount, PkScript: serverScript})
	}
	connectorPtx, err := newPtx([]*wire.OutPoint{wire.NewOutPoint(&roundTxid, 1)}, connectorOuts)
	if err != nil {
		return nil, err
	}
	connectorNode, err := newNode(connectorPtx, roundTxid.String(), true)
	if err != nil {
		return nil, err
	}

	round.Connectors = tree.TxTree{{connectorNode}}
	for i, vtxo := range p.Vtxos {
		round.ConnectorsIndex[vtxo.String()] = domain.Outpoint{Txid: connectorNode.Txid, VOut: uint32(i)}
	}

	return round, nil
}

// RandomOutpoint returns a fresh outpoint whose txid is derived from seed.
func RandomOutpoint(seed string, vout uint32) domain.Outpoint {
	hash := chainhash.DoubleHashH([]byte(seed))
	return domain.Outpoint{Txid: hash.String(), VOut: vout}
}

func newPtx(ins []*wire.OutPoint, outs []*wire.TxOut) (*psbt.Packet, error) {
	sequences := make([]uint32, len(ins))
	for i := range sequences {
		sequences[i] = wire.MaxTxInSequenceNum
	}
	return psbt.New(ins, outs, 2, 0, sequences)
}

func newNode(ptx *psbt.Packet, parentTxid string, leaf bool) (tree.Node, error) {
	b64, err := ptx.B64Encode()
	if err != nil {
		return tree.Node{}, fmt.Errorf("failed to encode tree tx: %w", err)
	}
	return tree.Node{
		Txid:       ptx.UnsignedTx.TxHash().String(),
		Tx:         b64,
		ParentTxid: parentTxid,
		Leaf:       leaf,
	}, nil
}
