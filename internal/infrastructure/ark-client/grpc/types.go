package grpcclient

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ark-network/ark-wallet-api/common"
	"github.com/ark-network/ark-wallet-api/common/tree"
	"github.com/ark-network/ark-wallet-api/internal/core/domain"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
)

type getInfoRequest struct{}

type getInfoResponse struct {
	Pubkey              string `json:"pubkey"`
	VtxoTreeExpiry      int64  `json:"vtxoTreeExpiry"`
	UnilateralExitDelay int64  `json:"unilateralExitDelay"`
	RoundInterval       int64  `json:"roundInterval"`
	Network             string `json:"network"`
	Dust                int64  `json:"dust"`
	BoardingExitDelay   int64  `json:"boardingExitDelay"`
	ForfeitAddress      string `json:"forfeitAddress"`
	Version             string `json:"version"`
}

type outpoint struct {
	Txid string `json:"txid"`
	Vout uint32 `json:"vout"`
}

type vtxo struct {
	Outpoint  *outpoint `json:"outpoint"`
	Amount    uint64    `json:"amount"`
	Script    string    `json:"script"`
	CreatedAt int64     `json:"createdAt"`
	ExpiresAt int64     `json:"expiresAt"`
	RoundTxid string    `json:"roundTxid"`
	Spent     bool      `json:"spent"`
	Swept     bool      `json:"swept"`
	IsPending bool      `json:"isPending"`
}

type listVtxosRequest struct {
	Address string `json:"address"`
}

type listVtxosResponse struct {
	SpendableVtxos []*vtxo `json:"spendableVtxos"`
	SpentVtxos     []*vtxo `json:"spentVtxos"`
}

type input struct {
	Outpoint   *outpoint `json:"outpoint"`
	Tapscripts []string  `json:"tapscripts"`
}

type registerInputsForNextRoundRequest struct {
	Inputs []input `json:"inputs"`
}

type registerInputsForNextRoundResponse struct {
	RequestId string `json:"requestId"`
}

type output struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

type musig2 struct {
	CosignersPublicKeys []string `json:"cosignersPublicKeys"`
	Ephemeral           bool     `json:"ephemeral"`
}

type registerOutputsForNextRoundRequest struct {
	RequestId string   `json:"requestId"`
	Outputs   []output `json:"outputs"`
	Musig2    *musig2  `json:"musig2"`
}

type pingRequest struct {
	RequestId string `json:"requestId"`
}

type emptyResponse struct{}

type getEventStreamRequest struct{}

type node struct {
	Txid       string `json:"txid"`
	Tx         string `json:"tx"`
	ParentTxid string `json:"parentTxid"`
}

type treeLevel struct {
	Nodes []node `json:"nodes"`
}

type txTree struct {
	Levels []treeLevel `json:"levels"`
}

type roundSigningEvent struct {
	Id               string   `json:"id"`
	CosignersPubkeys []string `json:"cosignersPubkeys"`
	UnsignedVtxoTree *txTree  `json:"unsignedVtxoTree"`
	UnsignedRoundTx  string   `json:"unsignedRoundTx"`
}

type roundSigningNoncesGeneratedEvent struct {
	Id         string `json:"id"`
	TreeNonces string `json:"treeNonces"`
}

type roundFinalizationEvent struct {
	Id              string               `json:"id"`
	RoundTx         string               `json:"roundTx"`
	VtxoTree        *txTree              `json:"vtxoTree"`
	Connectors      *txTree              `json:"connectors"`
	MinRelayFeeRate int64                `json:"minRelayFeeRate"`
	ConnectorsIndex map[string]*outpoint `json:"connectorsIndex"`
}

type roundFinalizedEvent struct {
	Id        string `json:"id"`
	RoundTxid string `json:"roundTxid"`
}

type roundFailed struct {
	Id     string `json:"id"`
	Reason string `json:"reason"`
}

type getEventStreamResponse struct {
	RoundFinalization           *roundFinalizationEvent           `json:"roundFinalization,omitempty"`
	RoundFinalized              *roundFinalizedEvent              `json:"roundFinalized,omitempty"`
	RoundFailed                 *roundFailed                      `json:"roundFailed,omitempty"`
	RoundSigning                *roundSigningEvent                `json:"roundSigning,omitempty"`
	RoundSigningNoncesGenerated *roundSigningNoncesGeneratedEvent `json:"roundSigningNoncesGenerated,omitempty"`
}

type submitTreeNoncesRequest struct {
	RoundId    string `json:"roundId"`
	Pubkey     string `json:"pubkey"`
	TreeNonces string `json:"treeNonces"`
}

type submitTreeSignaturesRequest struct {
	RoundId        string `json:"roundId"`
	Pubkey         string `json:"pubkey"`
	TreeSignatures string `json:"treeSignatures"`
}

type submitSignedForfeitTxsRequest struct {
	SignedForfeitTxs []string `json:"signedForfeitTxs"`
	SignedRoundTx    string   `json:"signedRoundTx"`
}

type submitRedeemTxRequest struct {
	RedeemTx string `json:"redeemTx"`
}

type submitRedeemTxResponse struct {
	SignedRedeemTx string `json:"signedRedeemTx"`
	Txid           string `json:"txid"`
}

func (r *getInfoResponse) toServerInfo() (*domain.ServerInfo, error) {
	buf, err := hex.DecodeString(r.Pubkey)
	if err != nil {
		return nil, domain.NewConversionError("server pubkey", err)
	}
	pubkey, err := btcec.ParsePubKey(buf)
	if err != nil {
		return nil, domain.NewConversionError("server pubkey", err)
	}

	network, err := common.NetworkFromString(r.Network)
	if err != nil {
		return nil, domain.NewConversionError("network", err)
	}

	vtxoTreeExpiry, err := common.NewRelativeLocktime(r.VtxoTreeExpiry)
	if err != nil {
		return nil, domain.NewConversionError("vtxo tree expiry", err)
	}
	unilateralExitDelay, err := common.NewRelativeLocktime(r.UnilateralExitDelay)
	if err != nil {
		return nil, domain.NewConversionError("unilateral exit delay", err)
	}

	var boardingExitDelay common.RelativeLocktime
	if r.BoardingExitDelay != 0 {
		boardingExitDelay, err = common.NewRelativeLocktime(r.BoardingExitDelay)
		if err != nil {
			return nil, domain.NewConversionError("boarding exit delay", err)
		}
	}

	if r.Dust < 0 {
		return nil, domain.NewConversionError("dust", fmt.Errorf("negative amount %d", r.Dust))
	}

	if _, err := network.DecodeAddress(r.ForfeitAddress); err != nil {
		return nil, domain.NewConversionError("forfeit address", err)
	}

	return &domain.ServerInfo{
		Version:             r.Version,
		PubKey:              pubkey,
		Network:             network,
		Dust:                uint64(r.Dust),
		VtxoTreeExpiry:      vtxoTreeExpiry,
		UnilateralExitDelay: unilateralExitDelay,
		BoardingExitDelay:   boardingExitDelay,
		RoundInterval:       r.RoundInterval,
		ForfeitAddress:      r.ForfeitAddress,
	}, nil
}

func (v *vtxo) toVtxo() (domain.Vtxo, error) {
	if v == nil || v.Outpoint == nil {
		return domain.Vtxo{}, domain.NewConversionError("vtxo", fmt.Errorf("missing outpoint"))
	}

	var createdAt, expiresAt time.Time
	if v.CreatedAt > 0 {
		createdAt = time.Unix(v.CreatedAt, 0)
	}
	if v.ExpiresAt > 0 {
		expiresAt = time.Unix(v.ExpiresAt, 0)
	}

	return domain.Vtxo{
		Outpoint:  domain.Outpoint{Txid: v.Outpoint.Txid, VOut: v.Outpoint.Vout},
		Amount:    v.Amount,
		Script:    v.Script,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
		RoundTxid: v.RoundTxid,
		Spent:     v.Spent,
		Swept:     v.Swept,
		Pending:   v.IsPending,
	}, nil
}

type vtxos []*vtxo

func (v vtxos) toVtxos() ([]domain.Vtxo, error) {
	list := make([]domain.Vtxo, 0, len(v))
	for _, vv := range v {
		vtxo, err := vv.toVtxo()
		if err != nil {
			return nil, err
		}
		list = append(list, vtxo)
	}
	return list, nil
}

type ins []domain.RoundInput

func (i ins) toProto() []input {
	list := make([]input, 0, len(i))
	for _, in := range i {
		list = append(list, input{
			Outpoint:   &outpoint{Txid: in.Txid, Vout: in.VOut},
			Tapscripts: in.Tapscripts,
		})
	}
	return list
}

type outs []domain.RoundOutput

func (o outs) toProto() []output {
	list := make([]output, 0, len(o))
	for _, out := range o {
		list = append(list, output{Address: out.Address, Amount: out.Amount})
	}
	return list
}

type treeFromProto struct {
	*txTree
}

// parse flags as leaves the nodes no other node spends.
func (t treeFromProto) parse() tree.TxTree {
	if t.txTree == nil {
		return nil
	}

	parents := make(map[string]struct{})
	for _, level := range t.Levels {
		for _, n := range level.Nodes {
			parents[n.ParentTxid] = struct{}{}
		}
	}

	levels := make(tree.TxTree, 0, len(t.Levels))
	for _, level := range t.Levels {
		nodes := make([]tree.Node, 0, len(level.Nodes))
		for _, n := range level.Nodes {
			_, isParent := parents[n.Txid]
			nodes = append(nodes, tree.Node{
				Txid:       n.Txid,
				Tx:         n.Tx,
				ParentTxid: n.ParentTxid,
				Leaf:       !isParent,
			})
		}
		levels = append(levels, nodes)
	}
	return levels
}

type treeToProto tree.TxTree

func (t treeToProto) parse() *txTree {
	levels := make([]treeLevel, 0, len(t))
	for _, level := range t {
		nodes := make([]node, 0, len(level))
		for _, n := range level {
			nodes = append(nodes, node{Txid: n.Txid, Tx: n.Tx, ParentTxid: n.ParentTxid})
		}
		levels = append(levels, treeLevel{Nodes: nodes})
	}
	return &txTree{Levels: levels}
}

type event struct {
	*getEventStreamResponse
}

func (e event) toRoundEvent() (domain.RoundEvent, error) {
	if ee := e.RoundFailed; ee != nil {
		return domain.RoundFailed{ID: ee.Id, Reason: ee.Reason}, nil
	}

	if ee := e.RoundSigning; ee != nil {
		return domain.RoundSigningStarted{
			ID:               ee.Id,
			UnsignedVtxoTree: treeFromProto{ee.UnsignedVtxoTree}.parse(),
			UnsignedRoundTx:  ee.UnsignedRoundTx,
		}, nil
	}

	if ee := e.RoundSigningNoncesGenerated; ee != nil {
		buf, err := hex.DecodeString(ee.TreeNonces)
		if err != nil {
			return nil, domain.NewConversionError("tree nonces", err)
		}
		nonces, err := tree.DecodeNonces(bytes.NewReader(buf))
		if err != nil {
			return nil, domain.NewConversionError("tree nonces", err)
		}
		return domain.RoundSigningNoncesGenerated{ID: ee.Id, Nonces: nonces}, nil
	}

	if ee := e.RoundFinalization; ee != nil {
		connectorsIndex := make(map[string]domain.Outpoint, len(ee.ConnectorsIndex))
		for vtxoOutpoint, connector := range ee.ConnectorsIndex {
			if connector == nil {
				return nil, domain.NewConversionError(
					"connectors index", fmt.Errorf("missing connector for %s", vtxoOutpoint),
				)
			}
			connectorsIndex[vtxoOutpoint] = domain.Outpoint{Txid: connector.Txid, VOut: connector.Vout}
		}
		if ee.MinRelayFeeRate < 0 {
			return nil, domain.NewConversionError(
				"min relay fee rate", fmt.Errorf("negative fee rate %d", ee.MinRelayFeeRate),
			)
		}

		return domain.RoundFinalizationStarted{
			ID:              ee.Id,
			RoundTx:         ee.RoundTx,
			Connectors:      treeFromProto{ee.Connectors}.parse(),
			ConnectorsIndex: connectorsIndex,
			MinRelayFeeRate: chainfee.SatPerKVByte(ee.MinRelayFeeRate),
		}, nil
	}

	if ee := e.RoundFinalized; ee != nil {
		return domain.RoundFinalized{ID: ee.Id, Txid: ee.RoundTxid}, nil
	}

	return nil, domain.NewConversionError("event", fmt.Errorf("unknown event"))
}

func encodeNonces(nonces tree.TreeNonces) (string, error) {
	var buf bytes.Buffer
	if err := nonces.Encode(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func encodeSignatures(sigs tree.TreePartialSigs) (string, error) {
	var buf bytes.Buffer
	if err := sigs.Encode(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}
