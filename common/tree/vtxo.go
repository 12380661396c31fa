package tree

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ark-network/ark-wallet-api/common"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcwallet/waddrmgr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

var ErrLeafNotFound = errors.New("leaf not found in taproot tree")

// nothing-up-my-sleeve point, used as taproot internal key so that outputs
// are spendable only through their script paths
var unspendablePoint = []byte{
	0x02, 0x50, 0x92, 0x9b, 0x74, 0xc1, 0xa0, 0x49, 0x54, 0xb7, 0x8b, 0x4b, 0x60, 0x35, 0xe9, 0x7a,
	0x5e, 0x07, 0x8a, 0x5a, 0x0f, 0x28, 0xec, 0x96, 0xd5, 0x47, 0xbf, 0xee, 0x9a, 0xce, 0x80, 0x3a, 0xc0,
}

func UnspendableKey() *secp256k1.PublicKey {
	key, _ := secp256k1.ParsePubKey(unspendablePoint)
	return key
}

type TaprootMerkleProof struct {
	ControlBlock *txscript.ControlBlock
	Script       []byte
}

// Tapscript returns the lnd/btcwallet view of the proof, used for weight estimation.
func (p *TaprootMerkleProof) Tapscript() *waddrmgr.Tapscript {
	return &waddrmgr.Tapscript{
		Type:           waddrmgr.TapscriptTypePartialReveal,
		ControlBlock:   p.ControlBlock,
		RevealedScript: p.Script,
	}
}

// VtxoScript is the set of closures locking a vtxo or a boarding output.
type VtxoScript struct {
	Closures []Closure
}

// NewDefaultVtxoScript returns the 2-leaf script owned by owner: a
// collaborative (owner+server) path and a unilateral exit after exitDelay.
func NewDefaultVtxoScript(owner, server *secp256k1.PublicKey, exitDelay common.RelativeLocktime) *VtxoScript {
	return &VtxoScript{
		Closures: []Closure{
			&CSVSigClosure{Pubkey: owner, Locktime: exitDelay},
			&MultisigClosure{PubKeys: []*secp256k1.PublicKey{owner, server}},
		},
	}
}

// Encode returns the hex encoded tapscripts
func (v *VtxoScript) Encode() ([]string, error) {
	encoded := make([]string, 0, len(v.Closures))
	for _, closure := range v.Closures {
		script, err := closure.Script()
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, hex.EncodeToString(script))
	}
	return encoded, nil
}

func (v *VtxoScript) ForfeitClosures() []Closure {
	forfeits := make([]Closure, 0)
	for _, closure := range v.Closures {
		if _, ok := closure.(*MultisigClosure); ok {
			forfeits = append(forfeits, closure)
		}
	}
	return forfeits
}

func (v *VtxoScript) TapTree() (*secp256k1.PublicKey, *TapscriptTree, error) {
	if len(v.Closures) <= 0 {
		return nil, nil, fmt.Errorf("missing closures")
	}

	leaves := make([]txscript.TapLeaf, 0, len(v.Closures))
	for _, closure := range v.Closures {
		script, err := closure.Script()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get script for closure %T: %w", closure, err)
		}
		leaves = append(leaves, txscript.NewBaseTapLeaf(script))
	}

	tapTree := txscript.AssembleTaprootScriptTree(leaves...)
	root := tapTree.RootNode.TapHash()
	taprootKey := txscript.ComputeTaprootOutputKey(UnspendableKey(), root[:])

	return taprootKey, &TapscriptTree{tapTree}, nil
}

// PkScript returns the P2TR output script locked by the vtxo script.
func (v *VtxoScript) PkScript() ([]byte, error) {
	taprootKey, _, err := v.TapTree()
	if err != nil {
		return nil, err
	}
	return common.P2TRScript(taprootKey)
}

// ForfeitProof returns the merkle proof of the first collaborative leaf.
func (v *VtxoScript) ForfeitProof() (*TaprootMerkleProof, Closure, error) {
	forfeits := v.ForfeitClosures()
	if len(forfeits) <= 0 {
		return nil, nil, fmt.Errorf("no forfeit closure found")
	}
	closure := forfeits[0]

	script, err := closure.Script()
	if err != nil {
		return nil, nil, err
	}

	_, tapTree, err := v.TapTree()
	if err != nil {
		return nil, nil, err
	}

	proof, err := tapTree.GetTaprootMerkleProof(txscript.NewBaseTapLeaf(script).TapHash())
	if err != nil {
		return nil, nil, err
	}
	return proof, closure, nil
}

type TapscriptTree struct {
	*txscript.IndexedTapScriptTree
}

func (b TapscriptTree) GetRoot() chainhash.Hash {
	return b.RootNode.TapHash()
}

func (b TapscriptTree) GetTaprootMerkleProof(leafhash chainhash.Hash) (*TaprootMerkleProof, error) {
	index, ok := b.LeafProofIndex[leafhash]
	if !ok {
		return nil, ErrLeafNotFound
	}

	proof := b.LeafMerkleProofs[index]
	controlBlock := proof.ToControlBlock(UnspendableKey())

	return &TaprootMerkleProof{
		ControlBlock: &controlBlock,
		Script:       proof.Script,
	}, nil
}
