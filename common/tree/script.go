package tree

import (
	"fmt"

	"github.com/ark-network/ark-wallet-api/common"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

type Closure interface {
	Script() ([]byte, error)
	// WitnessSize is the size of the signatures satisfying the closure
	WitnessSize() int
}

// MultisigClosure is an n-of-n checksig chain
type MultisigClosure struct {
	PubKeys []*secp256k1.PublicKey
}

// CSVSigClosure lets Pubkey spend alone after Locktime
type CSVSigClosure struct {
	Pubkey   *secp256k1.PublicKey
	Locktime common.RelativeLocktime
}

// CSVMultisigClosure is a MultisigClosure guarded by a relative timelock
type CSVMultisigClosure struct {
	MultisigClosure
	Locktime common.RelativeLocktime
}

func (f *MultisigClosure) WitnessSize() int {
	return 64 * len(f.PubKeys)
}

func (f *MultisigClosure) Script() ([]byte, error) {
	if len(f.PubKeys) == 0 {
		return nil, fmt.Errorf("missing public keys")
	}

	builder := txscript.NewScriptBuilder()
	for i, pubkey := range f.PubKeys {
		if pubkey == nil {
			return nil, fmt.Errorf("nil public key at index %d", i)
		}
		builder.AddData(schnorr.SerializePubKey(pubkey))
		if i == len(f.PubKeys)-1 {
			builder.AddOp(txscript.OP_CHECKSIG)
			continue
		}
		builder.AddOp(txscript.OP_CHECKSIGVERIFY)
	}

	return builder.Script()
}

func (d *CSVSigClosure) WitnessSize() int {
	return 64
}

func (d *CSVSigClosure) Script() ([]byte, error) {
	if d.Pubkey == nil {
		return nil, fmt.Errorf("missing public key")
	}

	csvScript, err := encodeCsvScript(d.Locktime)
	if err != nil {
		return nil, err
	}

	checksigScript, err := txscript.NewScriptBuilder().
		AddData(schnorr.SerializePubKey(d.Pubkey)).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	if err != nil {
		return nil, err
	}

	return append(csvScript, checksigScript...), nil
}

func (d *CSVMultisigClosure) Script() ([]byte, error) {
	csvScript, err := encodeCsvScript(d.Locktime)
	if err != nil {
		return nil, err
	}

	multisigScript, err := d.MultisigClosure.Script()
	if err != nil {
		return nil, err
	}

	return append(csvScript, multisigScript...), nil
}

// checkSequenceVerifyScript without checksig
func encodeCsvScript(locktime common.RelativeLocktime) ([]byte, error) {
	sequence, err := common.BIP68Sequence(locktime)
	if err != nil {
		return nil, err
	}

	return txscript.NewScriptBuilder().
		AddInt64(int64(sequence)).
		AddOps([]byte{
			txscript.OP_CHECKSEQUENCEVERIFY,
			txscript.OP_DROP,
		}).
		Script()
}

// SweepRoot is the tapscript root of the vtxo tree outputs: a single leaf
// letting the server sweep the tree once it expires.
func SweepRoot(server *secp256k1.PublicKey, treeExpiry common.RelativeLocktime) ([]byte, error) {
	sweepClosure := &CSVMultisigClosure{
		MultisigClosure: MultisigClosure{PubKeys: []*secp256k1.PublicKey{server}},
		Locktime:        treeExpiry,
	}

	script, err := sweepClosure.Script()
	if err != nil {
		return nil, err
	}

	root := txscript.NewBaseTapLeaf(script).TapHash()
	return root[:], nil
}
