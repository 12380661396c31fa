package common

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const addressVersion = 0

// Address is an offchain destination: the server key that backs the vtxo
// and the taproot output key the vtxo is locked to.
type Address struct {
	HRP        string
	Server     *secp256k1.PublicKey
	VtxoTapKey *secp256k1.PublicKey
}

func (a *Address) Encode() (string, error) {
	if a.Server == nil {
		return "", fmt.Errorf("missing server public key")
	}
	if a.VtxoTapKey == nil {
		return "", fmt.Errorf("missing vtxo tap public key")
	}

	combinedKey := append(
		[]byte{byte(addressVersion)}, schnorr.SerializePubKey(a.Server)...,
	)
	combinedKey = append(combinedKey, schnorr.SerializePubKey(a.VtxoTapKey)...)

	grp, err := bech32.ConvertBits(combinedKey, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.EncodeM(a.HRP, grp)
}

// PkScript is the P2TR script of the vtxo owned by the address.
func (a *Address) PkScript() ([]byte, error) {
	return P2TRScript(a.VtxoTapKey)
}

func (a *Address) Equal(other *Address) bool {
	if other == nil {
		return false
	}
	return a.HRP == other.HRP &&
		bytes.Equal(schnorr.SerializePubKey(a.Server), schnorr.SerializePubKey(other.Server)) &&
		bytes.Equal(schnorr.SerializePubKey(a.VtxoTapKey), schnorr.SerializePubKey(other.VtxoTapKey))
}

func DecodeAddress(addr string) (*Address, error) {
	if len(addr) <= 0 {
		return nil, fmt.Errorf("address is empty")
	}

	prefix, buf, err := bech32.DecodeNoLimit(addr)
	if err != nil {
		return nil, err
	}
	if prefix != Bitcoin.Addr && prefix != BitcoinTestNet.Addr {
		return nil, fmt.Errorf("invalid prefix %s", prefix)
	}
	grp, err := bech32.ConvertBits(buf, 5, 8, false)
	if err != nil {
		return nil, err
	}
	if len(grp) != 1+32+32 {
		return nil, fmt.Errorf("invalid address bytes length, expected 65 got %d", len(grp))
	}
	if grp[0] != addressVersion {
		return nil, fmt.Errorf("unsupported address version %d", grp[0])
	}

	serverKey, err := schnorr.ParsePubKey(grp[1:33])
	if err != nil {
		return nil, fmt.Errorf("failed to parse server public key: %s", err)
	}

	vtxoKey, err := schnorr.ParsePubKey(grp[33:])
	if err != nil {
		return nil, fmt.Errorf("failed to parse vtxo tap public key: %s", err)
	}

	return &Address{
		HRP:        prefix,
		Server:     serverKey,
		VtxoTapKey: vtxoKey,
	}, nil
}
