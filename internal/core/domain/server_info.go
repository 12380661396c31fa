package domain

import (
	"fmt"

	"github.com/ark-network/ark-wallet-api/common"
	"github.com/btcsuite/btcd/txscript"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// ServerInfo holds the server parameters of a session, it is fetched once
// and never mutated.
type ServerInfo struct {
	Version             string
	PubKey              *secp256k1.PublicKey
	Network             common.Network
	Dust                uint64
	VtxoTreeExpiry      common.RelativeLocktime
	UnilateralExitDelay common.RelativeLocktime
	BoardingExitDelay   common.RelativeLocktime
	RoundInterval       int64
	ForfeitAddress      string
}

// ForfeitPkScript decodes the forfeit address in the server network.
func (i ServerInfo) ForfeitPkScript() ([]byte, txscript.ScriptClass, error) {
	addr, err := i.Network.DecodeAddress(i.ForfeitAddress)
	if err != nil {
		return nil, txscript.NonStandardTy, NewConversionError("forfeit address", err)
	}

	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, txscript.NonStandardTy, NewConversionError("forfeit address", err)
	}

	return pkScript, txscript.GetScriptClass(pkScript), nil
}

// BoardingDelay falls back to the unilateral exit delay for servers not
// advertising a dedicated boarding delay.
func (i ServerInfo) BoardingDelay() common.RelativeLocktime {
	if i.BoardingExitDelay.Value == 0 {
		return i.UnilateralExitDelay
	}
	return i.BoardingExitDelay
}

func (i ServerInfo) Validate() error {
	if i.PubKey == nil {
		return NewConversionError("server pubkey", fmt.Errorf("missing"))
	}
	if len(i.ForfeitAddress) <= 0 {
		return NewConversionError("forfeit address", fmt.Errorf("missing"))
	}
	if i.VtxoTreeExpiry.Value == 0 {
		return NewConversionError("vtxo tree expiry", fmt.Errorf("missing"))
	}
	if i.UnilateralExitDelay.Value == 0 {
		return NewConversionError("unilateral exit delay", fmt.Errorf("missing"))
	}
	return nil
}
