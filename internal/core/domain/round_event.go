package domain

import (
	"github.com/ark-network/ark-wallet-api/common/tree"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
)

// RoundEvent is one of the events of the server stream.
type RoundEvent interface {
	RoundID() string
	isRoundEvent()
}

func (e RoundSigningStarted) isRoundEvent()         {}
func (e RoundSigningNoncesGenerated) isRoundEvent() {}
func (e RoundFinalizationStarted) isRoundEvent()    {}
func (e RoundFinalized) isRoundEvent()              {}
func (e RoundFailed) isRoundEvent()                 {}

func (e RoundSigningStarted) RoundID() string         { return e.ID }
func (e RoundSigningNoncesGenerated) RoundID() string { return e.ID }
func (e RoundFinalizationStarted) RoundID() string    { return e.ID }
func (e RoundFinalized) RoundID() string              { return e.ID }
func (e RoundFailed) RoundID() string                 { return e.ID }

type RoundSigningStarted struct {
	ID               string
	UnsignedVtxoTree tree.TxTree
	UnsignedRoundTx  string
}

type RoundSigningNoncesGenerated struct {
	ID     string
	Nonces tree.TreeNonces
}

type RoundFinalizationStarted struct {
	ID              string
	RoundTx         string
	Connectors      tree.TxTree
	ConnectorsIndex map[string]Outpoint // vtxo outpoint -> connector outpoint
	MinRelayFeeRate chainfee.SatPerKVByte
}

type RoundFinalized struct {
	ID   string
	Txid string
}

type RoundFailed struct {
	ID     string
	Reason string
}

type RoundEventChannel struct {
	Event RoundEvent
	Err   error
}
