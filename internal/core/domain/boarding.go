package domain

import (
	"time"

	"github.com/ark-network/ark-wallet-api/common"
	"github.com/ark-network/ark-wallet-api/common/tree"
)

// ExplorerUtxo is the on-chain evidence about an output sent to an address
type ExplorerUtxo struct {
	Outpoint
	Amount      uint64
	Confirmed   bool
	ConfirmedAt time.Time
	Spent       bool
}

// BoardingOutput is the on-chain address a wallet uses to enter the Ark
type BoardingOutput struct {
	Address    string
	VtxoScript *tree.VtxoScript
	ExitDelay  common.RelativeLocktime
}

type BoardingOutpoint struct {
	ExplorerUtxo
	Output BoardingOutput
}

type BoardingOutpoints struct {
	Spendable []BoardingOutpoint
	Expired   []BoardingOutpoint
	Pending   []BoardingOutpoint
	// Settled holds utxos already spent on-chain
	Settled []BoardingOutpoint
}

func (b BoardingOutpoints) SpendableBalance() uint64 {
	return sumBoarding(b.Spendable)
}

func (b BoardingOutpoints) ExpiredBalance() uint64 {
	return sumBoarding(b.Expired)
}

func (b BoardingOutpoints) PendingBalance() uint64 {
	return sumBoarding(b.Pending)
}

func sumBoarding(outs []BoardingOutpoint) uint64 {
	total := uint64(0)
	for _, o := range outs {
		total += o.Amount
	}
	return total
}

// ChainSnapshot is an immutable view of the explorer evidence, keyed by
// address, taken at Now.
type ChainSnapshot struct {
	now   time.Time
	utxos map[string][]ExplorerUtxo
}

func NewChainSnapshot(now time.Time, utxos map[string][]ExplorerUtxo) ChainSnapshot {
	copied := make(map[string][]ExplorerUtxo, len(utxos))
	for addr, list := range utxos {
		copied[addr] = append([]ExplorerUtxo(nil), list...)
	}
	return ChainSnapshot{now: now, utxos: copied}
}

func (s ChainSnapshot) Now() time.Time {
	return s.now
}

func (s ChainSnapshot) Utxos(address string) []ExplorerUtxo {
	return append([]ExplorerUtxo(nil), s.utxos[address]...)
}
