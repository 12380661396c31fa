package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ark-network/ark-wallet-api/common/tree"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

type Outpoint struct {
	Txid string `json:"txid"`
	VOut uint32 `json:"vout"`
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.Txid, o.VOut)
}

func (o Outpoint) ToWire() (*wire.OutPoint, error) {
	hash, err := chainhash.NewHashFromStr(o.Txid)
	if err != nil {
		return nil, NewConversionError("outpoint txid", err)
	}
	return wire.NewOutPoint(hash, o.VOut), nil
}

func OutpointFromWire(o wire.OutPoint) Outpoint {
	return Outpoint{Txid: o.Hash.String(), VOut: o.Index}
}

// ParseOutpoint parses the txid:vout form
func ParseOutpoint(s string) (Outpoint, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return Outpoint{}, NewConversionError("outpoint", fmt.Errorf("invalid format %q", s))
	}
	if _, err := chainhash.NewHashFromStr(parts[0]); err != nil {
		return Outpoint{}, NewConversionError("outpoint txid", err)
	}
	vout, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Outpoint{}, NewConversionError("outpoint vout", err)
	}
	return Outpoint{Txid: parts[0], VOut: uint32(vout)}, nil
}

// Vtxo is an offchain output as reported by the server
type Vtxo struct {
	Outpoint
	Amount    uint64
	Script    string
	CreatedAt time.Time
	ExpiresAt time.Time
	RoundTxid string
	Spent     bool
	Swept     bool
	Pending   bool
}

// VirtualOutpoint is a vtxo owned by the wallet along with the script locking it
type VirtualOutpoint struct {
	Vtxo
	VtxoScript *tree.VtxoScript
}

// VirtualOutpoints groups the wallet's vtxos by spendability
type VirtualOutpoints struct {
	Spendable []VirtualOutpoint
	Expired   []VirtualOutpoint
	// Settled holds spent and swept vtxos, they never count toward a balance
	Settled []VirtualOutpoint
}

func (v VirtualOutpoints) SpendableBalance() uint64 {
	return sumVirtual(v.Spendable)
}

func (v VirtualOutpoints) ExpiredBalance() uint64 {
	return sumVirtual(v.Expired)
}

func sumVirtual(outs []VirtualOutpoint) uint64 {
	total := uint64(0)
	for _, o := range outs {
		total += o.Amount
	}
	return total
}
