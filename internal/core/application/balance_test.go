package application

import (
	"testing"
	"time"

	"github.com/ark-network/ark-wallet-api/common"
	"github.com/ark-network/ark-wallet-api/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestListVirtualOutpoints(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	snapshot := domain.NewChainSnapshot(now, nil)

	vtxos := []domain.Vtxo{
		{Outpoint: outpoint("a", 0), Amount: 1000, ExpiresAt: now.Add(time.Hour)},
		{Outpoint: outpoint("b", 0), Amount: 2000, ExpiresAt: now},
		{Outpoint: outpoint("c", 0), Amount: 4000, ExpiresAt: now.Add(-time.Hour)},
		{Outpoint: outpoint("d", 0), Amount: 8000, ExpiresAt: now.Add(time.Hour), Spent: true},
		{Outpoint: outpoint("e", 0), Amount: 16000, ExpiresAt: now.Add(-time.Hour), Swept: true},
		{Outpoint: outpoint("f", 0), Amount: 32000},
	}

	outpoints := ListVirtualOutpoints(snapshot, nil, vtxos)

	require.Len(t, outpoints.Spendable, 2)
	require.Len(t, outpoints.Expired, 2)
	require.Len(t, outpoints.Settled, 2)
	require.Equal(t, uint64(33000), outpoints.SpendableBalance())
	require.Equal(t, uint64(6000), outpoints.ExpiredBalance())

	total := len(outpoints.Spendable) + len(outpoints.Expired) + len(outpoints.Settled)
	require.Equal(t, len(vtxos), total)

	// same snapshot, same classification
	require.Equal(t, outpoints, ListVirtualOutpoints(snapshot, nil, vtxos))
}

func TestListBoardingOutpoints(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	exitDelay := common.RelativeLocktime{Type: common.LocktimeTypeSecond, Value: 512 * 10}

	output := domain.BoardingOutput{Address: "bcrt1boarding", ExitDelay: exitDelay}
	otherOutput := domain.BoardingOutput{Address: "bcrt1other", ExitDelay: exitDelay}

	utxos := map[string][]domain.ExplorerUtxo{
		output.Address: {
			{Outpoint: outpoint("a", 0), Amount: 1000, Confirmed: true, ConfirmedAt: now.Add(-time.Minute)},
			{Outpoint: outpoint("b", 0), Amount: 2000},
			{Outpoint: outpoint("c", 0), Amount: 4000, Confirmed: true, ConfirmedAt: now.Add(-exitDelay.Duration())},
			{Outpoint: outpoint("d", 0), Amount: 8000, Confirmed: true, ConfirmedAt: now, Spent: true},
		},
		otherOutput.Address: {
			{Outpoint: outpoint("e", 0), Amount: 16000, Confirmed: true, ConfirmedAt: now},
		},
		"bcrt1unknown": {
			{Outpoint: outpoint("f", 0), Amount: 32000, Confirmed: true, ConfirmedAt: now},
		},
	}
	snapshot := domain.NewChainSnapshot(now, utxos)

	outpoints := ListBoardingOutpoints(snapshot, []domain.BoardingOutput{output, otherOutput})

	require.Len(t, outpoints.Spendable, 2)
	require.Len(t, outpoints.Pending, 1)
	require.Len(t, outpoints.Expired, 1)
	require.Len(t, outpoints.Settled, 1)
	require.Equal(t, uint64(17000), outpoints.SpendableBalance())
	require.Equal(t, uint64(2000), outpoints.PendingBalance())
	require.Equal(t, uint64(4000), outpoints.ExpiredBalance())
	require.Equal(t, otherOutput, outpoints.Spendable[1].Output)

	// mutating the source map doesn't affect the snapshot
	utxos[output.Address][1].Confirmed = true
	require.Equal(t, outpoints, ListBoardingOutpoints(snapshot, []domain.BoardingOutput{output, otherOutput}))
}

func outpoint(seed string, vout uint32) domain.Outpoint {
	txid := make([]byte, 64)
	for i := range txid {
		txid[i] = '0'
	}
	copy(txid[64-len(seed):], seed)
	return domain.Outpoint{Txid: string(txid), VOut: vout}
}
