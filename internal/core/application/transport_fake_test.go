package application

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ark-network/ark-wallet-api/common"
	"github.com/ark-network/ark-wallet-api/common/tree"
	"github.com/ark-network/ark-wallet-api/internal/core/domain"
	"github.com/ark-network/ark-wallet-api/internal/test/fixtures"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr/musig2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	"github.com/stretchr/testify/require"
)

const (
	testRoundID   = "round-1"
	testPaymentID = "payment-1"
)

// fakeServer plays an honest coordinator with a single participant, every
// rpc answer is recorded in calls along with the emitted events.
type fakeServer struct {
	t         *testing.T
	serverKey *btcec.PrivateKey
	info      domain.ServerInfo

	boarding map[string]*wire.TxOut
	vtxos    map[string][]domain.Vtxo

	// rewrite replaces every emitted event, returning nothing drops it
	rewrite      func(event domain.RoundEvent) []domain.RoundEvent
	signingDelay time.Duration

	lock          sync.Mutex
	calls         []string
	inputs        []domain.RoundInput
	outputs       []domain.RoundOutput
	round         *fixtures.Round
	events        chan domain.RoundEventChannel
	forfeits      []string
	signedRoundTx string
	redeemTxs     []string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	serverKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	return &fakeServer{
		t:         t,
		serverKey: serverKey,
		info:      fixtures.ServerInfo(serverKey.PubKey()),
		boarding:  make(map[string]*wire.TxOut),
		vtxos:     make(map[string][]domain.Vtxo),
	}
}

func (f *fakeServer) record(call string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeServer) recordedCalls() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string{}, f.calls...)
}

func (f *fakeServer) countCalls(call string) int {
	count := 0
	for _, c := range f.recordedCalls() {
		if c == call {
			count++
		}
	}
	return count
}

func (f *fakeServer) emit(event domain.RoundEvent) {
	events := []domain.RoundEvent{event}
	if f.rewrite != nil {
		events = f.rewrite(event)
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	for _, e := range events {
		f.calls = append(f.calls, eventName(e))
		f.events <- domain.RoundEventChannel{Event: e}
	}
}

func eventName(event domain.RoundEvent) string {
	return fmt.Sprintf("event:%T", event)
}

func (f *fakeServer) GetInfo(context.Context) (*domain.ServerInfo, error) {
	info := f.info
	return &info, nil
}

func (f *fakeServer) ListVtxos(_ context.Context, addr string) ([]domain.Vtxo, []domain.Vtxo, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.vtxos[addr], nil, nil
}

func (f *fakeServer) RegisterInputsForNextRound(_ context.Context, inputs []domain.RoundInput) (string, error) {
	f.record("register_inputs")

	f.lock.Lock()
	defer f.lock.Unlock()
	f.inputs = inputs
	return testPaymentID, nil
}

func (f *fakeServer) RegisterOutputsForNextRound(
	_ context.Context, paymentID string, outputs []domain.RoundOutput, cosigners []string, ephemeral bool,
) error {
	f.record("register_outputs")

	if paymentID != testPaymentID || len(cosigners) != 1 || !ephemeral || len(outputs) != 1 {
		return fmt.Errorf("invalid output registration")
	}

	buf, err := hex.DecodeString(cosigners[0])
	if err != nil {
		return err
	}
	cosigner, err := btcec.ParsePubKey(buf)
	if err != nil {
		return err
	}

	addr, err := common.DecodeAddress(outputs[0].Address)
	if err != nil {
		return err
	}
	receiverScript, err := addr.PkScript()
	if err != nil {
		return err
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	params := fixtures.RoundParams{
		ServerKey:      f.serverKey.PubKey(),
		Cosigners:      []*btcec.PublicKey{cosigner},
		ReceiverScript: receiverScript,
		Amount:         outputs[0].Amount,
	}
	for _, in := range f.inputs {
		if prevout, ok := f.boarding[in.Outpoint.String()]; ok {
			params.Boarding = append(params.Boarding, fixtures.BoardingInput{
				Outpoint: in.Outpoint, Prevout: prevout,
			})
			continue
		}
		params.Vtxos = append(params.Vtxos, in.Outpoint)
	}

	round, err := fixtures.NewRound(params)
	if err != nil {
		return err
	}
	f.outputs = outputs
	f.round = round
	return nil
}

func (f *fakeServer) Ping(_ context.Context, paymentID string) error {
	f.record("ping")
	if paymentID != testPaymentID {
		return fmt.Errorf("unknown payment %s", paymentID)
	}
	return nil
}

func (f *fakeServer) GetEventStream(context.Context) (<-chan domain.RoundEventChannel, func(), error) {
	f.record("event_stream")

	f.lock.Lock()
	f.events = make(chan domain.RoundEventChannel, 16)
	round := f.round
	f.lock.Unlock()

	signing := domain.RoundSigningStarted{
		ID:               testRoundID,
		UnsignedVtxoTree: round.VtxoTree,
		UnsignedRoundTx:  round.RoundTx,
	}
	if f.signingDelay > 0 {
		time.AfterFunc(f.signingDelay, func() { f.emit(signing) })
	} else {
		f.emit(signing)
	}

	return f.events, func() { f.record("close_stream") }, nil
}

func (f *fakeServer) SubmitTreeNonces(
	_ context.Context, roundID, cosignerPubkey string, nonces tree.TreeNonces,
) error {
	f.record("submit_tree_nonces")

	aggregated := make(tree.TreeNonces, 0, len(nonces))
	for _, level := range nonces {
		aggregatedLevel := make([]*tree.Musig2Nonce, 0, len(level))
		for _, nonce := range level {
			if nonce == nil {
				aggregatedLevel = append(aggregatedLevel, nil)
				continue
			}
			aggregatedNonce, err := musig2.AggregateNonces([][66]byte{nonce.PubNonce})
			if err != nil {
				return err
			}
			aggregatedLevel = append(aggregatedLevel, &tree.Musig2Nonce{PubNonce: aggregatedNonce})
		}
		aggregated = append(aggregated, aggregatedLevel)
	}

	f.emit(domain.RoundSigningNoncesGenerated{ID: roundID, Nonces: aggregated})
	return nil
}

func (f *fakeServer) SubmitTreeSignatures(
	_ context.Context, roundID, cosignerPubkey string, signatures tree.TreePartialSigs,
) error {
	f.record("submit_tree_signatures")

	if len(signatures) <= 0 || len(signatures[0]) <= 0 || signatures[0][0] == nil {
		return fmt.Errorf("missing signatures")
	}

	f.lock.Lock()
	round := f.round
	f.lock.Unlock()

	f.emit(domain.RoundFinalizationStarted{
		ID:              roundID,
		RoundTx:         round.RoundTx,
		Connectors:      round.Connectors,
		ConnectorsIndex: round.ConnectorsIndex,
		MinRelayFeeRate: chainfee.SatPerKVByte(1_000),
	})
	return nil
}

func (f *fakeServer) SubmitSignedForfeitTxs(_ context.Context, forfeits []string, signedRoundTx string) error {
	f.record("submit_forfeits")

	f.lock.Lock()
	f.forfeits = forfeits
	f.signedRoundTx = signedRoundTx
	round := f.round
	f.lock.Unlock()

	f.emit(domain.RoundFinalized{ID: testRoundID, Txid: round.RoundTxid})
	return nil
}

func (f *fakeServer) SubmitRedeemTx(_ context.Context, redeemTx string) (string, string, error) {
	f.record("submit_redeem_tx")

	ptx, err := psbt.NewFromRawBytes(strings.NewReader(redeemTx), true)
	if err != nil {
		return "", "", err
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	f.redeemTxs = append(f.redeemTxs, redeemTx)
	return redeemTx, ptx.UnsignedTx.TxHash().String(), nil
}

func (f *fakeServer) Close() {}

type fakeMetrics struct {
	lock     sync.Mutex
	outcomes []string
	steps    []string
	forfeits int
}

func (m *fakeMetrics) RoundCompleted(outcome string, _ time.Duration) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *fakeMetrics) RoundStep(step string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.steps = append(m.steps, step)
}

func (m *fakeMetrics) ForfeitsSigned(count int) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.forfeits += count
}
