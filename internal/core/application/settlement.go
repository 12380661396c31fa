package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ark-network/ark-wallet-api/common"
	"github.com/ark-network/ark-wallet-api/common/tree"
	"github.com/ark-network/ark-wallet-api/internal/core/domain"
	"github.com/ark-network/ark-wallet-api/internal/core/ports"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	log "github.com/sirupsen/logrus"
)

type roundState int

const (
	stateIdle roundState = iota
	stateInputsRegistered
	stateOutputsRegistered
	stateAwaitingSigning
	stateAwaitingNoncesAggregated
	stateAwaitingFinalization
	stateAwaitingFinalized
	stateFinalized
	stateNoOp
)

func (s roundState) String() string {
	switch s {
	case stateIdle:
		return "Idle"
	case stateInputsRegistered:
		return "InputsRegistered"
	case stateOutputsRegistered:
		return "OutputsRegistered"
	case stateAwaitingSigning:
		return "AwaitingSigning"
	case stateAwaitingNoncesAggregated:
		return "AwaitingNoncesAggregated"
	case stateAwaitingFinalization:
		return "AwaitingFinalization"
	case stateAwaitingFinalized:
		return "AwaitingFinalized"
	case stateFinalized:
		return "Finalized"
	case stateNoOp:
		return "NoOp"
	default:
		return "Unknown"
	}
}

const (
	RoundOutcomeFinalized = "finalized"
	RoundOutcomeNoop      = "noop"
	RoundOutcomeFailed    = "failed"
)

type RoundConfig struct {
	// EventTimeout bounds the wait at every Awaiting* state, 0 means no bound
	EventTimeout time.Duration
	// PingInterval is the keep-alive period until the round signing starts,
	// 0 disables the background pings
	PingInterval time.Duration
}

type SettleRequest struct {
	Vtxos         []domain.VirtualOutpoint
	BoardingUtxos []domain.BoardingOutpoint
	// Destination is the ark address receiving the settled amount
	Destination string
}

// RoundResult is the outcome of a settlement, NothingToSettle is set if
// the request had no input and the server was never contacted.
type RoundResult struct {
	Txid            string
	RoundID         string
	Amount          uint64
	NothingToSettle bool
}

// RoundSettler drives one wallet through a full round. A RoundSettler
// holds no per-round state, concurrent Settle calls are independent.
type RoundSettler struct {
	client  ports.TransportClient
	info    domain.ServerInfo
	cfg     RoundConfig
	metrics ports.RoundMetrics

	pubkey *btcec.PublicKey
	sign   SignFunc

	newEphemeralKey func() (*btcec.PrivateKey, error)
}

func NewRoundSettler(
	client ports.TransportClient, info domain.ServerInfo, cfg RoundConfig,
	metrics ports.RoundMetrics, pubkey *btcec.PublicKey, sign SignFunc,
) *RoundSettler {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &RoundSettler{
		client:          client,
		info:            info,
		cfg:             cfg,
		metrics:         metrics,
		pubkey:          pubkey,
		sign:            sign,
		newEphemeralKey: btcec.NewPrivateKey,
	}
}

// Settle registers the given inputs for the next round and follows the
// server events until the round is finalized. Any failure aborts the
// round, nothing is retried.
func (s *RoundSettler) Settle(ctx context.Context, req SettleRequest) (*RoundResult, error) {
	started := time.Now()

	session := &roundSession{
		RoundSettler: s,
		state:        stateIdle,
		vtxos:        req.Vtxos,
		boarding:     req.BoardingUtxos,
		destination:  req.Destination,
	}

	result, err := session.run(ctx)
	switch {
	case err != nil:
		s.metrics.RoundCompleted(RoundOutcomeFailed, time.Since(started))
		log.WithError(err).WithField("state", session.state.String()).Warn("round settlement failed")
	case result.NothingToSettle:
		s.metrics.RoundCompleted(RoundOutcomeNoop, time.Since(started))
	default:
		s.metrics.RoundCompleted(RoundOutcomeFinalized, time.Since(started))
	}
	return result, err
}

// roundSession is the state of a single run, it's never shared.
type roundSession struct {
	*RoundSettler

	state       roundState
	vtxos       []domain.VirtualOutpoint
	boarding    []domain.BoardingOutpoint
	destination string

	amount       uint64
	paymentID    string
	roundID      string
	roundTxid    string
	treeSigner   tree.SignerSession
	outputScript []byte
}

func (s *roundSession) run(ctx context.Context) (*RoundResult, error) {
	if len(s.vtxos) <= 0 && len(s.boarding) <= 0 {
		s.setState(stateNoOp)
		log.Debug("no spendable inputs, nothing to settle")
		return &RoundResult{NothingToSettle: true}, nil
	}

	inputs, outputs, err := s.prepareRegistration()
	if err != nil {
		return nil, err
	}

	paymentID, err := s.client.RegisterInputsForNextRound(ctx, inputs)
	if err != nil {
		return nil, transportError("register inputs", err)
	}
	s.paymentID = paymentID
	s.setState(stateInputsRegistered)
	log.Debugf("registered %d inputs with payment id %s", len(inputs), paymentID)

	ephemeralKey, err := s.newEphemeralKey()
	if err != nil {
		return nil, domain.NewSigningError(err)
	}
	s.treeSigner = tree.NewTreeSignerSession(ephemeralKey)

	if err := s.client.RegisterOutputsForNextRound(
		ctx, paymentID, outputs, []string{s.treeSigner.GetPublicKey()}, true,
	); err != nil {
		return nil, transportError("register outputs", err)
	}
	s.setState(stateOutputsRegistered)

	if err := s.client.Ping(ctx, paymentID); err != nil {
		return nil, transportError("ping", err)
	}

	eventsCh, closeStream, err := s.client.GetEventStream(ctx)
	if err != nil {
		return nil, transportError("event stream", err)
	}
	defer closeStream()

	stopPing := s.startPinging(ctx)
	defer stopPing()

	s.setState(stateAwaitingSigning)
	for {
		event, err := s.nextEvent(ctx, eventsCh)
		if err != nil {
			return nil, err
		}

		if err := s.handleEvent(ctx, event, stopPing); err != nil {
			return nil, err
		}

		if s.state == stateFinalized {
			return &RoundResult{Txid: s.roundTxid, RoundID: s.roundID, Amount: s.amount}, nil
		}
	}
}

// prepareRegistration returns the round inputs and the single offchain
// output to the destination, whose amount is the sum of the inputs.
func (s *roundSession) prepareRegistration() ([]domain.RoundInput, []domain.RoundOutput, error) {
	destination, err := common.DecodeAddress(s.destination)
	if err != nil {
		return nil, nil, domain.NewInvalidRequestError("invalid destination address: %s", err)
	}
	if !bytes.Equal(
		schnorr.SerializePubKey(destination.Server), schnorr.SerializePubKey(s.info.PubKey),
	) {
		return nil, nil, domain.NewInvalidRequestError(
			"destination address %s belongs to another server", s.destination,
		)
	}
	outputScript, err := destination.PkScript()
	if err != nil {
		return nil, nil, domain.NewInvalidRequestError("invalid destination address: %s", err)
	}
	s.outputScript = outputScript

	inputs := make([]domain.RoundInput, 0, len(s.vtxos)+len(s.boarding))
	amount := uint64(0)
	for _, vtxo := range s.vtxos {
		tapscripts, err := vtxo.VtxoScript.Encode()
		if err != nil {
			return nil, nil, domain.NewSigningError(err)
		}
		inputs = append(inputs, domain.RoundInput{Outpoint: vtxo.Outpoint, Tapscripts: tapscripts})
		amount += vtxo.Amount
	}
	for _, utxo := range s.boarding {
		tapscripts, err := utxo.Output.VtxoScript.Encode()
		if err != nil {
			return nil, nil, domain.NewSigningError(err)
		}
		inputs = append(inputs, domain.RoundInput{Outpoint: utxo.Outpoint, Tapscripts: tapscripts})
		amount += utxo.Amount
	}

	if amount < s.info.Dust {
		return nil, nil, domain.NewBelowDustError("settlement amount", amount, s.info.Dust)
	}

	outputs := []domain.RoundOutput{{
		Address:  s.destination,
		Amount:   amount,
		Offchain: true,
	}}
	if tot := domain.TotalOutputAmount(outputs); tot != amount {
		return nil, nil, fmt.Errorf("outputs amount %d does not match inputs amount %d", tot, amount)
	}

	s.amount = amount
	return inputs, outputs, nil
}

// nextEvent suspends until the next event, the end of the stream, the
// state timeout or the cancellation of ctx, whichever comes first.
func (s *roundSession) nextEvent(
	ctx context.Context, eventsCh <-chan domain.RoundEventChannel,
) (domain.RoundEvent, error) {
	var timeout <-chan time.Time
	if s.cfg.EventTimeout > 0 {
		timer := time.NewTimer(s.cfg.EventTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, fmt.Errorf(
			"%w: %w at %s after %s", domain.ErrEventTimeout, domain.ErrNetwork, s.state, s.cfg.EventTimeout,
		)
	case notify, ok := <-eventsCh:
		if !ok {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, domain.NewNetworkError("event stream", fmt.Errorf("closed at %s", s.state))
		}
		if notify.Err != nil {
			return nil, transportError("event stream", notify.Err)
		}
		if notify.Event == nil {
			return nil, domain.NewConversionError("event", fmt.Errorf("empty event"))
		}
		return notify.Event, nil
	}
}

// handleEvent dispatches the event to the transition of the current state.
func (s *roundSession) handleEvent(ctx context.Context, event domain.RoundEvent, stopPing func()) error {
	// the round id is unknown until signing starts, so before that any
	// failure is taken as the end of the registration
	if failed, ok := event.(domain.RoundFailed); ok {
		if s.roundID != "" && failed.ID != s.roundID {
			return s.violation("got failure of round %s while in round %s", failed.ID, s.roundID)
		}
		return fmt.Errorf("%w: %s", domain.ErrRoundFailed, failed.Reason)
	}

	if s.state != stateAwaitingSigning && event.RoundID() != s.roundID {
		return s.violation("got event of round %s while in round %s", event.RoundID(), s.roundID)
	}

	switch s.state {
	case stateAwaitingSigning:
		e, ok := event.(domain.RoundSigningStarted)
		if !ok {
			return s.unexpected(event)
		}
		stopPing()
		return s.onRoundSigningStarted(ctx, e)
	case stateAwaitingNoncesAggregated:
		e, ok := event.(domain.RoundSigningNoncesGenerated)
		if !ok {
			return s.unexpected(event)
		}
		return s.onRoundSigningNoncesGenerated(ctx, e)
	case stateAwaitingFinalization:
		e, ok := event.(domain.RoundFinalizationStarted)
		if !ok {
			return s.unexpected(event)
		}
		return s.onRoundFinalizationStarted(ctx, e)
	case stateAwaitingFinalized:
		e, ok := event.(domain.RoundFinalized)
		if !ok {
			return s.unexpected(event)
		}
		return s.onRoundFinalized(e)
	default:
		return s.violation("no event expected")
	}
}

func (s *roundSession) onRoundSigningStarted(ctx context.Context, event domain.RoundSigningStarted) error {
	if event.ID == "" {
		return s.violation("missing round id")
	}
	s.roundID = event.ID
	logger := log.WithField("round", s.roundID)
	logger.Info("round signing started")

	roundTx, err := psbt.NewFromRawBytes(strings.NewReader(event.UnsignedRoundTx), true)
	if err != nil {
		return domain.NewConversionError("unsigned round tx", err)
	}
	s.roundTxid = roundTx.UnsignedTx.TxHash().String()

	if err := s.validateVtxoTree(event.UnsignedVtxoTree); err != nil {
		return err
	}

	sweepRoot, err := tree.SweepRoot(s.info.PubKey, s.info.VtxoTreeExpiry)
	if err != nil {
		return domain.NewSigningError(err)
	}

	if err := s.treeSigner.Init(sweepRoot, roundTx, event.UnsignedVtxoTree); err != nil {
		return domain.NewSigningError(err)
	}

	nonces, err := s.treeSigner.GetNonces()
	if err != nil {
		return domain.NewSigningError(err)
	}
	if !hasAny(nonces) {
		return s.violation("cosigner key not found in vtxo tree")
	}

	if err := s.client.SubmitTreeNonces(
		ctx, s.roundID, s.treeSigner.GetPublicKey(), nonces,
	); err != nil {
		return transportError("submit tree nonces", err)
	}

	logger.Debug("submitted tree nonces")
	s.setState(stateAwaitingNoncesAggregated)
	return nil
}

func (s *roundSession) onRoundSigningNoncesGenerated(
	ctx context.Context, event domain.RoundSigningNoncesGenerated,
) error {
	logger := log.WithField("round", s.roundID)
	logger.Info("round combined nonces generated")

	s.treeSigner.SetAggregatedNonces(event.Nonces)
	sigs, err := s.treeSigner.Sign()
	if err != nil {
		return domain.NewSigningError(err)
	}

	if err := s.client.SubmitTreeSignatures(
		ctx, s.roundID, s.treeSigner.GetPublicKey(), sigs,
	); err != nil {
		return transportError("submit tree signatures", err)
	}

	logger.Debug("submitted tree signatures")
	s.setState(stateAwaitingFinalization)
	return nil
}

func (s *roundSession) onRoundFinalizationStarted(
	ctx context.Context, event domain.RoundFinalizationStarted,
) error {
	logger := log.WithField("round", s.roundID)
	logger.Info("round finalization started")

	roundTx, err := psbt.NewFromRawBytes(strings.NewReader(event.RoundTx), true)
	if err != nil {
		return domain.NewConversionError("round tx", err)
	}
	if txid := roundTx.UnsignedTx.TxHash().String(); txid != s.roundTxid {
		return s.violation("round tx %s differs from the signed one %s", txid, s.roundTxid)
	}

	if len(s.vtxos) > 0 {
		if err := s.validateConnectors(event); err != nil {
			return err
		}
	}

	forfeits, err := CreateAndSignForfeits(ctx, s.info, event, s.vtxos, s.pubkey, s.sign)
	if err != nil {
		return err
	}
	s.metrics.ForfeitsSigned(len(forfeits))

	signedRoundTx, err := SignRoundTx(event.RoundTx, s.boarding, s.pubkey, s.sign)
	if err != nil {
		return err
	}

	logger.Infof("submitting %d forfeit transactions", len(forfeits))
	if err := s.client.SubmitSignedForfeitTxs(ctx, forfeits, signedRoundTx); err != nil {
		return transportError("submit forfeit txs", err)
	}

	logger.Info("waiting for round finalization...")
	s.setState(stateAwaitingFinalized)
	return nil
}

func (s *roundSession) onRoundFinalized(event domain.RoundFinalized) error {
	if event.Txid != s.roundTxid {
		return s.violation("finalized round tx %s differs from the signed one %s", event.Txid, s.roundTxid)
	}

	log.WithField("round", s.roundID).Infof("round completed %s", event.Txid)
	s.setState(stateFinalized)
	return nil
}

// validateVtxoTree checks the tree is rooted in the round tx and that it
// mints the registered output.
func (s *roundSession) validateVtxoTree(vtxoTree tree.TxTree) error {
	if err := vtxoTree.Validate(); err != nil {
		return domain.NewConversionError("vtxo tree", err)
	}

	root, _ := vtxoTree.Root()
	if root.ParentTxid != s.roundTxid {
		return s.violation("vtxo tree root spends %s instead of round tx %s", root.ParentTxid, s.roundTxid)
	}

	for _, leaf := range vtxoTree.Leaves() {
		ptx, err := psbt.NewFromRawBytes(strings.NewReader(leaf.Tx), true)
		if err != nil {
			return domain.NewConversionError("vtxo tree", err)
		}
		for _, out := range ptx.UnsignedTx.TxOut {
			if bytes.Equal(out.PkScript, s.outputScript) && uint64(out.Value) == s.amount {
				return nil
			}
		}
	}

	return s.violation("registered output %s not found in vtxo tree", s.destination)
}

func (s *roundSession) validateConnectors(event domain.RoundFinalizationStarted) error {
	if err := event.Connectors.Validate(); err != nil {
		return domain.NewConversionError("connectors", err)
	}

	root, _ := event.Connectors.Root()
	if root.ParentTxid != s.roundTxid {
		return s.violation("connectors root spends %s instead of round tx %s", root.ParentTxid, s.roundTxid)
	}

	for _, vtxo := range s.vtxos {
		if _, ok := event.ConnectorsIndex[vtxo.Outpoint.String()]; !ok {
			return s.violation("missing connector for vtxo %s", vtxo.Outpoint)
		}
	}
	return nil
}

// startPinging keeps the payment alive until the returned func is called.
func (s *roundSession) startPinging(ctx context.Context) func() {
	if s.cfg.PingInterval <= 0 {
		return func() {}
	}

	pingCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	paymentID := s.paymentID

	go func() {
		defer close(done)

		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				if err := s.client.Ping(pingCtx, paymentID); err != nil && pingCtx.Err() == nil {
					log.WithError(err).Warn("failed to ping server")
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func (s *roundSession) setState(state roundState) {
	s.state = state
	s.metrics.RoundStep(state.String())
}

func (s *roundSession) violation(format string, args ...interface{}) error {
	return &domain.ProtocolViolationError{
		State:  s.state.String(),
		Reason: fmt.Sprintf(format, args...),
	}
}

func (s *roundSession) unexpected(event domain.RoundEvent) error {
	return s.violation("unexpected event %T", event)
}

// transportError keeps the conversion errors reported by the transport and
// tags everything else as network failure.
func transportError(op string, err error) error {
	if errors.Is(err, domain.ErrConversion) || errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.NewNetworkError(op, err)
}

func hasAny(nonces tree.TreeNonces) bool {
	for _, level := range nonces {
		for _, nonce := range level {
			if nonce != nil {
				return true
			}
		}
	}
	return false
}

type noopMetrics struct{}

func (noopMetrics) RoundCompleted(string, time.Duration) {}
func (noopMetrics) RoundStep(string)                     {}
func (noopMetrics) ForfeitsSigned(int)                   {}
