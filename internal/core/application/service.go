package application

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ark-network/ark-wallet-api/common"
	"github.com/ark-network/ark-wallet-api/common/tree"
	"github.com/ark-network/ark-wallet-api/internal/core/domain"
	"github.com/ark-network/ark-wallet-api/internal/core/ports"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	log "github.com/sirupsen/logrus"
)

type ServiceConfig struct {
	Round RoundConfig
	// RedeemFeeRate is the fee rate of offchain sends, 0 for free redeems
	RedeemFeeRate chainfee.SatPerKVByte
}

type service struct {
	cfg         ServiceConfig
	info        domain.ServerInfo
	repoManager ports.RepoManager
	client      ports.TransportClient
	explorer    ports.Explorer
	faucet      ports.Faucet
	keys        ports.KeyManager
	metrics     ports.RoundMetrics

	walletLocks *walletLocksMap
	now         func() time.Time
}

// NewService fetches the server info once, it's then used for the whole
// life of the service.
func NewService(
	ctx context.Context,
	cfg ServiceConfig,
	repoManager ports.RepoManager,
	client ports.TransportClient,
	explorer ports.Explorer,
	faucet ports.Faucet,
	keys ports.KeyManager,
	metrics ports.RoundMetrics,
) (Service, error) {
	info, err := client.GetInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get server info: %w", err)
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	log.Infof(
		"connected to server %s on %s (dust %d)",
		hex.EncodeToString(info.PubKey.SerializeCompressed()), info.Network.Name, info.Dust,
	)

	return &service{
		cfg:         cfg,
		info:        *info,
		repoManager: repoManager,
		client:      client,
		explorer:    explorer,
		faucet:      faucet,
		keys:        keys,
		metrics:     metrics,
		walletLocks: newWalletLocksMap(),
		now:         time.Now,
	}, nil
}

func (s *service) CreateWallet(ctx context.Context) (string, error) {
	pubkey, encryptedPrvkey, err := s.keys.NewKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate wallet key: %w", err)
	}

	walletID := uuid.New().String()
	release, err := s.walletLocks.acquire(ctx, walletID)
	if err != nil {
		return "", err
	}
	defer release()

	wallet := domain.Wallet{
		ID:              walletID,
		PubKey:          hex.EncodeToString(pubkey.SerializeCompressed()),
		EncryptedPrvkey: encryptedPrvkey,
		CreatedAt:       s.now().Unix(),
	}
	if err := s.repoManager.Wallets().Add(ctx, wallet); err != nil {
		return "", fmt.Errorf("failed to store wallet: %w", err)
	}

	log.Infof("created wallet %s", walletID)
	return walletID, nil
}

func (s *service) GetAddress(ctx context.Context, walletID string) (*WalletAddress, error) {
	_, scripts, err := s.getWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}

	return &WalletAddress{
		WalletID:        walletID,
		OnchainAddress:  scripts.boarding.Address,
		OffchainAddress: scripts.offchainAddress,
	}, nil
}

func (s *service) GetBalance(ctx context.Context, walletID string) (*WalletBalance, error) {
	_, scripts, err := s.getWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}

	vtxos, boarding, err := s.listOutpoints(ctx, scripts)
	if err != nil {
		return nil, err
	}

	return &WalletBalance{
		WalletID: walletID,
		Offchain: OffchainBalance{
			Spendable: vtxos.SpendableBalance(),
			Expired:   vtxos.ExpiredBalance(),
		},
		Boarding: BoardingBalance{
			Spendable: boarding.SpendableBalance(),
			Expired:   boarding.ExpiredBalance(),
			Pending:   boarding.PendingBalance(),
		},
	}, nil
}

func (s *service) Settle(ctx context.Context, walletID, toAddress string) (*RoundResult, error) {
	release, err := s.walletLocks.acquire(ctx, walletID)
	if err != nil {
		return nil, err
	}
	defer release()

	wallet, scripts, err := s.getWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}

	signer, err := s.keys.Signer(wallet.EncryptedPrvkey)
	if err != nil {
		return nil, domain.NewSigningError(err)
	}

	vtxos, boarding, err := s.listOutpoints(ctx, scripts)
	if err != nil {
		return nil, err
	}

	if toAddress == "" {
		toAddress = scripts.offchainAddress
	}

	settler := NewRoundSettler(
		s.client, s.info, s.cfg.Round, s.metrics, signer.PubKey(), SignFuncFromSigner(signer),
	)
	result, err := settler.Settle(ctx, SettleRequest{
		Vtxos:         vtxos.Spendable,
		BoardingUtxos: boarding.Spendable,
		Destination:   toAddress,
	})

	settlement := domain.Settlement{
		WalletID:  walletID,
		Kind:      domain.SettlementKindRound,
		CreatedAt: s.now().Unix(),
	}
	switch {
	case err != nil:
		settlement.Status = domain.SettlementStatusFailed
		settlement.Error = err.Error()
	case result.NothingToSettle:
		settlement.Status = domain.SettlementStatusNoop
	default:
		settlement.Status = domain.SettlementStatusFinalized
		settlement.Txid = result.Txid
		settlement.Amount = result.Amount
	}
	s.recordSettlement(ctx, settlement)

	return result, err
}

func (s *service) SendToArkAddress(
	ctx context.Context, walletID, address string, amount uint64,
) (string, error) {
	receiver, err := common.DecodeAddress(address)
	if err != nil {
		return "", domain.NewInvalidRequestError("invalid ark address: %s", err)
	}
	if !bytes.Equal(schnorr.SerializePubKey(receiver.Server), schnorr.SerializePubKey(s.info.PubKey)) {
		return "", domain.NewInvalidRequestError("ark address %s belongs to another server", address)
	}
	if amount < s.info.Dust {
		return "", domain.NewBelowDustError("amount", amount, s.info.Dust)
	}

	release, err := s.walletLocks.acquire(ctx, walletID)
	if err != nil {
		return "", err
	}
	defer release()

	wallet, scripts, err := s.getWallet(ctx, walletID)
	if err != nil {
		return "", err
	}

	signer, err := s.keys.Signer(wallet.EncryptedPrvkey)
	if err != nil {
		return "", domain.NewSigningError(err)
	}

	txid, err := s.sendOffchain(ctx, scripts, signer, receiver, amount)

	settlement := domain.Settlement{
		WalletID:  walletID,
		Kind:      domain.SettlementKindRedeem,
		Amount:    amount,
		Txid:      txid,
		Status:    domain.SettlementStatusFinalized,
		CreatedAt: s.now().Unix(),
	}
	if err != nil {
		settlement.Status = domain.SettlementStatusFailed
		settlement.Error = err.Error()
	}
	s.recordSettlement(ctx, settlement)

	return txid, err
}

func (s *service) Faucet(ctx context.Context, address string, amount float64) (*FaucetResult, error) {
	if s.faucet == nil {
		return nil, fmt.Errorf("faucet not available")
	}
	if _, err := s.info.Network.DecodeAddress(address); err != nil {
		return nil, domain.NewInvalidRequestError("invalid onchain address: %s", err)
	}
	if amount <= 0 {
		return nil, domain.NewInvalidRequestError("amount must be positive")
	}

	txid, output, err := s.faucet.Fund(ctx, address, amount)
	if err != nil {
		return &FaucetResult{Address: address, Amount: amount, Output: output}, err
	}

	return &FaucetResult{
		Address: address,
		Amount:  amount,
		Txid:    txid,
		Output:  output,
	}, nil
}

func (s *service) GetHistory(ctx context.Context, walletID string) ([]domain.Settlement, error) {
	if _, err := s.repoManager.Wallets().Get(ctx, walletID); err != nil {
		return nil, err
	}
	return s.repoManager.Settlements().GetByWallet(ctx, walletID)
}

func (s *service) GetInfo(_ context.Context) domain.ServerInfo {
	return s.info
}

func (s *service) Close() {
	s.client.Close()
	s.repoManager.Close()
}

func (s *service) sendOffchain(
	ctx context.Context, scripts *walletScripts, signer ports.Signer,
	receiver *common.Address, amount uint64,
) (string, error) {
	vtxos, _, err := s.listOutpoints(ctx, scripts)
	if err != nil {
		return "", err
	}

	selection, err := SelectCoins(vtxos.Spendable, amount, s.info.Dust, true)
	if err != nil {
		return "", err
	}

	receiverScript, err := receiver.PkScript()
	if err != nil {
		return "", domain.NewInvalidRequestError("invalid ark address: %s", err)
	}
	changeScript, err := scripts.vtxo.PkScript()
	if err != nil {
		return "", err
	}

	redeemPtx, err := BuildRedeemTx(
		selection, receiverScript, amount, changeScript, s.cfg.RedeemFeeRate, s.info.Dust,
	)
	if err != nil {
		return "", err
	}

	signedRedeemTx, err := SignRedeemTx(redeemPtx, signer.PubKey(), SignFuncFromSigner(signer))
	if err != nil {
		return "", err
	}

	_, txid, err := s.client.SubmitRedeemTx(ctx, signedRedeemTx)
	if err != nil {
		return "", transportError("submit redeem tx", err)
	}

	log.Infof("sent %d sats offchain with redeem tx %s", amount, txid)
	return txid, nil
}

// listOutpoints takes a single chain snapshot and classifies the wallet
// outpoints against it.
func (s *service) listOutpoints(
	ctx context.Context, scripts *walletScripts,
) (domain.VirtualOutpoints, domain.BoardingOutpoints, error) {
	spendable, spent, err := s.client.ListVtxos(ctx, scripts.offchainAddress)
	if err != nil {
		return domain.VirtualOutpoints{}, domain.BoardingOutpoints{}, transportError("list vtxos", err)
	}

	vtxos := make([]domain.Vtxo, 0, len(spendable)+len(spent))
	vtxos = append(vtxos, spendable...)
	for _, v := range spent {
		v.Spent = true
		vtxos = append(vtxos, v)
	}

	utxos, err := s.explorer.FindOutpoints(ctx, scripts.boarding.Address)
	if err != nil {
		return domain.VirtualOutpoints{}, domain.BoardingOutpoints{}, domain.NewNetworkError("explorer", err)
	}

	snapshot := domain.NewChainSnapshot(s.now(), map[string][]domain.ExplorerUtxo{
		scripts.boarding.Address: utxos,
	})

	return ListVirtualOutpoints(snapshot, scripts.vtxo, vtxos),
		ListBoardingOutpoints(snapshot, []domain.BoardingOutput{scripts.boarding}), nil
}

func (s *service) recordSettlement(ctx context.Context, settlement domain.Settlement) {
	// the outcome must be stored even if the request got canceled
	ctx = context.WithoutCancel(ctx)
	if err := s.repoManager.Settlements().Add(ctx, settlement); err != nil {
		log.WithError(err).Warnf("failed to store settlement of wallet %s", settlement.WalletID)
	}
}

type walletScripts struct {
	vtxo            *tree.VtxoScript
	offchainAddress string
	boarding        domain.BoardingOutput
}

func (s *service) getWallet(ctx context.Context, walletID string) (*domain.Wallet, *walletScripts, error) {
	wallet, err := s.repoManager.Wallets().Get(ctx, walletID)
	if err != nil {
		return nil, nil, err
	}

	pubkeyBytes, err := hex.DecodeString(wallet.PubKey)
	if err != nil {
		return nil, nil, fmt.Errorf("corrupted wallet %s: %w", walletID, err)
	}
	pubkey, err := btcec.ParsePubKey(pubkeyBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("corrupted wallet %s: %w", walletID, err)
	}

	scripts, err := s.walletScripts(pubkey)
	if err != nil {
		return nil, nil, err
	}
	return wallet, scripts, nil
}

func (s *service) walletScripts(pubkey *btcec.PublicKey) (*walletScripts, error) {
	vtxoScript := tree.NewDefaultVtxoScript(pubkey, s.info.PubKey, s.info.UnilateralExitDelay)
	vtxoTapKey, _, err := vtxoScript.TapTree()
	if err != nil {
		return nil, err
	}

	offchainAddr := &common.Address{
		HRP:        s.info.Network.Addr,
		Server:     s.info.PubKey,
		VtxoTapKey: vtxoTapKey,
	}
	encodedOffchainAddr, err := offchainAddr.Encode()
	if err != nil {
		return nil, err
	}

	boardingDelay := s.info.BoardingDelay()
	boardingScript := tree.NewDefaultVtxoScript(pubkey, s.info.PubKey, boardingDelay)
	boardingTapKey, _, err := boardingScript.TapTree()
	if err != nil {
		return nil, err
	}

	boardingAddr, err := btcutil.NewAddressTaproot(
		schnorr.SerializePubKey(boardingTapKey), s.info.Network.Params(),
	)
	if err != nil {
		return nil, err
	}

	return &walletScripts{
		vtxo:            vtxoScript,
		offchainAddress: encodedOffchainAddr,
		boarding: domain.BoardingOutput{
			Address:    boardingAddr.EncodeAddress(),
			VtxoScript: boardingScript,
			ExitDelay:  boardingDelay,
		},
	}, nil
}
