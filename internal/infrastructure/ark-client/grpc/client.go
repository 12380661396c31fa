package grpcclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ark-network/ark-wallet-api/common/tree"
	"github.com/ark-network/ark-wallet-api/internal/core/domain"
	"github.com/ark-network/ark-wallet-api/internal/core/ports"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

const serviceName = "ark.v1.ArkService"

var eventStreamDesc = &grpc.StreamDesc{
	StreamName:    "GetEventStream",
	ServerStreams: true,
}

func fullMethod(method string) string {
	return fmt.Sprintf("/%s/%s", serviceName, method)
}

type grpcClient struct {
	conn *grpc.ClientConn
}

// NewClient connects to the server at serverUrl, https urls are dialed
// over TLS. Extra dial options are appended to the defaults.
func NewClient(serverUrl string, opts ...grpc.DialOption) (ports.TransportClient, error) {
	if len(serverUrl) <= 0 {
		return nil, fmt.Errorf("missing server url")
	}

	creds := insecure.NewCredentials()
	port := 80
	if strings.HasPrefix(serverUrl, "https://") {
		serverUrl = strings.TrimPrefix(serverUrl, "https://")
		creds = credentials.NewTLS(nil)
		port = 443
	}
	serverUrl = strings.TrimPrefix(serverUrl, "http://")
	if !strings.Contains(serverUrl, ":") {
		serverUrl = fmt.Sprintf("%s:%d", serverUrl, port)
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	}, opts...)

	conn, err := grpc.NewClient(serverUrl, dialOpts...)
	if err != nil {
		return nil, err
	}

	return &grpcClient{conn}, nil
}

func (c *grpcClient) Close() {
	//nolint:all
	c.conn.Close()
}

func (c *grpcClient) GetInfo(ctx context.Context) (*domain.ServerInfo, error) {
	resp := &getInfoResponse{}
	if err := c.conn.Invoke(ctx, fullMethod("GetInfo"), &getInfoRequest{}, resp); err != nil {
		return nil, err
	}
	return resp.toServerInfo()
}

func (c *grpcClient) ListVtxos(ctx context.Context, addr string) ([]domain.Vtxo, []domain.Vtxo, error) {
	resp := &listVtxosResponse{}
	if err := c.conn.Invoke(
		ctx, fullMethod("ListVtxos"), &listVtxosRequest{Address: addr}, resp,
	); err != nil {
		return nil, nil, err
	}

	spendable, err := vtxos(resp.SpendableVtxos).toVtxos()
	if err != nil {
		return nil, nil, err
	}
	spent, err := vtxos(resp.SpentVtxos).toVtxos()
	if err != nil {
		return nil, nil, err
	}
	return spendable, spent, nil
}

func (c *grpcClient) RegisterInputsForNextRound(
	ctx context.Context, inputs []domain.RoundInput,
) (string, error) {
	req := &registerInputsForNextRoundRequest{Inputs: ins(inputs).toProto()}
	resp := &registerInputsForNextRoundResponse{}
	if err := c.conn.Invoke(ctx, fullMethod("RegisterInputsForNextRound"), req, resp); err != nil {
		return "", err
	}
	if len(resp.RequestId) <= 0 {
		return "", domain.NewConversionError("request id", fmt.Errorf("empty"))
	}
	return resp.RequestId, nil
}

func (c *grpcClient) RegisterOutputsForNextRound(
	ctx context.Context, paymentID string, outputs []domain.RoundOutput,
	cosignersPublicKeys []string, ephemeral bool,
) error {
	req := &registerOutputsForNextRoundRequest{
		RequestId: paymentID,
		Outputs:   outs(outputs).toProto(),
		Musig2: &musig2{
			CosignersPublicKeys: cosignersPublicKeys,
			Ephemeral:           ephemeral,
		},
	}
	return c.conn.Invoke(ctx, fullMethod("RegisterOutputsForNextRound"), req, &emptyResponse{})
}

func (c *grpcClient) Ping(ctx context.Context, paymentID string) error {
	return c.conn.Invoke(ctx, fullMethod("Ping"), &pingRequest{RequestId: paymentID}, &emptyResponse{})
}

// GetEventStream forwards the server events until the stream ends or the
// returned func is called, the channel is closed afterwards.
func (c *grpcClient) GetEventStream(
	ctx context.Context,
) (<-chan domain.RoundEventChannel, func(), error) {
	streamCtx, cancel := context.WithCancel(ctx)

	stream, err := c.conn.NewStream(streamCtx, eventStreamDesc, fullMethod("GetEventStream"))
	if err != nil {
		cancel()
		return nil, nil, err
	}
	if err := stream.SendMsg(&getEventStreamRequest{}); err != nil {
		cancel()
		return nil, nil, err
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return nil, nil, err
	}

	eventsCh := make(chan domain.RoundEventChannel)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(eventsCh)

		for {
			resp := &getEventStreamResponse{}
			if err := stream.RecvMsg(resp); err != nil {
				if errors.Is(err, io.EOF) || streamCtx.Err() != nil {
					return
				}
				log.WithError(err).Debug("event stream closed")
				select {
				case eventsCh <- domain.RoundEventChannel{Err: err}:
				case <-streamCtx.Done():
				}
				return
			}

			ev, err := event{resp}.toRoundEvent()
			select {
			case eventsCh <- domain.RoundEventChannel{Event: ev, Err: err}:
			case <-streamCtx.Done():
				return
			}
		}
	}()

	var once sync.Once
	closeFn := func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}

	return eventsCh, closeFn, nil
}

func (c *grpcClient) SubmitTreeNonces(
	ctx context.Context, roundID, cosignerPubkey string, nonces tree.TreeNonces,
) error {
	encoded, err := encodeNonces(nonces)
	if err != nil {
		return domain.NewConversionError("tree nonces", err)
	}

	req := &submitTreeNoncesRequest{
		RoundId:    roundID,
		Pubkey:     cosignerPubkey,
		TreeNonces: encoded,
	}
	return c.conn.Invoke(ctx, fullMethod("SubmitTreeNonces"), req, &emptyResponse{})
}

func (c *grpcClient) SubmitTreeSignatures(
	ctx context.Context, roundID, cosignerPubkey string, signatures tree.TreePartialSigs,
) error {
	encoded, err := encodeSignatures(signatures)
	if err != nil {
		return domain.NewConversionError("tree signatures", err)
	}

	req := &submitTreeSignaturesRequest{
		RoundId:        roundID,
		Pubkey:         cosignerPubkey,
		TreeSignatures: encoded,
	}
	return c.conn.Invoke(ctx, fullMethod("SubmitTreeSignatures"), req, &emptyResponse{})
}

func (c *grpcClient) SubmitSignedForfeitTxs(
	ctx context.Context, signedForfeitTxs []string, signedRoundTx string,
) error {
	req := &submitSignedForfeitTxsRequest{
		SignedForfeitTxs: signedForfeitTxs,
		SignedRoundTx:    signedRoundTx,
	}
	return c.conn.Invoke(ctx, fullMethod("SubmitSignedForfeitTxs"), req, &emptyResponse{})
}

func (c *grpcClient) SubmitRedeemTx(ctx context.Context, redeemTx string) (string, string, error) {
	resp := &submitRedeemTxResponse{}
	if err := c.conn.Invoke(
		ctx, fullMethod("SubmitRedeemTx"), &submitRedeemTxRequest{RedeemTx: redeemTx}, resp,
	); err != nil {
		return "", "", err
	}
	return resp.SignedRedeemTx, resp.Txid, nil
}
