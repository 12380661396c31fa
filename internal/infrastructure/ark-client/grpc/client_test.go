package grpcclient

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ark-network/ark-wallet-api/common/tree"
	"github.com/ark-network/ark-wallet-api/internal/core/domain"
	"github.com/ark-network/ark-wallet-api/internal/core/ports"
	"github.com/btcsuite/btcd/btcec/v2"
	btcmusig2 "github.com/btcsuite/btcd/btcec/v2/schnorr/musig2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const testRoundTxid = "6b1bdbd1e3c9b4b8ba0e4e1c7d9e5f1d9c3e7a6b5f4e3d2c1b0a99887766554"

var serverPubkey, forfeitAddr string

func init() {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		panic(err)
	}
	serverPubkey = hex.EncodeToString(key.PubKey().SerializeCompressed())

	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(key.PubKey().SerializeCompressed()), &chaincfg.RegressionNetParams,
	)
	if err != nil {
		panic(err)
	}
	forfeitAddr = addr.EncodeAddress()
}

// testServer answers the ark.v1 calls from canned responses and records
// every request it gets.
type testServer struct {
	lock     sync.Mutex
	requests map[string]interface{}

	info   getInfoResponse
	vtxos  listVtxosResponse
	events []getEventStreamResponse
	// streamErr ends the stream with the given error, io.EOF otherwise
	streamErr error
	failAll   error
}

func (s *testServer) record(method string, req interface{}) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.requests[method] = req
	return s.failAll
}

func (s *testServer) request(method string) interface{} {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.requests[method]
}

func unary[Req any](
	method string, handle func(s *testServer, req *Req) (interface{}, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(
			srv interface{}, _ context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor,
		) (interface{}, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			s := srv.(*testServer)
			if err := s.record(method, req); err != nil {
				return nil, err
			}
			return handle(s, req)
		},
	}
}

func empty[Req any](method string) grpc.MethodDesc {
	return unary(method, func(*testServer, *Req) (interface{}, error) {
		return &emptyResponse{}, nil
	})
}

var testServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		unary("GetInfo", func(s *testServer, _ *getInfoRequest) (interface{}, error) {
			return &s.info, nil
		}),
		unary("ListVtxos", func(s *testServer, _ *listVtxosRequest) (interface{}, error) {
			return &s.vtxos, nil
		}),
		unary("RegisterInputsForNextRound", func(
			_ *testServer, _ *registerInputsForNextRoundRequest,
		) (interface{}, error) {
			return &registerInputsForNextRoundResponse{RequestId: "payment"}, nil
		}),
		unary("SubmitRedeemTx", func(_ *testServer, req *submitRedeemTxRequest) (interface{}, error) {
			return &submitRedeemTxResponse{SignedRedeemTx: req.RedeemTx + "signed", Txid: "txid"}, nil
		}),
		empty[registerOutputsForNextRoundRequest]("RegisterOutputsForNextRound"),
		empty[pingRequest]("Ping"),
		empty[submitTreeNoncesRequest]("SubmitTreeNonces"),
		empty[submitTreeSignaturesRequest]("SubmitTreeSignatures"),
		empty[submitSignedForfeitTxsRequest]("SubmitSignedForfeitTxs"),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "GetEventStream",
			ServerStreams: true,
			Handler: func(srv interface{}, stream grpc.ServerStream) error {
				s := srv.(*testServer)
				req := &getEventStreamRequest{}
				if err := stream.RecvMsg(req); err != nil {
					return err
				}
				if err := s.record("GetEventStream", req); err != nil {
					return err
				}
				for i := range s.events {
					if err := stream.SendMsg(&s.events[i]); err != nil {
						return err
					}
				}
				if s.streamErr != nil {
					return s.streamErr
				}
				if s.events == nil {
					// keep the stream open until the client goes away
					<-stream.Context().Done()
				}
				return nil
			},
		},
	},
}

func newTestClient(t *testing.T, srv *testServer) ports.TransportClient {
	t.Helper()

	srv.requests = make(map[string]interface{})

	listener := bufconn.Listen(1024 * 1024)
	server := grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	server.RegisterService(&testServiceDesc, srv)
	go func() {
		//nolint:all
		server.Serve(listener)
	}()

	client, err := NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		server.Stop()
	})
	return client
}

func validInfo() getInfoResponse {
	return getInfoResponse{
		Pubkey:              serverPubkey,
		VtxoTreeExpiry:      512 * 20,
		UnilateralExitDelay: 512 * 10,
		RoundInterval:       10,
		Network:             "regtest",
		Dust:                330,
		BoardingExitDelay:   144,
		ForfeitAddress:      forfeitAddr,
		Version:             "v0.5.0",
	}
}

func TestGetInfo(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		client := newTestClient(t, &testServer{info: validInfo()})

		info, err := client.GetInfo(context.Background())
		require.NoError(t, err)
		require.NotNil(t, info)
		require.Equal(t, serverPubkey, hex.EncodeToString(info.PubKey.SerializeCompressed()))
		require.Equal(t, "regtest", info.Network.Name)
		require.Equal(t, uint64(330), info.Dust)
		require.Equal(t, int64(512*20), info.VtxoTreeExpiry.Seconds())
		require.Equal(t, int64(512*10), info.UnilateralExitDelay.Seconds())
		require.Equal(t, uint32(144), info.BoardingExitDelay.Value)
		require.Equal(t, forfeitAddr, info.ForfeitAddress)
		require.Equal(t, "v0.5.0", info.Version)
	})

	t.Run("invalid", func(t *testing.T) {
		testCases := []struct {
			description string
			mutate      func(r *getInfoResponse)
		}{
			{
				description: "malformed pubkey",
				mutate:      func(r *getInfoResponse) { r.Pubkey = "not hex" },
			},
			{
				description: "pubkey not on curve",
				mutate:      func(r *getInfoResponse) { r.Pubkey = "02" + "ff" },
			},
			{
				description: "unknown network",
				mutate:      func(r *getInfoResponse) { r.Network = "liquid" },
			},
			{
				description: "negative exit delay",
				mutate:      func(r *getInfoResponse) { r.UnilateralExitDelay = -1 },
			},
			{
				description: "missing tree expiry",
				mutate:      func(r *getInfoResponse) { r.VtxoTreeExpiry = 0 },
			},
			{
				description: "negative dust",
				mutate:      func(r *getInfoResponse) { r.Dust = -1 },
			},
			{
				description: "forfeit address of another network",
				mutate: func(r *getInfoResponse) {
					r.ForfeitAddress = "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"
				},
			},
		}

		for _, tc := range testCases {
			t.Run(tc.description, func(t *testing.T) {
				info := validInfo()
				tc.mutate(&info)
				client := newTestClient(t, &testServer{info: info})

				got, err := client.GetInfo(context.Background())
				require.Error(t, err)
				require.True(t, errors.Is(err, domain.ErrConversion), err.Error())
				require.Nil(t, got)
			})
		}
	})

	t.Run("server error", func(t *testing.T) {
		client := newTestClient(t, &testServer{
			info:    validInfo(),
			failAll: status.Error(codes.Unavailable, "server is down"),
		})

		_, err := client.GetInfo(context.Background())
		require.Error(t, err)
		require.Equal(t, codes.Unavailable, status.Code(err))
	})
}

func TestListVtxos(t *testing.T) {
	now := time.Now().Unix()
	client := newTestClient(t, &testServer{
		vtxos: listVtxosResponse{
			SpendableVtxos: []*vtxo{{
				Outpoint:  &outpoint{Txid: testRoundTxid, Vout: 1},
				Amount:    50_000,
				CreatedAt: now,
				ExpiresAt: now + 3600,
				RoundTxid: testRoundTxid,
			}},
			SpentVtxos: []*vtxo{{
				Outpoint: &outpoint{Txid: testRoundTxid, Vout: 0},
				Amount:   1_000,
				Spent:    true,
			}},
		},
	})

	spendable, spent, err := client.ListVtxos(context.Background(), "tark1address")
	require.NoError(t, err)
	require.Len(t, spendable, 1)
	require.Len(t, spent, 1)

	require.Equal(t, domain.Outpoint{Txid: testRoundTxid, VOut: 1}, spendable[0].Outpoint)
	require.Equal(t, uint64(50_000), spendable[0].Amount)
	require.Equal(t, now+3600, spendable[0].ExpiresAt.Unix())
	require.True(t, spent[0].Spent)
	require.True(t, spent[0].ExpiresAt.IsZero())
}

func TestRoundRegistration(t *testing.T) {
	srv := &testServer{}
	client := newTestClient(t, srv)
	ctx := context.Background()

	paymentID, err := client.RegisterInputsForNextRound(ctx, []domain.RoundInput{{
		Outpoint:   domain.Outpoint{Txid: testRoundTxid, VOut: 2},
		Tapscripts: []string{"aa", "bb"},
	}})
	require.NoError(t, err)
	require.Equal(t, "payment", paymentID)

	inputsReq := srv.request("RegisterInputsForNextRound").(*registerInputsForNextRoundRequest)
	require.Len(t, inputsReq.Inputs, 1)
	require.Equal(t, outpoint{Txid: testRoundTxid, Vout: 2}, *inputsReq.Inputs[0].Outpoint)
	require.Equal(t, []string{"aa", "bb"}, inputsReq.Inputs[0].Tapscripts)

	err = client.RegisterOutputsForNextRound(ctx, paymentID, []domain.RoundOutput{{
		Address: "tark1address", Amount: 50_000, Offchain: true,
	}}, []string{serverPubkey}, true)
	require.NoError(t, err)

	outputsReq := srv.request("RegisterOutputsForNextRound").(*registerOutputsForNextRoundRequest)
	require.Equal(t, "payment", outputsReq.RequestId)
	require.Equal(t, []output{{Address: "tark1address", Amount: 50_000}}, outputsReq.Outputs)
	require.Equal(t, &musig2{CosignersPublicKeys: []string{serverPubkey}, Ephemeral: true}, outputsReq.Musig2)

	require.NoError(t, client.Ping(ctx, paymentID))
	require.Equal(t, "payment", srv.request("Ping").(*pingRequest).RequestId)

	require.NoError(t, client.SubmitSignedForfeitTxs(ctx, []string{"forfeit"}, ""))
	forfeitsReq := srv.request("SubmitSignedForfeitTxs").(*submitSignedForfeitTxsRequest)
	require.Equal(t, []string{"forfeit"}, forfeitsReq.SignedForfeitTxs)
	require.Empty(t, forfeitsReq.SignedRoundTx)

	signed, txid, err := client.SubmitRedeemTx(ctx, "redeem")
	require.NoError(t, err)
	require.Equal(t, "redeemsigned", signed)
	require.Equal(t, "txid", txid)
}

func TestSubmitTreeNonces(t *testing.T) {
	srv := &testServer{}
	client := newTestClient(t, srv)

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	nonces, err := btcmusig2.GenNonces(btcmusig2.WithPublicKey(key.PubKey()))
	require.NoError(t, err)

	treeNonces := tree.TreeNonces{
		{{PubNonce: nonces.PubNonce}},
		{nil, {PubNonce: nonces.PubNonce}},
	}
	require.NoError(t, client.SubmitTreeNonces(context.Background(), "round", serverPubkey, treeNonces))

	req := srv.request("SubmitTreeNonces").(*submitTreeNoncesRequest)
	require.Equal(t, "round", req.RoundId)
	require.Equal(t, serverPubkey, req.Pubkey)

	buf, err := hex.DecodeString(req.TreeNonces)
	require.NoError(t, err)
	decoded, err := tree.DecodeNonces(bytes.NewReader(buf))
	require.NoError(t, err)
	require.Equal(t, treeNonces, decoded)
}

func TestSubmitTreeSignatures(t *testing.T) {
	srv := &testServer{}
	client := newTestClient(t, srv)

	sig := func(v uint32) *btcmusig2.PartialSignature {
		s := new(btcec.ModNScalar)
		s.SetInt(v)
		return &btcmusig2.PartialSignature{S: s}
	}
	treeSigs := tree.TreePartialSigs{
		{sig(1)},
		{nil, sig(2)},
	}
	require.NoError(t, client.SubmitTreeSignatures(context.Background(), "round", serverPubkey, treeSigs))

	req := srv.request("SubmitTreeSignatures").(*submitTreeSignaturesRequest)
	require.Equal(t, "round", req.RoundId)
	require.Equal(t, serverPubkey, req.Pubkey)

	buf, err := hex.DecodeString(req.TreeSignatures)
	require.NoError(t, err)
	decoded, err := tree.DecodeSignatures(bytes.NewReader(buf))
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	require.True(t, decoded[0][0].S.Equals(treeSigs[0][0].S))
	require.Nil(t, decoded[1][0])
	require.True(t, decoded[1][1].S.Equals(treeSigs[1][1].S))
}

func TestGetEventStream(t *testing.T) {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	nonces, err := btcmusig2.GenNonces(btcmusig2.WithPublicKey(key.PubKey()))
	require.NoError(t, err)
	encodedNonces, err := encodeNonces(tree.TreeNonces{{{PubNonce: nonces.PubNonce}}})
	require.NoError(t, err)

	vtxoTree := &txTree{Levels: []treeLevel{
		{Nodes: []node{{Txid: "root", Tx: "roottx", ParentTxid: testRoundTxid}}},
		{Nodes: []node{
			{Txid: "leaf1", Tx: "leaftx1", ParentTxid: "root"},
			{Txid: "leaf2", Tx: "leaftx2", ParentTxid: "root"},
		}},
	}}

	t.Run("round events", func(t *testing.T) {
		client := newTestClient(t, &testServer{events: []getEventStreamResponse{
			{RoundSigning: &roundSigningEvent{Id: "round", UnsignedVtxoTree: vtxoTree, UnsignedRoundTx: "roundtx"}},
			{RoundSigningNoncesGenerated: &roundSigningNoncesGeneratedEvent{Id: "round", TreeNonces: encodedNonces}},
			{RoundFinalization: &roundFinalizationEvent{
				Id:              "round",
				RoundTx:         "roundtx",
				Connectors:      &txTree{Levels: []treeLevel{{Nodes: []node{{Txid: "connector", ParentTxid: testRoundTxid}}}}},
				MinRelayFeeRate: 1_000,
				ConnectorsIndex: map[string]*outpoint{"vtxo:0": {Txid: "connector", Vout: 0}},
			}},
			{RoundFinalized: &roundFinalizedEvent{Id: "round", RoundTxid: testRoundTxid}},
		}})

		eventsCh, closeFn, err := client.GetEventStream(context.Background())
		require.NoError(t, err)
		defer closeFn()

		events := make([]domain.RoundEvent, 0)
		for notify := range eventsCh {
			require.NoError(t, notify.Err)
			events = append(events, notify.Event)
		}
		require.Len(t, events, 4)

		signing, ok := events[0].(domain.RoundSigningStarted)
		require.True(t, ok)
		require.Equal(t, "round", signing.ID)
		require.Equal(t, "roundtx", signing.UnsignedRoundTx)
		require.Equal(t, 3, signing.UnsignedVtxoTree.NumberOfNodes())
		require.False(t, signing.UnsignedVtxoTree[0][0].Leaf)
		require.True(t, signing.UnsignedVtxoTree[1][0].Leaf)
		require.True(t, signing.UnsignedVtxoTree[1][1].Leaf)

		noncesEvent, ok := events[1].(domain.RoundSigningNoncesGenerated)
		require.True(t, ok)
		require.Equal(t, nonces.PubNonce, noncesEvent.Nonces[0][0].PubNonce)

		finalization, ok := events[2].(domain.RoundFinalizationStarted)
		require.True(t, ok)
		require.Equal(t, domain.Outpoint{Txid: "connector", VOut: 0}, finalization.ConnectorsIndex["vtxo:0"])
		require.EqualValues(t, 1_000, finalization.MinRelayFeeRate)
		require.True(t, finalization.Connectors[0][0].Leaf)

		finalized, ok := events[3].(domain.RoundFinalized)
		require.True(t, ok)
		require.Equal(t, testRoundTxid, finalized.Txid)
	})

	t.Run("malformed event", func(t *testing.T) {
		client := newTestClient(t, &testServer{events: []getEventStreamResponse{
			{RoundSigningNoncesGenerated: &roundSigningNoncesGeneratedEvent{Id: "round", TreeNonces: "zz"}},
			{},
		}})

		eventsCh, closeFn, err := client.GetEventStream(context.Background())
		require.NoError(t, err)
		defer closeFn()

		for i := 0; i < 2; i++ {
			notify := <-eventsCh
			require.Error(t, notify.Err)
			require.True(t, errors.Is(notify.Err, domain.ErrConversion))
			require.Nil(t, notify.Event)
		}
	})

	t.Run("stream failure", func(t *testing.T) {
		client := newTestClient(t, &testServer{
			events:    []getEventStreamResponse{},
			streamErr: status.Error(codes.Internal, "boom"),
		})

		eventsCh, closeFn, err := client.GetEventStream(context.Background())
		require.NoError(t, err)
		defer closeFn()

		notify := <-eventsCh
		require.Error(t, notify.Err)
		require.Equal(t, codes.Internal, status.Code(notify.Err))

		_, ok := <-eventsCh
		require.False(t, ok)
	})

	t.Run("closed by the caller", func(t *testing.T) {
		client := newTestClient(t, &testServer{})

		eventsCh, closeFn, err := client.GetEventStream(context.Background())
		require.NoError(t, err)

		closeFn()
		closeFn()

		_, ok := <-eventsCh
		require.False(t, ok)
	})
}
