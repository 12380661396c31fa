package tree

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcec/v2/schnorr/musig2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
)

var (
	ErrMissingVtxoTree       = errors.New("missing vtxo tree")
	ErrMissingAggregateNonce = errors.New("missing aggregated nonces")
)

type Musig2Nonce struct {
	PubNonce [66]byte
}

func (n *Musig2Nonce) Encode(w io.Writer) error {
	_, err := w.Write(n.PubNonce[:])
	return err
}

func (n *Musig2Nonce) Decode(r io.Reader) error {
	buf := make([]byte, 66)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}

	copy(n.PubNonce[:], buf)
	return nil
}

// TreeNonces holds one public nonce per tree node, nil where the signer is
// not a cosigner of the node.
type TreeNonces [][]*Musig2Nonce

// TreePartialSigs holds one partial signature per tree node, nil where the
// signer is not a cosigner of the node.
type TreePartialSigs [][]*musig2.PartialSignature

func (n TreeNonces) Encode(w io.Writer) error {
	matrix, err := encodeMatrix(n)
	if err != nil {
		return err
	}

	_, err = w.Write(matrix)
	return err
}

// String returns the hex encoded matrix
func (n TreeNonces) String() string {
	var buf bytes.Buffer
	if err := n.Encode(&buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf.Bytes())
}

func DecodeNonces(r io.Reader) (TreeNonces, error) {
	return decodeMatrix(func() *Musig2Nonce { return new(Musig2Nonce) }, r)
}

func (s TreePartialSigs) Encode(w io.Writer) error {
	matrix, err := encodeMatrix(s)
	if err != nil {
		return err
	}

	_, err = w.Write(matrix)
	return err
}

func (s TreePartialSigs) String() string {
	var buf bytes.Buffer
	if err := s.Encode(&buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf.Bytes())
}

func DecodeSignatures(r io.Reader) (TreePartialSigs, error) {
	return decodeMatrix(func() *musig2.PartialSignature { return new(musig2.PartialSignature) }, r)
}

type SignerSession interface {
	Init(scriptRoot []byte, roundTx *psbt.Packet, vtxoTree TxTree) error
	GetPublicKey() string
	// GetNonces generates the tree nonces for this session
	GetNonces() (TreeNonces, error)
	SetAggregatedNonces(TreeNonces)
	Sign() (TreePartialSigs, error)
}

// AggregateKeys is a wrapper around musig2.AggregateKeys using the given scriptRoot as taproot tweak
func AggregateKeys(
	pubkeys []*btcec.PublicKey,
	scriptRoot []byte,
) (*musig2.AggregateKey, error) {
	if len(pubkeys) == 0 {
		return nil, errors.New("no pubkeys")
	}

	for _, pubkey := range pubkeys {
		if pubkey == nil {
			return nil, errors.New("nil pubkey")
		}
	}

	if scriptRoot == nil {
		return nil, errors.New("nil script root")
	}

	key, _, _, err := musig2.AggregateKeys(pubkeys, true,
		musig2.WithTaprootKeyTweak(scriptRoot),
	)
	if err != nil {
		return nil, err
	}

	return key, nil
}

func NewTreeSignerSession(signer *btcec.PrivateKey) SignerSession {
	return &treeSignerSession{secretKey: signer}
}

type treeSignerSession struct {
	secretKey       *btcec.PrivateKey
	txs             [][]*psbt.Packet
	myNonces        [][]*musig2.Nonces
	aggregateNonces TreeNonces
	scriptRoot      []byte
	prevoutFetcher  func(*psbt.Packet) (txscript.PrevOutputFetcher, error)
}

func (t *treeSignerSession) Init(scriptRoot []byte, roundTx *psbt.Packet, vtxoTree TxTree) error {
	if vtxoTree.NumberOfNodes() <= 0 {
		return ErrMissingVtxoTree
	}
	if roundTx == nil {
		return errors.New("missing round tx")
	}

	txs, err := vtxoTree.toPackets()
	if err != nil {
		return err
	}

	t.scriptRoot = scriptRoot
	t.txs = txs
	t.prevoutFetcher = prevOutFetcherFactory(roundTx, txs)
	t.myNonces = nil
	t.aggregateNonces = nil
	return nil
}

func (t *treeSignerSession) GetPublicKey() string {
	return hex.EncodeToString(t.secretKey.PubKey().SerializeCompressed())
}

// GetNonces returns only the public musig2 nonces for each transaction
// where the signer's key is in the list of cosigners
func (t *treeSignerSession) GetNonces() (TreeNonces, error) {
	if len(t.txs) == 0 {
		return nil, ErrMissingVtxoTree
	}

	if t.myNonces == nil {
		if err := t.generateNonces(); err != nil {
			return nil, err
		}
	}

	nonces := make(TreeNonces, 0, len(t.myNonces))
	for _, level := range t.myNonces {
		levelNonces := make([]*Musig2Nonce, 0, len(level))
		for _, nonce := range level {
			if nonce == nil {
				levelNonces = append(levelNonces, nil)
				continue
			}

			levelNonces = append(levelNonces, &Musig2Nonce{nonce.PubNonce})
		}
		nonces = append(nonces, levelNonces)
	}

	return nonces, nil
}

func (t *treeSignerSession) SetAggregatedNonces(nonces TreeNonces) {
	t.aggregateNonces = nonces
}

// Sign generates the musig2 partial signatures for each transaction where the signer's key is in the list of keys
func (t *treeSignerSession) Sign() (TreePartialSigs, error) {
	if len(t.txs) == 0 {
		return nil, ErrMissingVtxoTree
	}

	if t.aggregateNonces == nil {
		return nil, ErrMissingAggregateNonce
	}

	if t.myNonces == nil {
		return nil, errors.New("nonces not generated")
	}

	if err := matchShape(t.txs, t.aggregateNonces); err != nil {
		return nil, fmt.Errorf("invalid aggregated nonces: %w", err)
	}

	sigs := make(TreePartialSigs, 0, len(t.txs))
	for i := range t.txs {
		sigs = append(sigs, make([]*musig2.PartialSignature, len(t.txs[i])))
	}

	signerPubKey := schnorr.SerializePubKey(t.secretKey.PubKey())

	if err := workPoolMatrix(t.txs, func(i, j int, partialTx *psbt.Packet) error {
		mustSign, keys, err := getCosignersPublicKeys(signerPubKey, partialTx)
		if err != nil {
			return err
		}

		if !mustSign {
			return nil
		}

		sig, err := t.signPartial(partialTx, i, j, keys)
		if err != nil {
			return fmt.Errorf("failed to sign partial tx %s: %w", partialTx.UnsignedTx.TxHash(), err)
		}

		sigs[i][j] = sig
		return nil
	}); err != nil {
		return nil, err
	}

	return sigs, nil
}

// generateNonces iterates over the tree matrix and generates musig2 private and public nonces for each transaction
func (t *treeSignerSession) generateNonces() error {
	signerPubKey := t.secretKey.PubKey()
	serializedSignerPubKey := schnorr.SerializePubKey(signerPubKey)

	myNonces := make([][]*musig2.Nonces, 0, len(t.txs))
	for i := range t.txs {
		myNonces = append(myNonces, make([]*musig2.Nonces, len(t.txs[i])))
	}

	if err := workPoolMatrix(t.txs, func(i, j int, partialTx *psbt.Packet) error {
		mustGenerateNonce, _, err := getCosignersPublicKeys(serializedSignerPubKey, partialTx)
		if err != nil {
			return err
		}

		if !mustGenerateNonce {
			return nil
		}

		nonce, err := musig2.GenNonces(
			musig2.WithPublicKey(signerPubKey),
		)
		if err != nil {
			return err
		}

		myNonces[i][j] = nonce
		return nil
	}); err != nil {
		return err
	}

	t.myNonces = myNonces
	return nil
}

// signPartial signs the given transaction at the position (posx, posy)
func (t *treeSignerSession) signPartial(
	partialTx *psbt.Packet,
	posx int, posy int,
	keys []*btcec.PublicKey,
) (*musig2.PartialSignature, error) {
	myNonce := t.myNonces[posx][posy]
	if myNonce == nil {
		return nil, errors.New("missing own nonce")
	}

	aggregatedNonce := t.aggregateNonces[posx][posy]
	if aggregatedNonce == nil {
		return nil, ErrMissingAggregateNonce
	}

	prevoutFetcher, err := t.prevoutFetcher(partialTx)
	if err != nil {
		return nil, err
	}

	message, err := txscript.CalcTaprootSignatureHash(
		txscript.NewTxSigHashes(partialTx.UnsignedTx, prevoutFetcher),
		txscript.SigHashDefault,
		partialTx.UnsignedTx,
		0,
		prevoutFetcher,
	)
	if err != nil {
		return nil, err
	}

	return musig2.Sign(
		myNonce.SecNonce, t.secretKey, aggregatedNonce.PubNonce, keys, [32]byte(message),
		musig2.WithSortedKeys(), musig2.WithTaprootSignTweak(t.scriptRoot), musig2.WithFastSign(),
	)
}

// prevOutFetcherFactory resolves the prevout of a tree tx either in the
// round tx (root) or in the parent node.
func prevOutFetcherFactory(
	roundTx *psbt.Packet, txs [][]*psbt.Packet,
) func(partial *psbt.Packet) (txscript.PrevOutputFetcher, error) {
	roundTxid := roundTx.UnsignedTx.TxHash()

	return func(partial *psbt.Packet) (txscript.PrevOutputFetcher, error) {
		if len(partial.UnsignedTx.TxIn) != 1 {
			return nil, fmt.Errorf("expected 1 input, got %d", len(partial.UnsignedTx.TxIn))
		}

		prevout := partial.UnsignedTx.TxIn[0].PreviousOutPoint
		parentTx := roundTx.UnsignedTx
		if !prevout.Hash.IsEqual(&roundTxid) {
			parentTx = nil
			for _, level := range txs {
				for _, tx := range level {
					if txid := tx.UnsignedTx.TxHash(); txid.IsEqual(&prevout.Hash) {
						parentTx = tx.UnsignedTx
						break
					}
				}
			}
		}

		if parentTx == nil {
			return nil, fmt.Errorf("parent tx %s not found", prevout.Hash)
		}
		if int(prevout.Index) >= len(parentTx.TxOut) {
			return nil, fmt.Errorf("prevout %s not found", prevout)
		}

		out := parentTx.TxOut[prevout.Index]
		return txscript.NewCannedPrevOutputFetcher(out.PkScript, out.Value), nil
	}
}

type writable interface {
	Encode(w io.Writer) error
}

type readable interface {
	Decode(r io.Reader) error
}

// encodeMatrix encode a matrix of serializable objects into a byte stream
func encodeMatrix[T writable](matrix [][]T) ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(matrix))); err != nil {
		return nil, err
	}

	for _, row := range matrix {
		if err := binary.Write(&buf, binary.LittleEndian, uint32(len(row))); err != nil {
			return nil, err
		}
		// for each cell, write <isNil> | <cell> bytes
		for _, cell := range row {
			notNil := !reflect.ValueOf(cell).IsNil()
			if err := binary.Write(&buf, binary.LittleEndian, notNil); err != nil {
				return nil, err
			}

			if notNil {
				if err := cell.Encode(&buf); err != nil {
					return nil, err
				}
			}
		}
	}

	return buf.Bytes(), nil
}

// decodeMatrix decode a byte stream into a matrix of serializable objects
func decodeMatrix[T readable](factory func() T, data io.Reader) ([][]T, error) {
	var rowCount uint32

	if err := binary.Read(data, binary.LittleEndian, &rowCount); err != nil {
		return nil, err
	}

	matrix := make([][]T, 0, rowCount)
	for i := uint32(0); i < rowCount; i++ {
		var colCount uint32
		if err := binary.Read(data, binary.LittleEndian, &colCount); err != nil {
			return nil, err
		}
		row := make([]T, 0, colCount)
		for j := uint32(0); j < colCount; j++ {
			var notNil bool
			if err := binary.Read(data, binary.LittleEndian, &notNil); err != nil {
				return nil, err
			}
			if !notNil {
				row = append(row, *new(T))
				continue
			}
			cell := factory()
			if err := cell.Decode(data); err != nil {
				return nil, err
			}
			row = append(row, cell)
		}
		matrix = append(matrix, row)
	}

	return matrix, nil
}

func matchShape[A, B any](a [][]A, b [][]B) error {
	if len(a) != len(b) {
		return fmt.Errorf("expected %d levels, got %d", len(a), len(b))
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return fmt.Errorf("expected %d nodes at level %d, got %d", len(a[i]), i, len(b[i]))
		}
	}
	return nil
}

// workPool is a generic worker pool that processes items concurrently,
// once an item fails the remaining ones are drained without processing
func workPool[T any](items []T, workers int, processItem func(item T) error) error {
	errChan := make(chan error, 1)
	workChan := make(chan T)

	var failed atomic.Bool
	var wg sync.WaitGroup
	wg.Add(workers)

	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for item := range workChan {
				if failed.Load() {
					continue
				}
				if err := processItem(item); err != nil {
					failed.Store(true)
					select {
					case errChan <- err:
					default:
					}
				}
			}
		}()
	}

	for _, item := range items {
		workChan <- item
	}
	close(workChan)

	wg.Wait()

	select {
	case err := <-errChan:
		return err
	default:
		return nil
	}
}

// workPoolMatrix is a specialized version of workPool for processing 2D matrices
func workPoolMatrix[T any](matrix [][]T, processItem func(i, j int, item T) error) error {
	type workItem struct {
		i, j int
		item T
	}

	items := make([]workItem, 0)
	for i, row := range matrix {
		for j, item := range row {
			items = append(items, workItem{i: i, j: j, item: item})
		}
	}
	if len(items) == 0 {
		return nil
	}

	workers := runtime.NumCPU()
	if workers > len(items) {
		workers = len(items)
	}

	return workPool(items, workers, func(item workItem) error {
		return processItem(item.i, item.j, item.item)
	})
}

// getCosignersPublicKeys extract the set of cosigners public keys from the tx and check if the signer's key is in the set
func getCosignersPublicKeys(signerPubKey []byte, tx *psbt.Packet) (bool, []*btcec.PublicKey, error) {
	keys, err := GetCosignerKeys(tx.Inputs[0])
	if err != nil {
		return false, nil, err
	}

	for _, key := range keys {
		if bytes.Equal(schnorr.SerializePubKey(key), signerPubKey) {
			return true, keys, nil
		}
	}
	return false, nil, nil
}
