package tree

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/psbt"
)

// Node is a vtxo or connector tree transaction with its parent reference
type Node struct {
	Txid       string `json:"txid"`
	Tx         string `json:"tx"`
	ParentTxid string `json:"parent_txid"`
	Leaf       bool   `json:"leaf"`
}

var ErrParentNotFound = errors.New("parent not found")

// TxTree is represented as a matrix of Node, the first level being the root
type TxTree [][]Node

// Root returns the root node of the tree
func (c TxTree) Root() (Node, error) {
	if len(c) <= 0 || len(c[0]) <= 0 {
		return Node{}, errors.New("empty tree")
	}

	return c[0][0], nil
}

// Leaves returns the leaves of the tree
func (c TxTree) Leaves() []Node {
	if len(c) <= 0 {
		return nil
	}

	leaves := append([]Node{}, c[len(c)-1]...)
	for _, level := range c[:len(c)-1] {
		for _, node := range level {
			if node.Leaf {
				leaves = append(leaves, node)
			}
		}
	}

	return leaves
}

func (c TxTree) NumberOfNodes() int {
	var count int
	for _, level := range c {
		count += len(level)
	}
	return count
}

// Find returns the node with the given txid
func (c TxTree) Find(txid string) (Node, bool) {
	for _, level := range c {
		for _, node := range level {
			if node.Txid == txid {
				return node, true
			}
		}
	}
	return Node{}, false
}

// Validate checks every node is a valid psbt matching its txid and that
// every non-root node has a parent in the tree.
func (c TxTree) Validate() error {
	root, err := c.Root()
	if err != nil {
		return err
	}

	for _, level := range c {
		for _, node := range level {
			ptx, err := psbt.NewFromRawBytes(strings.NewReader(node.Tx), true)
			if err != nil {
				return fmt.Errorf("failed to parse tx %s: %w", node.Txid, err)
			}
			if txid := ptx.UnsignedTx.TxHash().String(); txid != node.Txid {
				return fmt.Errorf("node %s has txid %s", node.Txid, txid)
			}
			if node.Txid == root.Txid {
				continue
			}
			if _, ok := c.Find(node.ParentTxid); !ok {
				return fmt.Errorf("node %s: %w", node.Txid, ErrParentNotFound)
			}
		}
	}

	return nil
}

func (c TxTree) toPackets() ([][]*psbt.Packet, error) {
	txs := make([][]*psbt.Packet, 0, len(c))

	for _, level := range c {
		levelTxs := make([]*psbt.Packet, 0, len(level))
		for _, node := range level {
			ptx, err := psbt.NewFromRawBytes(strings.NewReader(node.Tx), true)
			if err != nil {
				return nil, err
			}

			levelTxs = append(levelTxs, ptx)
		}

		txs = append(txs, levelTxs)
	}

	return txs, nil
}
