package common

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

type Network struct {
	Name string
	// Addr is the human readable part of Ark addresses
	Addr string
}

var Bitcoin = Network{
	Name: "bitcoin",
	Addr: "ark",
}

var BitcoinTestNet = Network{
	Name: "testnet",
	Addr: "tark",
}

var BitcoinSigNet = Network{
	Name: "signet",
	Addr: "tark",
}

var BitcoinMutinyNet = Network{
	Name: "mutinynet",
	Addr: "tark",
}

var BitcoinRegTest = Network{
	Name: "regtest",
	Addr: "tark",
}

var networks = map[string]Network{
	Bitcoin.Name:          Bitcoin,
	"mainnet":             Bitcoin,
	BitcoinTestNet.Name:   BitcoinTestNet,
	BitcoinSigNet.Name:    BitcoinSigNet,
	BitcoinMutinyNet.Name: BitcoinMutinyNet,
	BitcoinRegTest.Name:   BitcoinRegTest,
}

func NetworkFromString(net string) (Network, error) {
	network, ok := networks[strings.ToLower(net)]
	if !ok {
		return Network{}, fmt.Errorf("unknown network %q", net)
	}
	return network, nil
}

// Params returns the chain parameters used to encode on-chain addresses.
func (n Network) Params() *chaincfg.Params {
	switch n.Name {
	case BitcoinTestNet.Name:
		return &chaincfg.TestNet3Params
	case BitcoinSigNet.Name, BitcoinMutinyNet.Name:
		return &chaincfg.SigNetParams
	case BitcoinRegTest.Name:
		return &chaincfg.RegressionNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

// DecodeAddress decodes an on-chain address and makes sure it belongs to
// the network. btcutil only checks the network of legacy addresses.
func (n Network) DecodeAddress(addr string) (btcutil.Address, error) {
	params := n.Params()
	decoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return nil, err
	}
	if !decoded.IsForNet(params) {
		return nil, fmt.Errorf("address %s is not for network %s", addr, n.Name)
	}
	return decoded, nil
}
