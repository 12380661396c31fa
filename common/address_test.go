package common_test

import (
	"testing"

	"github.com/ark-network/ark-wallet-api/common"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/stretchr/testify/require"
)

func TestAddress(t *testing.T) {
	serverKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	vtxoKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		for _, net := range []common.Network{common.Bitcoin, common.BitcoinRegTest} {
			addr := &common.Address{
				HRP:        net.Addr,
				Server:     serverKey.PubKey(),
				VtxoTapKey: vtxoKey.PubKey(),
			}
			encoded, err := addr.Encode()
			require.NoError(t, err)

			decoded, err := common.DecodeAddress(encoded)
			require.NoError(t, err)
			require.True(t, addr.Equal(decoded))

			script, err := decoded.PkScript()
			require.NoError(t, err)
			require.Len(t, script, 34)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		wrongLength, err := bech32.ConvertBits(make([]byte, 33), 8, 5, true)
		require.NoError(t, err)
		wrongLengthAddr, err := bech32.EncodeM("tark", wrongLength)
		require.NoError(t, err)

		wrongVersion := append([]byte{1}, make([]byte, 64)...)
		grp, err := bech32.ConvertBits(wrongVersion, 8, 5, true)
		require.NoError(t, err)
		wrongVersionAddr, err := bech32.EncodeM("tark", grp)
		require.NoError(t, err)

		wrongPrefix := &common.Address{
			HRP:        "lark",
			Server:     serverKey.PubKey(),
			VtxoTapKey: vtxoKey.PubKey(),
		}
		wrongPrefixAddr, err := wrongPrefix.Encode()
		require.NoError(t, err)

		testCases := []struct {
			name    string
			addr    string
			wantErr string
		}{
			{"empty", "", "address is empty"},
			{"prefix", wrongPrefixAddr, "invalid prefix"},
			{"length", wrongLengthAddr, "invalid address bytes length"},
			{"version", wrongVersionAddr, "unsupported address version"},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := common.DecodeAddress(tc.addr)
				require.ErrorContains(t, err, tc.wantErr)
			})
		}

		_, err = (&common.Address{HRP: "tark", Server: serverKey.PubKey()}).Encode()
		require.Error(t, err)
	})
}
