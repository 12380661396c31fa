package ports

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Signer produces schnorr signatures with a wallet's long-term key.
type Signer interface {
	PubKey() *btcec.PublicKey
	SignSchnorr(digest []byte) (*schnorr.Signature, error)
}

// KeyManager generates wallet keys and keeps them encrypted at rest.
type KeyManager interface {
	// NewKey returns a fresh public key and its private key encrypted
	NewKey() (*btcec.PublicKey, []byte, error)
	// Signer decrypts the key and returns a signer for it
	Signer(encryptedPrvkey []byte) (Signer, error)
}
