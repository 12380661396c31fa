package singlekey

import (
	"fmt"

	"github.com/ark-network/ark-wallet-api/internal/core/ports"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

type keyManager struct {
	cypher   *cypher
	password []byte
}

// NewKeyManager returns a key manager encrypting every wallet key with the
// given password. scryptN tunes the key derivation cost, 0 means default.
func NewKeyManager(password string, scryptN int) (ports.KeyManager, error) {
	if len(password) <= 0 {
		return nil, fmt.Errorf("missing wallet password")
	}
	return &keyManager{newCypher(scryptN), []byte(password)}, nil
}

func (m *keyManager) NewKey() (*btcec.PublicKey, []byte, error) {
	prvkey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, nil, err
	}

	encrypted, err := m.cypher.encrypt(prvkey.Serialize(), m.password)
	if err != nil {
		return nil, nil, err
	}

	return prvkey.PubKey(), encrypted, nil
}

func (m *keyManager) Signer(encryptedPrvkey []byte) (ports.Signer, error) {
	buf, err := m.cypher.decrypt(encryptedPrvkey, m.password)
	if err != nil {
		return nil, err
	}

	prvkey, _ := btcec.PrivKeyFromBytes(buf)
	return NewSigner(prvkey), nil
}

type signer struct {
	prvkey *btcec.PrivateKey
}

func NewSigner(prvkey *btcec.PrivateKey) ports.Signer {
	return &signer{prvkey}
}

func (s *signer) PubKey() *btcec.PublicKey {
	return s.prvkey.PubKey()
}

func (s *signer) SignSchnorr(digest []byte) (*schnorr.Signature, error) {
	return schnorr.Sign(s.prvkey, digest)
}
