// Package crypto implements witnode's identity primitives: secp256k1
// keypairs, detached signatures, and Bitcoin-style public-key-hash
// address derivation.
package crypto

import (
	"crypto/sha256"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/witmesh/witnode/pkg/types"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // address derivation requires this exact digest, per Bitcoin-style PKH convention
)

// KeyPair is a node's secp256k1 signing identity.
type KeyPair struct {
	Private *secp256k1.PrivateKey
	Public  *secp256k1.PublicKey
}

// GenerateKeyPair creates a new random signing identity.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &KeyPair{Private: priv, Public: priv.PubKey()}, nil
}

// KeyPairFromBytes reconstructs a KeyPair from a 32-byte private scalar.
func KeyPairFromBytes(b []byte) (*KeyPair, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	priv := secp256k1.PrivKeyFromBytes(b)
	return &KeyPair{Private: priv, Public: priv.PubKey()}, nil
}

// Sign produces a detached signature over a message digest.
func (k *KeyPair) Sign(digest []byte) []byte {
	sig := ecdsa.Sign(k.Private, digest)
	return sig.Serialize()
}

// Verify checks a detached signature against a compressed public key
// and message digest.
func Verify(pubKeyBytes, digest, sigBytes []byte) bool {
	pub, err := secp256k1.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return false
	}
	return sig.Verify(digest, pub)
}

// PKH derives a PublicKeyHash from a compressed public key via
// SHA-256 then RIPEMD-160, the Bitcoin-style address derivation the
// node's value-transfer outputs and witness identities both key off.
func PKH(pubKeyBytes []byte) (types.PublicKeyHash, error) {
	sha := sha256.Sum256(pubKeyBytes)

	ripemd := ripemd160.New()
	if _, err := ripemd.Write(sha[:]); err != nil {
		return types.PublicKeyHash{}, fmt.Errorf("ripemd160: %w", err)
	}

	var pkh types.PublicKeyHash
	copy(pkh[:], ripemd.Sum(nil))
	return pkh, nil
}

// HashSHA256 computes the node's canonical transaction/block digest.
func HashSHA256(data []byte) types.Hash {
	return types.Hash(sha256.Sum256(data))
}
