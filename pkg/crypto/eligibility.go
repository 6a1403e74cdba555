package crypto

import (
	"encoding/binary"

	"github.com/witmesh/witnode/pkg/types"
)

// EligibilityProof is the deterministic, verifiable proof a node
// produces to show it is allowed to mine or to commit/reveal for a
// given epoch, without a trusted coordinator picking eligible parties.
// It is built from a signature over the epoch and the previous beacon
// — any third party can verify it, but only the key holder can
// produce it, giving it the same unpredictability-plus-verifiability
// properties a VRF would, without introducing a second curve/primitive
// beyond the secp256k1 stack already wired in for transaction
// signatures.
type EligibilityProof struct {
	Signature []byte
	PublicKey []byte
}

// eligibilityMessage builds the fixed-format message a proof signs:
// the epoch number followed by the previous block hash.
func eligibilityMessage(epoch uint32, prevBlock types.Hash) []byte {
	msg := make([]byte, 4+len(prevBlock))
	binary.BigEndian.PutUint32(msg, epoch)
	copy(msg[4:], prevBlock[:])
	return msg
}

// Prove produces an eligibility proof for the given epoch/beacon.
func (k *KeyPair) Prove(epoch uint32, prevBlock types.Hash) EligibilityProof {
	digest := HashSHA256(eligibilityMessage(epoch, prevBlock))
	return EligibilityProof{
		Signature: k.Sign(digest[:]),
		PublicKey: k.Public.SerializeCompressed(),
	}
}

// VerifyEligibility checks that a proof was produced by the claimed
// key for the given epoch/beacon, then folds the resulting signature
// into a pseudo-random score in [0, 1) used to compare against a
// reputation-weighted eligibility target.
func VerifyEligibility(proof EligibilityProof, epoch uint32, prevBlock types.Hash) (float64, bool) {
	digest := HashSHA256(eligibilityMessage(epoch, prevBlock))
	if !Verify(proof.PublicKey, digest[:], proof.Signature) {
		return 0, false
	}
	scoreDigest := HashSHA256(proof.Signature)
	score := float64(binary.BigEndian.Uint64(scoreDigest[:8])) / float64(^uint64(0))
	return score, true
}
