package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/witmesh/witnode/pkg/types"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	digest := HashSHA256([]byte("hello witness"))
	sig := kp.Sign(digest[:])

	ok := Verify(kp.Public.SerializeCompressed(), digest[:], sig)
	assert.True(t, ok)
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	digest := HashSHA256([]byte("hello witness"))
	sig := kp.Sign(digest[:])
	sig[0] ^= 0xff

	ok := Verify(kp.Public.SerializeCompressed(), digest[:], sig)
	assert.False(t, ok)
}

func TestPKHIsDeterministic(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	pub := kp.Public.SerializeCompressed()
	a, err := PKH(pub)
	require.NoError(t, err)
	b, err := PKH(pub)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestEligibilityProofRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	prev := types.Hash{1, 2, 3}
	proof := kp.Prove(42, prev)

	score, ok := VerifyEligibility(proof, 42, prev)
	require.True(t, ok)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.Less(t, score, 1.0)

	_, ok = VerifyEligibility(proof, 43, prev)
	assert.False(t, ok)
}
