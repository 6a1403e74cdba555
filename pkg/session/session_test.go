package session

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bufPipe struct {
	*bytes.Buffer
}

func (b bufPipe) Close() error { return nil }

func TestGobCodecRoundTrip(t *testing.T) {
	codec := NewGobLengthPrefixedCodec()
	var buf bytes.Buffer

	f := Frame{Kind: "version", Payload: []byte("hello")}
	require.NoError(t, codec.WriteFrame(&buf, f))

	got, err := codec.ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, f.Kind, got.Kind)
	assert.Equal(t, f.Payload, got.Payload)
}

func TestReadFrameOnEmptyReaderErrors(t *testing.T) {
	codec := NewGobLengthPrefixedCodec()
	_, err := codec.ReadFrame(io.MultiReader())
	assert.Error(t, err)
}

func TestHandshakeFlagsConsolidation(t *testing.T) {
	f := handshakeFlags{}
	assert.False(t, f.consolidated())

	f.versionTx = true
	f.versionRx = true
	f.verackTx = true
	assert.False(t, f.consolidated())

	f.verackRx = true
	assert.True(t, f.consolidated())
}

func TestAcceptableTimestamp(t *testing.T) {
	m := &Manager{cfg: Config{HandshakeMaxTSDiff: 90 * time.Second}}
	assert.True(t, m.acceptableTimestamp([]byte(time.Now().UTC().Format(time.RFC3339))))
	assert.False(t, m.acceptableTimestamp([]byte(time.Now().Add(-time.Hour).UTC().Format(time.RFC3339))))
	assert.False(t, m.acceptableTimestamp([]byte("not-a-timestamp")))
}
