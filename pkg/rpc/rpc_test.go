package rpc

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/witmesh/witnode/pkg/chain"
	"github.com/witmesh/witnode/pkg/drpool"
	"github.com/witmesh/witnode/pkg/events"
	"github.com/witmesh/witnode/pkg/peer"
	"github.com/witmesh/witnode/pkg/reputation"
	"github.com/witmesh/witnode/pkg/session"
	"github.com/witmesh/witnode/pkg/storage"
)

type noopDialer struct{}

func (noopDialer) Dial(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	return nil, context.DeadlineExceeded
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ars := reputation.NewActiveSet(100)
	trs := reputation.NewTotalReputationSet()
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	pool := drpool.New(drpool.Config{CommitsPeriod: 5, RevealsPeriod: 5}, ars)
	chainMgr := chain.New(store, pool, ars, trs, broker, chain.Config{MaxBlockWeight: 1_000_000, SuperblockPeriod: 10, EligibilityFactor: 1.0})
	peerBook := peer.NewBook(1, "127.0.0.1:21337")
	sessionMgr := session.NewManager(nil, peerBook, noopDialer{}, "127.0.0.1:21337", session.Config{
		HandshakeTimeout:     time.Second,
		HandshakeMaxTSDiff:   time.Minute,
		BootstrapPeersPeriod: time.Second,
		OutboundLimit:        8,
	})

	return NewServer(Config{EnableSensitiveMethods: true}, chainMgr, pool, peerBook, sessionMgr, broker)
}

func call(s *Server, connID, method string, params any) *Response {
	encodedParams, _ := json.Marshal(params)
	req := Request{JSONRPC: "2.0", Method: method, Params: encodedParams, ID: json.RawMessage(`1`)}
	raw, _ := json.Marshal(req)
	out := s.Dispatch(connID, raw)
	var resp Response
	_ = json.Unmarshal(out, &resp)
	return &resp
}

func TestInventoryReportsEmptyChain(t *testing.T) {
	s := newTestServer(t)
	resp := call(s, "", "inventory", nil)
	require.Nil(t, resp.Error)

	var summary InventorySummary
	require.NoError(t, json.Unmarshal(resp.Result, &summary))
	assert.Equal(t, 0, summary.MempoolSize)
	assert.Equal(t, 0, summary.UTXOSetSize)
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	s := newTestServer(t)
	resp := call(s, "", "notAMethod", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestMalformedJSONReturnsParseError(t *testing.T) {
	s := newTestServer(t)
	out := s.Dispatch("", []byte(`{not json`))
	var resp Response
	require.NoError(t, json.Unmarshal(out, &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeParseError, resp.Error.Code)
}

func TestGetBlockNotFound(t *testing.T) {
	s := newTestServer(t)
	resp := call(s, "", "getBlock", map[string]string{"hash": "00" + stringsRepeat("00", 31)})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNotFound, resp.Error.Code)
}

func TestSubscribeWithoutConnectionFails(t *testing.T) {
	s := newTestServer(t)
	resp := call(s, "", "subscribe", map[string]string{"topic": "blocks"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
}

func TestSubscribeAndUnsubscribeOverStatefulConn(t *testing.T) {
	s := newTestServer(t)
	connID := "conn-1"
	s.subs.OpenConn(connID, func(b []byte) {})
	defer s.subs.CloseConn(connID)

	resp := call(s, connID, "subscribe", map[string]string{"topic": "blocks"})
	require.Nil(t, resp.Error)
	var subResult map[string]string
	require.NoError(t, json.Unmarshal(resp.Result, &subResult))
	subID := subResult["subscription"]
	assert.NotEmpty(t, subID)

	unsub := call(s, connID, "unsubscribe", map[string]string{"subscription": subID})
	require.Nil(t, unsub.Error)

	unsubAgain := call(s, connID, "unsubscribe", map[string]string{"subscription": subID})
	require.NotNil(t, unsubAgain.Error)
	assert.Equal(t, CodeNotFound, unsubAgain.Error.Code)
}

func TestSensitiveMethodGatedByConfig(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ars := reputation.NewActiveSet(100)
	trs := reputation.NewTotalReputationSet()
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)
	pool := drpool.New(drpool.Config{CommitsPeriod: 5, RevealsPeriod: 5}, ars)
	chainMgr := chain.New(store, pool, ars, trs, broker, chain.Config{MaxBlockWeight: 1_000_000, SuperblockPeriod: 10, EligibilityFactor: 1.0})
	peerBook := peer.NewBook(1, "127.0.0.1:21337")
	sessionMgr := session.NewManager(nil, peerBook, noopDialer{}, "127.0.0.1:21337", session.Config{
		HandshakeTimeout: time.Second, HandshakeMaxTSDiff: time.Minute, BootstrapPeersPeriod: time.Second, OutboundLimit: 8,
	})
	s := NewServer(Config{EnableSensitiveMethods: false}, chainMgr, pool, peerBook, sessionMgr, broker)

	resp := call(s, "", "sendRequest", map[string]any{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeSensitiveMethod, resp.Error.Code)
}

func stringsRepeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
