package session

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/witmesh/witnode/pkg/logging"
	"github.com/witmesh/witnode/pkg/metrics"
	"github.com/witmesh/witnode/pkg/types"
)

// handshakeFlags tracks the four booleans that must all be true for a
// session to consolidate.
type handshakeFlags struct {
	versionTx bool
	versionRx bool
	verackTx  bool
	verackRx  bool
}

func (f handshakeFlags) consolidated() bool {
	return f.versionTx && f.versionRx && f.verackTx && f.verackRx
}

// conn is the live state of one connection: its handshake flags, frame
// reader/writer, and the wrapped transport.
type conn struct {
	types.Session
	transport io.ReadWriteCloser
	flags     handshakeFlags
	outCh     chan Frame
	stopCh    chan struct{}
}

// Candidate provides outbound dial targets; the peer manager satisfies
// this in production.
type Candidate interface {
	GetNewRandom() (types.PeerEntry, bool)
	Eligible(addr string) bool
	MarkOutboundActive(addr string)
	MarkOutboundInactive(addr string)
	AddToTried(addr string)
	RemoveFromTried(addr string, ice bool)
}

// Dialer opens an outbound TCP connection.
type Dialer interface {
	Dial(ctx context.Context, addr string) (io.ReadWriteCloser, error)
}

// Config holds the session manager's tunables, taken verbatim from
// node configuration.
type Config struct {
	HandshakeTimeout     time.Duration
	HandshakeMaxTSDiff   time.Duration
	BootstrapPeersPeriod time.Duration
	OutboundLimit        int
}

// Manager owns the live sessions map exclusively; every other
// component reaches sessions only through Anycast/Broadcast and the
// InboundFrames channel.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*conn

	codec     FrameCodec
	peerBook  Candidate
	dialer    Dialer
	cfg       Config
	localAddr string

	networkReady   chan struct{}
	readyOnce      sync.Once
	inboundFrames  chan InboundFrame

	log zerolog.Logger
}

// InboundFrame pairs a received frame with the session it arrived on.
type InboundFrame struct {
	SessionID string
	Frame     Frame
}

// NewManager constructs a session Manager.
func NewManager(codec FrameCodec, peerBook Candidate, dialer Dialer, localAddr string, cfg Config) *Manager {
	return &Manager{
		sessions:      make(map[string]*conn),
		codec:         codec,
		peerBook:      peerBook,
		dialer:        dialer,
		cfg:           cfg,
		localAddr:     localAddr,
		networkReady:  make(chan struct{}),
		inboundFrames: make(chan InboundFrame, 256),
		log:           logging.WithComponent("session"),
	}
}

// InboundFrames exposes the channel of frames delivered from
// consolidated sessions for the chain manager / data-request pool to
// consume.
func (m *Manager) InboundFrames() <-chan InboundFrame {
	return m.inboundFrames
}

// NetworkReady is closed the first time a session consolidates,
// signaling the node has at least one live peer.
func (m *Manager) NetworkReady() <-chan struct{} {
	return m.networkReady
}

// AcceptInbound registers a freshly-accepted TCP connection and starts
// its handshake.
func (m *Manager) AcceptInbound(transport io.ReadWriteCloser, remoteAddr string) {
	c := m.newConn(transport, remoteAddr, types.SessionInbound)
	m.register(c)
	go m.runHandshake(c)
}

// DialOutbound opens a new outbound connection to addr and starts its
// handshake.
func (m *Manager) DialOutbound(ctx context.Context, addr string) error {
	transport, err := m.dialer.Dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	m.peerBook.MarkOutboundActive(addr)

	c := m.newConn(transport, addr, types.SessionOutbound)
	m.register(c)
	go m.runHandshake(c)
	return nil
}

func (m *Manager) newConn(transport io.ReadWriteCloser, addr string, dir types.SessionDirection) *conn {
	return &conn{
		Session: types.Session{
			ID:          uuid.NewString(),
			Address:     addr,
			Direction:   dir,
			Status:      types.SessionUnconsolidated,
			HandshakeAt: time.Now(),
		},
		transport: transport,
		outCh:     make(chan Frame, 64),
		stopCh:    make(chan struct{}),
	}
}

func (m *Manager) register(c *conn) {
	m.mu.Lock()
	m.sessions[c.ID] = c
	m.mu.Unlock()
	m.updateMetrics()
}

func (m *Manager) unregister(c *conn) {
	m.mu.Lock()
	delete(m.sessions, c.ID)
	m.mu.Unlock()
	if c.Direction == types.SessionOutbound {
		m.peerBook.MarkOutboundInactive(c.Address)
	}
	close(c.stopCh)
	c.transport.Close()
	m.updateMetrics()
}

// runHandshake drives a connection's version/verack exchange and
// enforces HandshakeTimeout; it returns once the connection is either
// consolidated and handed to the steady-state read/write loop, or
// dropped.
func (m *Manager) runHandshake(c *conn) {
	timeout := m.cfg.HandshakeTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	if c.Direction == types.SessionOutbound {
		m.sendVersion(c)
	}

	consolidatedCh := make(chan struct{})
	go m.handshakeReadLoop(c, consolidatedCh)

	select {
	case <-consolidatedCh:
		m.consolidate(c)
	case <-deadline.C:
		m.log.Warn().Str("addr", c.Address).Msg("handshake timed out")
		m.unregister(c)
	case <-c.stopCh:
	}
}

func (m *Manager) sendVersion(c *conn) {
	_ = m.codec.WriteFrame(c.transport, Frame{Kind: "version", Payload: []byte(timeNow())})
	c.flags.versionTx = true
}

func timeNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (m *Manager) handshakeReadLoop(c *conn, consolidated chan<- struct{}) {
	for {
		f, err := m.codec.ReadFrame(c.transport)
		if err != nil {
			return
		}
		switch f.Kind {
		case "version":
			if !m.acceptableTimestamp(f.Payload) {
				m.log.Warn().Str("addr", c.Address).Msg("version timestamp drift exceeds handshake_max_ts_diff")
				return
			}
			c.flags.versionRx = true
			if c.Direction == types.SessionInbound {
				m.sendVersion(c)
			}
			_ = m.codec.WriteFrame(c.transport, Frame{Kind: "verack"})
			c.flags.verackTx = true
		case "verack":
			c.flags.verackRx = true
		default:
			m.log.Warn().Str("kind", f.Kind).Msg("dropping unrecognized frame during handshake")
			continue
		}
		if c.flags.consolidated() {
			close(consolidated)
			return
		}
	}
}

func (m *Manager) acceptableTimestamp(payload []byte) bool {
	ts, err := time.Parse(time.RFC3339, string(payload))
	if err != nil {
		return false
	}
	maxDiff := m.cfg.HandshakeMaxTSDiff
	if maxDiff == 0 {
		maxDiff = 90 * time.Second
	}
	diff := time.Since(ts)
	if diff < 0 {
		diff = -diff
	}
	return diff <= maxDiff
}

func (m *Manager) consolidate(c *conn) {
	m.mu.Lock()
	c.Status = types.SessionConsolidated
	m.mu.Unlock()

	metrics.HandshakeDuration.Observe(time.Since(c.HandshakeAt).Seconds())

	if c.Direction == types.SessionOutbound {
		m.peerBook.AddToTried(c.Address)
	}

	m.readyOnce.Do(func() { close(m.networkReady) })
	m.updateMetrics()

	go m.writeLoop(c)
	m.steadyStateReadLoop(c)
}

func (m *Manager) writeLoop(c *conn) {
	for {
		select {
		case f := <-c.outCh:
			if err := m.codec.WriteFrame(c.transport, f); err != nil {
				m.unregister(c)
				return
			}
		case <-c.stopCh:
			return
		}
	}
}

func (m *Manager) steadyStateReadLoop(c *conn) {
	for {
		f, err := m.codec.ReadFrame(c.transport)
		if err != nil {
			m.unregister(c)
			return
		}
		m.mu.Lock()
		c.LastMsgAt = time.Now()
		m.mu.Unlock()

		select {
		case m.inboundFrames <- InboundFrame{SessionID: c.ID, Frame: f}:
		default:
			m.log.Warn().Str("session_id", c.ID).Msg("inbound frame queue full, dropping")
		}
	}
}

// Anycast sends msg to one random consolidated session.
func (m *Manager) Anycast(f Frame) bool {
	m.mu.RLock()
	var candidates []*conn
	for _, c := range m.sessions {
		if c.Status == types.SessionConsolidated {
			candidates = append(candidates, c)
		}
	}
	m.mu.RUnlock()

	if len(candidates) == 0 {
		return false
	}
	target := candidates[rand.Intn(len(candidates))]
	select {
	case target.outCh <- f:
		return true
	default:
		return false
	}
}

// Broadcast sends msg to every consolidated session. Within one
// Broadcast call, every sink sees the message; no cross-call ordering
// is promised.
func (m *Manager) Broadcast(f Frame) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.sessions {
		if c.Status != types.SessionConsolidated {
			continue
		}
		select {
		case c.outCh <- f:
		default:
		}
	}
}

// RunBootstrap drives the outbound-bootstrap loop: every
// BootstrapPeersPeriod, if outbound sessions are below OutboundLimit,
// ask the peer manager for a random eligible address and dial it.
func (m *Manager) RunBootstrap(ctx context.Context) {
	period := m.cfg.BootstrapPeersPeriod
	if period == 0 {
		period = 30 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.bootstrapOnce(ctx)
		}
	}
}

func (m *Manager) bootstrapOnce(ctx context.Context) {
	if m.OutboundCount() >= m.cfg.OutboundLimit {
		return
	}
	candidate, ok := m.peerBook.GetNewRandom()
	if !ok || !m.peerBook.Eligible(candidate.Address) {
		return
	}
	if err := m.DialOutbound(ctx, candidate.Address); err != nil {
		m.log.Debug().Err(err).Str("addr", candidate.Address).Msg("outbound dial failed")
	}
}

// OutboundCount returns the number of live outbound sessions.
func (m *Manager) OutboundCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.sessions {
		if c.Direction == types.SessionOutbound {
			n++
		}
	}
	return n
}

// SessionCount returns the total number of live sessions, consolidated
// or not, for the RPC surface's inventory method.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) updateMetrics() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := map[string]int{}
	for _, c := range m.sessions {
		key := string(c.Status) + "|" + string(c.Direction)
		counts[key]++
	}
	for key, count := range counts {
		status, direction := splitKey(key)
		metrics.SessionsTotal.WithLabelValues(status, direction).Set(float64(count))
	}
}

func splitKey(key string) (string, string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}
