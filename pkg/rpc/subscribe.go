package rpc

import (
	"sync"

	"github.com/google/uuid"
	"github.com/witmesh/witnode/pkg/events"
	"github.com/witmesh/witnode/pkg/metrics"
)

// topics maps the opaque subscription key a client passes to subscribe
// onto the underlying event type the broker publishes.
var topics = map[string]events.EventType{
	"blocks":      events.EventBlockNotify,
	"superblocks": events.EventSuperBlockNotify,
	"status":      events.EventNodeStatusNotify,
}

// connSubs is one stateful connection's (TCP or WebSocket) live
// subscriptions: a single broker Subscriber fans out to however many
// topic subscriptions the connection has asked for.
type connSubs struct {
	sink events.Subscriber
	subs map[string]events.EventType // subscription id -> topic
	send func([]byte)
	stop chan struct{}
}

// subscriptions tracks every connection's subscribe/unsubscribe state,
// the broker-side counterpart to the RPC surface's subscribe method.
type subscriptions struct {
	mu     sync.Mutex
	broker *events.Broker
	byConn map[string]*connSubs
}

func newSubscriptions(broker *events.Broker) *subscriptions {
	return &subscriptions{broker: broker, byConn: make(map[string]*connSubs)}
}

// OpenConn registers a stateful connection's outbound send function.
// Call before dispatching any requests from the connection and
// CloseConn exactly once when it disconnects.
func (r *subscriptions) OpenConn(connID string, send func([]byte)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byConn[connID] = &connSubs{
		subs: make(map[string]events.EventType),
		send: send,
		stop: make(chan struct{}),
	}
}

// CloseConn tears down every subscription a connection held.
func (r *subscriptions) CloseConn(connID string) {
	r.mu.Lock()
	cs, ok := r.byConn[connID]
	delete(r.byConn, connID)
	r.mu.Unlock()
	if !ok {
		return
	}
	close(cs.stop)
	if cs.sink != nil {
		r.broker.Unsubscribe(cs.sink)
	}
	metrics.RPCSubscribersTotal.Set(float64(r.totalSubs()))
}

// Subscribe adds topic to connID's live subscriptions, lazily opening
// the connection's single broker Subscriber on first use.
func (r *subscriptions) Subscribe(connID string, topic events.EventType) (string, error) {
	r.mu.Lock()
	cs, ok := r.byConn[connID]
	r.mu.Unlock()
	if !ok {
		return "", errNoConnection
	}

	r.mu.Lock()
	if cs.sink == nil {
		cs.sink = r.broker.Subscribe()
		go r.pump(connID, cs)
	}
	subID := uuid.NewString()
	cs.subs[subID] = topic
	r.mu.Unlock()

	metrics.RPCSubscribersTotal.Set(float64(r.totalSubs()))
	return subID, nil
}

// Unsubscribe detaches one subscription id. Returns false if connID
// has no such subscription.
func (r *subscriptions) Unsubscribe(connID, subID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cs, ok := r.byConn[connID]
	if !ok {
		return false
	}
	if _, ok := cs.subs[subID]; !ok {
		return false
	}
	delete(cs.subs, subID)
	metrics.RPCSubscribersTotal.Set(float64(r.totalSubsLocked()))
	return true
}

func (r *subscriptions) pump(connID string, cs *connSubs) {
	for {
		select {
		case ev, ok := <-cs.sink:
			if !ok {
				return
			}
			r.dispatch(connID, cs, ev)
		case <-cs.stop:
			return
		}
	}
}

func (r *subscriptions) dispatch(connID string, cs *connSubs, ev *events.Event) {
	r.mu.Lock()
	matching := make([]string, 0, 1)
	for subID, topic := range cs.subs {
		if topic == ev.Type {
			matching = append(matching, subID)
		}
	}
	r.mu.Unlock()

	if len(matching) == 0 {
		return
	}
	payload := encodeEvent(ev)
	for _, subID := range matching {
		cs.send(encodeNotification(subID, string(ev.Type), payload))
	}
}

func (r *subscriptions) totalSubs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalSubsLocked()
}

func (r *subscriptions) totalSubsLocked() int {
	n := 0
	for _, cs := range r.byConn {
		n += len(cs.subs)
	}
	return n
}
