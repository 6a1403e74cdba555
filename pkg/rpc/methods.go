package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/witmesh/witnode/pkg/types"
)

// InventorySummary is the result of the inventory method: a compact
// snapshot of the node's view of the network and the chain.
type InventorySummary struct {
	ChainTip       types.CheckpointBeacon `json:"chain_tip"`
	MempoolSize    int                    `json:"mempool_size"`
	UTXOSetSize    int                    `json:"utxo_set_size"`
	PeersKnown     int                    `json:"peers_known"`
	SessionCount   int                    `json:"session_count"`
	OutboundCount  int                    `json:"outbound_count"`
}

func handleInventory(s *Server, _ string, _ json.RawMessage) (any, *Error) {
	return InventorySummary{
		ChainTip:      s.chain.Tip(),
		MempoolSize:   len(s.chain.MempoolEntries()),
		UTXOSetSize:   s.chain.UTXOSetSize(),
		PeersKnown:    len(s.peers.GetAllFromNew()) + len(s.peers.GetAllFromTried()),
		SessionCount:  s.session.SessionCount(),
		OutboundCount: s.session.OutboundCount(),
	}, nil
}

type getBlockParams struct {
	Hash string `json:"hash"`
}

func handleGetBlock(s *Server, _ string, params json.RawMessage) (any, *Error) {
	var p getBlockParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "expected {hash}", Data: err.Error()}
	}
	hash, err := parseHash(p.Hash)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "malformed hash", Data: err.Error()}
	}

	block, ok, err := s.chain.GetBlock(hash)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: "read block", Data: err.Error()}
	}
	if !ok {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("no consolidated block with hash %s", p.Hash)}
	}
	return block, nil
}

type getBlockChainParams struct {
	From uint32 `json:"from"`
	To   uint32 `json:"to"`
}

type blockChainEntry struct {
	Epoch uint32 `json:"epoch"`
	Hash  string `json:"hash"`
}

func handleGetBlockChain(s *Server, _ string, params json.RawMessage) (any, *Error) {
	var p getBlockChainParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: "expected {from, to}", Data: err.Error()}
		}
	}

	pairs, err := s.chain.GetBlockChain(p.From, p.To)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	out := make([]blockChainEntry, len(pairs))
	for i, pair := range pairs {
		out[i] = blockChainEntry{Epoch: pair.Epoch, Hash: pair.Hash.String()}
	}
	return out, nil
}

type getOutputParams struct {
	Pointer string `json:"pointer"` // "<tx-hash>:<output-index>"
}

func handleGetOutput(s *Server, _ string, params json.RawMessage) (any, *Error) {
	var p getOutputParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "expected {pointer}", Data: err.Error()}
	}
	pointer, err := parseOutputPointer(p.Pointer)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "malformed output pointer", Data: err.Error()}
	}

	out, ok := s.chain.GetOutput(pointer)
	if !ok {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("no unspent output at %s", p.Pointer)}
	}
	return out, nil
}

type sendRequestParams struct {
	Transaction types.Transaction `json:"transaction"`
	Weight      uint32            `json:"weight"`
}

func handleSendRequest(s *Server, _ string, params json.RawMessage) (any, *Error) {
	var p sendRequestParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "expected {transaction, weight}", Data: err.Error()}
	}

	hash, err := s.chain.SubmitTransaction(p.Transaction, p.Weight)
	if err != nil {
		return nil, &Error{Code: CodeValidationFailed, Message: "transaction rejected", Data: err.Error()}
	}
	if p.Transaction.Kind == types.TxDataRequest && p.Transaction.DataRequest != nil {
		s.pool.AddNew(hash, *p.Transaction.DataRequest)
	}
	return map[string]string{"hash": hash.String()}, nil
}

type subscribeParams struct {
	Topic string `json:"topic"`
}

func handleSubscribe(s *Server, connID string, params json.RawMessage) (any, *Error) {
	var p subscribeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "expected {topic}", Data: err.Error()}
	}
	topic, ok := topics[p.Topic]
	if !ok {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("unknown topic %q (want blocks, superblocks, or status)", p.Topic)}
	}

	subID, err := s.subs.Subscribe(connID, topic)
	if err != nil {
		return nil, &Error{Code: CodeInvalidRequest, Message: err.Error()}
	}
	return map[string]string{"subscription": subID}, nil
}

type unsubscribeParams struct {
	SubscriptionID string `json:"subscription"`
}

func handleUnsubscribe(s *Server, connID string, params json.RawMessage) (any, *Error) {
	var p unsubscribeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "expected {subscription}", Data: err.Error()}
	}
	if !s.subs.Unsubscribe(connID, p.SubscriptionID) {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("no subscription %q on this connection", p.SubscriptionID)}
	}
	return map[string]bool{"ok": true}, nil
}

func parseHash(s string) (types.Hash, error) {
	var h types.Hash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("expected %d bytes, got %d", len(h), len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

func parseOutputPointer(s string) (types.OutputPointer, error) {
	sep := strings.LastIndex(s, ":")
	if sep < 0 {
		return types.OutputPointer{}, fmt.Errorf("expected <hash>:<index>, got %q", s)
	}
	hash, err := parseHash(s[:sep])
	if err != nil {
		return types.OutputPointer{}, err
	}
	var index uint32
	if _, err := fmt.Sscanf(s[sep+1:], "%d", &index); err != nil {
		return types.OutputPointer{}, fmt.Errorf("malformed output index %q", s[sep+1:])
	}
	return types.OutputPointer{TxHash: hash, OutputIndex: index}, nil
}
