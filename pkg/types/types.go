// Package types defines the core data model shared across witnode's
// mailbox components: hashes, addresses, transactions, blocks, the UTXO
// set, the mempool, data-request state, peer/session records, and RADON
// values.
package types

import (
	"encoding/hex"
	"fmt"
	"time"
)

// Hash is a 32-byte digest identifying a block or transaction.
type Hash [32]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

// PublicKeyHash is a 20-byte Bitcoin-style address (SHA-256 then
// RIPEMD-160 of a compressed secp256k1 public key).
type PublicKeyHash [20]byte

func (p PublicKeyHash) String() string {
	return hex.EncodeToString(p[:])
}

// MarshalText renders p as hex, which also lets PublicKeyHash serve as
// a JSON object key (DataRequestState's Commits and Reveals maps).
func (p PublicKeyHash) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses the hex form MarshalText produces.
func (p *PublicKeyHash) UnmarshalText(text []byte) error {
	if hex.DecodedLen(len(text)) != len(p) {
		return fmt.Errorf("public key hash: expected %d hex bytes, got %d", len(p), hex.DecodedLen(len(text)))
	}
	_, err := hex.Decode(p[:], text)
	return err
}

// CheckpointBeacon pins a chain tip to the epoch in which it was
// produced, used as the previous-beacon reference inside block headers
// and as the epoch-boundary anchor for tip selection.
type CheckpointBeacon struct {
	Epoch         uint32
	HashPrevBlock Hash
}

// OutputPointer references a single output of a previous transaction.
type OutputPointer struct {
	TxHash      Hash
	OutputIndex uint32
}

func (o OutputPointer) String() string {
	return fmt.Sprintf("%s:%d", o.TxHash, o.OutputIndex)
}

// TransactionKind tags the variant carried by a Transaction.
type TransactionKind string

const (
	TxValueTransfer TransactionKind = "value_transfer"
	TxDataRequest   TransactionKind = "data_request"
	TxCommit        TransactionKind = "commit"
	TxReveal        TransactionKind = "reveal"
	TxTally         TransactionKind = "tally"
	TxMint          TransactionKind = "mint"
)

// ValueTransferInput spends one prior output, authorized by a detached
// signature over the transaction body.
type ValueTransferInput struct {
	OutputPointer OutputPointer
	Signature     []byte
	PublicKey     []byte
}

// ValueTransferOutput pays a fixed value to a public key hash.
type ValueTransferOutput struct {
	PKH   PublicKeyHash
	Value uint64
}

// Fee splits a data request's reward budget between the witnesses who
// report truthfully and the block producers who include the
// commit/reveal/tally transactions that service the request.
type Fee struct {
	CommitAndRevealFee uint64
	WitnessReward      uint64
}

// DataRequestOutput is the body of a data request transaction: the
// RADON retrieval/aggregation/tally scripts plus its economic terms.
type DataRequestOutput struct {
	DataRequest      []byte // serialized RADON retrieve-aggregate-tally script
	Witnesses        uint16
	MinConsensusPct  uint8
	Collateral       uint64
	Fee              Fee
	CommitRounds     uint8
}

// CommitTransactionBody carries a witness's sealed reveal commitment.
type CommitTransactionBody struct {
	DataRequestID Hash
	Commitment    Hash // hash of (reveal value || nonce)
	PublicKey     []byte
	Signature     []byte
}

// RevealTransactionBody discloses the RADON value a witness committed to.
type RevealTransactionBody struct {
	DataRequestID Hash
	Reveal        RadonValue
	Nonce         []byte
	PublicKey     []byte
	Signature     []byte
}

// TallyTransactionBody records the aggregated consensus result of a
// data request, including which witnesses lied.
type TallyTransactionBody struct {
	DataRequestID  Hash
	ConsensusValue RadonValue
	LiarFlags      []bool
	Outputs        []ValueTransferOutput
}

// MintTransactionBody is the block-producer reward, one per block.
type MintTransactionBody struct {
	Epoch   uint32
	Outputs []ValueTransferOutput
}

// Transaction is a tagged sum over the six transaction kinds. Exactly
// one body field is populated, selected by Kind.
type Transaction struct {
	Kind TransactionKind

	Inputs  []ValueTransferInput
	Outputs []ValueTransferOutput

	DataRequest *DataRequestOutput
	Commit      *CommitTransactionBody
	Reveal      *RevealTransactionBody
	Tally       *TallyTransactionBody
	Mint        *MintTransactionBody
}

// HashWith computes the transaction's identifying hash. Callers supply the
// hashing function (pkg/crypto) rather than this package importing it,
// keeping pkg/types free of algorithm dependencies.
func (t Transaction) HashWith(hashFn func([]byte) Hash, encode func(Transaction) []byte) Hash {
	return hashFn(encode(t))
}

// BlockHeader is the fixed-size portion of a block, the part miners
// vary while searching for an eligible proof.
type BlockHeader struct {
	Beacon         CheckpointBeacon
	MerkleRoot     Hash
	BlockSignature []byte
	BlockPublicKey []byte
}

// Block is a full block: header plus the ordered transaction list
// (BuildCandidate puts the mint first and the mempool selection after
// it, in selection order; transactions are not grouped by kind).
type Block struct {
	Header BlockHeader
	Txns   []Transaction
}

func (b Block) Epoch() uint32 {
	return b.Header.Beacon.Epoch
}

// UTXO is a single unspent output tracked by the chain manager's UTXO set.
type UTXO struct {
	Pointer OutputPointer
	Output  ValueTransferOutput
}

// UTXOSet is the full collection of unspent outputs, keyed by pointer.
type UTXOSet struct {
	entries map[OutputPointer]ValueTransferOutput
}

func NewUTXOSet() *UTXOSet {
	return &UTXOSet{entries: make(map[OutputPointer]ValueTransferOutput)}
}

func (s *UTXOSet) Insert(p OutputPointer, o ValueTransferOutput) {
	s.entries[p] = o
}

func (s *UTXOSet) Remove(p OutputPointer) {
	delete(s.entries, p)
}

func (s *UTXOSet) Get(p OutputPointer) (ValueTransferOutput, bool) {
	o, ok := s.entries[p]
	return o, ok
}

func (s *UTXOSet) Len() int {
	return len(s.entries)
}

// MempoolEntry wraps a pending transaction with the weight-priority
// metadata the chain manager uses to order candidate blocks.
type MempoolEntry struct {
	Txn      Transaction
	Weight   uint32
	Fee      uint64
	Priority float64 // Fee / Weight, higher is better
}

// Mempool is the weight-bounded set of transactions awaiting inclusion.
type Mempool struct {
	entries map[Hash]MempoolEntry
	MaxSize int
}

func NewMempool(maxSize int) *Mempool {
	return &Mempool{entries: make(map[Hash]MempoolEntry), MaxSize: maxSize}
}

func (m *Mempool) Insert(h Hash, e MempoolEntry) {
	m.entries[h] = e
}

func (m *Mempool) Remove(h Hash) {
	delete(m.entries, h)
}

func (m *Mempool) Get(h Hash) (MempoolEntry, bool) {
	e, ok := m.entries[h]
	return e, ok
}

func (m *Mempool) Len() int {
	return len(m.entries)
}

func (m *Mempool) TotalWeight() uint32 {
	var total uint32
	for _, e := range m.entries {
		total += e.Weight
	}
	return total
}

// All returns every pending entry, unordered; callers sort by Priority.
func (m *Mempool) All() []MempoolEntry {
	out := make([]MempoolEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out
}

// DataRequestStage is the lifecycle stage of a data request.
type DataRequestStage string

const (
	DRStageNew      DataRequestStage = "new"
	DRStagePending  DataRequestStage = "pending"
	DRStageFinished DataRequestStage = "finished"
)

// DataRequestFinishReason records why a request left the Pending stage.
type DataRequestFinishReason string

const (
	DRFinishTallied   DataRequestFinishReason = "tallied"
	DRFinishNoReveals DataRequestFinishReason = "no_reveals"
)

// DataRequestState tracks a single data request through its commit,
// reveal, and tally rounds.
type DataRequestState struct {
	ID           Hash
	Output       DataRequestOutput
	Stage        DataRequestStage
	Epoch        uint32 // epoch the request entered Pending
	Commits      map[PublicKeyHash]CommitTransactionBody
	Reveals      map[PublicKeyHash]RevealTransactionBody
	FinishReason DataRequestFinishReason
	Tally        *TallyTransactionBody
}

// PeerEntry is a single address-book record tracked by the peer manager.
type PeerEntry struct {
	Address    string
	Services   uint64
	LastSeen   time.Time
	LastTried  time.Time
	Attempts   int
	Tried      bool
	Bucket     int
	BucketSlot int
}

// SessionStatus is the handshake state of a connected peer.
type SessionStatus string

const (
	SessionUnconsolidated SessionStatus = "unconsolidated"
	SessionWaitingVerack  SessionStatus = "waiting_verack"
	SessionConsolidated   SessionStatus = "consolidated"
)

// SessionDirection distinguishes inbound from outbound sessions.
type SessionDirection string

const (
	SessionInbound  SessionDirection = "inbound"
	SessionOutbound SessionDirection = "outbound"
)

// Session is the live state of one peer connection.
type Session struct {
	ID          string
	Address     string
	Direction   SessionDirection
	Status      SessionStatus
	HandshakeAt time.Time
	LastMsgAt   time.Time
}

// RadonValueKind tags the variant carried by a RadonValue.
type RadonValueKind string

const (
	RadonArray   RadonValueKind = "array"
	RadonMap     RadonValueKind = "map"
	RadonString  RadonValueKind = "string"
	RadonFloat   RadonValueKind = "float"
	RadonInteger RadonValueKind = "integer"
	RadonBytes   RadonValueKind = "bytes"
	RadonBoolean RadonValueKind = "boolean"
	RadonError   RadonValueKind = "error"
)

// RadonValue is RADON's tagged-sum runtime value. Exactly one field
// matching Kind is populated, except RadonErrorValue, which is carried
// separately since a RadonError is never itself a Go error (RADON
// scripts are total: every failure becomes a value, not a panic or an
// early return).
type RadonValue struct {
	Kind RadonValueKind

	Array   []RadonValue
	Map     map[string]RadonValue
	String  string
	Float   float64
	Integer int64
	Bytes   []byte
	Boolean bool

	Error *RadonErrorValue
}

// RadonErrorKind enumerates the closed RADON error code table.
type RadonErrorKind uint8

const (
	RadonErrUnknown                RadonErrorKind = 0x00
	RadonErrSourceScriptNotCBOR    RadonErrorKind = 0x01
	RadonErrSourceScriptNotArray   RadonErrorKind = 0x02
	RadonErrSourceScriptNotRADON   RadonErrorKind = 0x03
	RadonErrRequestTooManySources  RadonErrorKind = 0x10
	RadonErrScriptTooManyCalls     RadonErrorKind = 0x11
	RadonErrUnsupportedOperator    RadonErrorKind = 0x20
	RadonErrWrongArguments         RadonErrorKind = 0x21
	RadonErrHTTPError              RadonErrorKind = 0x30
	RadonErrRetrieveTimeout        RadonErrorKind = 0x31
	RadonErrUnderflow              RadonErrorKind = 0x40
	RadonErrOverflow               RadonErrorKind = 0x41
	RadonErrDivisionByZero         RadonErrorKind = 0x42
	RadonErrNoReveals              RadonErrorKind = 0x50
	RadonErrModeTie                RadonErrorKind = 0x60
	RadonErrModeEmpty              RadonErrorKind = 0x61
)

// RadonErrorValue is RADON's typed error payload. Its CBOR encoding is
// tag(39)[kind_code, args...], never a bare Go error.
type RadonErrorValue struct {
	Kind RadonErrorKind
	Args []RadonValue
}

// RadonStage identifies which RADON pipeline stage produced a report.
type RadonStage string

const (
	RadonStageContextless RadonStage = "contextless"
	RadonStageRetrieval   RadonStage = "retrieval"
	RadonStageAggregation RadonStage = "aggregation"
	RadonStageTally       RadonStage = "tally"
)

// RadonReport is the outcome of running a RADON script, tagged with
// the stage that produced it and, for Tally, the liar-flag vector and
// the consensus proportion actually achieved.
type RadonReport struct {
	Stage             RadonStage
	Result            RadonValue
	LiarFlags         []bool
	ConsensusPct      float64
}
