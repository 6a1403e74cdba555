// Package drpool implements the data-request pool: the New → Pending →
// Finished lifecycle every posted DataRequestOutput moves through as
// commits and reveals arrive, mirroring the way the scheduler package
// drives a service's container count toward its desired state one
// reconciliation pass at a time.
package drpool

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/witmesh/witnode/pkg/radon"
)

// RADRequest is the decoded form of a DataRequestOutput's opaque
// DataRequest bytes: the per-witness retrieval sources plus the
// reducers used to fold their results into an aggregate and, later,
// the tally consensus value.
type RADRequest struct {
	Retrieve          []radon.RADRetrieve
	AggregateReducer  string
	TallyFilter       string
	TallyReducer      string
}

// EncodeRADRequest serializes a RADRequest into the bytes a
// DataRequestOutput carries on the wire.
func EncodeRADRequest(r RADRequest) ([]byte, error) {
	b, err := cbor.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode rad request: %w", err)
	}
	return b, nil
}

// DecodeRADRequest parses a DataRequestOutput's DataRequest bytes back
// into a RADRequest.
func DecodeRADRequest(data []byte) (RADRequest, error) {
	var r RADRequest
	if err := cbor.Unmarshal(data, &r); err != nil {
		return RADRequest{}, fmt.Errorf("decode rad request: %w", err)
	}
	return r, nil
}
