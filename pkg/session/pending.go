package session

import (
	"sync"
	"time"
)

// PendingRequest tracks one outstanding request awaiting its response,
// correlated by requestHandle (Spec Section 4.4.2). Grounded on the
// teacher's exchange.ExchangeContext correlation fields, generalized
// from exchange-id-keyed MRP state to requestHandle-keyed
// request/response waiting (OPC UA TCP has no retransmission, so this
// table carries none of ExchangeContext's pending-ack/retransmit state).
type PendingRequest struct {
	RequestHandle uint32
	Deadline      time.Time
	Done          chan PendingResult
}

// PendingResult is delivered to a PendingRequest's Done channel exactly
// once, either with a response payload or with an error (for example a
// timeout or channel loss).
type PendingResult struct {
	Payload []byte
	Err     error
}

// PendingTable correlates outgoing requestHandles with their eventual
// response, and is swept periodically for requests whose TimeoutHint
// has elapsed (Spec Section 4.4.3's timer-wheel scan).
type PendingTable struct {
	mu      sync.Mutex
	pending map[uint32]*PendingRequest
	maxSize int
}

// DefaultMaxPending bounds how many in-flight requests one session
// tracks concurrently.
const DefaultMaxPending = 256

// NewPendingTable creates a PendingTable. maxSize <= 0 uses
// DefaultMaxPending.
func NewPendingTable(maxSize int) *PendingTable {
	if maxSize <= 0 {
		maxSize = DefaultMaxPending
	}
	return &PendingTable{pending: make(map[uint32]*PendingRequest), maxSize: maxSize}
}

// Register adds a new pending request, returning its Done channel to
// block on. Returns ErrPendingTableFull if the table is at capacity.
func (t *PendingTable) Register(requestHandle uint32, deadline time.Time) (*PendingRequest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) >= t.maxSize {
		return nil, ErrPendingTableFull
	}
	p := &PendingRequest{RequestHandle: requestHandle, Deadline: deadline, Done: make(chan PendingResult, 1)}
	t.pending[requestHandle] = p
	return p, nil
}

// Complete delivers result to the pending request registered under
// requestHandle and removes it from the table. Returns
// ErrUnknownRequestHandle if no such request is pending (a late or
// duplicate response, which callers should log and discard rather than
// treat as fatal).
func (t *PendingTable) Complete(requestHandle uint32, result PendingResult) error {
	t.mu.Lock()
	p, ok := t.pending[requestHandle]
	if ok {
		delete(t.pending, requestHandle)
	}
	t.mu.Unlock()
	if !ok {
		return ErrUnknownRequestHandle
	}
	p.Done <- result
	return nil
}

// ScanTimeouts completes, with a timeout error, every pending request
// whose deadline is at or before now. pkg/opcua's Client calls it from its
// receive loop on each read-deadline wake-up, and with a far-future now
// to fail every pending request when its channel is lost.
func (t *PendingTable) ScanTimeouts(now time.Time, timeoutErr error) {
	t.mu.Lock()
	var expired []*PendingRequest
	for handle, p := range t.pending {
		if !p.Deadline.IsZero() && !now.Before(p.Deadline) {
			expired = append(expired, p)
			delete(t.pending, handle)
		}
	}
	t.mu.Unlock()
	for _, p := range expired {
		p.Done <- PendingResult{Err: timeoutErr}
	}
}

// Cancel drops a pending request without delivering a result (used when
// the caller abandons the wait itself, e.g. its own context was
// cancelled).
func (t *PendingTable) Cancel(requestHandle uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, requestHandle)
}

// Len returns the number of in-flight requests.
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
