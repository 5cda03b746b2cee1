// Package dispatch implements the L5 asynchronous event dispatcher (Spec
// Section 4.5, 5): Queue is the single-consumer blocking FIFO primitive
// Spec Section 4.5 specifies, including its documented PushAsNext escape
// hatch for a component re-signaling itself ahead of the normal order.
// AppQueue is the one instance of it actually on a production path in
// this core: every cross-layer signal ends up delivered to the embedder
// through it. pkg/opcua's Client and Server fold the two protocol-side
// consumer threads Spec Section 4.5 describes (channel/transport events,
// session/service events) into their own single receive-loop goroutines
// rather than routing them through a second and third Queue — so Queue's
// PushAsNext path and a dedicated channel-queue/session-queue pair are
// exercised directly by dispatch_test.go as the reusable primitive they
// are, not by any current protocol consumer. A future multi-channel
// server-side consumer that needs the as-next ordering guarantee (e.g. a
// channel's renew-due self-signal jumping its own queue) has somewhere to
// plug in without changing this package.
//
// Grounded on the teacher's closeCh+sync.WaitGroup shutdown idiom (seen in
// transport.TCP.acceptLoop and uatcp.Listener.acceptLoop), generalized
// from "stop one accept loop" to "drain and stop a blocking FIFO with a
// documented as-next escape hatch" since Matter's transport has no
// equivalent of this core's queue-based dispatch model.
package dispatch

import (
	"container/list"
	"errors"
	"sync"

	"github.com/uasc/opcua-sc/pkg/ua"
)

// ErrQueueClosed is returned by Push/PushAsNext once Close has been
// called; callers must stop posting once they observe it.
var ErrQueueClosed = errors.New("dispatch: queue is closed")

// Kind enumerates every event this core posts between layers or up to the
// application, spanning both the internal channel-queue events (Spec
// Section 4.3's state-machine transitions) and the application-facing
// surface enumerated in Spec Section 6.3.
type Kind int

const (
	// Channel-queue events (transport/secure-channel layer, L1-L3).
	KindChannelConnected Kind = iota
	KindChannelRenewed
	KindChannelLost
	KindChannelMessage // a decoded MSG payload ready for session-layer routing
	KindChannelRenewDue

	// Session-queue / application-facing events (Spec Section 6.3).
	KindSessionActivationFailure
	KindActivatedSession
	KindSessionReactivating
	KindRcvSessionResponse
	KindClosedSession
	KindRcvDiscoveryResponse
	KindSndRequestFailed
	KindClosedEndpoint
	KindLocalServiceResponse
	KindAddressSpaceWrite
)

func (k Kind) String() string {
	switch k {
	case KindChannelConnected:
		return "ChannelConnected"
	case KindChannelRenewed:
		return "ChannelRenewed"
	case KindChannelLost:
		return "ChannelLost"
	case KindChannelMessage:
		return "ChannelMessage"
	case KindChannelRenewDue:
		return "ChannelRenewDue"
	case KindSessionActivationFailure:
		return "SessionActivationFailure"
	case KindActivatedSession:
		return "ActivatedSession"
	case KindSessionReactivating:
		return "SessionReactivating"
	case KindRcvSessionResponse:
		return "RcvSessionResponse"
	case KindClosedSession:
		return "ClosedSession"
	case KindRcvDiscoveryResponse:
		return "RcvDiscoveryResponse"
	case KindSndRequestFailed:
		return "SndRequestFailed"
	case KindClosedEndpoint:
		return "ClosedEndpoint"
	case KindLocalServiceResponse:
		return "LocalServiceResponse"
	case KindAddressSpaceWrite:
		return "AddressSpaceWrite"
	default:
		return "Unknown"
	}
}

// Event is the single shape carried by every queue in this package, per
// Spec Section 4.5: "(kind, id, params, auxParam)". ChannelID/SessionID
// play the role of "id"; Payload/StatusCode/Err/AppContext together play
// the role of "params, auxParam".
type Event struct {
	Kind       Kind
	ChannelID  uint32
	SessionID  uint32
	RequestID  uint32
	StatusCode ua.StatusCode
	Payload    any
	Err        error
	AppContext any
}

// Queue is a single-consumer, multi-producer blocking FIFO. Enqueue is
// lock-protected and safe from any goroutine; Pop blocks the one consumer
// until an event is available or the queue is closed (Spec Section 4.5:
// "blocking dequeue is mandatory; spin-polling is forbidden").
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  *list.List
	closed bool
}

// NewQueue creates an empty, open Queue.
func NewQueue() *Queue {
	q := &Queue{items: list.New()}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends e to the back of the queue in normal FIFO order.
func (q *Queue) Push(e Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.items.PushBack(e)
	q.cond.Signal()
	return nil
}

// PushAsNext inserts e ahead of every normally-queued event, for the
// narrow set of events where a component re-signals itself (Spec Section
// 4.5: "a documented ordering violation used only when strictly
// necessary"). Two PushAsNext calls do not keep their relative order:
// each goes to the front, so the second call's event ends up ahead of the
// first's. No production code in this module calls PushAsNext; only
// dispatch_test.go exercises it.
func (q *Queue) PushAsNext(e Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.items.PushFront(e)
	q.cond.Signal()
	return nil
}

// Pop blocks until an event is available or the queue is closed. ok is
// false exactly when the queue was closed and fully drained; once Pop
// returns ok=false it will keep doing so.
func (q *Queue) Pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.items.Len() == 0 {
		return Event{}, false
	}
	front := q.items.Front()
	q.items.Remove(front)
	return front.Value.(Event), true
}

// Len reports the number of events currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Close signals shutdown: every blocked or future Pop drains whatever is
// queued, then returns ok=false forever after. This is this package's
// rendering of Spec Section 4.5's "shutdown is signaled by enqueuing a
// sentinel whose identity is the queue's own stop flag address" — here
// the sentinel is the closed flag itself rather than a distinguished
// Event value, since a blocking condvar already lets every waiter observe
// the transition without needing to recognize a special payload.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
