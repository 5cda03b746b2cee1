package dispatch

import "sync"

// AppQueue is the third, application-facing queue (Spec Section 4.5): a
// single consumer goroutine drains it and invokes the embedder's callback,
// so the channel/session consumers that post events never block on
// application code ("the application consumer is owned by the embedder").
type AppQueue struct {
	q        *Queue
	callback func(Event)
	wg       sync.WaitGroup
}

// NewAppQueue starts an AppQueue backed by its own consumer goroutine that
// invokes callback for every posted Event, in order, one at a time. A nil
// callback is valid (events are drained and discarded) and matches this
// core's "no silently-installed default sink" rule for every other
// optional collaborator.
func NewAppQueue(callback func(Event)) *AppQueue {
	aq := &AppQueue{q: NewQueue(), callback: callback}
	aq.wg.Add(1)
	go aq.run()
	return aq
}

func (aq *AppQueue) run() {
	defer aq.wg.Done()
	for {
		e, ok := aq.q.Pop()
		if !ok {
			return
		}
		if aq.callback != nil {
			aq.callback(e)
		}
	}
}

// Post enqueues e for delivery to the callback. The error from the
// underlying Queue is intentionally discarded: by the time Close has run
// there is no longer anyone who can act on a failed post, and every
// caller in this core posts from a consumer goroutine that is itself
// about to unwind.
func (aq *AppQueue) Post(e Event) { _ = aq.q.Push(e) }

// Close stops accepting new events and waits for the consumer goroutine
// to drain whatever was already queued and return.
func (aq *AppQueue) Close() {
	aq.q.Close()
	aq.wg.Wait()
}
