package dispatch

import (
	"testing"
	"time"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := NewQueue()
	q.Push(Event{Kind: KindChannelConnected, ChannelID: 1})
	q.Push(Event{Kind: KindChannelConnected, ChannelID: 2})
	q.Push(Event{Kind: KindChannelConnected, ChannelID: 3})

	for _, want := range []uint32{1, 2, 3} {
		e, ok := q.Pop()
		if !ok || e.ChannelID != want {
			t.Fatalf("got %+v ok=%v, want ChannelID=%d", e, ok, want)
		}
	}
}

func TestPushAsNextJumpsTheLine(t *testing.T) {
	q := NewQueue()
	q.Push(Event{Kind: KindChannelConnected, ChannelID: 1})
	q.PushAsNext(Event{Kind: KindChannelRenewDue, ChannelID: 99})

	e, ok := q.Pop()
	if !ok || e.Kind != KindChannelRenewDue {
		t.Fatalf("got %+v, want the as-next event first", e)
	}
	e, ok = q.Pop()
	if !ok || e.ChannelID != 1 {
		t.Fatalf("got %+v, want the original normal event second", e)
	}
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := NewQueue()
	done := make(chan Event, 1)
	go func() {
		e, _ := q.Pop()
		done <- e
	}()

	select {
	case <-done:
		t.Fatalf("Pop returned before any event was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push(Event{Kind: KindActivatedSession, SessionID: 42})
	select {
	case e := <-done:
		if e.SessionID != 42 {
			t.Fatalf("got SessionID=%d, want 42", e.SessionID)
		}
	case <-time.After(time.Second):
		t.Fatalf("Pop never unblocked after Push")
	}
}

func TestCloseDrainsThenReturnsNotOK(t *testing.T) {
	q := NewQueue()
	q.Push(Event{Kind: KindChannelLost})
	q.Close()

	if _, ok := q.Pop(); !ok {
		t.Fatalf("expected the already-queued event to drain before shutdown")
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("expected ok=false once the queue is closed and drained")
	}
	if err := q.Push(Event{}); err != ErrQueueClosed {
		t.Fatalf("got %v, want ErrQueueClosed", err)
	}
}

func TestAppQueueDeliversInOrder(t *testing.T) {
	var got []uint32
	done := make(chan struct{})
	aq := NewAppQueue(func(e Event) {
		got = append(got, e.SessionID)
		if len(got) == 3 {
			close(done)
		}
	})
	aq.Post(Event{SessionID: 1})
	aq.Post(Event{SessionID: 2})
	aq.Post(Event{SessionID: 3})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("app callback never observed all three events")
	}
	aq.Close()

	for i, want := range []uint32{1, 2, 3} {
		if got[i] != want {
			t.Fatalf("got %v, want [1 2 3]", got)
		}
	}
}
