package gobounce

import (
	"time"

	"github.com/gammazero/deque"
)

// InvocationRecord describes a past invocation.
type InvocationRecord struct {
	At   time.Time
	Edge Edge
}

// invocationHistory keeps the most recent invocations,
// newest at the front of the queue.
// A nil history records nothing.
type invocationHistory struct {
	queue *deque.Deque
	size  int
}

func newInvocationHistory(size int) *invocationHistory {
	return &invocationHistory{
		queue: deque.New(size, size),
		size:  size,
	}
}

func (h *invocationHistory) push(record InvocationRecord) {
	if h == nil {
		return
	}
	h.queue.PushFront(record)
	for h.queue.Len() > h.size {
		h.queue.PopBack()
	}
}

func (h *invocationHistory) records() []InvocationRecord {
	if h == nil || h.queue.Len() == 0 {
		return nil
	}
	out := make([]InvocationRecord, 0, h.queue.Len())
	for i := 0; i < h.queue.Len(); i++ {
		out = append(out, h.queue.At(i).(InvocationRecord))
	}
	return out
}
