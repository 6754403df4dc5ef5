package worker

import (
	"sync"

	"github.com/jmehdipour/notify-gateway/internal/kafka"
)

// offsetTracker releases offsets for commit only once every earlier message
// fetched from the same partition has been handled. Releases per partition are
// strictly increasing; the consumer's interval commits keep the highest one.
type offsetTracker struct {
	mu        sync.Mutex
	inflight  map[int][]*tracked
	committed map[int]int64 // partition -> highest offset released
}

type tracked struct {
	msg  kafka.Message
	done bool
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{
		inflight:  make(map[int][]*tracked),
		committed: make(map[int]int64),
	}
}

// track must be called in fetch order.
func (t *offsetTracker) track(m kafka.Message) *tracked {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr := &tracked{msg: m}
	t.inflight[m.Partition] = append(t.inflight[m.Partition], tr)
	return tr
}

// finish marks tr handled and returns the newest message whose partition
// prefix is now fully handled, if any.
func (t *offsetTracker) finish(tr *tracked) (kafka.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr.done = true

	p := tr.msg.Partition
	q := t.inflight[p]
	n := 0
	for n < len(q) && q[n].done {
		n++
	}
	if n == 0 {
		return kafka.Message{}, false
	}
	last := q[n-1].msg
	t.inflight[p] = q[n:]

	if prev, ok := t.committed[p]; ok && prev >= last.Offset {
		return kafka.Message{}, false
	}
	t.committed[p] = last.Offset
	return last, true
}
