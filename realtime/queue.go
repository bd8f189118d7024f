package realtime

import (
	"sync"

	"github.com/wisersense-io/mate-service/model"
)

// queue 无界先进先出队列, push 不阻塞, 由单独的协程按顺序投递到 out
type queue struct {
	mu     sync.Mutex
	items  []model.ChannelMessage
	closed bool
	signal chan struct{}
	done   chan struct{}
	out    chan model.ChannelMessage
}

func newQueue() *queue {
	q := &queue{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan model.ChannelMessage),
	}
	go q.pump()
	return q
}

func (q *queue) push(m model.ChannelMessage) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, m)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *queue) pump() {
	defer close(q.out)
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			select {
			case <-q.signal:
				continue
			case <-q.done:
				return
			}
		}
		m := q.items[0]
		q.items[0] = model.ChannelMessage{}
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- m:
		case <-q.done:
			return
		}
	}
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	close(q.done)
}
