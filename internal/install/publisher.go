package install

import "sync"

// ProgressChannel is the event name snapshots are published under.
const ProgressChannel = "install-progress"

// Publisher receives snapshots. Publish must not block: it is called from
// the worker goroutine and from Cancel/Pause/Resume callers, in order, with
// the manager's emit lock held. Wrap writers that can stall in a
// QueuedPublisher.
type Publisher interface {
	Publish(snapshot Snapshot)
}

type PublisherFunc func(snapshot Snapshot)

func (f PublisherFunc) Publish(snapshot Snapshot) {
	f(snapshot)
}

type MultiPublisher struct {
	publishers []Publisher
}

func NewMultiPublisher(publishers ...Publisher) *MultiPublisher {
	return &MultiPublisher{publishers: publishers}
}

func (m *MultiPublisher) Publish(snapshot Snapshot) {
	for _, publisher := range m.publishers {
		if publisher != nil {
			publisher.Publish(snapshot)
		}
	}
}

// QueuedPublisher hands snapshots to a slower publisher, such as a
// terminal writer, from its own goroutine so Publish never blocks. Order is
// kept. A queued progress update is replaced by a newer one with the same
// state and message, so every state change is still delivered.
type QueuedPublisher struct {
	next Publisher

	mu     sync.Mutex
	wake   *sync.Cond
	queue  []Snapshot
	closed bool
	done   chan struct{}
}

func NewQueuedPublisher(next Publisher) *QueuedPublisher {
	q := &QueuedPublisher{next: next, done: make(chan struct{})}
	q.wake = sync.NewCond(&q.mu)
	go q.run()
	return q
}

func (q *QueuedPublisher) Publish(snapshot Snapshot) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if n := len(q.queue); n > 0 && coalesces(q.queue[n-1], snapshot) {
		q.queue[n-1] = snapshot
		return
	}
	q.queue = append(q.queue, snapshot)
	q.wake.Signal()
}

// Close delivers everything already queued and stops the goroutine.
// Snapshots published afterwards are dropped.
func (q *QueuedPublisher) Close() {
	q.mu.Lock()
	q.closed = true
	q.wake.Broadcast()
	q.mu.Unlock()
	<-q.done
}

func (q *QueuedPublisher) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.queue) == 0 && !q.closed {
			q.wake.Wait()
		}
		if len(q.queue) == 0 {
			q.mu.Unlock()
			return
		}
		snapshot := q.queue[0]
		q.queue = q.queue[1:]
		q.mu.Unlock()
		q.next.Publish(snapshot)
	}
}

func coalesces(queued, next Snapshot) bool {
	return !queued.State.Terminal() && queued.State == next.State && queued.Message == next.Message
}

type nopPublisher struct{}

func (nopPublisher) Publish(Snapshot) {}

// Envelope is the wire form of a published snapshot.
type Envelope struct {
	Channel string   `json:"channel"`
	Payload Snapshot `json:"payload"`
}
