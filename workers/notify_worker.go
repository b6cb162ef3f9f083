// workers/notify_worker.go
package workers

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"reading-club-system/services"
)

var ErrQueueFull = errors.New("notification queue full")

type delivery struct {
	to   services.Recipient
	text string
	opts services.NotifyOptions
}

// NotifyQueue is an asynchronous services.Notifier: Notify only enqueues and
// Run delivers in order through the wrapped notifier. When the buffer is full
// the message is dropped.
type NotifyQueue struct {
	next    services.Notifier
	jobs    chan delivery
	timeout time.Duration

	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

func NewNotifyQueue(next services.Notifier, size int) *NotifyQueue {
	if size <= 0 {
		size = 256
	}
	return &NotifyQueue{next: next, jobs: make(chan delivery, size), timeout: 15 * time.Second}
}

func (q *NotifyQueue) Notify(_ context.Context, to services.Recipient, text string, opts services.NotifyOptions) (services.Receipt, error) {
	select {
	case q.jobs <- delivery{to: to, text: text, opts: opts}:
		return services.Receipt{}, nil
	default:
		q.dropped.Add(1)
		log.Printf("[Notify] ⚠️ queue full, dropping message to %s", to)
		return services.Receipt{}, ErrQueueFull
	}
}

// Run delivers queued messages until ctx is done, then drains what is left.
func (q *NotifyQueue) Run(ctx context.Context) {
	for {
		select {
		case d := <-q.jobs:
			q.deliver(ctx, d)
		case <-ctx.Done():
			q.drain()
			log.Println("⏹️ Notification worker stopped")
			return
		}
	}
}

func (q *NotifyQueue) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	for {
		select {
		case d := <-q.jobs:
			q.deliver(ctx, d)
		default:
			return
		}
	}
}

func (q *NotifyQueue) deliver(ctx context.Context, d delivery) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	if _, err := q.next.Notify(ctx, d.to, d.text, d.opts); err != nil {
		q.failed.Add(1)
		log.Printf("[Notify] ❌ delivery to %s failed: %v", d.to, err)
		return
	}
	q.sent.Add(1)
}

// Stats reports sent, failed and dropped counts.
func (q *NotifyQueue) Stats() (sent, failed, dropped int64) {
	return q.sent.Load(), q.failed.Load(), q.dropped.Load()
}

func (q *NotifyQueue) Pending() int { return len(q.jobs) }
