// Package signalqueue implements the PrioritySignalQueue (C5): a bounded
// max-heap of QueuedSignals with a short-window dedup guard and a periodic
// expiry sweep. The bucket/flush cadence is grounded on
// signal_aggregator.go's flushLoop ticker; the dedup-key bucketing is
// grounded on the same file's symbolBuckets map.
package signalqueue

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentineltrade/futuresbot/internal/domain"
	"github.com/sentineltrade/futuresbot/internal/events"
)

// Config controls capacity, TTL, and the dedup window.
type Config struct {
	MaxDepth    int
	DefaultTTL  time.Duration
	DedupWindow time.Duration
	SweepPeriod time.Duration
	MaxAttempts int
}

func DefaultConfig() Config {
	return Config{
		MaxDepth:    100,
		DefaultTTL:  3 * time.Minute,
		DedupWindow: 60 * time.Second,
		SweepPeriod: 5 * time.Second,
		MaxAttempts: 3,
	}
}

// item is one heap slot.
type item struct {
	signal *domain.QueuedSignal
	index  int
}

// signalHeap is a max-heap ordered by Priority, then FIFO by seq.
type signalHeap []*item

func (h signalHeap) Len() int { return len(h) }
func (h signalHeap) Less(i, j int) bool {
	if h[i].signal.Priority != h[j].signal.Priority {
		return h[i].signal.Priority > h[j].signal.Priority
	}
	return h[i].signal.Seq() < h[j].signal.Seq()
}
func (h signalHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *signalHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *signalHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Queue is the concrete PrioritySignalQueue.
type Queue struct {
	cfg Config
	log zerolog.Logger
	bus *events.Bus

	mu       sync.Mutex
	h        signalHeap
	byID     map[string]*item
	dedup    map[string]time.Time
	nextSeq  uint64

	stopCh chan struct{}
	doneCh chan struct{}
}

func New(cfg Config, bus *events.Bus, log zerolog.Logger) *Queue {
	q := &Queue{
		cfg:    cfg,
		log:    log.With().Str("component", "signalqueue").Logger(),
		bus:    bus,
		byID:   make(map[string]*item),
		dedup:  make(map[string]time.Time),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	heap.Init(&q.h)
	go q.sweepLoop()
	return q
}

func (q *Queue) Stop() {
	close(q.stopCh)
	<-q.doneCh
}

// Enqueue computes a priority score, checks the dedup window, and inserts
// the signal. At capacity it evicts the lowest-priority unprocessed entry
// to make room rather than rejecting the new one. Returns false only if the
// signal is a duplicate of one already admitted within DedupWindow.
func (q *Queue) Enqueue(sig domain.Signal, volumeBoost float64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := dedupKey(sig)
	if last, ok := q.dedup[key]; ok && time.Since(last) < q.cfg.DedupWindow {
		return false
	}

	if len(q.h) >= q.cfg.MaxDepth {
		q.evictLowestPriorityLocked()
	}

	now := time.Now()
	recency := recencyFactor(now.Sub(sig.CreatedAt), q.cfg.DefaultTTL)
	priority := 100 * (0.6*float64(sig.Strength)/100 + 0.3*recency + 0.1*volumeBoost)

	qs := &domain.QueuedSignal{
		Signal:      sig,
		Priority:    priority,
		QueuedAt:    now,
		ExpiresAt:   now.Add(q.cfg.DefaultTTL),
		MaxAttempts: q.cfg.MaxAttempts,
	}
	q.nextSeq++
	qs.SetSeq(q.nextSeq)

	it := &item{signal: qs}
	heap.Push(&q.h, it)
	q.byID[sig.ID] = it
	q.dedup[key] = now

	return true
}

// Dequeue pops the highest-priority non-expired signal, marks it processed,
// and increments its attempt count, or returns false if empty.
func (q *Queue) Dequeue() (*domain.QueuedSignal, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.h.Len() > 0 {
		it := heap.Pop(&q.h).(*item)
		delete(q.byID, it.signal.Signal.ID)
		if time.Now().After(it.signal.ExpiresAt) {
			events.Publish(q.bus, events.SignalExpiredEvent{SignalID: it.signal.Signal.ID})
			continue
		}
		it.signal.Processed = true
		it.signal.Attempts++
		return it.signal, true
	}
	return nil, false
}

// MarkFailed reinserts a signal for retry, or drops it past MaxAttempts.
// Attempts is bumped once per Dequeue, not here; this only decides whether
// the count so far has used up the budget.
func (q *Queue) MarkFailed(qs *domain.QueuedSignal, err error) {
	if qs.Attempts >= qs.MaxAttempts {
		events.Publish(q.bus, events.SignalFailedEvent{SignalID: qs.Signal.ID, Err: err})
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	qs.Processed = false
	q.nextSeq++
	qs.SetSeq(q.nextSeq)
	it := &item{signal: qs}
	heap.Push(&q.h, it)
	q.byID[qs.Signal.ID] = it
}

// MarkCompleted is a no-op hook kept for symmetry with MarkFailed; the
// signal has already left the queue by the time an executor finishes it.
func (q *Queue) MarkCompleted(qs *domain.QueuedSignal) {}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}

func (q *Queue) sweepLoop() {
	defer close(q.doneCh)
	ticker := time.NewTicker(q.cfg.SweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			q.sweep()
		case <-q.stopCh:
			return
		}
	}
}

// sweep removes expired entries in place and prunes the dedup map, without
// disturbing heap order for everything that survives.
func (q *Queue) sweep() {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	survivors := q.h[:0]
	for _, it := range q.h {
		if now.After(it.signal.ExpiresAt) {
			events.Publish(q.bus, events.SignalExpiredEvent{SignalID: it.signal.Signal.ID})
			delete(q.byID, it.signal.Signal.ID)
			continue
		}
		survivors = append(survivors, it)
	}
	q.h = survivors
	heap.Init(&q.h)

	for k, t := range q.dedup {
		if now.Sub(t) > q.cfg.DedupWindow {
			delete(q.dedup, k)
		}
	}
}

// evictLowestPriorityLocked drops the lowest-priority entry (ties broken by
// oldest seq) to free a slot for an incoming signal at capacity. Caller
// must hold q.mu. No-op on an empty heap.
func (q *Queue) evictLowestPriorityLocked() {
	if len(q.h) == 0 {
		return
	}

	worst := 0
	for i := 1; i < len(q.h); i++ {
		wi, ii := q.h[worst].signal, q.h[i].signal
		if ii.Priority < wi.Priority || (ii.Priority == wi.Priority && ii.Seq() < wi.Seq()) {
			worst = i
		}
	}

	evicted := heap.Remove(&q.h, worst).(*item)
	delete(q.byID, evicted.signal.Signal.ID)
	q.log.Debug().Str("signal_id", evicted.signal.Signal.ID).Msg("evicted lowest-priority signal to admit a new one at capacity")
}

func dedupKey(sig domain.Signal) string {
	bucket := sig.Strength / 10
	return fmt.Sprintf("%s:%s:%d", sig.Symbol, sig.Action, bucket)
}

// recencyFactor maps age-within-TTL to a [0,1] freshness score, 1 for a
// brand-new signal decaying linearly to 0 at TTL.
func recencyFactor(age, ttl time.Duration) float64 {
	if ttl <= 0 {
		return 0
	}
	f := 1 - float64(age)/float64(ttl)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
