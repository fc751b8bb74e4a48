package relay

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/sensemesh/sensemesh/wire"
)

const (
	queueIdleTTL    = 5 * time.Minute
	queueGCInterval = time.Minute
)

type pairKey struct {
	sender   string
	receiver string
}

// entry is one completed transformation waiting for its turn. A nil msg
// releases the sequence slot without delivering anything (receiver unknown
// at pipeline start, or suppressed output).
type entry struct {
	connID string
	msg    *wire.ServerMsg
}

// pairQueue keeps deliveries for one (sender, receiver) pair in strictly
// increasing sequence order. Transformations run concurrently; a finished
// result is parked in done until every lower sequence has been released.
type pairQueue struct {
	mu          sync.Mutex
	nextSeq     uint64
	nextDeliver uint64
	done        map[uint64]*entry
	draining    bool
	idleSince   time.Time
}

// complete parks the result and flushes the contiguous ready prefix. Only
// one goroutine drains at a time; a completer that finds another drainer
// active just parks its entry and leaves, the drainer will pick it up.
func (pq *pairQueue) complete(seq uint64, e *entry, deliver func(*entry)) {
	pq.mu.Lock()
	pq.done[seq] = e
	if pq.draining {
		pq.mu.Unlock()
		return
	}
	pq.draining = true
	for {
		next, ok := pq.done[pq.nextDeliver]
		if !ok {
			break
		}
		delete(pq.done, pq.nextDeliver)
		pq.nextDeliver++
		pq.mu.Unlock()
		deliver(next)
		pq.mu.Lock()
	}
	pq.draining = false
	pq.idleSince = time.Now()
	pq.mu.Unlock()
}

func (pq *pairQueue) idle() bool {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return !pq.draining &&
		len(pq.done) == 0 &&
		pq.nextDeliver == pq.nextSeq &&
		time.Since(pq.idleSince) > queueIdleTTL
}

// Queues owns all per-pair ordering queues. Queues are created lazily on
// the first message for a pair and garbage-collected once idle with no
// pending entries.
type Queues struct {
	mu    sync.Mutex
	pairs map[pairKey]*pairQueue
	disp  *Dispatcher
}

func NewQueues(disp *Dispatcher) *Queues {
	return &Queues{
		pairs: make(map[pairKey]*pairQueue),
		disp:  disp,
	}
}

// Enqueue assigns the next sequence number for the pair, creating the
// queue if needed. Must be called synchronously from the gateway's receive
// loop, before any asynchronous work on the message begins: the assignment
// order is the delivery order.
//
// The pair lock is taken before the table lock is released; the janitor
// locks in the same order, so it can never collect a queue between the
// lookup and the sequence bump.
func (q *Queues) Enqueue(senderID, receiverID string) uint64 {
	k := pairKey{sender: senderID, receiver: receiverID}
	q.mu.Lock()
	pq, ok := q.pairs[k]
	if !ok {
		pq = &pairQueue{
			done:      make(map[uint64]*entry),
			idleSince: time.Now(),
		}
		q.pairs[k] = pq
		pairQueuesLive.Set(float64(len(q.pairs)))
	}
	pq.mu.Lock()
	q.mu.Unlock()

	seq := pq.nextSeq
	pq.nextSeq++
	pq.idleSince = time.Now()
	pq.mu.Unlock()
	return seq
}

// Complete releases the sequence slot for a finished transformation and
// delivers every result that is now in order. msg == nil releases without
// delivering.
func (q *Queues) Complete(senderID, receiverID string, seq uint64, connID string, msg *wire.ServerMsg) {
	pq := q.pair(senderID, receiverID)
	if pq == nil {
		// Enqueue always precedes Complete, and a queue with an outstanding
		// slot is never idle, so the janitor cannot have collected it. The
		// queue can only be missing if a caller skipped Enqueue.
		glog.Errorf("relay: complete without enqueue: %s -> %s seq %d", senderID, receiverID, seq)
		return
	}
	pq.complete(seq, &entry{connID: connID, msg: msg}, func(e *entry) {
		if e.msg != nil {
			q.disp.DeliverToOne(e.connID, e.msg)
		}
	})
}

// Run garbage-collects idle pair queues until ctx is done.
func (q *Queues) Run(ctx context.Context) {
	ticker := time.NewTicker(queueGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := q.gc()
			if n > 0 {
				glog.V(5).Infof("relay: collected %d idle pair queues", n)
			}
		}
	}
}

func (q *Queues) gc() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	var n int
	for k, pq := range q.pairs {
		if pq.idle() {
			delete(q.pairs, k)
			n++
		}
	}
	pairQueuesLive.Set(float64(len(q.pairs)))
	return n
}

func (q *Queues) pair(senderID, receiverID string) *pairQueue {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pairs[pairKey{sender: senderID, receiver: receiverID}]
}
