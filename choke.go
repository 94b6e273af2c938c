// Package choke implements CHOKe (CHOose and Keep / CHOose and Kill), an
// active queue management scheme for links shared by responsive and
// unresponsive flows.
//
// Each arriving packet is compared with a packet drawn at random from the
// queue. If both belong to the same flow, both are dropped. Otherwise the
// packet is subject to RED style early dropping based on an exponentially
// weighted average of the queue size.
package choke

import (
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"time"
)

// Verdict is the outcome of offering a packet to a ChokeQueue.
type Verdict int

const (
	// VerdictEnqueued: the packet was queued unchanged.
	VerdictEnqueued Verdict = iota
	// VerdictMarked: the packet was marked CE and queued.
	VerdictMarked
	// VerdictDropped: the packet was dropped, see OnDrop for the reason.
	VerdictDropped
)

func (v Verdict) String() string {
	switch v {
	case VerdictEnqueued:
		return "enqueued"
	case VerdictMarked:
		return "marked"
	case VerdictDropped:
		return "dropped"
	default:
		return "Verdict(" + strconv.Itoa(int(v)) + ")"
	}
}

type dropType int

const (
	dropTypeNone dropType = iota
	dropTypeForced
	dropTypeUnforced
)

// ChokeQueue is a CHOKe queue discipline. It is not safe for concurrent use;
// the caller must serialize Enqueue and Dequeue, and supplies the time of
// each event.
type ChokeQueue struct {
	// Optional, if unset will use the default slog logger.
	Logger *slog.Logger
	// OnDrop and OnMark, when set, are called for every packet dropped or
	// marked.
	OnDrop OnDrop
	OnMark OnMark
	// Classifier groups packets into flows. Defaults to an AddrClassifier.
	Classifier Classifier

	cfg   Config
	queue *PacketQueue
	avg   avgEstimator

	// dropRand decides early drops, posRand picks the packet compared with
	// each arrival.
	dropRand RandSource
	posRand  RandSource

	vA   float64
	vB   float64
	maxP float64

	// count and countBytes track arrivals since the last early drop.
	count      int
	countBytes int
	// old is set once the average has been above MinTh for more than one
	// arrival.
	old   bool
	vProb float64

	stats Stats
}

// NewChokeQueue returns an empty ChokeQueue. dropRand and posRand must be
// distinct; a nil source is replaced by a fresh NewRngStream. Two sources of
// the same non-comparable type are rejected, as they cannot be told apart.
func NewChokeQueue(cfg Config, dropRand, posRand RandSource) (*ChokeQueue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dropRand == nil {
		dropRand = NewRngStream("choke-drop")
	}
	if posRand == nil {
		posRand = NewRngStream("choke-position")
	}
	if err := checkDistinct(dropRand, posRand); err != nil {
		return nil, err
	}

	q := &ChokeQueue{
		cfg:      cfg,
		dropRand: dropRand,
		posRand:  posRand,
	}
	q.initializeParams()
	return q, nil
}

func checkDistinct(a, b RandSource) error {
	t := reflect.TypeOf(a)
	if t != reflect.TypeOf(b) {
		return nil
	}
	if !t.Comparable() {
		return fmt.Errorf("%w: cannot compare sources of type %v", ErrSharedRandSource, t)
	}
	if a == b {
		return ErrSharedRandSource
	}
	return nil
}

// initializeParams derives the algorithm constants from the config and
// resets the average, the counters and the queue.
func (q *ChokeQueue) initializeParams() {
	q.queue = NewPacketQueue(q.cfg.Mode, q.cfg.QueueLimit)
	q.avg = newAvgEstimator(q.cfg.QueueWeight, q.cfg.LinkBandwidth, q.cfg.MeanPktSize)

	thDiff := q.cfg.MaxTh - q.cfg.MinTh
	if thDiff == 0 {
		thDiff = 1.0
	}
	q.vA = 1.0 / thDiff
	q.vB = -q.cfg.MinTh / thDiff
	q.maxP = 1.0 / q.cfg.LInterm

	q.count = 0
	q.countBytes = 0
	q.old = false
	q.vProb = 0
	q.stats = Stats{}

	q.logger().Debug("Initialized CHOKe queue",
		"mode", q.cfg.Mode,
		"minTh", q.cfg.MinTh,
		"maxTh", q.cfg.MaxTh,
		"qW", q.cfg.QueueWeight,
		"ptc", q.avg.ptc,
		"vA", q.vA,
		"vB", q.vB,
		"maxP", q.maxP,
		"wait", q.cfg.Wait,
		"linkDelay", q.cfg.LinkDelay,
	)
}

func (q *ChokeQueue) logger() *slog.Logger {
	if q.Logger == nil {
		return slog.Default()
	}
	return q.Logger
}

func (q *ChokeQueue) classifier() Classifier {
	if q.Classifier == nil {
		q.Classifier = NewAddrClassifier()
	}
	return q.Classifier
}

// Enqueue offers p to the queue at time now.
func (q *ChokeQueue) Enqueue(p Packet, now time.Time) Verdict {
	q.stats.PacketsReceived++
	q.stats.BytesReceived += p.Size()

	nQueued := q.queue.Size()
	qAvg := q.avg.update(nQueued, now)

	q.count++
	q.countBytes += p.Size()

	dt := dropTypeNone
	if qAvg >= q.cfg.MinTh && nQueued > 1 {
		// In byte mode a single queued packet passes the gate, but the head
		// is never sampled, so there is nothing to compare against.
		if q.queue.Len() > 1 && q.matchDrop(&p) {
			return VerdictDropped
		}

		switch {
		case qAvg >= q.cfg.MaxTh:
			dt = dropTypeForced
		case !q.old:
			q.count = 1
			q.countBytes = p.Size()
			q.old = true
		case q.dropEarly(&p):
			dt = dropTypeUnforced
		}
	} else {
		// No packets are being dropped
		q.vProb = 0
		q.old = false
	}

	verdict := VerdictEnqueued
	switch dt {
	case dropTypeUnforced:
		if !q.cfg.UseECN || !p.mark() {
			q.drop(p, DropReasonUnforced)
			return VerdictDropped
		}
		q.notifyMark(p, MarkReasonUnforced)
		verdict = VerdictMarked
	case dropTypeForced:
		if q.cfg.UseHardDrop || !q.cfg.UseECN || !p.mark() {
			q.drop(p, DropReasonForced)
			if q.cfg.NS1Compat {
				q.count = 0
				q.countBytes = 0
			}
			return VerdictDropped
		}
		q.notifyMark(p, MarkReasonForced)
		verdict = VerdictMarked
	}

	if !q.queue.Enqueue(p) {
		q.drop(p, DropReasonQueueLimit)
		return VerdictDropped
	}
	q.stats.PacketsEnqueued++
	q.stats.BytesEnqueued += p.Size()
	return verdict
}

// matchDrop compares p with a random queued packet other than the head. On a
// flow match it removes that packet, reports both as dropped and returns
// true.
func (q *ChokeQueue) matchDrop(p *Packet) bool {
	n := q.queue.Len()
	pos := q.posRand.IntRange(1, n-1)
	candidate, ok := q.queue.PeekAt(pos)
	if !ok {
		q.logger().Error("Sampled position is outside the queue, skipping flow match", "pos", pos, "len", n)
		return false
	}

	c := q.classifier()
	if c.Classify(p) != c.Classify(&candidate) {
		return false
	}

	q.queue.RemoveAt(pos)
	q.drop(*p, DropReasonMatched)
	q.drop(candidate, DropReasonMatched)
	return true
}

// dropEarly decides whether p is dropped early, and resets the counters if
// it is.
func (q *ChokeQueue) dropEarly(p *Packet) bool {
	pNew := CalculatePNew(q.avg.qAvg, q.cfg.MaxTh, q.vA, q.vB, q.maxP)
	q.vProb = ModifyP(pNew, q.count, q.countBytes, q.cfg.MeanPktSize, q.cfg.Wait, q.cfg.Mode, p.Size())

	if u := q.dropRand.Float64(); u > q.vProb {
		return false
	}
	q.count = 0
	q.countBytes = 0
	return true
}

// rejectOversized accounts for a packet refused before it reached the queue
// because it does not fit the link.
func (q *ChokeQueue) rejectOversized(p Packet) {
	q.stats.PacketsReceived++
	q.stats.BytesReceived += p.Size()
	q.drop(p, DropReasonMTU)
}

func (q *ChokeQueue) drop(p Packet, reason DropReason) {
	q.stats.recordDrop(reason)
	if q.OnDrop != nil {
		q.OnDrop(p, reason)
	}
}

func (q *ChokeQueue) notifyMark(p Packet, reason MarkReason) {
	q.stats.recordMark(reason)
	if q.OnMark != nil {
		q.OnMark(p, reason)
	}
}

// Dequeue removes the packet at the head of the queue at time now.
func (q *ChokeQueue) Dequeue(now time.Time) (Packet, bool) {
	p, ok := q.queue.Dequeue()
	if !ok {
		return Packet{}, false
	}
	q.stats.PacketsDequeued++
	q.stats.BytesDequeued += p.Size()
	if q.queue.Empty() {
		q.avg.markIdle(now)
	}
	return p, true
}

// Peek returns the packet at the head of the queue without removing it.
func (q *ChokeQueue) Peek() (Packet, bool) {
	return q.queue.Peek()
}

// QueueSize returns the current occupancy in the configured unit.
func (q *ChokeQueue) QueueSize() int {
	return q.queue.Size()
}

// Len returns the number of queued packets.
func (q *ChokeQueue) Len() int {
	return q.queue.Len()
}

// AverageQueue returns the current EWMA of the queue size.
func (q *ChokeQueue) AverageQueue() float64 {
	return q.avg.qAvg
}

// DropProbability returns the early drop probability computed for the most
// recent arrival between the thresholds, or 0 if the average is below MinTh.
func (q *ChokeQueue) DropProbability() float64 {
	return q.vProb
}

// Config returns the queue's configuration.
func (q *ChokeQueue) Config() Config {
	return q.cfg
}

// Stats returns a snapshot of the queue's counters.
func (q *ChokeQueue) Stats() Stats {
	s := q.stats
	s.QueueSize = q.queue.Size()
	s.AverageQueue = q.avg.qAvg
	return s
}
