package choke

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMTU is the MTU used by NewLink when none is given.
const DefaultMTU = 1500

// Creates a new rate limiter for the given bandwidth (in bits/sec) with
// burstSize in bytes. A zero bandwidth means an unlimited link.
func newRateLimiter(bandwidth Bitrate, burstSize int) *rate.Limiter {
	if bandwidth <= 0 {
		return rate.NewLimiter(rate.Inf, burstSize)
	}
	return rate.NewLimiter(rate.Limit(bandwidth.BytesPerSecond()), burstSize)
}

// inflightPacket is a packet that has been serialized onto the link and is
// waiting out the link delay.
type inflightPacket struct {
	Packet
	deliveryTime time.Time
}

// Link drains a ChokeQueue onto a simulated link. Packets leave the queue at
// the queue's configured LinkBandwidth and reach the receiver LinkDelay after
// they have been sent.
//
// Link serializes every access to its queue, so RecvPacket may be called from
// any goroutine.
type Link struct {
	// Optional, if unset will use the default slog logger.
	Logger *slog.Logger

	mu    sync.Mutex
	queue *ChokeQueue

	mtu      int
	delay    time.Duration
	limiter  *rate.Limiter
	receiver PacketReceiver

	inflightMu sync.Mutex
	inflight   ringBuffer[inflightPacket]

	newPacket   chan struct{}
	sent        chan struct{}
	closeSignal chan struct{}
}

// NewLink returns a Link fed by queue that delivers to receiver. A zero mtu
// means DefaultMTU. The link stops when closeSignal is closed.
func NewLink(queue *ChokeQueue, mtu int, receiver PacketReceiver, closeSignal chan struct{}) *Link {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	cfg := queue.Config()
	return &Link{
		queue:       queue,
		mtu:         mtu,
		delay:       cfg.LinkDelay,
		limiter:     newRateLimiter(cfg.LinkBandwidth, mtu),
		receiver:    receiver,
		inflight:    newRingBuffer[inflightPacket](64),
		newPacket:   make(chan struct{}, 1),
		sent:        make(chan struct{}, 1),
		closeSignal: closeSignal,
	}
}

func (l *Link) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

// Start starts the link's transmit and delivery goroutines.
func (l *Link) Start(wg *sync.WaitGroup) {
	wg.Go(l.transmit)
	wg.Go(l.propagate)
}

// RecvPacket offers p to the link's queue.
func (l *Link) RecvPacket(p Packet) {
	l.mu.Lock()
	if p.Size() > l.mtu {
		// Drop packet if it's too large
		l.logger().Debug("Dropping packet larger than MTU", "size", p.Size(), "mtu", l.mtu)
		l.queue.rejectOversized(p)
		l.mu.Unlock()
		return
	}
	l.queue.Enqueue(p, time.Now())
	l.mu.Unlock()

	// Signal that a new packet arrived (non-blocking)
	select {
	case l.newPacket <- struct{}{}:
	default:
	}
}

// Stats returns a snapshot of the queue's counters.
func (l *Link) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.Stats()
}

// QueueSize returns the queue occupancy in the queue's unit.
func (l *Link) QueueSize() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.QueueSize()
}

// transmit dequeues packets as fast as the rate limiter allows and hands them
// to the propagation stage.
func (l *Link) transmit() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		l.mu.Lock()
		p, ok := l.queue.Dequeue(time.Now())
		l.mu.Unlock()
		if !ok {
			select {
			case <-l.closeSignal:
				return
			case <-l.newPacket:
				continue
			}
		}

		now := time.Now()
		if wait := l.limiter.ReserveN(now, p.Size()).DelayFrom(now); wait > 0 {
			timer.Reset(wait)
			select {
			case <-l.closeSignal:
				return
			case <-timer.C:
			}
		}

		l.inflightMu.Lock()
		l.inflight.PushBack(inflightPacket{
			Packet:       p,
			deliveryTime: time.Now().Add(l.delay),
		})
		l.inflightMu.Unlock()

		select {
		case l.sent <- struct{}{}:
		default:
		}
	}
}

// propagate delivers packets once they have spent the link delay in flight.
// Packets enter the pipe in send order with a fixed delay, so the head is
// always the next one due.
func (l *Link) propagate() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	var due []Packet
	for {
		now := time.Now()
		var next time.Time
		due = due[:0]

		l.inflightMu.Lock()
		for {
			ip, ok := l.inflight.Peek()
			if !ok {
				break
			}
			if ip.deliveryTime.After(now) {
				next = ip.deliveryTime
				break
			}
			l.inflight.PopFront()
			due = append(due, ip.Packet)
		}
		l.inflightMu.Unlock()

		for _, p := range due {
			l.receiver.RecvPacket(p)
		}

		if !next.IsZero() {
			timer.Reset(next.Sub(now))
		}
		select {
		case <-l.closeSignal:
			return
		case <-l.sent:
		case <-timer.C:
		}
	}
}
