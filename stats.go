package choke

import (
	"log/slog"
)

type DropReason string

const (
	// DropReasonMatched: the packet shared a flow with a packet sampled from
	// the queue. Both are dropped.
	DropReasonMatched DropReason = "Matched drop"
	// DropReasonForced: the average queue size was at or above MaxTh.
	DropReasonForced DropReason = "Forced drop"
	// DropReasonUnforced: early probabilistic drop between the thresholds.
	DropReasonUnforced DropReason = "Unforced drop"
	// DropReasonQueueLimit: the queue was full. Not a CHOKe decision.
	DropReasonQueueLimit DropReason = "Queue limit exceeded"
	// DropReasonMTU: the packet was larger than the link MTU and never
	// reached the queue.
	DropReasonMTU DropReason = "MTU exceeded"
)

type MarkReason string

const (
	MarkReasonForced   MarkReason = "Forced mark"
	MarkReasonUnforced MarkReason = "Unforced mark"
)

type OnDrop func(packet Packet, reason DropReason)

type OnMark func(packet Packet, reason MarkReason)

func LogOnDrop(logger *slog.Logger) OnDrop {
	return func(packet Packet, reason DropReason) {
		logger.Debug("Dropping packet", "from", packet.From, "to", packet.To, "size", packet.Size(), "reason", reason)
	}
}

func LogOnMark(logger *slog.Logger) OnMark {
	return func(packet Packet, reason MarkReason) {
		logger.Debug("Marking packet", "from", packet.From, "to", packet.To, "size", packet.Size(), "reason", reason)
	}
}

// Stats is a snapshot of a ChokeQueue's counters.
type Stats struct {
	PacketsReceived int
	BytesReceived   int
	PacketsEnqueued int
	BytesEnqueued   int
	PacketsDequeued int
	BytesDequeued   int

	// MatchedDrops counts both packets of every match, so it grows by two
	// per matched arrival.
	MatchedDrops    int
	ForcedDrops     int
	UnforcedDrops   int
	QueueLimitDrops int
	MTUDrops        int

	ForcedMarks   int
	UnforcedMarks int

	// QueueSize is the occupancy in the queue's unit at snapshot time, and
	// AverageQueue the EWMA of it.
	QueueSize    int
	AverageQueue float64
}

// Dropped returns the total number of packets dropped for any reason.
func (s Stats) Dropped() int {
	return s.MatchedDrops + s.ForcedDrops + s.UnforcedDrops + s.QueueLimitDrops + s.MTUDrops
}

// Marked returns the total number of packets marked.
func (s Stats) Marked() int {
	return s.ForcedMarks + s.UnforcedMarks
}

func (s *Stats) recordDrop(reason DropReason) {
	switch reason {
	case DropReasonMatched:
		s.MatchedDrops++
	case DropReasonForced:
		s.ForcedDrops++
	case DropReasonUnforced:
		s.UnforcedDrops++
	case DropReasonQueueLimit:
		s.QueueLimitDrops++
	case DropReasonMTU:
		s.MTUDrops++
	}
}

func (s *Stats) recordMark(reason MarkReason) {
	switch reason {
	case MarkReasonForced:
		s.ForcedMarks++
	case MarkReasonUnforced:
		s.UnforcedMarks++
	}
}
