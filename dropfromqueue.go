package choke

// PacketQueue is a bounded FIFO of packets that also allows a packet to be
// inspected or removed at an arbitrary position. The limit applies to packets
// or bytes depending on the queue mode.
//
// Positional access walks the list from the head, so PeekAt and RemoveAt are
// linear in pos.
type PacketQueue struct {
	mode  QueueMode
	limit int

	packets linkedList[Packet]
	nPkts   int
	nBytes  int
}

// NewPacketQueue returns an empty queue holding at most limit packets or
// bytes, per mode.
func NewPacketQueue(mode QueueMode, limit int) *PacketQueue {
	return &PacketQueue{
		mode:  mode,
		limit: limit,
	}
}

// Enqueue appends p to the tail. It returns false, leaving the queue
// unchanged, if p would push the queue past its limit.
func (q *PacketQueue) Enqueue(p Packet) bool {
	switch q.mode {
	case QueueModeBytes:
		if q.nBytes+p.Size() > q.limit {
			return false
		}
	default:
		if q.nPkts+1 > q.limit {
			return false
		}
	}
	q.packets.append(&listNode[Packet]{v: p})
	q.nPkts++
	q.nBytes += p.Size()
	return true
}

// Dequeue removes and returns the packet at the head.
func (q *PacketQueue) Dequeue() (Packet, bool) {
	n := q.packets.removeFirst()
	if n == nil {
		return Packet{}, false
	}
	q.nPkts--
	q.nBytes -= n.v.Size()
	return n.v, true
}

// Peek returns the packet at the head without removing it.
func (q *PacketQueue) Peek() (Packet, bool) {
	return q.PeekAt(0)
}

// PeekAt returns the packet pos places behind the head.
func (q *PacketQueue) PeekAt(pos int) (Packet, bool) {
	n := q.packets.at(pos)
	if n == nil {
		return Packet{}, false
	}
	return n.v, true
}

// RemoveAt removes and returns the packet pos places behind the head. Packets
// behind it move one place forward.
func (q *PacketQueue) RemoveAt(pos int) (Packet, bool) {
	n := q.packets.removeAt(pos)
	if n == nil {
		return Packet{}, false
	}
	q.nPkts--
	q.nBytes -= n.v.Size()
	return n.v, true
}

// Len returns the number of queued packets.
func (q *PacketQueue) Len() int { return q.nPkts }

// Bytes returns the number of queued bytes.
func (q *PacketQueue) Bytes() int { return q.nBytes }

// Limit returns the capacity in the queue's unit.
func (q *PacketQueue) Limit() int { return q.limit }

// Size returns the occupancy in the queue's unit.
func (q *PacketQueue) Size() int {
	switch q.mode {
	case QueueModePackets:
		return q.nPkts
	case QueueModeBytes:
		return q.nBytes
	default:
		panic("choke: unknown queue mode " + q.mode.String())
	}
}

// Empty reports whether the queue holds no packets.
func (q *PacketQueue) Empty() bool {
	return q.packets.empty()
}

type linkedList[T any] struct {
	head *listNode[T]
	tail *listNode[T]
}

func (l *linkedList[T]) append(item *listNode[T]) {
	item.next = nil
	if l.tail == nil {
		l.head = item
		l.tail = item
		return
	}
	l.tail.next = item
	l.tail = item
}

func (l *linkedList[T]) empty() bool {
	return l.head == nil
}

func (l *linkedList[T]) removeFirst() *listNode[T] {
	return l.removeAt(0)
}

// at returns the node pos places behind the head, or nil.
func (l *linkedList[T]) at(pos int) *listNode[T] {
	if pos < 0 {
		return nil
	}
	n := l.head
	for ; n != nil && pos > 0; pos-- {
		n = n.next
	}
	return n
}

// removeAt unlinks and returns the node pos places behind the head, or nil.
func (l *linkedList[T]) removeAt(pos int) *listNode[T] {
	if pos < 0 || l.head == nil {
		return nil
	}
	var prev *listNode[T]
	n := l.head
	for ; n != nil && pos > 0; pos-- {
		prev, n = n, n.next
	}
	if n == nil {
		return nil
	}
	if prev == nil {
		l.head = n.next
	} else {
		prev.next = n.next
	}
	if l.tail == n {
		l.tail = prev
	}
	n.next = nil
	return n
}

type listNode[T any] struct {
	v    T
	next *listNode[T]
}
