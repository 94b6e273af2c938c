package choke

import (
	"hash/maphash"
	"net"
)

// Packet is a unit of traffic passing through a ChokeQueue. The queue takes
// ownership of a Packet when it is accepted and hands it back on Dequeue.
type Packet struct {
	To   net.Addr
	From net.Addr

	// ECT is set when the sender negotiated ECN, so the packet may be marked
	// instead of dropped.
	ECT bool
	// CE is set once the packet has been marked Congestion Experienced.
	CE bool

	buf []byte
}

// NewPacket returns a Packet carrying buf from one address to another.
func NewPacket(from, to net.Addr, buf []byte) Packet {
	return Packet{To: to, From: from, buf: buf}
}

// Size returns the packet size in bytes.
func (p *Packet) Size() int {
	return len(p.buf)
}

// Bytes returns the packet contents.
func (p *Packet) Bytes() []byte {
	return p.buf
}

// Hash writes the packet's addresses into h and returns the sum.
func (p *Packet) Hash(h *maphash.Hash) uint64 {
	h.Reset()
	if p.To != nil {
		h.WriteString(p.To.String())
	}
	h.WriteByte(0)
	if p.From != nil {
		h.WriteString(p.From.String())
	}
	return h.Sum64()
}

// mark sets CE if the packet is ECN capable and reports whether it did.
func (p *Packet) mark() bool {
	if !p.ECT {
		return false
	}
	p.CE = true
	return true
}

// PacketReceiver accepts packets leaving a link.
type PacketReceiver interface {
	RecvPacket(p Packet)
}
