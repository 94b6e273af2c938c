package choke

import (
	"hash/maphash"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// FlowKey identifies a flow. Packets with equal keys belong to the same flow.
type FlowKey uint64

// Classifier maps a packet to its flow.
type Classifier interface {
	Classify(p *Packet) FlowKey
}

// ClassifierFunc adapts a function to a Classifier.
type ClassifierFunc func(p *Packet) FlowKey

func (f ClassifierFunc) Classify(p *Packet) FlowKey { return f(p) }

// AddrClassifier groups packets by their From and To addresses.
type AddrClassifier struct {
	hash maphash.Hash
}

func NewAddrClassifier() *AddrClassifier {
	return &AddrClassifier{}
}

func (c *AddrClassifier) Classify(p *Packet) FlowKey {
	return FlowKey(p.Hash(&c.hash))
}

// LayersClassifier decodes the packet contents as an IPv4 or IPv6 datagram and
// groups packets by protocol, addresses and ports. Packets it cannot decode
// are classified by their From and To addresses.
type LayersClassifier struct {
	hash     maphash.Hash
	fallback AddrClassifier
}

func NewLayersClassifier() *LayersClassifier {
	return &LayersClassifier{}
}

func (c *LayersClassifier) Classify(p *Packet) FlowKey {
	buf := p.Bytes()
	if len(buf) == 0 {
		return c.fallback.Classify(p)
	}

	var first gopacket.LayerType
	switch buf[0] >> 4 {
	case 4:
		first = layers.LayerTypeIPv4
	case 6:
		first = layers.LayerTypeIPv6
	default:
		return c.fallback.Classify(p)
	}

	pkt := gopacket.NewPacket(buf, first, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	var proto layers.IPProtocol
	switch nl := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		proto = nl.Protocol
	case *layers.IPv6:
		proto = nl.NextHeader
	default:
		return c.fallback.Classify(p)
	}

	c.hash.Reset()
	c.hash.WriteByte(byte(proto))
	netFlow := pkt.NetworkLayer().NetworkFlow()
	c.hash.Write(netFlow.Src().Raw())
	c.hash.Write(netFlow.Dst().Raw())
	if tl := pkt.TransportLayer(); tl != nil {
		tf := tl.TransportFlow()
		c.hash.Write(tf.Src().Raw())
		c.hash.Write(tf.Dst().Raw())
	}
	return FlowKey(c.hash.Sum64())
}
