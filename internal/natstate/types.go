package natstate

import (
	"bytes"
	"net/netip"
)

// Proto is the L4 protocol tag partitioning the BIB and Session Table into
// three independent tables.
type Proto uint8

const (
	ProtoUDP Proto = iota
	ProtoTCP
	ProtoICMP
)

// String returns the wire/log name of the protocol.
func (p Proto) String() string {
	switch p {
	case ProtoUDP:
		return "udp"
	case ProtoTCP:
		return "tcp"
	case ProtoICMP:
		return "icmp"
	default:
		return "unknown"
	}
}

// L3Proto distinguishes the IP version of a static-route request.
type L3Proto uint8

const (
	L3ProtoIPv4 L3Proto = iota
	L3ProtoIPv6
)

// Endpoint is a transport endpoint: an address plus an L4 identifier (a
// port for TCP/UDP, an ICMP identifier for ICMP). Two address families are
// supported; Endpoint is family-agnostic and relies on netip.Addr's own
// Is4/Is6 distinction.
type Endpoint struct {
	Addr netip.Addr
	ID   uint16
}

// Compare orders two endpoints lexicographically by address bytes, then by
// ID.
func (e Endpoint) Compare(o Endpoint) int {
	if c := bytes.Compare(e.Addr.AsSlice(), o.Addr.AsSlice()); c != 0 {
		return c
	}
	if e.ID < o.ID {
		return -1
	}
	if e.ID > o.ID {
		return 1
	}
	return 0
}

// Less reports whether e sorts before o under Compare -- the predicate
// google/btree's BTreeG requires.
func (e Endpoint) Less(o Endpoint) bool {
	return e.Compare(o) < 0
}

// Pair is an (local, remote) endpoint pair belonging to one address family,
// the key shape used for session lookups.
type Pair struct {
	Local  Endpoint
	Remote Endpoint
}

// Tuple is the 5-tuple (plus implicit protocol) a filtering decision is
// made against: the packet's presented source and destination endpoints.
type Tuple struct {
	Proto Proto
	Src   Endpoint
	Dst   Endpoint
}
