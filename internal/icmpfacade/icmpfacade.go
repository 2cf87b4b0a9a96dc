// Package icmpfacade implements the protocol-polymorphic ICMP error
// emitter: one entry point that inspects the offending packet's L3
// protocol and dispatches to the v4 or v6 (type, code) mapping.
package icmpfacade

import (
	"net"

	"github.com/nat64io/natd/internal/natstate"
)

// ErrorKind is the protocol-agnostic reason for an ICMP error, mapped by
// Send to the wire (type, code) pair for whichever IP version the
// offending fragment carried.
type ErrorKind int

const (
	AddrUnreachable ErrorKind = iota
	ProtoUnreachable
	HopLimit
	FragNeeded
	Filter
	SrcRoute
	HdrField
)

func (k ErrorKind) String() string {
	switch k {
	case AddrUnreachable:
		return "AddrUnreachable"
	case ProtoUnreachable:
		return "ProtoUnreachable"
	case HopLimit:
		return "HopLimit"
	case FragNeeded:
		return "FragNeeded"
	case Filter:
		return "Filter"
	case SrcRoute:
		return "SrcRoute"
	case HdrField:
		return "HdrField"
	default:
		return "unknown"
	}
}

// Fragment is the packet abstraction consumed by Send.
type Fragment interface {
	OriginalBuffer() []byte
	Interface() *net.Interface
	L3Proto() natstate.L3Proto
}

// Emitter is the native ICMP/ICMPv6 emit primitive.
type Emitter interface {
	SendV4(frag Fragment, icmpType, icmpCode int, info uint32) error
	SendV6(frag Fragment, icmpType, icmpCode int, info uint32) error
}

type code struct {
	typ, code int
}

// v4Codes and v6Codes are the ICMP type/code dispatch tables per RFC 6146
// section 3.3 and RFC 6145 section 6. An ErrorKind absent from a table is
// silently ignored for that IP version.
var v4Codes = map[ErrorKind]code{
	AddrUnreachable:  {3, 1},  // Destination Unreachable, Host Unreachable
	ProtoUnreachable: {3, 2},  // Destination Unreachable, Protocol Unreachable
	HopLimit:         {11, 0}, // Time Exceeded, TTL Exceeded
	FragNeeded:       {3, 4},  // Destination Unreachable, Fragmentation Needed
	Filter:           {3, 13}, // Destination Unreachable, Packet Filtered
	SrcRoute:         {3, 5},  // Destination Unreachable, Source Route Failed
}

var v6Codes = map[ErrorKind]code{
	AddrUnreachable:  {1, 3}, // Destination Unreachable, Address Unreachable
	ProtoUnreachable: {4, 1}, // Parameter Problem, Unrecognized Next Header
	HopLimit:         {3, 0}, // Time Exceeded, Hop Limit Exceeded
	Filter:           {1, 1}, // Destination Unreachable, Administratively Prohibited
	HdrField:         {4, 0}, // Parameter Problem, Erroneous Header Field
}

// Facade is the single ICMP error emission entry point.
type Facade struct {
	emitter Emitter
}

// New builds a Facade that hands mapped (type, code) pairs to emitter.
func New(emitter Emitter) *Facade {
	return &Facade{emitter: emitter}
}

// Send inspects frag's L3 protocol and emits the (type, code) pair mapped
// from kind for that protocol. An unmapped (kind, L3Proto) combination is
// silently ignored, as is a fragment missing a source buffer or an
// associated interface -- no error is emitted at all in either case.
//
// The IPv6 path is always emitted, unconditionally of kernel version: some
// older kernels are known to drop certain ICMPv6 error replies, but that is
// treated as an environment bug, not behavior to reproduce here.
func (f *Facade) Send(frag Fragment, kind ErrorKind, info uint32) error {
	if len(frag.OriginalBuffer()) == 0 || frag.Interface() == nil {
		return nil
	}

	switch frag.L3Proto() {
	case natstate.L3ProtoIPv4:
		c, ok := v4Codes[kind]
		if !ok {
			return nil
		}
		return f.emitter.SendV4(frag, c.typ, c.code, info)
	case natstate.L3ProtoIPv6:
		c, ok := v6Codes[kind]
		if !ok {
			return nil
		}
		return f.emitter.SendV6(frag, c.typ, c.code, info)
	default:
		return nil
	}
}
