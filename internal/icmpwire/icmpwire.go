// Package icmpwire supplies the native ICMP/ICMPv6 emit primitive behind
// internal/icmpfacade. It builds and (when a raw socket is available)
// writes real ICMPv4/ICMPv6 error messages using golang.org/x/net/icmp and
// golang.org/x/net/ipv4/ipv6: one *icmp.PacketConn per address family,
// opened once and reused.
//
// No ancillary-data TTL/PKTINFO handling is needed here: an ICMP error
// reply only needs a destination address, recovered from the offending
// packet's own IP header.
package icmpwire

import (
	"fmt"
	"log/slog"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/nat64io/natd/internal/icmpfacade"
)

// icmpErrorPayloadLimit bounds how much of the offending datagram is
// quoted back in the error body: at most 576 bytes, before the ICMP and
// IP headers are added.
const icmpErrorPayloadLimit = 576

// Wire sends ICMP error messages over raw ICMP/ICMPv6 sockets.
type Wire struct {
	log  *slog.Logger
	conn4 *icmp.PacketConn
	conn6 *icmp.PacketConn
}

// New opens the raw ICMP and ICMPv6 listening sockets used to originate
// error messages. Either socket may be nil if this process lacks the
// privilege to open it; SendV4/SendV6 then return an error instead of
// panicking, and internal/engine's ICMPSend hands that error back to its
// caller.
func New(log *slog.Logger, conn4, conn6 *icmp.PacketConn) *Wire {
	return &Wire{log: log, conn4: conn4, conn6: conn6}
}

// Listen opens both raw sockets with the OS default privileges, returning
// whichever sockets the caller was able to open ("ip4:icmp" needs
// CAP_NET_RAW; deployments without it get a warning logged here and a Wire
// whose SendV4/SendV6 return an error without sending).
func Listen(log *slog.Logger) *Wire {
	conn4, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		log.Warn("icmpwire: could not open raw ICMPv4 socket, error emission disabled", "error", err)
		conn4 = nil
	}
	conn6, err := icmp.ListenPacket("ip6:ipv6-icmp", "::")
	if err != nil {
		log.Warn("icmpwire: could not open raw ICMPv6 socket, error emission disabled", "error", err)
		conn6 = nil
	}
	return New(log, conn4, conn6)
}

// Close releases both sockets.
func (w *Wire) Close() error {
	var errs []error
	if w.conn4 != nil {
		if err := w.conn4.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if w.conn6 != nil {
		if err := w.conn6.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("icmpwire.Close: %w", errs[0])
}

// SendV4 builds and writes an ICMPv4 error message quoting frag's original
// buffer back to the source address recovered from its IPv4 header.
func (w *Wire) SendV4(frag icmpfacade.Fragment, icmpType, icmpCode int, _ uint32) error {
	if w.conn4 == nil {
		return fmt.Errorf("icmpwire.SendV4: no raw ICMPv4 socket available")
	}

	dst, err := ipv4SourceOf(frag.OriginalBuffer())
	if err != nil {
		return fmt.Errorf("icmpwire.SendV4: %w", err)
	}

	msg := &icmp.Message{
		Type: ipv4.ICMPType(icmpType),
		Code: icmpCode,
		Body: &icmp.DstUnreach{
			Data: truncate(frag.OriginalBuffer()),
		},
	}
	wire, err := msg.Marshal(nil)
	if err != nil {
		return fmt.Errorf("icmpwire.SendV4: marshal: %w", err)
	}

	if _, err := w.conn4.WriteTo(wire, dst); err != nil {
		return fmt.Errorf("icmpwire.SendV4: write to %v: %w", dst, err)
	}
	return nil
}

// SendV6 builds and writes an ICMPv6 error message quoting frag's original
// buffer back to the source address recovered from its IPv6 header.
func (w *Wire) SendV6(frag icmpfacade.Fragment, icmpType, icmpCode int, _ uint32) error {
	if w.conn6 == nil {
		return fmt.Errorf("icmpwire.SendV6: no raw ICMPv6 socket available")
	}

	dst, err := ipv6SourceOf(frag.OriginalBuffer())
	if err != nil {
		return fmt.Errorf("icmpwire.SendV6: %w", err)
	}

	msg := &icmp.Message{
		Type: ipv6.ICMPType(icmpType),
		Code: icmpCode,
		Body: &icmp.DstUnreach{
			Data: truncate(frag.OriginalBuffer()),
		},
	}
	wire, err := msg.Marshal(nil)
	if err != nil {
		return fmt.Errorf("icmpwire.SendV6: marshal: %w", err)
	}

	if _, err := w.conn6.WriteTo(wire, dst); err != nil {
		return fmt.Errorf("icmpwire.SendV6: write to %v: %w", dst, err)
	}
	return nil
}

func truncate(buf []byte) []byte {
	if len(buf) > icmpErrorPayloadLimit {
		return buf[:icmpErrorPayloadLimit]
	}
	return buf
}
