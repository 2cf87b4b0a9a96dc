package icmpwire

import (
	"fmt"
	"net"
)

// ipv4SourceOf recovers the source address from a raw IPv4 header (offset
// 12, 4 bytes) so an error reply can be addressed back to the packet's
// origin.
func ipv4SourceOf(buf []byte) (*net.IPAddr, error) {
	if len(buf) < 20 {
		return nil, fmt.Errorf("ipv4SourceOf: buffer too short for an IPv4 header (%d bytes)", len(buf))
	}
	return &net.IPAddr{IP: net.IP(buf[12:16])}, nil
}

// ipv6SourceOf recovers the source address from a raw IPv6 header (offset
// 8, 16 bytes).
func ipv6SourceOf(buf []byte) (*net.IPAddr, error) {
	if len(buf) < 40 {
		return nil, fmt.Errorf("ipv6SourceOf: buffer too short for an IPv6 header (%d bytes)", len(buf))
	}
	return &net.IPAddr{IP: net.IP(buf[8:24])}, nil
}
