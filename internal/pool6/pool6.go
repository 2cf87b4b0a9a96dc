// Package pool6 implements the IPv6 translation prefix pool: an ordered
// set of NAT64 translation prefixes, each usable to embed an IPv4 address
// into an IPv6 one and back (RFC 6052).
//
// The pool is a plain ordered slice since it is small (a handful of
// administratively configured prefixes) and needs no concurrent-allocation
// structure of its own -- unlike pool4, nothing is "borrowed" from pool6;
// prefixes are read-shared.
package pool6

import (
	"fmt"
	"net/netip"
	"sync"

	"github.com/nat64io/natd/internal/natstate"
)

// supportedPrefixLengths are the RFC 6052 well-known prefix lengths.
var supportedPrefixLengths = map[int]bool{32: true, 40: true, 48: true, 56: true, 64: true, 96: true}

// Pool is an ordered, concurrency-safe set of NAT64 translation prefixes.
type Pool struct {
	mu       sync.RWMutex
	prefixes []netip.Prefix
}

// New builds an empty pool6.
func New() *Pool {
	return &Pool{}
}

// Add appends prefix to the pool. Rejects prefixes whose
// length isn't one of RFC 6052's six well-known lengths, and duplicates.
func (p *Pool) Add(prefix netip.Prefix) error {
	if !prefix.Addr().Is6() || prefix.Addr().Is4In6() {
		return fmt.Errorf("pool6.Add(%v): not an IPv6 prefix: %w", prefix, natstate.ErrInvalidArg)
	}
	if !supportedPrefixLengths[prefix.Bits()] {
		return fmt.Errorf("pool6.Add(%v): unsupported prefix length %d: %w", prefix, prefix.Bits(), natstate.ErrInvalidArg)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.prefixes {
		if existing == prefix {
			return fmt.Errorf("pool6.Add(%v): %w", prefix, natstate.ErrAlreadyExists)
		}
	}
	p.prefixes = append(p.prefixes, prefix)
	return nil
}

// Remove deletes prefix from the pool.
func (p *Pool) Remove(prefix netip.Prefix) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, existing := range p.prefixes {
		if existing == prefix {
			p.prefixes = append(p.prefixes[:i], p.prefixes[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("pool6.Remove(%v): %w", prefix, natstate.ErrNotFound)
}

// Contains reports whether addr falls within any configured prefix.
func (p *Pool) Contains(addr netip.Addr) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, prefix := range p.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// Peek returns the first configured prefix without consuming anything.
// Returns natstate.ErrNotFound if the pool is empty.
func (p *Pool) Peek() (netip.Prefix, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.prefixes) == 0 {
		return netip.Prefix{}, fmt.Errorf("pool6.Peek: %w", natstate.ErrNotFound)
	}
	return p.prefixes[0], nil
}

// Get returns the prefix to use for embedding v4 right now: the first
// configured prefix.
func (p *Pool) Get() (netip.Prefix, error) {
	return p.Peek()
}

// Count returns the number of configured prefixes.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.prefixes)
}

// ForEach invokes fn on every configured prefix in insertion order, for as
// long as fn returns nil, and propagates the first non-nil error fn
// returns.
func (p *Pool) ForEach(fn func(netip.Prefix) error) error {
	p.mu.RLock()
	prefixes := make([]netip.Prefix, len(p.prefixes))
	copy(prefixes, p.prefixes)
	p.mu.RUnlock()

	for _, prefix := range prefixes {
		if err := fn(prefix); err != nil {
			return err
		}
	}
	return nil
}

// Embed builds the RFC 6052 IPv4-embedded IPv6 address for v4 under
// prefix. prefix must be one of the six well-known lengths.
func Embed(prefix netip.Prefix, v4 netip.Addr) (netip.Addr, error) {
	if !v4.Is4() {
		return netip.Addr{}, fmt.Errorf("pool6.Embed(%v): not an IPv4 address: %w", v4, natstate.ErrInvalidArg)
	}
	if !supportedPrefixLengths[prefix.Bits()] {
		return netip.Addr{}, fmt.Errorf("pool6.Embed: unsupported prefix length %d: %w", prefix.Bits(), natstate.ErrInvalidArg)
	}

	var out [16]byte
	prefixBytes := prefix.Addr().As16()
	copy(out[:], prefixBytes[:])
	v4Bytes := v4.As4()

	// RFC 6052 section 2.2: the suffix byte at offset 8 is reserved (u)
	// for prefixes of length <= 64; the IPv4 bytes are split around it.
	switch prefix.Bits() {
	case 32:
		copy(out[4:8], v4Bytes[:])
	case 40:
		copy(out[5:8], v4Bytes[:3])
		out[9] = v4Bytes[3]
	case 48:
		copy(out[6:8], v4Bytes[:2])
		copy(out[9:11], v4Bytes[2:])
	case 56:
		out[7] = v4Bytes[0]
		copy(out[9:12], v4Bytes[1:])
	case 64:
		copy(out[9:13], v4Bytes[:])
	case 96:
		copy(out[12:16], v4Bytes[:])
	}

	return netip.AddrFrom16(out), nil
}

// Extract recovers the original IPv4 address from an RFC 6052 embedded
// address under prefix.
func Extract(prefix netip.Prefix, v6 netip.Addr) (netip.Addr, error) {
	if !v6.Is6() {
		return netip.Addr{}, fmt.Errorf("pool6.Extract(%v): not an IPv6 address: %w", v6, natstate.ErrInvalidArg)
	}
	if !supportedPrefixLengths[prefix.Bits()] {
		return netip.Addr{}, fmt.Errorf("pool6.Extract: unsupported prefix length %d: %w", prefix.Bits(), natstate.ErrInvalidArg)
	}

	b := v6.As16()
	var v4 [4]byte
	switch prefix.Bits() {
	case 32:
		copy(v4[:], b[4:8])
	case 40:
		copy(v4[:3], b[5:8])
		v4[3] = b[9]
	case 48:
		copy(v4[:2], b[6:8])
		copy(v4[2:], b[9:11])
	case 56:
		v4[0] = b[7]
		copy(v4[1:], b[9:12])
	case 64:
		copy(v4[:], b[9:13])
	case 96:
		copy(v4[:], b[12:16])
	}
	return netip.AddrFrom4(v4), nil
}
