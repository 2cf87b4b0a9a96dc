// Package pool4 implements the translated IPv4 address pool: a fixed set
// of routable IPv4 addresses, each lending out its own range of L4
// identifiers (ports, or ICMP identifiers) via one internal/poolnum.Pool.
package pool4

import (
	"fmt"
	"net/netip"

	"github.com/nat64io/natd/internal/natstate"
	"github.com/nat64io/natd/internal/poolnum"
)

// Pool is the full address+port pool: one internal/poolnum.Pool of L4
// identifiers per configured IPv4 address.
type Pool struct {
	byAddr map[netip.Addr]*poolnum.Pool
	order  []netip.Addr // stable iteration/selection order
}

// AddressRange configures one pool4 address and the identifier range it
// lends, sampled min..max by stride exactly as internal/poolnum.New takes
// it.
type AddressRange struct {
	Addr          netip.Addr
	MinID, MaxID  uint16
	Stride        uint16
	ShuffleSeed   uint64
}

// New builds a pool4 spanning the given address ranges. Fails if any range
// is malformed (delegated to poolnum.New) or an address is repeated.
func New(ranges []AddressRange) (*Pool, error) {
	p := &Pool{byAddr: make(map[netip.Addr]*poolnum.Pool, len(ranges))}
	for _, r := range ranges {
		if _, exists := p.byAddr[r.Addr]; exists {
			return nil, fmt.Errorf("pool4.New(%v): duplicate address: %w", r.Addr, natstate.ErrInvalidArg)
		}
		ids, err := poolnum.New(r.MinID, r.MaxID, r.Stride, r.ShuffleSeed)
		if err != nil {
			return nil, fmt.Errorf("pool4.New(%v): %w", r.Addr, err)
		}
		p.byAddr[r.Addr] = ids
		p.order = append(p.order, r.Addr)
	}
	return p, nil
}

// Contains reports whether addr belongs to this pool.
func (p *Pool) Contains(addr netip.Addr) bool {
	_, ok := p.byAddr[addr]
	return ok
}

// Get borrows the specific (address, L4-id) endpoint named by ep. Returns
// natstate.ErrInvalidArg if the address is not in the pool, or whatever
// internal/poolnum.Get returns for the address's identifier range.
func (p *Pool) Get(ep natstate.Endpoint) error {
	ids, ok := p.byAddr[ep.Addr]
	if !ok {
		return fmt.Errorf("pool4.Get(%v): address not in pool: %w", ep.Addr, natstate.ErrInvalidArg)
	}
	return ids.Get(ep.ID)
}

// GetAny borrows an arbitrary endpoint from the pool, trying configured
// addresses in configuration order and drawing from the first one that
// still has an identifier left; the starting address does not rotate
// between calls. Returns natstate.ErrExhausted only once every address's
// range is drained.
func (p *Pool) GetAny() (natstate.Endpoint, error) {
	for _, addr := range p.order {
		id, err := p.byAddr[addr].GetAny()
		if err == nil {
			return natstate.Endpoint{Addr: addr, ID: id}, nil
		}
	}
	return natstate.Endpoint{}, fmt.Errorf("pool4.GetAny: %w", natstate.ErrExhausted)
}

// Return gives an (address, L4-id) endpoint back to the pool.
func (p *Pool) Return(ep natstate.Endpoint) error {
	ids, ok := p.byAddr[ep.Addr]
	if !ok {
		return fmt.Errorf("pool4.Return(%v): address not in pool: %w", ep.Addr, natstate.ErrInvalidArg)
	}
	return ids.Return(ep.ID)
}
