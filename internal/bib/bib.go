// Package bib implements the Binding Information Base: a dual-indexed
// table mapping IPv6 transport endpoints to borrowed IPv4 transport
// endpoints, partitioned by L4 protocol.
//
// Each protocol gets its own *Table (internal/engine holds three: UDP, TCP,
// ICMP). The v6 index is a google/btree.BTreeG ordered on Endpoint.Compare,
// giving the v6 side an ordered structure that supports ForEachV6's
// ascending-L4-id range scan. The v4 index needs no ordered traversal, so a
// plain map keeps that lookup O(1).
package bib

import (
	"fmt"

	"github.com/google/btree"

	"github.com/nat64io/natd/internal/natstate"
)

// Table is one protocol's BIB.
type Table struct {
	proto natstate.Proto
	byV6  *btree.BTreeG[*natstate.BIBEntry]
	byV4  map[natstate.Endpoint]*natstate.BIBEntry
}

const btreeDegree = 32

func v6Less(a, b *natstate.BIBEntry) bool {
	return a.V6.Less(b.V6)
}

// NewTable creates an empty BIB for the given protocol.
func NewTable(proto natstate.Proto) *Table {
	return &Table{
		proto: proto,
		byV6:  btree.NewG(btreeDegree, v6Less),
		byV4:  make(map[natstate.Endpoint]*natstate.BIBEntry),
	}
}

// Create allocates a detached BIB entry. It is not visible to Get/ForEachV6
// until passed to Add.
func Create(v4, v6 natstate.Endpoint, static bool, proto natstate.Proto) *natstate.BIBEntry {
	return &natstate.BIBEntry{
		V4:     v4,
		V6:     v6,
		Static: static,
		Proto:  proto,
	}
}

// Add inserts entry into both indices. Fails with natstate.ErrAlreadyExists
// if either the v4 or v6 key already has an entry; in that case neither
// index is modified.
func (t *Table) Add(entry *natstate.BIBEntry) error {
	if _, exists := t.byV4[entry.V4]; exists {
		return fmt.Errorf("bib.Add(v4=%v): %w", entry.V4, natstate.ErrAlreadyExists)
	}
	if _, exists := t.byV6.Get(entry); exists {
		return fmt.Errorf("bib.Add(v6=%v): %w", entry.V6, natstate.ErrAlreadyExists)
	}

	t.byV4[entry.V4] = entry
	t.byV6.ReplaceOrInsert(entry)
	return nil
}

// GetByV4 looks up the BIB entry bound to the given IPv4 endpoint.
func (t *Table) GetByV4(v4 natstate.Endpoint) (*natstate.BIBEntry, error) {
	e, ok := t.byV4[v4]
	if !ok {
		return nil, fmt.Errorf("bib.GetByV4(%v): %w", v4, natstate.ErrNotFound)
	}
	return e, nil
}

// GetByV6 looks up the BIB entry bound to the given IPv6 endpoint.
func (t *Table) GetByV6(v6 natstate.Endpoint) (*natstate.BIBEntry, error) {
	probe := &natstate.BIBEntry{V6: v6}
	e, ok := t.byV6.Get(probe)
	if !ok {
		return nil, fmt.Errorf("bib.GetByV6(%v): %w", v6, natstate.ErrNotFound)
	}
	return e, nil
}

// Remove deletes entry from both indices. Precondition: entry.Sessions is
// empty -- callers tear down
// sessions first (internal/reaper, internal/staticroute).
func (t *Table) Remove(entry *natstate.BIBEntry) error {
	if len(entry.Sessions) != 0 {
		return fmt.Errorf("bib.Remove(v6=%v): %d sessions still attached: %w", entry.V6, len(entry.Sessions), natstate.ErrInvalidArg)
	}

	delete(t.byV4, entry.V4)
	t.byV6.Delete(entry)
	return nil
}

// ForEachV6 invokes fn on every entry whose IPv6 endpoint lies between
// v6AddrLow and v6AddrHigh, both inclusive, in ascending endpoint order
// (address, then L4-id), for as long as fn returns nil. It stops and
// returns the first non-nil error fn produces. Bounds of addr#0 and
// addr#65535 visit every entry whose IPv6 address is addr.
func (t *Table) ForEachV6(v6AddrLow, v6AddrHigh natstate.Endpoint, fn func(*natstate.BIBEntry) error) error {
	var fnErr error
	t.byV6.AscendGreaterOrEqual(
		&natstate.BIBEntry{V6: v6AddrLow},
		func(e *natstate.BIBEntry) bool {
			if v6AddrHigh.Less(e.V6) {
				return false
			}
			if err := fn(e); err != nil {
				fnErr = err
				return false
			}
			return true
		},
	)
	return fnErr
}

// All invokes fn on every entry in the table, in ascending IPv6-endpoint
// order, for as long as fn returns nil. It stops and returns the first
// non-nil error fn produces. Used by internal/adminapi's list-bib surface,
// which has no natural low/high bound the way ForEachV6's callers do.
func (t *Table) All(fn func(*natstate.BIBEntry) error) error {
	var fnErr error
	t.byV6.Ascend(func(e *natstate.BIBEntry) bool {
		if err := fn(e); err != nil {
			fnErr = err
			return false
		}
		return true
	})
	return fnErr
}

// Len returns the number of entries currently in the table.
func (t *Table) Len() int {
	return len(t.byV4)
}
