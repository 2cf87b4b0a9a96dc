// Package session implements the Session Table: per-protocol flow records
// anchored to a BIB entry, with v4 and v6 keyed indices, the intrusive
// per-BIB membership (via natstate.BIBEntry.Sessions), and a global
// expiry-ordered list.
//
// Filtering (internal/session.Table.Allow) is folded in here rather than
// kept as a separate package: address-dependent filtering is a
// session-table query, not an independent index.
package session

import (
	"container/list"
	"fmt"
	"net/netip"
	"time"

	"github.com/nat64io/natd/internal/natstate"
)

// filterKey is the lookup shape Allow needs: a local endpoint plus a bare
// remote address, deliberately excluding the remote port.
type filterKey struct {
	local      natstate.Endpoint
	remoteAddr netip.Addr
}

// Table is one protocol's Session Table.
type Table struct {
	proto natstate.Proto

	byV4   map[natstate.Pair]*natstate.SessionEntry
	byV6   map[natstate.Pair]*natstate.SessionEntry
	filter map[filterKey][]*natstate.SessionEntry

	expiry *list.List // Element.Value is *natstate.SessionEntry, ordered oldest-deadline-first
}

// NewTable creates an empty Session Table for the given protocol.
func NewTable(proto natstate.Proto) *Table {
	return &Table{
		proto:  proto,
		byV4:   make(map[natstate.Pair]*natstate.SessionEntry),
		byV6:   make(map[natstate.Pair]*natstate.SessionEntry),
		filter: make(map[filterKey][]*natstate.SessionEntry),
		expiry: list.New(),
	}
}

// Create allocates a detached session anchored to bibEntry. It is not
// visible to Get/Allow, nor linked into bibEntry's own session list, until
// passed to Add.
func Create(v4 natstate.Pair, v6 natstate.Pair, proto natstate.Proto, bibEntry *natstate.BIBEntry) *natstate.SessionEntry {
	return &natstate.SessionEntry{
		V4Local:  v4.Local,
		V4Remote: v4.Remote,
		V6Local:  v6.Local,
		V6Remote: v6.Remote,
		Proto:    proto,
		BIB:      bibEntry,
	}
}

func v4PairOf(s *natstate.SessionEntry) natstate.Pair {
	return natstate.Pair{Local: s.V4Local, Remote: s.V4Remote}
}

func v6PairOf(s *natstate.SessionEntry) natstate.Pair {
	return natstate.Pair{Local: s.V6Local, Remote: s.V6Remote}
}

func filterKeyOf(s *natstate.SessionEntry) filterKey {
	return filterKey{local: s.V4Local, remoteAddr: s.V4Remote.Addr}
}

// Add inserts entry into both keyed indices, the filter index, its BIB
// entry's intrusive list, and the tail of the expiry list with a deadline
// of now+timeout. Fails with natstate.ErrAlreadyExists, touching nothing,
// if either keyed index already holds an entry for this pair.
func (t *Table) Add(entry *natstate.SessionEntry, now time.Time, timeout time.Duration) error {
	v4k, v6k := v4PairOf(entry), v6PairOf(entry)
	if _, exists := t.byV4[v4k]; exists {
		return fmt.Errorf("session.Add(v4=%v): %w", v4k, natstate.ErrAlreadyExists)
	}
	if _, exists := t.byV6[v6k]; exists {
		return fmt.Errorf("session.Add(v6=%v): %w", v6k, natstate.ErrAlreadyExists)
	}

	t.byV4[v4k] = entry
	t.byV6[v6k] = entry
	fk := filterKeyOf(entry)
	t.filter[fk] = append(t.filter[fk], entry)

	if entry.BIB != nil {
		entry.BIB.Sessions = append(entry.BIB.Sessions, entry)
	}

	entry.DyingTime = now.Add(timeout)
	entry.SetExpiryElem(t.expiry.PushBack(entry))
	return nil
}

// Remove detaches entry from every index it belongs to: the v4/v6 keyed
// maps, the filter index, its BIB entry's intrusive list, and the expiry
// list.
func (t *Table) Remove(entry *natstate.SessionEntry) error {
	v4k, v6k := v4PairOf(entry), v6PairOf(entry)
	if _, ok := t.byV4[v4k]; !ok {
		return fmt.Errorf("session.Remove(v4=%v): %w", v4k, natstate.ErrNotFound)
	}

	delete(t.byV4, v4k)
	delete(t.byV6, v6k)

	fk := filterKeyOf(entry)
	bucket := t.filter[fk]
	for i, cur := range bucket {
		if cur == entry {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(t.filter, fk)
	} else {
		t.filter[fk] = bucket
	}

	if elem := entry.ExpiryElem(); elem != nil {
		t.expiry.Remove(elem)
		entry.SetExpiryElem(nil)
	}

	if entry.BIB != nil {
		entry.BIB.RemoveSession(entry)
	}
	return nil
}

// touch refreshes entry's deadline: detach from the expiry list and
// re-append at the tail with a freshly computed deadline.
func (t *Table) touch(entry *natstate.SessionEntry, now time.Time, timeout time.Duration) {
	if elem := entry.ExpiryElem(); elem != nil {
		t.expiry.Remove(elem)
	}
	entry.DyingTime = now.Add(timeout)
	entry.SetExpiryElem(t.expiry.PushBack(entry))
}

// GetByV4 looks up the session keyed by an (v4.local, v4.remote) pair,
// touching it on a hit.
func (t *Table) GetByV4(pair natstate.Pair, now time.Time, timeout time.Duration) (*natstate.SessionEntry, error) {
	e, ok := t.byV4[pair]
	if !ok {
		return nil, fmt.Errorf("session.GetByV4(%v): %w", pair, natstate.ErrNotFound)
	}
	t.touch(e, now, timeout)
	return e, nil
}

// GetByV6 looks up the session keyed by an (v6.local, v6.remote) pair,
// touching it on a hit.
func (t *Table) GetByV6(pair natstate.Pair, now time.Time, timeout time.Duration) (*natstate.SessionEntry, error) {
	e, ok := t.byV6[pair]
	if !ok {
		return nil, fmt.Errorf("session.GetByV6(%v): %w", pair, natstate.ErrNotFound)
	}
	t.touch(e, now, timeout)
	return e, nil
}

// Allow implements the address-dependent filter:
// true iff some existing session has v4.local == tuple.dst (address and
// port) and v4.remote.address == tuple.src.address. The remote port is
// deliberately not compared, so an inbound packet from a known peer on a
// fresh source port still matches.
func (t *Table) Allow(tuple natstate.Tuple) bool {
	fk := filterKey{local: tuple.Dst, remoteAddr: tuple.Src.Addr}
	return len(t.filter[fk]) > 0
}

// Len returns the number of sessions currently in the table.
func (t *Table) Len() int {
	return len(t.byV4)
}

// ForEach calls fn once per session currently in the table, in no
// particular order, stopping and returning the first non-nil error fn
// produces. Used by internal/adminapi to render a list-sessions view.
func (t *Table) ForEach(fn func(*natstate.SessionEntry) error) error {
	for _, entry := range t.byV4 {
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

// ReapExpired walks the expiry list from the head, removing every session
// whose dying_time is at or before now, and halts at the first unexpired
// entry -- the list is FIFO-by-deadline as long as every touch uses the
// same protocol timeout. onExpire is called, after the session has been fully
// detached, once per removed entry so the caller (internal/reaper) can
// inspect the now-possibly-orphaned BIB entry.
func (t *Table) ReapExpired(now time.Time, onExpire func(*natstate.SessionEntry)) {
	for {
		front := t.expiry.Front()
		if front == nil {
			return
		}
		entry := front.Value.(*natstate.SessionEntry)
		if entry.DyingTime.After(now) {
			return
		}

		_ = t.Remove(entry)
		if onExpire != nil {
			onExpire(entry)
		}
	}
}
