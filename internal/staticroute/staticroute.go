// Package staticroute implements administrative add/delete of static BIB
// entries.
//
// Both operations assume the caller already holds the owning protocol's
// shard lock: this package never locks anything itself, so each operation
// runs as a single atomic critical section from the caller's perspective.
package staticroute

import (
	"errors"
	"fmt"

	"github.com/nat64io/natd/internal/bib"
	"github.com/nat64io/natd/internal/natstate"
	"github.com/nat64io/natd/internal/pool4"
	"github.com/nat64io/natd/internal/session"
)

// AddRequest is the admin-surface request record for Add.
type AddRequest struct {
	Proto natstate.Proto
	V4    natstate.Endpoint
	V6    natstate.Endpoint
}

// Add validates request.V4 against pool4, rejects if either side of the
// pair already appears in table, borrows the exact (address, L4-id) from
// pool, and inserts a static BIB entry.
//
// If the borrow reports the endpoint already taken despite neither BIB
// index showing it, that is a benign race with the filtering path: this
// function surfaces natstate.ErrReinsert rather than asserting an
// invariant violation, and the caller is expected to retry.
func Add(table *bib.Table, pool *pool4.Pool, req AddRequest) (*natstate.BIBEntry, error) {
	if !pool.Contains(req.V4.Addr) {
		return nil, fmt.Errorf("staticroute.Add(v4=%v): address not in pool4: %w", req.V4, natstate.ErrInvalidArg)
	}

	if existing, err := table.GetByV6(req.V6); err == nil {
		return nil, fmt.Errorf("staticroute.Add: %v already mapped to %v: %w", req.V6, existing.V4, natstate.ErrAlreadyExists)
	} else if !errors.Is(err, natstate.ErrNotFound) {
		return nil, fmt.Errorf("staticroute.Add: %w", err)
	}

	if existing, err := table.GetByV4(req.V4); err == nil {
		return nil, fmt.Errorf("staticroute.Add: %v already mapped to %v: %w", req.V4, existing.V6, natstate.ErrAlreadyExists)
	} else if !errors.Is(err, natstate.ErrNotFound) {
		return nil, fmt.Errorf("staticroute.Add: %w", err)
	}

	if err := pool.Get(req.V4); err != nil {
		return nil, fmt.Errorf("staticroute.Add: %v taken from pool4 but absent from BIB, retry: %w", req.V4, natstate.ErrReinsert)
	}

	entry := bib.Create(req.V4, req.V6, true, req.Proto)
	if err := table.Add(entry); err != nil {
		_ = pool.Return(req.V4)
		return nil, fmt.Errorf("staticroute.Add: %w", err)
	}

	return entry, nil
}

// DeleteRequest is the admin-surface request record for Delete; exactly
// one of V4/V6 is consulted, per L3.
type DeleteRequest struct {
	Proto natstate.Proto
	L3    natstate.L3Proto
	V4    natstate.Endpoint
	V6    natstate.Endpoint
}

// Delete looks up the BIB entry named by req (by its v4 or v6 endpoint,
// per req.L3), tears down every session anchored to it -- failing the
// whole operation, with the BIB entry left intact, if any session removal
// fails -- removes the BIB entry, and returns its IPv4 binding to pool.
func Delete(bibTable *bib.Table, sessionTable *session.Table, pool *pool4.Pool, req DeleteRequest) error {
	var entry *natstate.BIBEntry
	var err error
	switch req.L3 {
	case natstate.L3ProtoIPv6:
		entry, err = bibTable.GetByV6(req.V6)
	case natstate.L3ProtoIPv4:
		entry, err = bibTable.GetByV4(req.V4)
	default:
		return fmt.Errorf("staticroute.Delete: unsupported l3_proto %d: %w", req.L3, natstate.ErrInvalidArg)
	}
	if err != nil {
		return fmt.Errorf("staticroute.Delete: %w", err)
	}

	// Copy the session slice: session.Remove mutates entry.Sessions as it
	// goes, so ranging over the live slice would skip entries.
	sessions := make([]*natstate.SessionEntry, len(entry.Sessions))
	copy(sessions, entry.Sessions)
	for _, s := range sessions {
		if err := sessionTable.Remove(s); err != nil {
			return fmt.Errorf("staticroute.Delete: session refused to die: %w", err)
		}
	}

	if err := bibTable.Remove(entry); err != nil {
		return fmt.Errorf("staticroute.Delete: %w", err)
	}

	return pool.Return(entry.V4)
}
