package natstate

import (
	"container/list"
	"time"
)

// BIBEntry is one Binding Information Base entry: the mapping between one
// IPv6 transport endpoint and one borrowed IPv4 transport endpoint.
//
// BIBEntry owns its sessions as a slice of pointers, and SessionEntry.BIB is
// a plain (non-owning, in the sense that removing a session never frees the
// BIB) pointer back. The invariant that sessions are destroyed before their
// owning BIB entry is enforced by Table.Remove's precondition rather than a
// generation counter.
type BIBEntry struct {
	V4       Endpoint
	V6       Endpoint
	Static   bool
	Proto    Proto
	Sessions []*SessionEntry
}

// RemoveSession detaches s from this entry's session list. It is a no-op if
// s is not present.
func (b *BIBEntry) RemoveSession(s *SessionEntry) {
	for i, cur := range b.Sessions {
		if cur == s {
			b.Sessions = append(b.Sessions[:i], b.Sessions[i+1:]...)
			return
		}
	}
}

// SessionEntry is a single flow anchored to a BIB entry.
type SessionEntry struct {
	V6Remote Endpoint
	V6Local  Endpoint
	V4Local  Endpoint
	V4Remote Endpoint
	Proto    Proto

	// DyingTime is the monotonic deadline after which the reaper evicts
	// this session.
	DyingTime time.Time

	// BIB is the owning BIB entry. Non-owning in the sense described on
	// BIBEntry; always valid for the session's lifetime.
	BIB *BIBEntry

	// expiryElem is this session's node in the global expiry-ordered list.
	// Unexported: only internal/session mutates list membership.
	expiryElem *list.Element
}

// ExpiryElem returns the session's node in the global expiry list, or nil
// if it is not currently a member of one.
func (s *SessionEntry) ExpiryElem() *list.Element { return s.expiryElem }

// SetExpiryElem records the session's node in the global expiry list.
// Exported for internal/session, which owns the list itself.
func (s *SessionEntry) SetExpiryElem(e *list.Element) { s.expiryElem = e }
