// Package reaper implements the timer-driven session expiry sweep: a
// ticker-driven goroutine that walks each protocol's session expiry list,
// and for every session it deletes, removes the owning BIB entry (and
// returns its IPv4 endpoint to pool4) if that removal just emptied the
// entry's session list and the entry is not static.
//
// Built as a context-cancellable loop around a time.Ticker, started and
// stopped by the composition root (internal/engine).
package reaper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nat64io/natd/internal/bib"
	"github.com/nat64io/natd/internal/natstate"
	"github.com/nat64io/natd/internal/pool4"
	"github.com/nat64io/natd/internal/session"
)

// ProtoTables bundles one protocol's BIB and Session tables, the pool4 its
// BIB entries' IPv4 endpoints were borrowed from, and the lock guarding
// that protocol's shard. The reaper never chooses which pool4
// instance an endpoint belongs to; the caller supplies exactly the pool4 a
// session's BIB entry addresses were drawn from.
type ProtoTables struct {
	Proto   natstate.Proto
	BIB     *bib.Table
	Session *session.Table
	Pool    *pool4.Pool
	Locker  sync.Locker
}

// Reaper periodically sweeps every protocol's session expiry list.
type Reaper struct {
	log      *slog.Logger
	interval time.Duration
	tables   []ProtoTables
}

// New builds a Reaper over the given per-protocol tables.
func New(log *slog.Logger, interval time.Duration, tables ...ProtoTables) *Reaper {
	return &Reaper{log: log, interval: interval, tables: tables}
}

// Run blocks, sweeping every interval until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.sweepOnce(now)
		}
	}
}

func (r *Reaper) sweepOnce(now time.Time) {
	for _, pt := range r.tables {
		pt.Locker.Lock()
		pt.Session.ReapExpired(now, func(s *natstate.SessionEntry) {
			r.onSessionExpired(pt, s)
		})
		pt.Locker.Unlock()
	}
}

func (r *Reaper) onSessionExpired(pt ProtoTables, s *natstate.SessionEntry) {
	r.log.Debug("reaper: session expired",
		"proto", pt.Proto,
		"v4_local", s.V4Local,
		"v4_remote", s.V4Remote,
	)

	entry := s.BIB
	if entry == nil || entry.Static || len(entry.Sessions) != 0 {
		return
	}

	if err := pt.BIB.Remove(entry); err != nil {
		r.log.Error("reaper: failed to remove orphaned BIB entry", "proto", pt.Proto, "v6", entry.V6, "error", err)
		return
	}
	if err := pt.Pool.Return(entry.V4); err != nil {
		r.log.Error("reaper: failed to return IPv4 endpoint to pool4", "proto", pt.Proto, "v4", entry.V4, "error", err)
	}
}
