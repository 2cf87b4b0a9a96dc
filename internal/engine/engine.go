// Package engine is the composition root: it owns the three
// (bib.Table, session.Table) pairs -- one per L4 protocol -- each guarded
// by its own mutex, the pool4/pool6 collaborators, the ICMP façade, and
// the reaper, and exposes the packet-path and control-plane surfaces.
//
// A single coarse lock shared by BIB and Session across all protocols
// would serialize every translated packet through one mutex; sharding by
// L4 protocol gives three-way parallelism as long as a shard never splits
// a protocol's BIB from its own sessions -- exactly what protoState does
// below: one *sync.Mutex per protocol, covering that protocol's bib.Table
// and session.Table together.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/nat64io/natd/internal/bib"
	"github.com/nat64io/natd/internal/icmpfacade"
	"github.com/nat64io/natd/internal/natstate"
	"github.com/nat64io/natd/internal/pool4"
	"github.com/nat64io/natd/internal/pool6"
	"github.com/nat64io/natd/internal/reaper"
	"github.com/nat64io/natd/internal/session"
	"github.com/nat64io/natd/internal/staticroute"
)

// protocols lists the three independent tables the engine always
// maintains.
var protocols = [...]natstate.Proto{natstate.ProtoUDP, natstate.ProtoTCP, natstate.ProtoICMP}

type protoState struct {
	mu      sync.Mutex
	bib     *bib.Table
	session *session.Table
	timeout time.Duration
}

// Config bundles the per-protocol session timeouts and reaper cadence. The
// defaults a control-plane config layer (internal/config) supplies are
// the RFC 6146-recommended values: 5 minutes for UDP, 2 hours for
// established TCP (this engine does not distinguish transitory/
// established, so it uses the conservative established value), 60 seconds
// for ICMP.
type Config struct {
	Timeouts     map[natstate.Proto]time.Duration
	ReapInterval time.Duration
}

// Engine is the sharded BIB/Session composition root.
type Engine struct {
	log    *slog.Logger
	states map[natstate.Proto]*protoState
	pool4  *pool4.Pool
	pool6  *pool6.Pool
	icmp   *icmpfacade.Facade
	cfg    Config
}

// New builds an Engine with one empty BIB/Session pair per protocol.
func New(log *slog.Logger, p4 *pool4.Pool, p6 *pool6.Pool, icmp *icmpfacade.Facade, cfg Config) *Engine {
	states := make(map[natstate.Proto]*protoState, len(protocols))
	for _, proto := range protocols {
		states[proto] = &protoState{
			bib:     bib.NewTable(proto),
			session: session.NewTable(proto),
			timeout: cfg.Timeouts[proto],
		}
	}
	return &Engine{log: log, states: states, pool4: p4, pool6: p6, icmp: icmp, cfg: cfg}
}

// extractV4 recovers the real IPv4 peer address embedded in a NAT64
// address under the engine's active pool6 prefix (RFC 6052).
func (e *Engine) extractV4(v6Addr netip.Addr) (netip.Addr, error) {
	prefix, err := e.pool6.Get()
	if err != nil {
		return netip.Addr{}, fmt.Errorf("no active pool6 prefix: %w", err)
	}
	return pool6.Extract(prefix, v6Addr)
}

func (e *Engine) state(proto natstate.Proto) (*protoState, error) {
	st, ok := e.states[proto]
	if !ok {
		return nil, fmt.Errorf("engine: unsupported protocol %v: %w", proto, natstate.ErrInvalidArg)
	}
	return st, nil
}

// BIBGetByV4 is the packet-path surface for looking up a BIB entry by its
// IPv4 endpoint.
func (e *Engine) BIBGetByV4(proto natstate.Proto, v4 natstate.Endpoint) (*natstate.BIBEntry, error) {
	st, err := e.state(proto)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.bib.GetByV4(v4)
}

// BIBGetByV6 is the packet-path surface for looking up a BIB entry by its
// IPv6 endpoint.
func (e *Engine) BIBGetByV6(proto natstate.Proto, v6 natstate.Endpoint) (*natstate.BIBEntry, error) {
	st, err := e.state(proto)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.bib.GetByV6(v6)
}

// SessionGetByV4 is the packet-path surface for looking up a session by
// its IPv4-side pair.
func (e *Engine) SessionGetByV4(proto natstate.Proto, pair natstate.Pair) (*natstate.SessionEntry, error) {
	st, err := e.state(proto)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.session.GetByV4(pair, time.Now(), st.timeout)
}

// SessionGetByV6 is the packet-path surface for looking up a session by
// its IPv6-side pair.
func (e *Engine) SessionGetByV6(proto natstate.Proto, pair natstate.Pair) (*natstate.SessionEntry, error) {
	st, err := e.state(proto)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.session.GetByV6(pair, time.Now(), st.timeout)
}

// SessionAllow is the packet-path surface implementing address-dependent
// filtering for inbound traffic.
func (e *Engine) SessionAllow(tuple natstate.Tuple) bool {
	st, err := e.state(tuple.Proto)
	if err != nil {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.session.Allow(tuple)
}

// CreateBinding adds a session for v6Pair together with the BIB entry it
// is anchored to, in one step. Callers decide when to call it, typically
// after BIBGetByV6/SessionGetByV6 miss. reuse names an existing BIB entry
// to anchor the session to (e.g. when a BIB entry already exists for this
// v6 endpoint on another session); pass nil to borrow a fresh IPv4
// endpoint from pool4 and add a new BIB entry for v6Pair.Local.
func (e *Engine) CreateBinding(proto natstate.Proto, v6Pair natstate.Pair, reuse *natstate.BIBEntry) (*natstate.BIBEntry, *natstate.SessionEntry, error) {
	st, err := e.state(proto)
	if err != nil {
		return nil, nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	entry := reuse
	if entry == nil {
		v4, err := e.pool4.GetAny()
		if err != nil {
			return nil, nil, fmt.Errorf("engine.CreateBinding: %w", err)
		}
		entry = bib.Create(v4, v6Pair.Local, false, proto)
		if err := st.bib.Add(entry); err != nil {
			_ = e.pool4.Return(v4)
			return nil, nil, fmt.Errorf("engine.CreateBinding: %w", err)
		}
	}

	remoteV4Addr, err := e.extractV4(v6Pair.Remote.Addr)
	if err != nil {
		return nil, nil, fmt.Errorf("engine.CreateBinding: %w", err)
	}
	v4Pair := natstate.Pair{
		Local:  entry.V4,
		Remote: natstate.Endpoint{Addr: remoteV4Addr, ID: v6Pair.Remote.ID},
	}
	s := session.Create(v4Pair, v6Pair, proto, entry)
	if err := st.session.Add(s, time.Now(), st.timeout); err != nil {
		return nil, nil, fmt.Errorf("engine.CreateBinding: %w", err)
	}
	return entry, s, nil
}

// ListBindings returns every BIB entry currently held for proto, in
// ascending IPv6-endpoint order, for internal/adminapi's list-bib surface.
func (e *Engine) ListBindings(proto natstate.Proto) ([]*natstate.BIBEntry, error) {
	st, err := e.state(proto)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	var out []*natstate.BIBEntry
	_ = st.bib.All(func(entry *natstate.BIBEntry) error {
		out = append(out, entry)
		return nil
	})
	return out, nil
}

// ListSessions returns every session currently held for proto, in no
// particular order, for internal/adminapi's list-sessions surface.
func (e *Engine) ListSessions(proto natstate.Proto) ([]*natstate.SessionEntry, error) {
	st, err := e.state(proto)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	var out []*natstate.SessionEntry
	_ = st.session.ForEach(func(entry *natstate.SessionEntry) error {
		out = append(out, entry)
		return nil
	})
	return out, nil
}

// ICMPSend is the packet-path surface for emitting an ICMP error reply.
func (e *Engine) ICMPSend(frag icmpfacade.Fragment, kind icmpfacade.ErrorKind, info uint32) error {
	return e.icmp.Send(frag, kind, info)
}

// AddStaticRoute is the control-plane surface for pinning a static BIB
// entry.
func (e *Engine) AddStaticRoute(req staticroute.AddRequest) (*natstate.BIBEntry, error) {
	st, err := e.state(req.Proto)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return staticroute.Add(st.bib, e.pool4, req)
}

// DeleteStaticRoute is the control-plane surface for removing a static
// BIB entry.
func (e *Engine) DeleteStaticRoute(req staticroute.DeleteRequest) error {
	st, err := e.state(req.Proto)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return staticroute.Delete(st.bib, st.session, e.pool4, req)
}

// StartReaper runs one expiry sweep loop covering every protocol in the
// calling goroutine and blocks until ctx is canceled; run it in its own
// goroutine from the daemon entry point. Each protocol's sweep takes only that protocol's own
// shard lock, matching the per-protocol sharding described on Engine.
func (e *Engine) StartReaper(ctx context.Context) {
	tables := make([]reaper.ProtoTables, 0, len(protocols))
	for _, proto := range protocols {
		st := e.states[proto]
		tables = append(tables, reaper.ProtoTables{
			Proto:   proto,
			BIB:     st.bib,
			Session: st.session,
			Pool:    e.pool4,
			Locker:  &st.mu,
		})
	}

	r := reaper.New(e.log, e.cfg.ReapInterval, tables...)
	r.Run(ctx)
}
