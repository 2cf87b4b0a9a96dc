package engine_test

import (
	"log/slog"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nat64io/natd/internal/engine"
	"github.com/nat64io/natd/internal/icmpfacade"
	"github.com/nat64io/natd/internal/natstate"
	"github.com/nat64io/natd/internal/pool4"
	"github.com/nat64io/natd/internal/pool6"
	"github.com/nat64io/natd/internal/staticroute"
)

func ep(addr string, id uint16) natstate.Endpoint {
	return natstate.Endpoint{Addr: netip.MustParseAddr(addr), ID: id}
}

type noopEmitter struct{}

func (noopEmitter) SendV4(icmpfacade.Fragment, int, int, uint32) error { return nil }
func (noopEmitter) SendV6(icmpfacade.Fragment, int, int, uint32) error { return nil }

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	p4, err := pool4.New([]pool4.AddressRange{
		{Addr: netip.MustParseAddr("203.0.113.1"), MinID: 1024, MaxID: 65535, Stride: 1, ShuffleSeed: 7},
	})
	require.NoError(t, err)
	p6 := pool6.New()
	require.NoError(t, p6.Add(netip.MustParsePrefix("64:ff9b::/96")))

	cfg := engine.Config{
		Timeouts: map[natstate.Proto]time.Duration{
			natstate.ProtoUDP:  5 * time.Minute,
			natstate.ProtoTCP:  2 * time.Hour,
			natstate.ProtoICMP: 60 * time.Second,
		},
		ReapInterval: time.Second,
	}
	return engine.New(slog.Default(), p4, p6, icmpfacade.New(noopEmitter{}), cfg)
}

func TestCreateBinding_ThenLookupByBothFamilies(t *testing.T) {
	e := newEngine(t)

	v6Pair := natstate.Pair{
		Local:  ep("64:ff9b::192.0.2.1", 1),
		Remote: ep("64:ff9b::198.51.100.1", 80),
	}
	bibEntry, s, err := e.CreateBinding(natstate.ProtoTCP, v6Pair, nil)
	require.NoError(t, err)
	require.NotNil(t, bibEntry)
	require.NotNil(t, s)

	gotBIB, err := e.BIBGetByV6(natstate.ProtoTCP, v6Pair.Local)
	require.NoError(t, err)
	assert.Same(t, bibEntry, gotBIB)

	gotSession, err := e.SessionGetByV4(natstate.ProtoTCP, natstate.Pair{Local: s.V4Local, Remote: s.V4Remote})
	require.NoError(t, err)
	assert.Same(t, s, gotSession)

	allowed := e.SessionAllow(natstate.Tuple{
		Proto: natstate.ProtoTCP,
		Src:   natstate.Endpoint{Addr: s.V4Remote.Addr, ID: 55555},
		Dst:   s.V4Local,
	})
	assert.True(t, allowed)
}

func TestAddDeleteStaticRoute(t *testing.T) {
	e := newEngine(t)

	v4 := ep("203.0.113.1", 9556)
	v6 := ep("::3", 9556)
	_, err := e.AddStaticRoute(staticroute.AddRequest{Proto: natstate.ProtoTCP, V4: v4, V6: v6})
	require.NoError(t, err)

	err = e.DeleteStaticRoute(staticroute.DeleteRequest{Proto: natstate.ProtoTCP, L3: natstate.L3ProtoIPv6, V6: v6})
	require.NoError(t, err)

	_, err = e.BIBGetByV6(natstate.ProtoTCP, v6)
	assert.ErrorIs(t, err, natstate.ErrNotFound)
}

func TestUnsupportedProtocolRejected(t *testing.T) {
	e := newEngine(t)
	_, err := e.BIBGetByV4(natstate.Proto(99), ep("203.0.113.1", 1))
	assert.ErrorIs(t, err, natstate.ErrInvalidArg)
}
