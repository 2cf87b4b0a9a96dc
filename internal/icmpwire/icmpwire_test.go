package icmpwire_test

import (
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nat64io/natd/internal/icmpwire"
	"github.com/nat64io/natd/internal/natstate"
)

type fakeFragment struct {
	buf   []byte
	iface *net.Interface
	proto natstate.L3Proto
}

func (f fakeFragment) OriginalBuffer() []byte    { return f.buf }
func (f fakeFragment) Interface() *net.Interface { return f.iface }
func (f fakeFragment) L3Proto() natstate.L3Proto { return f.proto }

// TestSendV4_NoSocketSurfacesError exercises the no-privilege path: a Wire
// built without a raw ICMPv4 socket reports an error rather than
// panicking, so a caller without CAP_NET_RAW degrades to a log line
// instead of a crash.
func TestSendV4_NoSocketSurfacesError(t *testing.T) {
	w := icmpwire.New(slog.Default(), nil, nil)
	frag := fakeFragment{
		buf:   make([]byte, 20),
		iface: &net.Interface{Name: "eth0"},
		proto: natstate.L3ProtoIPv4,
	}
	err := w.SendV4(frag, 11, 0, 0)
	require.Error(t, err)
}

func TestSendV6_NoSocketSurfacesError(t *testing.T) {
	w := icmpwire.New(slog.Default(), nil, nil)
	frag := fakeFragment{
		buf:   make([]byte, 40),
		iface: &net.Interface{Name: "eth0"},
		proto: natstate.L3ProtoIPv6,
	}
	err := w.SendV6(frag, 3, 0, 0)
	require.Error(t, err)
}

func TestClose_NoopOnNilConns(t *testing.T) {
	w := icmpwire.New(slog.Default(), nil, nil)
	assert.NoError(t, w.Close())
}
