package session_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nat64io/natd/internal/bib"
	"github.com/nat64io/natd/internal/natstate"
	"github.com/nat64io/natd/internal/session"
)

func ep(addr string, id uint16) natstate.Endpoint {
	return natstate.Endpoint{Addr: netip.MustParseAddr(addr), ID: id}
}

const testTimeout = 60 * time.Second

// TestAllow exercises a single UDP session with every endpoint pinned to
// 0.0.0.0#0/::1#334, and four Allow queries whose expected results hinge
// on the remote-port-not-compared rule.
func TestAllow(t *testing.T) {
	bibEntry := bib.Create(ep("0.0.0.0", 0), ep("::1", 334), false, natstate.ProtoUDP)
	table := session.NewTable(natstate.ProtoUDP)

	entry := session.Create(
		natstate.Pair{Local: ep("0.0.0.0", 0), Remote: ep("0.0.0.0", 0)},
		natstate.Pair{Local: ep("::1", 334), Remote: ep("::1", 334)},
		natstate.ProtoUDP,
		bibEntry,
	)
	now := time.Unix(1000, 0)
	require.NoError(t, table.Add(entry, now, testTimeout))

	cases := []struct {
		name string
		t    natstate.Tuple
		want bool
	}{
		{"exact match", natstate.Tuple{Src: ep("0.0.0.0", 0), Dst: ep("0.0.0.0", 0)}, true},
		{"dst port differs", natstate.Tuple{Src: ep("0.0.0.0", 0), Dst: ep("0.0.0.0", 456)}, false},
		{"src port differs, still allowed", natstate.Tuple{Src: ep("0.0.0.0", 456), Dst: ep("0.0.0.0", 0)}, true},
		{"src address differs", natstate.Tuple{Src: ep("1.1.1.1", 0), Dst: ep("0.0.0.0", 0)}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, table.Allow(c.t))
		})
	}
}

func TestAddRemove_KeepsBIBAndFilterIndexConsistent(t *testing.T) {
	bibEntry := bib.Create(ep("203.0.113.1", 1000), ep("64:ff9b::192.0.2.1", 1), false, natstate.ProtoTCP)
	table := session.NewTable(natstate.ProtoTCP)

	entry := session.Create(
		natstate.Pair{Local: ep("203.0.113.1", 1000), Remote: ep("198.51.100.1", 80)},
		natstate.Pair{Local: ep("64:ff9b::192.0.2.1", 1), Remote: ep("64:ff9b::198.51.100.1", 80)},
		natstate.ProtoTCP,
		bibEntry,
	)
	now := time.Unix(2000, 0)
	require.NoError(t, table.Add(entry, now, testTimeout))
	assert.Len(t, bibEntry.Sessions, 1)
	assert.True(t, table.Allow(natstate.Tuple{Src: ep("198.51.100.1", 9999), Dst: ep("203.0.113.1", 1000)}))

	require.NoError(t, table.Remove(entry))
	assert.Empty(t, bibEntry.Sessions)
	assert.False(t, table.Allow(natstate.Tuple{Src: ep("198.51.100.1", 9999), Dst: ep("203.0.113.1", 1000)}))

	_, err := table.GetByV4(natstate.Pair{Local: ep("203.0.113.1", 1000), Remote: ep("198.51.100.1", 80)}, now, testTimeout)
	assert.ErrorIs(t, err, natstate.ErrNotFound)
}

func TestGetByV4_TouchesDeadline(t *testing.T) {
	bibEntry := bib.Create(ep("203.0.113.1", 1), ep("64:ff9b::192.0.2.1", 1), false, natstate.ProtoUDP)
	table := session.NewTable(natstate.ProtoUDP)

	pair4 := natstate.Pair{Local: ep("203.0.113.1", 1), Remote: ep("198.51.100.1", 53)}
	pair6 := natstate.Pair{Local: ep("64:ff9b::192.0.2.1", 1), Remote: ep("64:ff9b::198.51.100.1", 53)}
	entry := session.Create(pair4, pair6, natstate.ProtoUDP, bibEntry)

	t0 := time.Unix(0, 0)
	require.NoError(t, table.Add(entry, t0, testTimeout))
	firstDeadline := entry.DyingTime

	t1 := t0.Add(30 * time.Second)
	got, err := table.GetByV4(pair4, t1, testTimeout)
	require.NoError(t, err)
	assert.Same(t, entry, got)
	assert.True(t, entry.DyingTime.After(firstDeadline))
}

// TestReapExpired_StopsAtFirstUnexpired exercises the FIFO-by-deadline
// reaper contract: entries are reaped in insertion order up to the first
// unexpired entry, and onExpire fires once per reaped session with it
// already fully detached.
func TestReapExpired_StopsAtFirstUnexpired(t *testing.T) {
	table := session.NewTable(natstate.ProtoUDP)
	t0 := time.Unix(0, 0)

	var entries []*natstate.SessionEntry
	for i := 0; i < 3; i++ {
		bibEntry := bib.Create(ep("203.0.113.1", uint16(i+1)), ep("64:ff9b::192.0.2.1", uint16(i+1)), false, natstate.ProtoUDP)
		e := session.Create(
			natstate.Pair{Local: ep("203.0.113.1", uint16(i+1)), Remote: ep("198.51.100.1", 1)},
			natstate.Pair{Local: ep("64:ff9b::192.0.2.1", uint16(i+1)), Remote: ep("64:ff9b::198.51.100.1", 1)},
			natstate.ProtoUDP,
			bibEntry,
		)
		require.NoError(t, table.Add(e, t0, time.Duration(i+1)*time.Second))
		entries = append(entries, e)
	}
	require.Equal(t, 3, table.Len())

	var expired []*natstate.SessionEntry
	table.ReapExpired(t0.Add(2500*time.Millisecond), func(s *natstate.SessionEntry) {
		expired = append(expired, s)
	})

	require.Len(t, expired, 2)
	assert.Same(t, entries[0], expired[0])
	assert.Same(t, entries[1], expired[1])
	assert.Equal(t, 1, table.Len())
	assert.Nil(t, entries[0].ExpiryElem())
}

func TestForEach_VisitsEverySessionAndStopsOnError(t *testing.T) {
	table := session.NewTable(natstate.ProtoUDP)
	t0 := time.Unix(0, 0)

	for i := 0; i < 3; i++ {
		bibEntry := bib.Create(ep("203.0.113.1", uint16(i+1)), ep("64:ff9b::192.0.2.1", uint16(i+1)), false, natstate.ProtoUDP)
		e := session.Create(
			natstate.Pair{Local: ep("203.0.113.1", uint16(i+1)), Remote: ep("198.51.100.1", 1)},
			natstate.Pair{Local: ep("64:ff9b::192.0.2.1", uint16(i+1)), Remote: ep("64:ff9b::198.51.100.1", 1)},
			natstate.ProtoUDP,
			bibEntry,
		)
		require.NoError(t, table.Add(e, t0, testTimeout))
	}

	var visited int
	err := table.ForEach(func(*natstate.SessionEntry) error {
		visited++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, visited)

	errStop := assert.AnError
	visited = 0
	err = table.ForEach(func(*natstate.SessionEntry) error {
		visited++
		return errStop
	})
	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, 1, visited)
}
