package pool6_test

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nat64io/natd/internal/natstate"
	"github.com/nat64io/natd/internal/pool6"
)

func TestAddContainsPeekCount(t *testing.T) {
	p := pool6.New()
	assert.Equal(t, 0, p.Count())

	prefix := netip.MustParsePrefix("64:ff9b::/96")
	require.NoError(t, p.Add(prefix))
	assert.Equal(t, 1, p.Count())

	got, err := p.Peek()
	require.NoError(t, err)
	assert.Equal(t, prefix, got)

	assert.True(t, p.Contains(netip.MustParseAddr("64:ff9b::192.0.2.1")))
	assert.False(t, p.Contains(netip.MustParseAddr("2001:db8::1")))

	err = p.Add(prefix)
	assert.ErrorIs(t, err, natstate.ErrAlreadyExists)
}

func TestForEach_OrderAndEarlyStop(t *testing.T) {
	p := pool6.New()
	prefixes := []netip.Prefix{
		netip.MustParsePrefix("64:ff9b::/96"),
		netip.MustParsePrefix("2001:db8:1::/96"),
		netip.MustParsePrefix("2001:db8:2::/96"),
	}
	for _, prefix := range prefixes {
		require.NoError(t, p.Add(prefix))
	}

	var seen []netip.Prefix
	err := p.ForEach(func(prefix netip.Prefix) error {
		seen = append(seen, prefix)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, prefixes, seen)

	sentinel := errors.New("stop")
	seen = nil
	err = p.ForEach(func(prefix netip.Prefix) error {
		seen = append(seen, prefix)
		if len(seen) == 2 {
			return sentinel
		}
		return nil
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Len(t, seen, 2)
}

func TestEmbedExtract_RoundTrip96(t *testing.T) {
	prefix := netip.MustParsePrefix("64:ff9b::/96")
	v4 := netip.MustParseAddr("192.0.2.33")

	v6, err := pool6.Embed(prefix, v4)
	require.NoError(t, err)
	assert.Equal(t, "64:ff9b::c000:221", v6.String())

	back, err := pool6.Extract(prefix, v6)
	require.NoError(t, err)
	assert.Equal(t, v4, back)
}

func TestEmbedExtract_RoundTripAllWellKnownLengths(t *testing.T) {
	v4 := netip.MustParseAddr("203.0.113.77")
	for _, bits := range []int{32, 40, 48, 56, 64, 96} {
		prefix := netip.PrefixFrom(netip.MustParseAddr("2001:db8::"), bits)
		v6, err := pool6.Embed(prefix, v4)
		require.NoError(t, err, "bits=%d", bits)

		back, err := pool6.Extract(prefix, v6)
		require.NoError(t, err, "bits=%d", bits)
		assert.Equal(t, v4, back, "bits=%d", bits)
	}
}

func TestEmbed_RejectsNonIPv4(t *testing.T) {
	_, err := pool6.Embed(netip.MustParsePrefix("64:ff9b::/96"), netip.MustParseAddr("::1"))
	assert.ErrorIs(t, err, natstate.ErrInvalidArg)
}
