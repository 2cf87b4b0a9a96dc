package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nat64io/natd/cmd/natctl/client"
)

// parseEndpoint parses an "addr:id" flag value (e.g. "203.0.113.1:5000" or
// "64:ff9b::192.0.2.1:443") into a client.Endpoint. The id is always the
// substring after the last colon, since IPv6 addresses themselves contain
// colons.
func parseEndpoint(s string) (client.Endpoint, error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return client.Endpoint{}, fmt.Errorf("expected addr:id, got %q", s)
	}

	addr, idStr := s[:idx], s[idx+1:]
	id, err := strconv.ParseUint(idStr, 10, 16)
	if err != nil {
		return client.Endpoint{}, fmt.Errorf("parse id in %q: %w", s, err)
	}

	return client.Endpoint{Addr: addr, ID: uint16(id)}, nil
}
