package adminapi_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nat64io/natd/internal/adminapi"
	"github.com/nat64io/natd/internal/engine"
	"github.com/nat64io/natd/internal/icmpfacade"
	"github.com/nat64io/natd/internal/natstate"
	"github.com/nat64io/natd/internal/pool4"
	"github.com/nat64io/natd/internal/pool6"
)

type noopEmitter struct{}

func (noopEmitter) SendV4(icmpfacade.Fragment, int, int, uint32) error { return nil }
func (noopEmitter) SendV6(icmpfacade.Fragment, int, int, uint32) error { return nil }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	p4, err := pool4.New([]pool4.AddressRange{
		{Addr: netip.MustParseAddr("203.0.113.1"), MinID: 1024, MaxID: 65535, Stride: 1, ShuffleSeed: 3},
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
	e := engine.New(slog.Default(), p4, p6, icmpfacade.New(noopEmitter{}), cfg)

	srv := adminapi.New(e, slog.Default())
	return httptest.NewServer(srv.Handler())
}

func TestAddListDeleteStaticRoute(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	addBody := `{"proto":"tcp","v4":{"addr":"203.0.113.1","id":9556},"v6":{"addr":"::3","id":9556}}`
	resp, err := http.Post(ts.URL+"/v1/static-routes", "application/json", bytes.NewBufferString(addBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	listResp, err := http.Get(ts.URL + "/v1/bib/tcp")
	require.NoError(t, err)
	defer listResp.Body.Close()
	assert.Equal(t, http.StatusOK, listResp.StatusCode)

	var entries []map[string]any
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&entries))
	require.Len(t, entries, 1)

	delBody := `{"proto":"tcp","l3_proto":"ipv6","v6":{"addr":"::3","id":9556}}`
	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/v1/static-routes", bytes.NewBufferString(delBody))
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)

	listResp2, err := http.Get(ts.URL + "/v1/bib/tcp")
	require.NoError(t, err)
	defer listResp2.Body.Close()
	var entries2 []map[string]any
	require.NoError(t, json.NewDecoder(listResp2.Body).Decode(&entries2))
	assert.Empty(t, entries2)
}

func TestAddStaticRoute_UnknownProtoRejected(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	body := `{"proto":"sctp","v4":{"addr":"203.0.113.1","id":1},"v6":{"addr":"::1","id":1}}`
	resp, err := http.Post(ts.URL+"/v1/static-routes", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAddStaticRoute_DuplicateConflicts(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	body := `{"proto":"udp","v4":{"addr":"203.0.113.1","id":2000},"v6":{"addr":"::5","id":2000}}`
	resp1, err := http.Post(ts.URL+"/v1/static-routes", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	resp1.Body.Close()
	assert.Equal(t, http.StatusCreated, resp1.StatusCode)

	resp2, err := http.Post(ts.URL+"/v1/static-routes", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusConflict, resp2.StatusCode)
}

func TestListSessions_EmptyByDefault(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/sessions/udp")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var sessions []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sessions))
	assert.Empty(t, sessions)
}
