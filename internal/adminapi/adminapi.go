// Package adminapi is natd's control-plane surface: a small JSON HTTP API
// exposing static-route administration and read-only BIB/session listing,
// routed with gorilla/mux instead of a generated ConnectRPC service (no
// protobuf stubs are available for this control plane). The shape still
// follows a ConnectRPC-style service: one handler struct wrapping the
// domain engine, a request record per operation, and a sentinel-error to
// status-code mapping in place of a sentinel-to-connect-code mapping.
package adminapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/gorilla/mux"

	"github.com/nat64io/natd/internal/engine"
	"github.com/nat64io/natd/internal/natstate"
	"github.com/nat64io/natd/internal/staticroute"
)

// Sentinel errors for the adminapi package.
var (
	// ErrUnknownProto indicates an unrecognized {proto} path parameter.
	ErrUnknownProto = errors.New("unknown protocol, expected udp, tcp, or icmp")

	// ErrUnknownL3Proto indicates an unrecognized l3_proto field.
	ErrUnknownL3Proto = errors.New("unknown l3_proto, expected ipv4 or ipv6")
)

// Server adapts internal/engine.Engine to JSON HTTP.
type Server struct {
	engine *engine.Engine
	log    *slog.Logger
}

// New creates a Server wrapping e.
func New(e *engine.Engine, log *slog.Logger) *Server {
	return &Server{engine: e, log: log.With(slog.String("component", "adminapi"))}
}

// Handler builds the gorilla/mux router for the admin HTTP surface.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/v1/static-routes", s.handleAddStaticRoute).Methods(http.MethodPost)
	r.HandleFunc("/v1/static-routes", s.handleDeleteStaticRoute).Methods(http.MethodDelete)
	r.HandleFunc("/v1/bib/{proto}", s.handleListBIB).Methods(http.MethodGet)
	r.HandleFunc("/v1/sessions/{proto}", s.handleListSessions).Methods(http.MethodGet)
	return r
}

// -------------------------------------------------------------------------
// Wire types
// -------------------------------------------------------------------------

type endpointWire struct {
	Addr string `json:"addr"`
	ID   uint16 `json:"id"`
}

func (e endpointWire) toEndpoint() (natstate.Endpoint, error) {
	addr, err := netip.ParseAddr(e.Addr)
	if err != nil {
		return natstate.Endpoint{}, fmt.Errorf("parse addr %q: %w", e.Addr, err)
	}
	return natstate.Endpoint{Addr: addr, ID: e.ID}, nil
}

func endpointToWire(e natstate.Endpoint) endpointWire {
	return endpointWire{Addr: e.Addr.String(), ID: e.ID}
}

type addStaticRouteRequest struct {
	Proto string       `json:"proto"`
	V4    endpointWire `json:"v4"`
	V6    endpointWire `json:"v6"`
}

type deleteStaticRouteRequest struct {
	Proto string       `json:"proto"`
	L3    string       `json:"l3_proto"`
	V4    endpointWire `json:"v4,omitempty"`
	V6    endpointWire `json:"v6,omitempty"`
}

type bibEntryWire struct {
	V4     endpointWire `json:"v4"`
	V6     endpointWire `json:"v6"`
	Static bool         `json:"static"`
}

func bibEntryToWire(e *natstate.BIBEntry) bibEntryWire {
	return bibEntryWire{V4: endpointToWire(e.V4), V6: endpointToWire(e.V6), Static: e.Static}
}

type sessionWire struct {
	V4Local  endpointWire `json:"v4_local"`
	V4Remote endpointWire `json:"v4_remote"`
	V6Local  endpointWire `json:"v6_local"`
	V6Remote endpointWire `json:"v6_remote"`
}

func sessionToWire(s *natstate.SessionEntry) sessionWire {
	return sessionWire{
		V4Local:  endpointToWire(s.V4Local),
		V4Remote: endpointToWire(s.V4Remote),
		V6Local:  endpointToWire(s.V6Local),
		V6Remote: endpointToWire(s.V6Remote),
	}
}

// -------------------------------------------------------------------------
// Handlers
// -------------------------------------------------------------------------

func (s *Server) handleAddStaticRoute(w http.ResponseWriter, r *http.Request) {
	var req addStaticRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	proto, err := parseProto(req.Proto)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	v4, err := req.V4.toEndpoint()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	v6, err := req.V6.toEndpoint()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	entry, err := s.engine.AddStaticRoute(staticroute.AddRequest{Proto: proto, V4: v4, V6: v6})
	if err != nil {
		s.log.Error("add static route failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusCreated, bibEntryToWire(entry))
}

func (s *Server) handleDeleteStaticRoute(w http.ResponseWriter, r *http.Request) {
	var req deleteStaticRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	proto, err := parseProto(req.Proto)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	l3, err := parseL3Proto(req.L3)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	delReq := staticroute.DeleteRequest{Proto: proto, L3: l3}
	switch l3 {
	case natstate.L3ProtoIPv4:
		v4, err := req.V4.toEndpoint()
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		delReq.V4 = v4
	case natstate.L3ProtoIPv6:
		v6, err := req.V6.toEndpoint()
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		delReq.V6 = v6
	}

	if err := s.engine.DeleteStaticRoute(delReq); err != nil {
		s.log.Error("delete static route failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListBIB(w http.ResponseWriter, r *http.Request) {
	proto, err := parseProto(mux.Vars(r)["proto"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	entries, err := s.engine.ListBindings(proto)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	wire := make([]bibEntryWire, 0, len(entries))
	for _, e := range entries {
		wire = append(wire, bibEntryToWire(e))
	}
	writeJSON(w, http.StatusOK, wire)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	proto, err := parseProto(mux.Vars(r)["proto"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sessions, err := s.engine.ListSessions(proto)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	wire := make([]sessionWire, 0, len(sessions))
	for _, sess := range sessions {
		wire = append(wire, sessionToWire(sess))
	}
	writeJSON(w, http.StatusOK, wire)
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func parseProto(s string) (natstate.Proto, error) {
	switch s {
	case "udp":
		return natstate.ProtoUDP, nil
	case "tcp":
		return natstate.ProtoTCP, nil
	case "icmp":
		return natstate.ProtoICMP, nil
	default:
		return 0, fmt.Errorf("%q: %w", s, ErrUnknownProto)
	}
}

func parseL3Proto(s string) (natstate.L3Proto, error) {
	switch s {
	case "ipv4":
		return natstate.L3ProtoIPv4, nil
	case "ipv6":
		return natstate.L3ProtoIPv6, nil
	default:
		return 0, fmt.Errorf("%q: %w", s, ErrUnknownL3Proto)
	}
}

// statusFor maps a natstate error to an HTTP status code.
func statusFor(err error) int {
	switch natstate.ClassifyCode(err) {
	case natstate.CodeNotFound:
		return http.StatusNotFound
	case natstate.CodeAlreadyExists:
		return http.StatusConflict
	case natstate.CodeReinsert:
		return http.StatusConflict
	case natstate.CodeExhausted:
		return http.StatusServiceUnavailable
	case natstate.CodeOverflow:
		return http.StatusServiceUnavailable
	case natstate.CodeInvalidArg:
		return http.StatusBadRequest
	case natstate.CodeAllocFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
