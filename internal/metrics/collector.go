// Package metrics exposes BIB/session/pool metrics for natd: one Collector
// struct of pre-built prometheus.*Vec metrics, registered once against a
// prometheus.Registerer and updated in place as BIB entries, sessions, and
// pool4 borrows come and go.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nat64io/natd/internal/natstate"
)

const (
	namespace = "natd"
	subsystem = "nat64"
)

// Label names for NAT64 state-plane metrics.
const (
	labelProto = "proto"
	labelKind  = "kind" // a natstate.Code wire name: "NotFound", "AlreadyExists", "Reinsert", "Exhausted", "Overflow", ...
)

// Collector holds all NAT64 session/binding Prometheus metrics.
type Collector struct {
	// BIBEntries tracks the number of currently active BIB entries, per protocol.
	BIBEntries *prometheus.GaugeVec

	// Sessions tracks the number of currently active sessions, per protocol.
	Sessions *prometheus.GaugeVec

	// SessionsCreated counts sessions created, per protocol.
	SessionsCreated *prometheus.CounterVec

	// SessionsExpired counts sessions reaped on expiry, per protocol.
	SessionsExpired *prometheus.CounterVec

	// Pool4Borrowed tracks the number of currently borrowed pool4 endpoints,
	// per protocol.
	Pool4Borrowed *prometheus.GaugeVec

	// FilterDecisions counts session_allow outcomes, labeled allowed/denied,
	// per protocol.
	FilterDecisions *prometheus.CounterVec

	// Errors counts operation failures by stable error kind, per protocol --
	// mirrors the error taxonomy in internal/natstate.
	Errors *prometheus.CounterVec

	// ICMPErrorsSent counts ICMP error messages successfully emitted by
	// internal/icmpfacade, labeled by error kind.
	ICMPErrorsSent *prometheus.CounterVec
}

// NewCollector creates a Collector with all metrics registered against reg.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.BIBEntries,
		c.Sessions,
		c.SessionsCreated,
		c.SessionsExpired,
		c.Pool4Borrowed,
		c.FilterDecisions,
		c.Errors,
		c.ICMPErrorsSent,
	)

	return c
}

func newMetrics() *Collector {
	protoLabels := []string{labelProto}
	errorLabels := []string{labelProto, labelKind}

	return &Collector{
		BIBEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bib_entries",
			Help:      "Number of currently active BIB entries.",
		}, protoLabels),

		Sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions",
			Help:      "Number of currently active sessions.",
		}, protoLabels),

		SessionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_created_total",
			Help:      "Total sessions created.",
		}, protoLabels),

		SessionsExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_expired_total",
			Help:      "Total sessions reaped on expiry.",
		}, protoLabels),

		Pool4Borrowed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pool4_borrowed",
			Help:      "Number of currently borrowed pool4 (address, L4-id) endpoints.",
		}, protoLabels),

		FilterDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "filter_decisions_total",
			Help:      "Total session_allow decisions, labeled by outcome.",
		}, []string{labelProto, "outcome"}),

		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total operation failures by stable error kind.",
		}, errorLabels),

		ICMPErrorsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "icmp_errors_sent_total",
			Help:      "Total ICMP/ICMPv6 error messages emitted, labeled by kind.",
		}, []string{"kind"}),
	}
}

// SetBIBEntries records the current BIB entry count for proto.
func (c *Collector) SetBIBEntries(proto natstate.Proto, count int) {
	c.BIBEntries.WithLabelValues(proto.String()).Set(float64(count))
}

// SetSessions records the current session count for proto.
func (c *Collector) SetSessions(proto natstate.Proto, count int) {
	c.Sessions.WithLabelValues(proto.String()).Set(float64(count))
}

// IncSessionsCreated increments the sessions-created counter for proto.
func (c *Collector) IncSessionsCreated(proto natstate.Proto) {
	c.SessionsCreated.WithLabelValues(proto.String()).Inc()
}

// IncSessionsExpired increments the sessions-expired counter for proto.
func (c *Collector) IncSessionsExpired(proto natstate.Proto) {
	c.SessionsExpired.WithLabelValues(proto.String()).Inc()
}

// SetPool4Borrowed records the current pool4-borrowed count for proto.
func (c *Collector) SetPool4Borrowed(proto natstate.Proto, count int) {
	c.Pool4Borrowed.WithLabelValues(proto.String()).Set(float64(count))
}

// RecordFilterDecision increments the filter-decision counter for proto,
// labeled by whether the packet was allowed.
func (c *Collector) RecordFilterDecision(proto natstate.Proto, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	c.FilterDecisions.WithLabelValues(proto.String(), outcome).Inc()
}

// IncError increments the error counter for proto, labeled by kind (a
// natstate.Code's wire name).
func (c *Collector) IncError(proto natstate.Proto, kind natstate.Code) {
	c.Errors.WithLabelValues(proto.String(), kind.String()).Inc()
}

// IncICMPErrorSent increments the ICMP error counter for the given kind.
func (c *Collector) IncICMPErrorSent(kind string) {
	c.ICMPErrorsSent.WithLabelValues(kind).Inc()
}
