package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/nat64io/natd/internal/metrics"
	"github.com/nat64io/natd/internal/natstate"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	if c.BIBEntries == nil {
		t.Error("BIBEntries is nil")
	}
	if c.Sessions == nil {
		t.Error("Sessions is nil")
	}
	if c.SessionsCreated == nil {
		t.Error("SessionsCreated is nil")
	}
	if c.SessionsExpired == nil {
		t.Error("SessionsExpired is nil")
	}
	if c.Pool4Borrowed == nil {
		t.Error("Pool4Borrowed is nil")
	}
	if c.FilterDecisions == nil {
		t.Error("FilterDecisions is nil")
	}
	if c.Errors == nil {
		t.Error("Errors is nil")
	}
	if c.ICMPErrorsSent == nil {
		t.Error("ICMPErrorsSent is nil")
	}

	// Verify all metrics are registered by gathering them.
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	_ = families
}

func TestSetBIBEntriesAndSessions(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.SetBIBEntries(natstate.ProtoTCP, 3)
	if v := gaugeValue(t, c.BIBEntries, "tcp"); v != 3 {
		t.Errorf("BIBEntries(tcp) = %v, want 3", v)
	}

	c.SetSessions(natstate.ProtoUDP, 7)
	if v := gaugeValue(t, c.Sessions, "udp"); v != 7 {
		t.Errorf("Sessions(udp) = %v, want 7", v)
	}

	c.SetBIBEntries(natstate.ProtoTCP, 1)
	if v := gaugeValue(t, c.BIBEntries, "tcp"); v != 1 {
		t.Errorf("BIBEntries(tcp) after re-set = %v, want 1", v)
	}
}

func TestIncSessionsCreatedAndExpired(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.IncSessionsCreated(natstate.ProtoTCP)
	c.IncSessionsCreated(natstate.ProtoTCP)
	c.IncSessionsExpired(natstate.ProtoTCP)

	if v := counterValue(t, c.SessionsCreated, "tcp"); v != 2 {
		t.Errorf("SessionsCreated(tcp) = %v, want 2", v)
	}
	if v := counterValue(t, c.SessionsExpired, "tcp"); v != 1 {
		t.Errorf("SessionsExpired(tcp) = %v, want 1", v)
	}
}

func TestRecordFilterDecision(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.RecordFilterDecision(natstate.ProtoUDP, true)
	c.RecordFilterDecision(natstate.ProtoUDP, true)
	c.RecordFilterDecision(natstate.ProtoUDP, false)

	if v := counterValue(t, c.FilterDecisions, "udp", "allowed"); v != 2 {
		t.Errorf("FilterDecisions(udp, allowed) = %v, want 2", v)
	}
	if v := counterValue(t, c.FilterDecisions, "udp", "denied"); v != 1 {
		t.Errorf("FilterDecisions(udp, denied) = %v, want 1", v)
	}
}

func TestIncErrorAndICMPErrorSent(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.IncError(natstate.ProtoTCP, natstate.CodeNotFound)
	if v := counterValue(t, c.Errors, "tcp", natstate.CodeNotFound.String()); v != 1 {
		t.Errorf("Errors(tcp, NotFound) = %v, want 1", v)
	}

	c.IncICMPErrorSent("no_route")
	if v := counterValue(t, c.ICMPErrorsSent, "no_route"); v != 1 {
		t.Errorf("ICMPErrorsSent(no_route) = %v, want 1", v)
	}
}

// gaugeValue reads the current value of a labeled child of a GaugeVec.
func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := vec.WithLabelValues(labels...).Write(m); err != nil {
		t.Fatalf("write gauge metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

// counterValue reads the current value of a labeled child of a CounterVec.
func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := vec.WithLabelValues(labels...).Write(m); err != nil {
		t.Fatalf("write counter metric: %v", err)
	}
	return m.GetCounter().GetValue()
}
