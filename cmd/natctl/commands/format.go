package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/nat64io/natd/cmd/natctl/client"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatBIBEntries renders a slice of BIB entries in the requested format.
func formatBIBEntries(entries []client.BIBEntry, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(bibEntriesToView(entries))
	case formatTable:
		return formatBIBEntriesTable(entries), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatSessions renders a slice of sessions in the requested format.
func formatSessions(sessions []client.Session, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(sessionsToView(sessions))
	case formatTable:
		return formatSessionsTable(sessions), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatBIBEntry renders a single BIB entry in the requested format.
func formatBIBEntry(entry *client.BIBEntry, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(bibEntryToView(entry))
	case formatTable:
		return formatBIBEntriesTable([]client.BIBEntry{*entry}), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// --- Table formatters ---

func formatBIBEntriesTable(entries []client.BIBEntry) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "V4-ADDR\tV4-ID\tV6-ADDR\tV6-ID\tSTATIC")

	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%t\n",
			e.V4.Addr, e.V4.ID, e.V6.Addr, e.V6.ID, e.Static)
	}

	_ = w.Flush()
	return buf.String()
}

func formatSessionsTable(sessions []client.Session) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "V4-LOCAL\tV4-REMOTE\tV6-LOCAL\tV6-REMOTE")

	for _, s := range sessions {
		fmt.Fprintf(w, "%s:%d\t%s:%d\t%s:%d\t%s:%d\n",
			s.V4Local.Addr, s.V4Local.ID,
			s.V4Remote.Addr, s.V4Remote.ID,
			s.V6Local.Addr, s.V6Local.ID,
			s.V6Remote.Addr, s.V6Remote.ID,
		)
	}

	_ = w.Flush()
	return buf.String()
}

// --- JSON formatters ---

func formatJSONValue(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal to JSON: %w", err)
	}
	return string(data), nil
}

// --- View types for clean JSON output ---

type endpointView struct {
	Addr string `json:"addr"`
	ID   uint16 `json:"id"`
}

func endpointToView(e client.Endpoint) endpointView {
	return endpointView{Addr: e.Addr, ID: e.ID}
}

type bibEntryView struct {
	V4     endpointView `json:"v4"`
	V6     endpointView `json:"v6"`
	Static bool         `json:"static"`
}

func bibEntryToView(e *client.BIBEntry) *bibEntryView {
	return &bibEntryView{V4: endpointToView(e.V4), V6: endpointToView(e.V6), Static: e.Static}
}

func bibEntriesToView(entries []client.BIBEntry) []*bibEntryView {
	views := make([]*bibEntryView, 0, len(entries))
	for _, e := range entries {
		entry := e
		views = append(views, bibEntryToView(&entry))
	}
	return views
}

type sessionView struct {
	V4Local  endpointView `json:"v4_local"`
	V4Remote endpointView `json:"v4_remote"`
	V6Local  endpointView `json:"v6_local"`
	V6Remote endpointView `json:"v6_remote"`
}

func sessionToView(s *client.Session) *sessionView {
	return &sessionView{
		V4Local:  endpointToView(s.V4Local),
		V4Remote: endpointToView(s.V4Remote),
		V6Local:  endpointToView(s.V6Local),
		V6Remote: endpointToView(s.V6Remote),
	}
}

func sessionsToView(sessions []client.Session) []*sessionView {
	views := make([]*sessionView, 0, len(sessions))
	for _, s := range sessions {
		sess := s
		views = append(views, sessionToView(&sess))
	}
	return views
}
