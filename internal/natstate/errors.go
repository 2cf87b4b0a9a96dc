// Package natstate holds the error taxonomy shared by the BIB, session
// table, numeric pool, and static-route packages.
//
// Every sentinel here is stable at the admin boundary: internal/adminapi
// maps them to HTTP status codes via Code.
package natstate

import "errors"

// Sentinel errors. Each maps 1:1 to a stable code number at the admin
// boundary (see Code).
var (
	// ErrNotFound indicates a key absent from a table.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a duplicate insertion into an indexed table.
	ErrAlreadyExists = errors.New("already exists")

	// ErrReinsert indicates the IPv4 pool reported an endpoint as taken but
	// the BIB has no record of it -- a transient race between the Filtering
	// path and static-route insertion. The caller
	// should retry.
	ErrReinsert = errors.New("reinsert: retry the request")

	// ErrExhausted indicates the numeric pool has no identifiers left to lend.
	ErrExhausted = errors.New("pool exhausted")

	// ErrOverflow indicates a return into an already-full numeric pool.
	ErrOverflow = errors.New("pool overflow")

	// ErrInvalidArg indicates a malformed request: unknown L3 protocol,
	// an address outside the configured pool, and similar caller errors.
	ErrInvalidArg = errors.New("invalid argument")

	// ErrAllocFailed indicates resource exhaustion unrelated to pool state
	// (e.g. the underlying allocator refused to grow).
	ErrAllocFailed = errors.New("allocation failed")
)

// Code is a stable, small integer identifying an error kind at the wire
// boundary.
type Code int

const (
	// CodeUnknown is returned for errors that do not match any sentinel
	// below -- propagated from an unexpected lower-level failure.
	CodeUnknown Code = iota
	CodeNotFound
	CodeAlreadyExists
	CodeReinsert
	CodeExhausted
	CodeOverflow
	CodeInvalidArg
	CodeAllocFailed
)

// String returns the wire name of the code.
func (c Code) String() string {
	switch c {
	case CodeNotFound:
		return "NotFound"
	case CodeAlreadyExists:
		return "AlreadyExists"
	case CodeReinsert:
		return "Reinsert"
	case CodeExhausted:
		return "Exhausted"
	case CodeOverflow:
		return "Overflow"
	case CodeInvalidArg:
		return "InvalidArg"
	case CodeAllocFailed:
		return "AllocFailed"
	default:
		return "Unknown"
	}
}

// ClassifyCode maps err to its stable wire Code by walking the error chain
// with errors.Is against each sentinel. Returns CodeUnknown for anything
// that doesn't match, propagated verbatim to administrative callers.
func ClassifyCode(err error) Code {
	switch {
	case err == nil:
		return CodeUnknown
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrAlreadyExists):
		return CodeAlreadyExists
	case errors.Is(err, ErrReinsert):
		return CodeReinsert
	case errors.Is(err, ErrExhausted):
		return CodeExhausted
	case errors.Is(err, ErrOverflow):
		return CodeOverflow
	case errors.Is(err, ErrInvalidArg):
		return CodeInvalidArg
	case errors.Is(err, ErrAllocFailed):
		return CodeAllocFailed
	default:
		return CodeUnknown
	}
}
