// Package crdterr is the unified error taxonomy shared by every CRDT and
// the memory-configuration surface (spec §7). Platform-specific fault
// enumerations (CPU, peripheral, scheduling) are external collaborators and
// have no Kind here; an Error carries only a Kind, the failing Op, and a
// message, so an external caller never needs a second error type to
// switch on for the faults this module reports.
package crdterr

import "fmt"

// Kind classifies an Error into the taxonomy of spec §7.
type Kind int

const (
	// InvalidOperation covers zero-magnitude increments and other illegal
	// state transitions. Recoverable: the caller corrects its input.
	InvalidOperation Kind = iota
	// InvalidNodeId means a node id is out of range for the CRDT's
	// capacity or for the configured MaxNodes ceiling.
	InvalidNodeId
	// BufferOverflow means a counter slot would overflow its width, or a
	// set/map/MV-register is at capacity and cannot absorb an insert or
	// merge.
	BufferOverflow
	// ConfigurationExceeded means a count exceeds a configured ceiling
	// even though the backing array has physical room.
	ConfigurationExceeded
	// InvalidState means an internal invariant was violated (duplicate
	// key, count beyond array length). Treated as an unrecoverable bug.
	InvalidState
	// InvalidSafetyLevel is reserved for external safety collaborators
	// (spec §1 non-goal); the core never returns it itself.
	InvalidSafetyLevel
	// RealTimeViolation wraps a bounded operation (MergeBounded,
	// ValidateBounded) that exceeded its cycle budget before completing.
	// Mirrors the original source's RealTimeViolation(RealTimeError)
	// wrapper — the core error taxonomy is the only thing callers need
	// to switch on even though the budget bookkeeping lives in package
	// contract.
	RealTimeViolation
)

func (k Kind) String() string {
	switch k {
	case InvalidOperation:
		return "InvalidOperation"
	case InvalidNodeId:
		return "InvalidNodeId"
	case BufferOverflow:
		return "BufferOverflow"
	case ConfigurationExceeded:
		return "ConfigurationExceeded"
	case InvalidState:
		return "InvalidState"
	case InvalidSafetyLevel:
		return "InvalidSafetyLevel"
	case RealTimeViolation:
		return "RealTimeViolation"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned by every operation in this
// module. Op names the failing operation (e.g. "GCounter.Increment") so
// logs and test failures point at the call site without needing a stack
// trace.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
}

// Is supports errors.Is(err, crdterr.Sentinel(crdterr.BufferOverflow))
// style checks by comparing Kind against a sentinel *Error with no Op/Msg.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error for op with kind k and an optional formatted detail.
func New(k Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: k, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Sentinel returns a bare *Error carrying only a Kind, suitable for use
// with errors.Is as a comparison target.
func Sentinel(k Kind) *Error {
	return &Error{Kind: k}
}

// IsRecoverable reports whether a caller can reasonably retry or correct
// its input and try again (original_source/src/error/types.rs
// is_recoverable; spec.md §7's "Recoverable?" column).
func (k Kind) IsRecoverable() bool {
	switch k {
	case InvalidState:
		return false
	default:
		return true
	}
}

// IsSafetyCritical reports whether the failure indicates a condition a
// safety-critical caller should treat as severe regardless of its
// recoverability (original_source/src/error/types.rs is_safety_critical).
func (k Kind) IsSafetyCritical() bool {
	switch k {
	case BufferOverflow, InvalidState:
		return true
	default:
		return false
	}
}

// Category groups Kind into the coarse buckets original_source/src/error/types.rs
// uses for dashboards and alerting (category()).
func (k Kind) Category() string {
	switch k {
	case BufferOverflow, ConfigurationExceeded:
		return "Memory"
	case RealTimeViolation:
		return "RealTime"
	case InvalidSafetyLevel:
		return "Safety"
	case InvalidOperation, InvalidNodeId, InvalidState:
		return "CRDT"
	default:
		return "Unknown"
	}
}
