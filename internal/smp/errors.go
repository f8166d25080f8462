package smp

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/muurk/smpctl/internal/cbor"
)

// ErrorType is the generation of an error reported by a device.
type ErrorType int

const (
	// ErrorNone means the response carried no error (or a zero code)
	ErrorNone ErrorType = iota
	// ErrorLegacy is a version 0 "rc" code shared by every group
	ErrorLegacy
	// ErrorStructured is a version 1 "ret" code scoped to a group
	ErrorStructured
)

// String returns a human-readable name for the error type
func (t ErrorType) String() string {
	switch t {
	case ErrorNone:
		return "none"
	case ErrorLegacy:
		return "legacy"
	case ErrorStructured:
		return "structured"
	default:
		return fmt.Sprintf("ErrorType(%d)", int(t))
	}
}

// Legacy result codes
const (
	RCOK                int32 = 0
	RCUnknown           int32 = 1
	RCNoMemory          int32 = 2
	RCInvalid           int32 = 3
	RCTimeout           int32 = 4
	RCNoEntry           int32 = 5
	RCBadState          int32 = 6
	RCMessageSize       int32 = 7
	RCNotSupported      int32 = 8
	RCCorrupt           int32 = 9
	RCBusy              int32 = 10
	RCAccessDenied      int32 = 11
	RCUnsupportedTooOld int32 = 12
	RCUnsupportedTooNew int32 = 13
)

// StructuredCodeBase is the first group-specific structured code. Codes 0
// and 1 mean "ok" and "unknown" in every group.
const StructuredCodeBase int32 = 2

// Error is a device-reported failure. The zero value means no error.
type Error struct {
	Type  ErrorType
	Code  int32
	Group uint16 // only meaningful for ErrorStructured
}

// LegacyError returns a version 0 error for rc.
func LegacyError(rc int32) Error {
	if rc == RCOK {
		return Error{}
	}
	return Error{Type: ErrorLegacy, Code: rc}
}

// StructuredError returns a version 1 error for a group-scoped rc.
func StructuredError(group uint16, rc int32) Error {
	if rc == RCOK {
		return Error{}
	}
	return Error{Type: ErrorStructured, Code: rc, Group: group}
}

// IsNone reports whether e represents success.
func (e Error) IsNone() bool {
	return e.Type == ErrorNone
}

// NotSupported reports whether the device rejected the group or command as
// unknown to it.
func (e Error) NotSupported() bool {
	return e.Type == ErrorLegacy && e.Code == RCNotSupported
}

// Error implements the error interface with the name from DefaultErrors.
func (e Error) Error() string {
	switch e.Type {
	case ErrorNone:
		return "smp: no error"
	case ErrorLegacy:
		return fmt.Sprintf("smp: rc %d (%s)", e.Code, DefaultErrors.Name(e))
	default:
		return fmt.Sprintf("smp: %s group error %d (%s)", GroupName(e.Group), e.Code, DefaultErrors.Name(e))
	}
}

// ErrorEntry describes one code of an error table.
type ErrorEntry struct {
	Name        string
	Description string
}

// ErrorTable lists the group-specific codes of one group, starting at
// StructuredCodeBase.
type ErrorTable []ErrorEntry

var legacyTable = []ErrorEntry{
	{"EOK", "No error, OK"},
	{"EUNKNOWN", "Unknown error"},
	{"ENOMEM", "Insufficient memory (likely not enough space for CBOR object)"},
	{"EINVAL", "Error in input value"},
	{"ETIMEOUT", "Operation timed out"},
	{"ENOENT", "No such file/entry"},
	{"EBADSTATE", "Current state disallows command"},
	{"EMSGSIZE", "Response too large"},
	{"ENOTSUP", "Command not supported"},
	{"ECORRUPT", "Corrupt"},
	{"EBUSY", "Command blocked by processing of other command"},
	{"EACCESSDENIED", "Access to specific function, command or resource denied"},
	{"UNSUPPORTED_TOO_OLD", "Requested SMP MCUmgr protocol version is not supported (too old)"},
	{"UNSUPPORTED_TOO_NEW", "Requested SMP MCUmgr protocol version is not supported (too new)"},
}

// Names used when a code cannot be resolved
const (
	unknownName = "UNKNOWN"
	okName      = "OK"
)

// ErrorRegistry maps groups to their structured error tables. It is safe for
// concurrent use.
type ErrorRegistry struct {
	mu     sync.RWMutex
	tables map[uint16]ErrorTable
}

// DefaultErrors is the registry used by Error.Error. Groups created by the
// mgmt package register their tables here unless given another registry.
var DefaultErrors = NewErrorRegistry()

// NewErrorRegistry creates an empty registry.
func NewErrorRegistry() *ErrorRegistry {
	return &ErrorRegistry{tables: make(map[uint16]ErrorTable)}
}

// Register sets the table for group, replacing any previous one.
func (r *ErrorRegistry) Register(group uint16, table ErrorTable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[group] = table
}

// Table returns the table registered for group.
func (r *ErrorRegistry) Table(group uint16) (ErrorTable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[group]
	return t, ok
}

// Lookup resolves e to its table entry.
func (r *ErrorRegistry) Lookup(e Error) (ErrorEntry, bool) {
	switch e.Type {
	case ErrorNone:
		return ErrorEntry{okName, "No error"}, true

	case ErrorLegacy:
		if e.Code >= 0 && int(e.Code) < len(legacyTable) {
			return legacyTable[e.Code], true
		}
		return ErrorEntry{}, false

	case ErrorStructured:
		switch e.Code {
		case 0:
			return ErrorEntry{okName, "No error"}, true
		case 1:
			return ErrorEntry{unknownName, "Unknown error"}, true
		}
		if e.Code < StructuredCodeBase {
			return ErrorEntry{}, false
		}
		table, ok := r.Table(e.Group)
		idx := int(e.Code - StructuredCodeBase)
		if !ok || idx >= len(table) {
			return ErrorEntry{}, false
		}
		return table[idx], true
	}
	return ErrorEntry{}, false
}

// Describe returns the human-readable description of e, falling back to a
// generic message naming the code when it cannot be resolved.
func (r *ErrorRegistry) Describe(e Error) string {
	if entry, ok := r.Lookup(e); ok {
		return entry.Description
	}
	if e.Type == ErrorLegacy {
		return fmt.Sprintf("Unknown error code %d", e.Code)
	}
	return fmt.Sprintf("Unknown error %d in group %d", e.Code, e.Group)
}

// Name returns the symbolic name of e, or "UNKNOWN".
func (r *ErrorRegistry) Name(e Error) string {
	if entry, ok := r.Lookup(e); ok {
		return entry.Name
	}
	return unknownName
}

// ErrCodeOutOfRange is returned by DecodeError for an error code or group
// that does not fit the protocol's ranges.
var ErrCodeOutOfRange = errors.New("smp: error code out of range")

// ErrorParent lists the keys under which version 1 responses carry the
// structured error map.
var ErrorParent = []string{"ret", "err"}

// DecodeError extracts the error shape from a response body. version is the
// generation from the response header. A legacy "rc" at the top level is
// honoured in both generations; the structured map is only considered for
// version 1 and later.
func DecodeError(body []byte, version uint8) (Error, error) {
	var (
		legacy, structured, group uint64
		haveLegacy                bool
		haveStructured            bool
	)

	fields := cbor.NewFieldMap().
		OnAt("rc", 1, cbor.Found(&haveLegacy, cbor.EventUint, cbor.SetUint(&legacy)))
	if version >= Version2 {
		for _, parent := range ErrorParent {
			fields.
				OnIn(parent, "rc", 2, cbor.Found(&haveStructured, cbor.EventUint, cbor.SetUint(&structured))).
				OnIn(parent, "group", 2, cbor.SetUint(&group))
		}
	}

	if err := cbor.Walk(body, fields); err != nil {
		return Error{}, fmt.Errorf("failed to decode response body: %w", err)
	}

	switch {
	case haveStructured && structured != 0:
		if structured > math.MaxInt32 || group > math.MaxUint16 {
			return Error{}, fmt.Errorf("%w: group %d rc %d", ErrCodeOutOfRange, group, structured)
		}
		return StructuredError(uint16(group), int32(structured)), nil
	case haveLegacy && legacy != 0:
		if legacy > math.MaxInt32 {
			return Error{}, fmt.Errorf("%w: rc %d", ErrCodeOutOfRange, legacy)
		}
		return LegacyError(int32(legacy)), nil
	}
	return Error{}, nil
}

// AsError extracts a device Error from an error chain.
func AsError(err error) (Error, bool) {
	var e Error
	if errors.As(err, &e) {
		return e, true
	}
	return Error{}, false
}
