package smp

import (
	"errors"
	"testing"

	"github.com/muurk/smpctl/internal/cbor"
)

var testFSTable = ErrorTable{
	{"FILE_INVALID_NAME", "The specified file name is not valid"},
	{"FILE_NOT_FOUND", "The specified file does not exist"},
}

func TestErrorRegistryLookup(t *testing.T) {
	reg := NewErrorRegistry()
	reg.Register(GroupFS, testFSTable)

	tests := []struct {
		name     string
		err      Error
		wantName string
		wantDesc string
	}{
		{"none", Error{}, "OK", "No error"},
		{"legacy not supported", LegacyError(RCNotSupported), "ENOTSUP", "Command not supported"},
		{"legacy too new", LegacyError(RCUnsupportedTooNew), "UNSUPPORTED_TOO_NEW", "Requested SMP MCUmgr protocol version is not supported (too new)"},
		{"legacy out of range", LegacyError(200), "UNKNOWN", "Unknown error code 200"},
		{"structured group table", StructuredError(GroupFS, 3), "FILE_NOT_FOUND", "The specified file does not exist"},
		{"structured global unknown", Error{Type: ErrorStructured, Code: 1, Group: GroupFS}, "UNKNOWN", "Unknown error"},
		{"structured out of range", StructuredError(GroupFS, 4), "UNKNOWN", "Unknown error 4 in group 8"},
		{"structured unregistered group", StructuredError(99, 2), "UNKNOWN", "Unknown error 2 in group 99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reg.Name(tt.err); got != tt.wantName {
				t.Errorf("Name() = %q, want %q", got, tt.wantName)
			}
			if got := reg.Describe(tt.err); got != tt.wantDesc {
				t.Errorf("Describe() = %q, want %q", got, tt.wantDesc)
			}
		})
	}
}

func TestErrorRegistryRegisterReplaces(t *testing.T) {
	reg := NewErrorRegistry()
	reg.Register(GroupShell, ErrorTable{{"OLD", "old"}})
	reg.Register(GroupShell, ErrorTable{{"COMMAND_TOO_LONG", "The provided command to execute is too long"}})
	if got := reg.Name(StructuredError(GroupShell, 2)); got != "COMMAND_TOO_LONG" {
		t.Errorf("Name() = %q, want COMMAND_TOO_LONG", got)
	}
}

func TestZeroCodesAreSuccess(t *testing.T) {
	if !LegacyError(0).IsNone() || !StructuredError(GroupFS, 0).IsNone() {
		t.Error("zero codes must mean no error")
	}
	if !LegacyError(RCNotSupported).NotSupported() {
		t.Error("ENOTSUP not classified as not supported")
	}
}

func TestErrorInterop(t *testing.T) {
	var err error = LegacyError(RCBusy)
	got, ok := AsError(err)
	if !ok || got.Code != RCBusy {
		t.Errorf("AsError() = %+v, %v", got, ok)
	}
	if !errors.Is(err, LegacyError(RCBusy)) {
		t.Error("errors.Is does not match equal Error values")
	}
}

func TestDecodeError(t *testing.T) {
	tests := []struct {
		name    string
		version uint8
		body    func(w *cbor.Writer)
		want    Error
	}{
		{
			name:    "legacy success",
			version: VersionLegacy,
			body:    func(w *cbor.Writer) { w.IntField("rc", 0) },
			want:    Error{},
		},
		{
			name:    "legacy failure",
			version: VersionLegacy,
			body:    func(w *cbor.Writer) { w.IntField("rc", 5) },
			want:    Error{Type: ErrorLegacy, Code: 5},
		},
		{
			name:    "legacy rc honoured in v2",
			version: Version2,
			body:    func(w *cbor.Writer) { w.IntField("rc", 8) },
			want:    Error{Type: ErrorLegacy, Code: 8},
		},
		{
			name:    "structured in v2",
			version: Version2,
			body: func(w *cbor.Writer) {
				w.Text("ret")
				w.StartMap()
				w.UintField("group", 8)
				w.UintField("rc", 3)
				w.End()
			},
			want: Error{Type: ErrorStructured, Code: 3, Group: 8},
		},
		{
			name:    "structured under err key",
			version: Version2,
			body: func(w *cbor.Writer) {
				w.Text("err")
				w.StartMap()
				w.UintField("group", 9)
				w.UintField("rc", 2)
				w.End()
			},
			want: Error{Type: ErrorStructured, Code: 2, Group: 9},
		},
		{
			name:    "structured ignored in legacy",
			version: VersionLegacy,
			body: func(w *cbor.Writer) {
				w.Text("ret")
				w.StartMap()
				w.UintField("group", 8)
				w.UintField("rc", 3)
				w.End()
			},
			want: Error{},
		},
		{
			name:    "shell exit code is not an error",
			version: Version2,
			body: func(w *cbor.Writer) {
				w.TextField("o", "done")
				w.IntField("ret", 1)
			},
			want: Error{},
		},
		{
			name:    "nested rc at wrong depth",
			version: VersionLegacy,
			body: func(w *cbor.Writer) {
				w.Text("x")
				w.StartMap()
				w.IntField("rc", 4)
				w.End()
			},
			want: Error{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeError(encodeBody(t, tt.body), tt.version)
			if err != nil {
				t.Fatalf("DecodeError() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DecodeError() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeErrorOutOfRange(t *testing.T) {
	retMap := func(group, rc uint64) func(w *cbor.Writer) {
		return func(w *cbor.Writer) {
			w.Text("ret")
			w.StartMap()
			w.UintField("group", group)
			w.UintField("rc", rc)
			w.End()
		}
	}

	tests := []struct {
		name    string
		version uint8
		body    func(w *cbor.Writer)
	}{
		{"structured rc beyond int64", Version2, retMap(8, 1<<63)},
		{"structured rc beyond int32", Version2, retMap(8, 1<<32+3)},
		{"group beyond uint16", Version2, retMap(0x10008, 3)},
		{"legacy rc beyond int32", VersionLegacy, func(w *cbor.Writer) { w.UintField("rc", 1<<40) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeError(encodeBody(t, tt.body), tt.version)
			if !errors.Is(err, ErrCodeOutOfRange) {
				t.Errorf("DecodeError() = %+v, %v, want ErrCodeOutOfRange", got, err)
			}
		})
	}
}

func TestDecodeErrorMalformed(t *testing.T) {
	_, err := DecodeError([]byte{0xbf, 0x61}, Version2)
	if !errors.Is(err, cbor.ErrMalformed) {
		t.Errorf("DecodeError() error = %v, want ErrMalformed", err)
	}
}
