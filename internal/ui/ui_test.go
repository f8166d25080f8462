package ui

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHeaderRender(t *testing.T) {
	out := NewHeader("Image state", "smpctl image list",
		Field{Key: "Transport", Value: "serial"},
		Field{Key: "Port", Value: "/dev/ttyACM0"},
	).SetWidth(80).Render()

	for _, want := range []string{"IMAGE STATE", "smpctl image list", "Transport:", "/dev/ttyACM0"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Transport:") > strings.Index(out, "Port:") {
		t.Error("params not rendered in order")
	}
}

func TestResultRender(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   []string
	}{
		{
			name:   "success",
			result: NewSuccessResult("Echo", Field{Key: "Reply", Value: "hello"}),
			want:   []string{SuccessMarker, "SUCCESS", "Echo", "Reply:", "hello"},
		},
		{
			name:   "failure",
			result: NewFailureResult("Reset", errors.New("timeout"), []string{"Check the cable"}),
			want:   []string{FailureMarker, "FAILED", "Error: timeout", "Troubleshooting:", "Check the cable"},
		},
		{
			name:   "warning",
			result: NewWarningResult("Version", Field{Key: "Answered", Value: "legacy"}),
			want:   []string{WarningMarker, "WARNING", "legacy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.result.SetWidth(80).String()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("Render() missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestRenderTable(t *testing.T) {
	out := RenderTable([]string{"Name", "Value"}, [][]string{{"rx", "12"}, {"tx", "40"}})
	for _, want := range []string{"Name", "Value", "rx", "40"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderTable() missing %q:\n%s", want, out)
		}
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"yes\n", true},
		{"YES\n", true},
		{"no\n", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			got := Confirm(strings.NewReader(tt.input), &out, "Erase storage", []string{"All settings are lost"})
			if got != tt.want {
				t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !strings.Contains(out.String(), "All settings are lost") {
				t.Error("warnings not shown")
			}
		})
	}
}

func TestWaitWithoutTerminal(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	want := errors.New("device busy")
	called := false
	err = Wait(context.Background(), f, "Waiting", func(ctx context.Context) error {
		called = true
		return want
	})
	if !called || !errors.Is(err, want) {
		t.Errorf("Wait() = %v, called = %v", err, called)
	}

	info, _ := f.Stat()
	if info.Size() != 0 {
		t.Error("spinner written to a non-terminal")
	}
}

func TestPrinterJSON(t *testing.T) {
	var out bytes.Buffer
	p := NewPrinter(&out, true)

	p.PrintHeader("Echo", "smpctl echo")
	if err := p.PrintSuccess("Echo", map[string]string{"reply": "hi"}); err != nil {
		t.Fatal(err)
	}
	p.PrintError("Echo", errors.New("timeout"), nil)

	want := "{\n  \"reply\": \"hi\"\n}\n{\n  \"error\": \"timeout\"\n}\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}
