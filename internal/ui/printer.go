package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Printer writes command output either as styled boxes and tables or, in
// JSON mode, as one JSON document per result.
type Printer struct {
	out   io.Writer
	width int
	json  bool
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer, jsonOutput bool) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
		json:  jsonOutput,
	}
}

// JSON reports whether the printer emits JSON
func (p *Printer) JSON() bool {
	return p.json
}

// Width returns the terminal width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// PrintHeader prints a command header box. Nothing is printed in JSON mode.
func (p *Printer) PrintHeader(title, command string, params ...Field) {
	if p.json {
		return
	}
	p.Println(NewHeader(title, command, params...).SetWidth(p.width).Render())
}

// PrintSuccess prints a success box, or v as JSON
func (p *Printer) PrintSuccess(title string, v any, details ...Field) error {
	if p.json {
		return p.PrintJSON(v)
	}
	p.Println(NewSuccessResult(title, details...).SetWidth(p.width).Render())
	return nil
}

// PrintTable prints a table, or v as JSON
func (p *Printer) PrintTable(v any, headers []string, rows [][]string) error {
	if p.json {
		return p.PrintJSON(v)
	}
	p.Println(RenderTable(headers, rows))
	return nil
}

// PrintError prints a failure box. In JSON mode an {"error": ...} object is
// written instead.
func (p *Printer) PrintError(title string, err error, troubleshooting []string) {
	if p.json {
		_ = p.PrintJSON(map[string]string{"error": err.Error()})
		return
	}
	p.Println(NewFailureResult(title, err, troubleshooting).SetWidth(p.width).Render())
}

// PrintJSON writes v as indented JSON
func (p *Printer) PrintJSON(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
