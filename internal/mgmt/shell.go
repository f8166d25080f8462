package mgmt

import (
	"fmt"

	"github.com/muurk/smpctl/internal/cbor"
	"github.com/muurk/smpctl/internal/smp"
)

// CommandShellExecute runs a shell command line on the device.
const CommandShellExecute uint8 = 0

const shellModeExecute uint8 = 1

var shellCommands = map[uint8]command{
	shellModeExecute: {CommandShellExecute, "Execute"},
}

// ShellErrors lists the shell group specific error codes.
var ShellErrors = smp.ErrorTable{
	{"COMMAND_TOO_LONG", "The provided command to execute is too long"},
	{"EMPTY_COMMAND", "No command to execute was provided"},
}

// ShellResult is the output of a shell command and its exit code.
type ShellResult struct {
	Output   string `json:"output"`
	ExitCode int64  `json:"ret"`
}

// Shell implements the shell management group.
type Shell struct {
	*group
}

// NewShell creates the shell group and registers it with p.
func NewShell(p *smp.Processor, opts ...Option) *Shell {
	g := &Shell{group: newGroup(p, smp.GroupShell, "shell", ShellErrors, shellCommands, opts)}
	p.Register(smp.GroupShell, g)
	return g
}

// StartExecute runs argv. A non-zero exit code is still a completed command;
// check result.ExitCode.
func (g *Shell) StartExecute(argv []string, result *ShellResult) error {
	if len(argv) == 0 {
		return fmt.Errorf("%w: argv", ErrMissingParameter)
	}
	if result == nil {
		return fmt.Errorf("%w: result", ErrMissingParameter)
	}
	if err := g.begin(shellModeExecute, result); err != nil {
		return err
	}
	*result = ShellResult{}

	msg := g.message(smp.OpWrite, CommandShellExecute)
	w := msg.Writer()
	w.Text("argv")
	w.StartArray()
	for _, arg := range argv {
		w.Text(arg)
	}
	w.End()
	return g.send(msg)
}

// ReceiveOK implements smp.Handler.
func (g *Shell) ReceiveOK(version uint8, op smp.Op, grp uint16, cmd uint8, body []byte) {
	mode, pending, ok := g.accept(grp, cmd)
	if !ok {
		return
	}

	var err error
	if mode == shellModeExecute {
		res := pending.(*ShellResult)
		var gotOutput, gotRet bool
		err = cbor.Walk(body, cbor.NewFieldMap().
			OnAt("o", 1, cbor.Found(&gotOutput, cbor.EventText, cbor.SetText(&res.Output))).
			OnAt("ret", 1, func(_ cbor.Context, ev cbor.Event) {
				if v, ok := ev.AsInt(); ok {
					res.ExitCode = v
					gotRet = true
				}
			}))
		if err == nil && !gotOutput {
			err = fmt.Errorf("%w: o", ErrMissingField)
		}
		if err == nil && !gotRet {
			err = fmt.Errorf("%w: ret", ErrMissingField)
		}
	}
	g.complete(mode, err)
}
