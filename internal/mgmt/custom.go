package mgmt

import (
	"fmt"

	"github.com/muurk/smpctl/internal/cbor"
	"github.com/muurk/smpctl/internal/smp"
)

const customModeCommand uint8 = 1

var customCommands = map[uint8]command{
	customModeCommand: {0, "Command"},
}

// CustomErrors lists the error codes of application defined groups that do
// not register a table of their own.
var CustomErrors = smp.ErrorTable{
	{"INVALID_FORMAT", "The provided format value is not valid"},
	{"QUERY_YIELDS_NO_ANSWER", "Query was not recognized"},
}

// Custom sends arbitrary commands to any group, typically an application
// defined one (smp.GroupUserDefined and above). Request bodies are generic Go
// values and responses are decoded with cbor.Decode.
//
// Custom is not registered with the processor: each command routes its
// outcome here with SendTo, so the handler registered for the target group
// is left alone.
type Custom struct {
	*group

	target  uint16
	command uint8
}

// NewCustom creates the custom command group. Its error table is registered
// under smp.GroupUserDefined.
func NewCustom(p *smp.Processor, opts ...Option) *Custom {
	return &Custom{group: newGroup(p, smp.GroupUserDefined, "custom", CustomErrors, customCommands, opts)}
}

// StartCommand sends body as command cmd of group grp with op (smp.OpRead
// or smp.OpWrite). body must be nil or a map[string]any, such as JSON
// decoded with UseNumber; it becomes the root map of the request. The
// decoded response body is stored in out.
func (g *Custom) StartCommand(grp uint16, cmd uint8, op smp.Op, body any, out *any) error {
	if out == nil {
		return fmt.Errorf("%w: out", ErrMissingParameter)
	}
	if op != smp.OpRead && op != smp.OpWrite {
		return fmt.Errorf("%w: op %s is not a request", ErrInvalidParameter, op)
	}
	fields, ok := body.(map[string]any)
	if body != nil && !ok {
		return fmt.Errorf("%w: body must be a map, got %T", ErrInvalidParameter, body)
	}

	if err := g.begin(customModeCommand, out); err != nil {
		return err
	}
	*out = nil

	g.mu.Lock()
	g.target, g.command = grp, cmd
	version := g.cfg.Version
	g.mu.Unlock()

	msg := smp.NewMessage(op, version, grp, cmd)
	msg.Writer().Entries(fields)
	return g.sendTo(g, msg)
}

func (g *Custom) matches(grp uint16, cmd uint8) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return grp == g.target && cmd == g.command
}

// ReceiveOK implements smp.Handler.
func (g *Custom) ReceiveOK(version uint8, op smp.Op, grp uint16, cmd uint8, body []byte) {
	matched := g.matches(grp, cmd)
	mode, pending := g.reset()
	if mode == modeIdle {
		g.notify(StatusError, "Unexpected response, custom group not busy")
		return
	}
	if !matched {
		g.notify(StatusError, fmt.Sprintf("Unexpected response (group %d, command %d)", grp, cmd))
		return
	}

	v, err := cbor.Decode(body)
	if err == nil {
		*pending.(*any) = v
	}
	g.complete(mode, err)
}

// ReceiveError implements smp.Handler. Structured errors of groups without
// a registered table are described with CustomErrors.
func (g *Custom) ReceiveError(version uint8, op smp.Op, grp uint16, cmd uint8, e smp.Error) {
	if mode, _ := g.reset(); mode == modeIdle {
		g.notify(StatusError, "Unexpected response, custom group not busy")
		return
	}

	lookup := e
	if _, ok := g.errors.Table(e.Group); e.Type == smp.ErrorStructured && !ok {
		lookup.Group = smp.GroupUserDefined
	}
	g.deviceError(e, g.errors.Describe(lookup))
}
