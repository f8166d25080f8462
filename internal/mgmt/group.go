package mgmt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/smpctl/internal/smp"
)

// Caller errors returned synchronously by Start methods
var (
	ErrGroupBusy        = errors.New("mgmt: group already has a command in progress")
	ErrMissingParameter = errors.New("mgmt: missing required parameter")
	ErrInvalidParameter = errors.New("mgmt: invalid parameter")
)

// Status is the terminal classification delivered to observers.
type Status int

const (
	StatusComplete Status = iota
	StatusError
	StatusUnsupported
	StatusTimeout
	StatusCancelled
	StatusTransportError
	StatusMessageTooLarge
	StatusTransportDisconnected
)

// String returns a human-readable status name
func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusError:
		return "error"
	case StatusUnsupported:
		return "unsupported"
	case StatusTimeout:
		return "timeout"
	case StatusCancelled:
		return "cancelled"
	case StatusTransportError:
		return "transport error"
	case StatusMessageTooLarge:
		return "message too large"
	case StatusTransportDisconnected:
		return "transport disconnected"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// StatusFunc observes terminal statuses of a group.
type StatusFunc func(status Status, message string)

// Config holds the per-group transaction parameters.
type Config struct {
	Version uint8
	Timeout time.Duration
	Retries int
}

// DefaultConfig returns version 2 with the processor's default timeout and
// retry count.
func DefaultConfig() Config {
	return Config{
		Version: smp.Version2,
		Timeout: smp.DefaultTimeout,
		Retries: smp.DefaultRetries,
	}
}

// Option configures a group at construction.
type Option func(*group)

// WithConfig sets the transaction parameters.
func WithConfig(cfg Config) Option {
	return func(g *group) {
		g.cfg = cfg
	}
}

// WithErrorRegistry sets where the group registers its error table.
func WithErrorRegistry(reg *smp.ErrorRegistry) Option {
	return func(g *group) {
		g.errors = reg
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *group) {
		g.log = l
	}
}

const modeIdle uint8 = 0

// command describes one mode of a group: the command ID its response must
// carry and a name for messages.
type command struct {
	id   uint8
	name string
}

// group is the state shared by every management group. Concrete groups
// embed it and add ReceiveOK.
type group struct {
	id        uint16
	name      string
	processor *smp.Processor
	errors    *smp.ErrorRegistry
	log       *zap.Logger
	commands  map[uint8]command

	mu        sync.Mutex
	cfg       Config
	mode      uint8
	pending   any
	lastError smp.Error
	observers map[int]StatusFunc
	nextID    int
	versionFn map[int]func(uint8)
}

func newGroup(p *smp.Processor, id uint16, name string, table smp.ErrorTable, commands map[uint8]command, opts []Option) *group {
	g := &group{
		id:        id,
		name:      name,
		processor: p,
		errors:    smp.DefaultErrors,
		log:       zap.NewNop(),
		commands:  commands,
		cfg:       DefaultConfig(),
		observers: make(map[int]StatusFunc),
		versionFn: make(map[int]func(uint8)),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.Named(name)
	if table != nil {
		g.errors.Register(id, table)
	}
	return g
}

// ID returns the management group ID.
func (g *group) ID() uint16 {
	return g.id
}

// Name returns the short group name.
func (g *group) Name() string {
	return g.name
}

// Config returns the current transaction parameters.
func (g *group) Config() Config {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

// SetConfig replaces the transaction parameters for later commands.
func (g *group) SetConfig(cfg Config) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg = cfg
}

// Busy reports whether a command is in progress.
func (g *group) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mode != modeIdle
}

// LastError returns the device error of the most recent failed command.
func (g *group) LastError() smp.Error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastError
}

// OnStatus registers fn for terminal statuses and returns a function that
// removes it.
func (g *group) OnStatus(fn StatusFunc) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID
	g.nextID++
	g.observers[id] = fn
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.observers, id)
	}
}

// OnVersionMismatch registers fn to learn the version a device answered
// with when it differs from the one requested, and returns a function that
// removes it.
func (g *group) OnVersionMismatch(fn func(version uint8)) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID
	g.nextID++
	g.versionFn[id] = fn
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.versionFn, id)
	}
}

// Abort cancels the command in progress, if this group owns it.
func (g *group) Abort() {
	if g.Busy() {
		g.processor.Cancel()
	}
}

func (g *group) modeName(mode uint8) string {
	if c, ok := g.commands[mode]; ok {
		return c.name
	}
	return "Idle"
}

// begin claims the group for mode. pending carries the command's outputs
// until its response arrives.
func (g *group) begin(mode uint8, pending any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mode != modeIdle {
		return fmt.Errorf("%w: %s in progress", ErrGroupBusy, g.modeName(g.mode))
	}
	g.mode = mode
	g.pending = pending
	g.lastError = smp.Error{}
	return nil
}

// reset returns to idle and hands back what was in progress.
func (g *group) reset() (mode uint8, pending any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	mode, pending = g.mode, g.pending
	g.mode = modeIdle
	g.pending = nil
	return mode, pending
}

func (g *group) message(op smp.Op, cmd uint8) *smp.Message {
	g.mu.Lock()
	version := g.cfg.Version
	g.mu.Unlock()
	return smp.NewMessage(op, version, g.id, cmd)
}

// send finishes msg and hands it to the processor. Failures are terminal:
// the group returns to idle and, for size and transport errors, observers
// are told.
func (g *group) send(msg *smp.Message) error {
	return g.sendTo(nil, msg)
}

// sendTo is send with the outcome delivered to h rather than to the handler
// registered for the message's group. A nil h means the registered one.
func (g *group) sendTo(h smp.Handler, msg *smp.Message) error {
	if err := msg.End(); err != nil {
		g.reset()
		return err
	}

	cfg := g.Config()
	var err error
	if h != nil {
		err = g.processor.SendTo(h, msg, cfg.Timeout, cfg.Retries)
	} else {
		err = g.processor.Send(msg, cfg.Timeout, cfg.Retries)
	}
	if err == nil {
		return nil
	}

	mode, _ := g.reset()
	switch {
	case errors.Is(err, smp.ErrMessageTooLarge):
		g.notify(StatusMessageTooLarge, fmt.Sprintf("%s: %v", g.modeName(mode), err))
	case errors.Is(err, smp.ErrTransport):
		g.notify(StatusTransportError, fmt.Sprintf("%s: %v", g.modeName(mode), err))
	}
	return err
}

// accept validates a response for the command in progress and returns to
// idle. Invalid responses are reported to observers and rejected.
func (g *group) accept(grp uint16, cmd uint8) (uint8, any, bool) {
	mode, pending := g.reset()
	if mode == modeIdle {
		g.notify(StatusError, fmt.Sprintf("Unexpected response, %s group not busy", g.name))
		return modeIdle, nil, false
	}
	if grp != g.id {
		g.notify(StatusError, fmt.Sprintf("Unexpected group %d, expected %d", grp, g.id))
		return mode, nil, false
	}
	if expected := g.commands[mode].id; cmd != expected {
		g.notify(StatusError, fmt.Sprintf("Unexpected response (Mode: %s, command: %d)", g.modeName(mode), cmd))
		return mode, nil, false
	}
	return mode, pending, true
}

// complete reports the outcome of decoding a successful response.
func (g *group) complete(mode uint8, err error) {
	if err != nil {
		g.notify(StatusError, fmt.Sprintf("Did not decode response successfully (Mode: %s): %v", g.modeName(mode), err))
		return
	}
	g.notify(StatusComplete, "")
}

func (g *group) notify(status Status, message string) {
	g.mu.Lock()
	observers := make([]StatusFunc, 0, len(g.observers))
	for _, fn := range g.observers {
		observers = append(observers, fn)
	}
	g.mu.Unlock()

	g.log.Debug("Status", zap.Stringer("status", status), zap.String("message", message))
	for _, fn := range observers {
		fn(status, message)
	}
}

// ReceiveError implements smp.Handler.
func (g *group) ReceiveError(version uint8, op smp.Op, grp uint16, cmd uint8, e smp.Error) {
	if _, _, ok := g.accept(grp, cmd); !ok {
		return
	}
	g.deviceError(e, g.errors.Describe(e))
}

// deviceError records e and reports it to observers with description.
func (g *group) deviceError(e smp.Error, description string) {
	g.mu.Lock()
	g.lastError = e
	g.mu.Unlock()

	status := StatusError
	if e.NotSupported() {
		status = StatusUnsupported
	}
	g.notify(status, description)
}

// Timeout implements smp.Handler.
func (g *group) Timeout(msg *smp.Message) {
	mode, _ := g.reset()
	if mode == modeIdle {
		return
	}
	g.notify(StatusTimeout, fmt.Sprintf("Timeout (Mode: %s)", g.modeName(mode)))
}

// Cancel implements smp.Handler.
func (g *group) Cancel() {
	mode, _ := g.reset()
	if mode != modeIdle {
		g.notify(StatusCancelled, "")
	}
}

// TransportDisconnected implements smp.Handler.
func (g *group) TransportDisconnected() {
	mode, _ := g.reset()
	if mode != modeIdle {
		g.notify(StatusTransportDisconnected, fmt.Sprintf("Transport disconnected (Mode: %s)", g.modeName(mode)))
	}
}

// TransportError implements smp.Handler.
func (g *group) TransportError(err error) {
	mode, _ := g.reset()
	if mode != modeIdle {
		g.notify(StatusTransportError, fmt.Sprintf("%s: %v", g.modeName(mode), err))
	}
}

// VersionMismatch implements smp.Handler. Later requests use the version the
// device answered with.
func (g *group) VersionMismatch(requested, received uint8) {
	g.mu.Lock()
	g.cfg.Version = received
	fns := make([]func(uint8), 0, len(g.versionFn))
	for _, fn := range g.versionFn {
		fns = append(fns, fn)
	}
	g.mu.Unlock()

	g.log.Info("Device answered with a different protocol version",
		zap.Uint8("requested", requested),
		zap.Uint8("received", received))
	for _, fn := range fns {
		fn(received)
	}
}

// DecodeFailed implements smp.Handler.
func (g *group) DecodeFailed(err error) {
	mode, _ := g.reset()
	g.complete(mode, err)
}
