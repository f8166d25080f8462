package mgmt

import (
	"fmt"
	"time"

	"github.com/muurk/smpctl/internal/cbor"
	"github.com/muurk/smpctl/internal/smp"
)

// OS group command IDs
const (
	CommandEcho           uint8 = 0
	CommandTaskStats      uint8 = 2
	CommandMemoryPool     uint8 = 3
	CommandDateTime       uint8 = 4
	CommandReset          uint8 = 5
	CommandParameters     uint8 = 6
	CommandAppInfo        uint8 = 7
	CommandBootloaderInfo uint8 = 8
)

const (
	osModeEcho uint8 = iota + 1
	osModeTaskStats
	osModeMemoryPool
	osModeDateTimeGet
	osModeDateTimeSet
	osModeReset
	osModeParameters
	osModeAppInfo
	osModeBootloaderInfo
)

var osCommands = map[uint8]command{
	osModeEcho:           {CommandEcho, "Echo"},
	osModeTaskStats:      {CommandTaskStats, "Task stats"},
	osModeMemoryPool:     {CommandMemoryPool, "Memory pool"},
	osModeDateTimeGet:    {CommandDateTime, "Get date/time"},
	osModeDateTimeSet:    {CommandDateTime, "Set date/time"},
	osModeReset:          {CommandReset, "Reset"},
	osModeParameters:     {CommandParameters, "MCUmgr parameters"},
	osModeAppInfo:        {CommandAppInfo, "OS/Application info"},
	osModeBootloaderInfo: {CommandBootloaderInfo, "Bootloader info"},
}

// OSErrors lists the OS group specific error codes.
var OSErrors = smp.ErrorTable{
	{"INVALID_FORMAT", "The provided format value is not valid"},
	{"QUERY_YIELDS_NO_ANSWER", "Query was not recognized"},
	{"RTC_NOT_SET", "RTC is not set"},
	{"RTC_COMMAND_FAILED", "RTC command failed"},
	{"QUERY_RESPONSE_VALUE_NOT_VALID", "Query was recognized but there is no valid value for the response"},
}

// DateTimeLayout is the format of the "datetime" field (no time zone).
const DateTimeLayout = "2006-01-02T15:04:05"

// TaskInfo is one entry of the task statistics.
type TaskInfo struct {
	Name            string `json:"name"`
	Priority        uint64 `json:"prio"`
	ID              uint64 `json:"tid"`
	State           uint64 `json:"state"`
	StackUsed       uint64 `json:"stkuse"`
	StackSize       uint64 `json:"stksiz"`
	ContextSwitches uint64 `json:"cswcnt"`
	Runtime         uint64 `json:"runtime"`
	LastCheckin     uint64 `json:"last_checkin"`
	NextCheckin     uint64 `json:"next_checkin"`
}

// MemoryPool is one entry of the memory pool statistics.
type MemoryPool struct {
	Name      string `json:"name"`
	BlockSize uint64 `json:"blksiz"`
	Blocks    uint64 `json:"nblks"`
	Free      uint64 `json:"nfree"`
	Minimum   uint64 `json:"min"`
}

// Parameters are the SMP buffer parameters of the device.
type Parameters struct {
	BufferSize  uint64 `json:"buf_size"`
	BufferCount uint64 `json:"buf_count"`
}

// BootloaderInfo is the answer to a bootloader info query.
type BootloaderInfo struct {
	Bootloader  string `json:"bootloader,omitempty"`
	Mode        int64  `json:"mode,omitempty"`
	HasMode     bool   `json:"-"`
	NoDowngrade bool   `json:"no_downgrade,omitempty"`
}

// OS implements the OS management group.
type OS struct {
	*group
}

// NewOS creates the OS group and registers it with p.
func NewOS(p *smp.Processor, opts ...Option) *OS {
	g := &OS{group: newGroup(p, smp.GroupOS, "os", OSErrors, osCommands, opts)}
	p.Register(smp.GroupOS, g)
	return g
}

// StartEcho sends text and stores the device's echo in response.
func (g *OS) StartEcho(text string, response *string) error {
	if response == nil {
		return fmt.Errorf("%w: response", ErrMissingParameter)
	}
	if err := g.begin(osModeEcho, response); err != nil {
		return err
	}
	*response = ""
	msg := g.message(smp.OpWrite, CommandEcho)
	msg.Writer().TextField("d", text)
	return g.send(msg)
}

// StartTaskStats reads the task list.
func (g *OS) StartTaskStats(tasks *[]TaskInfo) error {
	if tasks == nil {
		return fmt.Errorf("%w: tasks", ErrMissingParameter)
	}
	if err := g.begin(osModeTaskStats, tasks); err != nil {
		return err
	}
	*tasks = (*tasks)[:0]
	return g.send(g.message(smp.OpRead, CommandTaskStats))
}

// StartMemoryPool reads the memory pool statistics.
func (g *OS) StartMemoryPool(pools *[]MemoryPool) error {
	if pools == nil {
		return fmt.Errorf("%w: pools", ErrMissingParameter)
	}
	if err := g.begin(osModeMemoryPool, pools); err != nil {
		return err
	}
	*pools = (*pools)[:0]
	return g.send(g.message(smp.OpRead, CommandMemoryPool))
}

// StartDateTimeGet reads the device clock.
func (g *OS) StartDateTimeGet(t *time.Time) error {
	if t == nil {
		return fmt.Errorf("%w: time", ErrMissingParameter)
	}
	if err := g.begin(osModeDateTimeGet, t); err != nil {
		return err
	}
	return g.send(g.message(smp.OpRead, CommandDateTime))
}

// StartDateTimeSet sets the device clock.
func (g *OS) StartDateTimeSet(t time.Time) error {
	if err := g.begin(osModeDateTimeSet, nil); err != nil {
		return err
	}
	msg := g.message(smp.OpWrite, CommandDateTime)
	msg.Writer().TextField("datetime", t.Format(DateTimeLayout))
	return g.send(msg)
}

// StartReset reboots the device. force asks it to reset even if an
// application hook would veto it.
func (g *OS) StartReset(force bool) error {
	if err := g.begin(osModeReset, nil); err != nil {
		return err
	}
	msg := g.message(smp.OpWrite, CommandReset)
	if force {
		msg.Writer().BoolField("force", true)
	}
	return g.send(msg)
}

// StartParameters reads the SMP buffer parameters.
func (g *OS) StartParameters(params *Parameters) error {
	if params == nil {
		return fmt.Errorf("%w: params", ErrMissingParameter)
	}
	if err := g.begin(osModeParameters, params); err != nil {
		return err
	}
	*params = Parameters{}
	return g.send(g.message(smp.OpRead, CommandParameters))
}

// StartAppInfo reads the OS/application info string. format selects the
// fields (e.g. "a" for all); empty leaves the device default.
func (g *OS) StartAppInfo(format string, output *string) error {
	if output == nil {
		return fmt.Errorf("%w: output", ErrMissingParameter)
	}
	if err := g.begin(osModeAppInfo, output); err != nil {
		return err
	}
	*output = ""
	msg := g.message(smp.OpRead, CommandAppInfo)
	if format != "" {
		msg.Writer().TextField("format", format)
	}
	return g.send(msg)
}

// StartBootloaderInfo queries the bootloader. An empty query returns its
// name; "mode" returns the MCUboot mode.
func (g *OS) StartBootloaderInfo(query string, info *BootloaderInfo) error {
	if info == nil {
		return fmt.Errorf("%w: info", ErrMissingParameter)
	}
	if err := g.begin(osModeBootloaderInfo, info); err != nil {
		return err
	}
	*info = BootloaderInfo{}
	msg := g.message(smp.OpRead, CommandBootloaderInfo)
	if query != "" {
		msg.Writer().TextField("query", query)
	}
	return g.send(msg)
}

// ReceiveOK implements smp.Handler.
func (g *OS) ReceiveOK(version uint8, op smp.Op, grp uint16, cmd uint8, body []byte) {
	mode, pending, ok := g.accept(grp, cmd)
	if !ok {
		return
	}

	var err error
	switch mode {
	case osModeEcho:
		err = decodeRequired(body, "r", 1, cbor.EventText, cbor.SetText(pending.(*string)))
	case osModeTaskStats:
		err = decodeTasks(body, pending.(*[]TaskInfo))
	case osModeMemoryPool:
		err = decodePools(body, pending.(*[]MemoryPool))
	case osModeDateTimeGet:
		err = decodeDateTime(body, pending.(*time.Time))
	case osModeParameters:
		p := pending.(*Parameters)
		err = cbor.Walk(body, cbor.NewFieldMap().
			OnAt("buf_size", 1, cbor.SetUint(&p.BufferSize)).
			OnAt("buf_count", 1, cbor.SetUint(&p.BufferCount)))
	case osModeAppInfo:
		err = decodeRequired(body, "output", 1, cbor.EventText, cbor.SetText(pending.(*string)))
	case osModeBootloaderInfo:
		info := pending.(*BootloaderInfo)
		err = cbor.Walk(body, cbor.NewFieldMap().
			OnAt("bootloader", 1, cbor.SetText(&info.Bootloader)).
			OnAt("mode", 1, cbor.Found(&info.HasMode, cbor.EventUint, cbor.SetInt(&info.Mode))).
			OnAt("no-downgrade", 1, cbor.SetBool(&info.NoDowngrade)))
	}
	g.complete(mode, err)
}

func decodeTasks(body []byte, tasks *[]TaskInfo) error {
	var cur *TaskInfo
	field := func(dst func(*TaskInfo) *uint64) cbor.FieldFunc { return uintInto(&cur, dst) }
	fields := cbor.NewFieldMap().
		OnAt("prio", 3, field(func(t *TaskInfo) *uint64 { return &t.Priority })).
		OnAt("tid", 3, field(func(t *TaskInfo) *uint64 { return &t.ID })).
		OnAt("state", 3, field(func(t *TaskInfo) *uint64 { return &t.State })).
		OnAt("stkuse", 3, field(func(t *TaskInfo) *uint64 { return &t.StackUsed })).
		OnAt("stksiz", 3, field(func(t *TaskInfo) *uint64 { return &t.StackSize })).
		OnAt("cswcnt", 3, field(func(t *TaskInfo) *uint64 { return &t.ContextSwitches })).
		OnAt("runtime", 3, field(func(t *TaskInfo) *uint64 { return &t.Runtime })).
		OnAt("last_checkin", 3, field(func(t *TaskInfo) *uint64 { return &t.LastCheckin })).
		OnAt("next_checkin", 3, field(func(t *TaskInfo) *uint64 { return &t.NextCheckin })).
		OnEnter(func(ctx cbor.Context, ev cbor.Event) {
			if ctx.Depth == 2 && ctx.Parent == "tasks" && ev.Type == cbor.EventMapStart {
				cur = &TaskInfo{Name: ctx.Key}
			}
		}).
		OnLeave(func(ctx cbor.Context) {
			if ctx.Depth == 2 && ctx.Parent == "tasks" && cur != nil {
				*tasks = append(*tasks, *cur)
				cur = nil
			}
		})
	return cbor.Walk(body, fields)
}

func decodePools(body []byte, pools *[]MemoryPool) error {
	var cur *MemoryPool
	field := func(dst func(*MemoryPool) *uint64) cbor.FieldFunc { return uintInto(&cur, dst) }
	fields := cbor.NewFieldMap().
		OnAt("blksiz", 3, field(func(p *MemoryPool) *uint64 { return &p.BlockSize })).
		OnAt("nblks", 3, field(func(p *MemoryPool) *uint64 { return &p.Blocks })).
		OnAt("nfree", 3, field(func(p *MemoryPool) *uint64 { return &p.Free })).
		OnAt("min", 3, field(func(p *MemoryPool) *uint64 { return &p.Minimum })).
		OnEnter(func(ctx cbor.Context, ev cbor.Event) {
			if ctx.Depth == 2 && ctx.Parent == "pools" && ev.Type == cbor.EventMapStart {
				cur = &MemoryPool{Name: ctx.Key}
			}
		}).
		OnLeave(func(ctx cbor.Context) {
			if ctx.Depth == 2 && ctx.Parent == "pools" && cur != nil {
				*pools = append(*pools, *cur)
				cur = nil
			}
		})
	return cbor.Walk(body, fields)
}

// dateTimeLayouts are accepted when parsing device time, with or without
// fractional seconds and zone
var dateTimeLayouts = []string{
	DateTimeLayout,
	"2006-01-02T15:04:05.999999",
	time.RFC3339Nano,
}

func decodeDateTime(body []byte, t *time.Time) error {
	var s string
	if err := decodeRequired(body, "datetime", 1, cbor.EventText, cbor.SetText(&s)); err != nil {
		return err
	}
	for _, layout := range dateTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid datetime %q", s)
}
