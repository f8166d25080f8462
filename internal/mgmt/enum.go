package mgmt

import (
	"fmt"

	"github.com/muurk/smpctl/internal/cbor"
	"github.com/muurk/smpctl/internal/smp"
)

// Enumeration group command IDs
const (
	CommandEnumCount   uint8 = 0
	CommandEnumList    uint8 = 1
	CommandEnumSingle  uint8 = 2
	CommandEnumDetails uint8 = 3
)

const (
	enumModeCount uint8 = iota + 1
	enumModeList
	enumModeSingle
	enumModeDetails
)

var enumCommands = map[uint8]command{
	enumModeCount:   {CommandEnumCount, "Count"},
	enumModeList:    {CommandEnumList, "List"},
	enumModeSingle:  {CommandEnumSingle, "Single"},
	enumModeDetails: {CommandEnumDetails, "Details"},
}

// EnumErrors lists the enumeration group specific error codes.
var EnumErrors = smp.ErrorTable{
	{"TOO_MANY_GROUP_ENTRIES", "Too many group entries were provided"},
	{"INSUFFICIENT_HEAP_FOR_ENTRIES", "Insufficient heap memory to store entry data"},
}

// EnumEntry is the answer to a single-group query.
type EnumEntry struct {
	Group uint16 `json:"group"`
	End   bool   `json:"end"`
}

// GroupDetails describes one supported group.
type GroupDetails struct {
	Group    uint16 `json:"group"`
	Name     string `json:"name,omitempty"`
	Handlers uint64 `json:"handlers,omitempty"`
}

// Enum implements the enumeration management group.
type Enum struct {
	*group
}

// NewEnum creates the enumeration group and registers it with p.
func NewEnum(p *smp.Processor, opts ...Option) *Enum {
	g := &Enum{group: newGroup(p, smp.GroupEnum, "enum", EnumErrors, enumCommands, opts)}
	p.Register(smp.GroupEnum, g)
	return g
}

// StartCount reads the number of supported groups.
func (g *Enum) StartCount(count *uint64) error {
	if count == nil {
		return fmt.Errorf("%w: count", ErrMissingParameter)
	}
	if err := g.begin(enumModeCount, count); err != nil {
		return err
	}
	*count = 0
	return g.send(g.message(smp.OpRead, CommandEnumCount))
}

// StartList reads the IDs of the supported groups.
func (g *Enum) StartList(groups *[]uint16) error {
	if groups == nil {
		return fmt.Errorf("%w: groups", ErrMissingParameter)
	}
	if err := g.begin(enumModeList, groups); err != nil {
		return err
	}
	*groups = (*groups)[:0]
	return g.send(g.message(smp.OpRead, CommandEnumList))
}

// StartSingle reads the group at index.
func (g *Enum) StartSingle(index uint16, entry *EnumEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: entry", ErrMissingParameter)
	}
	if err := g.begin(enumModeSingle, entry); err != nil {
		return err
	}
	*entry = EnumEntry{}
	msg := g.message(smp.OpRead, CommandEnumSingle)
	msg.Writer().UintField("index", uint64(index))
	return g.send(msg)
}

// StartDetails reads the details of the given groups, or of all groups when
// filter is empty.
func (g *Enum) StartDetails(filter []uint16, details *[]GroupDetails) error {
	if details == nil {
		return fmt.Errorf("%w: details", ErrMissingParameter)
	}
	if err := g.begin(enumModeDetails, details); err != nil {
		return err
	}
	*details = (*details)[:0]
	msg := g.message(smp.OpRead, CommandEnumDetails)
	if len(filter) > 0 {
		w := msg.Writer()
		w.Text("groups")
		w.StartArray()
		for _, id := range filter {
			w.Uint(uint64(id))
		}
		w.End()
	}
	return g.send(msg)
}

// ReceiveOK implements smp.Handler.
func (g *Enum) ReceiveOK(version uint8, op smp.Op, grp uint16, cmd uint8, body []byte) {
	mode, pending, ok := g.accept(grp, cmd)
	if !ok {
		return
	}

	var err error
	switch mode {
	case enumModeCount:
		err = decodeRequired(body, "count", 1, cbor.EventUint, cbor.SetUint(pending.(*uint64)))
	case enumModeList:
		groups := pending.(*[]uint16)
		err = cbor.Walk(body, cbor.NewFieldMap().
			OnElement("groups", 2, func(_ cbor.Context, ev cbor.Event) {
				if v, ok := ev.AsUint(); ok && v <= 0xffff {
					*groups = append(*groups, uint16(v))
				}
			}))
	case enumModeSingle:
		err = decodeEnumSingle(body, pending.(*EnumEntry))
	case enumModeDetails:
		err = decodeEnumDetails(body, pending.(*[]GroupDetails))
	}
	g.complete(mode, err)
}

func decodeEnumSingle(body []byte, entry *EnumEntry) error {
	var id uint64
	err := decodeRequired(body, "group", 1, cbor.EventUint, cbor.SetUint(&id))
	if err != nil {
		return err
	}
	if id > 0xffff {
		return fmt.Errorf("group ID %d out of range", id)
	}
	entry.Group = uint16(id)
	return cbor.Walk(body, cbor.NewFieldMap().OnAt("end", 1, cbor.SetBool(&entry.End)))
}

// decodeEnumDetails reads the maps of the "groups" array; their fields sit
// at depth 3 with the array's key as parent.
func decodeEnumDetails(body []byte, details *[]GroupDetails) error {
	var cur *GroupDetails
	return cbor.Walk(body, cbor.NewFieldMap().
		OnIn("groups", "group", 3, func(_ cbor.Context, ev cbor.Event) {
			if v, ok := ev.AsUint(); ok && cur != nil && v <= 0xffff {
				cur.Group = uint16(v)
			}
		}).
		OnIn("groups", "name", 3, func(_ cbor.Context, ev cbor.Event) {
			if ev.Type == cbor.EventText && cur != nil {
				cur.Name = ev.Text()
			}
		}).
		OnIn("groups", "handlers", 3, uintInto(&cur, func(d *GroupDetails) *uint64 { return &d.Handlers })).
		OnEnter(func(ctx cbor.Context, ev cbor.Event) {
			if ctx.Depth == 2 && ctx.InArray && ctx.Parent == "groups" && ev.Type == cbor.EventMapStart {
				cur = &GroupDetails{}
			}
		}).
		OnLeave(func(ctx cbor.Context) {
			if ctx.Depth == 2 && ctx.InArray && ctx.Parent == "groups" && cur != nil {
				*details = append(*details, *cur)
				cur = nil
			}
		}))
}
