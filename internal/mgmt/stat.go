package mgmt

import (
	"fmt"

	"github.com/muurk/smpctl/internal/cbor"
	"github.com/muurk/smpctl/internal/smp"
)

// Statistics group command IDs
const (
	CommandStatGroupData uint8 = 0
	CommandStatList      uint8 = 1
)

const (
	statModeGroupData uint8 = iota + 1
	statModeList
)

var statCommands = map[uint8]command{
	statModeGroupData: {CommandStatGroupData, "Group data"},
	statModeList:      {CommandStatList, "List groups"},
}

// StatErrors lists the statistics group specific error codes.
var StatErrors = smp.ErrorTable{
	{"INVALID_GROUP", "The provided statistic group name was not found"},
	{"INVALID_STAT_NAME", "The provided statistic name was not found"},
	{"INVALID_STAT_SIZE", "The size of the statistic cannot be handled"},
	{"WALK_ABORTED", "Walk through of statistics was aborted"},
}

// StatValue is one counter of a statistics group.
type StatValue struct {
	Name  string `json:"name"`
	Value uint64 `json:"value"`
}

// Stat implements the statistics management group.
type Stat struct {
	*group
}

// NewStat creates the statistics group and registers it with p.
func NewStat(p *smp.Processor, opts ...Option) *Stat {
	g := &Stat{group: newGroup(p, smp.GroupStat, "stat", StatErrors, statCommands, opts)}
	p.Register(smp.GroupStat, g)
	return g
}

// StartGroupData reads the counters of the named statistics group.
func (g *Stat) StartGroupData(name string, values *[]StatValue) error {
	if name == "" {
		return fmt.Errorf("%w: name", ErrMissingParameter)
	}
	if values == nil {
		return fmt.Errorf("%w: values", ErrMissingParameter)
	}
	if err := g.begin(statModeGroupData, values); err != nil {
		return err
	}
	*values = (*values)[:0]
	msg := g.message(smp.OpRead, CommandStatGroupData)
	msg.Writer().TextField("name", name)
	return g.send(msg)
}

// StartListGroups reads the names of the statistics groups.
func (g *Stat) StartListGroups(names *[]string) error {
	if names == nil {
		return fmt.Errorf("%w: names", ErrMissingParameter)
	}
	if err := g.begin(statModeList, names); err != nil {
		return err
	}
	*names = (*names)[:0]
	return g.send(g.message(smp.OpRead, CommandStatList))
}

// ReceiveOK implements smp.Handler.
func (g *Stat) ReceiveOK(version uint8, op smp.Op, grp uint16, cmd uint8, body []byte) {
	mode, pending, ok := g.accept(grp, cmd)
	if !ok {
		return
	}

	var err error
	switch mode {
	case statModeGroupData:
		err = cbor.Walk(body, statFields{values: pending.(*[]StatValue)})
	case statModeList:
		err = decodeTextList(body, "stat_list", pending.(*[]string))
	}
	g.complete(mode, err)
}

// statFields collects every integer found inside the "fields" map
type statFields struct {
	values *[]StatValue
}

func (s statFields) Value(ctx cbor.Context, ev cbor.Event) {
	if ctx.Depth != 2 || ctx.Parent != "fields" || ctx.InArray {
		return
	}
	if v, ok := ev.AsUint(); ok {
		*s.values = append(*s.values, StatValue{Name: ctx.Key, Value: v})
	}
}

func (statFields) Enter(cbor.Context, cbor.Event) {}
func (statFields) Leave(cbor.Context)             {}
