package mgmt

import (
	"github.com/muurk/smpctl/internal/smp"
)

// CommandStorageErase erases the storage partition.
const CommandStorageErase uint8 = 0

const zephyrModeStorageErase uint8 = 1

var zephyrCommands = map[uint8]command{
	zephyrModeStorageErase: {CommandStorageErase, "Storage erase"},
}

// ZephyrErrors lists the Zephyr basic group specific error codes.
var ZephyrErrors = smp.ErrorTable{
	{"FLASH_OPEN_FAILED", "Opening of the flash area has failed"},
	{"FLASH_CONFIG_QUERY_FAIL", "Querying the flash area parameters has failed"},
	{"FLASH_ERASE_FAILED", "Erasing the flash area has failed"},
}

// Zephyr implements the Zephyr basic management group.
type Zephyr struct {
	*group
}

// NewZephyr creates the Zephyr basic group and registers it with p.
func NewZephyr(p *smp.Processor, opts ...Option) *Zephyr {
	g := &Zephyr{group: newGroup(p, smp.GroupZephyr, "zephyr", ZephyrErrors, zephyrCommands, opts)}
	p.Register(smp.GroupZephyr, g)
	return g
}

// StartStorageErase erases the device's storage partition.
func (g *Zephyr) StartStorageErase() error {
	if err := g.begin(zephyrModeStorageErase, nil); err != nil {
		return err
	}
	return g.send(g.message(smp.OpWrite, CommandStorageErase))
}

// ReceiveOK implements smp.Handler.
func (g *Zephyr) ReceiveOK(version uint8, op smp.Op, grp uint16, cmd uint8, body []byte) {
	mode, _, ok := g.accept(grp, cmd)
	if !ok {
		return
	}
	g.complete(mode, nil)
}
