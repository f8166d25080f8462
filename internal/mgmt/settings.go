package mgmt

import (
	"fmt"

	"github.com/muurk/smpctl/internal/cbor"
	"github.com/muurk/smpctl/internal/smp"
)

// Settings group command IDs. Read and write share an ID and differ by op,
// as do load and save.
const (
	CommandSettingsReadWrite uint8 = 0
	CommandSettingsDelete    uint8 = 1
	CommandSettingsCommit    uint8 = 2
	CommandSettingsLoadSave  uint8 = 3
)

const (
	settingsModeRead uint8 = iota + 1
	settingsModeWrite
	settingsModeDelete
	settingsModeCommit
	settingsModeLoad
	settingsModeSave
)

var settingsCommands = map[uint8]command{
	settingsModeRead:   {CommandSettingsReadWrite, "Read"},
	settingsModeWrite:  {CommandSettingsReadWrite, "Write"},
	settingsModeDelete: {CommandSettingsDelete, "Delete"},
	settingsModeCommit: {CommandSettingsCommit, "Commit"},
	settingsModeLoad:   {CommandSettingsLoadSave, "Load"},
	settingsModeSave:   {CommandSettingsLoadSave, "Save"},
}

// SettingsErrors lists the settings group specific error codes.
var SettingsErrors = smp.ErrorTable{
	{"KEY_TOO_LONG", "The provided key name is too long to be used"},
	{"KEY_NOT_FOUND", "The provided key name does not exist"},
	{"READ_NOT_SUPPORTED", "The provided key name does not support being read"},
	{"ROOT_KEY_NOT_FOUND", "The provided root key name does not exist"},
	{"WRITE_NOT_SUPPORTED", "The provided key name does not support being written"},
	{"DELETE_NOT_SUPPORTED", "The provided key name does not support being deleted"},
}

// Settings implements the settings management group.
type Settings struct {
	*group
}

// NewSettings creates the settings group and registers it with p.
func NewSettings(p *smp.Processor, opts ...Option) *Settings {
	g := &Settings{group: newGroup(p, smp.GroupSettings, "settings", SettingsErrors, settingsCommands, opts)}
	p.Register(smp.GroupSettings, g)
	return g
}

// StartRead reads the value of key. maxSize limits the returned length when
// non-zero.
func (g *Settings) StartRead(key string, maxSize uint32, value *[]byte) error {
	if key == "" {
		return fmt.Errorf("%w: key", ErrMissingParameter)
	}
	if value == nil {
		return fmt.Errorf("%w: value", ErrMissingParameter)
	}
	if err := g.begin(settingsModeRead, value); err != nil {
		return err
	}
	*value = nil
	msg := g.message(smp.OpRead, CommandSettingsReadWrite)
	w := msg.Writer()
	w.TextField("name", key)
	if maxSize > 0 {
		w.UintField("max_size", uint64(maxSize))
	}
	return g.send(msg)
}

// StartWrite sets key to value.
func (g *Settings) StartWrite(key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("%w: key", ErrMissingParameter)
	}
	if err := g.begin(settingsModeWrite, nil); err != nil {
		return err
	}
	msg := g.message(smp.OpWrite, CommandSettingsReadWrite)
	w := msg.Writer()
	w.TextField("name", key)
	w.BytesField("val", value)
	return g.send(msg)
}

// StartDelete removes key.
func (g *Settings) StartDelete(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key", ErrMissingParameter)
	}
	if err := g.begin(settingsModeDelete, nil); err != nil {
		return err
	}
	msg := g.message(smp.OpWrite, CommandSettingsDelete)
	msg.Writer().TextField("name", key)
	return g.send(msg)
}

// StartCommit applies pending settings changes.
func (g *Settings) StartCommit() error {
	if err := g.begin(settingsModeCommit, nil); err != nil {
		return err
	}
	return g.send(g.message(smp.OpWrite, CommandSettingsCommit))
}

// StartLoad reloads settings from persistent storage.
func (g *Settings) StartLoad() error {
	if err := g.begin(settingsModeLoad, nil); err != nil {
		return err
	}
	return g.send(g.message(smp.OpRead, CommandSettingsLoadSave))
}

// StartSave writes settings to persistent storage.
func (g *Settings) StartSave() error {
	if err := g.begin(settingsModeSave, nil); err != nil {
		return err
	}
	return g.send(g.message(smp.OpWrite, CommandSettingsLoadSave))
}

// ReceiveOK implements smp.Handler.
func (g *Settings) ReceiveOK(version uint8, op smp.Op, grp uint16, cmd uint8, body []byte) {
	mode, pending, ok := g.accept(grp, cmd)
	if !ok {
		return
	}

	var err error
	if mode == settingsModeRead {
		err = decodeRequired(body, "val", 1, cbor.EventBytes, cbor.SetBytes(pending.(*[]byte)))
	}
	g.complete(mode, err)
}
