package mgmt

import "github.com/muurk/smpctl/internal/smp"

// ErrorTables holds the error table of every group this package implements.
var ErrorTables = map[uint16]smp.ErrorTable{
	smp.GroupOS:          OSErrors,
	smp.GroupImage:       ImageErrors,
	smp.GroupStat:        StatErrors,
	smp.GroupSettings:    SettingsErrors,
	smp.GroupFS:          FSErrors,
	smp.GroupShell:       ShellErrors,
	smp.GroupEnum:        EnumErrors,
	smp.GroupZephyr:      ZephyrErrors,
	smp.GroupUserDefined: CustomErrors,
}

// RegisterErrorTables registers every table in ErrorTables with reg, so
// errors can be described without creating the groups.
func RegisterErrorTables(reg *smp.ErrorRegistry) {
	for group, table := range ErrorTables {
		reg.Register(group, table)
	}
}
