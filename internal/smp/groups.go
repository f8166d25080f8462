package smp

import "fmt"

// Well-known management group IDs
const (
	GroupOS       uint16 = 0
	GroupImage    uint16 = 1
	GroupStat     uint16 = 2
	GroupSettings uint16 = 3
	GroupLog      uint16 = 4
	GroupCrash    uint16 = 5
	GroupSplit    uint16 = 6
	GroupRun      uint16 = 7
	GroupFS       uint16 = 8
	GroupShell    uint16 = 9
	GroupEnum     uint16 = 10
	GroupZephyr   uint16 = 63

	// GroupUserDefined is the first group ID available to applications
	GroupUserDefined uint16 = 64
)

var groupNames = map[uint16]string{
	GroupOS:       "os",
	GroupImage:    "img",
	GroupStat:     "stat",
	GroupSettings: "settings",
	GroupLog:      "log",
	GroupCrash:    "crash",
	GroupSplit:    "split",
	GroupRun:      "run",
	GroupFS:       "fs",
	GroupShell:    "shell",
	GroupEnum:     "enum",
	GroupZephyr:   "zephyr",
}

// GroupName returns the short name of a management group.
func GroupName(group uint16) string {
	if name, ok := groupNames[group]; ok {
		return name
	}
	if group >= GroupUserDefined {
		return fmt.Sprintf("user(%d)", group)
	}
	return fmt.Sprintf("group(%d)", group)
}
