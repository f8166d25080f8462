package mgmt

import (
	"testing"

	"github.com/muurk/smpctl/internal/smp"
)

func TestRegisterErrorTables(t *testing.T) {
	reg := smp.NewErrorRegistry()
	RegisterErrorTables(reg)

	tests := []struct {
		err  smp.Error
		want string
	}{
		{smp.StructuredError(smp.GroupFS, 3), "FILE_NOT_FOUND"},
		{smp.StructuredError(smp.GroupShell, 2), "COMMAND_TOO_LONG"},
		{smp.StructuredError(smp.GroupImage, 2), ImageErrors[0].Name},
		{smp.StructuredError(smp.GroupZephyr, 2), ZephyrErrors[0].Name},
		{smp.StructuredError(smp.GroupUserDefined, 3), "QUERY_YIELDS_NO_ANSWER"},
	}

	for _, tt := range tests {
		if got := reg.Name(tt.err); got != tt.want {
			t.Errorf("Name(%+v) = %s, want %s", tt.err, got, tt.want)
		}
	}
	if len(ErrorTables) != 9 {
		t.Errorf("ErrorTables has %d groups, want 9", len(ErrorTables))
	}
}
