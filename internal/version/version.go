// Package version reports how smpctl was built.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags at release time:
//
//	go build -ldflags="-X github.com/muurk/smpctl/internal/version.Version=v0.3.0 \
//	                   -X github.com/muurk/smpctl/internal/version.Commit=abc1234"
//
// Unset values are filled from the module build info.
var (
	Version = ""
	Commit  = ""
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Modified  bool   `json:"modified,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go"`
	Platform  string `json:"platform"`
	// Dependencies maps the protocol and transport modules to the versions
	// linked in.
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// tracked are the modules whose versions matter when reporting device
// communication problems.
var tracked = []string{
	"github.com/fxamacker/cbor/v2",
	"github.com/looplab/fsm",
	"go.bug.st/serial",
	"github.com/gorilla/websocket",
	"github.com/grandcat/zeroconf",
}

// Get returns the build information of the running binary.
func Get() Info {
	info, _ := debug.ReadBuildInfo()
	return fromBuildInfo(info, Version, Commit)
}

func fromBuildInfo(bi *debug.BuildInfo, version, commit string) Info {
	info := Info{
		Version:   version,
		Commit:    commit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi == nil {
		return info.withFallbacks()
	}

	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = shortHash(s.Value)
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		case "vcs.time":
			info.BuildTime = s.Value
		}
	}
	if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}

	for _, dep := range bi.Deps {
		for _, path := range tracked {
			if dep.Path == path {
				if info.Dependencies == nil {
					info.Dependencies = make(map[string]string)
				}
				info.Dependencies[path] = dep.Version
			}
		}
	}
	return info.withFallbacks()
}

func (i Info) withFallbacks() Info {
	if i.Version == "" {
		i.Version = "dev"
	}
	if i.Commit == "" {
		i.Commit = "unknown"
	}
	return i
}

func shortHash(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

// String returns e.g. "v0.3.0 (commit: abc1234-dirty, go1.24.1 linux/amd64)".
func (i Info) String() string {
	commit := i.Commit
	if i.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (commit: %s, %s %s)", i.Version, commit, i.GoVersion, i.Platform)
}

// Full returns the one-line version of the running binary.
func Full() string {
	return Get().String()
}

// DependencyLines renders Dependencies as "path version" lines in a fixed
// order.
func (i Info) DependencyLines() []string {
	var lines []string
	for _, path := range tracked {
		if v, ok := i.Dependencies[path]; ok {
			lines = append(lines, path+" "+v)
		}
	}
	return lines
}

// Short is the version alone, for cobra's --version flag.
func Short() string {
	return Get().Version
}
