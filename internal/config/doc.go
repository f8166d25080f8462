// Package config provides user configuration for smpctl.
//
// The configuration is a YAML file of named connection profiles. A profile
// picks a transport (serial, udp or ws) with its parameters and may override
// the SMP protocol defaults (timeout, retries, version). Settings are
// resolved in order: built-in defaults, the file's protocol section, the
// selected profile, SMPCTL_* environment variables (after loading
// .env.local if present), and finally command line flags.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/smpctl/config.yaml or $HOME/.config/smpctl/config.yaml
//   - macOS: $HOME/.config/smpctl/config.yaml
//   - Windows: %LOCALAPPDATA%\smpctl\config.yaml
//
// # Example
//
//	version: 1
//	default_profile: board
//	protocol:
//	  timeout: 5s
//	profiles:
//	  board:
//	    transport: serial
//	    serial:
//	      port: /dev/ttyACM0
//	      baud: 115200
//	  lab:
//	    transport: udp
//	    udp:
//	      address: 192.0.2.10
//	    protocol:
//	      retries: 3
package config
