// Package logging provides structured logging for smpctl.
//
// This package wraps a global zap logger. Logging is silent unless a level
// is given with --log-level or the SMPCTL_LOG_LEVEL environment variable, so
// command output is never mixed with diagnostics by default.
//
// # Log Levels
//
//   - Debug: frame hex dumps, dropped responses, retransmissions
//   - Info: transport lifecycle (port opened, socket bound, closed)
//   - Warn: recoverable problems (retransmission write failed, CRC errors)
//   - Error: failures that abort a command
//
// # Usage
//
//	if err := logging.Initialize(level); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
//	log := logging.Named("serial")
//	logging.LogFrame(log, "tx", frame)
package logging
