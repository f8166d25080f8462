// Package ui provides terminal output components for the smpctl CLI.
//
// Commands follow a "run once and exit" pattern: a header naming the
// command and connection, a spinner while the device is queried, then a
// result box or table. Lipgloss renders the boxes and tables and Bubble Tea
// drives the spinner. When stdout is not a terminal the spinner is skipped,
// and with --json the Printer emits machine-readable output instead of
// styled text.
//
// Example:
//
//	p := ui.NewPrinter(os.Stdout, false)
//	p.PrintHeader("Echo", "smpctl echo hello", ui.Field{Key: "Transport", Value: "udp"})
//
//	err := ui.Wait(ctx, os.Stdout, "Waiting for device", func(ctx context.Context) error {
//	    res, err := mgmt.Await(ctx, group, func() error { return group.StartEcho("hello", &reply) })
//	    if err != nil {
//	        return err
//	    }
//	    return res.Err()
//	})
//	if err != nil {
//	    p.PrintError("Echo failed", err, nil)
//	    return err
//	}
//	p.PrintSuccess("Echo", reply, ui.Field{Key: "Reply", Value: reply})
//
// # Logging Integration
//
// zap logging is silent unless --log-level or SMPCTL_LOG_LEVEL is set, so the
// curated output is displayed cleanly.
package ui
