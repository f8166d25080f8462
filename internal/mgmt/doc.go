// Package mgmt implements the SMP management groups on top of an
// smp.Processor.
//
// Each group (OS, Image, Stat, Settings, FS, Shell, Enum, Zephyr) registers
// itself with the processor and its error table with an smp.ErrorRegistry
// when constructed. A group runs one command at a time: a Start method
// validates its parameters, sends the request and returns; the outcome is
// delivered to the OnStatus observers, and decoded values are written to
// the output the Start method was given before StatusComplete is reported.
//
// Await wraps that flow for callers that want to block:
//
//	p := smp.NewProcessor(transport)
//	osg := mgmt.NewOS(p)
//
//	var reply string
//	res, err := mgmt.Await(ctx, osg, func() error {
//		return osg.StartEcho("hello", &reply)
//	})
//	if err == nil {
//		err = res.Err()
//	}
package mgmt
