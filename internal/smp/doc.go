// Package smp implements the core of the Simple Management Protocol client.
//
// SMP is a request/response protocol used to manage embedded devices (image
// management, shell access, statistics, settings, file system) over byte
// transports such as a serial console, UDP or WebSocket bridges.
//
// # Message Format
//
// Every message is an 8-byte header followed by a CBOR body:
//   - Byte 0: op (bits 0-2), protocol version (bits 3-4), reserved (bits 5-7)
//   - Byte 1: flags
//   - Bytes 2-3: body length (big-endian)
//   - Bytes 4-5: group ID (big-endian)
//   - Byte 6: sequence number
//   - Byte 7: command ID
//
// # Processor
//
// Processor owns the single outstanding transaction. Send assigns a sequence
// number, writes the frame and arms a timer; on expiry the identical bytes
// are retransmitted until the retry budget is exhausted, after which the
// owning Handler gets Timeout. A response must match the outstanding
// request's group, command, sequence and the corresponding response op,
// otherwise it is logged and dropped.
//
// # Errors
//
// Devices report failures in two generations. Version 0 responses carry an
// integer "rc" at the top level (a legacy code shared by every group).
// Version 1 responses carry a "ret" map holding the reporting group and a
// group-scoped code; codes 0 and 1 are global and codes from 2 upwards index
// the group's table registered in an ErrorRegistry.
//
// # Usage Example
//
//	p := smp.NewProcessor(transport, smp.WithLogger(logging.Named("smp")))
//	p.Register(smp.GroupOS, handler)
//
//	msg := smp.NewMessage(smp.OpWrite, smp.Version2, smp.GroupOS, 0)
//	msg.Writer().TextField("d", "hello")
//	if err := msg.End(); err != nil {
//	    return err
//	}
//	if err := p.Send(msg, smp.DefaultTimeout, smp.DefaultRetries); err != nil {
//	    return err
//	}
package smp
