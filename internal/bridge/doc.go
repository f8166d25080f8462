// Package bridge serves SMP devices to WebSocket clients.
//
// A Bridge owns one device transport (usually a serial console) and accepts
// WebSocket connections. Each binary message from a client is sent to the
// device as one SMP frame; each message the device answers with is written
// back to the client that sent the last frame. This is the server side of
// the websocket transport, so a device on one machine can be managed from
// another:
//
//	dev, _ := serial.Open(serial.Config{Port: "/dev/ttyACM0"})
//	b := bridge.New(dev, bridge.Config{Listen: ":8080"})
//	go b.Start()
//	...
//	b.Shutdown(ctx)
//
// Clients then connect with smpctl --url ws://host:8080/smp.
package bridge
