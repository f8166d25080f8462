// Package discovery finds SMP servers on the local network with mDNS.
//
// Devices that expose SMP over UDP advertise the "_mcumgr._udp" service.
// A Scanner browses for it until its timeout and returns every instance that
// answered with an address, ready to be used as a UDP transport target:
//
//	devices, err := discovery.NewScanner().Scan(ctx)
//	if err != nil {
//	    return err
//	}
//	for _, d := range devices {
//	    fmt.Printf("%s at %s\n", d.Instance, d.Address())
//	}
//
// Find stops at the first instance with a given name.
package discovery
