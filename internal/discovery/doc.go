// Package discovery advertises and finds wsgate servers over multicast DNS.
//
// A server started with announcement enabled registers itself under the
// "_wsgate._tcp" service type with its listener port and a "version=" TXT
// record. Clients browse the same service type to pick a server without
// knowing its address.
//
// # Usage Example
//
//	a, err := discovery.Announce("", 8080, []string{"version=" + version.Version}, logger)
//	if err != nil {
//	    return err
//	}
//	defer a.Shutdown()
//
//	// elsewhere
//	svc, err := discovery.NewScanner().WaitForServer(ctx, "")
//	if err != nil {
//	    return err
//	}
//	fmt.Println("Found:", svc.Address())
//
// # Network Requirements
//
// Announcer and Scanner need multicast on the local segment and UDP port
// 5353 open in the firewall.
package discovery
