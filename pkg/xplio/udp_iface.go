package xplio

import (
	"fmt"
	"net"
)

// selectInterface returns the IPv4 address and netmask of iface, or of
// the first active, non-loopback interface if iface is empty (spec.md
// §4.2, grounded on prvFindDefaultIface in
// _examples/original_source/src/sys/unix/io_udp.c).
func selectInterface(iface string) (name string, ip net.IP, mask net.IPMask, err error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", nil, nil, err
	}

	for _, ifi := range ifaces {
		if iface != "" && ifi.Name != iface {
			continue
		}
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			return ifi.Name, ip4, ipNet.Mask, nil
		}
	}
	return "", nil, nil, fmt.Errorf("no active non-loopback IPv4 interface found")
}

// buildLocalAddrList enumerates every IPv4 address bound to iface
// (grounded on prvBuildLocalIpList in the same source file). An empty
// iface enumerates every interface, including loopback and interfaces
// that are down.
func buildLocalAddrList(iface string) ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var out []net.IP
	for _, ifi := range ifaces {
		if iface != "" && ifi.Name != iface {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipNet.IP.To4(); ip4 != nil {
				out = append(out, ip4)
			}
		}
	}
	return out, nil
}
