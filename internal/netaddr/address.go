// ABOUTME: Non-loopback IPv4 address enumeration and default-address selection
// ABOUTME: Modeled on internal/discovery/mdns.go's getLocalIPs and
// ABOUTME: original_source/server-core/src/network_manager.cpp's get_address_list
package netaddr

import (
	"net"
)

// privateBlocks are the RFC1918 ranges the original prefers when
// choosing a default bind address.
var privateBlocks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

// List enumerates non-loopback, up-state interfaces' IPv4 addresses.
func List() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var addrs []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		ifaceAddrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, a := range ifaceAddrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() {
				continue
			}
			if v4 := ipnet.IP.To4(); v4 != nil {
				addrs = append(addrs, v4)
			}
		}
	}
	return addrs, nil
}

// isPrivate reports whether addr falls in one of the RFC1918 ranges.
func isPrivate(addr net.IP) bool {
	for _, block := range privateBlocks {
		if block.Contains(addr) {
			return true
		}
	}
	return false
}

// selectDefault picks the first private address, else the first address
// enumerated, else the empty string.
func selectDefault(addrs []net.IP) string {
	if len(addrs) == 0 {
		return ""
	}
	for _, a := range addrs {
		if isPrivate(a) {
			return a.String()
		}
	}
	return addrs[0].String()
}

// DefaultAddress is §6's "Address selection": when no bind host is
// given, prefer the first private-range address, else the first address
// enumerated, else an empty string (caller treats that as an error).
func DefaultAddress() string {
	addrs, err := List()
	if err != nil {
		return ""
	}
	return selectDefault(addrs)
}
