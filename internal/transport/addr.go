package transport

import "net"

// DefaultPort is the session port a client joins when none is given.
const DefaultPort = 9999

// LocalAddress returns the machine's first non-loopback IPv4 address, or
// "127.0.0.1" when none is available.
func LocalAddress() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "127.0.0.1"
}
