// services/netif/derive.go
package netif

import "net/netip"

// Derivation heuristics behind the static convenience forms. They assume a
// /24-equivalent local segment with the router and resolver at host octet 1;
// they are not network-topology validation.

// withLastOctetOne returns ip with its final octet replaced by 1.
func withLastOctetOne(ip netip.Addr) netip.Addr {
	a := as4(ip)
	a[3] = 1
	return netip.AddrFrom4(a)
}

// defaultSubnetMask is the class-C default, 255.255.255.0.
func defaultSubnetMask() netip.Addr {
	return netip.AddrFrom4([4]byte{255, 255, 255, 0})
}

// as4 converts to register bytes. Invalid or non-IPv4 addresses become the
// unspecified address rather than panicking.
func as4(ip netip.Addr) [4]byte {
	if ip.Is4() || ip.Is4In6() {
		return ip.As4()
	}
	return [4]byte{}
}
