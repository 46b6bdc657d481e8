// Package cidrutil provides the subnet arithmetic the network model
// needs: family detection, RFC1918/ULA membership, broadcast-address and
// default-pool computation, and IP/subnet overlap and ordering checks.
// It starts from the teacher's CalculatePoolFromCIDR (originally a
// Kea-pool-range helper for provisioning DHCP pools) generalized from a
// fixed ".1 gateway / .4-.254 pool" IPv4-only shape into the family- and
// mask-aware range computation spec.md's network model requires, plus
// IPv6 and overlap support the teacher never needed.
package cidrutil

import (
	"fmt"
	"math/big"
	"net"
	"strings"
)

// Family names an address family.
type Family string

const (
	IPv4 Family = "ipv4"
	IPv6 Family = "ipv6"
)

// FamilyOf reports the address family of ip, or "" if ip is invalid.
func FamilyOf(ip net.IP) Family {
	if ip == nil {
		return ""
	}
	if ip.To4() != nil {
		return IPv4
	}
	if ip.To16() != nil {
		return IPv6
	}
	return ""
}

var rfc1918Blocks = mustParseAll(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
)

var ulaBlock = mustParse("fc00::/7")

func mustParse(cidr string) *net.IPNet {
	_, n, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(err)
	}
	return n
}

func mustParseAll(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, len(cidrs))
	for i, c := range cidrs {
		out[i] = mustParse(c)
	}
	return out
}

// IsRFC1918 reports whether subnet lies entirely within RFC1918 private
// IPv4 space.
func IsRFC1918(subnet *net.IPNet) bool {
	for _, block := range rfc1918Blocks {
		if block.Contains(subnet.IP) && containsSubnet(block, subnet) {
			return true
		}
	}
	return false
}

// IsULA reports whether subnet lies entirely within unique local IPv6
// address space (fc00::/7).
func IsULA(subnet *net.IPNet) bool {
	return ulaBlock.Contains(subnet.IP) && containsSubnet(ulaBlock, subnet)
}

func containsSubnet(outer, inner *net.IPNet) bool {
	outerOnes, outerBits := outer.Mask.Size()
	innerOnes, innerBits := inner.Mask.Size()
	if outerBits != innerBits || innerOnes < outerOnes {
		return false
	}
	return outer.Contains(inner.IP)
}

// Broadcast returns the broadcast address of an IPv4 subnet. It panics if
// subnet is not an IPv4 network; callers must check family first.
func Broadcast(subnet *net.IPNet) net.IP {
	ip := subnet.IP.To4()
	if ip == nil {
		panic("cidrutil: Broadcast called on non-IPv4 subnet")
	}
	mask := subnet.Mask
	out := make(net.IP, 4)
	for i := 0; i < 4; i++ {
		out[i] = ip[i] | ^mask[i]
	}
	return out
}

// DefaultPool describes the conventional gateway/provision-range
// carve-out of a freshly created subnet: gateway at the first host
// address, provision range from the fourth host address (network+4) to the
// last usable address before the broadcast (IPv4) or network end (IPv6).
type DefaultPool struct {
	Gateway        net.IP
	ProvisionStart net.IP
	ProvisionEnd   net.IP
}

// CalculateDefaultPool derives a DefaultPool from subnet: gateway is
// network+1; the provision range runs from network+4 through the last
// usable address (broadcast-1 for IPv4, or the subnet's final address for
// IPv6, which has no broadcast concept).
func CalculateDefaultPool(subnet *net.IPNet) (DefaultPool, error) {
	switch FamilyOf(subnet.IP) {
	case IPv4:
		return calculateDefaultPoolV4(subnet)
	case IPv6:
		return calculateDefaultPoolV6(subnet)
	default:
		return DefaultPool{}, fmt.Errorf("cidrutil: unrecognized subnet family for %s", subnet)
	}
}

func calculateDefaultPoolV4(subnet *net.IPNet) (DefaultPool, error) {
	ip := subnet.IP.To4()
	broadcast := Broadcast(subnet)

	gateway := make(net.IP, 4)
	copy(gateway, ip)
	gateway[3]++

	start := make(net.IP, 4)
	copy(start, ip)
	start[3] += 4

	end := make(net.IP, 4)
	copy(end, broadcast)
	end[3]--

	if !Less(start, end) {
		return DefaultPool{}, fmt.Errorf("cidrutil: network %s is too small for a default provision range", subnet)
	}
	return DefaultPool{Gateway: gateway, ProvisionStart: start, ProvisionEnd: end}, nil
}

func calculateDefaultPoolV6(subnet *net.IPNet) (DefaultPool, error) {
	networkInt := ipToBigInt(subnet.IP.To16())
	ones, bits := subnet.Mask.Size()
	hostBits := bits - ones
	size := new(big.Int).Lsh(big.NewInt(1), uint(hostBits))
	last := new(big.Int).Add(networkInt, new(big.Int).Sub(size, big.NewInt(1)))

	gateway := bigIntToIP(new(big.Int).Add(networkInt, big.NewInt(1)), 16)
	start := bigIntToIP(new(big.Int).Add(networkInt, big.NewInt(4)), 16)
	end := bigIntToIP(last, 16)

	if !Less(start, end) {
		return DefaultPool{}, fmt.Errorf("cidrutil: network %s is too small for a default provision range", subnet)
	}
	return DefaultPool{Gateway: gateway, ProvisionStart: start, ProvisionEnd: end}, nil
}

// Less reports whether a sorts before b as an address, comparing both in
// their 16-byte form so mixed 4-/16-byte net.IP values compare correctly.
func Less(a, b net.IP) bool {
	return ipToBigInt(a).Cmp(ipToBigInt(b)) < 0
}

// Within reports whether ip lies within [lo, hi] inclusive.
func Within(ip, lo, hi net.IP) bool {
	v := ipToBigInt(ip)
	return v.Cmp(ipToBigInt(lo)) >= 0 && v.Cmp(ipToBigInt(hi)) <= 0
}

// Overlaps reports whether two subnets share any address.
func Overlaps(a, b *net.IPNet) bool {
	return a.Contains(b.IP) || b.Contains(a.IP)
}

// Contains reports whether subnet contains ip.
func Contains(subnet *net.IPNet, ip net.IP) bool {
	return subnet.Contains(ip)
}

// Inc returns the address one past ip.
func Inc(ip net.IP) net.IP {
	size := len(ip.To4())
	if size == 0 {
		size = 16
	}
	return bigIntToIP(new(big.Int).Add(ipToBigInt(ip), big.NewInt(1)), size)
}

// Dec returns the address one before ip.
func Dec(ip net.IP) net.IP {
	size := len(ip.To4())
	if size == 0 {
		size = 16
	}
	return bigIntToIP(new(big.Int).Sub(ipToBigInt(ip), big.NewInt(1)), size)
}

// SortKey renders ip as a fixed-width, zero-padded decimal string whose
// lexicographic order matches numeric address order — used to sort IP
// records ascending in a findObjects scan.
func SortKey(ip net.IP) string {
	const width = 39 // max decimal digits of a 128-bit address
	s := ipToBigInt(ip).String()
	if len(s) < width {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return s
}

func ipToBigInt(ip net.IP) *big.Int {
	if v4 := ip.To4(); v4 != nil {
		return new(big.Int).SetBytes(v4)
	}
	return new(big.Int).SetBytes(ip.To16())
}

func bigIntToIP(v *big.Int, size int) net.IP {
	b := v.Bytes()
	out := make(net.IP, size)
	copy(out[size-len(b):], b)
	return out
}
