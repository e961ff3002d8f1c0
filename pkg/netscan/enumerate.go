// Package netscan provides the sequential building blocks of a survey:
// subnet address enumeration and per-host lookups. The pipeline scheduler
// fans these out; nothing in this package is concurrent by itself.
package netscan

import (
	"fmt"
	"net/netip"
)

// maxHostsPerPrefix guards against expanding an unreasonably large prefix
// into memory.
const maxHostsPerPrefix = 1 << 16

// ParseTargets parses survey targets. Each entry is a CIDR prefix or a bare
// address, which is treated as a single-host prefix.
func ParseTargets(targets []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(targets))
	for _, target := range targets {
		if prefix, err := netip.ParsePrefix(target); err == nil {
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(target)
		if err != nil {
			return nil, fmt.Errorf("invalid target %q: %w", target, err)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// Expand enumerates the host addresses of a prefix. For IPv4 prefixes wider
// than /31 the network and broadcast addresses are skipped.
func Expand(prefix netip.Prefix) ([]netip.Addr, error) {
	prefix = prefix.Masked()
	hostBits := prefix.Addr().BitLen() - prefix.Bits()
	if hostBits > 16 {
		return nil, fmt.Errorf("prefix %s expands to more than %d hosts", prefix, maxHostsPerPrefix)
	}

	var addrs []netip.Addr
	for addr := prefix.Addr(); prefix.Contains(addr); addr = addr.Next() {
		addrs = append(addrs, addr)
	}

	if prefix.Addr().Is4() && prefix.Bits() < 31 && len(addrs) > 2 {
		addrs = addrs[1 : len(addrs)-1]
	}
	return addrs, nil
}

// ExpandAll enumerates every target prefix into one flat address list, in
// target order.
func ExpandAll(prefixes []netip.Prefix) ([]netip.Addr, error) {
	var addrs []netip.Addr
	for _, prefix := range prefixes {
		expanded, err := Expand(prefix)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, expanded...)
	}
	return addrs, nil
}
