package pipeline

import (
	"fmt"
	"net/netip"
	"strings"
)

// Allowlist matches trusted sources by exact address or CIDR prefix.
type Allowlist struct {
	addrs    map[netip.Addr]struct{}
	prefixes []netip.Prefix
}

// NewAllowlist parses entries such as "10.0.0.5" or "192.168.0.0/16". Blank
// entries are ignored.
func NewAllowlist(entries []string) (*Allowlist, error) {
	a := &Allowlist{addrs: make(map[netip.Addr]struct{})}
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("allowlist entry %q: %w", entry, err)
			}
			a.prefixes = append(a.prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("allowlist entry %q: %w", entry, err)
		}
		a.addrs[addr.Unmap()] = struct{}{}
	}
	return a, nil
}

func (a *Allowlist) Empty() bool {
	return a == nil || (len(a.addrs) == 0 && len(a.prefixes) == 0)
}

// Contains reports whether sourceID is allowlisted. Source ids that are not
// valid addresses never match.
func (a *Allowlist) Contains(sourceID string) bool {
	if a.Empty() {
		return false
	}
	addr, err := netip.ParseAddr(sourceID)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	if _, ok := a.addrs[addr]; ok {
		return true
	}
	for _, p := range a.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
