// Package dnsguard overrides and restores macOS per-service DNS servers
// while a tunnel is active. Ported from
// original_source/crates/daemon/src/routing/dns_macos.rs's
// DomainNameSystemOverrideGuard, expressed in the teacher's Go error/retry
// idiom rather than translated line for line.
package dnsguard

import "github.com/cloudtether/vpnd/internal/vpnerrors"

// Guard applies a set of DNS servers system-wide and later restores
// whatever was configured before. Non-darwin platforms get a no-op
// implementation (guard_other.go); darwin gets the real
// networksetup-backed one (guard_darwin.go).
type Guard interface {
	// Restore reverts every network service to the DNS configuration it
	// had before Apply, in whatever order is convenient; it is safe to
	// call more than once.
	Restore() error
}

// Apply validates servers and hands off to the platform-specific
// implementation selected at build time.
func Apply(servers []string) (Guard, error) {
	if len(servers) == 0 {
		return nil, vpnerrors.DNS("Connect", errEmptyServerList)
	}
	return applyPlatform(servers)
}

var errEmptyServerList = emptyServerListError{}

type emptyServerListError struct{}

func (emptyServerListError) Error() string { return "desired DNS server list is empty" }
