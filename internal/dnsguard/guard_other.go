//go:build !darwin

package dnsguard

// noOpGuard is used on platforms where the daemon does not override
// system DNS (only macOS's networksetup dance is implemented).
type noOpGuard struct{}

func (noOpGuard) Restore() error { return nil }

func applyPlatform(servers []string) (Guard, error) {
	return noOpGuard{}, nil
}
