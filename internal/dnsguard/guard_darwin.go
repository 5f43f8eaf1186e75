//go:build darwin

package dnsguard

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/cloudtether/vpnd/internal/vpnerrors"
)

// macOSGuard records the DNS servers each enabled network service had
// before Apply, so Restore can put them back.
type macOSGuard struct {
	mu       sync.Mutex
	original map[string][]string // nil slice means "no DNS servers were set"
	applied  bool
}

func applyPlatform(servers []string) (Guard, error) {
	serviceNames, err := listAllEnabledNetworkServices()
	if err != nil {
		return nil, vpnerrors.DNS("Connect", err)
	}

	original := make(map[string][]string, len(serviceNames))
	for _, name := range serviceNames {
		current, err := getDNSServers(name)
		if err != nil {
			return nil, vpnerrors.DNS("Connect", err)
		}
		original[name] = current
	}

	for _, name := range serviceNames {
		if err := setDNSServers(name, servers); err != nil {
			return nil, vpnerrors.DNS("Connect", err)
		}
	}

	return &macOSGuard{original: original, applied: true}, nil
}

// MARK: Restore

func (g *macOSGuard) Restore() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.applied {
		return nil
	}

	var firstErr error
	for name, servers := range g.original {
		if err := setDNSServers(name, servers); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	g.applied = false
	if firstErr != nil {
		return vpnerrors.DNS("Disconnect", firstErr)
	}
	return nil
}

// MARK: listAllEnabledNetworkServices

func listAllEnabledNetworkServices() ([]string, error) {
	out, err := exec.Command("networksetup", "-listallnetworkservices").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("networksetup -listallnetworkservices: %w, output: %s", err, string(out))
	}

	var services []string
	for i, line := range strings.Split(string(out), "\n") {
		if i == 0 {
			continue // header line
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "*") {
			continue // "*Service Name" means disabled
		}
		services = append(services, trimmed)
	}
	return services, nil
}

// MARK: getDNSServers

func getDNSServers(serviceName string) ([]string, error) {
	out, err := exec.Command("networksetup", "-getdnsservers", serviceName).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("networksetup -getdnsservers %s: %w, output: %s", serviceName, err, string(out))
	}

	text := string(out)
	if strings.Contains(text, "aren't any DNS Servers set") {
		return nil, nil
	}

	var servers []string
	for _, line := range strings.Split(text, "\n") {
		t := strings.TrimSpace(line)
		if t != "" {
			servers = append(servers, t)
		}
	}
	return servers, nil
}

// MARK: setDNSServers

func setDNSServers(serviceName string, servers []string) error {
	args := []string{"-setdnsservers", serviceName}
	if len(servers) > 0 {
		args = append(args, servers...)
	} else {
		args = append(args, "Empty")
	}

	if out, err := exec.Command("networksetup", args...).CombinedOutput(); err != nil {
		return fmt.Errorf("networksetup -setdnsservers %s: %w, output: %s", serviceName, err, string(out))
	}
	return nil
}
