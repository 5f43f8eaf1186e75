//go:build darwin

package routing

import (
	"fmt"
	"os/exec"
	"strings"
)

func addHostRouteVia(destination, gateway, iface string) error {
	host, isV6 := trimHostMask(destination)
	args := []string{"add", "-host"}
	if isV6 {
		args = append(args, "-inet6")
	}
	args = append(args, host, gateway, "-interface", iface)

	cmd := exec.Command("route", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		if strings.Contains(string(output), "File exists") {
			return nil
		}
		return fmt.Errorf("adding host route %s via %s dev %s: %w, output: %s", host, gateway, iface, err, string(output))
	}
	return nil
}

func removeEndpointRoute(descriptor string) {
	fields := strings.Fields(descriptor)
	if len(fields) == 0 {
		return
	}
	host, isV6 := trimHostMask(fields[0])
	args := []string{"delete", "-host"}
	if isV6 {
		args = append(args, "-inet6")
	}
	args = append(args, host)
	exec.Command("route", args...).Run()
}

func trimHostMask(destination string) (host string, isV6 bool) {
	if h := strings.TrimSuffix(destination, "/128"); h != destination {
		return h, true
	}
	return strings.TrimSuffix(destination, "/32"), false
}
