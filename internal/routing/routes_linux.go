//go:build linux

package routing

import (
	"fmt"
	"net"
	"strings"

	"github.com/vishvananda/netlink"
)

func addHostRouteVia(destination, gateway, iface string) error {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return fmt.Errorf("finding gateway interface %s: %w", iface, err)
	}

	_, destNet, err := net.ParseCIDR(destination)
	if err != nil {
		return fmt.Errorf("parsing destination %s: %w", destination, err)
	}

	gw := net.ParseIP(gateway)
	if gw == nil {
		return fmt.Errorf("invalid gateway address %q", gateway)
	}

	route := &netlink.Route{LinkIndex: link.Attrs().Index, Dst: destNet, Gw: gw}
	if err := netlink.RouteAdd(route); err != nil {
		if strings.Contains(err.Error(), "file exists") {
			return nil
		}
		return fmt.Errorf("adding host route %s via %s dev %s: %w", destination, gateway, iface, err)
	}
	return nil
}

func removeEndpointRoute(descriptor string) {
	fields := strings.Fields(descriptor)
	if len(fields) == 0 {
		return
	}
	destination := fields[0]

	_, destNet, err := net.ParseCIDR(destination)
	if err != nil {
		return
	}

	var gw net.IP
	var linkIndex int
	for i, f := range fields {
		if f == "via" && i+1 < len(fields) {
			gw = net.ParseIP(fields[i+1])
		}
		if f == "dev" && i+1 < len(fields) {
			if link, err := netlink.LinkByName(fields[i+1]); err == nil {
				linkIndex = link.Attrs().Index
			}
		}
	}

	netlink.RouteDel(&netlink.Route{LinkIndex: linkIndex, Dst: destNet, Gw: gw})
}
