//go:build linux

package routing

import "github.com/vishvananda/netlink"

// currentDefaultGateway resolves the current default route's gateway IP
// and outbound interface name for the given address family, read directly
// off the main routing table rather than shelling out to `ip route show`
// the way joegrice-nzb-connect's addEndpointRoute does, since
// vishvananda/netlink gives native access to the same information here.
func currentDefaultGateway(family addressFamily) (gateway string, iface string, err error) {
	netlinkFamily := netlink.FAMILY_V4
	if family == familyV6 {
		netlinkFamily = netlink.FAMILY_V6
	}

	routes, err := netlink.RouteList(nil, netlinkFamily)
	if err != nil {
		return "", "", err
	}

	for _, r := range routes {
		if r.Dst != nil {
			continue // only the default route has a nil destination
		}
		if r.Gw == nil {
			continue
		}
		link, lerr := netlink.LinkByIndex(r.LinkIndex)
		if lerr != nil {
			continue
		}
		return r.Gw.String(), link.Attrs().Name, nil
	}

	return "", "", errNoDefaultRoute
}
