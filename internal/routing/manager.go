package routing

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/cloudtether/vpnd/internal/logging"
)

var errNoDefaultRoute = errors.New("no default route found")

// addressFamily selects which default route currentDefaultGateway looks
// up — the peer endpoint's protection route must go out via the gateway
// of its own address family.
type addressFamily int

const (
	familyV4 addressFamily = iota
	familyV6
)

// Installed records every route this package added for a tunnel, in the
// order needed to tear them back down.
type Installed struct {
	TUN            *TUNDevice
	EndpointRoute  string // host/32 or host/128, empty if none was added
	SplitV4Low     string
	SplitV4High    string
	SplitV6Low     string
	SplitV6High    string
}

// MARK: Install

// Install brings up a TUN device, assigns its tunnel addresses, adds a
// host route for the peer endpoint via the current default gateway (so
// the encrypted tunnel traffic itself stays reachable), and installs the
// IPv4/IPv6 split-default routes (0.0.0.0/1+128.0.0.0/1 and
// ::/1+8000::/1) that redirect all other traffic through the tunnel
// without removing the pre-existing default route. Grounded on
// joegrice-nzb-connect's setupRouting/addEndpointRoute install ordering:
// the endpoint route must land before the split-default routes, or the
// peer becomes unreachable the instant the split-default routes apply.
//
// TUN creation and address assignment are the only hard failures: without
// them there's nothing to route traffic through at all. The endpoint
// route and the four split-default routes are best-effort — a failure on
// any one of them is logged and Install continues, matching §4.B's
// add_vpn_routes ("continuing past individual failures but logging
// them"); a route that didn't make it just leaves that slice of traffic
// on the system's existing default path instead of the tunnel.
func Install(tunName string, mtu int, tunAddrV4, tunAddrV6 netip.Prefix, endpoint netip.AddrPort, log *logging.Logger) (*Installed, error) {
	tun, err := CreateTUN(tunName, mtu)
	if err != nil {
		return nil, fmt.Errorf("creating TUN device: %w", err)
	}

	installed := &Installed{TUN: tun}

	if err := tun.AddAddress(tunAddrV4.String()); err != nil {
		tun.Close()
		return nil, fmt.Errorf("assigning IPv4 address: %w", err)
	}
	if err := tun.AddAddress(tunAddrV6.String()); err != nil {
		tun.Close()
		return nil, fmt.Errorf("assigning IPv6 address: %w", err)
	}

	if endpoint.IsValid() {
		route, err := addEndpointRoute(endpoint.Addr())
		if err != nil {
			log.Warn("adding endpoint protection route failed, continuing", "error", err)
		} else {
			installed.EndpointRoute = route
		}
	}

	splitV4Low, splitV4High := "0.0.0.0/1", "128.0.0.0/1"
	if err := tun.AddRoute(splitV4Low); err != nil {
		log.Warn("adding split-default route failed, continuing", "route", splitV4Low, "error", err)
	} else {
		installed.SplitV4Low = splitV4Low
	}
	if err := tun.AddRoute(splitV4High); err != nil {
		log.Warn("adding split-default route failed, continuing", "route", splitV4High, "error", err)
	} else {
		installed.SplitV4High = splitV4High
	}

	splitV6Low, splitV6High := "::/1", "8000::/1"
	if err := tun.AddRoute(splitV6Low); err != nil {
		log.Warn("adding split-default route failed, continuing", "route", splitV6Low, "error", err)
	} else {
		installed.SplitV6Low = splitV6Low
	}
	if err := tun.AddRoute(splitV6High); err != nil {
		log.Warn("adding split-default route failed, continuing", "route", splitV6High, "error", err)
	} else {
		installed.SplitV6High = splitV6High
	}

	return installed, nil
}

// MARK: addEndpointRoute

// addEndpointRoute adds a /32 (IPv4) or /128 (IPv6) host route for the
// peer endpoint via the current default gateway of the matching address
// family.
func addEndpointRoute(host netip.Addr) (string, error) {
	family := familyV4
	mask := "/32"
	if host.Is6() && !host.Is4In6() {
		family = familyV6
		mask = "/128"
	}

	gateway, iface, err := currentDefaultGateway(family)
	if err != nil {
		return "", err
	}

	destination := host.String() + mask
	if err := addHostRouteVia(destination, gateway, iface); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s via %s dev %s", destination, gateway, iface), nil
}

// MARK: Teardown

// Teardown undoes everything Install added, in reverse order, swallowing
// not-found errors the same way the underlying route/address helpers do.
func Teardown(installed *Installed) {
	if installed == nil || installed.TUN == nil {
		return
	}

	if installed.SplitV6High != "" {
		installed.TUN.RemoveRoute(installed.SplitV6High)
	}
	if installed.SplitV6Low != "" {
		installed.TUN.RemoveRoute(installed.SplitV6Low)
	}
	if installed.SplitV4High != "" {
		installed.TUN.RemoveRoute(installed.SplitV4High)
	}
	if installed.SplitV4Low != "" {
		installed.TUN.RemoveRoute(installed.SplitV4Low)
	}
	if installed.EndpointRoute != "" {
		removeEndpointRoute(installed.EndpointRoute)
	}

	installed.TUN.Close()
}
