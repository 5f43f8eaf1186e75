//go:build !linux && !darwin

package routing

func addHostRouteVia(destination, gateway, iface string) error {
	return errNoDefaultRoute
}

func removeEndpointRoute(descriptor string) {}
