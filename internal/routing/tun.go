// Package routing owns TUN device creation and the host routing table
// changes a tunnel needs: the interface address, the split-default routes
// that redirect all traffic through the tunnel, and the peer-endpoint host
// route that keeps the encrypted tunnel traffic itself reachable. Adapted
// from the teacher's wireguard/tuntap.go (CreateTUN/configure/AddAddress/
// AddRoute/RemoveRoute), enriched with the default-gateway discovery and
// endpoint-protection-route pattern from joegrice-nzb-connect's
// internal/vpn/wireguard.go (setupRouting/addEndpointRoute).
package routing

import (
	"fmt"
	"net"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/songgao/water"
	"github.com/vishvananda/netlink"
)

const (
	maxConfigRetries = 3
	tunRetryDelay    = 2 * time.Second
)

// TUNDevice wraps a platform TUN interface plus the name/MTU the daemon
// configured it with.
type TUNDevice struct {
	iface *water.Interface
	name  string
	mtu   int
}

// MARK: CreateTUN

// Creates and configures a TUN device with the requested name and MTU. The
// requested name is advisory on platforms (like macOS) where the kernel
// assigns the real name; callers must use Name() afterward.
func CreateTUN(name string, mtu int) (*TUNDevice, error) {
	if mtu <= 0 || mtu > 65536 {
		mtu = 1280
	}

	config := water.Config{DeviceType: water.TUN}
	configureWaterName(&config, name)

	var iface *water.Interface
	var err error
	for attempt := 1; attempt <= maxConfigRetries; attempt++ {
		iface, err = water.New(config)
		if err == nil {
			break
		}
		if attempt < maxConfigRetries {
			time.Sleep(tunRetryDelay)
			continue
		}
		return nil, fmt.Errorf("creating TUN device after %d attempts: %w", maxConfigRetries, err)
	}

	actualName := iface.Name()
	if actualName == "" {
		iface.Close()
		return nil, fmt.Errorf("failed to get interface name")
	}

	device := &TUNDevice{iface: iface, name: actualName, mtu: mtu}

	if err := device.configure(); err != nil {
		iface.Close()
		return nil, fmt.Errorf("configuring TUN device: %w", err)
	}

	return device, nil
}

// MARK: configure

func (t *TUNDevice) configure() error {
	var err error
	for attempt := 1; attempt <= maxConfigRetries; attempt++ {
		if runtime.GOOS == "darwin" {
			err = t.configureDarwin()
		} else {
			err = t.configureLinux()
		}
		if err == nil {
			return nil
		}
		if attempt < maxConfigRetries {
			time.Sleep(tunRetryDelay)
			continue
		}
	}
	return fmt.Errorf("failed to configure TUN device after %d attempts: %w", maxConfigRetries, err)
}

func (t *TUNDevice) configureDarwin() error {
	commands := [][]string{
		{"ifconfig", t.name, "mtu", strconv.Itoa(t.mtu)},
		{"ifconfig", t.name, "up"},
	}
	for _, cmdArgs := range commands {
		cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)
		if output, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("command %v failed: %w, output: %s", cmdArgs, err, string(output))
		}
	}
	return t.verifyConfiguration()
}

func (t *TUNDevice) configureLinux() error {
	link, err := netlink.LinkByName(t.name)
	if err != nil {
		return fmt.Errorf("finding interface %s: %w", t.name, err)
	}
	if err := netlink.LinkSetMTU(link, t.mtu); err != nil {
		return fmt.Errorf("setting MTU to %d: %w", t.mtu, err)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("bringing interface %s up: %w", t.name, err)
	}
	return t.verifyConfiguration()
}

func (t *TUNDevice) verifyConfiguration() error {
	if runtime.GOOS != "linux" {
		return nil
	}
	link, err := netlink.LinkByName(t.name)
	if err != nil {
		return fmt.Errorf("verification failed - interface not found: %w", err)
	}
	attrs := link.Attrs()
	if attrs.MTU != t.mtu {
		return fmt.Errorf("verification failed - MTU mismatch: expected %d, got %d", t.mtu, attrs.MTU)
	}
	if attrs.Flags&net.FlagUp == 0 {
		return fmt.Errorf("verification failed - interface is not up")
	}
	return nil
}

// MARK: AddAddress

// Adds an IP address (CIDR) to the TUN interface, idempotent on duplicate.
func (t *TUNDevice) AddAddress(cidr string) error {
	if _, _, err := net.ParseCIDR(cidr); err != nil {
		return fmt.Errorf("invalid CIDR format %s: %w", cidr, err)
	}

	var err error
	for attempt := 1; attempt <= maxConfigRetries; attempt++ {
		if runtime.GOOS == "darwin" {
			err = t.addAddressDarwin(cidr)
		} else {
			err = t.addAddressLinux(cidr)
		}
		if err == nil {
			return nil
		}
		if attempt < maxConfigRetries {
			time.Sleep(tunRetryDelay)
			continue
		}
	}
	return fmt.Errorf("failed to add address %s after %d attempts: %w", cidr, maxConfigRetries, err)
}

func (t *TUNDevice) addAddressDarwin(cidr string) error {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("parsing CIDR %s: %w", cidr, err)
	}

	var cmd *exec.Cmd
	ones, bits := ipnet.Mask.Size()
	if ones == bits {
		cmd = exec.Command("ifconfig", t.name, "inet", ip.String(), ip.String())
	} else {
		cmd = exec.Command("ifconfig", t.name, "inet", ip.String(), ipnet.IP.String())
	}

	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("adding address %s: %w, output: %s", cidr, err, string(output))
	}
	return nil
}

func (t *TUNDevice) addAddressLinux(cidr string) error {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("parsing CIDR %s: %w", cidr, err)
	}

	link, err := netlink.LinkByName(t.name)
	if err != nil {
		return fmt.Errorf("finding interface %s: %w", t.name, err)
	}

	addr := &netlink.Addr{IPNet: &net.IPNet{IP: ip, Mask: ipnet.Mask}}
	if err := netlink.AddrAdd(link, addr); err != nil {
		if strings.Contains(err.Error(), "file exists") {
			return nil
		}
		return fmt.Errorf("adding address %s to interface %s: %w", cidr, t.name, err)
	}
	return nil
}

// MARK: AddRoute

// Adds a route through this TUN interface, idempotent on "already exists".
func (t *TUNDevice) AddRoute(destination string) error {
	if _, _, err := net.ParseCIDR(destination); err != nil {
		return fmt.Errorf("invalid destination CIDR %s: %w", destination, err)
	}

	var err error
	for attempt := 1; attempt <= maxConfigRetries; attempt++ {
		if runtime.GOOS == "darwin" {
			err = t.addRouteDarwin(destination)
		} else {
			err = t.addRouteLinux(destination)
		}
		if err == nil {
			return nil
		}
		if strings.Contains(err.Error(), "file exists") || strings.Contains(err.Error(), "exists") {
			return nil
		}
		if attempt < maxConfigRetries {
			time.Sleep(tunRetryDelay)
			continue
		}
	}
	return fmt.Errorf("failed to add route %s after %d attempts: %w", destination, maxConfigRetries, err)
}

func (t *TUNDevice) addRouteDarwin(destination string) error {
	cmd := exec.Command("route", "add", "-net", destination, "-interface", t.name)
	if output, err := cmd.CombinedOutput(); err != nil {
		if strings.Contains(string(output), "File exists") {
			return nil
		}
		return fmt.Errorf("adding route %s via %s: %w, output: %s", destination, t.name, err, string(output))
	}
	return nil
}

func (t *TUNDevice) addRouteLinux(destination string) error {
	_, destNet, err := net.ParseCIDR(destination)
	if err != nil {
		return fmt.Errorf("parsing destination %s: %w", destination, err)
	}

	link, err := netlink.LinkByName(t.name)
	if err != nil {
		return fmt.Errorf("finding interface %s: %w", t.name, err)
	}

	route := &netlink.Route{LinkIndex: link.Attrs().Index, Dst: destNet}
	if err := netlink.RouteAdd(route); err != nil {
		if strings.Contains(err.Error(), "file exists") {
			return nil
		}
		return fmt.Errorf("adding route %s via interface %s: %w", destination, t.name, err)
	}
	return nil
}

// MARK: RemoveRoute

func (t *TUNDevice) RemoveRoute(destination string) error {
	if runtime.GOOS == "darwin" {
		return t.removeRouteDarwin(destination)
	}
	return t.removeRouteLinux(destination)
}

func (t *TUNDevice) removeRouteDarwin(destination string) error {
	cmd := exec.Command("route", "delete", "-net", destination, "-interface", t.name)
	if output, err := cmd.CombinedOutput(); err != nil {
		if strings.Contains(string(output), "not in table") {
			return nil
		}
		return fmt.Errorf("removing route %s: %w, output: %s", destination, err, string(output))
	}
	return nil
}

func (t *TUNDevice) removeRouteLinux(destination string) error {
	_, destNet, err := net.ParseCIDR(destination)
	if err != nil {
		return fmt.Errorf("parsing destination %s: %w", destination, err)
	}

	link, err := netlink.LinkByName(t.name)
	if err != nil {
		return nil
	}

	route := &netlink.Route{LinkIndex: link.Attrs().Index, Dst: destNet}
	if err := netlink.RouteDel(route); err != nil {
		if strings.Contains(err.Error(), "no such process") {
			return nil
		}
		return fmt.Errorf("removing route %s: %w", destination, err)
	}
	return nil
}

// MARK: accessors

func (t *TUNDevice) Name() string {
	if t == nil {
		return ""
	}
	return t.name
}

func (t *TUNDevice) MTU() int {
	if t == nil {
		return 0
	}
	return t.mtu
}

func (t *TUNDevice) File() *water.Interface {
	if t == nil {
		return nil
	}
	return t.iface
}

func (t *TUNDevice) Close() error {
	if t == nil || t.iface == nil {
		return nil
	}
	return t.iface.Close()
}
