// Package config implements the Config Parser (spec §4.A): it decodes a
// wg-quick-dialect INI profile into an immutable WireguardProfile. Grounded
// on the teacher's config/wireguard.go validation shape
// (validateTunnelConfig/validatePeerConfig/validateEndpoint) and on
// original_source/crates/core/src/config.rs. No third-party INI library
// exists anywhere in the retrieved pack and the dialect is two fixed
// sections with a handful of keys, so a hand-written scanner stays closer
// to the teacher's own hand-validated style than pulling in a generic INI
// parser would.
package config

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"github.com/cloudtether/vpnd/internal/vpnerrors"
)

const PersistentKeepaliveSeconds = 25

// WireguardProfile is immutable once parsed (spec §3).
type WireguardProfile struct {
	PrivateKey     [32]byte
	PeerPublicKey  [32]byte
	Endpoint       netip.AddrPort
	IPv4Address    netip.Prefix
	IPv6Address    netip.Prefix
	DNSServers     []netip.Addr
	KeepaliveSecs  int
}

type section int

const (
	sectionNone section = iota
	sectionInterface
	sectionPeer
)

// MARK: ParseFile

// Reads and parses a profile file from disk.
func ParseFile(path string) (*WireguardProfile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, vpnerrors.Config("Connect", "config_path", err)
	}
	defer f.Close()
	return Parse(f)
}

// MARK: Parse

// Parses a profile from an io.Reader in wg-quick INI dialect.
func Parse(r io.Reader) (*WireguardProfile, error) {
	var (
		cur            section
		privateKeyB64  string
		addressRaw     string
		dnsRaw         string
		peerPubKeyB64  string
		endpointRaw    string
		sawInterface   bool
		sawPeer        bool
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			switch strings.ToLower(strings.TrimSpace(line[1 : len(line)-1])) {
			case "interface":
				cur = sectionInterface
				sawInterface = true
			case "peer":
				cur = sectionPeer
				sawPeer = true
			default:
				cur = sectionNone
			}
			continue
		}

		key, value, ok := splitKV(line)
		if !ok {
			continue
		}

		switch cur {
		case sectionInterface:
			switch strings.ToLower(key) {
			case "privatekey":
				privateKeyB64 = value
			case "address":
				addressRaw = value
			case "dns":
				dnsRaw = value
			}
		case sectionPeer:
			switch strings.ToLower(key) {
			case "publickey":
				peerPubKeyB64 = value
			case "endpoint":
				endpointRaw = value
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, vpnerrors.Config("Connect", "", err)
	}

	if !sawInterface {
		return nil, vpnerrors.Config("Connect", "[Interface]", fmt.Errorf("missing [Interface] section"))
	}
	if !sawPeer {
		return nil, vpnerrors.Config("Connect", "[Peer]", fmt.Errorf("missing [Peer] section"))
	}

	profile := &WireguardProfile{KeepaliveSecs: PersistentKeepaliveSeconds}

	if privateKeyB64 == "" {
		return nil, vpnerrors.Config("Connect", "Interface.PrivateKey", fmt.Errorf("missing required key"))
	}
	if err := decodeKey(privateKeyB64, &profile.PrivateKey); err != nil {
		return nil, vpnerrors.Config("Connect", "Interface.PrivateKey", err)
	}

	if addressRaw == "" {
		return nil, vpnerrors.Config("Connect", "Interface.Address", fmt.Errorf("missing required key"))
	}
	v4, v6, err := parseAddresses(addressRaw)
	if err != nil {
		return nil, vpnerrors.Config("Connect", "Interface.Address", err)
	}
	profile.IPv4Address = v4
	profile.IPv6Address = v6

	if dnsRaw != "" {
		servers, err := parseDNSList(dnsRaw)
		if err != nil {
			return nil, vpnerrors.Config("Connect", "Interface.DNS", err)
		}
		profile.DNSServers = servers
	}

	if peerPubKeyB64 == "" {
		return nil, vpnerrors.Config("Connect", "Peer.PublicKey", fmt.Errorf("missing required key"))
	}
	if err := decodeKey(peerPubKeyB64, &profile.PeerPublicKey); err != nil {
		return nil, vpnerrors.Config("Connect", "Peer.PublicKey", err)
	}

	if endpointRaw == "" {
		return nil, vpnerrors.Config("Connect", "Peer.Endpoint", fmt.Errorf("missing required key"))
	}
	endpoint, err := parseEndpoint(endpointRaw)
	if err != nil {
		return nil, vpnerrors.Config("Connect", "Peer.Endpoint", err)
	}
	profile.Endpoint = endpoint

	return profile, nil
}

// MARK: splitKV

func splitKV(line string) (key, value string, ok bool) {
	idx := strings.Index(line, "=")
	if idx < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:idx])
	value = strings.TrimSpace(line[idx+1:])
	if key == "" {
		return "", "", false
	}
	return key, value, true
}

// MARK: decodeKey

func decodeKey(b64 string, out *[32]byte) error {
	b64 = strings.TrimSpace(b64)
	decoded, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return fmt.Errorf("base64 decode error: %w", err)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("key must decode to 32 bytes, got %d", len(decoded))
	}
	copy(out[:], decoded)
	return nil
}

// MARK: parseAddresses

// parses a comma-separated CIDR list requiring exactly one v4 and one v6 entry.
func parseAddresses(raw string) (v4, v6 netip.Prefix, err error) {
	var sawV4, sawV6 bool

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		prefix, perr := netip.ParsePrefix(part)
		if perr != nil {
			return v4, v6, fmt.Errorf("malformed address %q: %w", part, perr)
		}
		if prefix.Addr().Is4() {
			if sawV4 {
				return v4, v6, fmt.Errorf("more than one IPv4 address given")
			}
			v4 = prefix
			sawV4 = true
		} else {
			if sawV6 {
				return v4, v6, fmt.Errorf("more than one IPv6 address given")
			}
			v6 = prefix
			sawV6 = true
		}
	}

	if !sawV4 {
		return v4, v6, fmt.Errorf("no IPv4 address present")
	}
	if !sawV6 {
		return v4, v6, fmt.Errorf("no IPv6 address present")
	}
	return v4, v6, nil
}

// MARK: parseDNSList

// accepts comma- or whitespace-separated IP addresses.
func parseDNSList(raw string) ([]netip.Addr, error) {
	raw = strings.ReplaceAll(raw, ",", " ")
	fields := strings.Fields(raw)

	servers := make([]netip.Addr, 0, len(fields))
	for _, f := range fields {
		addr, err := netip.ParseAddr(f)
		if err != nil {
			return nil, fmt.Errorf("malformed DNS address %q: %w", f, err)
		}
		servers = append(servers, addr)
	}
	return servers, nil
}

// MARK: parseEndpoint

// host is resolved as a literal IP address only — the daemon does not do DNS
// resolution of peer endpoints (spec explicitly excludes roaming endpoint
// discovery).
func parseEndpoint(raw string) (netip.AddrPort, error) {
	host, portStr, err := net.SplitHostPort(raw)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("malformed endpoint %q: %w", raw, err)
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("endpoint host %q is not a literal IP: %w", host, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return netip.AddrPort{}, fmt.Errorf("malformed endpoint port %q", portStr)
	}

	return netip.AddrPortFrom(addr, uint16(port)), nil
}

// MARK: Encode

// Re-emits the profile in the same wg-quick dialect it was parsed from
// (used by the parser round-trip property, spec §8 property 1).
func (p *WireguardProfile) Encode() string {
	var b strings.Builder

	fmt.Fprintf(&b, "[Interface]\n")
	fmt.Fprintf(&b, "PrivateKey = %s\n", base64.StdEncoding.EncodeToString(p.PrivateKey[:]))
	fmt.Fprintf(&b, "Address = %s, %s\n", p.IPv4Address.String(), p.IPv6Address.String())
	if len(p.DNSServers) > 0 {
		parts := make([]string, len(p.DNSServers))
		for i, d := range p.DNSServers {
			parts[i] = d.String()
		}
		fmt.Fprintf(&b, "DNS = %s\n", strings.Join(parts, ", "))
	}

	fmt.Fprintf(&b, "\n[Peer]\n")
	fmt.Fprintf(&b, "PublicKey = %s\n", base64.StdEncoding.EncodeToString(p.PeerPublicKey[:]))
	fmt.Fprintf(&b, "Endpoint = %s\n", p.Endpoint.String())

	return b.String()
}
