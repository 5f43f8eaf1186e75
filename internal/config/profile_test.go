package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"
)

func randomKeyB64(t *testing.T) string {
	t.Helper()
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf[:])
}

func validProfileText(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf(`[Interface]
PrivateKey = %s
Address = 10.6.0.2/32, fd00:6::2/128
DNS = 10.6.0.1, fd00:6::1

[Peer]
PublicKey = %s
Endpoint = 203.0.113.9:51820
`, randomKeyB64(t), randomKeyB64(t))
}

func TestParseRoundTrip(t *testing.T) {
	text := validProfileText(t)

	profile, err := Parse(strings.NewReader(text))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if profile.KeepaliveSecs != PersistentKeepaliveSeconds {
		t.Fatalf("keepalive = %d, want %d", profile.KeepaliveSecs, PersistentKeepaliveSeconds)
	}
	if len(profile.DNSServers) != 2 {
		t.Fatalf("DNS servers = %d, want 2", len(profile.DNSServers))
	}
	if profile.Endpoint.Port() != 51820 {
		t.Fatalf("endpoint port = %d, want 51820", profile.Endpoint.Port())
	}

	reEncoded := profile.Encode()
	reParsed, err := Parse(strings.NewReader(reEncoded))
	if err != nil {
		t.Fatalf("Parse(Encode()): %v", err)
	}

	if reParsed.PrivateKey != profile.PrivateKey {
		t.Fatalf("round-tripped private key mismatch")
	}
	if reParsed.PeerPublicKey != profile.PeerPublicKey {
		t.Fatalf("round-tripped public key mismatch")
	}
	if reParsed.Endpoint != profile.Endpoint {
		t.Fatalf("round-tripped endpoint mismatch: got %v want %v", reParsed.Endpoint, profile.Endpoint)
	}
	if reParsed.IPv4Address != profile.IPv4Address {
		t.Fatalf("round-tripped IPv4 address mismatch")
	}
	if reParsed.IPv6Address != profile.IPv6Address {
		t.Fatalf("round-tripped IPv6 address mismatch")
	}
}

func TestParseMissingDNSIsOptional(t *testing.T) {
	text := fmt.Sprintf(`[Interface]
PrivateKey = %s
Address = 10.6.0.2/32, fd00:6::2/128

[Peer]
PublicKey = %s
Endpoint = 203.0.113.9:51820
`, randomKeyB64(t), randomKeyB64(t))

	profile, err := Parse(strings.NewReader(text))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(profile.DNSServers) != 0 {
		t.Fatalf("expected no DNS servers, got %d", len(profile.DNSServers))
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	goodKey := randomKeyB64(t)
	peerKey := randomKeyB64(t)

	cases := map[string]string{
		"missing interface section": fmt.Sprintf(`[Peer]
PublicKey = %s
Endpoint = 203.0.113.9:51820
`, peerKey),
		"missing peer section": fmt.Sprintf(`[Interface]
PrivateKey = %s
Address = 10.6.0.2/32, fd00:6::2/128
`, goodKey),
		"missing private key": fmt.Sprintf(`[Interface]
Address = 10.6.0.2/32, fd00:6::2/128

[Peer]
PublicKey = %s
Endpoint = 203.0.113.9:51820
`, peerKey),
		"bad base64 private key": fmt.Sprintf(`[Interface]
PrivateKey = not-valid-base64!!
Address = 10.6.0.2/32, fd00:6::2/128

[Peer]
PublicKey = %s
Endpoint = 203.0.113.9:51820
`, peerKey),
		"wrong length key": fmt.Sprintf(`[Interface]
PrivateKey = %s
Address = 10.6.0.2/32, fd00:6::2/128

[Peer]
PublicKey = %s
Endpoint = 203.0.113.9:51820
`, base64.StdEncoding.EncodeToString([]byte("tooshort")), peerKey),
		"malformed address": fmt.Sprintf(`[Interface]
PrivateKey = %s
Address = not-a-cidr, fd00:6::2/128

[Peer]
PublicKey = %s
Endpoint = 203.0.113.9:51820
`, goodKey, peerKey),
		"no v4 address": fmt.Sprintf(`[Interface]
PrivateKey = %s
Address = fd00:6::2/128

[Peer]
PublicKey = %s
Endpoint = 203.0.113.9:51820
`, goodKey, peerKey),
		"no v6 address": fmt.Sprintf(`[Interface]
PrivateKey = %s
Address = 10.6.0.2/32

[Peer]
PublicKey = %s
Endpoint = 203.0.113.9:51820
`, goodKey, peerKey),
		"endpoint missing port": fmt.Sprintf(`[Interface]
PrivateKey = %s
Address = 10.6.0.2/32, fd00:6::2/128

[Peer]
PublicKey = %s
Endpoint = 203.0.113.9
`, goodKey, peerKey),
		"endpoint zero port": fmt.Sprintf(`[Interface]
PrivateKey = %s
Address = 10.6.0.2/32, fd00:6::2/128

[Peer]
PublicKey = %s
Endpoint = 203.0.113.9:0
`, goodKey, peerKey),
		"endpoint hostname not literal IP": fmt.Sprintf(`[Interface]
PrivateKey = %s
Address = 10.6.0.2/32, fd00:6::2/128

[Peer]
PublicKey = %s
Endpoint = vpn.example.com:51820
`, goodKey, peerKey),
	}

	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(text)); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestParseRejectsMissingRequiredPeerKeys(t *testing.T) {
	text := fmt.Sprintf(`[Interface]
PrivateKey = %s
Address = 10.6.0.2/32, fd00:6::2/128

[Peer]
Endpoint = 203.0.113.9:51820
`, randomKeyB64(t))

	if _, err := Parse(strings.NewReader(text)); err == nil {
		t.Fatalf("expected error for missing Peer.PublicKey")
	}
}
