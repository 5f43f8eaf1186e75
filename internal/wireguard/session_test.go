package wireguard

import (
	"bytes"
	"testing"
	"time"

	"github.com/cloudtether/vpnd/internal/wireguard/noise"
)

func mustKey(t *testing.T) noise.PrivateKey {
	t.Helper()
	k, err := noise.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	return k
}

func TestSessionHandshakeAndTransportRoundTrip(t *testing.T) {
	initiatorPriv := mustKey(t)
	responderPriv := mustKey(t)

	initiator := NewSession(initiatorPriv, responderPriv.PublicKey(), noise.PresharedKey{}, 25)
	responder := NewSession(responderPriv, initiatorPriv.PublicKey(), noise.PresharedKey{}, 25)

	initOutcome := initiator.InitiateHandshake()
	if initOutcome.Kind != WriteToNetwork {
		t.Fatalf("InitiateHandshake: got kind %v, want WriteToNetwork", initOutcome.Kind)
	}

	respToNetwork := responder.Decapsulate(initOutcome.Packet)
	if respToNetwork.Kind != WriteToNetwork {
		t.Fatalf("responder handling initiation: got kind %v, want WriteToNetwork", respToNetwork.Kind)
	}
	if !responder.IsEstablished() {
		t.Fatalf("responder should be established after sending its response")
	}

	doneOutcome := initiator.Decapsulate(respToNetwork.Packet)
	if doneOutcome.Kind != Done {
		t.Fatalf("initiator handling response: got kind %v, want Done (err=%v)", doneOutcome.Kind, doneOutcome.Error)
	}
	if !initiator.IsEstablished() {
		t.Fatalf("initiator should be established after processing the response")
	}

	plaintext := append([]byte{0x45, 0x00}, []byte("hello through the tunnel")...)
	sealedOutcome := initiator.Encapsulate(plaintext)
	if sealedOutcome.Kind != WriteToNetwork {
		t.Fatalf("Encapsulate: got kind %v, want WriteToNetwork (err=%v)", sealedOutcome.Kind, sealedOutcome.Error)
	}

	deliverOutcome := responder.Decapsulate(sealedOutcome.Packet)
	if deliverOutcome.Kind != WriteToTunnelV4 {
		t.Fatalf("responder decapsulating data: got kind %v, want WriteToTunnelV4 (err=%v)", deliverOutcome.Kind, deliverOutcome.Error)
	}
	if !bytes.Equal(deliverOutcome.Packet, plaintext) {
		t.Fatalf("decrypted payload mismatch: got %q want %q", deliverOutcome.Packet, plaintext)
	}
}

func TestSessionRejectsReplayedCounter(t *testing.T) {
	initiatorPriv := mustKey(t)
	responderPriv := mustKey(t)

	initiator := NewSession(initiatorPriv, responderPriv.PublicKey(), noise.PresharedKey{}, 25)
	responder := NewSession(responderPriv, initiatorPriv.PublicKey(), noise.PresharedKey{}, 25)

	initOutcome := initiator.InitiateHandshake()
	respOutcome := responder.Decapsulate(initOutcome.Packet)
	initiator.Decapsulate(respOutcome.Packet)

	plaintext := append([]byte{0x45, 0x00}, []byte("packet one")...)
	sealed := initiator.Encapsulate(plaintext)

	first := responder.Decapsulate(sealed.Packet)
	if first.Kind != WriteToTunnelV4 {
		t.Fatalf("first delivery: got kind %v, want WriteToTunnelV4 (err=%v)", first.Kind, first.Error)
	}

	replayed := responder.Decapsulate(sealed.Packet)
	if replayed.Kind != Err {
		t.Fatalf("replayed packet: got kind %v, want Err", replayed.Kind)
	}
}

func TestSessionKeepaliveResetsClockOnSend(t *testing.T) {
	initiatorPriv := mustKey(t)
	responderPriv := mustKey(t)

	initiator := NewSession(initiatorPriv, responderPriv.PublicKey(), noise.PresharedKey{}, 25)
	responder := NewSession(responderPriv, initiatorPriv.PublicKey(), noise.PresharedKey{}, 25)

	initOutcome := initiator.InitiateHandshake()
	respOutcome := responder.Decapsulate(initOutcome.Packet)
	initiator.Decapsulate(respOutcome.Packet)

	established := initiator.lastKeepaliveSent

	justBefore := established.Add(keepaliveInterval - time.Second)
	if initiator.KeepaliveDue(justBefore) {
		t.Fatalf("KeepaliveDue fired before keepaliveInterval elapsed")
	}

	atThreshold := established.Add(keepaliveInterval)
	if !initiator.KeepaliveDue(atThreshold) {
		t.Fatalf("KeepaliveDue should fire once keepaliveInterval has elapsed")
	}

	outcome := initiator.Keepalive()
	if outcome.Kind != WriteToNetwork {
		t.Fatalf("Keepalive: got kind %v, want WriteToNetwork (err=%v)", outcome.Kind, outcome.Error)
	}

	// A second tick right after the keepalive was sent must not fire again.
	if initiator.KeepaliveDue(atThreshold.Add(time.Millisecond)) {
		t.Fatalf("KeepaliveDue fired again immediately after a keepalive was sent")
	}
}
