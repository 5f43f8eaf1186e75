// Package wireguard wraps internal/wireguard/noise's handshake and
// transport primitives in the call/response contract the tunnel runner
// drives: Encapsulate/Decapsulate each return an Outcome describing what,
// if anything, the caller should do next. This mirrors boringtun's
// Tunn/TunnResult API (see original_source/crates/core/src/tunnel.rs),
// which golang.zx2c4.com/wireguard's self-driving device.Device has no
// equivalent for.
package wireguard

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/cloudtether/vpnd/internal/wireguard/noise"
)

// OutcomeKind tags the variant of an Outcome, the Go rendering of
// boringtun's TunnResult enum.
type OutcomeKind int

const (
	Done OutcomeKind = iota
	WriteToNetwork
	WriteToTunnelV4
	WriteToTunnelV6
	Err
)

// Outcome is the result of a single Encapsulate or Decapsulate call.
// Packet is only populated for WriteToNetwork/WriteToTunnelV4/V6.
type Outcome struct {
	Kind   OutcomeKind
	Packet []byte
	Error  error
}

func doneOutcome() Outcome                 { return Outcome{Kind: Done} }
func errOutcome(err error) Outcome         { return Outcome{Kind: Err, Error: err} }
func networkOutcome(pkt []byte) Outcome    { return Outcome{Kind: WriteToNetwork, Packet: pkt} }
func tunnelV4Outcome(pkt []byte) Outcome   { return Outcome{Kind: WriteToTunnelV4, Packet: pkt} }
func tunnelV6Outcome(pkt []byte) Outcome   { return Outcome{Kind: WriteToTunnelV6, Packet: pkt} }

type sessionState int

const (
	stateIdle sessionState = iota
	stateHandshakeInitiated
	stateEstablished
)

// Session drives a single WireGuard peer relationship: one handshake
// followed by a transport-data phase, re-keyed by a fresh handshake when
// the caller asks for one.
type Session struct {
	localStatic    noise.PrivateKey
	localStaticPub noise.PublicKey
	remoteStatic   noise.PublicKey
	psk            noise.PresharedKey
	keepaliveSecs  int

	mu               sync.Mutex
	state            sessionState
	pendingHandshake *noise.Handshake
	localIndex       uint32
	peerIndex        uint32
	sendKey          [noise.KeyLen]byte
	recvKey          [noise.KeyLen]byte
	sendCounter       uint64
	replay            *noise.ReplayFilter
	lastHandshake     time.Time
	lastRecv          time.Time
	lastKeepaliveSent time.Time
}

// keepaliveInterval is the fixed floor between persistent-keepalive sends,
// independent of any per-peer configured value (original_source
// crates/core/src/tunnel.rs:124-134: a 15-second tick, sending only once
// 15s have passed since the last keepalive, and resetting on send).
const keepaliveInterval = 15 * time.Second

// NewSession constructs a session for one peer. keepaliveSecs of 0 disables
// the persistent keepalive timer.
func NewSession(local noise.PrivateKey, remote noise.PublicKey, psk noise.PresharedKey, keepaliveSecs int) *Session {
	return &Session{
		localStatic:    local,
		localStaticPub: local.PublicKey(),
		remoteStatic:   remote,
		psk:            psk,
		keepaliveSecs:  keepaliveSecs,
		replay:         noise.NewReplayFilter(),
	}
}

func randomIndex() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// MARK: IsEstablished

func (s *Session) IsEstablished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateEstablished
}

// MARK: InitiateHandshake

// InitiateHandshake starts (or restarts) the handshake as the initiating
// side and returns the first wire message for the caller to send over UDP.
func (s *Session) InitiateHandshake() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := randomIndex()
	if err != nil {
		return errOutcome(fmt.Errorf("generating session index: %w", err))
	}

	hs, msg, err := noise.CreateInitiation(s.localStatic, s.localStaticPub, s.remoteStatic, idx)
	if err != nil {
		return errOutcome(fmt.Errorf("creating handshake initiation: %w", err))
	}

	s.pendingHandshake = hs
	s.localIndex = idx
	s.state = stateHandshakeInitiated
	s.lastHandshake = time.Now()

	return networkOutcome(msg.Marshal())
}

// MARK: Encapsulate

// Encapsulate wraps an outgoing plaintext IP packet read from the TUN
// device. If no session is established yet it instead returns the
// handshake initiation message, mirroring boringtun's lazy rekey-on-send
// behavior; the caller is expected to retry the original packet once the
// handshake completes.
func (s *Session) Encapsulate(plaintext []byte) Outcome {
	s.mu.Lock()
	established := s.state == stateEstablished
	sendKey := s.sendKey
	counter := s.sendCounter
	if established {
		s.sendCounter++
	}
	peerIndex := s.peerIndex
	s.mu.Unlock()

	if !established {
		return s.InitiateHandshake()
	}

	buf := make([]byte, noise.TransportHeaderSize, noise.TransportHeaderSize+len(plaintext)+16)
	noise.MarshalTransportHeader(buf, peerIndex, counter)

	sealed, err := noise.SealTransport(buf, sendKey, counter, plaintext)
	if err != nil {
		return errOutcome(fmt.Errorf("sealing transport packet: %w", err))
	}
	return networkOutcome(sealed)
}

// MARK: Decapsulate

// Decapsulate processes a single datagram received on the UDP socket. The
// returned Outcome tells the caller whether a reply must go back out over
// the network or a decrypted packet should be written to the TUN device.
func (s *Session) Decapsulate(packet []byte) Outcome {
	switch noise.PacketType(packet) {
	case noise.MessageInitiationType:
		return s.handleInitiation(packet)
	case noise.MessageResponseType:
		return s.handleResponse(packet)
	case noise.MessageTransportType:
		return s.handleTransport(packet)
	default:
		return errOutcome(fmt.Errorf("unrecognized message type %d", noise.PacketType(packet)))
	}
}

func (s *Session) handleInitiation(packet []byte) Outcome {
	msg, ok := noise.UnmarshalInitiation(packet)
	if !ok {
		return errOutcome(fmt.Errorf("malformed handshake initiation"))
	}

	hs, remoteStaticPub, err := noise.ConsumeInitiation(s.localStatic, s.localStaticPub, msg)
	if err != nil {
		return errOutcome(fmt.Errorf("consuming handshake initiation: %w", err))
	}
	if remoteStaticPub != s.remoteStatic {
		return errOutcome(fmt.Errorf("handshake initiation from unexpected peer"))
	}

	s.mu.Lock()
	idx, err := randomIndex()
	if err != nil {
		s.mu.Unlock()
		return errOutcome(fmt.Errorf("generating session index: %w", err))
	}

	respMsg, finalChain, err := noise.CreateResponse(hs, remoteStaticPub, s.psk, idx)
	if err != nil {
		s.mu.Unlock()
		return errOutcome(fmt.Errorf("creating handshake response: %w", err))
	}

	s.localIndex = idx
	s.peerIndex = hs.RemoteIndex()
	s.sendKey, s.recvKey = noise.DeriveTransportKeys(finalChain, false)
	s.sendCounter = 0
	s.replay = noise.NewReplayFilter()
	s.state = stateEstablished
	s.lastHandshake = time.Now()
	s.lastRecv = time.Now()
	s.lastKeepaliveSent = time.Now()
	s.mu.Unlock()

	return networkOutcome(respMsg.Marshal())
}

func (s *Session) handleResponse(packet []byte) Outcome {
	msg, ok := noise.UnmarshalResponse(packet)
	if !ok {
		return errOutcome(fmt.Errorf("malformed handshake response"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateHandshakeInitiated || s.pendingHandshake == nil {
		return doneOutcome()
	}
	if msg.ReceiverIndex() != s.localIndex {
		return doneOutcome()
	}

	finalChain, err := noise.ConsumeResponse(s.pendingHandshake, s.localStatic, s.psk, msg)
	if err != nil {
		return errOutcome(fmt.Errorf("consuming handshake response: %w", err))
	}

	s.peerIndex = msg.SenderIndex()
	s.sendKey, s.recvKey = noise.DeriveTransportKeys(finalChain, true)
	s.sendCounter = 0
	s.replay = noise.NewReplayFilter()
	s.pendingHandshake = nil
	s.state = stateEstablished
	s.lastHandshake = time.Now()
	s.lastRecv = time.Now()
	s.lastKeepaliveSent = time.Now()

	return doneOutcome()
}

func (s *Session) handleTransport(packet []byte) Outcome {
	receiverIdx, counter, ok := noise.ParseTransportHeader(packet)
	if !ok {
		return errOutcome(fmt.Errorf("malformed transport packet"))
	}

	s.mu.Lock()
	if s.state != stateEstablished || receiverIdx != s.localIndex {
		s.mu.Unlock()
		return doneOutcome()
	}
	if !s.replay.ValidateCounter(counter) {
		s.mu.Unlock()
		return errOutcome(fmt.Errorf("replayed or stale transport counter %d", counter))
	}
	recvKey := s.recvKey
	s.lastRecv = time.Now()
	s.mu.Unlock()

	plaintext, err := noise.OpenTransport(nil, recvKey, counter, packet[noise.TransportHeaderSize:])
	if err != nil {
		return errOutcome(fmt.Errorf("decrypting transport packet: %w", err))
	}

	if len(plaintext) == 0 {
		// keepalive: empty payload, nothing to deliver.
		return doneOutcome()
	}

	switch plaintext[0] >> 4 {
	case 4:
		return tunnelV4Outcome(plaintext)
	case 6:
		return tunnelV6Outcome(plaintext)
	default:
		return errOutcome(fmt.Errorf("decrypted packet has unrecognized IP version"))
	}
}

// MARK: KeepaliveDue

// KeepaliveDue reports whether a persistent keepalive (empty transport
// message) should be sent: the session must be established, persistent
// keepalive must be enabled (keepaliveSecs > 0), and at least
// keepaliveInterval must have passed since the last keepalive was sent.
func (s *Session) KeepaliveDue(now time.Time) bool {
	if s.keepaliveSecs <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateEstablished && now.Sub(s.lastKeepaliveSent) >= keepaliveInterval
}

// MARK: Keepalive

// Keepalive produces an empty transport-data packet to send as a
// persistent keepalive, resetting the keepalive clock so KeepaliveDue
// won't fire again for another keepaliveInterval.
func (s *Session) Keepalive() Outcome {
	s.mu.Lock()
	s.lastKeepaliveSent = time.Now()
	s.mu.Unlock()
	return s.Encapsulate(nil)
}
