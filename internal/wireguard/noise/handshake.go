package noise

import (
	"fmt"

	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/chacha20poly1305"
)

// Handshake carries the running Noise chaining key and transcript hash
// across the two messages of Noise_IKpsk2. It is discarded once transport
// keys are derived.
type Handshake struct {
	chainKey           [blake2s.Size]byte
	hash               [blake2s.Size]byte
	localEphemeralPriv PrivateKey
	localEphemeralPub  PublicKey
	remoteEphemeral    PublicKey
	localIndex         uint32
	remoteIndex        uint32
}

func (hs *Handshake) LocalIndex() uint32  { return hs.localIndex }
func (hs *Handshake) RemoteIndex() uint32 { return hs.remoteIndex }

// MARK: mac1

func mac1Key(remoteStatic PublicKey) [blake2s.Size]byte {
	return hashValues([]byte(labelMAC1), remoteStatic[:])
}

func ComputeMAC1(remoteStatic PublicKey, message []byte) [16]byte {
	key := mac1Key(remoteStatic)
	h, _ := blake2s.New(16, key[:])
	h.Write(message)
	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}

// MARK: aead helpers

// aeadSeal/aeadOpen use the fixed Handshake nonce counter scheme: each
// Handshake AEAD use is keyed uniquely by the chaining-key derivation that
// produced it, so the nonce counter is always zero.
func aeadSeal(key [blake2s.Size]byte, plaintext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	return aead.Seal(nil, nonce, plaintext, ad), nil
}

func aeadOpen(key [blake2s.Size]byte, ciphertext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	return aead.Open(nil, nonce, ciphertext, ad)
}

// MARK: CreateInitiation

// CreateInitiation runs the initiator side of the Handshake through the
// first message and returns the in-progress Handshake plus the wire
// message to send.
func CreateInitiation(localStatic PrivateKey, localStaticPub PublicKey, remoteStatic PublicKey, senderIndex uint32) (*Handshake, *MessageInitiation, error) {
	hs := &Handshake{localIndex: senderIndex}
	hs.chainKey, hs.hash = initialChainAndHash()
	hs.hash = hashValues(hs.hash[:], remoteStatic[:])

	ephPriv, err := NewPrivateKey()
	if err != nil {
		return nil, nil, err
	}
	hs.localEphemeralPriv = ephPriv
	hs.localEphemeralPub = ephPriv.PublicKey()

	hs.chainKey = kdf1(hs.chainKey[:], hs.localEphemeralPub[:])
	hs.hash = hashValues(hs.hash[:], hs.localEphemeralPub[:])

	ss, err := ephPriv.SharedSecret(remoteStatic)
	if err != nil {
		return nil, nil, err
	}
	var key [blake2s.Size]byte
	hs.chainKey, key = kdf2(hs.chainKey[:], ss[:])

	encStatic, err := aeadSeal(key, localStaticPub[:], hs.hash[:])
	if err != nil {
		return nil, nil, err
	}
	hs.hash = hashValues(hs.hash[:], encStatic)

	ss, err = localStatic.SharedSecret(remoteStatic)
	if err != nil {
		return nil, nil, err
	}
	hs.chainKey, key = kdf2(hs.chainKey[:], ss[:])

	ts := tai64nNow()
	encTimestamp, err := aeadSeal(key, ts[:], hs.hash[:])
	if err != nil {
		return nil, nil, err
	}
	hs.hash = hashValues(hs.hash[:], encTimestamp)

	msg := &MessageInitiation{senderIndex: senderIndex, ephemeral: hs.localEphemeralPub}
	copy(msg.static[:], encStatic)
	copy(msg.timestamp[:], encTimestamp)

	unsealed := msg.Marshal()
	msg.mac1 = ComputeMAC1(remoteStatic, unsealed[:len(unsealed)-32])

	return hs, msg, nil
}

// MARK: ConsumeInitiation

// ConsumeInitiation runs the responder side against a received first
// message, returning the in-progress Handshake and the initiator's
// static public key (discovered via the encrypted-static field).
func ConsumeInitiation(localStatic PrivateKey, localStaticPub PublicKey, msg *MessageInitiation) (*Handshake, PublicKey, error) {
	var remoteStaticPub PublicKey

	hs := &Handshake{remoteIndex: msg.senderIndex, remoteEphemeral: msg.ephemeral}
	hs.chainKey, hs.hash = initialChainAndHash()
	hs.hash = hashValues(hs.hash[:], localStaticPub[:])

	hs.chainKey = kdf1(hs.chainKey[:], msg.ephemeral[:])
	hs.hash = hashValues(hs.hash[:], msg.ephemeral[:])

	ss, err := localStatic.SharedSecret(msg.ephemeral)
	if err != nil {
		return nil, remoteStaticPub, err
	}
	var key [blake2s.Size]byte
	hs.chainKey, key = kdf2(hs.chainKey[:], ss[:])

	staticPlain, err := aeadOpen(key, msg.static[:], hs.hash[:])
	if err != nil {
		return nil, remoteStaticPub, fmt.Errorf("decrypting initiator static key: %w", err)
	}
	copy(remoteStaticPub[:], staticPlain)
	hs.hash = hashValues(hs.hash[:], msg.static[:])

	ss, err = localStatic.SharedSecret(remoteStaticPub)
	if err != nil {
		return nil, remoteStaticPub, err
	}
	hs.chainKey, key = kdf2(hs.chainKey[:], ss[:])

	tsPlain, err := aeadOpen(key, msg.timestamp[:], hs.hash[:])
	if err != nil {
		return nil, remoteStaticPub, fmt.Errorf("decrypting initiator timestamp: %w", err)
	}
	_ = tsPlain
	hs.hash = hashValues(hs.hash[:], msg.timestamp[:])

	return hs, remoteStaticPub, nil
}

// MARK: CreateResponse

// CreateResponse runs the responder side through the second message,
// mixing in the preshared key, and returns the wire message plus the
// final chaining key transport keys are derived from.
func CreateResponse(hs *Handshake, remoteStaticPub PublicKey, psk PresharedKey, senderIndex uint32) (*MessageResponse, [blake2s.Size]byte, error) {
	hs.localIndex = senderIndex

	ephPriv, err := NewPrivateKey()
	if err != nil {
		return nil, hs.chainKey, err
	}
	hs.localEphemeralPriv = ephPriv
	hs.localEphemeralPub = ephPriv.PublicKey()

	hs.chainKey = kdf1(hs.chainKey[:], hs.localEphemeralPub[:])
	hs.hash = hashValues(hs.hash[:], hs.localEphemeralPub[:])

	ss, err := ephPriv.SharedSecret(hs.remoteEphemeral)
	if err != nil {
		return nil, hs.chainKey, err
	}
	hs.chainKey = kdf1(hs.chainKey[:], ss[:])

	ss, err = ephPriv.SharedSecret(remoteStaticPub)
	if err != nil {
		return nil, hs.chainKey, err
	}
	hs.chainKey = kdf1(hs.chainKey[:], ss[:])

	var tau, key [blake2s.Size]byte
	hs.chainKey, tau, key = kdf3(hs.chainKey[:], psk[:])
	hs.hash = hashValues(hs.hash[:], tau[:])

	empty, err := aeadSeal(key, nil, hs.hash[:])
	if err != nil {
		return nil, hs.chainKey, err
	}
	hs.hash = hashValues(hs.hash[:], empty)

	msg := &MessageResponse{senderIndex: senderIndex, receiverIndex: hs.remoteIndex, ephemeral: hs.localEphemeralPub}
	copy(msg.empty[:], empty)

	unsealed := msg.Marshal()
	msg.mac1 = ComputeMAC1(remoteStaticPub, unsealed[:len(unsealed)-32])

	return msg, hs.chainKey, nil
}

// MARK: ConsumeResponse

// ConsumeResponse runs the initiator side against a received second
// message and returns the final chaining key.
func ConsumeResponse(hs *Handshake, localStatic PrivateKey, psk PresharedKey, msg *MessageResponse) ([blake2s.Size]byte, error) {
	hs.remoteIndex = msg.senderIndex

	hs.chainKey = kdf1(hs.chainKey[:], msg.ephemeral[:])
	hs.hash = hashValues(hs.hash[:], msg.ephemeral[:])

	ss, err := hs.localEphemeralPriv.SharedSecret(msg.ephemeral)
	if err != nil {
		return hs.chainKey, err
	}
	hs.chainKey = kdf1(hs.chainKey[:], ss[:])

	ss, err = localStatic.SharedSecret(msg.ephemeral)
	if err != nil {
		return hs.chainKey, err
	}
	hs.chainKey = kdf1(hs.chainKey[:], ss[:])

	var tau, key [blake2s.Size]byte
	hs.chainKey, tau, key = kdf3(hs.chainKey[:], psk[:])
	hs.hash = hashValues(hs.hash[:], tau[:])

	if _, err := aeadOpen(key, msg.empty[:], hs.hash[:]); err != nil {
		return hs.chainKey, fmt.Errorf("decrypting response payload: %w", err)
	}
	hs.hash = hashValues(hs.hash[:], msg.empty[:])

	return hs.chainKey, nil
}

// MARK: DeriveTransportKeys

// DeriveTransportKeys splits the final chaining key into a pair of
// directional transport keys. initiator selects which of the two outputs
// is the send key versus the receive key, since both sides compute the
// same pair in the same order.
func DeriveTransportKeys(finalChainKey [blake2s.Size]byte, initiator bool) (send, recv [blake2s.Size]byte) {
	k1, k2 := kdf2(finalChainKey[:], nil)
	if initiator {
		return k1, k2
	}
	return k2, k1
}
