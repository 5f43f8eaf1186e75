// Package noise implements the Noise_IKpsk2 handshake and transport data
// framing WireGuard uses, built directly on golang.org/x/crypto's
// curve25519/chacha20poly1305/blake2s primitives rather than on
// golang.zx2c4.com/wireguard's self-driving device.Device (see
// SPEC_FULL.md §2.2: that package owns its own TUN/UDP I/O loop behind a
// UAPI configuration surface and has no encapsulate/decapsulate call
// contract to embed in a caller-owned event loop). Mirrors the message
// sequence in boringtun's Tunn, reimplemented from the public WireGuard
// protocol description.
package noise

import (
	"crypto/rand"

	"golang.org/x/crypto/curve25519"
)

const KeyLen = 32

type PrivateKey [KeyLen]byte
type PublicKey [KeyLen]byte

// MARK: NewPrivateKey

// Generates a new clamped curve25519 private key.
func NewPrivateKey() (PrivateKey, error) {
	var key PrivateKey
	if _, err := rand.Read(key[:]); err != nil {
		return key, err
	}
	key.clamp()
	return key, nil
}

func (k *PrivateKey) clamp() {
	k[0] &= 248
	k[31] = (k[31] & 127) | 64
}

// MARK: PublicKey

func (k PrivateKey) PublicKey() PublicKey {
	var pub PublicKey
	curve25519.ScalarBaseMult((*[KeyLen]byte)(&pub), (*[KeyLen]byte)(&k))
	return pub
}

// MARK: SharedSecret

// SharedSecret computes the X25519 shared secret between a private and public key.
func (k PrivateKey) SharedSecret(pub PublicKey) ([KeyLen]byte, error) {
	var shared [KeyLen]byte
	out, err := curve25519.X25519(k[:], pub[:])
	if err != nil {
		return shared, err
	}
	copy(shared[:], out)
	return shared, nil
}

// PresharedKey is an optional additional symmetric secret mixed into the
// handshake. The zero value is the all-zero key WireGuard uses when no PSK
// is configured.
type PresharedKey [KeyLen]byte
