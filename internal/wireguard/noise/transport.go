package noise

import (
	"encoding/binary"

	"golang.org/x/crypto/chacha20poly1305"
)

// counterNonce builds the 12-byte AEAD nonce transport data messages use:
// 4 zero bytes followed by the little-endian packet counter.
func counterNonce(counter uint64) [chacha20poly1305.NonceSize]byte {
	var nonce [chacha20poly1305.NonceSize]byte
	binary.LittleEndian.PutUint64(nonce[4:], counter)
	return nonce
}

// SealTransport encrypts a data packet under the session's send key and
// the given counter, appending the result to dst.
func SealTransport(dst []byte, key [KeyLen]byte, counter uint64, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	nonce := counterNonce(counter)
	return aead.Seal(dst, nonce[:], plaintext, nil), nil
}

// OpenTransport decrypts a data packet under the session's receive key and
// the counter carried in the message header.
func OpenTransport(dst []byte, key [KeyLen]byte, counter uint64, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	nonce := counterNonce(counter)
	return aead.Open(dst, nonce[:], ciphertext, nil)
}
