package noise

import (
	"crypto/hmac"
	"hash"

	"golang.org/x/crypto/blake2s"
)

const (
	constructionStr = "Noise_IKpsk2_25519_ChaChaPoly_BLAKE2s"
	identifierStr   = "WireGuard v1 zx2c4 Jason@zx2c4.com"
	labelMAC1       = "mac1----"
	labelCookie     = "cookie--"
)

// MARK: hashInit

// initialChainAndHash returns Hash(CONSTRUCTION) and Hash(Ci || IDENTIFIER),
// the fixed starting point of every Noise_IKpsk2 session.
func initialChainAndHash() (chain [blake2s.Size]byte, hash [blake2s.Size]byte) {
	chain = blake2s.Sum256([]byte(constructionStr))
	hash = hashValues(chain[:], []byte(identifierStr))
	return
}

func hashValues(parts ...[]byte) [blake2s.Size]byte {
	h, _ := blake2s.New256(nil)
	for _, p := range parts {
		h.Write(p)
	}
	var out [blake2s.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

func hmacBlake2s(key, input []byte) [blake2s.Size]byte {
	mac := hmac.New(func() hash.Hash {
		h, _ := blake2s.New256(nil)
		return h
	}, key)
	mac.Write(input)
	var out [blake2s.Size]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// MARK: kdf1/2/3

// kdf1 derives a single 32-byte output chain key, as used when mixing
// public DH shares into the chaining key.
func kdf1(key, input []byte) [blake2s.Size]byte {
	t0 := hmacBlake2s(key, input)
	return hmacBlake2s(t0[:], []byte{0x01})
}

// kdf2 derives two outputs: an updated chaining key and a derived key.
func kdf2(key, input []byte) (o1, o2 [blake2s.Size]byte) {
	t0 := hmacBlake2s(key, input)
	o1 = hmacBlake2s(t0[:], []byte{0x01})
	o2 = hmacBlake2s(t0[:], append(append([]byte{}, o1[:]...), 0x02))
	return
}

// kdf3 derives three outputs, used once when mixing in the preshared key
// during response-message generation.
func kdf3(key, input []byte) (o1, o2, o3 [blake2s.Size]byte) {
	t0 := hmacBlake2s(key, input)
	o1 = hmacBlake2s(t0[:], []byte{0x01})
	o2 = hmacBlake2s(t0[:], append(append([]byte{}, o1[:]...), 0x02))
	o3 = hmacBlake2s(t0[:], append(append([]byte{}, o2[:]...), 0x03))
	return
}
