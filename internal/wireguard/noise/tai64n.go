package noise

import (
	"encoding/binary"
	"time"
)

const tai64nEpochOffset = int64(1 << 62) + 10

// tai64nNow encodes the current time as a 12-byte TAI64N timestamp: a
// 64-bit offset-encoded second counter followed by a 32-bit nanosecond
// count, matching the format WireGuard uses to prevent handshake replay.
func tai64nNow() [12]byte {
	now := time.Now()
	var out [12]byte
	binary.BigEndian.PutUint64(out[0:8], uint64(tai64nEpochOffset+now.Unix()))
	binary.BigEndian.PutUint32(out[8:12], uint32(now.Nanosecond()))
	return out
}

// tai64nAfter reports whether a is strictly later than b, used to reject
// stale or replayed handshake initiations.
func tai64nAfter(a, b [12]byte) bool {
	for i := 0; i < 12; i++ {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}
