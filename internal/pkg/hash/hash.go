// Package hash provides hashing utilities.
package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// SHA256 computes the SHA256 hash of data and returns it as a hex string.
func SHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SHA256String computes the SHA256 hash of a string.
func SHA256String(s string) string {
	return SHA256([]byte(s))
}

// SHA256Short returns the first n characters of a SHA256 hash.
func SHA256Short(data []byte, n int) string {
	h := SHA256(data)
	if n > len(h) {
		return h
	}
	return h[:n]
}

// ShardID generates a deterministic shard ID from split, layer, and rank.
func ShardID(split, layer string, rank int) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(rank))
	data := append([]byte(split+":"+layer+":"), buf[:]...)
	return SHA256Short(data, 16)
}

// FeatureFingerprint generates a deterministic fingerprint for a feature set
// from its dimensions and raw bytes. Two sets with the same rows, columns,
// and values fingerprint identically.
func FeatureFingerprint(rows, cols int, raw []byte) string {
	h := sha256.New()
	var dims [16]byte
	binary.BigEndian.PutUint64(dims[:8], uint64(rows))
	binary.BigEndian.PutUint64(dims[8:], uint64(cols))
	h.Write(dims[:])
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil))[:16]
}
