package experiment

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// DeriveSeed returns the seed for one repeat of one scenario. It depends
// only on its arguments, so per-run seeds are identical across invocations
// regardless of scheduling or parallelism.
func DeriveSeed(global int64, scenarioID string, repeat int) int64 {
	var buf [8]byte
	h := sha256.New()

	binary.BigEndian.PutUint64(buf[:], uint64(global))
	h.Write(buf[:])
	h.Write([]byte(scenarioID))
	h.Write([]byte{0})
	binary.BigEndian.PutUint64(buf[:], uint64(repeat))
	h.Write(buf[:])

	sum := h.Sum(nil)
	return int64(binary.BigEndian.Uint64(sum[:8]) & math.MaxInt64)
}
