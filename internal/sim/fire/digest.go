package fire

import (
	"crypto/sha256"
	"encoding/hex"
)

// FrameDigest hashes a rendered framebuffer. Two simulations with equal
// settings must produce equal digests after equal step counts.
func FrameDigest(frame []byte) string {
	sum := sha256.Sum256(frame)
	return hex.EncodeToString(sum[:])
}

// StateDigest hashes the raw cell buffer plus the step counter, for
// cheaper mid-run comparisons than a full rendered frame.
func (s *Sim) StateDigest() string {
	h := sha256.New()
	var tmp [8]byte
	for i := 0; i < 8; i++ {
		tmp[i] = byte(s.steps >> (8 * i))
	}
	h.Write(tmp[:])
	h.Write(s.cells)
	return hex.EncodeToString(h.Sum(nil))
}
