package sources

import (
	"hash/fnv"
	"time"
)

// jitter is a fast, non-cryptographic PRNG for backoff spreading. It
// avoids math/rand which triggers gosec G404.
type jitter struct {
	state uint64
}

// splitmix64 mixing constants.
const (
	jitterInc    = 0x9e3779b97f4a7c15
	jitterMix1   = 0xbf58476d1ce4e5b9
	jitterMix2   = 0x94d049bb133111eb
	jitterShift1 = 30
	jitterShift2 = 27
	jitterShift3 = 31
)

// newJitter seeds the PRNG from the unit identity and wall clock so
// concurrent retries of different units never share a sequence.
func newJitter(seed string) *jitter {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))

	return &jitter{state: h.Sum64() ^ uint64(time.Now().UnixNano())}
}

// next returns the next pseudo-random uint64.
func (j *jitter) next() uint64 {
	j.state += jitterInc

	z := j.state
	z = (z ^ (z >> jitterShift1)) * jitterMix1
	z = (z ^ (z >> jitterShift2)) * jitterMix2

	return z ^ (z >> jitterShift3)
}
