package audio

import (
	"encoding/binary"
	"sync"
)

// EnergySampleSize is the number of amplitudes in one [EnergySample].
const EnergySampleSize = 2048

// Silence is the byte amplitude of a zero PCM sample.
const Silence byte = 128

// EnergySample is a snapshot of the most recent time-domain amplitudes as
// unsigned bytes, where 128 is zero signal. It is read once per tick and never
// retained.
type EnergySample []byte

// Analyser keeps a ring of the latest [EnergySampleSize] mono samples written
// to it, quantised to bytes the same way a browser AnalyserNode reports byte
// time-domain data. A fresh Analyser snapshots as pure silence.
//
// Write and Snapshot may be called from different goroutines.
type Analyser struct {
	mu   sync.Mutex
	ring [EnergySampleSize]byte
	pos  int
}

// NewAnalyser returns an analyser primed with silence.
func NewAnalyser() *Analyser {
	a := &Analyser{}
	for i := range a.ring {
		a.ring[i] = Silence
	}
	return a
}

// Write appends 16-bit little-endian mono PCM. A trailing odd byte is ignored.
func (a *Analyser) Write(pcm []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i:]))
		a.ring[a.pos] = QuantizeSample(s)
		a.pos = (a.pos + 1) % EnergySampleSize
	}
}

// Snapshot copies the ring into dst in chronological order and returns it.
// dst is reallocated when its capacity is below [EnergySampleSize].
func (a *Analyser) Snapshot(dst EnergySample) EnergySample {
	if cap(dst) < EnergySampleSize {
		dst = make(EnergySample, EnergySampleSize)
	}
	dst = dst[:EnergySampleSize]

	a.mu.Lock()
	defer a.mu.Unlock()
	n := copy(dst, a.ring[a.pos:])
	copy(dst[n:], a.ring[:a.pos])
	return dst
}

// QuantizeSample maps a signed 16-bit sample onto the unsigned byte scale.
func QuantizeSample(s int16) byte {
	return byte((int(s) + 32768) >> 8)
}
