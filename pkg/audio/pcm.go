package audio

import "math"

const (
	// decodeScale maps a signed 16-bit sample onto [-1.0, 1.0).
	decodeScale = 1.0 / 32768.0

	// encodeScale maps a clamped float sample onto [-32767, 32767].
	encodeScale = 32767.0
)

// SampleFromInt16 converts a signed 16-bit PCM sample to a float in [-1.0, 1.0).
func SampleFromInt16(s int16) float32 {
	return float32(float64(s) * decodeScale)
}

// SampleToInt16 clamps v to [-1.0, 1.0], scales it by 32767 and truncates
// toward zero. NaN encodes as silence.
func SampleToInt16(v float32) int16 {
	f := float64(v)
	switch {
	case math.IsNaN(f):
		return 0
	case f > 1:
		f = 1
	case f < -1:
		f = -1
	}
	return int16(f * encodeScale)
}

// putInt16LE writes s as little-endian into b[0:2].
func putInt16LE(b []byte, s int16) {
	b[0] = byte(s)
	b[1] = byte(uint16(s) >> 8)
}

// int16LE reads a little-endian signed 16-bit sample from b[0:2].
func int16LE(b []byte) int16 {
	return int16(b[0]) | int16(b[1])<<8
}
