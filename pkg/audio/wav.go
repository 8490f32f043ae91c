package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrUnsupportedLayout is returned by [Decode] when the input is not a
// well-formed 16-bit PCM mono RIFF/WAVE stream. It is a soft failure: callers
// are expected to treat the input as already-final audio.
var ErrUnsupportedLayout = errors.New("audio: unsupported wav layout")

const (
	// HeaderSize is the size of the canonical header written by [Encode] and
	// the minimum length [Decode] accepts.
	HeaderSize = 44

	// FormatPCM is the fmt chunk audio-format code for integer PCM.
	FormatPCM = 1

	firstChunkOffset = 12
	chunkHeaderSize  = 8
	fmtPayloadSize   = 16
	bytesPerSample   = 2
)

// Format is the subset of the fmt chunk that [Decode] inspects.
type Format struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// Decode parses a RIFF/WAVE byte stream into a [PCMBuffer].
//
// Chunks are walked from offset 12 until the data chunk is found; anything
// after it is ignored. Odd-sized chunks are skipped with their pad byte. Any
// layout other than integer PCM, one channel, 16 bits per sample, or a data
// chunk that overruns the buffer, yields an error wrapping
// [ErrUnsupportedLayout].
func Decode(raw []byte) (PCMBuffer, error) {
	if len(raw) < HeaderSize {
		return PCMBuffer{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrUnsupportedLayout, len(raw), HeaderSize)
	}
	if string(raw[0:4]) != "RIFF" {
		return PCMBuffer{}, fmt.Errorf("%w: missing RIFF magic", ErrUnsupportedLayout)
	}
	if string(raw[8:12]) != "WAVE" {
		return PCMBuffer{}, fmt.Errorf("%w: missing WAVE magic", ErrUnsupportedLayout)
	}

	var (
		fmtOff, dataOff int
		dataSize        int
		haveFmt         bool
		haveData        bool
	)
	// Offsets are tracked as int64 so a hostile chunk size cannot wrap around
	// on 32-bit platforms.
	pos := int64(firstChunkOffset)
	end := int64(len(raw))
	for pos+chunkHeaderSize <= end {
		id := string(raw[pos : pos+4])
		size := int64(binary.LittleEndian.Uint32(raw[pos+4 : pos+8]))
		payload := pos + chunkHeaderSize

		switch id {
		case "fmt ":
			if size < fmtPayloadSize || payload+fmtPayloadSize > end {
				return PCMBuffer{}, fmt.Errorf("%w: truncated fmt chunk of %d bytes", ErrUnsupportedLayout, size)
			}
			fmtOff = int(payload)
			haveFmt = true
		case "data":
			if payload+size > end {
				return PCMBuffer{}, fmt.Errorf("%w: data chunk of %d bytes overruns buffer", ErrUnsupportedLayout, size)
			}
			dataOff = int(payload)
			dataSize = int(size)
			haveData = true
		}
		if haveData {
			break
		}
		pos = payload + size + size&1
	}

	if !haveFmt {
		return PCMBuffer{}, fmt.Errorf("%w: no fmt chunk", ErrUnsupportedLayout)
	}
	if !haveData {
		return PCMBuffer{}, fmt.Errorf("%w: no data chunk", ErrUnsupportedLayout)
	}
	f := readFormat(raw[fmtOff : fmtOff+fmtPayloadSize])
	if err := f.check(); err != nil {
		return PCMBuffer{}, err
	}

	n := dataSize / bytesPerSample
	samples := make([]float32, n)
	data := raw[dataOff : dataOff+n*bytesPerSample]
	for i := range samples {
		samples[i] = SampleFromInt16(int16LE(data[i*bytesPerSample:]))
	}
	return PCMBuffer{SampleRate: f.SampleRate, Samples: samples}, nil
}

// Encode serialises b as a canonical 44-byte-header PCM16 mono WAV stream.
// Samples are clamped to [-1.0, 1.0], scaled by 32767 and truncated toward
// zero.
func Encode(b PCMBuffer) []byte {
	dataSize := len(b.Samples) * bytesPerSample
	out := make([]byte, HeaderSize+dataSize)

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataSize))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], fmtPayloadSize)
	binary.LittleEndian.PutUint16(out[20:22], FormatPCM)
	binary.LittleEndian.PutUint16(out[22:24], 1)
	binary.LittleEndian.PutUint32(out[24:28], b.SampleRate)
	binary.LittleEndian.PutUint32(out[28:32], b.SampleRate*bytesPerSample)
	binary.LittleEndian.PutUint16(out[32:34], bytesPerSample)
	binary.LittleEndian.PutUint16(out[34:36], 16)

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))

	pcm := out[HeaderSize:]
	for i, s := range b.Samples {
		putInt16LE(pcm[i*bytesPerSample:], SampleToInt16(s))
	}
	return out
}

// readFormat reads the fixed-offset fields of a fmt chunk payload.
func readFormat(p []byte) Format {
	return Format{
		AudioFormat:   binary.LittleEndian.Uint16(p[0:2]),
		Channels:      binary.LittleEndian.Uint16(p[2:4]),
		SampleRate:    binary.LittleEndian.Uint32(p[4:8]),
		BitsPerSample: binary.LittleEndian.Uint16(p[14:16]),
	}
}

func (f Format) check() error {
	if f.AudioFormat != FormatPCM {
		return fmt.Errorf("%w: audio format %d, only integer PCM is supported", ErrUnsupportedLayout, f.AudioFormat)
	}
	if f.Channels != 1 {
		return fmt.Errorf("%w: %d channels, only mono is supported", ErrUnsupportedLayout, f.Channels)
	}
	if f.BitsPerSample != 16 {
		return fmt.Errorf("%w: %d bits per sample, only 16 is supported", ErrUnsupportedLayout, f.BitsPerSample)
	}
	return nil
}
