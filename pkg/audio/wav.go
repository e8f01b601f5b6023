package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// wavHeaderSize is the byte length of a canonical PCM WAV header.
const wavHeaderSize = 44

// IsWAV reports whether the blob starts with a RIFF/WAVE container header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 &&
		bytes.Equal(data[0:4], []byte("RIFF")) &&
		bytes.Equal(data[8:12], []byte("WAVE"))
}

// EncodeWAV wraps raw little-endian int16 PCM in a canonical 44-byte WAV
// header. Transcription and playback endpoints want a container, while TTS
// backends hand back bare PCM.
func EncodeWAV(pcm []byte, f Format) []byte {
	byteRate := f.SampleRate * f.Channels * 2
	blockAlign := f.Channels * 2

	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(pcm))
	buf.WriteString("RIFF")
	writeLE(&buf, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	writeLE(&buf, uint32(16))
	writeLE(&buf, uint16(1)) // PCM
	writeLE(&buf, uint16(f.Channels))
	writeLE(&buf, uint32(f.SampleRate))
	writeLE(&buf, uint32(byteRate))
	writeLE(&buf, uint16(blockAlign))
	writeLE(&buf, uint16(16)) // bits per sample
	buf.WriteString("data")
	writeLE(&buf, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// SilenceWAV returns a WAV clip of silence with the given duration. Used as a
// playable fallback when synthesis fails, so clients never stall on a turn.
func SilenceWAV(d time.Duration, f Format) []byte {
	samples := int(d.Seconds() * float64(f.SampleRate))
	if samples < 0 {
		samples = 0
	}
	return EncodeWAV(make([]byte, samples*f.Channels*2), f)
}

// ParseWAV extracts the raw PCM payload and format from a WAV container.
// Only uncompressed 16-bit PCM is supported.
func ParseWAV(data []byte) ([]byte, Format, error) {
	if !IsWAV(data) {
		return nil, Format{}, fmt.Errorf("audio: not a RIFF/WAVE container")
	}

	var (
		f       Format
		pcm     []byte
		sawFmt  bool
		sawData bool
	)

	// Walk the chunk list after the 12-byte RIFF preamble. Chunks are
	// word-aligned, so odd sizes carry a pad byte.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			return nil, Format{}, fmt.Errorf("audio: wav chunk %q overruns container (%d bytes)", id, size)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, Format{}, fmt.Errorf("audio: wav fmt chunk too short (%d bytes)", size)
			}
			audioFormat := binary.LittleEndian.Uint16(data[body : body+2])
			if audioFormat != 1 {
				return nil, Format{}, fmt.Errorf("audio: unsupported wav encoding %d (want PCM)", audioFormat)
			}
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if bits != 16 {
				return nil, Format{}, fmt.Errorf("audio: unsupported wav bit depth %d (want 16)", bits)
			}
			f.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			sawFmt = true
		case "data":
			pcm = data[body : body+size]
			sawData = true
		}

		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if !sawFmt {
		return nil, Format{}, fmt.Errorf("audio: wav missing fmt chunk")
	}
	if !sawData {
		return nil, Format{}, fmt.Errorf("audio: wav missing data chunk")
	}
	return pcm, f, nil
}

func writeLE(buf *bytes.Buffer, v any) {
	// bytes.Buffer never fails to grow; the error is unreachable.
	_ = binary.Write(buf, binary.LittleEndian, v)
}
