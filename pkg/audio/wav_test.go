package audio_test

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/voxwire/voxwire/pkg/audio"
)

func TestEncodeWAV_Header(t *testing.T) {
	pcm := pcmBytes([]int16{100, -100, 200, -200})
	wav := audio.EncodeWAV(pcm, audio.Format{SampleRate: 24000, Channels: 1})

	if len(wav) != 44+len(pcm) {
		t.Fatalf("expected %d bytes, got %d", 44+len(pcm), len(wav))
	}
	if !audio.IsWAV(wav) {
		t.Fatal("IsWAV = false for encoded container")
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); got != uint32(36+len(pcm)) {
		t.Errorf("riff size: got %d, want %d", got, 36+len(pcm))
	}
	if got := binary.LittleEndian.Uint16(wav[20:22]); got != 1 {
		t.Errorf("audio format: got %d, want 1 (PCM)", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Errorf("channels: got %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 24000 {
		t.Errorf("sample rate: got %d, want 24000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 48000 {
		t.Errorf("byte rate: got %d, want 48000", got)
	}
	if got := binary.LittleEndian.Uint16(wav[34:36]); got != 16 {
		t.Errorf("bits per sample: got %d, want 16", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size: got %d, want %d", got, len(pcm))
	}
}

func TestParseWAV_RoundTrip(t *testing.T) {
	pcm := pcmBytes([]int16{1, 2, 3, -1, -2, -3})
	format := audio.Format{SampleRate: 16000, Channels: 2}

	got, f, err := audio.ParseWAV(audio.EncodeWAV(pcm, format))
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if f != format {
		t.Errorf("format: got %+v, want %+v", f, format)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("pcm mismatch: got %d bytes, want %d", len(got), len(pcm))
	}
}

func TestParseWAV_ExtraChunk(t *testing.T) {
	// Real encoders emit LIST/INFO chunks before data; the walker must skip
	// them, including the pad byte after an odd-sized chunk.
	pcm := pcmBytes([]int16{42, -42})
	wav := audio.EncodeWAV(pcm, audio.Format{SampleRate: 16000, Channels: 1})

	var buf bytes.Buffer
	buf.Write(wav[:36]) // RIFF preamble + fmt chunk
	buf.WriteString("LIST")
	binary.Write(&buf, binary.LittleEndian, uint32(3))
	buf.Write([]byte{'a', 'b', 'c', 0}) // odd size + pad
	buf.Write(wav[36:])                 // data chunk

	got, f, err := audio.ParseWAV(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if f.SampleRate != 16000 || f.Channels != 1 {
		t.Errorf("format: got %+v", f)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("pcm mismatch after extra chunk")
	}
}

func TestParseWAV_NotWAV(t *testing.T) {
	if _, _, err := audio.ParseWAV([]byte("definitely not audio data")); err == nil {
		t.Error("expected error for non-WAV input")
	}
}

func TestParseWAV_TruncatedData(t *testing.T) {
	pcm := pcmBytes([]int16{1, 2, 3, 4})
	wav := audio.EncodeWAV(pcm, audio.Format{SampleRate: 16000, Channels: 1})
	if _, _, err := audio.ParseWAV(wav[:len(wav)-2]); err == nil {
		t.Error("expected error for truncated data chunk")
	}
}

func TestParseWAV_UnsupportedEncoding(t *testing.T) {
	wav := audio.EncodeWAV(pcmBytes([]int16{1, 2}), audio.Format{SampleRate: 16000, Channels: 1})
	// Rewrite the format tag to 3 (IEEE float).
	binary.LittleEndian.PutUint16(wav[20:22], 3)
	if _, _, err := audio.ParseWAV(wav); err == nil {
		t.Error("expected error for non-PCM encoding")
	}
}

func TestParseWAV_MissingData(t *testing.T) {
	wav := audio.EncodeWAV(nil, audio.Format{SampleRate: 16000, Channels: 1})
	// Chop off the data chunk, leaving only RIFF preamble + fmt.
	if _, _, err := audio.ParseWAV(wav[:36]); err == nil {
		t.Error("expected error for missing data chunk")
	}
}

func TestSilenceWAV(t *testing.T) {
	wav := audio.SilenceWAV(500*time.Millisecond, audio.STTFormat)
	pcm, f, err := audio.ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if f != audio.STTFormat {
		t.Errorf("format: got %+v, want %+v", f, audio.STTFormat)
	}
	// 500ms at 16kHz mono = 8000 samples = 16000 bytes.
	if len(pcm) != 16000 {
		t.Errorf("expected 16000 bytes of silence, got %d", len(pcm))
	}
	for i, b := range pcm {
		if b != 0 {
			t.Fatalf("non-zero byte at %d", i)
		}
	}
}

func TestIsWAV(t *testing.T) {
	if audio.IsWAV([]byte("RIFF")) {
		t.Error("short prefix should not pass")
	}
	if audio.IsWAV([]byte("RIFFxxxxABCD")) {
		t.Error("non-WAVE form should not pass")
	}
	if !audio.IsWAV(audio.EncodeWAV(nil, audio.STTFormat)) {
		t.Error("encoded container should pass")
	}
}
