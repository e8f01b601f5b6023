package audio_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/voxwire/voxwire/pkg/audio"
)

// webmFragment fabricates a blob with a valid WebM EBML header.
func webmFragment(size int) []byte {
	frag := make([]byte, size)
	copy(frag, []byte{0x1A, 0x45, 0xDF, 0xA3})
	return frag
}

// scriptedDecoder returns canned frames in order, failing where the script
// says so.
type scriptedDecoder struct {
	script []struct {
		frame audio.AudioFrame
		err   error
	}
	calls int
}

func (d *scriptedDecoder) Decode(fragment []byte) (audio.AudioFrame, error) {
	if d.calls >= len(d.script) {
		return audio.AudioFrame{}, errors.New("unexpected decode call")
	}
	step := d.script[d.calls]
	d.calls++
	return step.frame, step.err
}

func (d *scriptedDecoder) add(frame audio.AudioFrame, err error) {
	d.script = append(d.script, struct {
		frame audio.AudioFrame
		err   error
	}{frame, err})
}

func monoFrame(samples []int16) audio.AudioFrame {
	return audio.AudioFrame{
		Data:       audio.EncodePCM16(samples),
		SampleRate: 16000,
		Channels:   1,
	}
}

func TestValidFragment(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"webm", webmFragment(32), true},
		{"wav", audio.EncodeWAV(nil, audio.STTFormat), true},
		{"garbage", []byte("hello world, not audio"), false},
		{"too short", []byte{0x1A, 0x45}, false},
		{"empty", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := audio.ValidFragment(tt.data); got != tt.want {
				t.Errorf("ValidFragment = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAdd_RejectsInvalidFragments(t *testing.T) {
	r := audio.NewReassembler(nil)

	if !r.Add(webmFragment(100)) {
		t.Error("valid WebM fragment should be accepted")
	}
	if r.Add([]byte("not audio at all")) {
		t.Error("garbage fragment should be dropped")
	}
	if r.Len() != 1 {
		t.Errorf("Len: got %d, want 1", r.Len())
	}
	if r.BufferedBytes() != 100 {
		t.Errorf("BufferedBytes: got %d, want 100", r.BufferedBytes())
	}
}

func TestAdd_CopiesFragment(t *testing.T) {
	r := audio.NewReassembler(nil)
	frag := webmFragment(16)
	r.Add(frag)

	// Mutating the caller's buffer must not corrupt the buffered copy.
	frag[8] = 0xFF
	got := r.Take()[0]
	if got[8] == 0xFF {
		t.Error("Add should copy the fragment")
	}
}

func TestTake_ClearsBuffer(t *testing.T) {
	r := audio.NewReassembler(nil)
	r.Add(webmFragment(50))
	r.Add(webmFragment(60))

	got := r.Take()
	if len(got) != 2 {
		t.Fatalf("Take: got %d fragments, want 2", len(got))
	}
	if r.Len() != 0 || r.BufferedBytes() != 0 {
		t.Errorf("buffer not cleared: len=%d bytes=%d", r.Len(), r.BufferedBytes())
	}
}

func TestAssemble_DecodesAndJoins(t *testing.T) {
	dec := &scriptedDecoder{}
	dec.add(monoFrame([]int16{1, 2}), nil)
	dec.add(monoFrame([]int16{3, 4}), nil)
	dec.add(monoFrame([]int16{5, 6}), nil)

	r := audio.NewReassembler(dec)
	wav, err := r.Assemble([][]byte{webmFragment(50), webmFragment(50), webmFragment(50)})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	pcm, f, err := audio.ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if f != audio.STTFormat {
		t.Errorf("format: got %+v, want %+v", f, audio.STTFormat)
	}
	got := audio.DecodePCM16(pcm)
	want := []int16{1, 2, 3, 4, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("samples: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestAssemble_ConvertsToSTTFormat(t *testing.T) {
	// Decoder hands back 48kHz stereo; the clip must come out 16kHz mono.
	dec := &scriptedDecoder{}
	dec.add(audio.AudioFrame{
		Data:       pcmBytes([]int16{10, 10, 20, 20, 30, 30, 40, 40, 50, 50, 60, 60}),
		SampleRate: 48000,
		Channels:   2,
	}, nil)

	r := audio.NewReassembler(dec)
	wav, err := r.Assemble([][]byte{webmFragment(50)})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	pcm, f, err := audio.ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if f != audio.STTFormat {
		t.Errorf("format: got %+v, want %+v", f, audio.STTFormat)
	}
	// 6 stereo frames at 48kHz become 2 mono samples at 16kHz.
	if len(pcm) != 4 {
		t.Errorf("pcm: got %d bytes, want 4", len(pcm))
	}
}

func TestAssemble_SkipsFailedFragments(t *testing.T) {
	dec := &scriptedDecoder{}
	dec.add(monoFrame([]int16{1, 2}), nil)
	dec.add(audio.AudioFrame{}, errors.New("corrupt cluster"))
	dec.add(monoFrame([]int16{5, 6}), nil)

	r := audio.NewReassembler(dec)
	wav, err := r.Assemble([][]byte{webmFragment(50), webmFragment(50), webmFragment(50)})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	pcm, _, err := audio.ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	got := audio.DecodePCM16(pcm)
	want := []int16{1, 2, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("samples: got %v, want %v", got, want)
	}
}

func TestAssemble_AllFragmentsFail(t *testing.T) {
	dec := &scriptedDecoder{}
	dec.add(audio.AudioFrame{}, errors.New("corrupt"))
	dec.add(audio.AudioFrame{}, errors.New("corrupt"))

	r := audio.NewReassembler(dec)
	if _, err := r.Assemble([][]byte{webmFragment(50), webmFragment(50)}); err == nil {
		t.Error("expected error when nothing decodes")
	}
}

func TestAssemble_NoDecoder(t *testing.T) {
	r := audio.NewReassembler(nil)
	_, err := r.Assemble([][]byte{webmFragment(50)})
	if !errors.Is(err, audio.ErrNoDecoder) {
		t.Errorf("expected ErrNoDecoder, got %v", err)
	}
}

func TestAssemble_WAVFragmentsWithoutDecoder(t *testing.T) {
	// Push-to-talk clients may upload WAV directly; those assemble even
	// when no compressed-audio decoder is wired in.
	frag1 := audio.EncodeWAV(pcmBytes([]int16{1, 2}), audio.STTFormat)
	frag2 := audio.EncodeWAV(pcmBytes([]int16{3, 4}), audio.STTFormat)

	r := audio.NewReassembler(nil)
	wav, err := r.Assemble([][]byte{frag1, frag2})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	pcm, _, err := audio.ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if !bytes.Equal(pcm, pcmBytes([]int16{1, 2, 3, 4})) {
		t.Errorf("pcm mismatch: got %d bytes", len(pcm))
	}
}

func TestAssemble_Empty(t *testing.T) {
	r := audio.NewReassembler(&scriptedDecoder{})
	if _, err := r.Assemble(nil); err == nil {
		t.Error("expected error for empty fragment list")
	}
}
