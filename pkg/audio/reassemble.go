package audio

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
)

// LargeFragmentBytes marks push-to-talk captures: voice-activity streaming
// sends fragments of a few KB, while push-to-talk delivers the whole
// utterance in one blob. Fragments at or above this size are processed
// immediately instead of waiting for a silence window.
const LargeFragmentBytes = 10240

// ErrNoDecoder is returned by Assemble when no fragment decoder is wired in.
// Callers fall back to transcribing fragments one at a time.
var ErrNoDecoder = errors.New("audio: no fragment decoder available")

var webmMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

// IsWebM reports whether the blob starts with a WebM EBML header.
func IsWebM(data []byte) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], webmMagic)
}

// ValidFragment reports whether the blob carries a recognized audio container
// header. Anything else is line noise from the client and gets dropped.
func ValidFragment(data []byte) bool {
	return IsWebM(data) || IsWAV(data)
}

// Decoder decodes one compressed audio fragment into a PCM frame.
type Decoder interface {
	Decode(fragment []byte) (AudioFrame, error)
}

// Reassembler buffers validated audio fragments for one turn and joins them
// into a single STT-ready WAV clip. Browsers deliver a turn as many small
// WebM fragments; transcription wants one contiguous clip.
// Not safe for concurrent use; sessions own one each.
type Reassembler struct {
	decoder   Decoder
	fragments [][]byte
	buffered  int
}

// NewReassembler creates a Reassembler. decoder may be nil, in which case
// Assemble reports ErrNoDecoder and callers transcribe per fragment.
func NewReassembler(decoder Decoder) *Reassembler {
	return &Reassembler{decoder: decoder}
}

// HasDecoder reports whether a fragment decoder is wired in.
func (r *Reassembler) HasDecoder() bool { return r.decoder != nil }

// Add validates and buffers one fragment, copying it so the caller may reuse
// its read buffer. It reports whether the fragment was accepted.
func (r *Reassembler) Add(fragment []byte) bool {
	if !ValidFragment(fragment) {
		slog.Warn("reassembler: dropping fragment with invalid header", "bytes", len(fragment))
		return false
	}
	r.fragments = append(r.fragments, bytes.Clone(fragment))
	r.buffered += len(fragment)
	return true
}

// Len returns the number of buffered fragments.
func (r *Reassembler) Len() int { return len(r.fragments) }

// BufferedBytes returns the total size of buffered fragments.
func (r *Reassembler) BufferedBytes() int { return r.buffered }

// Take returns the buffered fragments and clears the buffer, so fragments
// arriving during processing start a fresh turn.
func (r *Reassembler) Take() [][]byte {
	fragments := r.fragments
	r.fragments = nil
	r.buffered = 0
	return fragments
}

// Reset discards any buffered fragments.
func (r *Reassembler) Reset() {
	r.fragments = nil
	r.buffered = 0
}

// Assemble decodes the fragments, converts them to the STT format, and joins
// them into one WAV clip. Fragments that fail to decode are skipped; the clip
// fails only when nothing decodes. Without a decoder it returns ErrNoDecoder.
func (r *Reassembler) Assemble(fragments [][]byte) ([]byte, error) {
	if len(fragments) == 0 {
		return nil, fmt.Errorf("audio: no fragments to assemble")
	}

	conv := FormatConverter{Target: STTFormat}
	var pcm []byte
	decoded := 0

	for i, fragment := range fragments {
		frame, err := r.decodeFragment(fragment)
		if err != nil {
			if errors.Is(err, ErrNoDecoder) {
				return nil, err
			}
			slog.Warn("reassembler: skipping fragment", "index", i, "error", err)
			continue
		}
		out := conv.Convert(frame)
		pcm = append(pcm, out.Data...)
		decoded++
	}

	if decoded == 0 {
		return nil, fmt.Errorf("audio: no fragments could be decoded")
	}

	slog.Debug("reassembler: assembled clip",
		"fragments", decoded,
		"of", len(fragments),
		"pcmBytes", len(pcm),
	)
	return EncodeWAV(pcm, STTFormat), nil
}

// decodeFragment turns one fragment into PCM. WAV fragments parse directly;
// everything else goes through the decoder.
func (r *Reassembler) decodeFragment(fragment []byte) (AudioFrame, error) {
	if IsWAV(fragment) {
		pcm, f, err := ParseWAV(fragment)
		if err != nil {
			return AudioFrame{}, err
		}
		return AudioFrame{Data: pcm, SampleRate: f.SampleRate, Channels: f.Channels}, nil
	}
	if r.decoder == nil {
		return AudioFrame{}, ErrNoDecoder
	}
	return r.decoder.Decode(fragment)
}
