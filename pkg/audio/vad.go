package audio

import (
	"fmt"
	"log/slog"
	"slices"
)

const (
	// DefaultEnergyThreshold is the normalized RMS level separating speech
	// frames from silence. Tuned against browser microphone capture.
	DefaultEnergyThreshold = 0.02

	defaultFrameDurationMS = 30
	defaultSpeechFrames    = 3
	defaultSilenceFrames   = 15

	// speechRatioThreshold: a clip counts as containing speech when more
	// than this fraction of its frames carry voice energy.
	speechRatioThreshold = 0.3
)

// VADConfig tunes the energy-based voice activity detector. Zero values take
// defaults.
type VADConfig struct {
	// SampleRate must be 8000, 16000, 32000, or 48000 Hz.
	SampleRate int

	// FrameDurationMS must be 10, 20, or 30 milliseconds.
	FrameDurationMS int

	// EnergyThreshold is the RMS level above which a frame counts as speech.
	EnergyThreshold float64

	// SpeechFrames is the consecutive speech-frame run that starts a
	// speaking segment.
	SpeechFrames int

	// SilenceFrames is the consecutive silence-frame run that ends one.
	SilenceFrames int
}

// VADResult summarizes one clip's speech activity, shaped for the client wire
// format.
type VADResult struct {
	HasSpeech      bool    `json:"has_speech"`
	SpeechRatio    float64 `json:"speech_ratio"`
	SpeechEnded    bool    `json:"speech_ended"`
	DurationMS     int     `json:"duration_ms"`
	FramesAnalyzed int     `json:"frames_analyzed"`
}

// EnergyVAD detects speech segments from frame energy. It keeps run counters
// across calls so segment boundaries survive clip boundaries.
// Not safe for concurrent use.
type EnergyVAD struct {
	cfg        VADConfig
	frameBytes int

	speaking    bool
	speechRun   int
	silenceRun  int
	totalSpeech int
}

// NewEnergyVAD validates the config and creates a detector.
func NewEnergyVAD(cfg VADConfig) (*EnergyVAD, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = STTFormat.SampleRate
	}
	if cfg.FrameDurationMS == 0 {
		cfg.FrameDurationMS = defaultFrameDurationMS
	}
	if cfg.EnergyThreshold == 0 {
		cfg.EnergyThreshold = DefaultEnergyThreshold
	}
	if cfg.SpeechFrames == 0 {
		cfg.SpeechFrames = defaultSpeechFrames
	}
	if cfg.SilenceFrames == 0 {
		cfg.SilenceFrames = defaultSilenceFrames
	}

	if !slices.Contains([]int{8000, 16000, 32000, 48000}, cfg.SampleRate) {
		return nil, fmt.Errorf("audio: vad sample rate must be 8000, 16000, 32000, or 48000, got %d", cfg.SampleRate)
	}
	if !slices.Contains([]int{10, 20, 30}, cfg.FrameDurationMS) {
		return nil, fmt.Errorf("audio: vad frame duration must be 10, 20, or 30 ms, got %d", cfg.FrameDurationMS)
	}

	samplesPerFrame := cfg.SampleRate * cfg.FrameDurationMS / 1000
	return &EnergyVAD{
		cfg:        cfg,
		frameBytes: samplesPerFrame * 2,
	}, nil
}

// FrameBytes returns the expected byte length of a single PCM frame.
func (v *EnergyVAD) FrameBytes() int { return v.frameBytes }

// Speaking reports whether the detector is currently inside a speech segment.
func (v *EnergyVAD) Speaking() bool { return v.speaking }

// ProcessFrame classifies one PCM frame and advances the segment state
// machine. It returns the current speaking state and whether that state just
// flipped. Frames of the wrong size are ignored.
func (v *EnergyVAD) ProcessFrame(frame []byte) (speaking, changed bool) {
	if len(frame) != v.frameBytes {
		slog.Warn("vad: frame size mismatch", "want", v.frameBytes, "got", len(frame))
		return v.speaking, false
	}

	v.observe(v.isSpeech(frame))

	switch {
	case !v.speaking && v.speechRun >= v.cfg.SpeechFrames:
		v.speaking = true
		v.totalSpeech = 0
		changed = true
		slog.Debug("vad: speech started")
	case v.speaking && v.silenceRun >= v.cfg.SilenceFrames:
		v.speaking = false
		changed = true
		slog.Debug("vad: speech ended")
	}
	return v.speaking, changed
}

// AnalyzePCM walks a whole PCM clip frame by frame and reports its speech
// activity. Segment state carries over from previous calls, so feeding
// consecutive clips detects boundaries that span them.
func (v *EnergyVAD) AnalyzePCM(pcm []byte) VADResult {
	var result VADResult

	speechFrames := 0
	for off := 0; off+v.frameBytes <= len(pcm); off += v.frameBytes {
		result.FramesAnalyzed++
		if v.isSpeech(pcm[off : off+v.frameBytes]) {
			speechFrames++
			v.observe(true)
		} else {
			v.observe(false)
		}
	}

	if result.FramesAnalyzed > 0 {
		result.SpeechRatio = float64(speechFrames) / float64(result.FramesAnalyzed)
		result.HasSpeech = result.SpeechRatio > speechRatioThreshold
		result.DurationMS = result.FramesAnalyzed * v.cfg.FrameDurationMS
	}

	if !v.speaking && v.speechRun >= v.cfg.SpeechFrames {
		v.speaking = true
		v.totalSpeech = 0
	}
	if v.speaking {
		v.totalSpeech += speechFrames
	}
	if v.speaking && v.silenceRun >= v.cfg.SilenceFrames {
		v.speaking = false
		result.SpeechEnded = true
		slog.Debug("vad: speech ended", "totalSpeechFrames", v.totalSpeech)
	}

	return result
}

// Reset clears segment state between conversations.
func (v *EnergyVAD) Reset() {
	v.speaking = false
	v.speechRun = 0
	v.silenceRun = 0
	v.totalSpeech = 0
}

func (v *EnergyVAD) isSpeech(frame []byte) bool {
	return RMS(NormalizePCM16(frame)) > v.cfg.EnergyThreshold
}

func (v *EnergyVAD) observe(speech bool) {
	if speech {
		v.speechRun++
		v.silenceRun = 0
	} else {
		v.silenceRun++
		v.speechRun = 0
	}
}
