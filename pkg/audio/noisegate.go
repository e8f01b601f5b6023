package audio

// DefaultNoiseReduction is the fraction of amplitude removed from frames
// classified as background noise. Half strength keeps speech onsets intact
// when the gate misclassifies a quiet syllable.
const DefaultNoiseReduction = 0.5

// gateFrameMS is the analysis window for the noise gate.
const gateFrameMS = 10

// NoiseGate attenuates low-energy stretches of a PCM stream. It is a cheap
// stand-in for spectral noise reduction: frames whose energy stays under the
// threshold are scaled down rather than filtered.
type NoiseGate struct {
	// Threshold is the normalized RMS under which a frame counts as noise.
	Threshold float64

	// Reduction is the fraction of amplitude removed from noise frames,
	// in [0, 1].
	Reduction float64

	frameBytes int
}

// NewNoiseGate creates a gate for PCM at the given sample rate. Non-positive
// threshold and reduction fall back to the package defaults.
func NewNoiseGate(sampleRate int, threshold, reduction float64) *NoiseGate {
	if sampleRate <= 0 {
		sampleRate = STTFormat.SampleRate
	}
	if threshold <= 0 {
		threshold = noiseFloor
	}
	if reduction <= 0 {
		reduction = DefaultNoiseReduction
	}
	if reduction > 1 {
		reduction = 1
	}
	return &NoiseGate{
		Threshold:  threshold,
		Reduction:  reduction,
		frameBytes: sampleRate * gateFrameMS / 1000 * 2,
	}
}

// Process returns a copy of pcm with noise frames attenuated. A trailing
// partial frame passes through untouched.
func (g *NoiseGate) Process(pcm []byte) []byte {
	out := make([]byte, len(pcm))
	copy(out, pcm)

	gain := 1 - g.Reduction
	for off := 0; off+g.frameBytes <= len(out); off += g.frameBytes {
		frame := out[off : off+g.frameBytes]
		if RMS(NormalizePCM16(frame)) > g.Threshold {
			continue
		}
		samples := DecodePCM16(frame)
		for i, s := range samples {
			samples[i] = int16(float64(s) * gain)
		}
		copy(frame, EncodePCM16(samples))
	}
	return out
}

// NoiseLevel reports the overall RMS energy of a PCM clip. Callers use it to
// surface the ambient noise floor to clients.
func NoiseLevel(pcm []byte) float64 {
	return RMS(NormalizePCM16(pcm))
}
