package audio

import (
	"log/slog"
	"math"
)

const (
	// noiseFloor separates signal from noise when estimating SNR.
	noiseFloor = 0.01

	// clipThreshold marks samples considered clipped.
	clipThreshold = 0.99

	// minAnalyzableBytes is the smallest blob worth analyzing; anything
	// shorter is codec header with no usable payload.
	minAnalyzableBytes = 100
)

// ClippingInfo describes how much of a clip sits at or near full scale.
type ClippingInfo struct {
	IsClipping     bool    `json:"is_clipping"`
	ClippedSamples int     `json:"clipped_samples"`
	ClipPercentage float64 `json:"clip_percentage"`
}

// Metrics is a quality report for one audio clip, shaped for the client wire
// format.
type Metrics struct {
	RMS          float64      `json:"rms"`
	Peak         float64      `json:"peak"`
	SNRDB        float64      `json:"snr_db"`
	Clipping     ClippingInfo `json:"clipping"`
	QualityScore int          `json:"quality_score"`
	QualityLabel string       `json:"quality_label"`
	DurationMS   int          `json:"duration_ms"`
}

// Analyzer computes quality metrics for incoming audio. When a Decoder is
// available, compressed fragments are decoded before analysis; otherwise the
// raw bytes are treated as a pseudo-signal, which is rough but good enough for
// energy and peak estimation.
type Analyzer struct {
	sampleRate int
	decoder    Decoder
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithDecoder supplies a fragment decoder for accurate analysis of compressed
// audio.
func WithDecoder(d Decoder) AnalyzerOption {
	return func(a *Analyzer) { a.decoder = d }
}

// NewAnalyzer creates an Analyzer. A non-positive sampleRate falls back to
// 16kHz.
func NewAnalyzer(sampleRate int, opts ...AnalyzerOption) *Analyzer {
	if sampleRate <= 0 {
		sampleRate = STTFormat.SampleRate
	}
	a := &Analyzer{sampleRate: sampleRate}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze computes the full metrics report for one audio blob. Blobs that
// cannot be converted to samples yield a zero report labeled "unknown".
func (a *Analyzer) Analyze(blob []byte) Metrics {
	samples := a.samples(blob)
	if len(samples) == 0 {
		return Metrics{QualityLabel: "unknown"}
	}
	return a.metricsFrom(samples)
}

// AnalyzePCM computes metrics for raw little-endian int16 PCM at the
// analyzer's sample rate.
func (a *Analyzer) AnalyzePCM(pcm []byte) Metrics {
	samples := NormalizePCM16(pcm)
	if len(samples) == 0 {
		return Metrics{QualityLabel: "unknown"}
	}
	return a.metricsFrom(samples)
}

func (a *Analyzer) metricsFrom(samples []float64) Metrics {
	m := Metrics{
		RMS:        roundTo(RMS(samples), 4),
		Peak:       roundTo(Peak(samples), 4),
		SNRDB:      roundTo(SNR(samples), 1),
		Clipping:   DetectClipping(samples),
		DurationMS: int(float64(len(samples)) / float64(a.sampleRate) * 1000),
	}
	m.QualityScore = QualityScore(m.SNRDB, m.RMS, m.Peak, m.Clipping.IsClipping)
	m.QualityLabel = qualityLabel(m.QualityScore)

	slog.Debug("audio metrics",
		"rms", m.RMS,
		"peak", m.Peak,
		"snrDB", m.SNRDB,
		"quality", m.QualityScore,
		"label", m.QualityLabel,
	)
	return m
}

// samples converts a blob into normalized float64 samples, preferring real
// decoding over byte estimation.
func (a *Analyzer) samples(blob []byte) []float64 {
	if len(blob) < minAnalyzableBytes {
		return nil
	}

	if IsWAV(blob) {
		pcm, f, err := ParseWAV(blob)
		if err == nil {
			conv := FormatConverter{Target: Format{SampleRate: a.sampleRate, Channels: 1}}
			frame := conv.Convert(AudioFrame{Data: pcm, SampleRate: f.SampleRate, Channels: f.Channels})
			return NormalizePCM16(frame.Data)
		}
		slog.Warn("audio analyzer: wav parse failed, using byte estimation", "error", err)
	} else if a.decoder != nil {
		frame, err := a.decoder.Decode(blob)
		if err == nil {
			conv := FormatConverter{Target: Format{SampleRate: a.sampleRate, Channels: 1}}
			converted := conv.Convert(frame)
			return NormalizePCM16(converted.Data)
		}
		slog.Warn("audio analyzer: decode failed, using byte estimation", "error", err)
	}

	return estimateSamples(blob)
}

// estimateSamples approximates a signal from raw compressed bytes: skip the
// container header, read the payload as int8, and smooth with a short moving
// average. Not playable audio, but close enough for RMS and peak estimation.
func estimateSamples(blob []byte) []float64 {
	skip := min(100, len(blob)/4)
	body := blob[skip:]
	if len(body) < minAnalyzableBytes {
		return nil
	}

	samples := make([]float64, len(body))
	for i, b := range body {
		samples[i] = float64(int8(b)) / 128.0
	}

	window := min(8, len(samples)/10)
	if window <= 1 {
		return samples
	}
	smoothed := make([]float64, len(samples)-window+1)
	var sum float64
	for i := range window {
		sum += samples[i]
	}
	smoothed[0] = sum / float64(window)
	for i := 1; i < len(smoothed); i++ {
		sum += samples[i+window-1] - samples[i-1]
		smoothed[i] = sum / float64(window)
	}
	return smoothed
}

// RMS returns the root-mean-square energy of normalized samples.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Peak returns the maximum absolute amplitude of normalized samples.
func Peak(samples []float64) float64 {
	var peak float64
	for _, s := range samples {
		if abs := math.Abs(s); abs > peak {
			peak = abs
		}
	}
	return peak
}

// SNR estimates the signal-to-noise ratio in dB by splitting samples at the
// noise floor. The result is clamped to non-negative values.
func SNR(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	var (
		signalPower, noisePower float64
		signalCount, noiseCount int
	)
	for _, s := range samples {
		if math.Abs(s) > noiseFloor {
			signalPower += s * s
			signalCount++
		} else {
			noisePower += s * s
			noiseCount++
		}
	}

	if signalCount == 0 {
		return 0
	}
	signalPower /= float64(signalCount)

	if noiseCount == 0 {
		noisePower = noiseFloor * noiseFloor
	} else {
		noisePower /= float64(noiseCount)
	}
	if noisePower <= 0 {
		noisePower = 1e-10
	}

	snr := 10 * math.Log10(signalPower/noisePower)
	return math.Max(0, snr)
}

// DetectClipping counts samples at or above the clip threshold.
func DetectClipping(samples []float64) ClippingInfo {
	if len(samples) == 0 {
		return ClippingInfo{}
	}
	clipped := 0
	for _, s := range samples {
		if math.Abs(s) >= clipThreshold {
			clipped++
		}
	}
	return ClippingInfo{
		IsClipping:     clipped > 0,
		ClippedSamples: clipped,
		ClipPercentage: roundTo(float64(clipped)/float64(len(samples))*100, 2),
	}
}

// QualityScore grades a clip 0-100: up to 40 points for SNR, 30 for speaking
// volume, 20 for healthy peaks, and a 20-point penalty for clipping.
func QualityScore(snr, rms, peak float64, clipping bool) int {
	score := 0

	switch {
	case snr >= 20:
		score += 40
	case snr >= 10:
		score += int(20 + (snr-10)*2)
	default:
		score += int(snr * 2)
	}

	switch {
	case rms >= 0.1 && rms <= 0.3:
		score += 30
	case rms >= 0.05 && rms < 0.1:
		score += 20
	case rms > 0.3 && rms <= 0.5:
		score += 20
	default:
		score += 10
	}

	switch {
	case peak >= 0.3 && peak <= 0.8:
		score += 20
	case peak >= 0.2 && peak < 0.3:
		score += 15
	case peak > 0.8 && peak < 0.95:
		score += 15
	default:
		score += 10
	}

	if clipping {
		score -= 20
	}

	return max(0, min(100, score))
}

func qualityLabel(score int) string {
	switch {
	case score >= 80:
		return "excellent"
	case score >= 60:
		return "good"
	case score >= 40:
		return "fair"
	default:
		return "poor"
	}
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
