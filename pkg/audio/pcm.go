package audio

// DecodePCM16 converts little-endian int16 PCM bytes into a sample slice.
// A trailing odd byte is ignored.
func DecodePCM16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return samples
}

// EncodePCM16 converts a sample slice back into little-endian int16 PCM bytes.
func EncodePCM16(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		pcm[i*2] = byte(s)
		pcm[i*2+1] = byte(s >> 8)
	}
	return pcm
}

// NormalizePCM16 converts little-endian int16 PCM bytes into float64 samples
// normalized to [-1, 1).
func NormalizePCM16(pcm []byte) []float64 {
	raw := DecodePCM16(pcm)
	samples := make([]float64, len(raw))
	for i, s := range raw {
		samples[i] = float64(s) / 32768.0
	}
	return samples
}

// clamp16 clamps a wide integer into the int16 range.
func clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
