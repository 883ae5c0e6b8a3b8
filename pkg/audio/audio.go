// Package audio provides PCM16 frame encoding and the synthetic WAV
// container used on the playback path.
//
// All audio in voicewire is mono 16-bit little-endian PCM at 48 kHz: the
// capture path encodes float frames into raw PCM16 for the transport, and
// the playback path wraps raw PCM16 received from the agent in a minimal
// RIFF/WAVE header so it can be validated and decoded into samples.
package audio

// Default stream parameters. The agent protocol negotiates linear16 at
// 48 kHz for both directions, so these are fixed for the whole pipeline.
const (
	SampleRate    = 48000
	Channels      = 1
	BitsPerSample = 16
)

// EncodeFrame converts float samples in [-1.0, 1.0] into 16-bit signed
// little-endian PCM bytes, one sample per two bytes.
//
// Samples are clamped to [-32768, 32767] before truncation, never wrapped.
// NaN encodes as 0; this is a documented, stable choice rather than a
// platform conversion artifact.
func EncodeFrame(samples []float32) []byte {
	buf := make([]byte, len(samples)*2)
	for i, f := range samples {
		s := EncodeSample(f)
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

// EncodeSample converts a single float sample to a clamped int16.
// NaN returns 0.
func EncodeSample(f float32) int16 {
	if f != f { // NaN
		return 0
	}
	v := float64(f) * 32768
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// BytesToSamples converts raw PCM16 little-endian bytes to int16 samples.
// A trailing odd byte is ignored.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes converts int16 samples to raw PCM16 little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// Duration returns the playback duration of a sample count in seconds.
func Duration(sampleCount int) float64 {
	return float64(sampleCount) / float64(SampleRate*Channels)
}
