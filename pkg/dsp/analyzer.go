// Package dsp derives coarse frequency-magnitude snapshots from live audio
// signals for visualization. Both the capture and playback paths tap their
// samples into an Analyzer and consumers pull byte snapshots at their own
// cadence.
package dsp

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Analyzer parameters. The snapshot shape and decibel range follow the
// common analyser convention: fftSize/2 buckets scaled into [0, 255]
// between -100 dB and -30 dB, smoothed across reads so visualizations do
// not flicker frame to frame.
const (
	FFTSize   = 256
	Buckets   = FFTSize / 2
	Smoothing = 0.8

	minDecibels = -100.0
	maxDecibels = -30.0
)

// Analyzer computes smoothed frequency magnitudes over the most recent
// FFTSize samples written to it. Attach once, write continuously from the
// audio path, read snapshots at any time. Safe for concurrent use.
type Analyzer struct {
	mu       sync.Mutex
	fft      *fourier.FFT
	window   []float64
	ring     []float64
	pos      int
	filled   bool
	smoothed []float64
	scratch  []float64
	coeffs   []complex128
}

// NewAnalyzer returns an Analyzer with an empty (silent) signal tap.
func NewAnalyzer() *Analyzer {
	a := &Analyzer{
		fft:      fourier.NewFFT(FFTSize),
		window:   make([]float64, FFTSize),
		ring:     make([]float64, FFTSize),
		smoothed: make([]float64, Buckets),
		scratch:  make([]float64, FFTSize),
		coeffs:   make([]complex128, FFTSize/2+1),
	}
	// Blackman window, same shaping analyser nodes apply before the FFT.
	for i := range a.window {
		x := 2 * math.Pi * float64(i) / float64(FFTSize-1)
		a.window[i] = 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
	}
	return a
}

// WriteFloat32 taps float samples in [-1, 1] into the analysis ring.
func (a *Analyzer) WriteFloat32(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		a.push(float64(s))
	}
}

// WriteInt16 taps PCM16 samples into the analysis ring.
func (a *Analyzer) WriteInt16(samples []int16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		a.push(float64(s) / 32768)
	}
}

func (a *Analyzer) push(v float64) {
	a.ring[a.pos] = v
	a.pos++
	if a.pos == len(a.ring) {
		a.pos = 0
		a.filled = true
	}
}

// Snapshot returns the current Buckets frequency magnitudes in [0, 255].
// Returns all zeros while no signal has been written. The result is a
// fresh slice owned by the caller.
func (a *Analyzer) Snapshot() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]byte, Buckets)
	if !a.filled && a.pos == 0 {
		return out
	}

	// Unroll the ring into time order, oldest first, and window it.
	start := a.pos
	if !a.filled {
		start = 0
	}
	for i := 0; i < FFTSize; i++ {
		a.scratch[i] = a.ring[(start+i)%FFTSize] * a.window[i]
	}

	a.fft.Coefficients(a.coeffs, a.scratch)

	tau := Smoothing
	for i := 0; i < Buckets; i++ {
		mag := cmplx.Abs(a.coeffs[i]) / FFTSize
		a.smoothed[i] = tau*a.smoothed[i] + (1-tau)*mag

		db := -math.MaxFloat64
		if a.smoothed[i] > 0 {
			db = 20 * math.Log10(a.smoothed[i])
		}
		scaled := 255 * (db - minDecibels) / (maxDecibels - minDecibels)
		switch {
		case scaled < 0:
			out[i] = 0
		case scaled > 255:
			out[i] = 255
		default:
			out[i] = byte(scaled)
		}
	}
	return out
}

// Reset clears the signal tap and smoothing state back to silence.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.ring {
		a.ring[i] = 0
	}
	for i := range a.smoothed {
		a.smoothed[i] = 0
	}
	a.pos = 0
	a.filled = false
}
