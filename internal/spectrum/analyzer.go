package spectrum

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// analyzer turns a window of samples into byte-scaled magnitudes using the
// same scaling as a browser AnalyserNode: smoothed linear magnitude, then dB
// mapped from [minDecibels, maxDecibels] onto 0-255.
type analyzer struct {
	cfg    Config
	fft    *fourier.FFT
	work   []float64
	coeffs []complex128
	prev   []float64
}

func newAnalyzer(cfg Config) *analyzer {
	return &analyzer{
		cfg:  cfg,
		fft:  fourier.NewFFT(cfg.WindowSize),
		work: make([]float64, cfg.WindowSize),
		prev: make([]float64, cfg.WindowSize/2),
	}
}

func (a *analyzer) frame(samples []float64) []uint8 {
	copy(a.work, samples)
	window.Hann(a.work)
	a.coeffs = a.fft.Coefficients(a.coeffs, a.work)

	n := float64(a.cfg.WindowSize)
	span := a.cfg.MaxDecibels - a.cfg.MinDecibels
	bins := make([]uint8, len(a.prev))
	for k := range bins {
		c := a.coeffs[k]
		mag := math.Hypot(real(c), imag(c)) / n
		mag = a.cfg.Smoothing*a.prev[k] + (1-a.cfg.Smoothing)*mag
		a.prev[k] = mag

		db := math.Inf(-1)
		if mag > 0 {
			db = 20 * math.Log10(mag)
		}
		scaled := 255 * (db - a.cfg.MinDecibels) / span
		switch {
		case scaled <= 0 || math.IsNaN(scaled):
			bins[k] = 0
		case scaled >= 255:
			bins[k] = 255
		default:
			bins[k] = uint8(scaled)
		}
	}
	return bins
}
