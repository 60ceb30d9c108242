package pitch

import (
	"context"
	"math"
	"sort"

	"github.com/mjibson/go-dsp/fft"
)

// Tunables
const (
	DefaultFrameSize = 2048
	DefaultHopSize   = 512

	// Search range roughly C2..C7, the useful melody register.
	DefaultFMin = 65.41
	DefaultFMax = 2093.0

	// Normalized autocorrelation below this is treated as unvoiced.
	voicingThreshold = 0.30

	// Frames quieter than this RMS are unvoiced without further analysis.
	silenceRMS = 1e-3

	// Median filter width for octave-error removal over voiced runs.
	smoothWindow = 5
)

// Params control frame segmentation and the pitch search range.
type Params struct {
	FrameSize int
	HopSize   int
	FMin      float64
	FMax      float64
}

func DefaultParams() Params {
	return Params{
		FrameSize: DefaultFrameSize,
		HopSize:   DefaultHopSize,
		FMin:      DefaultFMin,
		FMax:      DefaultFMax,
	}
}

// Estimator produces a pitch contour from mono samples. Implementations must
// be deterministic for identical input and parameters.
type Estimator interface {
	EstimateContour(ctx context.Context, samples []float64, sampleRate int) (*Contour, error)
}

// AutocorrEstimator estimates fundamental frequency per frame from the
// normalized autocorrelation, computed via FFT (Wiener-Khinchin). Fully
// unvoiced input yields an all-unvoiced contour, never an error.
type AutocorrEstimator struct {
	params Params
}

func NewAutocorrEstimator(params Params) *AutocorrEstimator {
	if params.FrameSize <= 0 {
		params.FrameSize = DefaultFrameSize
	}
	if params.HopSize <= 0 {
		params.HopSize = DefaultHopSize
	}
	if params.FMin <= 0 {
		params.FMin = DefaultFMin
	}
	if params.FMax <= params.FMin {
		params.FMax = DefaultFMax
	}
	return &AutocorrEstimator{params: params}
}

func (e *AutocorrEstimator) EstimateContour(ctx context.Context, samples []float64, sampleRate int) (*Contour, error) {
	p := e.params
	contour := &Contour{
		Frames:     make([]Frame, 0, len(samples)/p.HopSize+1),
		SampleRate: sampleRate,
		HopSize:    p.HopSize,
	}

	minLag := int(float64(sampleRate) / p.FMax)
	maxLag := int(float64(sampleRate)/p.FMin) + 1
	if maxLag >= p.FrameSize {
		maxLag = p.FrameSize - 1
	}
	if minLag < 2 {
		minLag = 2
	}

	frameIdx := 0
	for start := 0; start+p.FrameSize <= len(samples); start += p.HopSize {
		// Cancellation check between frame batches.
		if frameIdx%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		frameIdx++

		t := float64(start) / float64(sampleRate)
		frame := samples[start : start+p.FrameSize]

		freq, voiced := e.estimateFrame(frame, sampleRate, minLag, maxLag)
		contour.Frames = append(contour.Frames, Frame{Time: t, Freq: freq, Voiced: voiced})
	}

	smoothVoicedRuns(contour.Frames, smoothWindow)
	return contour, nil
}

// estimateFrame picks the best lag in [minLag, maxLag] from the normalized
// autocorrelation, refined by parabolic interpolation.
func (e *AutocorrEstimator) estimateFrame(frame []float64, sampleRate, minLag, maxLag int) (float64, bool) {
	var energy float64
	for _, s := range frame {
		energy += s * s
	}
	rms := math.Sqrt(energy / float64(len(frame)))
	if rms < silenceRMS {
		return 0, false
	}

	ac := autocorrelate(frame)
	r0 := ac[0]
	if r0 <= 0 {
		return 0, false
	}

	bestLag := 0
	bestCorr := 0.0
	for lag := minLag; lag <= maxLag && lag < len(ac); lag++ {
		corr := ac[lag] / r0
		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}

	if bestLag == 0 || bestCorr < voicingThreshold {
		return 0, false
	}

	lag := float64(bestLag)
	if bestLag > minLag && bestLag < maxLag && bestLag+1 < len(ac) {
		lag += parabolicOffset(ac[bestLag-1], ac[bestLag], ac[bestLag+1])
	}

	freq := float64(sampleRate) / lag
	if freq < e.params.FMin || freq > e.params.FMax {
		return 0, false
	}
	return freq, true
}

// autocorrelate computes the (biased) autocorrelation of x via FFT.
func autocorrelate(x []float64) []float64 {
	n := len(x)
	padded := make([]float64, 2*n)
	copy(padded, x)

	spectrum := fft.FFTReal(padded)
	for i, c := range spectrum {
		re := real(c)
		im := imag(c)
		spectrum[i] = complex(re*re+im*im, 0)
	}
	inv := fft.IFFT(spectrum)

	ac := make([]float64, n)
	for i := 0; i < n; i++ {
		ac[i] = real(inv[i])
	}
	return ac
}

// parabolicOffset refines a discrete peak position using its two neighbors.
// Returns a sub-sample offset in [-0.5, 0.5].
func parabolicOffset(left, center, right float64) float64 {
	denom := left - 2*center + right
	if denom == 0 {
		return 0
	}
	offset := 0.5 * (left - right) / denom
	if offset > 0.5 {
		offset = 0.5
	} else if offset < -0.5 {
		offset = -0.5
	}
	return offset
}

// smoothVoicedRuns applies a median filter of the given width across the
// voiced frames only, removing isolated octave errors without smearing
// voiced/unvoiced boundaries.
func smoothVoicedRuns(frames []Frame, window int) {
	voicedIdx := make([]int, 0, len(frames))
	for i, f := range frames {
		if f.Voiced {
			voicedIdx = append(voicedIdx, i)
		}
	}
	if len(voicedIdx) <= window {
		return
	}

	half := window / 2
	smoothed := make([]float64, len(voicedIdx))
	buf := make([]float64, 0, window)
	for i := range voicedIdx {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi >= len(voicedIdx) {
			hi = len(voicedIdx) - 1
		}
		buf = buf[:0]
		for j := lo; j <= hi; j++ {
			buf = append(buf, frames[voicedIdx[j]].Freq)
		}
		smoothed[i] = median(buf)
	}
	for i, idx := range voicedIdx {
		frames[idx].Freq = smoothed[i]
	}
}

func median(values []float64) float64 {
	tmp := make([]float64, len(values))
	copy(tmp, values)
	sort.Float64s(tmp)
	mid := len(tmp) / 2
	if len(tmp)%2 == 1 {
		return tmp[mid]
	}
	return (tmp[mid-1] + tmp[mid]) * 0.5
}
