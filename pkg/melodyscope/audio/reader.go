package audio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// ErrDecode marks audio that cannot be read or decoded. Callers use
// errors.Is(err, ErrDecode) to distinguish bad input from processing failures.
var ErrDecode = errors.New("audio decode error")

// ReadWAV decodes a PCM WAV file into mono float64 samples normalized to
// [-1, 1] and returns the sample rate. Stereo input is downmixed by averaging
// the channels.
func ReadWAV(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: opening %s: %v", ErrDecode, path, err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: %s is not a valid WAV file", ErrDecode, path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading PCM data: %v", ErrDecode, err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, 0, fmt.Errorf("%w: %s contains no samples", ErrDecode, path)
	}

	numChannels := buf.Format.NumChannels
	if numChannels < 1 || numChannels > 2 {
		return nil, 0, fmt.Errorf("%w: unsupported channel count %d", ErrDecode, numChannels)
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth == 0 {
		bitDepth = buf.SourceBitDepth
	}
	scale := 1.0 / float64(int(1)<<(uint(bitDepth)-1))

	frames := len(buf.Data) / numChannels
	samples := make([]float64, frames)
	if numChannels == 1 {
		for i := 0; i < frames; i++ {
			samples[i] = float64(buf.Data[i]) * scale
		}
	} else {
		for i := 0; i < frames; i++ {
			l := float64(buf.Data[2*i]) * scale
			r := float64(buf.Data[2*i+1]) * scale
			samples[i] = (l + r) * 0.5
		}
	}

	return samples, buf.Format.SampleRate, nil
}

// Duration returns the playing time in seconds for a sample buffer.
func Duration(samples []float64, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(len(samples)) / float64(sampleRate)
}
