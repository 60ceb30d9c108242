package dtw

import (
	"context"
	"math"
	"sort"

	"github.com/melodyscope/melodyscope/pkg/melodyscope/pitch"
)

// Tunables
const (
	// Cost contributed when exactly one of the two aligned frames is
	// unvoiced. Nonzero so silence cannot absorb arbitrary melody for free;
	// finite so contours with rests still align.
	DefaultUnvoicedPenalty = 3.0

	// Contours longer than this are downsampled before alignment to keep
	// the O(n*m) matrix bounded for arbitrarily long uploads.
	DefaultMaxContourLen = 2000
)

// PathPoint is one step of the warping path: frame i of A aligned to frame j
// of B.
type PathPoint struct {
	I int `json:"i"`
	J int `json:"j"`
}

// Result is an immutable alignment outcome.
//
// Similarity is 1/(1+normalized cost): bounded in (0, 1], equal to 1 only for
// a zero-cost alignment, and strictly decreasing in the normalized distance.
type Result struct {
	Path           []PathPoint `json:"path"`
	TotalCost      float64     `json:"total_cost"`
	NormalizedCost float64     `json:"normalized_cost"`
	Similarity     float64     `json:"similarity"`
	LenA           int         `json:"len_a"`
	LenB           int         `json:"len_b"`
}

type Options struct {
	UnvoicedPenalty float64
	MaxContourLen   int
}

func DefaultOptions() Options {
	return Options{
		UnvoicedPenalty: DefaultUnvoicedPenalty,
		MaxContourLen:   DefaultMaxContourLen,
	}
}

// Align warps contour a onto contour b with the standard three-neighbor DTW
// recurrence and reduces the minimum-cost monotonic path to a similarity
// score. Contours shorter than two frames carry no melodic shape; they yield
// similarity 0 with an empty path rather than an error.
func Align(ctx context.Context, a, b *pitch.Contour, opts Options) (*Result, error) {
	if opts.UnvoicedPenalty <= 0 {
		opts.UnvoicedPenalty = DefaultUnvoicedPenalty
	}
	if opts.MaxContourLen <= 0 {
		opts.MaxContourLen = DefaultMaxContourLen
	}

	if a.Len() < 2 || b.Len() < 2 {
		return &Result{Similarity: 0, LenA: a.Len(), LenB: b.Len()}, nil
	}

	seqA, voicedA := centeredNotes(a, opts.MaxContourLen)
	seqB, voicedB := centeredNotes(b, opts.MaxContourLen)
	n := len(seqA)
	m := len(seqB)

	cost := func(i, j int) float64 {
		switch {
		case voicedA[i] && voicedB[j]:
			return math.Abs(seqA[i] - seqB[j])
		case voicedA[i] != voicedB[j]:
			return opts.UnvoicedPenalty
		default:
			return 0
		}
	}

	// Accumulated cost matrix.
	acc := make([][]float64, n)
	for i := range acc {
		acc[i] = make([]float64, m)
	}
	acc[0][0] = cost(0, 0)
	for i := 1; i < n; i++ {
		acc[i][0] = acc[i-1][0] + cost(i, 0)
	}
	for j := 1; j < m; j++ {
		acc[0][j] = acc[0][j-1] + cost(0, j)
	}
	for i := 1; i < n; i++ {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for j := 1; j < m; j++ {
			best := acc[i-1][j-1] // diagonal preferred on ties
			if acc[i-1][j] < best {
				best = acc[i-1][j]
			}
			if acc[i][j-1] < best {
				best = acc[i][j-1]
			}
			acc[i][j] = best + cost(i, j)
		}
	}

	path := backtrack(acc)

	total := acc[n-1][m-1]
	normalized := total / float64(len(path))
	return &Result{
		Path:           path,
		TotalCost:      total,
		NormalizedCost: normalized,
		Similarity:     1.0 / (1.0 + normalized),
		LenA:           a.Len(),
		LenB:           b.Len(),
	}, nil
}

// backtrack extracts the minimum-cost monotonic path from (0,0) to
// (n-1,m-1), preferring the diagonal step on ties for reproducible,
// temporally faithful paths.
func backtrack(acc [][]float64) []PathPoint {
	i := len(acc) - 1
	j := len(acc[0]) - 1

	rev := make([]PathPoint, 0, i+j+1)
	rev = append(rev, PathPoint{I: i, J: j})
	for i > 0 || j > 0 {
		switch {
		case i == 0:
			j--
		case j == 0:
			i--
		default:
			diag := acc[i-1][j-1]
			up := acc[i-1][j]
			left := acc[i][j-1]
			if diag <= up && diag <= left {
				i--
				j--
			} else if up < left {
				i--
			} else {
				j--
			}
		}
		rev = append(rev, PathPoint{I: i, J: j})
	}

	path := make([]PathPoint, len(rev))
	for k, p := range rev {
		path[len(rev)-1-k] = p
	}
	return path
}

// centeredNotes converts a contour to MIDI space, subtracts the median of the
// voiced notes (absolute key is irrelevant to melodic shape), and downsamples
// with a uniform stride when the contour exceeds maxLen.
func centeredNotes(c *pitch.Contour, maxLen int) ([]float64, []bool) {
	notes := c.MIDINotes()
	voiced := make([]bool, len(notes))
	voicedVals := make([]float64, 0, len(notes))
	for i, f := range c.Frames {
		voiced[i] = f.Voiced
		if f.Voiced {
			voicedVals = append(voicedVals, notes[i])
		}
	}

	if len(voicedVals) > 0 {
		med := medianOf(voicedVals)
		for i := range notes {
			if voiced[i] {
				notes[i] -= med
			} else {
				notes[i] = 0
			}
		}
	}

	if len(notes) > maxLen {
		stride := (len(notes) + maxLen - 1) / maxLen
		dsNotes := make([]float64, 0, maxLen)
		dsVoiced := make([]bool, 0, maxLen)
		for i := 0; i < len(notes); i += stride {
			dsNotes = append(dsNotes, notes[i])
			dsVoiced = append(dsVoiced, voiced[i])
		}
		return dsNotes, dsVoiced
	}
	return notes, voiced
}

func medianOf(values []float64) float64 {
	tmp := make([]float64, len(values))
	copy(tmp, values)
	sort.Float64s(tmp)
	mid := len(tmp) / 2
	if len(tmp)%2 == 1 {
		return tmp[mid]
	}
	return (tmp[mid-1] + tmp[mid]) * 0.5
}
