package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/eligwz/spectrogram"

	"github.com/melodyscope/melodyscope/pkg/melodyscope/analysis"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/pitch"
)

const (
	fullWidth  = 1024
	fullHeight = 512
)

// FullRenderer paints a PNG overlay of the pitch contours and, for
// comparisons, the warp path between them. Without contour data it falls back
// to a score bar so one-track records still produce an artifact.
type FullRenderer struct{}

func (r *FullRenderer) ContentType() string { return "image/png" }

func (r *FullRenderer) Render(a *analysis.Analysis, data *Data) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("rendering nil analysis")
	}

	img := spectrogram.NewImage128(image.Rect(0, 0, fullWidth, fullHeight))
	background := spectrogram.ParseColor("101018")
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	colorA := spectrogram.ParseColor("4fc3f7")
	colorB := spectrogram.ParseColor("ffb74d")
	pathColor := spectrogram.ParseColor("37474f")

	hasContours := data != nil && data.ContourA != nil && data.ContourA.Len() > 0
	if hasContours {
		lo, hi := noteRange(data.ContourA, data.ContourB)
		if data.Alignment != nil && data.ContourB != nil {
			drawWarpPath(img, data, lo, hi, pathColor)
		}
		drawContour(img, data.ContourA, lo, hi, colorA)
		if data.ContourB != nil {
			drawContour(img, data.ContourB, lo, hi, colorB)
		}
	} else {
		drawScoreBar(img, a, colorA)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

// noteRange finds the voiced MIDI span across both contours, padded by two
// semitones so lines never sit on the image edge.
func noteRange(a, b *pitch.Contour) (lo, hi float64) {
	lo, hi = 127, 0
	scan := func(c *pitch.Contour) {
		if c == nil {
			return
		}
		for _, f := range c.Frames {
			if !f.Voiced {
				continue
			}
			n := pitch.HzToMIDI(f.Freq)
			if n < lo {
				lo = n
			}
			if n > hi {
				hi = n
			}
		}
	}
	scan(a)
	scan(b)
	if lo > hi {
		lo, hi = 36, 96
	}
	lo -= 2
	hi += 2
	return lo, hi
}

func drawContour(img draw.Image, c *pitch.Contour, lo, hi float64, col color.Color) {
	n := c.Len()
	if n == 0 {
		return
	}
	prevX, prevY := -1, -1
	for i, f := range c.Frames {
		if !f.Voiced {
			prevX, prevY = -1, -1
			continue
		}
		x := i * (fullWidth - 1) / max(n-1, 1)
		y := noteToY(pitch.HzToMIDI(f.Freq), lo, hi)
		if prevX >= 0 {
			drawLine(img, prevX, prevY, x, y, col)
		} else {
			img.Set(x, y, col)
		}
		prevX, prevY = x, y
	}
}

// drawWarpPath connects aligned frame pairs with faint lines, making
// time-stretch between the two contours visible.
func drawWarpPath(img draw.Image, data *Data, lo, hi float64, col color.Color) {
	na, nb := data.ContourA.Len(), data.ContourB.Len()
	if na == 0 || nb == 0 {
		return
	}
	step := len(data.Alignment.Path)/64 + 1
	for i := 0; i < len(data.Alignment.Path); i += step {
		p := data.Alignment.Path[i]
		if p.I >= na || p.J >= nb {
			continue
		}
		fa, fb := data.ContourA.Frames[p.I], data.ContourB.Frames[p.J]
		if !fa.Voiced || !fb.Voiced {
			continue
		}
		xa := p.I * (fullWidth - 1) / max(na-1, 1)
		xb := p.J * (fullWidth - 1) / max(nb-1, 1)
		ya := noteToY(pitch.HzToMIDI(fa.Freq), lo, hi)
		yb := noteToY(pitch.HzToMIDI(fb.Freq), lo, hi)
		drawLine(img, xa, ya, xb, yb, col)
	}
}

// drawScoreBar fills a horizontal bar proportional to the record's score.
func drawScoreBar(img draw.Image, a *analysis.Analysis, col color.Color) {
	score := 0.0
	if a.Score != nil {
		score = *a.Score
	}
	barWidth := int(score * float64(fullWidth-64))
	top := fullHeight/2 - 32
	for y := top; y < top+64; y++ {
		for x := 32; x < 32+barWidth; x++ {
			img.Set(x, y, col)
		}
	}
}

func noteToY(note, lo, hi float64) int {
	frac := (note - lo) / (hi - lo)
	y := int((1 - frac) * float64(fullHeight-1))
	if y < 0 {
		y = 0
	}
	if y >= fullHeight {
		y = fullHeight - 1
	}
	return y
}

// drawLine is Bresenham over the image grid.
func drawLine(img draw.Image, x0, y0, x1, y1 int, col color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		img.Set(x0, y0, col)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
