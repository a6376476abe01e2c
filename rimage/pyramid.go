package rimage

import (
	"image"

	"github.com/pkg/errors"

	"github.com/CIFASIS/basalt-with-persistent-map/utils"
)

// binomialKernel is the 5-tap low-pass filter applied before every 2x
// decimation step. Weights sum to 256.
var binomialKernel = [5]uint32{16, 64, 96, 64, 16}

// Pyramid is a fixed-depth image pyramid. Level 0 is the original image and
// each following level halves the resolution of the previous one.
type Pyramid struct {
	levels []*Gray
}

// NewPyramid builds a pyramid with the given number of additional levels on
// top of the input image.
func NewPyramid(img *Gray, levels int) (*Pyramid, error) {
	if img == nil || img.Width() == 0 || img.Height() == 0 {
		return nil, errors.New("cannot build a pyramid from an empty image")
	}
	if levels < 0 {
		return nil, errors.Errorf("pyramid levels must be non-negative, got %d", levels)
	}
	p := &Pyramid{levels: make([]*Gray, 0, levels+1)}
	p.levels = append(p.levels, img)
	for l := 0; l < levels; l++ {
		prev := p.levels[l]
		if prev.Width() < 2 || prev.Height() < 2 {
			return nil, errors.Errorf("image of size %dx%d cannot support %d pyramid levels",
				img.Width(), img.Height(), levels)
		}
		p.levels = append(p.levels, downsample(prev))
	}
	return p, nil
}

// NumLevels returns the total number of levels, counting the original image.
func (p *Pyramid) NumLevels() int {
	return len(p.levels)
}

// Level returns the image at the given level, 0 being the original.
func (p *Pyramid) Level(l int) *Gray {
	return p.levels[l]
}

// downsample low-pass filters the image with the separable binomial kernel
// and keeps every second pixel.
func downsample(in *Gray) *Gray {
	outW := in.Width() / 2
	outH := in.Height() / 2
	out := NewGray(outW, outH)
	utils.ParallelForEachPixel(image.Point{outW, outH}, func(x, y int) {
		var sum uint32
		for j := 0; j < 5; j++ {
			var row uint32
			for i := 0; i < 5; i++ {
				row += binomialKernel[i] * uint32(in.AtClamped(2*x+i-2, 2*y+j-2))
			}
			sum += binomialKernel[j] * (row >> 8)
		}
		out.Set(x, y, uint16(sum>>8))
	})
	return out
}

// GaussianBlur returns a low-pass filtered copy of the image using the same
// binomial kernel as the pyramid decimation, without decimating.
func GaussianBlur(in *Gray) *Gray {
	w, h := in.Width(), in.Height()
	out := NewGray(w, h)
	utils.ParallelForEachPixel(image.Point{w, h}, func(x, y int) {
		var sum uint32
		for j := 0; j < 5; j++ {
			var row uint32
			for i := 0; i < 5; i++ {
				row += binomialKernel[i] * uint32(in.AtClamped(x+i-2, y+j-2))
			}
			sum += binomialKernel[j] * (row >> 8)
		}
		out.Set(x, y, uint16(sum>>8))
	})
	return out
}
