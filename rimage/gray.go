package rimage

import (
	"image"
	"image/color"

	"github.com/CIFASIS/basalt-with-persistent-map/utils"
)

// Gray is a 16-bit grayscale image with a flat backing array. It is the
// storage type for all tracking inputs; sub-pixel access is done through the
// generic Interp and InterpGrad functions.
type Gray struct {
	width, height int
	data          []uint16
}

// NewGray returns a zeroed Gray of the given dimensions.
func NewGray(width, height int) *Gray {
	return &Gray{
		width:  width,
		height: height,
		data:   make([]uint16, width*height),
	}
}

// NewGrayFromImage converts an 8-bit grayscale image, scaling values into the
// upper byte so that the full 16-bit range is used.
func NewGrayFromImage(img *image.Gray) *Gray {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	g := NewGray(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.data[y*w+x] = uint16(img.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y) << 8
		}
	}
	return g
}

// ToGrayImage converts to an 8-bit grayscale image, dropping the lower byte.
func (g *Gray) ToGrayImage() *image.Gray {
	out := image.NewGray(image.Rect(0, 0, g.width, g.height))
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			out.SetGray(x, y, color.Gray{Y: uint8(g.data[y*g.width+x] >> 8)})
		}
	}
	return out
}

// Width returns the image width in pixels.
func (g *Gray) Width() int {
	return g.width
}

// Height returns the image height in pixels.
func (g *Gray) Height() int {
	return g.height
}

// Bounds returns the image rectangle anchored at the origin.
func (g *Gray) Bounds() image.Rectangle {
	return image.Rect(0, 0, g.width, g.height)
}

// At returns the pixel value at (x, y). Coordinates must be in bounds.
func (g *Gray) At(x, y int) uint16 {
	return g.data[y*g.width+x]
}

// AtClamped returns the pixel value at (x, y) with coordinates clamped to the
// image rectangle.
func (g *Gray) AtClamped(x, y int) uint16 {
	x = utils.ClampInt(x, 0, g.width-1)
	y = utils.ClampInt(y, 0, g.height-1)
	return g.data[y*g.width+x]
}

// Set stores a pixel value at (x, y). Coordinates must be in bounds.
func (g *Gray) Set(x, y int, v uint16) {
	g.data[y*g.width+x] = v
}

// InBounds reports whether the sub-pixel location (x, y) keeps at least
// border pixels of interpolation room on every side.
func (g *Gray) InBounds(x, y, border float64) bool {
	return x >= border && y >= border &&
		x < float64(g.width)-border-1 && y < float64(g.height)-border-1
}

// Interp samples the image at a sub-pixel location with bilinear
// interpolation. The location must satisfy InBounds(x, y, 0).
func Interp[S utils.Float](g *Gray, x, y S) S {
	ix, iy := int(x), int(y)
	dx := x - S(ix)
	dy := y - S(iy)

	ddx := S(1) - dx
	ddy := S(1) - dy

	w := g.width
	i := iy*w + ix
	px0y0 := S(g.data[i])
	px1y0 := S(g.data[i+1])
	px0y1 := S(g.data[i+w])
	px1y1 := S(g.data[i+w+1])

	return ddx*ddy*px0y0 + dx*ddy*px1y0 + ddx*dy*px0y1 + dx*dy*px1y1
}

// InterpGrad samples the image and its central-difference gradient at a
// sub-pixel location. The location must satisfy InBounds(x, y, 2).
func InterpGrad[S utils.Float](g *Gray, x, y S) (val, gx, gy S) {
	ix, iy := int(x), int(y)
	dx := x - S(ix)
	dy := y - S(iy)

	ddx := S(1) - dx
	ddy := S(1) - dy

	w00 := ddx * ddy
	w10 := dx * ddy
	w01 := ddx * dy
	w11 := dx * dy

	w := g.width
	i := iy*w + ix
	px0y0 := S(g.data[i])
	px1y0 := S(g.data[i+1])
	px0y1 := S(g.data[i+w])
	px1y1 := S(g.data[i+w+1])

	val = w00*px0y0 + w10*px1y0 + w01*px0y1 + w11*px1y1

	pxm1y0 := S(g.data[i-1])
	px2y0 := S(g.data[i+2])
	pxm1y1 := S(g.data[i+w-1])
	px2y1 := S(g.data[i+w+2])

	gx = S(0.5) * (w00*(px1y0-pxm1y0) + w10*(px2y0-px0y0) +
		w01*(px1y1-pxm1y1) + w11*(px2y1-px0y1))

	px0ym1 := S(g.data[i-w])
	px1ym1 := S(g.data[i-w+1])
	px0y2 := S(g.data[i+2*w])
	px1y2 := S(g.data[i+2*w+1])

	gy = S(0.5) * (w00*(px0y1-px0ym1) + w10*(px1y1-px1ym1) +
		w01*(px0y2-px0y0) + w11*(px1y2-px1y0))

	return val, gx, gy
}
