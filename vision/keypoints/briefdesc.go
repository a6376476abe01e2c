package keypoints

import (
	"image"
	"math"
	"math/bits"

	"github.com/pkg/errors"

	"github.com/CIFASIS/basalt-with-persistent-map/rimage"
	"github.com/CIFASIS/basalt-with-persistent-map/utils"
)

// Descriptor is a binary descriptor stored as packed 64-bit words.
type Descriptor []uint64

// SamplingType stores 0 if a sampling of image points for BRIEF is uniform, 1 if gaussian.
type SamplingType int

const (
	// SamplingUniform draws sample pairs uniformly over the patch.
	SamplingUniform SamplingType = iota // 0
	// SamplingNormal draws sample pairs from a normal distribution.
	SamplingNormal // 1
	// SamplingFixed lays sample pairs out deterministically.
	SamplingFixed // 2
)

// SamplePairs are N pairs of points used to create the BRIEF Descriptors of a patch.
type SamplePairs struct {
	P0 []image.Point
	P1 []image.Point
	N  int
}

// GenerateSamplePairs generates n samples for a patch size with the chosen Sampling Type.
// The sample layout is fixed for a given (dist, n, patchSize), so descriptors
// computed in different runs are comparable.
func GenerateSamplePairs(dist SamplingType, n, patchSize int) *SamplePairs {
	// sample positions
	var xs0, ys0, xs1, ys1 []int
	if dist == SamplingFixed {
		xs0 = sampleIntegers(patchSize, n, dist)
		ys0 = sampleIntegers(patchSize, n, dist)
		xs1 = sampleIntegers(patchSize, n, dist)
		for i := 0; i < n; i++ {
			ys1 = append(ys1, -ys0[i])
			if i%2 == 0 {
				xs0[i] = 2 * xs0[i] / 3
				xs1[i] = -2 * xs1[i] / 3
				ys1[i] = ys0[i]
			}
		}
	} else {
		xs0 = sampleIntegers(patchSize, n, dist)
		ys0 = sampleIntegers(patchSize, n, dist)
		xs1 = sampleIntegers(patchSize, n, dist)
		ys1 = sampleIntegers(patchSize, n, dist)
	}
	p0 := make([]image.Point, 0, n)
	p1 := make([]image.Point, 0, n)
	for i := 0; i < n; i++ {
		p0 = append(p0, image.Point{X: xs0[i], Y: ys0[i]})
		p1 = append(p1, image.Point{X: xs1[i], Y: ys1[i]})
	}

	return &SamplePairs{P0: p0, P1: p1, N: n}
}

func sampleIntegers(patchSize, n int, sampling SamplingType) []int {
	vMin := math.Round(-(float64(patchSize) - 2) / 2.)
	vMax := math.Round(float64(patchSize) / 2.)
	switch sampling {
	case SamplingUniform:
		return utils.SampleNIntegersUniform(n, vMin, vMax)
	case SamplingNormal:
		return utils.SampleNIntegersNormal(n, vMin, vMax)
	case SamplingFixed:
		return utils.SampleNRegularlySpaced(n, vMin, vMax)
	default:
		return utils.SampleNIntegersUniform(n, vMin, vMax)
	}
}

// BRIEFConfig stores the parameters.
type BRIEFConfig struct {
	N              int          `json:"n"` // number of samples taken
	Sampling       SamplingType `json:"sampling"`
	UseOrientation bool         `json:"use_orientation"`
	PatchSize      int          `json:"patch_size"`
}

// ComputeBRIEFDescriptors computes BRIEF descriptors on image img at keypoints kps.
func ComputeBRIEFDescriptors(img *rimage.Gray, sp *SamplePairs, kps *FASTKeypoints, cfg *BRIEFConfig) ([]Descriptor, error) {
	if sp.N%64 != 0 {
		return nil, errors.Errorf("number of sample pairs must pack into 64-bit words, got %d", sp.N)
	}
	// blur image
	blurred := rimage.GaussianBlur(img)
	// compute descriptors

	descs := make([]Descriptor, len(kps.Points))
	bnd := img.Bounds()
	halfSize := cfg.PatchSize / 2
	for k, kp := range kps.Points {
		p1 := image.Point{kp.X + halfSize, kp.Y + halfSize}
		p2 := image.Point{kp.X + halfSize, kp.Y - halfSize}
		p3 := image.Point{kp.X - halfSize, kp.Y + halfSize}
		p4 := image.Point{kp.X - halfSize, kp.Y - halfSize}
		// Divide by 64 since we store a descriptor as a uint64 array.
		descriptor := make(Descriptor, sp.N/64)
		if !p1.In(bnd) || !p2.In(bnd) || !p3.In(bnd) || !p4.In(bnd) {
			descs[k] = descriptor
			continue
		}
		cosTheta := 1.0
		sinTheta := 0.0
		// if use orientation and keypoints are oriented, compute rotation matrix
		if cfg.UseOrientation && kps.Orientations != nil {
			angle := kps.Orientations[k]
			cosTheta = math.Cos(angle)
			sinTheta = math.Sin(angle)
		}
		for i := 0; i < sp.N; i++ {
			x0, y0 := float64(sp.P0[i].X), float64(sp.P0[i].Y)
			x1, y1 := float64(sp.P1[i].X), float64(sp.P1[i].Y)
			// compute rotated sampled coordinates (Identity matrix if no orientation)
			outx0 := int(math.Round(cosTheta*x0 - sinTheta*y0))
			outy0 := int(math.Round(sinTheta*x0 + cosTheta*y0))
			outx1 := int(math.Round(cosTheta*x1 - sinTheta*y1))
			outy1 := int(math.Round(sinTheta*x1 + cosTheta*y1))
			// fill BRIEF descriptor
			p0Val := blurred.AtClamped(kp.X+outx0, kp.Y+outy0)
			p1Val := blurred.AtClamped(kp.X+outx1, kp.Y+outy1)
			if p0Val > p1Val {
				descriptorIndex := i / 64
				numPos := i % 64
				// This flips the bit at numPos to 1.
				descriptor[descriptorIndex] |= (1 << numPos)
			}
		}
		descs[k] = descriptor
	}
	return descs, nil
}

// HammingDistance computes the hamming distance between two binary descriptors.
func HammingDistance(d1, d2 Descriptor) (int, error) {
	if len(d1) != len(d2) {
		return 0, errors.Errorf("descriptor lengths differ: %d vs %d", len(d1), len(d2))
	}
	dist := 0
	for i := range d1 {
		dist += bits.OnesCount64(d1[i] ^ d2[i])
	}
	return dist, nil
}
