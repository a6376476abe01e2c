// Package keypoints contains the implementation of keypoints in an image. For now:
// - FAST keypoints on a detection grid
// - intensity-centroid orientations and rotated BRIEF descriptors
package keypoints

import (
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"

	"github.com/CIFASIS/basalt-with-persistent-map/rimage"
)

type (
	// KeyPoint is an image.Point that contains coordinates of a kp.
	KeyPoint image.Point // keypoint type
	// KeyPoints is a slice of image.Point that contains several kps.
	KeyPoints []image.Point // set of keypoints type
)

// FASTKeypoints stores keypoint locations and, if computed, their orientations.
type FASTKeypoints struct {
	Points       KeyPoints
	Orientations []float64
}

// NewFASTKeypointsFromImage returns a pointer to a FASTKeypoints struct
// containing keypoints locations and orientations if Oriented is set to true.
func NewFASTKeypointsFromImage(img *rimage.Gray, cfg *FASTConfig) *FASTKeypoints {
	kps := ComputeFAST(img, cfg)
	var orientations []float64
	if cfg.Oriented {
		orientations = ComputeKeypointsOrientations(img, kps)
	}
	return &FASTKeypoints{
		kps,
		orientations,
	}
}

// IsOriented returns true if the current FASTKeypoints has orientations.
func (kps *FASTKeypoints) IsOriented() bool {
	return kps.Orientations != nil
}

// RescaleKeypoints rescales given keypoints wrt scaleFactor.
func RescaleKeypoints(kps KeyPoints, scaleFactor int) KeyPoints {
	rescaled := make(KeyPoints, len(kps))
	for i, kp := range kps {
		rescaled[i] = image.Point{kp.X * scaleFactor, kp.Y * scaleFactor}
	}
	return rescaled
}

// computeMaskOrientationFAST creates the mask used to compute orientations of corners.
func computeMaskOrientationFAST() *image.Gray {
	mask := image.NewGray(image.Rect(0, 0, 31, 31))
	indices := []int{15, 15, 15, 15, 14, 14, 14, 13, 13, 12, 11, 10, 9, 8, 6, 3}
	for i := -15; i < 16; i++ {
		for j := -indices[int(math.Abs(float64(i)))]; j < indices[int(math.Abs(float64(i)))]+1; j++ {
			mask.Set(j+15, i+15, color.Gray{1})
		}
	}
	return mask
}

// ComputeKeypointsOrientations computes the intensity-centroid orientation of
// every keypoint over a 31x31 disc. Pixels outside the image are clamped to
// the border.
func ComputeKeypointsOrientations(img *rimage.Gray, kps KeyPoints) []float64 {
	nRows, nCols := 31, 31
	nRows2 := (nRows - 1) / 2
	nCols2 := (nCols - 1) / 2
	mask := computeMaskOrientationFAST()
	orientations := make([]float64, len(kps))
	for i, kp := range kps {
		var m01, m10 float64
		for y := 0; y < nRows; y++ {
			m01Temp := 0.
			for x := 0; x < nCols; x++ {
				if mask.At(x, y).(color.Gray).Y > 0 {
					pixVal := float64(img.AtClamped(kp.X+x-nCols2, kp.Y+y-nRows2))
					m10 += pixVal * float64(x-nCols2)
					m01Temp += pixVal
				}
			}
			m01 += m01Temp * float64(y-nRows2)
		}
		orientations[i] = math.Atan2(m01, m10)
	}
	return orientations
}

// PlotKeypoints plots keypoints on image.
func PlotKeypoints(img *rimage.Gray, kps []image.Point, outName string) error {
	w, h := img.Width(), img.Height()

	dc := gg.NewContext(w, h)
	dc.DrawImage(img.ToGrayImage(), 0, 0)

	// draw keypoints on image
	dc.SetRGBA(0, 0, 1, 0.5)
	for _, p := range kps {
		dc.DrawCircle(float64(p.X), float64(p.Y), float64(3.0))
		dc.Fill()
	}
	return dc.SavePNG(outName)
}
