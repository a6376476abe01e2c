package opticalflow

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/CIFASIS/basalt-with-persistent-map/rimage"
	"github.com/CIFASIS/basalt-with-persistent-map/rimage/transform"
	"github.com/CIFASIS/basalt-with-persistent-map/utils"
)

// sinScene renders a smooth multi-frequency intensity field shifted
// horizontally, giving the solver dense gradients everywhere.
func sinScene(width, height, shiftX int) *rimage.Gray {
	img := rimage.NewGray(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			fx := float64(x - shiftX)
			fy := float64(y)
			v := 8000 +
				3000*math.Sin(0.05*fx) +
				3000*math.Cos(0.04*fy) +
				2000*math.Sin(0.03*(fx+fy))
			img.Set(x, y, uint16(v))
		}
	}
	return img
}

// squareScene renders a lattice of bright squares shifted horizontally and
// low-pass filtered twice, so the detector finds stable corners and the
// solver sees smooth edges.
func squareScene(width, height, shiftX int) *rimage.Gray {
	img := rimage.NewGray(width, height)
	const (
		cell   = 40
		square = 14
	)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sx := (x - shiftX) % cell
			if sx < 0 {
				sx += cell
			}
			if sx < square && y%cell < square {
				img.Set(x, y, 200<<8)
			} else {
				img.Set(x, y, 20<<8)
			}
		}
	}
	return rimage.GaussianBlur(rimage.GaussianBlur(img))
}

func monoCalibration(width, height int) *transform.Calibration {
	return &transform.Calibration{
		Intrinsics: []transform.PinholeCameraIntrinsics{{
			Width: width, Height: height,
			Fx: 400, Fy: 400,
			Ppx: float64(width) / 2, Ppy: float64(height) / 2,
		}},
		CamToRig: []transform.CameraPose{transform.NewIdentityPose()},
	}
}

func stereoCalibration(width, height int, baseline, ppyShift float64) *transform.Calibration {
	calib := monoCalibration(width, height)
	right := transform.NewIdentityPose()
	right.Translation = r3.Vector{X: baseline}
	intr := calib.Intrinsics[0]
	intr.Ppy += ppyShift
	calib.Intrinsics = append(calib.Intrinsics, intr)
	calib.CamToRig = append(calib.CamToRig, right)
	return calib
}

// e2eConfig keeps one extra pyramid level so detected corners near the image
// border still build valid patches at every level.
func e2eConfig() Config {
	cfg := DefaultConfig()
	cfg.Levels = 1
	cfg.MaxIterations = 8
	return cfg
}

// kernelTracker builds a tracker shell for exercising the solver directly,
// without the runtime worker.
func kernelTracker(cfg Config) *PatchTracker[float64] {
	return &PatchTracker[float64]{
		cfg:     cfg,
		pattern: DefaultPattern[float64](),
	}
}

func buildPatchVec(pyr *rimage.Pyramid, pat *Pattern[float64], levels int, cx, cy float64) []Patch[float64] {
	patchVec := make([]Patch[float64], 0, levels+1)
	for l := 0; l <= levels; l++ {
		scale := float64(int(1) << l)
		patchVec = append(patchVec, NewPatch(pyr.Level(l), pat, cx/scale, cy/scale))
	}
	return patchVec
}

// drainResults reads results until the nil sentinel and returns them.
func drainResults[S utils.Float](out chan *FrameResult[S]) []*FrameResult[S] {
	var results []*FrameResult[S]
	for res := range out {
		if res == nil {
			return results
		}
		results = append(results, res)
	}
	return results
}
