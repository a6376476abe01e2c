package opticalflow

import (
	"math"

	"github.com/CIFASIS/basalt-with-persistent-map/rimage"
)

// maxIncrement rejects runaway solver steps before they reach the
// exponential map.
const maxIncrement = 1e6

// trackPoint aligns one keypoint's reference patches against the target
// pyramid, coarse to fine. The transform is expressed on the finest level and
// updated in place; false means the track was lost.
func (t *PatchTracker[S]) trackPoint(pyr *rimage.Pyramid, patchVec []Patch[S], transform *AffineCompact2[S]) bool {
	patchValid := true
	for level := t.cfg.Levels; level >= 0 && patchValid; level-- {
		scale := S(int(1) << level)

		transform.Translation[0] /= scale
		transform.Translation[1] /= scale

		p := &patchVec[level]
		patchValid = p.Valid
		if patchValid {
			patchValid = t.trackPointAtLevel(pyr.Level(level), p, transform)
		}

		transform.Translation[0] *= scale
		transform.Translation[1] *= scale
	}
	return patchValid
}

// trackPointAtLevel runs the inverse-compositional iterations of one patch
// against one pyramid level.
func (t *PatchTracker[S]) trackPointAtLevel(img *rimage.Gray, p *Patch[S], transform *AffineCompact2[S]) bool {
	n := t.pattern.Size()
	sitesX := make([]S, n)
	sitesY := make([]S, n)
	res := make([]S, n)

	for iteration := 0; iteration < t.cfg.MaxIterations; iteration++ {
		for i := 0; i < n; i++ {
			ox, oy := t.pattern.Offset(i)
			sitesX[i], sitesY[i] = transform.Apply(ox, oy)
		}

		if !p.Residual(img, sitesX, sitesY, res) {
			return false
		}

		var inc [3]S
		for r := 0; r < 3; r++ {
			var dot S
			row := p.HInvJT[r]
			for i := 0; i < n; i++ {
				dot += row[i] * res[i]
			}
			inc[r] = -dot
		}

		for r := 0; r < 3; r++ {
			v := float64(inc[r])
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
			if math.Abs(v) >= maxIncrement {
				return false
			}
		}

		transform.RightMul(SE2Exp(inc))

		if !img.InBounds(float64(transform.Translation[0]), float64(transform.Translation[1]), filterMargin) {
			return false
		}
	}
	return true
}
