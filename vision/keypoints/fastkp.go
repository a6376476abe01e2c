package keypoints

import (
	"encoding/json"
	"image"
	"math"
	"os"
	"path/filepath"
	"sort"

	uts "go.viam.com/utils"

	"github.com/CIFASIS/basalt-with-persistent-map/rimage"
	"github.com/CIFASIS/basalt-with-persistent-map/utils"
)

// FASTConfig holds the parameters necessary to compute the FAST keypoints.
type FASTConfig struct {
	NMatchesCircle int     `json:"n_matches_circle"`
	NMSWinSize     int     `json:"nms_win_size"`
	Threshold      float64 `json:"threshold"`
	Oriented       bool    `json:"orientation"`
}

// LoadFASTConfiguration loads a FASTConfig from a json file.
func LoadFASTConfiguration(file string) *FASTConfig {
	var config FASTConfig
	filePath := filepath.Clean(file)
	configFile, err := os.Open(filePath)
	defer uts.UncheckedErrorFunc(configFile.Close)
	if err != nil {
		return nil
	}
	jsonParser := json.NewDecoder(configFile)
	err = jsonParser.Decode(&config)
	if err != nil {
		return nil
	}
	return &config
}

var (
	// CrossIdx contains the neighborhood points for the cross test.
	CrossIdx = []image.Point{{0, 3}, {3, 0}, {0, -3}, {-3, 0}}
	// CircleIdx contains the 16 points of the Bresenham circle of radius 3,
	// clockwise from 12 o'clock.
	CircleIdx = []image.Point{
		{0, -3}, {1, -3}, {2, -2}, {3, -1}, {3, 0}, {3, 1}, {2, 2}, {1, 3},
		{0, 3}, {-1, 3}, {-2, 2}, {-3, 1}, {-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
	}
)

// fastMargin is the border inside which the circle neighborhood does not fit.
const fastMargin = 3

// GetPointValuesInNeighborhood returns the intensities at the neighborhood
// points around p, on the 8-bit scale.
func GetPointValuesInNeighborhood(img *rimage.Gray, p image.Point, neighborhood []image.Point) []float64 {
	vals := make([]float64, len(neighborhood))
	for i, off := range neighborhood {
		vals[i] = float64(img.AtClamped(p.X+off.X, p.Y+off.Y)) / 256.
	}
	return vals
}

// getBrighterValues returns a binary slice with ones where s[i] > t.
func getBrighterValues(s []float64, t float64) []float64 {
	out := make([]float64, len(s))
	for i := range s {
		if s[i] > t {
			out[i] = 1
		}
	}
	return out
}

// getDarkerValues returns a binary slice with ones where s[i] < t.
func getDarkerValues(s []float64, t float64) []float64 {
	out := make([]float64, len(s))
	for i := range s {
		if s[i] < t {
			out[i] = 1
		}
	}
	return out
}

// isValidSliceVals reports whether the binary slice contains a circular run
// of ones strictly longer than n.
func isValidSliceVals(s []float64, n int) bool {
	if len(s) == 0 {
		return false
	}
	run := 0
	best := 0
	// doubling the slice catches runs that wrap around
	for i := 0; i < 2*len(s); i++ {
		if s[i%len(s)] > 0 {
			run++
			if run > best {
				best = run
			}
			if best > n {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

// sumOfPositiveValuesSlice returns the sum of the positive values in s.
func sumOfPositiveValuesSlice(s []float64) float64 {
	sum := 0.
	for _, v := range s {
		if v > 0 {
			sum += v
		}
	}
	return sum
}

// sumOfNegativeValuesSlice returns the sum of the negative values in s.
func sumOfNegativeValuesSlice(s []float64) float64 {
	sum := 0.
	for _, v := range s {
		if v < 0 {
			sum += v
		}
	}
	return sum
}

// isCornerAt runs the segment test at p and returns the corner score, or ok
// false when p is not a corner at this threshold.
func isCornerAt(img *rimage.Gray, p image.Point, t float64, nMatches int) (float64, bool) {
	center := float64(img.At(p.X, p.Y)) / 256.
	circleVals := GetPointValuesInNeighborhood(img, p, CircleIdx)
	brighter := getBrighterValues(circleVals, center+t)
	darker := getDarkerValues(circleVals, center-t)
	if !isValidSliceVals(brighter, nMatches) && !isValidSliceVals(darker, nMatches) {
		return 0, false
	}
	diffs := make([]float64, len(circleVals))
	for i, v := range circleVals {
		diffs[i] = v - center
	}
	score := math.Max(sumOfPositiveValuesSlice(diffs), -sumOfNegativeValuesSlice(diffs))
	return score, true
}

// ComputeFAST computes the location of FAST keypoints in the image, with
// non-maximum suppression over the configured window.
func ComputeFAST(img *rimage.Gray, cfg *FASTConfig) KeyPoints {
	w, h := img.Width(), img.Height()
	scores := make(map[image.Point]float64)
	for y := fastMargin; y < h-fastMargin; y++ {
		for x := fastMargin; x < w-fastMargin; x++ {
			p := image.Point{x, y}
			if score, ok := isCornerAt(img, p, cfg.Threshold, cfg.NMatchesCircle); ok {
				scores[p] = score
			}
		}
	}
	half := cfg.NMSWinSize / 2
	kps := make(KeyPoints, 0, len(scores))
	for y := fastMargin; y < h-fastMargin; y++ {
		for x := fastMargin; x < w-fastMargin; x++ {
			p := image.Point{x, y}
			score, ok := scores[p]
			if !ok {
				continue
			}
			maximal := true
			for dy := -half; dy <= half && maximal; dy++ {
				for dx := -half; dx <= half; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					q := image.Point{x + dx, y + dy}
					other, exists := scores[q]
					if !exists {
						continue
					}
					if other > score || (other == score && (q.Y < p.Y || (q.Y == p.Y && q.X < p.X))) {
						maximal = false
						break
					}
				}
			}
			if maximal {
				kps = append(kps, p)
			}
		}
	}
	return kps
}

// cellCorner is a scored candidate inside one detection cell.
type cellCorner struct {
	pt    image.Point
	score float64
}

// DetectGridKeypoints detects up to numPointsCell corners in every free cell
// of a regular grid. Cells containing one of the existing keypoints or
// overlapping a mask rectangle are skipped. Within a cell the FAST threshold
// starts at maxThreshold and is halved until at least numPointsCell corners
// respond or the threshold would drop below minThreshold; the strongest
// corners win. Output is deterministic for identical inputs.
func DetectGridKeypoints(img *rimage.Gray, gridSize, numPointsCell int,
	minThreshold, maxThreshold float64, masks []image.Rectangle, existing KeyPoints,
) KeyPoints {
	w, h := img.Width(), img.Height()

	occupied := make(map[image.Point]bool)
	for _, kp := range existing {
		occupied[image.Point{kp.X / gridSize, kp.Y / gridSize}] = true
	}

	out := make(KeyPoints, 0)
	for cy := 0; cy*gridSize < h; cy++ {
		for cx := 0; cx*gridSize < w; cx++ {
			if occupied[image.Point{cx, cy}] {
				continue
			}
			cell := image.Rect(cx*gridSize, cy*gridSize, (cx+1)*gridSize, (cy+1)*gridSize)
			masked := false
			for _, m := range masks {
				if m.Overlaps(cell) {
					masked = true
					break
				}
			}
			if masked {
				continue
			}
			cell = cell.Intersect(image.Rect(fastMargin, fastMargin, w-fastMargin, h-fastMargin))
			if cell.Empty() {
				continue
			}
			out = append(out, detectInCell(img, cell, numPointsCell, minThreshold, maxThreshold)...)
		}
	}
	return out
}

func detectInCell(img *rimage.Gray, cell image.Rectangle, numPointsCell int,
	minThreshold, maxThreshold float64,
) KeyPoints {
	var corners []cellCorner
	for t := maxThreshold; t >= minThreshold; t /= 2 {
		corners = corners[:0]
		for y := cell.Min.Y; y < cell.Max.Y; y++ {
			for x := cell.Min.X; x < cell.Max.X; x++ {
				p := image.Point{x, y}
				if score, ok := isCornerAt(img, p, t, defaultNMatchesCircle); ok {
					corners = append(corners, cellCorner{p, score})
				}
			}
		}
		if len(corners) >= numPointsCell {
			break
		}
	}
	// strongest first; ties broken by scan order so detection stays deterministic
	sort.SliceStable(corners, func(i, j int) bool {
		return corners[i].score > corners[j].score
	})

	kps := make(KeyPoints, 0, numPointsCell)
	for _, c := range corners {
		if len(kps) == numPointsCell {
			break
		}
		tooClose := false
		for _, kp := range kps {
			if utils.AbsInt(kp.X-c.pt.X) <= suppressionRadius && utils.AbsInt(kp.Y-c.pt.Y) <= suppressionRadius {
				tooClose = true
				break
			}
		}
		if !tooClose {
			kps = append(kps, c.pt)
		}
	}
	return kps
}

const (
	defaultNMatchesCircle = 9
	suppressionRadius     = 3
)
