package opticalflow

import (
	"image"
	"sync"
	"time"

	"github.com/golang/geo/r3"

	"github.com/CIFASIS/basalt-with-persistent-map/rimage"
	"github.com/CIFASIS/basalt-with-persistent-map/utils"
	"github.com/CIFASIS/basalt-with-persistent-map/vision/keypoints"
)

// KeypointID identifies a tracked point. IDs increase strictly over the
// lifetime of a tracker instance and are never reused.
type KeypointID uint64

// Keypoint is one tracked observation: its sub-pixel affine pose on the
// finest pyramid level, the binary descriptor computed at detection time, and
// whether it was produced by temporal tracking rather than first detection.
type Keypoint[S utils.Float] struct {
	Pose                  AffineCompact2[S]
	Descriptor            keypoints.Descriptor
	DetectedByOpticalFlow bool
}

// ImuSample is one inertial measurement. The tracker forwards these
// unchanged to its IMU output stream.
type ImuSample struct {
	TNs   int64
	Accel r3.Vector
	Gyro  r3.Vector
}

// Timing is a labelled pipeline timestamp.
type Timing struct {
	Label string
	T     time.Time
}

// FrameInput is one multi-camera frame pushed into the tracker. A nil image
// slot marks a camera that produced no data; such frames are dropped whole.
// The tracker never writes any field other than the timing annotations.
type FrameInput struct {
	TNs    int64
	Images []*rimage.Gray
	// Masks lists, per camera, rectangles in which no new keypoints are
	// detected.
	Masks [][]image.Rectangle
	// DepthGuess carried by the producer for diagnostics; the tracker reads
	// its own depth stream instead.
	DepthGuess float64

	mu      sync.Mutex
	timings []Timing
}

// AddTime appends a labelled timestamp to the frame's pipeline timings.
func (f *FrameInput) AddTime(label string, t time.Time) {
	f.mu.Lock()
	f.timings = append(f.timings, Timing{Label: label, T: t})
	f.mu.Unlock()
}

// Timings returns a copy of the pipeline timestamps recorded so far.
func (f *FrameInput) Timings() []Timing {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Timing, len(f.timings))
	copy(out, f.timings)
	return out
}

// FrameResult is the per-frame output of the tracker.
type FrameResult[S utils.Float] struct {
	TNs int64
	// Keypoints maps, per camera, the id of every currently tracked point to
	// its observation.
	Keypoints []map[KeypointID]Keypoint[S]
	// Input references the frame this result was computed from.
	Input *FrameInput
	// DepthGuess is the depth prior snapshot used while processing the frame.
	DepthGuess float64
	// TrackingGuesses and MatchingGuesses hold the per-keypoint initial
	// guesses used by the solver. They are populated only when the
	// corresponding feature is enabled.
	TrackingGuesses []map[KeypointID]AffineCompact2[S]
	MatchingGuesses []map[KeypointID]AffineCompact2[S]
}

func newFrameResult[S utils.Float](tNs int64, numCams int, withTracking, withMatching bool) *FrameResult[S] {
	res := &FrameResult[S]{
		TNs:       tNs,
		Keypoints: make([]map[KeypointID]Keypoint[S], numCams),
	}
	for i := range res.Keypoints {
		res.Keypoints[i] = make(map[KeypointID]Keypoint[S])
	}
	if withTracking {
		res.TrackingGuesses = make([]map[KeypointID]AffineCompact2[S], numCams)
		for i := range res.TrackingGuesses {
			res.TrackingGuesses[i] = make(map[KeypointID]AffineCompact2[S])
		}
	}
	if withMatching {
		res.MatchingGuesses = make([]map[KeypointID]AffineCompact2[S], numCams)
		for i := range res.MatchingGuesses {
			res.MatchingGuesses[i] = make(map[KeypointID]AffineCompact2[S])
		}
	}
	return res
}
