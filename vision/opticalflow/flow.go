// Package opticalflow implements a patch-based optical flow tracker for a
// visual-inertial front end. Keypoints keep the reference patches from the
// frame where they were first detected and are aligned into every new frame
// with an inverse-compositional SE(2) solver on an image pyramid.
package opticalflow

import (
	"context"
	"image"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	goutils "go.viam.com/utils"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/CIFASIS/basalt-with-persistent-map/rimage"
	"github.com/CIFASIS/basalt-with-persistent-map/rimage/transform"
	"github.com/CIFASIS/basalt-with-persistent-map/utils"
	"github.com/CIFASIS/basalt-with-persistent-map/vision/keypoints"
)

const (
	frameQueueSize = 10
	imuQueueSize   = 100
	depthQueueSize = 64

	briefNumPairs  = 256
	briefPatchSize = 31
)

// PatchTracker tracks sparse keypoints across a synchronized multi-camera
// stream. One worker goroutine owns all mutable state; producers interact
// only through the Push methods, and results appear on the output channel in
// input order. Pushing a nil frame ends the stream and makes exactly one nil
// result appear downstream.
type PatchTracker[S utils.Float] struct {
	cfg     Config
	calib   *transform.Calibration
	pattern *Pattern[S]
	logger  golog.Logger
	clk     clock.Clock

	frames chan *FrameInput
	imu    chan ImuSample
	depth  chan float64
	output chan *FrameResult[S]

	useTrackingGuesses atomic.Bool
	useMatchingGuesses atomic.Bool

	// state below is owned by the worker goroutine
	tNs            int64
	frameCounter   int
	lastKeypointID KeypointID
	patches        map[KeypointID][]Patch[S]
	lastSeen       map[KeypointID]int
	transforms     *FrameResult[S]
	pyramids       []*rimage.Pyramid
	depthGuess     float64
	essentials     []*mat.Dense

	samplePairs *keypoints.SamplePairs
	briefCfg    keypoints.BRIEFConfig

	activeWorkers sync.WaitGroup
}

// NewPatchTracker validates the configuration, precomputes the essential
// matrices of every stereo pair and starts the processing worker. Results are
// published to output unless it is nil.
func NewPatchTracker[S utils.Float](
	cfg Config,
	calib *transform.Calibration,
	output chan *FrameResult[S],
	logger golog.Logger,
) (*PatchTracker[S], error) {
	if err := cfg.Validate("optical_flow"); err != nil {
		return nil, err
	}
	if err := calib.CheckValid(); err != nil {
		return nil, err
	}

	t := &PatchTracker[S]{
		cfg:     cfg,
		calib:   calib,
		pattern: DefaultPattern[S](),
		logger:  logger,
		clk:     clock.New(),

		frames: make(chan *FrameInput, frameQueueSize),
		imu:    make(chan ImuSample, imuQueueSize),
		depth:  make(chan float64, depthQueueSize),
		output: output,

		tNs:        -1,
		patches:    make(map[KeypointID][]Patch[S]),
		lastSeen:   make(map[KeypointID]int),
		depthGuess: cfg.MatchingDefaultDepth,
		essentials: make([]*mat.Dense, calib.NumCameras()),

		samplePairs: keypoints.GenerateSamplePairs(keypoints.SamplingFixed, briefNumPairs, briefPatchSize),
		briefCfg: keypoints.BRIEFConfig{
			N:              briefNumPairs,
			Sampling:       keypoints.SamplingFixed,
			UseOrientation: true,
			PatchSize:      briefPatchSize,
		},
	}
	for i := 1; i < calib.NumCameras(); i++ {
		t.essentials[i] = calib.EssentialMatrix(0, i)
	}

	t.activeWorkers.Add(1)
	goutils.PanicCapturingGo(func() {
		defer t.activeWorkers.Done()
		t.processingLoop()
	})
	return t, nil
}

// PushFrame enqueues a frame, blocking while the frame queue is full.
func (t *PatchTracker[S]) PushFrame(in *FrameInput) {
	t.frames <- in
}

// PushNullFrame signals end of stream. It must be the last frame push.
func (t *PatchTracker[S]) PushNullFrame() {
	t.frames <- nil
}

// PushIMU forwards one inertial sample to the IMU output stream, blocking
// while the queue is full.
func (t *PatchTracker[S]) PushIMU(sample ImuSample) {
	t.imu <- sample
}

// IMU is the pass-through inertial stream. It is closed when the tracker
// shuts down.
func (t *PatchTracker[S]) IMU() <-chan ImuSample {
	return t.imu
}

// PushDepth updates the scene depth prior used for cross-camera matching
// guesses. Only the latest value before a frame is processed matters, so the
// oldest pending value is discarded if the queue is full.
func (t *PatchTracker[S]) PushDepth(depth float64) {
	for {
		select {
		case t.depth <- depth:
			return
		default:
		}
		select {
		case <-t.depth:
		default:
		}
	}
}

// QueueSizes reports the current backlog of the three input queues.
func (t *PatchTracker[S]) QueueSizes() (frames, imu, depth int) {
	return len(t.frames), len(t.imu), len(t.depth)
}

// Close waits for the worker to exit. The stream must have been terminated
// with PushNullFrame first.
func (t *PatchTracker[S]) Close() {
	t.activeWorkers.Wait()
}

func (t *PatchTracker[S]) processingLoop() {
	for {
		// only the freshest depth prior matters
		draining := true
		for draining {
			select {
			case d := <-t.depth:
				t.depthGuess = d
			default:
				draining = false
			}
		}

		in := <-t.frames
		if in == nil {
			if t.output != nil {
				t.output <- nil
			}
			close(t.imu)
			t.logger.Debug("null frame received, shutting down")
			return
		}
		in.AddTime("frames_received", t.clk.Now())

		if !t.validFrame(in) {
			t.logger.Debugw("dropping frame with missing camera image", "t_ns", in.TNs)
			continue
		}

		t.processFrame(in)
	}
}

func (t *PatchTracker[S]) validFrame(in *FrameInput) bool {
	if len(in.Images) != t.calib.NumCameras() {
		return false
	}
	for _, img := range in.Images {
		if img == nil {
			return false
		}
	}
	return true
}

func (t *PatchTracker[S]) buildPyramids(in *FrameInput) ([]*rimage.Pyramid, error) {
	numCams := t.calib.NumCameras()
	pyramids := make([]*rimage.Pyramid, numCams)
	var group errgroup.Group
	for i := 0; i < numCams; i++ {
		i := i
		group.Go(func() error {
			pyr, err := rimage.NewPyramid(in.Images[i], t.cfg.Levels)
			pyramids[i] = pyr
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return pyramids, nil
}

func (t *PatchTracker[S]) processFrame(in *FrameInput) {
	newPyramids, err := t.buildPyramids(in)
	if err != nil {
		t.logger.Debugw("dropping frame", "t_ns", in.TNs, "error", err)
		return
	}

	numCams := t.calib.NumCameras()
	withTracking := t.useTrackingGuesses.Load()
	withMatching := t.useMatchingGuesses.Load()

	if t.tNs < 0 {
		t.tNs = in.TNs
		t.pyramids = newPyramids
		t.transforms = newFrameResult[S](t.tNs, numCams, withTracking, withMatching)
		t.transforms.Input = in
		t.transforms.DepthGuess = t.depthGuess
	} else {
		t.tNs = in.TNs
		oldPyramids := t.pyramids
		t.pyramids = newPyramids

		newTransforms := newFrameResult[S](t.tNs, numCams, withTracking, withMatching)
		newTransforms.DepthGuess = t.depthGuess
		for i := 0; i < numCams; i++ {
			var guesses map[KeypointID]AffineCompact2[S]
			if withTracking {
				guesses = newTransforms.TrackingGuesses[i]
			}
			newTransforms.Keypoints[i] = t.trackPoints(
				oldPyramids[i], newPyramids[i], t.transforms.Keypoints[i], i, i, guesses)
		}
		t.transforms = newTransforms
		t.transforms.Input = in
	}

	t.addPoints()
	t.filterPoints()
	t.collectPatches()

	if t.output != nil && t.frameCounter%t.cfg.SkipFrames == 0 {
		t.transforms.Input.AddTime("opticalflow_produced", t.clk.Now())
		t.output <- t.transforms
	}
	t.frameCounter++

	t.logger.Debugw("processed frame",
		"t_ns", t.tNs,
		"tracked_cam0", len(t.transforms.Keypoints[0]),
		"stored_patches", len(t.patches),
		"frames_queued", len(t.frames),
	)
}

// trackPoints aligns every keypoint of the source map into the target
// pyramid and returns the survivors. With c1 != c2 the same kernel performs
// cross-camera matching, seeding the solver with an analytic reprojection
// offset under the scene depth prior. Iterations are data parallel; each id
// is written at most once.
func (t *PatchTracker[S]) trackPoints(
	pyr1, pyr2 *rimage.Pyramid,
	keypointMap1 map[KeypointID]Keypoint[S],
	cam1, cam2 int,
	guessesOut map[KeypointID]AffineCompact2[S],
) map[KeypointID]Keypoint[S] {
	numPoints := len(keypointMap1)
	ids := make([]KeypointID, 0, numPoints)
	for id := range keypointMap1 {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	initVec := make([]Keypoint[S], numPoints)
	for i, id := range ids {
		initVec[i] = keypointMap1[id]
	}

	matching := cam1 != cam2
	useDepth := matching && t.cfg.MatchingGuessType != GuessSamePixel
	depth := t.matchingDepth()

	finest := pyr2.Level(0)
	w := S(finest.Width())
	h := S(finest.Height())

	result := make(map[KeypointID]Keypoint[S], numPoints)
	var mu sync.Mutex

	//nolint:errcheck // the merge stages cannot fail
	utils.GroupWorkParallel(
		context.Background(),
		numPoints,
		func(groupSize int) {},
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			local := make(map[KeypointID]Keypoint[S], groupSize)
			var localGuesses map[KeypointID]AffineCompact2[S]
			if guessesOut != nil {
				localGuesses = make(map[KeypointID]AffineCompact2[S], groupSize)
			}
			memberWork := func(memberNum, workNum int) {
				id := ids[workNum]
				source := initVec[workNum]

				trackTransform := source.Pose

				var off r2.Point
				if useDepth {
					off = t.calib.ViewOffset(r2.Point{
						X: float64(source.Pose.Translation[0]),
						Y: float64(source.Pose.Translation[1]),
					}, depth, cam1, cam2)
				}

				trackTransform.Translation[0] -= S(off.X)
				trackTransform.Translation[1] -= S(off.Y)

				if localGuesses != nil {
					localGuesses[id] = trackTransform
				}

				tx, ty := trackTransform.Translation[0], trackTransform.Translation[1]
				if tx < 0 || ty < 0 || tx >= w || ty >= h {
					return
				}

				patchVec, found := t.patches[id]
				if !found {
					return
				}

				if !t.trackPoint(pyr2, patchVec, &trackTransform) {
					return
				}

				// back-track from where the forward pass landed, with the
				// matching offset re-applied so the check is symmetric
				recovered := trackTransform
				recovered.Translation[0] += S(off.X)
				recovered.Translation[1] += S(off.Y)

				if !t.trackPoint(pyr1, patchVec, &recovered) {
					return
				}

				dx := source.Pose.Translation[0] - recovered.Translation[0]
				dy := source.Pose.Translation[1] - recovered.Translation[1]
				dist2 := dx*dx + dy*dy

				if float64(dist2) < t.cfg.MaxRecoveredDist2 {
					local[id] = Keypoint[S]{
						Pose:                  trackTransform,
						Descriptor:            source.Descriptor,
						DetectedByOpticalFlow: true,
					}
				}
			}
			groupWorkDone := func() error {
				mu.Lock()
				for id, kp := range local {
					result[id] = kp
				}
				for id, g := range localGuesses {
					guessesOut[id] = g
				}
				mu.Unlock()
				return nil
			}
			return memberWork, groupWorkDone
		},
	)

	return result
}

func (t *PatchTracker[S]) matchingDepth() float64 {
	if t.cfg.MatchingGuessType == GuessReprojAvgDepth {
		return t.depthGuess
	}
	return t.cfg.MatchingDefaultDepth
}

// addPoints detects new corners on camera 0, builds their reference patch
// pyramids and, on a multi-camera rig, matches them into every secondary
// camera with the same tracking kernel.
func (t *PatchTracker[S]) addPoints() {
	lvl0 := t.pyramids[0].Level(0)

	existing := make(keypoints.KeyPoints, 0, len(t.transforms.Keypoints[0]))
	for _, kp := range t.transforms.Keypoints[0] {
		existing = append(existing, image.Point{
			X: int(kp.Pose.Translation[0]),
			Y: int(kp.Pose.Translation[1]),
		})
	}

	var masks []image.Rectangle
	if len(t.transforms.Input.Masks) > 0 {
		masks = t.transforms.Input.Masks[0]
	}

	corners := keypoints.DetectGridKeypoints(lvl0,
		t.cfg.DetectionGridSize, t.cfg.DetectionNumPointsCell,
		t.cfg.DetectionMinThreshold, t.cfg.DetectionMaxThreshold,
		masks, existing)

	fastKps := &keypoints.FASTKeypoints{
		Points:       corners,
		Orientations: keypoints.ComputeKeypointsOrientations(lvl0, corners),
	}
	descs, err := keypoints.ComputeBRIEFDescriptors(lvl0, t.samplePairs, fastKps, &t.briefCfg)
	if err != nil {
		t.logger.Errorw("descriptor computation failed", "error", err)
		return
	}

	newKps0 := make(map[KeypointID]Keypoint[S], len(corners))
	for i, corner := range corners {
		patchVec := make([]Patch[S], 0, t.cfg.Levels+1)
		for l := 0; l <= t.cfg.Levels; l++ {
			scale := S(int(1) << l)
			patchVec = append(patchVec, NewPatch(
				t.pyramids[0].Level(l), t.pattern,
				S(corner.X)/scale, S(corner.Y)/scale))
		}
		t.patches[t.lastKeypointID] = patchVec

		pose := IdentityAffine2[S]()
		pose.Translation = [2]S{S(corner.X), S(corner.Y)}
		kp := Keypoint[S]{Pose: pose, Descriptor: descs[i]}

		t.transforms.Keypoints[0][t.lastKeypointID] = kp
		newKps0[t.lastKeypointID] = kp
		t.lastKeypointID++
	}

	for i := 1; i < t.calib.NumCameras(); i++ {
		var guesses map[KeypointID]AffineCompact2[S]
		if t.transforms.MatchingGuesses != nil {
			guesses = t.transforms.MatchingGuesses[i]
		}
		matched := t.trackPoints(t.pyramids[0], t.pyramids[i], newKps0, 0, i, guesses)
		for id, kp := range matched {
			if _, taken := t.transforms.Keypoints[i][id]; !taken {
				t.transforms.Keypoints[i][id] = kp
			}
		}
	}
}

// filterPoints rejects stereo observations with a high epipolar residual.
// Only the secondary camera loses the keypoint; camera 0 keeps it for future
// matching attempts.
func (t *PatchTracker[S]) filterPoints() {
	for cam := 1; cam < t.calib.NumCameras(); cam++ {
		e := t.essentials[cam]
		toRemove := make([]KeypointID, 0)

		for id, kp1 := range t.transforms.Keypoints[cam] {
			kp0, inCam0 := t.transforms.Keypoints[0][id]
			if !inCam0 {
				toRemove = append(toRemove, id)
				continue
			}
			ray0, ok0 := t.calib.Intrinsics[0].UnprojectRay(r2.Point{
				X: float64(kp0.Pose.Translation[0]),
				Y: float64(kp0.Pose.Translation[1]),
			})
			ray1, ok1 := t.calib.Intrinsics[cam].UnprojectRay(r2.Point{
				X: float64(kp1.Pose.Translation[0]),
				Y: float64(kp1.Pose.Translation[1]),
			})
			if !ok0 || !ok1 {
				toRemove = append(toRemove, id)
				continue
			}
			if transform.EpipolarError(e, ray0, ray1) > t.cfg.EpipolarError {
				toRemove = append(toRemove, id)
			}
		}

		for _, id := range toRemove {
			delete(t.transforms.Keypoints[cam], id)
		}
	}
}

// collectPatches erases reference patches of keypoints that have been absent
// from every camera for longer than the configured horizon.
func (t *PatchTracker[S]) collectPatches() {
	if t.cfg.PatchGCHorizon <= 0 {
		return
	}
	collectExpiredPatches(t.patches, t.lastSeen, t.transforms.Keypoints, t.frameCounter, t.cfg.PatchGCHorizon)
}

// collectExpiredPatches marks every live keypoint as seen on the given frame
// and erases stored patches of ids unseen for more than horizon frames.
func collectExpiredPatches[S utils.Float](
	patches map[KeypointID][]Patch[S],
	lastSeen map[KeypointID]int,
	keypointMaps []map[KeypointID]Keypoint[S],
	frame, horizon int,
) {
	for _, camMap := range keypointMaps {
		for id := range camMap {
			lastSeen[id] = frame
		}
	}
	for id, last := range lastSeen {
		if frame-last > horizon {
			delete(patches, id)
			delete(lastSeen, id)
		}
	}
}
