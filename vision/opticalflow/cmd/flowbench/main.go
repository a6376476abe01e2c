// flowbench feeds a synthetic translating scene through the patch tracker
// and reports tracking statistics. It is a stand-in for running against a
// camera driver or dataset reader.
package main

import (
	"flag"
	"image"
	"os"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"

	"github.com/CIFASIS/basalt-with-persistent-map/rimage"
	"github.com/CIFASIS/basalt-with-persistent-map/rimage/transform"
	"github.com/CIFASIS/basalt-with-persistent-map/vision/keypoints"
	"github.com/CIFASIS/basalt-with-persistent-map/vision/opticalflow"
)

var logger = golog.NewDevelopmentLogger("flowbench")

func main() {
	if err := realMain(os.Args[1:]); err != nil {
		logger.Fatal(err)
	}
}

func realMain(args []string) error {
	flags := flag.NewFlagSet("flowbench", flag.ExitOnError)
	numFrames := flags.Int("frames", 50, "number of frames to feed")
	stereo := flags.Bool("stereo", false, "feed a two-camera rig")
	shift := flags.Int("shift", 2, "horizontal scene motion in pixels per frame")
	width := flags.Int("width", 640, "image width")
	height := flags.Int("height", 480, "image height")
	plot := flags.String("plot", "", "write the final frame's keypoints to this png")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg := opticalflow.DefaultConfig()
	calib := makeCalibration(*width, *height, *stereo)

	out := make(chan *opticalflow.FrameResult[float32], *numFrames+1)
	tracker, err := opticalflow.NewPatchTracker(cfg, calib, out, logger)
	if err != nil {
		return err
	}

	for f := 0; f < *numFrames; f++ {
		imgs := []*rimage.Gray{makeScene(*width, *height, f*(*shift))}
		if *stereo {
			imgs = append(imgs, makeScene(*width, *height, f*(*shift)))
		}
		tracker.PushFrame(&opticalflow.FrameInput{
			TNs:    int64(f) * 33_000_000,
			Images: imgs,
		})
	}
	tracker.PushNullFrame()

	var results int
	var tracked int
	var last *opticalflow.FrameResult[float32]
	for res := range out {
		if res == nil {
			break
		}
		results++
		tracked += len(res.Keypoints[0])
		last = res
	}
	tracker.Close()

	if *plot != "" && last != nil {
		pts := make([]image.Point, 0, len(last.Keypoints[0]))
		for _, kp := range last.Keypoints[0] {
			pts = append(pts, image.Point{
				X: int(kp.Pose.Translation[0]),
				Y: int(kp.Pose.Translation[1]),
			})
		}
		if err := keypoints.PlotKeypoints(last.Input.Images[0], pts, *plot); err != nil {
			return err
		}
	}

	if results > 0 {
		logger.Infow("bench finished",
			"frames", *numFrames,
			"results", results,
			"avg_tracked_cam0", tracked/results,
		)
	}
	return nil
}

// makeScene renders a grid of bright squares shifted horizontally, giving
// the detector stable corners and the tracker pure translation.
func makeScene(width, height, shift int) *rimage.Gray {
	img := rimage.NewGray(width, height)
	const (
		cell   = 40
		square = 14
		bright = 200 << 8
	)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sx := (x - shift) % cell
			if sx < 0 {
				sx += cell
			}
			sy := y % cell
			if sx < square && sy < square {
				img.Set(x, y, bright)
			} else {
				img.Set(x, y, 20<<8)
			}
		}
	}
	return img
}

func makeCalibration(width, height int, stereo bool) *transform.Calibration {
	intr := transform.PinholeCameraIntrinsics{
		Width: width, Height: height,
		Fx: 400, Fy: 400,
		Ppx: float64(width) / 2, Ppy: float64(height) / 2,
	}
	calib := &transform.Calibration{
		Intrinsics: []transform.PinholeCameraIntrinsics{intr},
		CamToRig:   []transform.CameraPose{transform.NewIdentityPose()},
	}
	if stereo {
		right := transform.NewIdentityPose()
		right.Translation = r3.Vector{X: 0.1}
		calib.Intrinsics = append(calib.Intrinsics, intr)
		calib.CamToRig = append(calib.CamToRig, right)
	}
	return calib
}
