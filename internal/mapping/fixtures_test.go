package mapping

import (
	"time"

	"github.com/minagishl/vrchat-webcam-tracker/internal/config"
	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

func kp(x, y float64) types.Keypoint {
	return types.Keypoint{X: x, Y: y, Visibility: 1}
}

// neutralFace is a relaxed face 0.4 wide and 0.6 tall: closed mouth, open
// eyes, resting brows.
func neutralFace() *types.LandmarkSet {
	set := types.NewLandmarkSet(1, time.Unix(0, 0))
	p := set.Points
	p[types.FaceLeft] = kp(0.7, 0.5)
	p[types.FaceRight] = kp(0.3, 0.5)
	p[types.Forehead] = kp(0.5, 0.2)
	p[types.Chin] = kp(0.5, 0.8)

	p[types.MouthUpperInner] = kp(0.5, 0.65)
	p[types.MouthLowerInner] = kp(0.5, 0.65)
	p[types.MouthLeft] = kp(0.576, 0.66)
	p[types.MouthRight] = kp(0.424, 0.66)

	p[types.LeftEyeInner] = kp(0.55, 0.4)
	p[types.LeftEyeOuter] = kp(0.65, 0.4)
	p[types.LeftEyeUpper] = kp(0.6, 0.385)
	p[types.LeftEyeLower] = kp(0.6, 0.415)
	p[types.LeftBrowMid] = kp(0.6, 0.349)

	p[types.RightEyeInner] = kp(0.45, 0.4)
	p[types.RightEyeOuter] = kp(0.35, 0.4)
	p[types.RightEyeUpper] = kp(0.4, 0.385)
	p[types.RightEyeLower] = kp(0.4, 0.415)
	p[types.RightBrowMid] = kp(0.4, 0.349)
	return set
}

// withMouthGap opens the mouth so the inner lip distance is gap.
func withMouthGap(set *types.LandmarkSet, gap float64) *types.LandmarkSet {
	set.Points[types.MouthLowerInner] = kp(0.5, 0.65+gap)
	return set
}

func leftArm(set *types.LandmarkSet, elbow, wrist types.Keypoint) *types.LandmarkSet {
	set.Points[types.LeftShoulder] = kp(0.6, 0.5)
	set.Points[types.LeftHip] = kp(0.6, 0.9)
	set.Points[types.LeftElbow] = elbow
	set.Points[types.LeftWrist] = wrist
	return set
}

var fingerColumns = map[string]float64{
	"index":  0.68,
	"middle": 0.70,
	"ring":   0.72,
	"pinky":  0.74,
}

// hand places a 21-point hand with the wrist at (0.7, 0.7) and fingers
// pointing up. extended lists the fingers (including "thumb") that are
// straight; the rest are curled.
func hand(set *types.LandmarkSet, side types.Side, extended ...string) *types.LandmarkSet {
	straight := map[string]bool{}
	for _, f := range extended {
		straight[f] = true
	}
	put := func(joint string, x, y float64) {
		set.Points[types.HandLandmark(side, joint)] = kp(x, y)
	}
	put("wrist", 0.7, 0.7)
	put("thumb_cmc", 0.67, 0.69)
	put("thumb_mcp", 0.655, 0.675)
	put("thumb_ip", 0.64, 0.66)
	if straight["thumb"] {
		put("thumb_tip", 0.58, 0.64)
	} else {
		put("thumb_tip", 0.70, 0.64)
	}
	for name, x := range fingerColumns {
		put(name+"_mcp", x, 0.665)
		put(name+"_pip", x, 0.64)
		put(name+"_dip", x, 0.61)
		if straight[name] {
			put(name+"_tip", x, 0.58)
		} else {
			put(name+"_tip", x, 0.66)
		}
	}
	return set
}

func testOptions() Options {
	return Options{MinVisibility: 0.5, Aspect: 1}
}

func testTuning() *config.Tuning {
	t := config.DefaultTuning()
	t.Camera.Width = 480
	t.Camera.Height = 480
	t.Smoothing.Enabled = false
	return t
}
