package mapping

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/minagishl/vrchat-webcam-tracker/internal/config"
	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

// PoseParams lists every parameter PoseMapper can emit.
var PoseParams = []string{
	"LeftArmRaise", "RightArmRaise",
	"LeftElbowBend", "RightElbowBend",
	"LeftHandOpen", "RightHandOpen",
	"LeftHandFist", "RightHandFist",
	"LeftHandPoint", "RightHandPoint",
}

type armJoints struct {
	shoulder, elbow, wrist, hip types.LandmarkID
}

var arms = map[types.Side]armJoints{
	types.Left:  {types.LeftShoulder, types.LeftElbow, types.LeftWrist, types.LeftHip},
	types.Right: {types.RightShoulder, types.RightElbow, types.RightWrist, types.RightHip},
}

var fingers = []string{"index", "middle", "ring", "pinky"}

func paramName(side types.Side, suffix string) string {
	if side == types.Left {
		return "Left" + suffix
	}
	return "Right" + suffix
}

// PoseMapper turns upper-body and hand landmarks into arm and hand
// parameters for both sides.
type PoseMapper struct {
	cfg      config.PoseTuning
	opts     Options
	smoother *Smoother
}

func NewPoseMapper(cfg config.PoseTuning, opts Options) *PoseMapper {
	if opts.Aspect <= 0 {
		opts.Aspect = 1
	}
	if cfg.ArmSensitivity <= 0 {
		cfg.ArmSensitivity = 1
	}
	if cfg.HandSensitivity <= 0 {
		cfg.HandSensitivity = 1
	}
	m := &PoseMapper{cfg: cfg, opts: opts}
	if opts.Smoothing {
		m.smoother = NewSmoother(opts.Alpha)
	}
	return m
}

func (m *PoseMapper) Map(set *types.LandmarkSet) types.ExpressionFrame {
	frame := make(types.ExpressionFrame)
	if set == nil {
		return frame
	}
	body := space{set: set, minVisibility: m.opts.MinVisibility, aspect: m.opts.Aspect, planar: true}
	hand := space{set: set, minVisibility: m.opts.MinVisibility, aspect: m.opts.Aspect}

	for _, side := range []types.Side{types.Left, types.Right} {
		m.arm(frame, body, side)
		m.hand(frame, hand, side)
	}

	if m.smoother != nil {
		frame = m.smoother.Apply(frame)
	}
	return frame
}

func (m *PoseMapper) arm(frame types.ExpressionFrame, s space, side types.Side) {
	j := arms[side]
	shoulder, ok := s.vec(j.shoulder)
	if !ok {
		return
	}
	elbow, ok := s.vec(j.elbow)
	if !ok {
		return
	}

	// Image y grows downwards, so "down" is +Y when the hip is not visible.
	down := r3.Vec{Y: 1}
	if hip, ok := s.vec(j.hip); ok {
		down = r3.Sub(hip, shoulder)
	}
	upper := r3.Sub(elbow, shoulder)
	if deg, ok := angle(down, upper); ok {
		if v, ok := applyRamp(m.cfg.ArmRaise, deg); ok {
			put(frame, paramName(side, "ArmRaise"), v*m.cfg.ArmSensitivity)
		}
	}

	wrist, ok := s.vec(j.wrist)
	if !ok {
		return
	}
	if deg, ok := angle(r3.Sub(shoulder, elbow), r3.Sub(wrist, elbow)); ok {
		if v, ok := applyRamp(m.cfg.ElbowBend, deg); ok {
			put(frame, paramName(side, "ElbowBend"), v*m.cfg.ArmSensitivity)
		}
	}
}

// extension returns how far a finger is stretched, 0 curled to 1 straight.
func (m *PoseMapper) extension(s space, side types.Side, finger string) (float64, bool) {
	if finger == "thumb" {
		ratio, ok := s.ratio(
			types.HandLandmark(side, "thumb_tip"), types.HandLandmark(side, "pinky_mcp"),
			types.HandLandmark(side, "thumb_ip"), types.HandLandmark(side, "pinky_mcp"),
		)
		if !ok {
			return 0, false
		}
		return applyRamp(m.cfg.ThumbExtension, ratio)
	}
	wrist := types.HandLandmark(side, "wrist")
	ratio, ok := s.ratio(
		wrist, types.HandLandmark(side, finger+"_tip"),
		wrist, types.HandLandmark(side, finger+"_pip"),
	)
	if !ok {
		return 0, false
	}
	return applyRamp(m.cfg.FingerExtension, ratio)
}

func (m *PoseMapper) hand(frame types.ExpressionFrame, s space, side types.Side) {
	ext := make(map[string]float64, 5)
	for _, f := range append([]string{"thumb"}, fingers...) {
		if v, ok := m.extension(s, side, f); ok {
			ext[f] = v
		}
	}

	sens := m.cfg.HandSensitivity
	if mean, ok := meanOf(ext, "thumb", "index", "middle", "ring", "pinky"); ok {
		put(frame, paramName(side, "HandOpen"), mean*sens)
	}
	if mean, ok := meanOf(ext, fingers...); ok {
		put(frame, paramName(side, "HandFist"), (1-mean)*sens)
	}
	if others, ok := meanOf(ext, "middle", "ring", "pinky"); ok {
		if index, ok := ext["index"]; ok {
			put(frame, paramName(side, "HandPoint"), index*(1-others)*sens)
		}
	}
}

func meanOf(values map[string]float64, keys ...string) (float64, bool) {
	sum := 0.0
	for _, k := range keys {
		v, ok := values[k]
		if !ok {
			return 0, false
		}
		sum += v
	}
	return sum / float64(len(keys)), true
}

func (m *PoseMapper) Reset() {
	if m.smoother != nil {
		m.smoother.Reset()
	}
}
