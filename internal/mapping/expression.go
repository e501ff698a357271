package mapping

import (
	"github.com/minagishl/vrchat-webcam-tracker/internal/config"
	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

const (
	ParamMouthOpen         = "MouthOpen"
	ParamLeftEyeBlink      = "LeftEyeBlink"
	ParamRightEyeBlink     = "RightEyeBlink"
	ParamLeftEyebrowRaise  = "LeftEyebrowRaise"
	ParamRightEyebrowRaise = "RightEyebrowRaise"
	ParamMouthSmile        = "MouthSmile"
)

// ExpressionParams lists every parameter ExpressionMapper can emit.
var ExpressionParams = []string{
	ParamMouthOpen,
	ParamLeftEyeBlink,
	ParamRightEyeBlink,
	ParamLeftEyebrowRaise,
	ParamRightEyebrowRaise,
	ParamMouthSmile,
}

type Options struct {
	MinVisibility float64
	// Aspect is frame width / height. Zero means square pixels.
	Aspect    float64
	Smoothing bool
	Alpha     float64
}

func OptionsFromTuning(t *config.Tuning) Options {
	return Options{
		MinVisibility: t.Detection.MinVisibility,
		Aspect:        float64(t.Camera.Width) / float64(t.Camera.Height),
		Smoothing:     t.Smoothing.Enabled,
		Alpha:         t.Smoothing.Alpha,
	}
}

// ExpressionMapper turns facial landmarks into expression parameters.
// It is not safe for concurrent use when smoothing is enabled.
type ExpressionMapper struct {
	cfg      config.FaceTuning
	opts     Options
	smoother *Smoother
}

func NewExpressionMapper(cfg config.FaceTuning, opts Options) *ExpressionMapper {
	if opts.Aspect <= 0 {
		opts.Aspect = 1
	}
	m := &ExpressionMapper{cfg: cfg, opts: opts}
	if opts.Smoothing {
		m.smoother = NewSmoother(opts.Alpha)
	}
	return m
}

// Map computes one frame. Parameters whose landmarks are missing are left
// out. A nil set gives an empty frame.
func (m *ExpressionMapper) Map(set *types.LandmarkSet) types.ExpressionFrame {
	frame := make(types.ExpressionFrame)
	if set == nil {
		return frame
	}
	s := space{set: set, minVisibility: m.opts.MinVisibility, aspect: m.opts.Aspect, planar: true}

	m.ramped(frame, ParamMouthOpen, m.cfg.MouthOpen, s,
		types.MouthUpperInner, types.MouthLowerInner, types.FaceLeft, types.FaceRight)
	m.ramped(frame, ParamLeftEyeBlink, m.cfg.EyeBlink, s,
		types.LeftEyeUpper, types.LeftEyeLower, types.LeftEyeInner, types.LeftEyeOuter)
	m.ramped(frame, ParamRightEyeBlink, m.cfg.EyeBlink, s,
		types.RightEyeUpper, types.RightEyeLower, types.RightEyeInner, types.RightEyeOuter)
	m.ramped(frame, ParamLeftEyebrowRaise, m.cfg.EyebrowRaise, s,
		types.LeftBrowMid, types.LeftEyeUpper, types.Forehead, types.Chin)
	m.ramped(frame, ParamRightEyebrowRaise, m.cfg.EyebrowRaise, s,
		types.RightBrowMid, types.RightEyeUpper, types.Forehead, types.Chin)
	m.ramped(frame, ParamMouthSmile, m.cfg.MouthSmile, s,
		types.MouthLeft, types.MouthRight, types.FaceLeft, types.FaceRight)

	if m.smoother != nil {
		frame = m.smoother.Apply(frame)
	}
	return frame
}

func (m *ExpressionMapper) ramped(frame types.ExpressionFrame, name string, r config.Ramp, s space, a1, a2, b1, b2 types.LandmarkID) {
	ratio, ok := s.ratio(a1, a2, b1, b2)
	if !ok {
		return
	}
	v, ok := applyRamp(r, ratio)
	if !ok {
		return
	}
	put(frame, name, v)
}

// Reset drops smoothing history.
func (m *ExpressionMapper) Reset() {
	if m.smoother != nil {
		m.smoother.Reset()
	}
}
