package mapping

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/minagishl/vrchat-webcam-tracker/internal/config"
	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

const epsilon = 1e-9

// space converts normalized keypoints into vectors with equal units on both
// image axes. MediaPipe scales x and z by the image width and y by the
// height, so x and z are stretched by the aspect ratio.
type space struct {
	set           *types.LandmarkSet
	minVisibility float64
	aspect        float64
	planar        bool
}

func (s space) vec(id types.LandmarkID) (r3.Vec, bool) {
	kp, ok := s.set.Point(id, s.minVisibility)
	if !ok {
		return r3.Vec{}, false
	}
	v := r3.Vec{X: kp.X * s.aspect, Y: kp.Y, Z: kp.Z * s.aspect}
	if s.planar {
		v.Z = 0
	}
	return v, true
}

func (s space) dist(a, b types.LandmarkID) (float64, bool) {
	va, ok := s.vec(a)
	if !ok {
		return 0, false
	}
	vb, ok := s.vec(b)
	if !ok {
		return 0, false
	}
	return r3.Norm(r3.Sub(va, vb)), true
}

// ratio returns dist(a1,a2) / dist(b1,b2).
func (s space) ratio(a1, a2, b1, b2 types.LandmarkID) (float64, bool) {
	num, ok := s.dist(a1, a2)
	if !ok {
		return 0, false
	}
	den, ok := s.dist(b1, b2)
	if !ok || den < epsilon {
		return 0, false
	}
	return num / den, true
}

// angle returns the angle in degrees between u and v.
func angle(u, v r3.Vec) (float64, bool) {
	if r3.Norm(u) < epsilon || r3.Norm(v) < epsilon {
		return 0, false
	}
	c := r3.Cos(u, v)
	c = math.Max(-1, math.Min(1, c))
	return math.Acos(c) * 180 / math.Pi, true
}

// applyRamp maps ratio onto [0,1] following r.
func applyRamp(r config.Ramp, ratio float64) (float64, bool) {
	if !finite(ratio) || r.Baseline <= 0 || r.Ceiling <= r.Threshold {
		return 0, false
	}
	n := ratio / r.Baseline
	v := clamp01((n - r.Threshold) / (r.Ceiling - r.Threshold))
	if r.Invert {
		v = 1 - v
	}
	return v, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// put stores v in frame if it is finite, clamping it into [0,1].
func put(frame types.ExpressionFrame, name string, v float64) {
	if !finite(v) {
		return
	}
	frame[name] = clamp01(v)
}
