package simulator

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

// Options shape the synthetic subject. Period is how long one full cycle of
// the scripted motion takes; the subject leaves the view for the last
// Absent part of each period. Aspect is the frame width over height.
type Options struct {
	Seed   int64
	Noise  float64
	Aspect float64
	Period time.Duration
	Absent time.Duration
}

func DefaultOptions() Options {
	return Options{
		Seed:   1,
		Noise:  0.001,
		Aspect: 1,
		Period: 15 * time.Second,
		Absent: time.Second,
	}
}

// Subject scripts a talking, blinking, waving person in normalized image
// coordinates.
type Subject struct {
	opts Options
	mu   sync.Mutex
	rng  *rand.Rand
}

func NewSubject(opts Options) *Subject {
	if opts.Period <= 0 {
		opts.Period = DefaultOptions().Period
	}
	if opts.Aspect <= 0 {
		opts.Aspect = 1
	}
	return &Subject{opts: opts, rng: rand.New(rand.NewSource(opts.Seed))}
}

// Pose is the scripted state at one instant, every field in [0,1].
type Pose struct {
	MouthOpen  float64
	Blink      float64
	BrowRaise  float64
	Smile      float64
	LeftRaise  float64
	LeftBend   float64
	RightRaise float64
	RightBend  float64
	LeftOpen   float64
	RightOpen  float64
}

// PoseAt returns the scripted state at elapsed and whether the subject is
// in view.
func (s *Subject) PoseAt(elapsed time.Duration) (Pose, bool) {
	phase := elapsed % s.opts.Period
	if s.opts.Absent > 0 && phase >= s.opts.Period-s.opts.Absent {
		return Pose{}, false
	}
	t := elapsed.Seconds()
	wave := func(hz, offset float64) float64 {
		return 0.5 + 0.5*math.Sin(2*math.Pi*hz*t+offset)
	}
	blink := 0.0
	if math.Mod(t, 4) < 0.15 {
		blink = 1
	}
	return Pose{
		MouthOpen:  wave(1.3, 0),
		Blink:      blink,
		BrowRaise:  wave(0.2, 1),
		Smile:      wave(0.1, 2),
		LeftRaise:  wave(0.25, 0),
		LeftBend:   wave(0.4, 0.5),
		RightRaise: wave(0.25, math.Pi),
		RightBend:  wave(0.4, 2),
		LeftOpen:   wave(0.5, 0),
		RightOpen:  wave(0.5, math.Pi),
	}, true
}

// At builds the landmark set for elapsed, or nil while the subject is out
// of view.
func (s *Subject) At(seq uint64, captured time.Time, elapsed time.Duration) *types.LandmarkSet {
	pose, ok := s.PoseAt(elapsed)
	if !ok {
		return nil
	}
	set := types.NewLandmarkSet(seq, captured)
	addFace(set, pose)
	addArm(set, types.Left, pose.LeftRaise, pose.LeftBend, pose.LeftOpen)
	addArm(set, types.Right, pose.RightRaise, pose.RightBend, pose.RightOpen)
	set.Points[types.Nose] = point(faceX, faceY+0.02)
	if s.opts.Aspect != 1 {
		for id, kp := range set.Points {
			kp.X = 0.5 + (kp.X-0.5)/s.opts.Aspect
			set.Points[id] = kp
		}
	}
	s.jitter(set)
	return set
}

func (s *Subject) jitter(set *types.LandmarkSet) {
	if s.opts.Noise <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range sortedIDs(set) {
		kp := set.Points[id]
		kp.X += s.rng.NormFloat64() * s.opts.Noise
		kp.Y += s.rng.NormFloat64() * s.opts.Noise
		set.Points[id] = kp
	}
}

func point(x, y float64) types.Keypoint {
	return types.Keypoint{X: x, Y: y, Visibility: 0.99}
}

// Geometry is laid out in square units around x = 0.5 and squeezed by
// Aspect afterwards. The subject faces the camera, so their left is image
// right.
const (
	faceX      = 0.5
	faceY      = 0.3
	faceWidth  = 0.2
	faceHeight = 0.3
	eyeWidth   = 0.04
)

func addFace(set *types.LandmarkSet, p Pose) {
	pts := set.Points
	pts[types.FaceLeft] = point(faceX+faceWidth/2, faceY)
	pts[types.FaceRight] = point(faceX-faceWidth/2, faceY)
	pts[types.Forehead] = point(faceX, faceY-faceHeight/2)
	pts[types.Chin] = point(faceX, faceY+faceHeight/2)

	mouthY := faceY + 0.08
	gap := faceWidth * (0.01 + 0.26*p.MouthOpen)
	pts[types.MouthUpperInner] = point(faceX, mouthY-gap/2)
	pts[types.MouthLowerInner] = point(faceX, mouthY+gap/2)
	halfMouth := faceWidth * 0.38 * (1 + 0.32*p.Smile) / 2
	pts[types.MouthLeft] = point(faceX+halfMouth, mouthY)
	pts[types.MouthRight] = point(faceX-halfMouth, mouthY)

	lid := eyeWidth * 0.3 * (1 - p.Blink)
	brow := faceHeight * 0.06 * (1 + 0.55*p.BrowRaise)
	eyeY := faceY - 0.03
	for _, side := range []struct {
		sign                             float64
		upper, lower, inner, outer, brow types.LandmarkID
	}{
		{1, types.LeftEyeUpper, types.LeftEyeLower, types.LeftEyeInner, types.LeftEyeOuter, types.LeftBrowMid},
		{-1, types.RightEyeUpper, types.RightEyeLower, types.RightEyeInner, types.RightEyeOuter, types.RightBrowMid},
	} {
		cx := faceX + side.sign*0.045
		pts[side.inner] = point(cx-side.sign*eyeWidth/2, eyeY)
		pts[side.outer] = point(cx+side.sign*eyeWidth/2, eyeY)
		pts[side.upper] = point(cx, eyeY-lid/2)
		pts[side.lower] = point(cx, eyeY+lid/2)
		pts[side.brow] = point(cx, eyeY-lid/2-brow)
	}
}

const (
	shoulderY   = 0.6
	hipY        = 0.95
	shoulderDX  = 0.15
	upperArm    = 0.15
	forearm     = 0.13
	maxBendDeg  = 140.0
	handSpacing = 0.012
)

func addArm(set *types.LandmarkSet, side types.Side, raise, bend, open float64) {
	sign := 1.0
	shoulderID, elbowID, wristID, hipID := types.LeftShoulder, types.LeftElbow, types.LeftWrist, types.LeftHip
	if side == types.Right {
		sign = -1
		shoulderID, elbowID, wristID, hipID = types.RightShoulder, types.RightElbow, types.RightWrist, types.RightHip
	}

	sx := faceX + sign*shoulderDX
	theta := raise * math.Pi
	ex := sx + sign*upperArm*math.Sin(theta)
	ey := shoulderY + upperArm*math.Cos(theta)
	phi := theta + bend*maxBendDeg*math.Pi/180
	wx := ex + sign*forearm*math.Sin(phi)
	wy := ey + forearm*math.Cos(phi)

	set.Points[shoulderID] = point(sx, shoulderY)
	set.Points[hipID] = point(sx-sign*0.03, hipY)
	set.Points[elbowID] = point(ex, ey)
	set.Points[wristID] = point(wx, wy)
	addHand(set, side, sign, wx, wy, open)
}

// addHand lays out a hand pointing up from the wrist, fingers extended in
// proportion to open.
func addHand(set *types.LandmarkSet, side types.Side, sign, wx, wy, open float64) {
	put := func(joint string, x, y float64) {
		set.Points[types.HandLandmark(side, joint)] = point(x, y)
	}
	put("wrist", wx, wy)

	fingers := []string{"index", "middle", "ring", "pinky"}
	for i, finger := range fingers {
		x := wx + sign*(float64(i)-1)*handSpacing
		tipY := wy - 0.04 - 0.08*open
		put(finger+"_mcp", x, wy-0.035)
		put(finger+"_pip", x, wy-0.06)
		put(finger+"_dip", x, (wy-0.06+tipY)/2)
		put(finger+"_tip", x, tipY)
	}

	ipX := wx - sign*0.06
	put("thumb_cmc", wx-sign*0.02, wy-0.01)
	put("thumb_mcp", wx-sign*0.04, wy-0.03)
	put("thumb_ip", ipX, wy-0.04)
	put("thumb_tip", ipX-sign*0.06*open+sign*0.06*(1-open), wy-0.06)
}
