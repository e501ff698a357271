package mapping

import (
	"github.com/minagishl/vrchat-webcam-tracker/internal/config"
	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

// Mapper runs the expression and pose mappers over the same landmark set.
type Mapper struct {
	Expression *ExpressionMapper
	Pose       *PoseMapper
}

func New(t *config.Tuning) *Mapper {
	opts := OptionsFromTuning(t)
	return &Mapper{
		Expression: NewExpressionMapper(t.Face, opts),
		Pose:       NewPoseMapper(t.Pose, opts),
	}
}

func (m *Mapper) Map(set *types.LandmarkSet) types.ExpressionFrame {
	frame := m.Expression.Map(set)
	frame.Merge(m.Pose.Map(set))
	return frame
}

func (m *Mapper) Reset() {
	m.Expression.Reset()
	m.Pose.Reset()
}

// Rough room-space placement of normalized image coordinates, in meters.
const (
	trackerScale  = 1.5
	trackerHeight = 1.2
)

// TrackerLandmarks are sent as OSC trackers 1..n in this order.
var TrackerLandmarks = []types.LandmarkID{
	types.Nose,
	types.LeftWrist,
	types.RightWrist,
	types.LeftElbow,
	types.RightElbow,
	types.LeftShoulder,
	types.RightShoulder,
}

// TrackerPositions places the visible TrackerLandmarks in room space,
// keyed by tracker index starting at 1. The image is mirrored so the
// subject's left hand moves the avatar's left tracker.
func TrackerPositions(set *types.LandmarkSet, minVisibility float64) map[int]types.Vec3 {
	out := make(map[int]types.Vec3)
	if set == nil {
		return out
	}
	for i, id := range TrackerLandmarks {
		kp, ok := set.Point(id, minVisibility)
		if !ok {
			continue
		}
		out[i+1] = types.Vec3{
			X: (0.5 - kp.X) * trackerScale,
			Y: (0.5-kp.Y)*trackerScale + trackerHeight,
			Z: -kp.Z * trackerScale,
		}
	}
	return out
}
