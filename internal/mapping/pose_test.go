package mapping

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minagishl/vrchat-webcam-tracker/internal/config"
	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

func newPose(cfg config.PoseTuning) *PoseMapper {
	return NewPoseMapper(cfg, testOptions())
}

func emptySet() *types.LandmarkSet {
	return types.NewLandmarkSet(1, time.Unix(0, 0))
}

func TestPoseArmRaise(t *testing.T) {
	tests := []struct {
		name  string
		elbow types.Keypoint
		want  float64
	}{
		{name: "arm down", elbow: kp(0.62, 0.7), want: 0},
		{name: "arm horizontal", elbow: kp(0.8, 0.5), want: 0.5},
		{name: "arm overhead", elbow: kp(0.6, 0.3), want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := leftArm(emptySet(), tt.elbow, kp(0.6, 0.9))
			frame := newPose(config.DefaultTuning().Pose).Map(set)
			assert.InDelta(t, tt.want, frame["LeftArmRaise"], 1e-9)
			assert.NotContains(t, frame, "RightArmRaise")
		})
	}
}

func TestPoseArmRaiseWithoutHipUsesImageDown(t *testing.T) {
	set := leftArm(emptySet(), kp(0.8, 0.5), kp(1.0, 0.5))
	delete(set.Points, types.LeftHip)

	frame := newPose(config.DefaultTuning().Pose).Map(set)
	assert.InDelta(t, 0.5, frame["LeftArmRaise"], 1e-9)
}

func TestPoseElbowBend(t *testing.T) {
	cfg := config.DefaultTuning().Pose

	straight := newPose(cfg).Map(leftArm(emptySet(), kp(0.8, 0.5), kp(1.0, 0.5)))
	assert.InDelta(t, 0.0, straight["LeftElbowBend"], 1e-9)

	// 90 degrees: (90-40)/130 of the way to straight.
	bent := newPose(cfg).Map(leftArm(emptySet(), kp(0.8, 0.5), kp(0.8, 0.3)))
	assert.InDelta(t, 1-50.0/130.0, bent["LeftElbowBend"], 1e-9)

	noWrist := leftArm(emptySet(), kp(0.8, 0.5), kp(0.8, 0.3))
	delete(noWrist.Points, types.LeftWrist)
	frame := newPose(cfg).Map(noWrist)
	assert.NotContains(t, frame, "LeftElbowBend")
	assert.Contains(t, frame, "LeftArmRaise")
}

func TestPoseArmSensitivity(t *testing.T) {
	cfg := config.DefaultTuning().Pose
	cfg.ArmSensitivity = 2

	frame := newPose(cfg).Map(leftArm(emptySet(), kp(0.8, 0.5), kp(1.0, 0.5)))
	assert.InDelta(t, 1.0, frame["LeftArmRaise"], 1e-9)
}

func TestPoseHandGestures(t *testing.T) {
	tests := []struct {
		name     string
		extended []string
		open     float64
		fist     float64
		point    float64
	}{
		{name: "open hand", extended: []string{"thumb", "index", "middle", "ring", "pinky"}, open: 1, fist: 0, point: 0},
		{name: "fist", extended: nil, open: 0, fist: 1, point: 0},
		{name: "pointing", extended: []string{"index"}, open: 0.2, fist: 0.75, point: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := newPose(config.DefaultTuning().Pose).Map(hand(emptySet(), types.Right, tt.extended...))

			assert.InDelta(t, tt.open, frame["RightHandOpen"], 1e-9)
			assert.InDelta(t, tt.fist, frame["RightHandFist"], 1e-9)
			assert.InDelta(t, tt.point, frame["RightHandPoint"], 1e-9)
			assert.NotContains(t, frame, "LeftHandOpen")
		})
	}
}

func TestPoseHandMissingJoint(t *testing.T) {
	set := hand(emptySet(), types.Left, "index")
	delete(set.Points, types.HandLandmark(types.Left, "thumb_tip"))

	frame := newPose(config.DefaultTuning().Pose).Map(set)

	assert.NotContains(t, frame, "LeftHandOpen")
	assert.Contains(t, frame, "LeftHandFist")
	assert.Contains(t, frame, "LeftHandPoint")

	delete(set.Points, types.HandLandmark(types.Left, "wrist"))
	frame = newPose(config.DefaultTuning().Pose).Map(set)
	assert.Empty(t, frame)
}

func TestPoseValuesInRangeAndNilSet(t *testing.T) {
	cfg := config.DefaultTuning().Pose
	cfg.HandSensitivity = 3
	m := newPose(cfg)

	assert.Empty(t, m.Map(nil))

	set := hand(leftArm(emptySet(), kp(0.7, 0.4), kp(0.65, 0.2)), types.Left, "thumb", "index")
	frame := m.Map(set)
	require.NotEmpty(t, frame)
	for name, v := range frame {
		assert.GreaterOrEqual(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 1.0, name)
	}
}

func TestMapperMergesExpressionAndPose(t *testing.T) {
	set := hand(leftArm(neutralFace(), kp(0.8, 0.5), kp(1.0, 0.5)), types.Left)

	frame := New(testTuning()).Map(set)

	for _, name := range ExpressionParams {
		assert.Contains(t, frame, name)
	}
	assert.Contains(t, frame, "LeftArmRaise")
	assert.Contains(t, frame, "LeftHandFist")
	assert.NotContains(t, frame, "RightArmRaise")
	for name := range frame {
		assert.Contains(t, append(append([]string{}, ExpressionParams...), PoseParams...), name)
	}
}

func TestTrackerPositions(t *testing.T) {
	set := emptySet()
	set.Points[types.Nose] = kp(0.5, 0.5)
	set.Points[types.LeftWrist] = types.Keypoint{X: 0.8, Y: 0.3, Visibility: 0.2}

	got := TrackerPositions(set, 0.5)

	require.Len(t, got, 1)
	assert.Equal(t, types.Vec3{X: 0, Y: trackerHeight, Z: 0}, got[1])
	assert.Empty(t, TrackerPositions(nil, 0.5))
}
