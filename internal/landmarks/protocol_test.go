package landmarks

import (
	"math"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

func sampleSet() *types.LandmarkSet {
	set := types.NewLandmarkSet(9, time.Unix(100, 0))
	set.Points[types.MouthUpperInner] = types.Keypoint{X: 0.5, Y: 0.625, Visibility: 1}
	set.Points[types.Chin] = types.Keypoint{X: 0.5, Y: 0.75, Visibility: 1}
	set.Points[types.LeftShoulder] = types.Keypoint{X: 0.75, Y: 0.5, Z: -0.25, Visibility: 0.5}
	set.Points[types.HandLandmark(types.Right, "index_tip")] = types.Keypoint{X: 0.25, Y: 0.25, Visibility: 1}
	return set
}

func TestReplyRoundTrip(t *testing.T) {
	set := sampleSet()
	msg, err := EncodeReply(9, set)
	require.NoError(t, err)

	got, seq, err := decodeReply(msg, set.Captured)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint64(9), seq)
	assert.Equal(t, set.Captured, got.Captured)
	assert.Equal(t, set.Points, got.Points)
}

func TestReplyNoSubject(t *testing.T) {
	msg, err := EncodeReply(4, nil)
	require.NoError(t, err)

	got, seq, err := decodeReply(msg, time.Now())
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, uint64(4), seq)
}

func TestReplyNestedShortArrays(t *testing.T) {
	// Only the first 12 pose rows: shoulders present, elbows and wrists absent.
	pose := make([]any, 12)
	for i := range pose {
		pose[i] = []any{float64(i) / 100, 0.5, 0.0}
	}
	msg, err := cbor.Marshal(map[string]any{
		"type":    "landmarks",
		"seq":     1,
		"subject": true,
		"pose":    pose,
	})
	require.NoError(t, err)

	set, _, err := decodeReply(msg, time.Now())
	require.NoError(t, err)
	require.NotNil(t, set)

	shoulder, ok := set.Point(types.LeftShoulder, 0.5)
	require.True(t, ok)
	assert.InDelta(t, 0.11, shoulder.X, 1e-9)
	assert.Equal(t, 1.0, shoulder.Visibility)

	_, ok = set.Point(types.LeftElbow, 0)
	assert.False(t, ok)
	_, ok = set.Point(types.MouthUpperInner, 0)
	assert.False(t, ok)
}

func TestReplySubjectWithoutPointsIsMiss(t *testing.T) {
	msg, err := cbor.Marshal(map[string]any{"type": "landmarks", "seq": 3, "subject": true})
	require.NoError(t, err)

	set, seq, err := decodeReply(msg, time.Now())
	require.NoError(t, err)
	assert.Nil(t, set)
	assert.Equal(t, uint64(3), seq)
}

func TestReplyDropsNonFiniteRows(t *testing.T) {
	pose := make([]any, 16)
	for i := range pose {
		pose[i] = []any{0.5, 0.5, 0.0, 1.0}
	}
	pose[0] = []any{math.Inf(1), 0.5, 0.0, 1.0}
	pose[11] = []any{0.5, 0.5, 0.0, math.NaN()}
	msg, err := cbor.Marshal(map[string]any{"type": "landmarks", "seq": 5, "subject": true, "pose": pose})
	require.NoError(t, err)

	set, _, err := decodeReply(msg, time.Now())
	require.NoError(t, err)
	require.NotNil(t, set)
	assert.NotContains(t, set.Points, types.Nose)
	assert.NotContains(t, set.Points, types.LeftShoulder)
	assert.Contains(t, set.Points, types.RightShoulder)
}

func TestReplyPartialError(t *testing.T) {
	msg, err := cbor.Marshal(map[string]any{
		"type":    "landmarks",
		"seq":     2,
		"subject": true,
		"pose":    []any{[]any{0.5, 0.5, 0.0}},
		"face":    "garbage",
	})
	require.NoError(t, err)

	set, _, err := decodeReply(msg, time.Now())
	assert.Error(t, err)
	require.NotNil(t, set)
	_, ok := set.Point(types.Nose, 0.5)
	assert.True(t, ok)
}

func TestReplyRejectsWrongType(t *testing.T) {
	msg, err := cbor.Marshal(map[string]any{"type": "image", "seq": 1})
	require.NoError(t, err)
	_, _, err = decodeReply(msg, time.Now())
	assert.Error(t, err)

	_, _, err = decodeReply([]byte{0xff}, time.Now())
	assert.Error(t, err)
}

func TestRequestRoundTrip(t *testing.T) {
	frame := types.Frame{Seq: 12, Width: 640, Height: 480, JPEG: []byte{0xff, 0xd8, 0xff}}
	msg, err := encodeRequest(frame)
	require.NoError(t, err)

	got, err := DecodeRequest(msg)
	require.NoError(t, err)
	assert.Equal(t, frame.Seq, got.Seq)
	assert.Equal(t, frame.Width, got.Width)
	assert.Equal(t, frame.Height, got.Height)
	assert.Equal(t, frame.JPEG, got.JPEG)

	bad, err := cbor.Marshal(map[string]any{"type": "frame", "format": "png"})
	require.NoError(t, err)
	_, err = DecodeRequest(bad)
	assert.Error(t, err)
}

func TestIndexTablesCoverMappedLandmarks(t *testing.T) {
	assert.Len(t, leftHandIndex, 21)
	assert.Equal(t, types.HandLandmark(types.Left, "wrist"), leftHandIndex[0])
	assert.Equal(t, types.HandLandmark(types.Right, "pinky_tip"), rightHandIndex[20])
	assert.Less(t, lastIndex(faceIndex), faceRows)
	assert.Less(t, lastIndex(poseIndex), poseRows)
}
