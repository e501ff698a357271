package landmarks

import (
	"math"

	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

// Face mesh indices (468/478 point model) used by the expression mapper.
var faceIndex = map[int]types.LandmarkID{
	13:  types.MouthUpperInner,
	14:  types.MouthLowerInner,
	291: types.MouthLeft,
	61:  types.MouthRight,
	454: types.FaceLeft,
	234: types.FaceRight,
	10:  types.Forehead,
	152: types.Chin,

	386: types.LeftEyeUpper,
	374: types.LeftEyeLower,
	362: types.LeftEyeInner,
	263: types.LeftEyeOuter,
	334: types.LeftBrowMid,

	159: types.RightEyeUpper,
	145: types.RightEyeLower,
	133: types.RightEyeInner,
	33:  types.RightEyeOuter,
	105: types.RightBrowMid,
}

// Pose model indices (33 point model).
var poseIndex = map[int]types.LandmarkID{
	0:  types.Nose,
	11: types.LeftShoulder,
	12: types.RightShoulder,
	13: types.LeftElbow,
	14: types.RightElbow,
	15: types.LeftWrist,
	16: types.RightWrist,
	23: types.LeftHip,
	24: types.RightHip,
}

func handIndex(side types.Side) map[int]types.LandmarkID {
	out := make(map[int]types.LandmarkID, len(types.HandJoints))
	for i, joint := range types.HandJoints {
		out[i] = types.HandLandmark(side, joint)
	}
	return out
}

var (
	leftHandIndex  = handIndex(types.Left)
	rightHandIndex = handIndex(types.Right)
)

func lastIndex(index map[int]types.LandmarkID) int {
	last := -1
	for i := range index {
		if i > last {
			last = i
		}
	}
	return last
}

// addRows copies the rows named in index into set. Rows past the end of
// rows and invalid rows (non-finite coordinates, NaN visibility) are
// left out.
func addRows(set *types.LandmarkSet, rows [][]float64, index map[int]types.LandmarkID) {
	for i, id := range index {
		if i >= len(rows) {
			continue
		}
		row := rows[i]
		kp := types.Keypoint{X: row[0], Y: row[1], Z: row[2], Visibility: 1}
		if len(row) > 3 {
			kp.Visibility = row[3]
		}
		if !kp.Valid() {
			continue
		}
		set.Points[id] = kp
	}
}

// rowsFor lays the points of set out in model order. Rows the set has no
// point for are NaN, which addRows skips.
func rowsFor(set *types.LandmarkSet, index map[int]types.LandmarkID, size int) [][]float64 {
	if size <= lastIndex(index) {
		size = lastIndex(index) + 1
	}
	rows := make([][]float64, size)
	present := false
	for i := range rows {
		rows[i] = []float64{math.NaN(), math.NaN(), math.NaN(), 0}
		id, ok := index[i]
		if !ok {
			continue
		}
		kp, ok := set.Points[id]
		if !ok {
			continue
		}
		rows[i] = []float64{kp.X, kp.Y, kp.Z, kp.Visibility}
		present = true
	}
	if !present {
		return nil
	}
	return rows
}
