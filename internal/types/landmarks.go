package types

// Face landmarks.
const (
	MouthUpperInner LandmarkID = "mouth_upper_inner"
	MouthLowerInner LandmarkID = "mouth_lower_inner"
	MouthLeft       LandmarkID = "mouth_left"
	MouthRight      LandmarkID = "mouth_right"
	FaceLeft        LandmarkID = "face_left"
	FaceRight       LandmarkID = "face_right"
	Forehead        LandmarkID = "forehead"
	Chin            LandmarkID = "chin"

	LeftEyeUpper LandmarkID = "left_eye_upper"
	LeftEyeLower LandmarkID = "left_eye_lower"
	LeftEyeInner LandmarkID = "left_eye_inner"
	LeftEyeOuter LandmarkID = "left_eye_outer"
	LeftBrowMid  LandmarkID = "left_brow_mid"

	RightEyeUpper LandmarkID = "right_eye_upper"
	RightEyeLower LandmarkID = "right_eye_lower"
	RightEyeInner LandmarkID = "right_eye_inner"
	RightEyeOuter LandmarkID = "right_eye_outer"
	RightBrowMid  LandmarkID = "right_brow_mid"
)

// Upper body landmarks.
const (
	Nose          LandmarkID = "nose"
	LeftShoulder  LandmarkID = "left_shoulder"
	RightShoulder LandmarkID = "right_shoulder"
	LeftElbow     LandmarkID = "left_elbow"
	RightElbow    LandmarkID = "right_elbow"
	LeftWrist     LandmarkID = "left_wrist"
	RightWrist    LandmarkID = "right_wrist"
	LeftHip       LandmarkID = "left_hip"
	RightHip      LandmarkID = "right_hip"
)

type Side string

const (
	Left  Side = "left"
	Right Side = "right"
)

// HandJoints lists the 21 hand joints in MediaPipe order.
var HandJoints = [...]string{
	"wrist",
	"thumb_cmc", "thumb_mcp", "thumb_ip", "thumb_tip",
	"index_mcp", "index_pip", "index_dip", "index_tip",
	"middle_mcp", "middle_pip", "middle_dip", "middle_tip",
	"ring_mcp", "ring_pip", "ring_dip", "ring_tip",
	"pinky_mcp", "pinky_pip", "pinky_dip", "pinky_tip",
}

// HandLandmark returns the id of a hand joint, e.g. HandLandmark(Left, "index_tip").
func HandLandmark(side Side, joint string) LandmarkID {
	return LandmarkID(string(side) + "_hand_" + joint)
}
