package types

type UIPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// UISnapshot is what the preview page receives for every processed frame.
type UISnapshot struct {
	Type      string             `json:"type"`
	Seq       uint64             `json:"seq"`
	Detected  bool               `json:"detected"`
	Params    map[string]float64 `json:"params"`
	Landmarks map[string]UIPoint `json:"landmarks,omitempty"`
}

func NewUISnapshot(seq uint64, set *LandmarkSet, params ExpressionFrame) UISnapshot {
	snapshot := UISnapshot{
		Type:     "frame",
		Seq:      seq,
		Detected: set != nil,
		Params:   make(map[string]float64, len(params)),
	}
	for name, value := range params {
		snapshot.Params[name] = value
	}
	if set != nil {
		snapshot.Landmarks = make(map[string]UIPoint, len(set.Points))
		for id, kp := range set.Points {
			snapshot.Landmarks[string(id)] = UIPoint{X: kp.X, Y: kp.Y}
		}
	}
	return snapshot
}
