package types

import (
	"fmt"
	"math"
	"net"
	"sort"
	"strconv"
	"time"
)

// LandmarkID names an anatomical keypoint. Left and right are from the
// subject's point of view.
type LandmarkID string

type Keypoint struct {
	X          float64 `json:"x" cbor:"x"`
	Y          float64 `json:"y" cbor:"y"`
	Z          float64 `json:"z" cbor:"z"`
	Visibility float64 `json:"visibility" cbor:"visibility"`
}

// Valid reports whether the coordinates are finite and the visibility is a
// number.
func (k Keypoint) Valid() bool {
	return finite(k.X) && finite(k.Y) && finite(k.Z) && !math.IsNaN(k.Visibility)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// LandmarkSet holds the keypoints of one subject in one frame. A nil
// *LandmarkSet means nobody was detected.
type LandmarkSet struct {
	Seq      uint64                  `json:"seq" cbor:"seq"`
	Captured time.Time               `json:"captured" cbor:"captured"`
	Points   map[LandmarkID]Keypoint `json:"points" cbor:"points"`
}

func NewLandmarkSet(seq uint64, captured time.Time) *LandmarkSet {
	return &LandmarkSet{
		Seq:      seq,
		Captured: captured,
		Points:   make(map[LandmarkID]Keypoint),
	}
}

// Point returns the keypoint for id when present and at least minVisibility.
func (s *LandmarkSet) Point(id LandmarkID, minVisibility float64) (Keypoint, bool) {
	if s == nil {
		return Keypoint{}, false
	}
	kp, ok := s.Points[id]
	if !ok {
		return Keypoint{}, false
	}
	if !kp.Valid() || kp.Visibility < minVisibility {
		return Keypoint{}, false
	}
	return kp, true
}

func (s *LandmarkSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points)
}

// ExpressionFrame maps parameter names to values in [0,1]. A missing key
// means "no update this frame", which is not the same as an explicit zero.
type ExpressionFrame map[string]float64

// Merge copies other into f, overwriting duplicate names.
func (f ExpressionFrame) Merge(other ExpressionFrame) {
	for name, value := range other {
		f[name] = value
	}
}

func (f ExpressionFrame) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Destination struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (d Destination) String() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

func (d Destination) Validate() error {
	if d.Host == "" {
		return fmt.Errorf("destination host is empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		return fmt.Errorf("destination port %d out of range", d.Port)
	}
	return nil
}

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Frame is one captured camera image, JPEG encoded.
type Frame struct {
	Seq      uint64    `cbor:"seq"`
	Captured time.Time `cbor:"captured"`
	Width    int       `cbor:"width"`
	Height   int       `cbor:"height"`
	JPEG     []byte    `cbor:"data"`
}
