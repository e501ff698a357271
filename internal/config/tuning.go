package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// Duration is a time.Duration that reads JSON strings like "500ms".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"500ms\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Ramp maps a raw geometric ratio to [0,1]. The ratio is first divided by
// Baseline; values at or below Threshold give 0, at or above Ceiling give 1,
// and values in between interpolate linearly. Invert flips the result.
type Ramp struct {
	Baseline  float64 `json:"baseline" validate:"gt=0"`
	Threshold float64 `json:"threshold"`
	Ceiling   float64 `json:"ceiling"`
	Invert    bool    `json:"invert,omitempty"`
}

type CameraTuning struct {
	Width       int      `json:"width" validate:"gte=16,lte=7680"`
	Height      int      `json:"height" validate:"gte=16,lte=4320"`
	FPS         float64  `json:"fps" validate:"gt=0,lte=240"`
	OpenTimeout Duration `json:"open_timeout"`
	OpenRetries int      `json:"open_retries" validate:"gte=0,lte=20"`
	JPEGQuality int      `json:"jpeg_quality" validate:"gte=10,lte=100"`
}

type DetectionTuning struct {
	MinDetectionConfidence float64  `json:"min_detection_confidence" validate:"gte=0,lte=1"`
	MinTrackingConfidence  float64  `json:"min_tracking_confidence" validate:"gte=0,lte=1"`
	MinVisibility          float64  `json:"min_visibility" validate:"gte=0,lte=1"`
	Timeout                Duration `json:"timeout"`
}

type SmoothingTuning struct {
	Enabled bool    `json:"enabled"`
	Alpha   float64 `json:"alpha" validate:"gt=0,lte=1"`
}

type FaceTuning struct {
	MouthOpen    Ramp `json:"mouth_open"`
	EyeBlink     Ramp `json:"eye_blink"`
	EyebrowRaise Ramp `json:"eyebrow_raise"`
	MouthSmile   Ramp `json:"mouth_smile"`
}

type PoseTuning struct {
	ArmRaise        Ramp    `json:"arm_raise"`
	ElbowBend       Ramp    `json:"elbow_bend"`
	FingerExtension Ramp    `json:"finger_extension"`
	ThumbExtension  Ramp    `json:"thumb_extension"`
	ArmSensitivity  float64 `json:"arm_sensitivity" validate:"gt=0,lte=10"`
	HandSensitivity float64 `json:"hand_sensitivity" validate:"gt=0,lte=10"`
}

type SenderTuning struct {
	AddressPrefix  string   `json:"address_prefix" validate:"required,startswith=/"`
	SendTimeout    Duration `json:"send_timeout"`
	MaxSendRate    float64  `json:"max_send_rate" validate:"gte=0"`
	OnlyChanged    bool     `json:"only_changed"`
	ChangeEpsilon  float64  `json:"change_epsilon" validate:"gte=0,lt=1"`
	ResendInterval Duration `json:"resend_interval"`
}

// Tuning holds the named tunables read once at startup.
type Tuning struct {
	Camera    CameraTuning    `json:"camera"`
	Detection DetectionTuning `json:"detection"`
	Smoothing SmoothingTuning `json:"smoothing"`
	Face      FaceTuning      `json:"face"`
	Pose      PoseTuning      `json:"pose"`
	Sender    SenderTuning    `json:"sender"`
}

func DefaultTuning() *Tuning {
	return &Tuning{
		Camera: CameraTuning{
			Width:       640,
			Height:      480,
			FPS:         30,
			OpenTimeout: Duration{5 * time.Second},
			OpenRetries: 3,
			JPEGQuality: 80,
		},
		Detection: DetectionTuning{
			MinDetectionConfidence: 0.5,
			MinTrackingConfidence:  0.5,
			MinVisibility:          0.5,
			Timeout:                Duration{500 * time.Millisecond},
		},
		Smoothing: SmoothingTuning{
			Enabled: true,
			Alpha:   0.2,
		},
		Face: FaceTuning{
			MouthOpen:    Ramp{Baseline: 1, Threshold: 0.02, Ceiling: 0.25},
			EyeBlink:     Ramp{Baseline: 0.3, Threshold: 0.4, Ceiling: 0.9, Invert: true},
			EyebrowRaise: Ramp{Baseline: 0.06, Threshold: 1.1, Ceiling: 1.5},
			MouthSmile:   Ramp{Baseline: 0.38, Threshold: 1.05, Ceiling: 1.3},
		},
		Pose: PoseTuning{
			ArmRaise:        Ramp{Baseline: 1, Threshold: 20, Ceiling: 160},
			ElbowBend:       Ramp{Baseline: 1, Threshold: 40, Ceiling: 170, Invert: true},
			FingerExtension: Ramp{Baseline: 1, Threshold: 1.1, Ceiling: 1.6},
			ThumbExtension:  Ramp{Baseline: 1, Threshold: 1.0, Ceiling: 1.25},
			ArmSensitivity:  1.0,
			HandSensitivity: 1.0,
		},
		Sender: SenderTuning{
			AddressPrefix:  "/avatar/parameters/",
			SendTimeout:    Duration{5 * time.Millisecond},
			MaxSendRate:    60,
			ChangeEpsilon:  0.001,
			ResendInterval: Duration{time.Second},
		},
	}
}

// LoadTuning reads a JSON tuning file on top of DefaultTuning, so partial
// files only override what they name. An empty path returns the defaults.
func LoadTuning(path string) (*Tuning, error) {
	cfg := DefaultTuning()
	if path == "" {
		return cfg, cfg.Validate()
	}

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("tuning file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat tuning file: %w", err)
	}
	const maxFileSize = 1 << 20
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("tuning file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse tuning JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}
	return cfg, nil
}

var validate = validator.New()

func (t *Tuning) Validate() error {
	if err := validate.Struct(t); err != nil {
		return err
	}

	var errs []error
	ramps := map[string]Ramp{
		"face.mouth_open":       t.Face.MouthOpen,
		"face.eye_blink":        t.Face.EyeBlink,
		"face.eyebrow_raise":    t.Face.EyebrowRaise,
		"face.mouth_smile":      t.Face.MouthSmile,
		"pose.arm_raise":        t.Pose.ArmRaise,
		"pose.elbow_bend":       t.Pose.ElbowBend,
		"pose.finger_extension": t.Pose.FingerExtension,
		"pose.thumb_extension":  t.Pose.ThumbExtension,
	}
	for name, r := range ramps {
		if r.Threshold >= r.Ceiling {
			errs = append(errs, fmt.Errorf("%s: threshold %.4g must be below ceiling %.4g", name, r.Threshold, r.Ceiling))
		}
	}
	if t.Camera.OpenTimeout.Duration <= 0 {
		errs = append(errs, errors.New("camera.open_timeout must be positive"))
	}
	if t.Detection.Timeout.Duration <= 0 {
		errs = append(errs, errors.New("detection.timeout must be positive"))
	}
	if t.Sender.SendTimeout.Duration <= 0 {
		errs = append(errs, errors.New("sender.send_timeout must be positive"))
	}
	return errors.Join(errs...)
}
