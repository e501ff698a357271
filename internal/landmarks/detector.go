package landmarks

import (
	"context"
	"errors"

	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

var ErrTimeout = errors.New("landmark sidecar timed out")

// Detector turns a frame into the landmarks of at most one subject. A nil
// set with a nil error means nobody was found.
type Detector interface {
	Detect(ctx context.Context, frame types.Frame) (*types.LandmarkSet, error)
	Close() error
}
