//go:build nocv

package cv

import (
	"context"
	"errors"
	"fmt"

	"github.com/minagishl/vrchat-webcam-tracker/internal/camera"
)

var errNoOpenCV = errors.New("camera support not enabled; build without -tags nocv")

func OpenDevice(_ context.Context, opts camera.Options) (camera.Source, error) {
	return nil, fmt.Errorf("%w: device %d: %v", camera.ErrDeviceUnavailable, opts.Device, errNoOpenCV)
}

func NewWindow(_ string) (camera.Preview, error) {
	return nil, errNoOpenCV
}
