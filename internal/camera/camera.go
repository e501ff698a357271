package camera

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/minagishl/vrchat-webcam-tracker/internal/config"
	"github.com/minagishl/vrchat-webcam-tracker/internal/logging"
	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

var (
	ErrDeviceUnavailable = errors.New("camera device unavailable")
	ErrDeviceLost        = errors.New("camera device lost")
	// ErrNoFrame is a transient empty read; the caller skips the tick.
	ErrNoFrame = errors.New("camera returned no frame")
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

type Options struct {
	Device      int
	Width       int
	Height      int
	FPS         float64
	OpenTimeout time.Duration
	OpenRetries int
	JPEGQuality int
}

func OptionsFromTuning(device int, t config.CameraTuning) Options {
	return Options{
		Device:      device,
		Width:       t.Width,
		Height:      t.Height,
		FPS:         t.FPS,
		OpenTimeout: t.OpenTimeout.Duration,
		OpenRetries: t.OpenRetries,
		JPEGQuality: t.JPEGQuality,
	}
}

// Source yields encoded frames. The owner must Close it exactly once.
type Source interface {
	Read(ctx context.Context) (types.Frame, error)
	Close() error
}

// Opener opens one device without retrying.
type Opener func(ctx context.Context, opts Options) (Source, error)

// Preview shows frames in a local window. Show reports whether the user
// asked to quit.
type Preview interface {
	Show(frame types.Frame, set *types.LandmarkSet, params types.ExpressionFrame) bool
	Close() error
}

// Open calls open until it succeeds, giving each attempt OpenTimeout and
// backing off between attempts. The error wraps ErrDeviceUnavailable.
func Open(ctx context.Context, open Opener, opts Options, log *logrus.Logger) (Source, error) {
	if log == nil {
		log = logging.L()
	}
	attempts := opts.OpenRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		src, err := openOnce(ctx, open, opts)
		if err == nil {
			log.WithFields(logrus.Fields{"device": opts.Device, "attempt": attempt}).Info("camera opened")
			return src, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		log.WithError(err).WithFields(logrus.Fields{"device": opts.Device, "attempt": attempt}).Warn("camera open failed")
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("camera %d: %w: %w", opts.Device, ErrDeviceUnavailable, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	if errors.Is(lastErr, ErrDeviceUnavailable) {
		return nil, fmt.Errorf("camera %d: %w", opts.Device, lastErr)
	}
	return nil, fmt.Errorf("camera %d: %w: %w", opts.Device, ErrDeviceUnavailable, lastErr)
}

type openResult struct {
	src Source
	err error
}

func openOnce(ctx context.Context, open Opener, opts Options) (Source, error) {
	if opts.OpenTimeout <= 0 {
		return open(ctx, opts)
	}
	done := make(chan openResult, 1)
	go func() {
		src, err := open(ctx, opts)
		done <- openResult{src: src, err: err}
	}()

	timer := time.NewTimer(opts.OpenTimeout)
	defer timer.Stop()
	var err error
	select {
	case r := <-done:
		return r.src, r.err
	case <-timer.C:
		err = fmt.Errorf("open timed out after %s", opts.OpenTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	}
	// The device may still open after we gave up on it.
	go func() {
		if r := <-done; r.src != nil {
			_ = r.src.Close()
		}
	}()
	return nil, err
}

// Probe reports whether the device opens and yields one frame.
func Probe(ctx context.Context, open Opener, opts Options) bool {
	src, err := openOnce(ctx, open, opts)
	if err != nil {
		return false
	}
	defer src.Close()
	for i := 0; i < 5; i++ {
		if _, err := src.Read(ctx); err == nil {
			return true
		} else if !errors.Is(err, ErrNoFrame) {
			return false
		}
	}
	return false
}
