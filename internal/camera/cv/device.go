//go:build !nocv

package cv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/minagishl/vrchat-webcam-tracker/internal/camera"
	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

// maxMisses consecutive empty reads mean the device went away.
const maxMisses = 30

type device struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	img     gocv.Mat
	opts    camera.Options
	seq     uint64
	misses  int
	closed  bool
}

// OpenDevice opens a local camera through OpenCV. It satisfies camera.Opener.
func OpenDevice(_ context.Context, opts camera.Options) (camera.Source, error) {
	capture, err := gocv.OpenVideoCapture(opts.Device)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", camera.ErrDeviceUnavailable, err)
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return nil, camera.ErrDeviceUnavailable
	}
	if opts.Width > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(opts.Width))
	}
	if opts.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(opts.Height))
	}
	if opts.FPS > 0 {
		capture.Set(gocv.VideoCaptureFPS, opts.FPS)
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 80
	}
	return &device{capture: capture, img: gocv.NewMat(), opts: opts}, nil
}

func (d *device) Read(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return types.Frame{}, camera.ErrDeviceLost
	}

	if ok := d.capture.Read(&d.img); !ok || d.img.Empty() {
		d.misses++
		if d.misses >= maxMisses {
			return types.Frame{}, fmt.Errorf("%w: %d empty reads from device %d", camera.ErrDeviceLost, d.misses, d.opts.Device)
		}
		return types.Frame{}, camera.ErrNoFrame
	}
	d.misses = 0
	captured := time.Now()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, d.img, []int{gocv.IMWriteJpegQuality, d.opts.JPEGQuality})
	if err != nil {
		return types.Frame{}, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()
	data := append([]byte(nil), buf.GetBytes()...)

	d.seq++
	return types.Frame{
		Seq:      d.seq,
		Captured: captured,
		Width:    d.img.Cols(),
		Height:   d.img.Rows(),
		JPEG:     data,
	}, nil
}

func (d *device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	_ = d.img.Close()
	return d.capture.Close()
}
