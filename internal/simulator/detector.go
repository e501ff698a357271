package simulator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/minagishl/vrchat-webcam-tracker/internal/camera"
	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

// Detector answers every frame from the scripted subject, timed from the
// first frame it sees.
type Detector struct {
	subject *Subject

	mu    sync.Mutex
	start time.Time
}

func NewDetector(opts Options) *Detector {
	return &Detector{subject: NewSubject(opts)}
}

func (d *Detector) Detect(ctx context.Context, frame types.Frame) (*types.LandmarkSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	if d.start.IsZero() {
		d.start = frame.Captured
	}
	elapsed := frame.Captured.Sub(d.start)
	d.mu.Unlock()
	return d.subject.At(frame.Seq, frame.Captured, elapsed), nil
}

func (d *Detector) Close() error {
	return nil
}

// Source produces empty frames of the configured size for the simulated
// detector. The caller paces reads.
type Source struct {
	width  int
	height int

	mu     sync.Mutex
	seq    uint64
	closed bool
	now    func() time.Time
}

func NewSource(width, height int) *Source {
	return &Source{width: width, height: height, now: time.Now}
}

func (s *Source) Read(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.Frame{}, camera.ErrDeviceLost
	}
	s.seq++
	return types.Frame{Seq: s.seq, Captured: s.now(), Width: s.width, Height: s.height}, nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func sortedIDs(set *types.LandmarkSet) []types.LandmarkID {
	ids := make([]types.LandmarkID, 0, len(set.Points))
	for id := range set.Points {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
