package server

import (
	"context"
	"sync"
	"time"

	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

// Latest keeps the newest snapshot so the preview can be refreshed at its
// own rate, independent of the tracking loop.
type Latest struct {
	mu    sync.Mutex
	snap  types.UISnapshot
	has   bool
	dirty bool
}

func (l *Latest) Publish(snap types.UISnapshot) {
	l.mu.Lock()
	l.snap = snap
	l.has = true
	l.dirty = true
	l.mu.Unlock()
}

// Get returns the newest snapshot, or nil before the first one.
func (l *Latest) Get() any {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.has {
		return nil
	}
	return l.snap
}

func (l *Latest) take() (types.UISnapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.dirty {
		return types.UISnapshot{}, false
	}
	l.dirty = false
	return l.snap, true
}

// Pump sends the newest unsent snapshot to out every interval, dropping it
// when out is full. out is closed when ctx ends.
func (l *Latest) Pump(ctx context.Context, interval time.Duration, out chan<- any) {
	defer close(out)
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, ok := l.take()
			if !ok {
				continue
			}
			select {
			case out <- snap:
			default:
			}
		}
	}
}
