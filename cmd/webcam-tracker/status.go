package main

import (
	"sync"
	"time"
)

type runStatus struct {
	mu     sync.Mutex
	values map[string]any
}

func newStatus() *runStatus {
	return &runStatus{values: map[string]any{
		"sidecar": "unknown",
		"started": time.Now().Format(time.RFC3339),
	}}
}

func (s *runStatus) set(key string, value any) {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
}

func (s *runStatus) snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.values)+1)
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
