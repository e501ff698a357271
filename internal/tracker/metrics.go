package tracker

import "sync/atomic"

type metrics struct {
	framesRead     atomic.Uint64
	emptyReads     atomic.Uint64
	readErrors     atomic.Uint64
	detected       atomic.Uint64
	missed         atomic.Uint64
	detectErrors   atomic.Uint64
	paramsEnqueued atomic.Uint64
	framesSkipped  atomic.Uint64
	trackerErrors  atomic.Uint64
	recordErrors   atomic.Uint64
	loopCount      atomic.Uint64
	loopNanos      atomic.Uint64
	detectNanos    atomic.Uint64
}

func (m *metrics) snapshot() map[string]any {
	loops := m.loopCount.Load()
	avgLoop := 0.0
	if loops > 0 {
		avgLoop = float64(m.loopNanos.Load()) / float64(loops) / 1e6
	}
	return map[string]any{
		"frames_read_total":     m.framesRead.Load(),
		"empty_reads_total":     m.emptyReads.Load(),
		"read_errors_total":     m.readErrors.Load(),
		"frames_detected_total": m.detected.Load(),
		"frames_missed_total":   m.missed.Load(),
		"detect_errors_total":   m.detectErrors.Load(),
		"params_enqueued_total": m.paramsEnqueued.Load(),
		"frames_skipped_total":  m.framesSkipped.Load(),
		"tracker_errors_total":  m.trackerErrors.Load(),
		"record_errors_total":   m.recordErrors.Load(),
		"loop_total":            loops,
		"loop_nanos_total":      m.loopNanos.Load(),
		"detect_nanos_total":    m.detectNanos.Load(),
		"loop_avg_ms":           avgLoop,
	}
}
