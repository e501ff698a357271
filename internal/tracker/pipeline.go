package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/minagishl/vrchat-webcam-tracker/internal/camera"
	"github.com/minagishl/vrchat-webcam-tracker/internal/landmarks"
	"github.com/minagishl/vrchat-webcam-tracker/internal/logging"
	"github.com/minagishl/vrchat-webcam-tracker/internal/mapping"
	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

// ErrQuit is returned by Step when the user closes the preview window.
var ErrQuit = errors.New("preview closed")

type Sender interface {
	Enqueue(frame types.ExpressionFrame) bool
	SendTrackers(positions map[int]types.Vec3) error
}

type LandmarkRecorder interface {
	Record(seq uint64, set *types.LandmarkSet) error
}

type ParamRecorder interface {
	Write(seq uint64, at time.Time, frame types.ExpressionFrame) error
}

type Config struct {
	Source   camera.Source
	Detector landmarks.Detector
	Mapper   *mapping.Mapper
	Sender   Sender

	FPS           float64
	MinVisibility float64
	Trackers      bool
	Debug         bool
	LogEvery      int

	RawLog   LandmarkRecorder
	ParamLog ParamRecorder
	Publish  func(types.UISnapshot)
	// Preview is driven from the goroutine calling Run.
	Preview camera.Preview
	Log     *logrus.Logger
}

// Pipeline runs capture, detection, mapping and sending once per tick. The
// source and detector stay owned by the caller.
type Pipeline struct {
	cfg     Config
	log     *logrus.Logger
	errLog  *logging.EveryN
	metrics metrics
	now     func() time.Time
}

func New(cfg Config) (*Pipeline, error) {
	if cfg.Source == nil || cfg.Detector == nil || cfg.Mapper == nil || cfg.Sender == nil {
		return nil, fmt.Errorf("pipeline needs a source, detector, mapper and sender")
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	log := cfg.Log
	if log == nil {
		log = logging.L()
	}
	return &Pipeline{
		cfg:    cfg,
		log:    log,
		errLog: logging.NewEveryN(cfg.LogEvery),
		now:    time.Now,
	}, nil
}

// Run steps the pipeline at the configured rate until ctx is cancelled, the
// preview is closed (both return nil) or the camera is lost.
func (p *Pipeline) Run(ctx context.Context) error {
	interval := time.Duration(float64(time.Second) / p.cfg.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	p.log.WithFields(logrus.Fields{"fps": p.cfg.FPS, "interval": interval}).Info("tracking started")

	for {
		select {
		case <-ctx.Done():
			p.log.WithFields(logrus.Fields(p.Metrics())).Info("tracking stopped")
			return nil
		case <-ticker.C:
			if err := p.Step(ctx); err != nil {
				if errors.Is(err, ErrQuit) {
					p.log.Info("preview closed, stopping")
					return nil
				}
				return err
			}
		}
	}
}

// Step processes one frame. Only a lost camera or a preview quit is
// returned; everything else is counted, logged and skipped.
func (p *Pipeline) Step(ctx context.Context) error {
	start := p.now()
	defer func() {
		p.metrics.loopCount.Add(1)
		p.metrics.loopNanos.Add(uint64(p.now().Sub(start).Nanoseconds()))
	}()

	frame, err := p.cfg.Source.Read(ctx)
	switch {
	case err == nil:
	case errors.Is(err, camera.ErrDeviceLost):
		return err
	case errors.Is(err, camera.ErrNoFrame):
		p.metrics.emptyReads.Add(1)
		return nil
	case ctx.Err() != nil:
		return nil
	default:
		p.metrics.readErrors.Add(1)
		p.warn(err, "frame read failed")
		return nil
	}
	p.metrics.framesRead.Add(1)

	detectStart := p.now()
	set, err := p.cfg.Detector.Detect(ctx, frame)
	p.metrics.detectNanos.Add(uint64(p.now().Sub(detectStart).Nanoseconds()))
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		p.metrics.detectErrors.Add(1)
		p.warn(err, "landmark detection failed")
		set = nil
	}
	if set == nil {
		p.metrics.missed.Add(1)
	} else {
		p.metrics.detected.Add(1)
	}

	params := p.cfg.Mapper.Map(set)
	if len(params) > 0 {
		if p.cfg.Sender.Enqueue(params) {
			p.metrics.paramsEnqueued.Add(uint64(len(params)))
		} else {
			p.metrics.framesSkipped.Add(1)
		}
	}
	if p.cfg.Trackers && set != nil {
		positions := mapping.TrackerPositions(set, p.cfg.MinVisibility)
		if err := p.cfg.Sender.SendTrackers(positions); err != nil {
			p.metrics.trackerErrors.Add(1)
			p.warn(err, "tracker send failed")
		}
	}
	if p.cfg.Debug && len(params) > 0 {
		fields := make(logrus.Fields, len(params)+1)
		for name, value := range params {
			fields[name] = fmt.Sprintf("%.3f", value)
		}
		fields["seq"] = frame.Seq
		p.log.WithFields(fields).Debug("parameters")
	}

	p.record(frame, set, params)
	if p.cfg.Publish != nil {
		p.cfg.Publish(types.NewUISnapshot(frame.Seq, set, params))
	}
	if p.cfg.Preview != nil && p.cfg.Preview.Show(frame, set, params) {
		return ErrQuit
	}
	return nil
}

func (p *Pipeline) record(frame types.Frame, set *types.LandmarkSet, params types.ExpressionFrame) {
	if p.cfg.RawLog != nil {
		if err := p.cfg.RawLog.Record(frame.Seq, set); err != nil {
			p.metrics.recordErrors.Add(1)
			p.warn(err, "raw log write failed")
		}
	}
	if p.cfg.ParamLog != nil {
		if err := p.cfg.ParamLog.Write(frame.Seq, frame.Captured, params); err != nil {
			p.metrics.recordErrors.Add(1)
			p.warn(err, "param log write failed")
		}
	}
}

func (p *Pipeline) warn(err error, msg string) {
	if p.errLog.Allow() {
		p.log.WithError(err).WithField("occurrences", p.errLog.Count()).Warn(msg)
	}
}

func (p *Pipeline) Metrics() map[string]any {
	return p.metrics.snapshot()
}
