package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/minagishl/vrchat-webcam-tracker/internal/camera"
	"github.com/minagishl/vrchat-webcam-tracker/internal/camera/cv"
	"github.com/minagishl/vrchat-webcam-tracker/internal/config"
	"github.com/minagishl/vrchat-webcam-tracker/internal/landmarks"
	"github.com/minagishl/vrchat-webcam-tracker/internal/logging"
	"github.com/minagishl/vrchat-webcam-tracker/internal/mapping"
	"github.com/minagishl/vrchat-webcam-tracker/internal/osc"
	"github.com/minagishl/vrchat-webcam-tracker/internal/output"
	"github.com/minagishl/vrchat-webcam-tracker/internal/server"
	"github.com/minagishl/vrchat-webcam-tracker/internal/simulator"
	"github.com/minagishl/vrchat-webcam-tracker/internal/tracker"
	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	var (
		ip          = flag.String("ip", config.EnvString("IP", "127.0.0.1"), "OSC destination host")
		port        = flag.Int("port", config.EnvInt("PORT", 9000), "OSC destination port")
		cameraIndex = flag.Int("camera", config.EnvInt("CAMERA", -1), "Camera device index (prompted when omitted)")
		debug       = flag.Bool("debug", config.EnvBool("DEBUG", false), "Debug logging and per-frame parameter dump")
		noDisplay   = flag.Bool("no-display", false, "Disable the native preview window")
		uiPort      = flag.Int("ui-port", config.EnvInt("UI_PORT", 0), "Web preview port (0 disables)")
		uiRate      = flag.Duration("ui-rate", 100*time.Millisecond, "Web preview update interval")
		tuningPath  = flag.String("tuning", config.EnvString("TUNING", ""), "JSON tuning file")
		sidecar     = flag.String("sidecar", config.EnvString("SIDECAR", "tcp://127.0.0.1:5555"), "Landmark sidecar ZMQ endpoint")
		sidecarAPI  = flag.String("sidecar-api", config.EnvString("SIDECAR_API", ""), "Landmark sidecar HTTP base URL (optional)")
		sidecarPoll = flag.Duration("sidecar-poll", 2*time.Second, "Sidecar status polling interval")
		simulate    = flag.Bool("simulate", false, "Run with a simulated subject, no camera or model")
		rawLog      = flag.Bool("raw-log", false, "Record landmark sets to a binary log")
		rawLogDir   = flag.String("raw-log-dir", "rawlog", "Directory for landmark raw logs")
		paramLog    = flag.Bool("param-log", false, "Write emitted parameters to CSV")
		outputDir   = flag.String("output-dir", "output", "Directory for parameter logs")
		logDir      = flag.String("log-dir", config.EnvString("LOG_DIR", "logs"), "Directory for rotated log files")
		trackers    = flag.Bool("trackers", false, "Also send OSC tracker positions")
		smoothing   = flag.Float64("smoothing", -1, "Smoothing alpha in (0,1]; 0 disables, negative keeps the tuning value")
		logEvery    = flag.Int("log-every", 100, "Log every Nth repeated error")
	)
	flag.Parse()

	cfg := config.AppConfig{
		IP:          *ip,
		Port:        *port,
		Camera:      *cameraIndex,
		CameraSet:   *cameraIndex >= 0,
		Debug:       *debug,
		Display:     !*noDisplay,
		UIPort:      *uiPort,
		UIRate:      *uiRate,
		TuningPath:  *tuningPath,
		Sidecar:     *sidecar,
		SidecarAPI:  *sidecarAPI,
		SidecarPoll: *sidecarPoll,
		Simulate:    *simulate,
		RawLog:      *rawLog,
		RawLogDir:   *rawLogDir,
		ParamLog:    *paramLog,
		OutputDir:   *outputDir,
		LogDir:      *logDir,
		Trackers:    *trackers,
		LogEvery:    *logEvery,
		SessionID:   uuid.NewString(),
	}

	log := logging.New(logging.Options{Debug: cfg.Debug, LogDir: cfg.LogDir})
	log.WithField("session", cfg.SessionID).Info("webcam tracker starting")

	tuning, err := config.LoadTuning(cfg.TuningPath)
	if err != nil {
		log.WithError(err).Fatal("invalid tuning")
	}
	applySmoothingFlag(tuning, *smoothing)
	cfg.Tuning = tuning

	dest := types.Destination{Host: cfg.IP, Port: cfg.Port}
	if err := dest.Validate(); err != nil {
		log.WithError(err).Fatal("invalid OSC destination")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cfg, dest, log))
}

func applySmoothingFlag(t *config.Tuning, alpha float64) {
	switch {
	case alpha < 0:
	case alpha == 0:
		t.Smoothing.Enabled = false
	case alpha <= 1:
		t.Smoothing.Enabled = true
		t.Smoothing.Alpha = alpha
	}
}

// run wires the components and blocks until shutdown. It returns the
// process exit code.
func run(ctx context.Context, cfg config.AppConfig, dest types.Destination, log *logrus.Logger) int {
	tuning := cfg.Tuning
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		source   camera.Source
		detector landmarks.Detector
		status   = newStatus()
	)
	if cfg.Simulate {
		source = simulator.NewSource(tuning.Camera.Width, tuning.Camera.Height)
		opts := simulator.DefaultOptions()
		opts.Aspect = float64(tuning.Camera.Width) / float64(tuning.Camera.Height)
		detector = simulator.NewDetector(opts)
		status.set("sidecar", "simulator")
	} else {
		if !cfg.CameraSet {
			index, err := promptCamera(ctx, os.Stdin, os.Stdout, tuning.Camera)
			if err != nil {
				log.WithError(err).Error("no camera selected")
				return 1
			}
			cfg.Camera = index
		}
		src, err := camera.Open(ctx, cv.OpenDevice, camera.OptionsFromTuning(cfg.Camera, tuning.Camera), log)
		if err != nil {
			log.WithError(err).Error("cannot open camera")
			return 1
		}
		source = src

		client, err := landmarks.Dial(landmarks.ClientOptions{
			Endpoint: cfg.Sidecar,
			Timeout:  tuning.Detection.Timeout.Duration,
			LogEvery: cfg.LogEvery,
		}, log)
		if err != nil {
			log.WithError(err).Error("cannot reach landmark sidecar")
			_ = source.Close()
			return 1
		}
		detector = client
		status.set("sidecar", "connected")

		if cfg.SidecarAPI != "" {
			api := landmarks.NewAPI(cfg.SidecarAPI)
			if err := api.Configure(ctx, tuning.Detection); err != nil {
				log.WithError(err).Warn("sidecar configuration failed")
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				api.Poll(ctx, cfg.SidecarPoll, func(state string) { status.set("sidecar", state) })
			}()
		}
	}
	defer source.Close()
	defer detector.Close()

	sender, err := osc.New(osc.ConfigFromTuning(dest, tuning.Sender), log)
	if err != nil {
		log.WithError(err).Error("cannot create OSC sender")
		return 1
	}
	defer sender.Close()
	if err := sender.TestConnection(); err != nil {
		log.WithError(err).Warn("OSC test message failed")
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		sender.Run(ctx)
	}()

	pcfg := tracker.Config{
		Source:        source,
		Detector:      detector,
		Mapper:        mapping.New(tuning),
		Sender:        sender,
		FPS:           tuning.Camera.FPS,
		MinVisibility: tuning.Detection.MinVisibility,
		Trackers:      cfg.Trackers,
		Debug:         cfg.Debug,
		LogEvery:      cfg.LogEvery,
		Log:           log,
	}

	if cfg.RawLog {
		writer, err := output.NewRawLogWriter(cfg.RawLogDir, cfg.SessionID)
		if err != nil {
			log.WithError(err).Error("cannot start raw log")
			return 1
		}
		defer closeLogged(log, "raw log", writer.Close)
		log.WithField("path", writer.Path()).Info("recording landmarks")
		pcfg.RawLog = writer
	}
	if cfg.ParamLog {
		writer, err := output.NewParamLog(cfg.OutputDir, cfg.SessionID)
		if err != nil {
			log.WithError(err).Error("cannot start parameter log")
			return 1
		}
		defer closeLogged(log, "parameter log", writer.Close)
		log.WithField("path", writer.Path()).Info("recording parameters")
		pcfg.ParamLog = writer
	}
	if cfg.Display && !cfg.Simulate {
		preview, err := cv.NewWindow("VRChat Webcam Tracker")
		if err != nil {
			log.WithError(err).Warn("preview window unavailable")
		} else {
			defer preview.Close()
			pcfg.Preview = preview
		}
	}

	var latest *server.Latest
	if cfg.UIPort > 0 {
		latest = &server.Latest{}
		pcfg.Publish = latest.Publish
	}
	pipeline, err := tracker.New(pcfg)
	if err != nil {
		log.WithError(err).Error("cannot build pipeline")
		return 1
	}

	if latest != nil {
		messages := make(chan any, 4)
		srv := server.New(server.Options{
			Port:     cfg.UIPort,
			Snapshot: latest.Get,
			Config:   func() map[string]any { return configPayload(cfg, dest) },
			Status: func() map[string]any {
				payload := status.snapshot()
				metrics := pipeline.Metrics()
				metrics["osc"] = sender.Stats()
				payload["metrics"] = metrics
				return payload
			},
			Log: log,
		})
		wg.Add(2)
		go func() {
			defer wg.Done()
			latest.Pump(ctx, cfg.UIRate, messages)
		}()
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx, messages); err != nil {
				log.WithError(err).Warn("preview server stopped")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		logStats(ctx, log, pipeline, sender)
	}()

	log.WithFields(logrus.Fields{
		"destination": dest.String(),
		"camera":      cfg.Camera,
		"simulate":    cfg.Simulate,
	}).Info("sending parameters")

	err = pipeline.Run(ctx)
	cancel()
	if err != nil {
		if errors.Is(err, camera.ErrDeviceLost) {
			log.WithError(err).Error("camera lost")
		} else {
			log.WithError(err).Error("tracking failed")
		}
		return 1
	}
	log.Info("shutting down")
	return 0
}

func configPayload(cfg config.AppConfig, dest types.Destination) map[string]any {
	return map[string]any{
		"destination": dest.String(),
		"camera":      cfg.Camera,
		"width":       cfg.Tuning.Camera.Width,
		"height":      cfg.Tuning.Camera.Height,
		"fps":         cfg.Tuning.Camera.FPS,
		"simulate":    cfg.Simulate,
		"sidecar":     cfg.Sidecar,
		"session":     cfg.SessionID,
		"tuning":      cfg.Tuning,
	}
}

func closeLogged(log *logrus.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.WithError(err).Warnf("%s close failed", what)
	}
}

func logStats(ctx context.Context, log *logrus.Logger, pipeline *tracker.Pipeline, sender *osc.Sender) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := pipeline.Metrics()
			stats := sender.Stats()
			log.WithFields(logrus.Fields{
				"read":     m["frames_read_total"],
				"detected": m["frames_detected_total"],
				"missed":   m["frames_missed_total"],
				"loop_ms":  m["loop_avg_ms"],
				"sent":     stats.Sent,
				"errors":   stats.Errors,
				"dropped":  stats.Dropped,
			}).Info("tracking stats")
		}
	}
}
