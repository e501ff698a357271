package main

import (
	"context"
	"flag"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/minagishl/vrchat-webcam-tracker/internal/config"
	"github.com/minagishl/vrchat-webcam-tracker/internal/logging"
	"github.com/minagishl/vrchat-webcam-tracker/internal/mapping"
	"github.com/minagishl/vrchat-webcam-tracker/internal/osc"
	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

// osc-test drives avatar parameters with waveforms so the receiving side
// can be checked without a camera.
func main() {
	if err := config.LoadEnv(); err != nil {
		logging.L().WithError(err).Warn("load .env")
	}
	var (
		ip       = flag.String("ip", config.EnvString("IP", "127.0.0.1"), "OSC destination host")
		port     = flag.Int("port", config.EnvInt("PORT", 9000), "OSC destination port")
		duration = flag.Duration("duration", 30*time.Second, "How long to send")
		rate     = flag.Float64("rate", 10, "Frames per second")
		alpha    = flag.Float64("smoothing", 0.2, "Smoothing alpha in (0,1]")
		trackers = flag.Bool("trackers", false, "Send tracker positions instead of parameters")
		debug    = flag.Bool("debug", false, "Log every frame")
	)
	flag.Parse()

	log := logging.New(logging.Options{Debug: *debug})
	dest := types.Destination{Host: *ip, Port: *port}
	tuning := config.DefaultTuning()
	sender, err := osc.New(osc.ConfigFromTuning(dest, tuning.Sender), log)
	if err != nil {
		log.WithError(err).Fatal("cannot create OSC sender")
	}
	defer sender.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	if err := sender.TestConnection(); err != nil {
		log.WithError(err).Warn("test message failed")
	}
	log.WithFields(logrus.Fields{"destination": dest.String(), "duration": *duration}).Info("sending test data")

	if *rate <= 0 {
		*rate = 10
	}
	smoother := mapping.NewSmoother(*alpha)
	ticker := time.NewTicker(time.Duration(float64(time.Second) / *rate))
	defer ticker.Stop()
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			stats := sender.Stats()
			log.WithFields(logrus.Fields{"sent": stats.Sent, "errors": stats.Errors}).Info("OSC test completed")
			return
		case now := <-ticker.C:
			t := now.Sub(start).Seconds()
			if *trackers {
				if err := sender.SendTrackers(trackerWave(t)); err != nil {
					log.WithError(err).Debug("tracker send failed")
				}
				continue
			}
			frame := smoother.Apply(paramWave(t))
			if err := sender.SendFrame(frame); err != nil {
				log.WithError(err).Debug("send failed")
			}
			if *debug {
				fields := logrus.Fields{}
				for name, v := range frame {
					fields[name] = math.Round(v*1000) / 1000
				}
				log.WithFields(fields).Debug("frame")
			}
		}
	}
}

func unit(x float64) float64 {
	return (math.Sin(x) + 1) / 2
}

func paramWave(t float64) types.ExpressionFrame {
	return types.ExpressionFrame{
		mapping.ParamMouthOpen:         unit(t * 2),
		mapping.ParamMouthSmile:        unit(t*1.5 + 1),
		mapping.ParamLeftEyeBlink:      math.Max(0, math.Sin(t*3)),
		mapping.ParamRightEyeBlink:     math.Max(0, math.Sin(t*3+0.1)),
		mapping.ParamLeftEyebrowRaise:  unit(t * 0.8),
		mapping.ParamRightEyebrowRaise: unit(t*0.6 + 2),
		"LeftArmRaise":                 unit(t * 0.5),
		"RightArmRaise":                unit(t*0.5 + math.Pi),
		"LeftHandOpen":                 unit(t),
		"RightHandOpen":                unit(t + math.Pi),
	}
}

// trackerWave moves the head in a small circle and swings the wrists.
func trackerWave(t float64) map[int]types.Vec3 {
	return map[int]types.Vec3{
		1: {X: 0.1 * math.Cos(t), Y: 1.6, Z: 0.1 * math.Sin(t)},
		2: {X: 0.3, Y: 1.0 + 0.3*math.Sin(t*2), Z: 0.2},
		3: {X: -0.3, Y: 1.0 + 0.3*math.Sin(t*2+math.Pi), Z: 0.2},
	}
}
