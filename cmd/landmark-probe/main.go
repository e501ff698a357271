package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/minagishl/vrchat-webcam-tracker/internal/config"
	"github.com/minagishl/vrchat-webcam-tracker/internal/landmarks"
	"github.com/minagishl/vrchat-webcam-tracker/internal/logging"
	"github.com/minagishl/vrchat-webcam-tracker/internal/mapping"
	"github.com/minagishl/vrchat-webcam-tracker/internal/simulator"
	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

// landmark-probe sends frames to a landmark sidecar and prints what comes
// back. With -serve-sim it instead answers requests from the simulator.
func main() {
	var (
		endpoint = flag.String("endpoint", config.EnvString("VRCWT_SIDECAR", "tcp://127.0.0.1:5555"), "Sidecar ZMQ endpoint")
		imgPath  = flag.String("image", "", "JPEG file to send (empty sends a blank frame)")
		count    = flag.Int("count", 1, "Number of requests")
		timeout  = flag.Duration("timeout", 2*time.Second, "Per-request timeout")
		points   = flag.Bool("points", false, "Print every keypoint")
		serveSim = flag.Bool("serve-sim", false, "Serve simulated landmarks on -endpoint")
		debug    = flag.Bool("debug", false, "Debug logging")
	)
	flag.Parse()

	log := logging.New(logging.Options{Debug: *debug})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serveSim {
		detector := simulator.NewDetector(simulator.DefaultOptions())
		defer detector.Close()
		if err := landmarks.Serve(ctx, *endpoint, detector, log); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Fatal("serve failed")
		}
		return
	}

	frame, err := loadFrame(*imgPath)
	if err != nil {
		log.WithError(err).Fatal("load image")
	}
	client, err := landmarks.Dial(landmarks.ClientOptions{Endpoint: *endpoint, Timeout: *timeout}, log)
	if err != nil {
		log.WithError(err).Fatal("dial sidecar")
	}
	defer client.Close()

	mapper := mapping.New(config.DefaultTuning())
	for i := 0; i < *count && ctx.Err() == nil; i++ {
		frame.Seq = uint64(i + 1)
		frame.Captured = time.Now()
		start := time.Now()
		set, err := client.Detect(ctx, frame)
		elapsed := time.Since(start)
		if err != nil && set == nil {
			log.WithError(err).WithField("seq", frame.Seq).Error("detect failed")
			continue
		}
		if err != nil {
			log.WithError(err).WithField("seq", frame.Seq).Warn("partial reply")
		}
		log.WithFields(logrus.Fields{"seq": frame.Seq, "points": set.Len(), "elapsed": elapsed}).Info("reply")
		printSet(set, mapper.Map(set), *points)
	}
}

func loadFrame(path string) (types.Frame, error) {
	if path == "" {
		return types.Frame{Width: 640, Height: 480}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Frame{}, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return types.Frame{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return types.Frame{Width: cfg.Width, Height: cfg.Height, JPEG: data}, nil
}

func printSet(set *types.LandmarkSet, params types.ExpressionFrame, all bool) {
	if set == nil {
		fmt.Println("no subject")
		return
	}
	if all {
		ids := make([]string, 0, len(set.Points))
		for id := range set.Points {
			ids = append(ids, string(id))
		}
		sort.Strings(ids)
		for _, id := range ids {
			kp := set.Points[types.LandmarkID(id)]
			fmt.Printf("  %-24s x=%.4f y=%.4f z=%.4f vis=%.2f\n", id, kp.X, kp.Y, kp.Z, kp.Visibility)
		}
	}
	for _, name := range params.Names() {
		fmt.Printf("  %-24s %.3f\n", name, params[name])
	}
}
