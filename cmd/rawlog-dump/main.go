package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/sirupsen/logrus"

	"github.com/minagishl/vrchat-webcam-tracker/internal/config"
	"github.com/minagishl/vrchat-webcam-tracker/internal/logging"
	"github.com/minagishl/vrchat-webcam-tracker/internal/mapping"
	"github.com/minagishl/vrchat-webcam-tracker/internal/osc"
	"github.com/minagishl/vrchat-webcam-tracker/internal/output"
	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

func main() {
	var (
		path       = flag.String("path", "", "Path to a landmark raw log .bin file")
		limit      = flag.Int("limit", 1, "Number of records to dump (0 for all)")
		diag       = flag.Bool("diag", false, "Print CBOR diagnostic notation instead of JSON")
		replay     = flag.Bool("replay", false, "Map the recorded sets and send them over OSC")
		ip         = flag.String("ip", "127.0.0.1", "OSC destination host for -replay")
		port       = flag.Int("port", 9000, "OSC destination port for -replay")
		tuningPath = flag.String("tuning", "", "JSON tuning file for -replay")
		speed      = flag.Float64("speed", 1, "Replay speed factor")
	)
	flag.Parse()

	log := logging.New(logging.Options{})
	if *path == "" {
		log.Fatal("path is required")
	}
	reader, err := output.OpenRawLog(*path)
	if err != nil {
		log.WithError(err).Fatal("open raw log")
	}
	defer reader.Close()

	if *replay {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := replayLog(ctx, reader, *ip, *port, *tuningPath, *speed, log); err != nil {
			log.WithError(err).Fatal("replay failed")
		}
		return
	}

	count := 0
	for *limit <= 0 || count < *limit {
		entry, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			log.WithError(err).Fatalf("record %d", count)
		}
		if err := dump(os.Stdout, entry, *diag); err != nil {
			log.WithError(err).Warnf("record %d", count)
		}
		count++
	}
}

func dump(w io.Writer, entry output.RawEntry, diag bool) error {
	fmt.Fprintf(w, "record seq=%d recorded=%s bytes=%d\n", entry.Seq, entry.Recorded.Format(time.RFC3339Nano), len(entry.Payload))
	if diag {
		text, err := cbor.Diagnose(entry.Payload)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, text)
		return nil
	}
	if entry.Set == nil {
		fmt.Fprintln(w, "no subject")
		return nil
	}
	pretty, err := json.MarshalIndent(entry.Set, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(pretty))
	return nil
}

// replayLog sends the recorded session again, keeping the recorded spacing
// between frames divided by speed.
func replayLog(ctx context.Context, reader *output.RawLogReader, ip string, port int, tuningPath string, speed float64, log *logrus.Logger) error {
	tuning, err := config.LoadTuning(tuningPath)
	if err != nil {
		return err
	}
	if speed <= 0 {
		speed = 1
	}
	sender, err := osc.New(osc.ConfigFromTuning(types.Destination{Host: ip, Port: port}, tuning.Sender), log)
	if err != nil {
		return err
	}
	defer sender.Close()
	mapper := mapping.New(tuning)

	var prev time.Time
	frames := 0
	for {
		entry, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if !prev.IsZero() {
			wait := time.Duration(float64(entry.Recorded.Sub(prev)) / speed)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
		}
		prev = entry.Recorded

		if err := sender.SendFrame(mapper.Map(entry.Set)); err != nil {
			log.WithError(err).WithField("seq", entry.Seq).Debug("send failed")
		}
		frames++
	}
	stats := sender.Stats()
	log.WithFields(logrus.Fields{"frames": frames, "sent": stats.Sent, "errors": stats.Errors}).Info("replay finished")
	return nil
}
