package landmarks

import (
	"context"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"
	"github.com/sirupsen/logrus"

	"github.com/minagishl/vrchat-webcam-tracker/internal/logging"
	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

// Serve answers frame requests on a ZMQ REP socket bound to endpoint, using
// detector to produce each reply. It stands in for the model sidecar when
// testing the tracker end to end.
func Serve(ctx context.Context, endpoint string, detector Detector, log *logrus.Logger) error {
	if log == nil {
		log = logging.L()
	}
	socket, err := zmq4.NewSocket(zmq4.REP)
	if err != nil {
		return err
	}
	defer socket.Close()
	if err := socket.SetLinger(0); err != nil {
		return err
	}
	if err := socket.SetRcvtimeo(200 * time.Millisecond); err != nil {
		return err
	}
	if err := socket.Bind(endpoint); err != nil {
		return err
	}
	log.WithField("endpoint", endpoint).Info("serving landmark replies")

	errLog := logging.NewEveryN(100)
	for {
		if ctx.Err() != nil {
			return nil
		}
		msg, err := socket.RecvBytes(0)
		if err != nil {
			if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
				continue
			}
			return err
		}

		var set *types.LandmarkSet
		frame, err := DecodeRequest(msg)
		if err != nil {
			if errLog.Allow() {
				log.WithError(err).Warn("bad frame request")
			}
		} else {
			set, err = detector.Detect(ctx, frame)
			if err != nil && errLog.Allow() {
				log.WithError(err).WithField("seq", frame.Seq).Warn("detector failed")
			}
		}

		reply, err := EncodeReply(frame.Seq, set)
		if err != nil {
			return err
		}
		if _, err := socket.SendBytes(reply, 0); err != nil {
			return err
		}
	}
}
