package landmarks

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pebbe/zmq4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func freeEndpoint(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return fmt.Sprintf("tcp://127.0.0.1:%d", port)
}

type stubDetector struct {
	set *types.LandmarkSet
}

func (d stubDetector) Detect(_ context.Context, frame types.Frame) (*types.LandmarkSet, error) {
	if d.set == nil {
		return nil, nil
	}
	out := types.NewLandmarkSet(frame.Seq, frame.Captured)
	for id, kp := range d.set.Points {
		out.Points[id] = kp
	}
	return out, nil
}

func (stubDetector) Close() error { return nil }

func startServe(t *testing.T, detector Detector) string {
	t.Helper()
	endpoint := freeEndpoint(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, endpoint, detector, quietLogger()) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return endpoint
}

// startReplier binds a REP socket whose replies come from handle. The n-th
// request (from 1) is answered after the returned delay; sent is signalled
// after every reply.
func startReplier(t *testing.T, handle func(n int, frame types.Frame) ([]byte, time.Duration)) (string, <-chan int) {
	t.Helper()
	endpoint := freeEndpoint(t)
	socket, err := zmq4.NewSocket(zmq4.REP)
	require.NoError(t, err)
	require.NoError(t, socket.SetLinger(0))
	require.NoError(t, socket.SetRcvtimeo(50*time.Millisecond))
	require.NoError(t, socket.Bind(endpoint))

	ctx, cancel := context.WithCancel(context.Background())
	sent := make(chan int, 8)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer socket.Close()
		for n := 1; ctx.Err() == nil; {
			msg, err := socket.RecvBytes(0)
			if err != nil {
				if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
					continue
				}
				return
			}
			frame, err := DecodeRequest(msg)
			if err != nil {
				return
			}
			reply, delay := handle(n, frame)
			time.Sleep(delay)
			if _, err := socket.SendBytes(reply, 0); err != nil {
				return
			}
			sent <- n
			n++
		}
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return endpoint, sent
}

func dialTest(t *testing.T, endpoint string, timeout time.Duration) *Client {
	t.Helper()
	c, err := Dial(ClientOptions{Endpoint: endpoint, Timeout: timeout}, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientRoundTrip(t *testing.T) {
	endpoint := startServe(t, stubDetector{set: sampleSet()})
	c := dialTest(t, endpoint, 2*time.Second)

	captured := time.Unix(200, 0)
	set, err := c.Detect(context.Background(), types.Frame{Seq: 7, Captured: captured, Width: 640, Height: 480})
	require.NoError(t, err)
	require.NotNil(t, set)
	assert.Equal(t, uint64(7), set.Seq)
	assert.Equal(t, captured, set.Captured)

	shoulder, ok := set.Point(types.LeftShoulder, 0)
	require.True(t, ok)
	assert.InDelta(t, 0.75, shoulder.X, 1e-6)
	assert.InDelta(t, 0.5, shoulder.Visibility, 1e-6)
	_, ok = set.Point(types.HandLandmark(types.Right, "index_tip"), 0.5)
	assert.True(t, ok)
}

func TestClientNoSubject(t *testing.T) {
	endpoint := startServe(t, stubDetector{})
	c := dialTest(t, endpoint, 2*time.Second)

	set, err := c.Detect(context.Background(), types.Frame{Seq: 1})
	require.NoError(t, err)
	assert.Nil(t, set)
}

func TestClientTimeoutRecreatesSocket(t *testing.T) {
	endpoint, sent := startReplier(t, func(n int, frame types.Frame) ([]byte, time.Duration) {
		reply, _ := EncodeReply(frame.Seq, sampleSet())
		if n == 1 {
			return reply, 400 * time.Millisecond
		}
		return reply, 0
	})
	c := dialTest(t, endpoint, 150*time.Millisecond)

	_, err := c.Detect(context.Background(), types.Frame{Seq: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout), "got %v", err)

	select {
	case <-sent:
	case <-time.After(2 * time.Second):
		t.Fatal("late reply never sent")
	}

	set, err := c.Detect(context.Background(), types.Frame{Seq: 2})
	require.NoError(t, err)
	require.NotNil(t, set)
	assert.Equal(t, uint64(2), set.Seq)
}

func TestClientRejectsMismatchedSeq(t *testing.T) {
	endpoint, _ := startReplier(t, func(_ int, frame types.Frame) ([]byte, time.Duration) {
		reply, _ := EncodeReply(frame.Seq+1, sampleSet())
		return reply, 0
	})
	c := dialTest(t, endpoint, time.Second)

	set, err := c.Detect(context.Background(), types.Frame{Seq: 4})
	assert.Nil(t, set)
	assert.ErrorContains(t, err, "expected 4")
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestClientReturnsPartialReply(t *testing.T) {
	endpoint, _ := startReplier(t, func(_ int, frame types.Frame) ([]byte, time.Duration) {
		reply, _ := cbor.Marshal(map[string]any{
			"type":    "landmarks",
			"seq":     frame.Seq,
			"subject": true,
			"pose":    []any{[]any{0.5, 0.5, 0.0}},
			"face":    "garbage",
		})
		return reply, 0
	})
	c := dialTest(t, endpoint, time.Second)

	set, err := c.Detect(context.Background(), types.Frame{Seq: 3})
	require.NoError(t, err)
	require.NotNil(t, set)
	_, ok := set.Point(types.Nose, 0.5)
	assert.True(t, ok)
}

func TestClientCancelledContext(t *testing.T) {
	endpoint := startServe(t, stubDetector{})
	c := dialTest(t, endpoint, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Detect(ctx, types.Frame{Seq: 1})
	assert.ErrorIs(t, err, context.Canceled)
}
