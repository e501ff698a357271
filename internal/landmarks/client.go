package landmarks

import (
	"context"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"
	"github.com/sirupsen/logrus"

	"github.com/minagishl/vrchat-webcam-tracker/internal/logging"
	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

type ClientOptions struct {
	Endpoint string
	Timeout  time.Duration
	LogEvery int
}

// Client talks to a landmark model sidecar over a ZMQ REQ socket. Calls are
// serialized because REQ sockets are strictly send/receive lockstep.
type Client struct {
	opts   ClientOptions
	log    *logrus.Logger
	errLog *logging.EveryN

	mu     sync.Mutex
	socket *zmq4.Socket
}

func Dial(opts ClientOptions, log *logrus.Logger) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("sidecar endpoint is empty")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 500 * time.Millisecond
	}
	if log == nil {
		log = logging.L()
	}
	c := &Client{opts: opts, log: log, errLog: logging.NewEveryN(opts.LogEvery)}
	socket, err := c.newSocket()
	if err != nil {
		return nil, err
	}
	c.socket = socket
	log.WithField("endpoint", opts.Endpoint).Info("landmark sidecar client connected")
	return c, nil
}

func (c *Client) newSocket() (*zmq4.Socket, error) {
	socket, err := zmq4.NewSocket(zmq4.REQ)
	if err != nil {
		return nil, err
	}
	setup := []func() error{
		func() error { return socket.SetLinger(0) },
		func() error { return socket.SetRcvtimeo(c.opts.Timeout) },
		func() error { return socket.SetSndtimeo(c.opts.Timeout) },
		func() error { return socket.Connect(c.opts.Endpoint) },
	}
	for _, step := range setup {
		if err := step(); err != nil {
			_ = socket.Close()
			return nil, fmt.Errorf("sidecar socket %s: %w", c.opts.Endpoint, err)
		}
	}
	return socket, nil
}

// reset replaces a socket stuck between send and receive.
func (c *Client) reset() {
	if c.socket != nil {
		_ = c.socket.Close()
		c.socket = nil
	}
	socket, err := c.newSocket()
	if err != nil {
		c.log.WithError(err).Warn("cannot recreate sidecar socket")
		return
	}
	c.socket = socket
}

func (c *Client) Detect(ctx context.Context, frame types.Frame) (*types.LandmarkSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload, err := encodeRequest(frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", frame.Seq, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.socket == nil {
		c.reset()
		if c.socket == nil {
			return nil, fmt.Errorf("sidecar %s unavailable", c.opts.Endpoint)
		}
	}

	if _, err := c.socket.SendBytes(payload, 0); err != nil {
		c.reset()
		return nil, c.wrap("send", err)
	}
	reply, err := c.socket.RecvBytes(0)
	if err != nil {
		c.reset()
		return nil, c.wrap("receive", err)
	}

	set, seq, err := decodeReply(reply, frame.Captured)
	if err != nil {
		if set == nil {
			return nil, err
		}
		if c.errLog.Allow() {
			c.log.WithError(err).WithField("seq", seq).Warn("partial landmark reply")
		}
	}
	if seq != frame.Seq {
		return nil, fmt.Errorf("sidecar replied to seq %d, expected %d", seq, frame.Seq)
	}
	return set, nil
}

func (c *Client) wrap(op string, err error) error {
	if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
		return fmt.Errorf("sidecar %s %s: %w", op, c.opts.Endpoint, ErrTimeout)
	}
	return fmt.Errorf("sidecar %s %s: %w", op, c.opts.Endpoint, err)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.socket == nil {
		return nil
	}
	err := c.socket.Close()
	c.socket = nil
	return err
}
