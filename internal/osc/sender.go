package osc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/minagishl/vrchat-webcam-tracker/internal/config"
	"github.com/minagishl/vrchat-webcam-tracker/internal/logging"
	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

const redialInterval = time.Second

type Config struct {
	Destination    types.Destination
	AddressPrefix  string
	SendTimeout    time.Duration
	MaxSendRate    float64
	OnlyChanged    bool
	ChangeEpsilon  float64
	ResendInterval time.Duration
	LogEvery       int
}

func ConfigFromTuning(dest types.Destination, t config.SenderTuning) Config {
	return Config{
		Destination:    dest,
		AddressPrefix:  t.AddressPrefix,
		SendTimeout:    t.SendTimeout.Duration,
		MaxSendRate:    t.MaxSendRate,
		OnlyChanged:    t.OnlyChanged,
		ChangeEpsilon:  t.ChangeEpsilon,
		ResendInterval: t.ResendInterval.Duration,
		LogEvery:       100,
	}
}

type Stats struct {
	Sent      uint64 `json:"sent_total"`
	Errors    uint64 `json:"send_errors_total"`
	Dropped   uint64 `json:"frames_dropped_total"`
	Paced     uint64 `json:"frames_paced_total"`
	Unchanged uint64 `json:"unchanged_skipped_total"`
	Invalid   uint64 `json:"invalid_skipped_total"`
}

// Sender writes parameters as individual OSC datagrams. Delivery is best
// effort: failed writes are counted and logged, never retried.
type Sender struct {
	cfg     Config
	log     *logrus.Logger
	errLog  *logging.EveryN
	limiter *rate.Limiter
	queue   chan types.ExpressionFrame
	now     func() time.Time

	mu       sync.Mutex
	conn     *net.UDPConn
	lastDial time.Time
	lastSent map[string]float64
	lastFull time.Time
	closed   bool

	sent      atomic.Uint64
	errors    atomic.Uint64
	dropped   atomic.Uint64
	paced     atomic.Uint64
	unchanged atomic.Uint64
	invalid   atomic.Uint64
}

func New(cfg Config, log *logrus.Logger) (*Sender, error) {
	if err := cfg.Destination.Validate(); err != nil {
		return nil, err
	}
	if cfg.AddressPrefix == "" {
		cfg.AddressPrefix = "/avatar/parameters/"
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Millisecond
	}
	if cfg.ResendInterval <= 0 {
		cfg.ResendInterval = time.Second
	}
	if log == nil {
		log = logging.L()
	}
	s := &Sender{
		cfg:      cfg,
		log:      log,
		errLog:   logging.NewEveryN(cfg.LogEvery),
		queue:    make(chan types.ExpressionFrame, 1),
		now:      time.Now,
		lastSent: make(map[string]float64),
	}
	if cfg.MaxSendRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.MaxSendRate), 1)
	}

	s.mu.Lock()
	s.dialLocked()
	s.mu.Unlock()
	log.WithFields(logrus.Fields{"destination": cfg.Destination.String()}).Info("OSC sender initialized")
	return s, nil
}

func (s *Sender) dialLocked() *net.UDPConn {
	if s.conn != nil || s.closed {
		return s.conn
	}
	now := s.now()
	if !s.lastDial.IsZero() && now.Sub(s.lastDial) < redialInterval {
		return nil
	}
	s.lastDial = now
	raddr, err := net.ResolveUDPAddr("udp", s.cfg.Destination.String())
	if err != nil {
		s.log.WithError(err).WithField("destination", s.cfg.Destination.String()).Warn("cannot resolve OSC destination")
		return nil
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		s.log.WithError(err).WithField("destination", s.cfg.Destination.String()).Warn("cannot open OSC socket")
		return nil
	}
	s.conn = conn
	return conn
}

func (s *Sender) write(conn *net.UDPConn, msg *osc.Message) error {
	data, err := msg.MarshalBinary()
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.SendTimeout)); err != nil {
		return err
	}
	_, err = conn.Write(data)
	return err
}

// SendFrame sends every parameter of frame, one datagram each, in name
// order. The returned error joins the individual failures; callers log it
// and carry on.
func (s *Sender) SendFrame(frame types.ExpressionFrame) error {
	if len(frame) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	conn := s.dialLocked()
	if conn == nil {
		s.dropped.Add(1)
		return ErrNotConnected
	}

	now := s.now()
	full := !s.cfg.OnlyChanged || now.Sub(s.lastFull) >= s.cfg.ResendInterval
	if full {
		s.lastFull = now
	}

	var errs []error
	for _, name := range frame.Names() {
		value := frame[name]
		if math.IsNaN(value) || value < 0 || value > 1 {
			s.invalid.Add(1)
			continue
		}
		if !full {
			if prev, ok := s.lastSent[name]; ok && math.Abs(prev-value) < s.cfg.ChangeEpsilon {
				s.unchanged.Add(1)
				continue
			}
		}
		msg, err := parameterMessage(s.cfg.AddressPrefix, name, value)
		if err != nil {
			s.invalid.Add(1)
			errs = append(errs, err)
			continue
		}
		if err := s.write(conn, msg); err != nil {
			s.errors.Add(1)
			errs = append(errs, fmt.Errorf("send %s: %w", msg.Address, err))
			continue
		}
		s.sent.Add(1)
		s.lastSent[name] = value
	}
	return errors.Join(errs...)
}

// Enqueue hands frame to the Run loop without blocking. Only the newest
// frame is kept; frames over the configured send rate are skipped.
func (s *Sender) Enqueue(frame types.ExpressionFrame) bool {
	if len(frame) == 0 {
		return false
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.paced.Add(1)
		return false
	}
	select {
	case s.queue <- frame:
		return true
	default:
	}
	select {
	case <-s.queue:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.queue <- frame:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Run drains the queue until ctx is done.
func (s *Sender) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-s.queue:
			if err := s.SendFrame(frame); err != nil && s.errLog.Allow() {
				s.log.WithError(err).WithField("destination", s.cfg.Destination.String()).Warn("OSC send failed")
			}
		}
	}
}

// SendParameter sends a single value, bypassing change detection. Values
// must lie in [0,1] like those of SendFrame.
func (s *Sender) SendParameter(name string, value float64) error {
	if math.IsNaN(value) || value < 0 || value > 1 {
		s.invalid.Add(1)
		return fmt.Errorf("%w: %q = %v", ErrInvalidValue, name, value)
	}
	msg, err := parameterMessage(s.cfg.AddressPrefix, name, value)
	if err != nil {
		s.invalid.Add(1)
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conn := s.dialLocked()
	if conn == nil {
		return ErrNotConnected
	}
	if err := s.write(conn, msg); err != nil {
		s.errors.Add(1)
		return fmt.Errorf("send %s: %w", msg.Address, err)
	}
	s.sent.Add(1)
	s.lastSent[name] = value
	return nil
}

// TestConnection sends TestConnection = 1.0. UDP gives no acknowledgement,
// so success only means the datagram left this host.
func (s *Sender) TestConnection() error {
	return s.SendParameter("TestConnection", 1.0)
}

// SendTrackers sends /tracking/trackers/<i>/position and a zero rotation
// for every tracker in positions.
func (s *Sender) SendTrackers(positions map[int]types.Vec3) error {
	if len(positions) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(positions))
	for i := range positions {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	s.mu.Lock()
	defer s.mu.Unlock()
	conn := s.dialLocked()
	if conn == nil {
		return ErrNotConnected
	}
	var errs []error
	for _, i := range indexes {
		p := positions[i]
		for _, msg := range trackerMessages(i, p.X, p.Y, p.Z) {
			if err := s.write(conn, msg); err != nil {
				s.errors.Add(1)
				errs = append(errs, fmt.Errorf("send %s: %w", msg.Address, err))
				continue
			}
			s.sent.Add(1)
		}
	}
	return errors.Join(errs...)
}

func (s *Sender) Stats() Stats {
	return Stats{
		Sent:      s.sent.Load(),
		Errors:    s.errors.Load(),
		Dropped:   s.dropped.Load(),
		Paced:     s.paced.Load(),
		Unchanged: s.unchanged.Load(),
		Invalid:   s.invalid.Load(),
	}
}

func (s *Sender) Destination() types.Destination {
	return s.cfg.Destination
}

func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
