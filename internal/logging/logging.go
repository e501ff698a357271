package logging

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *logrus.Logger
	once   sync.Once
)

type Fields = logrus.Fields

type Options struct {
	Debug  bool
	LogDir string
}

// New builds the process logger once. Later calls return the same logger
// and only adjust the level.
func New(opts Options) *logrus.Logger {
	once.Do(func() {
		logger = logrus.New()
		logger.SetFormatter(&formatter.Formatter{
			NoColors:        false,
			TimestampFormat: "15:04:05.000",
			HideKeys:        false,
			CallerFirst:     true,
			CustomCallerFormatter: func(f *runtime.Frame) string {
				s := strings.Split(f.Function, ".")
				funcName := s[len(s)-1]
				return fmt.Sprintf(" \x1b[%dm[%s:%d][%s()]", 34, path.Base(f.File), f.Line, funcName)
			},
		})

		writers := []io.Writer{os.Stderr}
		if os.Getenv("APP_ENV") != "test" && opts.LogDir != "" {
			writers = append(writers, &lumberjack.Logger{
				Filename:   filepath.Join(opts.LogDir, fmt.Sprintf("tracker-%s.log", time.Now().Format("2006-01-02"))),
				LocalTime:  true,
				Compress:   true,
				MaxSize:    50,
				MaxAge:     7,
				MaxBackups: 3,
			})
		}
		logger.SetOutput(io.MultiWriter(writers...))
		logger.SetReportCaller(true)
	})

	if opts.Debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger
}

// L returns the process logger, or logrus' standard logger before New runs.
func L() *logrus.Logger {
	if logger == nil {
		return logrus.StandardLogger()
	}
	return logger
}

// EveryN lets one of every n calls through. Hot loops use it to keep
// repeated failures from flooding the log.
type EveryN struct {
	n     uint64
	count atomic.Uint64
}

func NewEveryN(n int) *EveryN {
	if n < 1 {
		n = 1
	}
	return &EveryN{n: uint64(n)}
}

func (e *EveryN) Allow() bool {
	return e.count.Add(1)%e.n == 1 || e.n == 1
}

func (e *EveryN) Count() uint64 {
	return e.count.Load()
}
