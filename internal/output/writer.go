package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

var paramLogHeader = []string{"seq", "timestamp", "parameter", "value"}

// ParamLog writes every emitted parameter value as one CSV row.
type ParamLog struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *csv.Writer
}

func NewParamLog(outputDir string, prefix string) (*ParamLog, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}
	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s_params.csv", timestamp, prefix))
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	if err := w.Write(paramLogHeader); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &ParamLog{path: filename, f: f, w: w}, nil
}

func (p *ParamLog) Path() string {
	return p.path
}

func (p *ParamLog) Write(seq uint64, at time.Time, frame types.ExpressionFrame) error {
	if len(frame) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.w == nil {
		return fmt.Errorf("param log is closed")
	}
	seqText := strconv.FormatUint(seq, 10)
	ts := strconv.FormatFloat(float64(at.UnixNano())/1e9, 'f', 6, 64)
	for _, name := range frame.Names() {
		row := []string{seqText, ts, name, strconv.FormatFloat(frame[name], 'f', 6, 64)}
		if err := p.w.Write(row); err != nil {
			return err
		}
	}
	p.w.Flush()
	return p.w.Error()
}

func (p *ParamLog) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.w == nil {
		return nil
	}
	p.w.Flush()
	err := p.w.Error()
	if cerr := p.f.Close(); err == nil {
		err = cerr
	}
	p.w = nil
	return err
}
