package output

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

const (
	rawLogMagic     = "VRCWTLM1"
	rawHeaderSize   = 12
	maxRecordLength = 16 << 20
)

// rawRecord is the CBOR payload of one raw log entry.
type rawRecord struct {
	Seq      uint64                              `cbor:"seq"`
	Captured time.Time                           `cbor:"captured"`
	Subject  bool                                `cbor:"subject"`
	Points   map[types.LandmarkID]types.Keypoint `cbor:"points,omitempty"`
}

// RawLogWriter appends landmark sets to a binary file: the magic string,
// then per entry an 8 byte unix-nano timestamp, a 4 byte payload length
// (both little endian) and the CBOR payload.
type RawLogWriter struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *bufio.Writer
	enc  cbor.EncMode
	now  func() time.Time
}

func NewRawLogWriter(outputDir string, prefix string) (*RawLogWriter, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}
	enc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		return nil, err
	}
	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s_landmarks.bin", timestamp, prefix))
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriterSize(f, 256*1024)
	if _, err := w.WriteString(rawLogMagic); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &RawLogWriter{
		path: filename,
		f:    f,
		w:    w,
		enc:  enc,
		now:  time.Now,
	}, nil
}

func (r *RawLogWriter) Path() string {
	return r.path
}

// Record appends set. A nil set is recorded as a frame without a subject
// so replays keep the original timing.
func (r *RawLogWriter) Record(seq uint64, set *types.LandmarkSet) error {
	rec := rawRecord{Seq: seq}
	if set != nil {
		rec.Captured = set.Captured
		rec.Subject = true
		rec.Points = set.Points
	}
	payload, err := r.enc.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode landmark set %d: %w", seq, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return fmt.Errorf("raw log writer is closed")
	}
	var header [rawHeaderSize]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(r.now().UnixNano()))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(payload)))
	if _, err := r.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := r.w.Write(payload); err != nil {
		return err
	}
	return r.w.Flush()
}

func (r *RawLogWriter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	if err := r.w.Flush(); err != nil {
		_ = r.f.Close()
		r.w = nil
		return err
	}
	err := r.f.Close()
	r.w = nil
	return err
}

type RawEntry struct {
	Recorded time.Time
	Seq      uint64
	Set      *types.LandmarkSet
	Payload  []byte
}

type RawLogReader struct {
	f *os.File
	r *bufio.Reader
}

func OpenRawLog(path string) (*RawLogReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := bufio.NewReader(f)
	magic := make([]byte, len(rawLogMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != rawLogMagic {
		_ = f.Close()
		return nil, fmt.Errorf("unexpected magic %q", magic)
	}
	return &RawLogReader{f: f, r: r}, nil
}

// Next returns the next entry, or io.EOF after the last complete one. A
// truncated trailing entry is reported as io.ErrUnexpectedEOF.
func (r *RawLogReader) Next() (RawEntry, error) {
	var header [rawHeaderSize]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return RawEntry{}, io.EOF
		}
		return RawEntry{}, err
	}
	ts := int64(binary.LittleEndian.Uint64(header[:8]))
	length := binary.LittleEndian.Uint32(header[8:12])
	if length > maxRecordLength {
		return RawEntry{}, fmt.Errorf("record length %d exceeds limit", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return RawEntry{}, err
	}

	var rec rawRecord
	if err := cbor.Unmarshal(payload, &rec); err != nil {
		return RawEntry{}, fmt.Errorf("decode record: %w", err)
	}
	entry := RawEntry{
		Recorded: time.Unix(0, ts),
		Seq:      rec.Seq,
		Payload:  payload,
	}
	if rec.Subject {
		entry.Set = &types.LandmarkSet{Seq: rec.Seq, Captured: rec.Captured, Points: rec.Points}
		if entry.Set.Points == nil {
			entry.Set.Points = make(map[types.LandmarkID]types.Keypoint)
		}
	}
	return entry, nil
}

func (r *RawLogReader) Close() error {
	return r.f.Close()
}
