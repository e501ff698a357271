package output

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

func sampleSet(seq uint64) *types.LandmarkSet {
	set := types.NewLandmarkSet(seq, time.Unix(1700000000, 123456789).UTC())
	set.Points[types.Nose] = types.Keypoint{X: 0.5, Y: 0.4, Z: -0.1, Visibility: 0.9}
	set.Points[types.HandLandmark(types.Left, "wrist")] = types.Keypoint{X: 0.7, Y: 0.8, Visibility: 1}
	return set
}

func TestRawLogRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewRawLogWriter(dir, "session")
	require.NoError(t, err)

	first := sampleSet(1)
	require.NoError(t, w.Record(1, first))
	require.NoError(t, w.Record(2, nil))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Error(t, w.Record(3, first))

	r, err := OpenRawLog(w.Path())
	require.NoError(t, err)
	defer r.Close()

	entry, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), entry.Seq)
	require.NotNil(t, entry.Set)
	assert.True(t, first.Captured.Equal(entry.Set.Captured))
	assert.Equal(t, first.Points, entry.Set.Points)
	assert.NotEmpty(t, entry.Payload)
	assert.False(t, entry.Recorded.IsZero())

	entry, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), entry.Seq)
	assert.Nil(t, entry.Set)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestRawLogTruncated(t *testing.T) {
	dir := t.TempDir()
	w, err := NewRawLogWriter(dir, "cut")
	require.NoError(t, err)
	require.NoError(t, w.Record(1, sampleSet(1)))
	require.NoError(t, w.Close())

	info, err := os.Stat(w.Path())
	require.NoError(t, err)
	require.NoError(t, os.Truncate(w.Path(), info.Size()-3))

	r, err := OpenRawLog(w.Path())
	require.NoError(t, err)
	defer r.Close()
	_, err = r.Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestOpenRawLogRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.bin")
	require.NoError(t, os.WriteFile(path, []byte("NOTALOG1xxxx"), 0o644))
	_, err := OpenRawLog(path)
	assert.Error(t, err)

	_, err = OpenRawLog(filepath.Join(t.TempDir(), "missing.bin"))
	assert.Error(t, err)
}

func TestParamLog(t *testing.T) {
	dir := t.TempDir()
	p, err := NewParamLog(dir, "session")
	require.NoError(t, err)

	at := time.Unix(10, 500000000)
	require.NoError(t, p.Write(7, at, types.ExpressionFrame{"MouthOpen": 0.5, "LeftEyeBlink": 1}))
	require.NoError(t, p.Write(8, at, types.ExpressionFrame{}))
	require.NoError(t, p.Close())
	assert.Error(t, p.Write(9, at, types.ExpressionFrame{"MouthOpen": 0}))

	f, err := os.Open(p.Path())
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"seq", "timestamp", "parameter", "value"},
		{"7", "10.500000", "LeftEyeBlink", "1.000000"},
		{"7", "10.500000", "MouthOpen", "0.500000"},
	}, rows)
}
