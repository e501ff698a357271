package landmarks

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func float32Bytes(values ...float32) []byte {
	out := make([]byte, 0, len(values)*4)
	for _, v := range values {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}

func TestDecodeMultiDimArrayFloat32(t *testing.T) {
	value := cbor.Tag{
		Number: tagMultiDimArray,
		Content: []any{
			[]any{uint64(2), uint64(3)},
			cbor.Tag{Number: tagFloat32LE, Content: float32Bytes(0.5, 0.25, 0, 1, 0.75, -0.5)},
		},
	}

	got, err := decodeRows(value)
	require.NoError(t, err)

	want := [][]float64{{0.5, 0.25, 0}, {1, 0.75, -0.5}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("decodeRows mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRowsSurvivesWireRoundTrip(t *testing.T) {
	encoded, err := cbor.Marshal(map[string]any{
		"typed":  float32Array([][]float64{{0.5, 0.5, 0, 1}}),
		"nested": []any{[]any{0.5, 0.25, 0.0}, []any{1, 0, 0, 0.5}},
	})
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, cbor.Unmarshal(encoded, &payload))

	typed, err := decodeRows(payload["typed"])
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.5, 0.5, 0, 1}}, typed)

	nested, err := decodeRows(payload["nested"])
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.5, 0.25, 0}, {1, 0, 0, 0.5}}, nested)
}

func TestDecodeRowsRejects(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{
			name: "dimension mismatch",
			value: cbor.Tag{Number: tagMultiDimArray, Content: []any{
				[]any{uint64(2), uint64(3)},
				cbor.Tag{Number: tagFloat32LE, Content: float32Bytes(1, 2, 3)},
			}},
		},
		{
			name: "two columns",
			value: cbor.Tag{Number: tagMultiDimArray, Content: []any{
				[]any{uint64(1), uint64(2)},
				cbor.Tag{Number: tagFloat32LE, Content: float32Bytes(1, 2)},
			}},
		},
		{
			name: "integer typed array",
			value: cbor.Tag{Number: tagMultiDimArray, Content: []any{
				[]any{uint64(1), uint64(3)},
				cbor.Tag{Number: 64, Content: []byte{1, 2, 3}},
			}},
		},
		{
			name: "row count overflows payload",
			value: cbor.Tag{Number: tagMultiDimArray, Content: []any{
				[]any{uint64(1) << 62, uint64(4)},
				cbor.Tag{Number: tagFloat32LE, Content: []byte{}},
			}},
		},
		{
			name: "fractional dimension",
			value: cbor.Tag{Number: tagMultiDimArray, Content: []any{
				[]any{1.5, uint64(3)},
				cbor.Tag{Number: tagFloat32LE, Content: float32Bytes(1, 2, 3)},
			}},
		},
		{
			name: "NaN dimension",
			value: cbor.Tag{Number: tagMultiDimArray, Content: []any{
				[]any{math.NaN(), uint64(3)},
				cbor.Tag{Number: tagFloat32LE, Content: float32Bytes(1, 2, 3)},
			}},
		},
		{
			name: "negative dimension",
			value: cbor.Tag{Number: tagMultiDimArray, Content: []any{
				[]any{int64(-1), uint64(3)},
				cbor.Tag{Number: tagFloat32LE, Content: float32Bytes(1, 2, 3)},
			}},
		},
		{name: "wrong tag", value: cbor.Tag{Number: 41, Content: []any{}}},
		{name: "ragged nested", value: []any{[]any{1.0, 2.0}}},
		{name: "non numeric", value: []any{[]any{1.0, "y", 3.0}}},
		{name: "scalar", value: 3.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeRows(tt.value)
			assert.Error(t, err)
		})
	}
}

func TestDecodeRowsNil(t *testing.T) {
	rows, err := decodeRows(nil)
	require.NoError(t, err)
	assert.Nil(t, rows)
}
