package landmarks

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

const (
	tagMultiDimArray = 40
	tagFloat32LE     = 85
	tagFloat64LE     = 86
)

// decodeRows accepts either a tag-40 multidim array over a float typed
// array or a plain nested array, and returns rows of 3 or 4 columns.
func decodeRows(value any) ([][]float64, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case cbor.Tag:
		return decodeMultiDimArray(v)
	case []any:
		return decodeNested(v)
	default:
		return nil, fmt.Errorf("unsupported landmark array %T", value)
	}
}

func decodeMultiDimArray(tag cbor.Tag) ([][]float64, error) {
	if tag.Number != tagMultiDimArray {
		return nil, fmt.Errorf("expected multidim tag 40, got %d", tag.Number)
	}
	items, ok := tag.Content.([]any)
	if !ok || len(items) != 2 {
		return nil, errors.New("invalid multidim array content")
	}
	dims, ok := items[0].([]any)
	if !ok || len(dims) != 2 {
		return nil, errors.New("invalid multidim dimensions")
	}
	rows, err := toInt(dims[0])
	if err != nil {
		return nil, err
	}
	cols, err := toInt(dims[1])
	if err != nil {
		return nil, err
	}
	if err := checkCols(cols); err != nil {
		return nil, err
	}
	flat, err := decodeTypedArray(items[1])
	if err != nil {
		return nil, err
	}
	return reshape(flat, rows, cols)
}

func decodeTypedArray(value any) ([]float64, error) {
	tag, ok := value.(cbor.Tag)
	if !ok {
		return nil, errors.New("expected typed array tag")
	}
	data, ok := tag.Content.([]byte)
	if !ok {
		return nil, fmt.Errorf("unsupported typed array content %T", tag.Content)
	}
	switch tag.Number {
	case tagFloat32LE:
		return bytesToFloat32(data), nil
	case tagFloat64LE:
		return bytesToFloat64(data), nil
	default:
		return nil, fmt.Errorf("unsupported typed array tag %d", tag.Number)
	}
}

func bytesToFloat32(data []byte) []float64 {
	out := make([]float64, len(data)/4)
	for i := 0; i < len(out); i++ {
		bits := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		out[i] = float64(math.Float32frombits(bits))
	}
	return out
}

func bytesToFloat64(data []byte) []float64 {
	out := make([]float64, len(data)/8)
	for i := 0; i < len(out); i++ {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8 : i*8+8]))
	}
	return out
}

func reshape(flat []float64, rows, cols int) ([][]float64, error) {
	if rows < 0 || cols <= 0 || rows > len(flat)/cols || rows*cols != len(flat) {
		return nil, fmt.Errorf("dimension mismatch: %dx%d for %d values", rows, cols, len(flat))
	}
	out := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		row := make([]float64, cols)
		copy(row, flat[r*cols:(r+1)*cols])
		out[r] = row
	}
	return out, nil
}

func decodeNested(items []any) ([][]float64, error) {
	out := make([][]float64, len(items))
	for r, item := range items {
		cells, ok := item.([]any)
		if !ok {
			return nil, fmt.Errorf("row %d: expected array, got %T", r, item)
		}
		if err := checkCols(len(cells)); err != nil {
			return nil, fmt.Errorf("row %d: %w", r, err)
		}
		row := make([]float64, len(cells))
		for c, cell := range cells {
			v, err := toFloat(cell)
			if err != nil {
				return nil, fmt.Errorf("row %d col %d: %w", r, c, err)
			}
			row[c] = v
		}
		out[r] = row
	}
	return out, nil
}

func checkCols(cols int) error {
	if cols != 3 && cols != 4 {
		return fmt.Errorf("expected 3 or 4 columns, got %d", cols)
	}
	return nil
}

// toInt reads a non-negative array dimension.
func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		if n < 0 || n > math.MaxInt32 {
			return 0, fmt.Errorf("dimension %d out of range", n)
		}
		return n, nil
	case int64:
		if n < 0 || n > math.MaxInt32 {
			return 0, fmt.Errorf("dimension %d out of range", n)
		}
		return int(n), nil
	case uint64:
		if n > math.MaxInt32 {
			return 0, fmt.Errorf("dimension %d out of range", n)
		}
		return int(n), nil
	case float64:
		if math.IsNaN(n) || n < 0 || n > math.MaxInt32 || n != math.Trunc(n) {
			return 0, fmt.Errorf("invalid dimension %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("unsupported int type %T", v)
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("unsupported float type %T", v)
	}
}

func toUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return uint64(n), nil
	case int:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("unsupported uint type %T", v)
	}
}
