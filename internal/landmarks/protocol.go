package landmarks

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/minagishl/vrchat-webcam-tracker/internal/types"
)

const (
	faceRows = 478
	poseRows = 33
	handRows = 21
)

type request struct {
	Type   string `cbor:"type"`
	Seq    uint64 `cbor:"seq"`
	Width  int    `cbor:"width"`
	Height int    `cbor:"height"`
	Format string `cbor:"format"`
	Data   []byte `cbor:"data"`
}

func encodeRequest(frame types.Frame) ([]byte, error) {
	return cbor.Marshal(request{
		Type:   "frame",
		Seq:    frame.Seq,
		Width:  frame.Width,
		Height: frame.Height,
		Format: "jpeg",
		Data:   frame.JPEG,
	})
}

// DecodeRequest parses a frame request as sent by Client.
func DecodeRequest(msg []byte) (types.Frame, error) {
	var req request
	if err := cbor.Unmarshal(msg, &req); err != nil {
		return types.Frame{}, fmt.Errorf("decode request: %w", err)
	}
	if req.Type != "frame" {
		return types.Frame{}, fmt.Errorf("unexpected request type %q", req.Type)
	}
	if req.Format != "jpeg" {
		return types.Frame{}, fmt.Errorf("unsupported frame format %q", req.Format)
	}
	return types.Frame{
		Seq:      req.Seq,
		Captured: time.Now(),
		Width:    req.Width,
		Height:   req.Height,
		JPEG:     req.Data,
	}, nil
}

// EncodeReply builds a landmarks reply for set. A nil set encodes as "no
// subject".
func EncodeReply(seq uint64, set *types.LandmarkSet) ([]byte, error) {
	msg := map[string]any{
		"type":    "landmarks",
		"seq":     seq,
		"subject": set != nil,
	}
	if set != nil {
		sections := []struct {
			key   string
			index map[int]types.LandmarkID
			size  int
		}{
			{key: "face", index: faceIndex, size: faceRows},
			{key: "pose", index: poseIndex, size: poseRows},
			{key: "left_hand", index: leftHandIndex, size: handRows},
			{key: "right_hand", index: rightHandIndex, size: handRows},
		}
		for _, section := range sections {
			if rows := rowsFor(set, section.index, section.size); rows != nil {
				msg[section.key] = float32Array(rows)
			}
		}
	}
	return cbor.Marshal(msg)
}

func float32Array(rows [][]float64) cbor.Tag {
	cols := len(rows[0])
	data := make([]byte, 0, len(rows)*cols*4)
	for _, row := range rows {
		for _, v := range row {
			data = binary.LittleEndian.AppendUint32(data, math.Float32bits(float32(v)))
		}
	}
	return cbor.Tag{
		Number: tagMultiDimArray,
		Content: []any{
			[]any{len(rows), cols},
			cbor.Tag{Number: tagFloat32LE, Content: data},
		},
	}
}

// decodeReply returns the subject's landmarks, or nil when the reply says
// nobody is in view or carries no usable point.
func decodeReply(msg []byte, captured time.Time) (*types.LandmarkSet, uint64, error) {
	var payload map[string]any
	if err := cbor.Unmarshal(msg, &payload); err != nil {
		return nil, 0, fmt.Errorf("decode reply: %w", err)
	}
	msgType, _ := payload["type"].(string)
	if msgType != "landmarks" {
		return nil, 0, fmt.Errorf("unexpected reply type %q", msgType)
	}
	seq, err := toUint64(payload["seq"])
	if err != nil {
		return nil, 0, fmt.Errorf("invalid seq: %w", err)
	}
	subject, _ := payload["subject"].(bool)
	if !subject {
		return nil, seq, nil
	}

	set := types.NewLandmarkSet(seq, captured)
	sections := []struct {
		key   string
		index map[int]types.LandmarkID
	}{
		{key: "face", index: faceIndex},
		{key: "pose", index: poseIndex},
		{key: "left_hand", index: leftHandIndex},
		{key: "right_hand", index: rightHandIndex},
	}
	var errs []error
	for _, section := range sections {
		rows, err := decodeRows(payload[section.key])
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section.key, err))
			continue
		}
		addRows(set, rows, section.index)
	}
	if set.Len() == 0 {
		return nil, seq, errors.Join(errs...)
	}
	return set, seq, errors.Join(errs...)
}
