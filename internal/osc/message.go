package osc

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/hypebeast/go-osc/osc"
)

var (
	ErrInvalidAddress = errors.New("invalid OSC address")
	ErrNotConnected   = errors.New("OSC destination not connected")
	ErrInvalidValue   = errors.New("parameter value outside [0,1]")
)

var paramNamePattern = regexp.MustCompile(`^[A-Za-z0-9_./-]+$`)

func parameterMessage(prefix, name string, value float64) (*osc.Message, error) {
	if !paramNamePattern.MatchString(name) {
		return nil, fmt.Errorf("%w: parameter %q", ErrInvalidAddress, name)
	}
	return osc.NewMessage(prefix+name, float32(value)), nil
}

func trackerMessages(index int, x, y, z float64) []*osc.Message {
	base := fmt.Sprintf("/tracking/trackers/%d", index)
	return []*osc.Message{
		osc.NewMessage(base+"/position", float32(x), float32(y), float32(z)),
		osc.NewMessage(base+"/rotation", float32(0), float32(0), float32(0)),
	}
}
