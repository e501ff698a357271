package mapping

import "github.com/minagishl/vrchat-webcam-tracker/internal/types"

// Smoother is an exponential moving average keyed by parameter name:
// next = alpha*raw + (1-alpha)*previous. The first value of a parameter
// passes through unchanged. Parameters absent from a frame keep their
// previous value for later frames.
type Smoother struct {
	alpha    float64
	previous map[string]float64
}

func NewSmoother(alpha float64) *Smoother {
	if alpha <= 0 || alpha > 1 {
		alpha = 1
	}
	return &Smoother{
		alpha:    alpha,
		previous: make(map[string]float64),
	}
}

func (s *Smoother) Apply(raw types.ExpressionFrame) types.ExpressionFrame {
	out := make(types.ExpressionFrame, len(raw))
	for name, value := range raw {
		if prev, ok := s.previous[name]; ok {
			value = s.alpha*value + (1-s.alpha)*prev
		}
		s.previous[name] = value
		out[name] = value
	}
	return out
}

func (s *Smoother) Reset() {
	s.previous = make(map[string]float64)
}
