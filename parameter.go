package kontrol

import (
	"cmp"
	"fmt"
	"math"
)

type (
	// Parameter identifies one automatable dimension of a track, e.g. "CC 7
	// on channel 2". It is comparable and used as a map key.
	Parameter struct {
		Type    ParameterType
		ID      uint32 `yaml:",omitempty"`
		Channel uint8  `yaml:",omitempty"`
	}

	ParameterType int

	// ParameterDescriptor describes the value range of a Parameter. Normal is
	// the default value, used e.g. when evaluating an empty automation list.
	// RangeSteps > 1 means the parameter is quantized to that many steps.
	ParameterDescriptor struct {
		Lower       float64
		Upper       float64
		Normal      float64
		Toggled     bool `yaml:",omitempty"`
		Logarithmic bool `yaml:",omitempty"`
		RangeSteps  int  `yaml:",omitempty"`
	}

	// InterpolationStyle tells how an automation curve is evaluated between
	// two control points.
	InterpolationStyle int

	// ControlEvent is one control point of an automation curve. Coeff holds
	// spline coefficients owned and maintained by a Curve; it is nil for all
	// other interpolation styles.
	ControlEvent struct {
		When  Time
		Value float64
		Coeff []float64 `yaml:"-" json:"-"`
	}
)

const (
	NullAutomation ParameterType = iota
	GainAutomation
	MIDICCAutomation
	MIDIProgramChangeAutomation
	MIDIPitchBenderAutomation
	MIDIChannelPressureAutomation
	MIDINotePressureAutomation
	PluginAutomation
)

const (
	Discrete InterpolationStyle = iota
	Logarithmic
	Linear
	Curved
	Exponential
)

var parameterTypeNames = [...]string{
	NullAutomation:                "null",
	GainAutomation:                "gain",
	MIDICCAutomation:              "cc",
	MIDIProgramChangeAutomation:   "program",
	MIDIPitchBenderAutomation:     "pitchbend",
	MIDIChannelPressureAutomation: "pressure",
	MIDINotePressureAutomation:    "notepressure",
	PluginAutomation:              "plugin",
}

var interpolationNames = [...]string{
	Discrete:    "discrete",
	Logarithmic: "logarithmic",
	Linear:      "linear",
	Curved:      "curved",
	Exponential: "exponential",
}

func (t ParameterType) String() string {
	if t >= 0 && int(t) < len(parameterTypeNames) {
		return parameterTypeNames[t]
	}
	return fmt.Sprintf("ParameterType(%d)", int(t))
}

func (t ParameterType) MarshalText() ([]byte, error) {
	if t < 0 || int(t) >= len(parameterTypeNames) {
		return nil, fmt.Errorf("unknown parameter type %d", int(t))
	}
	return []byte(parameterTypeNames[t]), nil
}

func (t *ParameterType) UnmarshalText(text []byte) error {
	for i, n := range parameterTypeNames {
		if n == string(text) {
			*t = ParameterType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown parameter type %q", string(text))
}

// IsMIDI reports whether the parameter type maps directly to a MIDI channel
// message.
func (t ParameterType) IsMIDI() bool {
	return t >= MIDICCAutomation && t <= MIDINotePressureAutomation
}

func (s InterpolationStyle) String() string {
	if s >= 0 && int(s) < len(interpolationNames) {
		return interpolationNames[s]
	}
	return fmt.Sprintf("InterpolationStyle(%d)", int(s))
}

func (s InterpolationStyle) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(interpolationNames) {
		return nil, fmt.Errorf("unknown interpolation style %d", int(s))
	}
	return []byte(interpolationNames[s]), nil
}

func (s *InterpolationStyle) UnmarshalText(text []byte) error {
	for i, n := range interpolationNames {
		if n == string(text) {
			*s = InterpolationStyle(i)
			return nil
		}
	}
	return fmt.Errorf("unknown interpolation style %q", string(text))
}

func (p Parameter) String() string {
	return fmt.Sprintf("%v/%d/%d", p.Type, p.Channel, p.ID)
}

// Compare orders parameters by type, then channel, then id.
func (p Parameter) Compare(q Parameter) int {
	switch {
	case p.Type != q.Type:
		return cmp.Compare(p.Type, q.Type)
	case p.Channel != q.Channel:
		return cmp.Compare(p.Channel, q.Channel)
	}
	return cmp.Compare(p.ID, q.ID)
}

// Clamp limits v to [Lower, Upper].
func (d ParameterDescriptor) Clamp(v float64) float64 {
	return math.Max(d.Lower, math.Min(d.Upper, v))
}

// DefaultInterpolation returns the interpolation a new automation list for
// this parameter starts with.
func (d ParameterDescriptor) DefaultInterpolation() InterpolationStyle {
	switch {
	case d.Toggled:
		return Discrete
	case d.Logarithmic:
		return Logarithmic
	}
	return Linear
}

// ToInterface maps a value in [Lower, Upper] to a normalized position in
// [0, 1], as a fader or knob would display it.
func (d ParameterDescriptor) ToInterface(v float64) float64 {
	if d.Upper == d.Lower {
		return 0
	}
	v = d.Clamp(v)
	switch {
	case d.Toggled:
		if v >= d.Lower+(d.Upper-d.Lower)/2 {
			return 1
		}
		return 0
	case d.Logarithmic && d.Lower > 0:
		return math.Log(v/d.Lower) / math.Log(d.Upper/d.Lower)
	}
	return (v - d.Lower) / (d.Upper - d.Lower)
}

// FromInterface is the inverse of ToInterface. The result is snapped to
// RangeSteps when the parameter is stepped.
func (d ParameterDescriptor) FromInterface(p float64) float64 {
	p = math.Max(0, math.Min(1, p))
	var v float64
	switch {
	case d.Toggled:
		if p >= 0.5 {
			return d.Upper
		}
		return d.Lower
	case d.Logarithmic && d.Lower > 0:
		v = d.Lower * math.Pow(d.Upper/d.Lower, p)
	default:
		v = d.Lower + p*(d.Upper-d.Lower)
	}
	if d.RangeSteps > 1 {
		step := (d.Upper - d.Lower) / float64(d.RangeSteps-1)
		v = d.Lower + math.Round((v-d.Lower)/step)*step
	}
	return d.Clamp(v)
}
