// Package midimap maps automation parameters of plain MIDI tracks to the
// MIDI messages that play them.
package midimap

import (
	"fmt"

	"github.com/vsariola/kontrol"
	"github.com/vsariola/kontrol/automation"
)

type (
	// TypeMap is the kontrol.TypeMap of a MIDI track: controllers, program
	// change, pitch bend and both kinds of pressure, plus track gain.
	TypeMap struct{}

	// ControlFactory creates the controls of a MIDI track. Lists start with
	// the interpolation given in Interpolation for their parameter type, or
	// with the default one of their descriptor.
	ControlFactory struct {
		TypeMap       kontrol.TypeMap
		Domain        kontrol.TimeDomain
		Interpolation map[kontrol.ParameterType]kontrol.InterpolationStyle
	}
)

// MaxGain is the upper bound of the track gain, about +6 dB.
const MaxGain = 2.0

func (TypeMap) TypeIsMIDI(t kontrol.ParameterType) bool { return t.IsMIDI() }

func (TypeMap) ParameterMIDIType(p kontrol.Parameter) byte {
	switch p.Type {
	case kontrol.MIDICCAutomation:
		return 0xB0
	case kontrol.MIDIProgramChangeAutomation:
		return 0xC0
	case kontrol.MIDIPitchBenderAutomation:
		return 0xE0
	case kontrol.MIDIChannelPressureAutomation:
		return 0xD0
	case kontrol.MIDINotePressureAutomation:
		return 0xA0
	}
	return 0
}

func (TypeMap) MIDIParameterType(buf []byte) kontrol.ParameterType {
	if len(buf) == 0 {
		return kontrol.NullAutomation
	}
	switch buf[0] & 0xF0 {
	case 0xB0:
		return kontrol.MIDICCAutomation
	case 0xC0:
		return kontrol.MIDIProgramChangeAutomation
	case 0xE0:
		return kontrol.MIDIPitchBenderAutomation
	case 0xD0:
		return kontrol.MIDIChannelPressureAutomation
	case 0xA0:
		return kontrol.MIDINotePressureAutomation
	}
	return kontrol.NullAutomation
}

func (TypeMap) Descriptor(p kontrol.Parameter) kontrol.ParameterDescriptor {
	switch p.Type {
	case kontrol.MIDICCAutomation, kontrol.MIDIProgramChangeAutomation, kontrol.MIDIChannelPressureAutomation, kontrol.MIDINotePressureAutomation:
		return kontrol.ParameterDescriptor{Lower: 0, Upper: 127, Normal: 0, RangeSteps: 128}
	case kontrol.MIDIPitchBenderAutomation:
		return kontrol.ParameterDescriptor{Lower: 0, Upper: 16383, Normal: 8192, RangeSteps: 16384}
	case kontrol.GainAutomation:
		return kontrol.ParameterDescriptor{Lower: 0, Upper: MaxGain, Normal: 1}
	}
	return kontrol.ParameterDescriptor{Lower: 0, Upper: 1, Normal: 0}
}

func (TypeMap) ToSymbol(p kontrol.Parameter) string {
	switch p.Type {
	case kontrol.MIDICCAutomation:
		return fmt.Sprintf("midicc-%d-%d", p.Channel, p.ID)
	case kontrol.MIDIProgramChangeAutomation:
		return fmt.Sprintf("midi-pgm-change-%d", p.Channel)
	case kontrol.MIDIPitchBenderAutomation:
		return fmt.Sprintf("midi-pitch-bender-%d", p.Channel)
	case kontrol.MIDIChannelPressureAutomation:
		return fmt.Sprintf("midi-channel-pressure-%d", p.Channel)
	case kontrol.MIDINotePressureAutomation:
		return fmt.Sprintf("midi-note-pressure-%d-%d", p.Channel, p.ID)
	case kontrol.GainAutomation:
		return "gain"
	}
	return fmt.Sprintf("%v-%d-%d", p.Type, p.Channel, p.ID)
}

// FromSymbol parses a symbol made by ToSymbol.
func (TypeMap) FromSymbol(sym string) (kontrol.Parameter, error) {
	var p kontrol.Parameter
	var ch uint8
	var id uint32
	switch {
	case sym == "gain":
		return kontrol.Parameter{Type: kontrol.GainAutomation}, nil
	case scan(sym, "midicc-%d-%d", &ch, &id):
		p = kontrol.Parameter{Type: kontrol.MIDICCAutomation, Channel: ch, ID: id}
	case scan(sym, "midi-pgm-change-%d", &ch):
		p = kontrol.Parameter{Type: kontrol.MIDIProgramChangeAutomation, Channel: ch}
	case scan(sym, "midi-pitch-bender-%d", &ch):
		p = kontrol.Parameter{Type: kontrol.MIDIPitchBenderAutomation, Channel: ch}
	case scan(sym, "midi-channel-pressure-%d", &ch):
		p = kontrol.Parameter{Type: kontrol.MIDIChannelPressureAutomation, Channel: ch}
	case scan(sym, "midi-note-pressure-%d-%d", &ch, &id):
		p = kontrol.Parameter{Type: kontrol.MIDINotePressureAutomation, Channel: ch, ID: id}
	default:
		return p, fmt.Errorf("unknown parameter symbol %q", sym)
	}
	if p.Channel >= 16 || p.ID > 127 {
		return kontrol.Parameter{}, fmt.Errorf("parameter symbol %q out of range", sym)
	}
	return p, nil
}

func scan(s, format string, args ...any) bool {
	n, err := fmt.Sscanf(s, format, args...)
	return err == nil && n == len(args)
}

// CreateControl returns a control of p with a new, empty list.
func (f *ControlFactory) CreateControl(p kontrol.Parameter) *automation.Control {
	tm := f.TypeMap
	if tm == nil {
		tm = TypeMap{}
	}
	desc := tm.Descriptor(p)
	l := automation.NewControlList(p, desc, f.Domain)
	if style, ok := f.Interpolation[p.Type]; ok {
		l.SetInterpolation(style)
	}
	return automation.NewControl(p, desc, l)
}
