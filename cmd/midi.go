package cmd

import (
	"errors"

	"github.com/vsariola/kontrol"
	"gitlab.com/gomidi/midi/v2"
)

// MIDIContext is the set of MIDI port operations the command line tools
// need. Without cgo it is a NullMIDIContext.
type MIDIContext interface {
	OutputPorts(yield func(string) bool)
	InputPorts(yield func(string) bool)
	OpenOutput(namePrefix string) (kontrol.EventSink[kontrol.Beats], error)
	Listen(namePrefix string, handle func(msg midi.Message, timestampms int32)) error
	Close()
}

type NullMIDIContext struct{}

var ErrNoMIDI = errors.New("MIDI ports are not available in this build (cgo disabled)")

func (NullMIDIContext) OutputPorts(yield func(string) bool) {}
func (NullMIDIContext) InputPorts(yield func(string) bool)  {}
func (NullMIDIContext) Close()                              {}

func (NullMIDIContext) OpenOutput(string) (kontrol.EventSink[kontrol.Beats], error) {
	return nil, ErrNoMIDI
}

func (NullMIDIContext) Listen(string, func(midi.Message, int32)) error {
	return ErrNoMIDI
}
