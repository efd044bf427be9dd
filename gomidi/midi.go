// Package gomidi connects sequences to the MIDI ports of the system through
// the rtmidi driver. It needs cgo.
package gomidi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vsariola/kontrol"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

type (
	RTMIDIContext struct {
		driver     *rtmididrv.Driver
		currentOut drivers.Out
		currentIn  drivers.In
		stopListen func()
	}

	// RTMIDIOutput is an open output port. It sends every event written to
	// it immediately; the caller does the timing.
	RTMIDIOutput struct {
		out drivers.Out
	}
)

var ErrNoDriver = errors.New("no MIDI driver available")

// NewContext opens the driver. If that fails, the context has no ports.
func NewContext() *RTMIDIContext {
	m := RTMIDIContext{}
	// there's not much we can do if this fails, so just use m.driver = nil to
	// indicate no driver available
	m.driver, _ = rtmididrv.New()
	return &m
}

// OutputPorts yields the names of the output ports.
func (m *RTMIDIContext) OutputPorts(yield func(string) bool) {
	if m.driver == nil {
		return
	}
	outs, err := m.driver.Outs()
	if err != nil {
		return
	}
	for _, out := range outs {
		if !yield(out.String()) {
			break
		}
	}
}

// InputPorts yields the names of the input ports.
func (m *RTMIDIContext) InputPorts(yield func(string) bool) {
	if m.driver == nil {
		return
	}
	ins, err := m.driver.Ins()
	if err != nil {
		return
	}
	for _, in := range ins {
		if !yield(in.String()) {
			break
		}
	}
}

// OpenOutput opens the first output port whose name starts with
// namePrefix, closing the currently open one. An empty prefix takes the
// first port.
func (m *RTMIDIContext) OpenOutput(namePrefix string) (kontrol.EventSink[kontrol.Beats], error) {
	if m.driver == nil {
		return nil, ErrNoDriver
	}
	outs, err := m.driver.Outs()
	if err != nil {
		return nil, fmt.Errorf("listing MIDI outputs failed: %w", err)
	}
	for _, out := range outs {
		if !strings.HasPrefix(out.String(), namePrefix) {
			continue
		}
		if m.currentOut == out {
			return &RTMIDIOutput{out: out}, nil
		}
		if m.currentOut != nil && m.currentOut.IsOpen() {
			m.currentOut.Close()
		}
		m.currentOut = out
		if err := out.Open(); err != nil {
			m.currentOut = nil
			return nil, fmt.Errorf("opening MIDI output failed: %w", err)
		}
		return &RTMIDIOutput{out: out}, nil
	}
	return nil, fmt.Errorf("could not find a MIDI output starting with %q", namePrefix)
}

// Listen opens the first input port whose name starts with namePrefix and
// passes its messages to handle until the context is closed or another
// input is opened.
func (m *RTMIDIContext) Listen(namePrefix string, handle func(msg midi.Message, timestampms int32)) error {
	if m.driver == nil {
		return ErrNoDriver
	}
	ins, err := m.driver.Ins()
	if err != nil {
		return fmt.Errorf("listing MIDI inputs failed: %w", err)
	}
	for _, in := range ins {
		if !strings.HasPrefix(in.String(), namePrefix) {
			continue
		}
		m.stopListening()
		if err := in.Open(); err != nil {
			return fmt.Errorf("opening MIDI input failed: %w", err)
		}
		stop, err := midi.ListenTo(in, handle, midi.UseSysEx())
		if err != nil {
			in.Close()
			return fmt.Errorf("listening to MIDI input failed: %w", err)
		}
		m.currentIn, m.stopListen = in, stop
		return nil
	}
	return fmt.Errorf("could not find a MIDI input starting with %q", namePrefix)
}

func (m *RTMIDIContext) stopListening() {
	if m.stopListen != nil {
		m.stopListen()
		m.stopListen = nil
	}
	if m.currentIn != nil && m.currentIn.IsOpen() {
		m.currentIn.Close()
	}
	m.currentIn = nil
}

func (m *RTMIDIContext) Close() {
	if m.driver == nil {
		return
	}
	m.stopListening()
	if m.currentOut != nil && m.currentOut.IsOpen() {
		m.currentOut.Close()
	}
	m.driver.Close()
}

func (o *RTMIDIOutput) Write(time kontrol.Beats, typ kontrol.EventType, buf []byte) (int, error) {
	if err := o.out.Send(buf); err != nil {
		return 0, fmt.Errorf("sending MIDI failed: %w", err)
	}
	return len(buf), nil
}

func (o *RTMIDIOutput) String() string {
	return o.out.String()
}
