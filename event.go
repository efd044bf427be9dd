package kontrol

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

type (
	// EventType tags the payload of an Event.
	EventType int

	// Event is a timestamped, flattened event. For MIDIEvent the Buffer is a
	// complete MIDI message, including the status byte; for sysex it
	// includes the 0xF0 and 0xF7 framing. ID is an opaque identifier of the
	// note, patch change or sysex the event came from, or -1.
	Event[T Timestamp] struct {
		Time   T
		Type   EventType
		Buffer midi.Message
		ID     int
	}

	// EventSink is implemented by anything that consumes a stream of events,
	// for example a recorder or a MIDI output port. Write returns the number
	// of bytes consumed.
	EventSink[T Timestamp] interface {
		Write(time T, typ EventType, buf []byte) (int, error)
	}

	// EventRecorder is an EventSink keeping the events in memory, mostly
	// useful in tests and for dumping a merged stream.
	EventRecorder[T Timestamp] struct {
		Events []Event[T]
	}
)

const (
	NoEventType EventType = iota
	MIDIEvent
	LiveMIDIEvent
)

func (t EventType) String() string {
	switch t {
	case NoEventType:
		return "none"
	case MIDIEvent:
		return "midi"
	case LiveMIDIEvent:
		return "live-midi"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// IsNoteOn reports whether the event starts a note. A note-on with velocity
// zero is a note-off.
func (e Event[T]) IsNoteOn() bool {
	var ch, key, vel uint8
	return e.Buffer.GetNoteOn(&ch, &key, &vel) && vel > 0
}

// IsNoteOff reports whether the event ends a note.
func (e Event[T]) IsNoteOff() bool {
	var ch, key, vel uint8
	if e.Buffer.GetNoteOff(&ch, &key, &vel) {
		return true
	}
	return e.Buffer.GetNoteOn(&ch, &key, &vel) && vel == 0
}

// IsSysEx reports whether the buffer is a system exclusive message.
func (e Event[T]) IsSysEx() bool {
	return len(e.Buffer) > 0 && e.Buffer[0] == 0xF0
}

// Channel returns the MIDI channel of a channel message, or -1.
func (e Event[T]) Channel() int {
	if len(e.Buffer) == 0 || e.Buffer[0] < 0x80 || e.Buffer[0] >= 0xF0 {
		return -1
	}
	return int(e.Buffer[0] & 0x0F)
}

func (e Event[T]) String() string {
	return fmt.Sprintf("%v %v %v", e.Time, e.Type, e.Buffer)
}

func (r *EventRecorder[T]) Write(time T, typ EventType, buf []byte) (int, error) {
	b := make(midi.Message, len(buf))
	copy(b, buf)
	r.Events = append(r.Events, Event[T]{Time: time, Type: typ, Buffer: b, ID: -1})
	return len(buf), nil
}

// ValidMIDI reports whether buf is one complete MIDI message with a correct
// length for its status byte.
func ValidMIDI(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	status := buf[0]
	if status < 0x80 {
		return false
	}
	if status == 0xF0 {
		if len(buf) < 2 || buf[len(buf)-1] != 0xF7 {
			return false
		}
		for _, b := range buf[1 : len(buf)-1] {
			if b >= 0x80 {
				return false
			}
		}
		return true
	}
	var n int
	switch status & 0xF0 {
	case 0x80, 0x90, 0xA0, 0xB0, 0xE0:
		n = 3
	case 0xC0, 0xD0:
		n = 2
	default:
		switch status {
		case 0xF1, 0xF3:
			n = 2
		case 0xF2:
			n = 3
		default:
			n = 1
		}
	}
	if len(buf) != n {
		return false
	}
	for _, b := range buf[1:] {
		if b >= 0x80 {
			return false
		}
	}
	return true
}
