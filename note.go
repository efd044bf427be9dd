package kontrol

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

type (
	// Note is a note with a start time and a length. A note that has
	// received its note-on but not yet its note-off is "nascent": its
	// Length is such that EndTime() returns Max[T]().
	Note[T Timestamp] struct {
		Time        T
		Length      T
		Channel     uint8 `yaml:",omitempty"`
		Note        uint8
		Velocity    uint8
		OffVelocity uint8 `yaml:",omitempty"`
		ID          int   `yaml:"-" json:"-"`
	}

	// PatchChange is a program change, optionally preceded by a bank select.
	// Bank is the 14-bit bank number (MSB<<7 | LSB), or -1 when no bank
	// select is sent.
	PatchChange[T Timestamp] struct {
		Time    T
		Channel uint8 `yaml:",omitempty"`
		Program uint8
		Bank    int
		ID      int `yaml:"-" json:"-"`
	}

	// SysEx is a system exclusive message. Data holds the complete message
	// including the 0xF0 and 0xF7 framing bytes.
	SysEx[T Timestamp] struct {
		Time T
		Data []byte `yaml:",flow"`
		ID   int    `yaml:"-" json:"-"`
	}
)

// NewNote returns a nascent note: it has started but has no end yet.
func NewNote[T Timestamp](channel, note, velocity uint8, time T) Note[T] {
	return Note[T]{Time: time, Length: Max[T]() - time, Channel: channel, Note: note, Velocity: velocity, ID: -1}
}

// EndTime returns the time of the note-off. It saturates at Max[T]() so a
// nascent note always reports Max[T]().
func (n Note[T]) EndTime() T {
	if n.Length >= Max[T]()-n.Time {
		return Max[T]()
	}
	return n.Time + n.Length
}

// Nascent reports whether the note still waits for its note-off.
func (n Note[T]) Nascent() bool {
	return n.EndTime() == Max[T]()
}

// SetEndTime sets the note-off time, or makes the note nascent again if end
// is Max[T]().
func (n *Note[T]) SetEndTime(end T) {
	n.Length = end - n.Time
}

// Valid reports whether the note fields fit MIDI: note < 128, channel < 16
// and a non-zero velocity below 128.
func (n Note[T]) Valid() bool {
	return n.Note < 128 && n.Channel < 16 && n.Velocity > 0 && n.Velocity < 128 && n.OffVelocity < 128
}

// OnEvent returns the note-on message of the note.
func (n Note[T]) OnEvent() midi.Message {
	return midi.NoteOn(n.Channel, n.Note, n.Velocity)
}

// OffEvent returns the note-off message of the note.
func (n Note[T]) OffEvent() midi.Message {
	return midi.NoteOffVelocity(n.Channel, n.Note, n.OffVelocity)
}

// Equal compares the musical content of two notes, ignoring the ID.
func (n Note[T]) Equal(o Note[T]) bool {
	return n.Time == o.Time && n.Length == o.Length && n.Channel == o.Channel &&
		n.Note == o.Note && n.Velocity == o.Velocity && n.OffVelocity == o.OffVelocity
}

func (n Note[T]) String() string {
	if n.Nascent() {
		return fmt.Sprintf("Note(ch %d, %d, vel %d, %v-)", n.Channel, n.Note, n.Velocity, n.Time)
	}
	return fmt.Sprintf("Note(ch %d, %d, vel %d, %v-%v)", n.Channel, n.Note, n.Velocity, n.Time, n.EndTime())
}

// Controller numbers of the bank select messages.
const (
	BankSelectMSB = 0
	BankSelectLSB = 32
)

// BankMSB returns the bank select MSB (CC 0) value.
func (p PatchChange[T]) BankMSB() uint8 {
	return uint8((p.Bank >> 7) & 0x7F)
}

// BankLSB returns the bank select LSB (CC 32) value.
func (p PatchChange[T]) BankLSB() uint8 {
	return uint8(p.Bank & 0x7F)
}

// Messages returns the messages a patch change is played as, in order: bank
// select MSB and LSB (when Bank >= 0) and the program change.
func (p PatchChange[T]) Messages() []midi.Message {
	if p.Bank < 0 {
		return []midi.Message{midi.ProgramChange(p.Channel, p.Program)}
	}
	return []midi.Message{
		midi.ControlChange(p.Channel, BankSelectMSB, p.BankMSB()),
		midi.ControlChange(p.Channel, BankSelectLSB, p.BankLSB()),
		midi.ProgramChange(p.Channel, p.Program),
	}
}
