package sequence

import (
	"slices"

	"github.com/pkg/errors"
	"github.com/vsariola/kontrol"
)

// StartWrite starts recording: Append may be called until EndWrite.
func (s *Sequence[T]) StartWrite() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writing = true
	s.writeNotes = [16][]*kontrol.Note[T]{}
}

func (s *Sequence[T]) Writing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writing
}

// EndWrite stops recording and deals with the notes still waiting for their
// note-off as option says. when is the end time used by ResolveStuckNotes.
func (s *Sequence[T]) EndWrite(option StuckNoteOption, when T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.writing {
		return
	}
	for i := 0; i < len(s.notes); {
		n := s.notes[i]
		if !n.Nascent() {
			i++
			continue
		}
		switch option {
		case DeleteStuckNotes:
			kontrol.SendAlert(s.alerts, "StuckNote", kontrol.Warning, "stuck note lost: %v", *n)
			s.removeNoteLocked(i)
			continue
		case ResolveStuckNotes:
			if when <= n.Time {
				kontrol.SendAlert(s.alerts, "StuckNote", kontrol.Warning, "stuck note resolution: end time %v is before the note-on of %v", when, *n)
				s.removeNoteLocked(i)
				continue
			}
			n.SetEndTime(when)
			kontrol.SendAlert(s.alerts, "StuckNote", kontrol.Info, "resolved note-on with no note-off: %v", *n)
		}
		i++
	}
	s.writeNotes = [16][]*kontrol.Note[T]{}
	s.writing = false
}

// Append records one MIDI event. Note-ons open nascent notes that a later
// note-off on the same channel and pitch closes, first in first out. Bank
// selects are remembered per channel and folded into the patch change made
// from the next program change. Other controllers, pitch bend and pressure
// are added to the automation list of their parameter.
//
// Malformed events are dropped with an alert. Calling Append outside
// StartWrite and EndWrite panics.
func (s *Sequence[T]) Append(ev kontrol.Event[T], id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.writing {
		panic(errors.New("sequence: Append called without StartWrite"))
	}
	buf := ev.Buffer
	if !kontrol.ValidMIDI(buf) {
		kontrol.SendAlert(s.alerts, "IllegalMIDI", kontrol.Warning, "ignoring illegal MIDI event % X at %v", []byte(buf), ev.Time)
		return
	}
	var ch, a, b uint8
	switch {
	case ev.IsNoteOn():
		buf.GetNoteOn(&ch, &a, &b)
		s.appendNoteOn(ev.Time, ch, a, b, id)
	case ev.IsNoteOff():
		ch, a, b = buf[0]&0x0F, buf[1], buf[2]
		if buf[0]&0xF0 == 0x90 {
			b = 0
		}
		s.appendNoteOff(ev.Time, ch, a, b)
	case ev.IsSysEx():
		s.addSysExLocked(kontrol.SysEx[T]{Time: ev.Time, Data: buf, ID: id})
	case buf.GetControlChange(&ch, &a, &b):
		switch a {
		case kontrol.BankSelectMSB:
			s.bank[ch] = max(s.bank[ch], 0)&0x7F | int(b)<<7
		case kontrol.BankSelectLSB:
			s.bank[ch] = max(s.bank[ch], 0)&^0x7F | int(b)
		default:
			s.appendControl(buf, ch, uint32(a), ev.Time, float64(b))
		}
	case buf.GetProgramChange(&ch, &a):
		s.addPatchChangeLocked(kontrol.PatchChange[T]{Time: ev.Time, Channel: ch, Program: a, Bank: s.bank[ch], ID: id})
	case buf[0]&0xF0 == 0xE0:
		s.appendControl(buf, buf[0]&0x0F, 0, ev.Time, float64(uint16(buf[2]&0x7F)<<7|uint16(buf[1]&0x7F)))
	case buf.GetPolyAfterTouch(&ch, &a, &b):
		s.appendControl(buf, ch, uint32(a), ev.Time, float64(b))
	case buf.GetAfterTouch(&ch, &a):
		s.appendControl(buf, ch, 0, ev.Time, float64(a))
	default:
		kontrol.SendAlert(s.alerts, "UnknownMIDI", kontrol.Info, "ignoring MIDI event of unknown type %X at %v", buf[0], ev.Time)
		return
	}
	s.edited.Store(true)
}

func (s *Sequence[T]) appendNoteOn(t T, ch, key, vel uint8, id int) {
	n := kontrol.NewNote(ch, key, vel, t)
	n.ID = id
	if !n.Valid() {
		kontrol.SendAlert(s.alerts, "InvalidNote", kontrol.Warning, "invalid note-on ignored: %v", n)
		return
	}
	p := &n
	s.addNoteLocked(p)
	s.writeNotes[ch] = append(s.writeNotes[ch], p)
}

func (s *Sequence[T]) appendNoteOff(t T, ch, key, vel uint8) {
	w := s.writeNotes[ch]
	i := slices.IndexFunc(w, func(n *kontrol.Note[T]) bool { return n.Note == key })
	if i < 0 {
		kontrol.SendAlert(s.alerts, "SpuriousNoteOff", kontrol.Info, "spurious note-off: channel %d, note %d at %v", ch, key, t)
		return
	}
	n := w[i]
	n.SetEndTime(max(t, n.Time))
	n.OffVelocity = vel
	s.writeNotes[ch] = slices.Delete(w, i, i+1)
}

func (s *Sequence[T]) appendControl(buf []byte, ch uint8, id uint32, t T, v float64) {
	typ := s.typeMap.MIDIParameterType(buf)
	if typ == kontrol.NullAutomation {
		kontrol.SendAlert(s.alerts, "UnmappedMIDI", kontrol.Info, "no parameter for MIDI event % X", buf)
		return
	}
	p := kontrol.Parameter{Type: typ, Channel: ch, ID: id}
	c := s.Control(p, true)
	if c == nil {
		kontrol.SendAlert(s.alerts, "NoControl", kontrol.Warning, "no automation for %s", s.typeMap.ToSymbol(p))
		return
	}
	c.List().Add(kontrol.Time(t), v, true, false)
}
