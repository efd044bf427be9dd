package sequence

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/vsariola/kontrol"
	"github.com/vsariola/kontrol/automation"
)

type (
	// Sequence owns the notes, patch changes and sysexes of one track, and
	// through the embedded ControlSet, the automation lists of the track.
	// Notes are kept ordered by start time and indexed per channel by pitch;
	// patch changes and sysexes are ordered by time.
	//
	// A Sequence is guarded by a reader/writer lock. Iterators hold the read
	// lock from creation until Close or until they reach the end, so editing
	// the sequence waits for running iterators.
	Sequence[T kontrol.Timestamp] struct {
		*automation.ControlSet

		mu      sync.RWMutex
		typeMap kontrol.TypeMap
		alerts  chan<- kontrol.Alert

		notes        []*kontrol.Note[T]
		pitches      [16][]*kontrol.Note[T]
		sysexes      []kontrol.SysEx[T]
		patchChanges []kontrol.PatchChange[T]

		bank       [16]int
		writeNotes [16][]*kontrol.Note[T]
		writing    bool
		edited     atomic.Bool
		nextID     int

		lowest, highest uint8
	}

	// NoteOperator selects notes by comparing their pitch or velocity with a
	// value.
	NoteOperator int

	// StuckNoteOption tells EndWrite what to do with notes that never
	// received their note-off.
	StuckNoteOption int
)

const (
	PitchEqual NoteOperator = iota
	PitchLessThan
	PitchLessThanOrEqual
	PitchGreater
	PitchGreaterThanOrEqual
	VelocityEqual
	VelocityLessThan
	VelocityLessThanOrEqual
	VelocityGreater
	VelocityGreaterThanOrEqual
)

const (
	// Relax leaves stuck notes nascent.
	Relax StuckNoteOption = iota
	// DeleteStuckNotes removes stuck notes.
	DeleteStuckNotes
	// ResolveStuckNotes ends stuck notes at the time given to EndWrite, or
	// removes them if they start at or after it.
	ResolveStuckNotes
)

// New returns an empty sequence. Controls for automated parameters are
// created with factory the first time an event for them is appended.
// Diagnostics are offered to alerts, which may be nil.
func New[T kontrol.Timestamp](typeMap kontrol.TypeMap, factory automation.ControlFactory, alerts chan<- kontrol.Alert) *Sequence[T] {
	s := &Sequence[T]{
		ControlSet: automation.NewControlSet(factory),
		typeMap:    typeMap,
		alerts:     alerts,
		lowest:     127,
	}
	for i := range s.bank {
		s.bank[i] = -1
	}
	s.ControlSet.OnListDirty(func(*automation.Control) { s.edited.Store(true) })
	return s
}

func (s *Sequence[T]) TypeMap() kontrol.TypeMap { return s.typeMap }

// TryReadLock takes the read lock if it is available. It is used by the
// realtime thread before reading the sequence with the *Unlocked methods.
func (s *Sequence[T]) TryReadLock() bool { return s.mu.TryRLock() }

func (s *Sequence[T]) ReadLock() { s.mu.RLock() }

func (s *Sequence[T]) ReadUnlock() { s.mu.RUnlock() }

// Clear removes all notes, patch changes and sysexes, and all points of all
// automation lists. During a write pass, notes waiting for their note-off
// and the bank selects seen so far are forgotten too.
func (s *Sequence[T]) Clear() {
	s.mu.Lock()
	s.notes = nil
	s.pitches = [16][]*kontrol.Note[T]{}
	s.sysexes = nil
	s.patchChanges = nil
	s.lowest, s.highest = 127, 0
	s.writeNotes = [16][]*kontrol.Note[T]{}
	for i := range s.bank {
		s.bank[i] = -1
	}
	s.mu.Unlock()
	s.ClearControls()
}

// Len returns the number of notes, patch changes and sysexes.
func (s *Sequence[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notes) + len(s.sysexes) + len(s.patchChanges)
}

// Empty reports whether the sequence has no notes, patch changes, sysexes
// or automation points.
func (s *Sequence[T]) Empty() bool {
	if s.Len() > 0 {
		return false
	}
	return len(s.WhatHasData()) == 0
}

func (s *Sequence[T]) Edited() bool { return s.edited.Load() }

func (s *Sequence[T]) SetEdited(e bool) { s.edited.Store(e) }

// Notes returns a copy of the notes, ordered by start time.
func (s *Sequence[T]) Notes() []kontrol.Note[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ret := make([]kontrol.Note[T], len(s.notes))
	for i, n := range s.notes {
		ret[i] = *n
	}
	return ret
}

// SetNotes replaces all notes of the sequence.
func (s *Sequence[T]) SetNotes(notes []kontrol.Note[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = nil
	s.pitches = [16][]*kontrol.Note[T]{}
	s.lowest, s.highest = 127, 0
	for _, n := range notes {
		s.addNoteLocked(&n)
	}
	s.edited.Store(true)
}

func (s *Sequence[T]) PatchChanges() []kontrol.PatchChange[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.patchChanges)
}

func (s *Sequence[T]) SysExes() []kontrol.SysEx[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sysexes)
}

// LowestNote and HighestNote return the pitch range of the notes. For an
// empty sequence LowestNote is 127 and HighestNote is 0.
func (s *Sequence[T]) LowestNote() uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lowest
}

func (s *Sequence[T]) HighestNote() uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.highest
}

// Duration returns the time of the last event of the sequence: the latest
// note end, patch change, sysex or automation point. Nascent notes count
// with their start time.
func (s *Sequence[T]) Duration() T {
	s.mu.RLock()
	var d T
	for _, n := range s.notes {
		if n.Nascent() {
			d = max(d, n.Time)
		} else {
			d = max(d, n.EndTime())
		}
	}
	if len(s.patchChanges) > 0 {
		d = max(d, s.patchChanges[len(s.patchChanges)-1].Time)
	}
	if len(s.sysexes) > 0 {
		d = max(d, s.sysexes[len(s.sysexes)-1].Time)
	}
	s.mu.RUnlock()
	for _, c := range s.Controls() {
		if l := c.List(); l != nil {
			if _, last, ok := l.Bounds(); ok {
				d = max(d, T(last))
			}
		}
	}
	return d
}

// AddNote adds a copy of n and returns the id given to it. Notes with
// fields that do not fit MIDI are dropped with an alert and ok is false.
func (s *Sequence[T]) AddNote(n kontrol.Note[T]) (id int, ok bool) {
	if !n.Valid() {
		kontrol.SendAlert(s.alerts, "InvalidNote", kontrol.Warning, "invalid note ignored: %v", n)
		return -1, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &n
	s.addNoteLocked(p)
	return p.ID, true
}

func (s *Sequence[T]) addNoteLocked(n *kontrol.Note[T]) {
	if n.ID <= 0 {
		n.ID = s.newID()
	}
	s.lowest = min(s.lowest, n.Note)
	s.highest = max(s.highest, n.Note)
	i := upperBound(s.notes, n.Time)
	s.notes = slices.Insert(s.notes, i, n)
	p := s.pitches[n.Channel]
	j, _ := slices.BinarySearchFunc(p, n, func(a, b *kontrol.Note[T]) int {
		if a.Note != b.Note {
			return int(a.Note) - int(b.Note)
		}
		if a.Time <= b.Time {
			return -1
		}
		return 1
	})
	s.pitches[n.Channel] = slices.Insert(p, j, n)
	s.edited.Store(true)
}

// newID returns the next event id. Ids are positive; zero and negative ids
// mean "none".
func (s *Sequence[T]) newID() int {
	s.nextID++
	return s.nextID
}

// RemoveNote removes the note with the ID of n or, if n has no ID, the first
// note equal to n. Returns false if there was no such note.
func (s *Sequence[T]) RemoveNote(n kontrol.Note[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := -1
	if n.ID > 0 {
		i = slices.IndexFunc(s.notes, func(m *kontrol.Note[T]) bool { return m.ID == n.ID })
	} else {
		for j := lowerBound(s.notes, n.Time); j < len(s.notes) && s.notes[j].Time == n.Time; j++ {
			if s.notes[j].Equal(n) {
				i = j
				break
			}
		}
	}
	if i < 0 {
		kontrol.SendAlert(s.alerts, "RemoveNote", kontrol.Info, "no note to remove matching %v", n)
		return false
	}
	s.removeNoteLocked(i)
	return true
}

func (s *Sequence[T]) removeNoteLocked(i int) {
	n := s.notes[i]
	s.notes = slices.Delete(s.notes, i, i+1)
	if p := s.pitches[n.Channel]; len(p) > 0 {
		s.pitches[n.Channel] = slices.DeleteFunc(p, func(m *kontrol.Note[T]) bool { return m == n })
	}
	if n.Note == s.lowest || n.Note == s.highest {
		s.lowest, s.highest = 127, 0
		for _, m := range s.notes {
			s.lowest = min(s.lowest, m.Note)
			s.highest = max(s.highest, m.Note)
		}
	}
	s.edited.Store(true)
}

// Contains reports whether the sequence has a note equal to n.
func (s *Sequence[T]) Contains(n kontrol.Note[T]) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n.Channel >= 16 {
		return false
	}
	for _, m := range s.pitchRange(n.Channel, n.Note) {
		if m.Equal(n) {
			return true
		}
	}
	return false
}

// Overlaps reports whether a note of the same channel and pitch as n
// overlaps it in time. A note equal to without is ignored.
func (s *Sequence[T]) Overlaps(n kontrol.Note[T], without *kontrol.Note[T]) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n.Channel >= 16 {
		return false
	}
	sa, ea := n.Time, n.EndTime()
	for _, m := range s.pitchRange(n.Channel, n.Note) {
		if without != nil && m.Equal(*without) {
			continue
		}
		sb, eb := m.Time, m.EndTime()
		if (sb > sa && eb <= ea) || (eb >= sa && eb <= ea) || (sb > sa && sb <= ea) || (sa >= sb && sa <= eb && ea <= eb) {
			return true
		}
	}
	return false
}

// pitchRange returns the notes of a channel with the given pitch.
func (s *Sequence[T]) pitchRange(channel, pitch uint8) []*kontrol.Note[T] {
	p := s.pitches[channel]
	i, _ := slices.BinarySearchFunc(p, pitch, func(n *kontrol.Note[T], pitch uint8) int {
		if n.Note < pitch {
			return -1
		}
		return 1
	})
	j := i
	for j < len(p) && p[j].Note == pitch {
		j++
	}
	return p[i:j]
}

// NoteLowerBound returns the index of the first note starting at or after
// t, in the order of Notes.
func (s *Sequence[T]) NoteLowerBound(t T) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lowerBound(s.notes, t)
}

// PatchChangeLowerBound returns the index of the first patch change at or
// after t, in the order of PatchChanges.
func (s *Sequence[T]) PatchChangeLowerBound(t T) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return timeLowerBound(s.patchChanges, t, func(p kontrol.PatchChange[T]) T { return p.Time })
}

// SysExLowerBound returns the index of the first sysex at or after t, in the
// order of SysExes.
func (s *Sequence[T]) SysExLowerBound(t T) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return timeLowerBound(s.sysexes, t, func(x kontrol.SysEx[T]) T { return x.Time })
}

// FindNotes returns the notes matching op and value on the channels of
// chanMask (bit i for channel i; 0 means all channels), ordered by time.
func (s *Sequence[T]) FindNotes(op NoteOperator, value uint8, chanMask uint16) []kontrol.Note[T] {
	if op <= PitchGreaterThanOrEqual {
		return s.NotesByPitch(op, value, chanMask)
	}
	return s.NotesByVelocity(op, value, chanMask)
}

// NotesByPitch returns the notes whose pitch compares to pitch as op says.
func (s *Sequence[T]) NotesByPitch(op NoteOperator, pitch uint8, chanMask uint16) []kontrol.Note[T] {
	return s.selectNotes(chanMask, func(n *kontrol.Note[T]) bool { return op.compare(n.Note, pitch, PitchEqual) })
}

// NotesByVelocity returns the notes whose velocity compares to velocity as
// op says.
func (s *Sequence[T]) NotesByVelocity(op NoteOperator, velocity uint8, chanMask uint16) []kontrol.Note[T] {
	return s.selectNotes(chanMask, func(n *kontrol.Note[T]) bool { return op.compare(n.Velocity, velocity, VelocityEqual) })
}

func (s *Sequence[T]) selectNotes(chanMask uint16, match func(n *kontrol.Note[T]) bool) []kontrol.Note[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ret []kontrol.Note[T]
	for _, n := range s.notes {
		if chanMask != 0 && chanMask&(1<<n.Channel) == 0 {
			continue
		}
		if match(n) {
			ret = append(ret, *n)
		}
	}
	return ret
}

// compare applies op, offset so that base is its Equal operator; operators
// of the other family never match.
func (op NoteOperator) compare(a, b uint8, base NoteOperator) bool {
	switch op - base {
	case PitchEqual:
		return a == b
	case PitchLessThan:
		return a < b
	case PitchLessThanOrEqual:
		return a <= b
	case PitchGreater:
		return a > b
	case PitchGreaterThanOrEqual:
		return a >= b
	}
	return false
}

// AddPatchChange adds p after the patch changes with the same time.
func (s *Sequence[T]) AddPatchChange(p kontrol.PatchChange[T]) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addPatchChangeLocked(p)
}

func (s *Sequence[T]) addPatchChangeLocked(p kontrol.PatchChange[T]) int {
	if p.ID <= 0 {
		p.ID = s.newID()
	}
	i, _ := slices.BinarySearchFunc(s.patchChanges, p.Time, func(q kontrol.PatchChange[T], t T) int {
		if q.Time <= t {
			return -1
		}
		return 1
	})
	s.patchChanges = slices.Insert(s.patchChanges, i, p)
	s.edited.Store(true)
	return p.ID
}

// RemovePatchChange removes the patch changes at the time of p that are
// equal to it, ignoring the ID. Returns the number removed.
func (s *Sequence[T]) RemovePatchChange(p kontrol.PatchChange[T]) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.patchChanges)
	s.patchChanges = slices.DeleteFunc(s.patchChanges, func(q kontrol.PatchChange[T]) bool {
		return q.Time == p.Time && q.Channel == p.Channel && q.Program == p.Program && q.Bank == p.Bank
	})
	if removed := n - len(s.patchChanges); removed > 0 {
		s.edited.Store(true)
		return removed
	}
	return 0
}

// AddSysEx adds a copy of x after the sysexes with the same time. x.Data
// must be a complete system exclusive message.
func (s *Sequence[T]) AddSysEx(x kontrol.SysEx[T]) (id int, ok bool) {
	if !kontrol.ValidMIDI(x.Data) || x.Data[0] != 0xF0 {
		kontrol.SendAlert(s.alerts, "InvalidSysEx", kontrol.Warning, "invalid sysex ignored at %v", x.Time)
		return -1, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addSysExLocked(x), true
}

func (s *Sequence[T]) addSysExLocked(x kontrol.SysEx[T]) int {
	if x.ID <= 0 {
		x.ID = s.newID()
	}
	x.Data = slices.Clone(x.Data)
	i, _ := slices.BinarySearchFunc(s.sysexes, x.Time, func(y kontrol.SysEx[T], t T) int {
		if y.Time <= t {
			return -1
		}
		return 1
	})
	s.sysexes = slices.Insert(s.sysexes, i, x)
	s.edited.Store(true)
	return x.ID
}

// RemoveSysEx removes the sysex with the ID of x. Returns false if there
// was none.
func (s *Sequence[T]) RemoveSysEx(x kontrol.SysEx[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.sysexes, func(y kontrol.SysEx[T]) bool { return y.ID == x.ID && y.Time == x.Time })
	if i < 0 {
		return false
	}
	s.sysexes = slices.Delete(s.sysexes, i, i+1)
	s.edited.Store(true)
	return true
}

// lowerBound returns the index of the first note at or after t.
func lowerBound[T kontrol.Timestamp](notes []*kontrol.Note[T], t T) int {
	i, _ := slices.BinarySearchFunc(notes, t, func(n *kontrol.Note[T], t T) int {
		if n.Time < t {
			return -1
		}
		return 1
	})
	return i
}

func timeLowerBound[E any, T kontrol.Timestamp](items []E, t T, when func(E) T) int {
	i, _ := slices.BinarySearchFunc(items, t, func(e E, t T) int {
		if when(e) < t {
			return -1
		}
		return 1
	})
	return i
}

// upperBound returns the index of the first note after t.
func upperBound[T kontrol.Timestamp](notes []*kontrol.Note[T], t T) int {
	i, _ := slices.BinarySearchFunc(notes, t, func(n *kontrol.Note[T], t T) int {
		if n.Time <= t {
			return -1
		}
		return 1
	})
	return i
}
