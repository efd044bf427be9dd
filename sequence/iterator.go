package sequence

import (
	"container/heap"
	"iter"
	"math"

	"github.com/pkg/errors"
	"github.com/vsariola/kontrol"
	"github.com/vsariola/kontrol/automation"
	"gitlab.com/gomidi/midi/v2"
)

type (
	// Iterator merges the notes, patch changes, sysexes and automation of a
	// sequence into one time-ordered stream of MIDI events, without copying
	// them. At equal times a note-off comes first, then a patch change (its
	// bank selects and program change), then a controller, then a note-on.
	// A sysex comes after every other event at the same time.
	//
	// An iterator holds the read lock of the sequence until Close is called
	// or it reaches the end.
	Iterator[T kontrol.Timestamp] struct {
		seq    *Sequence[T]
		locked bool
		kind   eventKind
		event  kontrol.Event[T]

		forceDiscrete bool
		active        noteHeap[T]
		note          int
		sysex         int
		patch         int
		patchMessage  int
		patchMessages []midi.Message
		controls      []controlCursor
		control       int // index of the earliest control cursor, or -1
	}

	// IterOptions configure an iterator. Automation of the parameters in
	// Filtered is left out. ForceDiscrete plays every automation list as if
	// it was Discrete, i.e. one event per control point. ActiveNotes are
	// the notes started before the start time and still sounding, usually
	// from the ActiveNotes of a previous iterator, so that their note-offs
	// are played.
	IterOptions[T kontrol.Timestamp] struct {
		ForceDiscrete bool
		Filtered      []kontrol.Parameter
		ActiveNotes   []kontrol.Note[T]
	}

	controlCursor struct {
		list *automation.ControlList // nil when exhausted
		x    kontrol.Time
		y    float64
	}

	eventKind int

	noteHeap[T kontrol.Timestamp] []*kontrol.Note[T]
)

const (
	nilKind eventKind = iota
	noteOnKind
	noteOffKind
	controlKind
	sysexKind
	patchChangeKind
)

// ControllerInterval is the minimum time between two controller messages
// generated from a continuous automation curve, in ticks. A control point
// is never skipped, however close it is.
const ControllerInterval = 256

// Begin returns an iterator at the first event at or after t. It waits for
// the read lock of the sequence.
func (s *Sequence[T]) Begin(t T, opts IterOptions[T]) *Iterator[T] {
	s.mu.RLock()
	return s.begin(t, opts)
}

// RTSafeBegin is Begin for the realtime thread: if the sequence is being
// edited, it returns an iterator that is already at the end.
func (s *Sequence[T]) RTSafeBegin(t T, opts IterOptions[T]) *Iterator[T] {
	if !s.mu.TryRLock() {
		return &Iterator[T]{seq: s, control: -1}
	}
	return s.begin(t, opts)
}

func (s *Sequence[T]) begin(t T, opts IterOptions[T]) *Iterator[T] {
	it := &Iterator[T]{seq: s, locked: true, control: -1, forceDiscrete: opts.ForceDiscrete}
	if t == kontrol.Max[T]() {
		it.invalidate()
		return it
	}
	for _, n := range opts.ActiveNotes {
		if n.Time < t && n.EndTime() >= t {
			heap.Push(&it.active, &n)
		}
	}
	it.note = lowerBound(s.notes, t)
	it.sysex = timeLowerBound(s.sysexes, t, func(x kontrol.SysEx[T]) T { return x.Time })
	it.patch = timeLowerBound(s.patchChanges, t, func(p kontrol.PatchChange[T]) T { return p.Time })
	if it.patch < len(s.patchChanges) {
		it.patchMessages = s.patchChanges[it.patch].Messages()
	}
	earliest := kontrol.MaxTime
controls:
	for _, c := range s.RTSafeControls() {
		for _, p := range opts.Filtered {
			if p == c.Parameter() {
				continue controls
			}
		}
		l := c.List()
		if l == nil {
			continue
		}
		x, y, ok := it.earliestEvent(l, kontrol.Time(t), true)
		if !ok {
			continue
		}
		desc := s.typeMap.Descriptor(c.Parameter())
		if y < desc.Lower || y > desc.Upper {
			kontrol.SendAlert(s.alerts, "ControllerRange", kontrol.Warning, "controller value %v out of range [%v, %v], event ignored", y, desc.Lower, desc.Upper)
			continue
		}
		it.controls = append(it.controls, controlCursor{list: l, x: x, y: y})
		if x < earliest {
			earliest = x
			it.control = len(it.controls) - 1
		}
	}
	it.chooseNext()
	it.setEvent()
	return it
}

// earliestEvent scans the list for its next event. ok is false if the list
// has no more events or could not be read without blocking.
func (it *Iterator[T]) earliestEvent(l *automation.ControlList, start kontrol.Time, inclusive bool) (x kontrol.Time, y float64, ok bool) {
	l.TryWithReadLock(func() {
		if it.forceDiscrete || l.UnlockedInterpolation() == kontrol.Discrete {
			x, y, ok = l.RTSafeEarliestEventDiscreteUnlocked(start, inclusive)
			return
		}
		var minDelta kontrol.Time
		if !inclusive {
			minDelta = ControllerInterval
		}
		x, y, ok = l.RTSafeEarliestEventLinearUnlocked(start, inclusive, minDelta)
	})
	return x, y, ok
}

// chooseNext picks the source of the next event. Sources are considered in
// the tie-break order and a later one wins only when strictly earlier;
// sysexes come last.
func (it *Iterator[T]) chooseNext() {
	s := it.seq
	it.kind = nilKind
	var earliest T
	consider := func(k eventKind, t T) {
		if it.kind == nilKind || t < earliest {
			it.kind, earliest = k, t
		}
	}
	if len(it.active) > 0 {
		consider(noteOffKind, it.active[0].EndTime())
	}
	if it.patch < len(s.patchChanges) {
		consider(patchChangeKind, s.patchChanges[it.patch].Time)
	}
	if it.control >= 0 && it.controls[it.control].list != nil {
		consider(controlKind, T(it.controls[it.control].x))
	}
	if it.note < len(s.notes) {
		consider(noteOnKind, s.notes[it.note].Time)
	}
	if it.sysex < len(s.sysexes) {
		consider(sysexKind, s.sysexes[it.sysex].Time)
	}
}

// setEvent fills the current event from the chosen source. A controller
// that cannot be played as MIDI is skipped.
func (it *Iterator[T]) setEvent() {
	s := it.seq
	for {
		switch it.kind {
		case noteOnKind:
			n := s.notes[it.note]
			it.event = kontrol.Event[T]{Time: n.Time, Type: kontrol.MIDIEvent, Buffer: n.OnEvent(), ID: n.ID}
			heap.Push(&it.active, n)
		case noteOffKind:
			n := it.active[0]
			it.event = kontrol.Event[T]{Time: n.EndTime(), Type: kontrol.MIDIEvent, Buffer: n.OffEvent(), ID: n.ID}
		case sysexKind:
			x := s.sysexes[it.sysex]
			it.event = kontrol.Event[T]{Time: x.Time, Type: kontrol.MIDIEvent, Buffer: x.Data, ID: x.ID}
		case patchChangeKind:
			p := s.patchChanges[it.patch]
			it.event = kontrol.Event[T]{Time: p.Time, Type: kontrol.MIDIEvent, Buffer: it.patchMessages[it.patchMessage], ID: p.ID}
		case controlKind:
			c := it.controls[it.control]
			msg, ok := s.controlToMIDI(c.list.Parameter(), c.y)
			if !ok {
				kontrol.SendAlert(s.alerts, "ControllerMIDI", kontrol.Info, "%s cannot be played as MIDI", s.typeMap.ToSymbol(c.list.Parameter()))
				it.controls[it.control].list = nil
				it.controls[it.control].x = kontrol.MaxTime
				it.selectControl()
				it.chooseNext()
				continue
			}
			it.event = kontrol.Event[T]{Time: T(c.x), Type: kontrol.MIDIEvent, Buffer: msg, ID: -1}
		default:
			it.invalidate()
		}
		return
	}
}

// Next moves to the next event. It panics if the iterator is at the end.
func (it *Iterator[T]) Next() {
	if it.End() {
		panic(errors.New("sequence: attempt to iterate past the end"))
	}
	s := it.seq
	switch it.kind {
	case noteOnKind:
		it.note++
	case noteOffKind:
		heap.Pop(&it.active)
	case controlKind:
		c := &it.controls[it.control]
		if x, y, ok := it.earliestEvent(c.list, c.x, false); ok {
			c.x, c.y = x, y
		} else {
			c.list, c.x, c.y = nil, kontrol.MaxTime, math.MaxFloat64
		}
		it.selectControl()
	case sysexKind:
		it.sysex++
	case patchChangeKind:
		it.patchMessage++
		if it.patchMessage == len(it.patchMessages) {
			it.patch++
			it.patchMessage = 0
			it.patchMessages = nil
			if it.patch < len(s.patchChanges) {
				it.patchMessages = s.patchChanges[it.patch].Messages()
			}
		}
	}
	it.chooseNext()
	it.setEvent()
}

// selectControl points the control cursor at the earliest of the control
// cursors.
func (it *Iterator[T]) selectControl() {
	it.control = -1
	for i, c := range it.controls {
		if c.list == nil {
			continue
		}
		if it.control < 0 || c.x < it.controls[it.control].x {
			it.control = i
		}
	}
}

// End reports whether the iterator has passed the last event.
func (it *Iterator[T]) End() bool { return it.kind == nilKind }

// Event returns the current event. Its buffer is shared with the sequence
// and must not be modified.
func (it *Iterator[T]) Event() kontrol.Event[T] { return it.event }

// ActiveNotes returns the notes that have been started but not yet ended by
// the iterator.
func (it *Iterator[T]) ActiveNotes() []kontrol.Note[T] {
	ret := make([]kontrol.Note[T], len(it.active))
	for i, n := range it.active {
		ret[i] = *n
	}
	return ret
}

// Close releases the read lock of the sequence. The iterator is at the end
// afterwards. Closing twice is harmless.
func (it *Iterator[T]) Close() {
	it.invalidate()
}

func (it *Iterator[T]) invalidate() {
	it.kind = nilKind
	it.event = kontrol.Event[T]{}
	it.controls = nil
	it.control = -1
	if it.locked {
		it.locked = false
		it.seq.mu.RUnlock()
	}
}

// Events returns the events of the sequence from start on, for ranging
// over. Breaking out of the loop releases the read lock.
func (s *Sequence[T]) Events(start T, opts IterOptions[T]) iter.Seq[kontrol.Event[T]] {
	return func(yield func(kontrol.Event[T]) bool) {
		it := s.Begin(start, opts)
		defer it.Close()
		for ; !it.End(); it.Next() {
			if !yield(it.Event()) {
				return
			}
		}
	}
}

// Render writes the events in [start, end) to sink and returns the notes
// still sounding at end, to be passed to the next Render as active notes.
// It never blocks: if the sequence is being edited, nothing is written and
// active is returned as is.
func (s *Sequence[T]) Render(sink kontrol.EventSink[T], start, end T, active []kontrol.Note[T]) ([]kontrol.Note[T], error) {
	if !s.mu.TryRLock() {
		return active, nil
	}
	it := s.begin(start, IterOptions[T]{ActiveNotes: active})
	defer it.Close()
	for ; !it.End() && it.Event().Time < end; it.Next() {
		ev := it.Event()
		if _, err := sink.Write(ev.Time, ev.Type, ev.Buffer); err != nil {
			return it.ActiveNotes(), err
		}
	}
	return it.ActiveNotes(), nil
}

// controlToMIDI returns the MIDI message that sets the parameter p to v, or
// false if p is not a MIDI parameter or v does not fit it.
func (s *Sequence[T]) controlToMIDI(p kontrol.Parameter, v float64) (midi.Message, bool) {
	if p.Channel >= 16 || v < 0 || math.IsNaN(v) {
		return nil, false
	}
	switch s.typeMap.ParameterMIDIType(p) {
	case 0xB0:
		if p.ID > 127 || v > 127 {
			return nil, false
		}
		return midi.ControlChange(p.Channel, uint8(p.ID), uint8(v)), true
	case 0xC0:
		if v > 127 {
			return nil, false
		}
		return midi.ProgramChange(p.Channel, uint8(v)), true
	case 0xE0:
		if v >= 1<<14 {
			return nil, false
		}
		return midi.Pitchbend(p.Channel, int16(uint16(v))-8192), true
	case 0xA0:
		if p.ID > 127 || v > 127 {
			return nil, false
		}
		return midi.PolyAfterTouch(p.Channel, uint8(p.ID), uint8(v)), true
	case 0xD0:
		if v > 127 {
			return nil, false
		}
		return midi.AfterTouch(p.Channel, uint8(v)), true
	}
	return nil, false
}

func (h noteHeap[T]) Len() int           { return len(h) }
func (h noteHeap[T]) Less(i, j int) bool { return h[i].EndTime() < h[j].EndTime() }
func (h noteHeap[T]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *noteHeap[T]) Push(x any) { *h = append(*h, x.(*kontrol.Note[T])) }

func (h *noteHeap[T]) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}
