package sequence

import (
	"sync"

	"github.com/vsariola/kontrol"
	"gitlab.com/gomidi/midi/v2"
)

// Recorder appends live MIDI input to a sequence. Messages are timed by
// Clock when they arrive, not by the driver timestamp. HandleMessage has the
// signature of a gomidi listener, so it can be passed to midi.ListenTo.
type Recorder[T kontrol.Timestamp] struct {
	seq   *Sequence[T]
	clock func() T
	mu    sync.Mutex
	last  T
	done  bool
}

// Record starts a write pass on s and returns a recorder appending to it.
func (s *Sequence[T]) Record(clock func() T) *Recorder[T] {
	s.StartWrite()
	return &Recorder[T]{seq: s, clock: clock}
}

func (r *Recorder[T]) HandleMessage(msg midi.Message, timestampms int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	t := r.clock()
	if t < r.last {
		t = r.last
	}
	r.last = t
	buf := make([]byte, len(msg))
	copy(buf, msg)
	r.seq.Append(kontrol.Event[T]{Time: t, Type: kontrol.LiveMIDIEvent, Buffer: buf, ID: -1}, -1)
}

// Stop ends the write pass. Notes still held are ended at the current time
// of the clock. Messages arriving after Stop are ignored.
func (r *Recorder[T]) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	t := max(r.clock(), r.last)
	r.seq.EndWrite(ResolveStuckNotes, t)
}
