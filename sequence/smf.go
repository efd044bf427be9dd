package sequence

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/vsariola/kontrol"
	"gitlab.com/gomidi/midi/v2/smf"
)

var ErrSMPTE = errors.New("SMPTE time format is not supported")

// ReadSMF records the channel and sysex events of all tracks of a standard
// MIDI file into the sequence, rescaled to kontrol.TicksPerBeat. Meta
// events are skipped. Notes without a note-off are ended at the last event
// of the file.
func (s *Sequence[T]) ReadSMF(r io.Reader) error {
	file, err := smf.ReadFrom(r)
	if err != nil {
		return fmt.Errorf("reading SMF failed: %w", err)
	}
	ticks, ok := file.TimeFormat.(smf.MetricTicks)
	if !ok {
		return ErrSMPTE
	}
	resolution := int64(ticks.Resolution())
	if resolution == 0 {
		return fmt.Errorf("SMF has zero ticks per quarter note")
	}
	type timed struct {
		time int64
		msg  []byte
	}
	var events []timed
	for _, track := range file.Tracks {
		var abs int64
		for _, ev := range track {
			abs += int64(ev.Delta)
			if len(ev.Message) == 0 || ev.Message[0] == 0xFF {
				continue
			}
			events = append(events, timed{abs * kontrol.TicksPerBeat / resolution, ev.Message})
		}
	}
	slices.SortStableFunc(events, func(a, b timed) int { return cmp.Compare(a.time, b.time) })
	s.StartWrite()
	var last T
	for _, e := range events {
		last = T(e.time)
		s.Append(kontrol.Event[T]{Time: last, Type: kontrol.MIDIEvent, Buffer: e.msg, ID: -1}, -1)
	}
	s.EndWrite(ResolveStuckNotes, last)
	return nil
}

// WriteSMF writes the merged event stream of the sequence as a single track
// standard MIDI file at kontrol.TicksPerBeat resolution. Notes that have not
// ended are ended at the last event.
func (s *Sequence[T]) WriteSMF(w io.Writer) error {
	file := smf.New()
	file.TimeFormat = smf.MetricTicks(kontrol.TicksPerBeat)
	var track smf.Track
	var last T
	for ev := range s.Events(0, IterOptions[T]{}) {
		t := ev.Time
		if t == kontrol.Max[T]() {
			t = last
		}
		track.Add(uint32(t-last), ev.Buffer)
		last = t
	}
	track.Close(0)
	if err := file.Add(track); err != nil {
		return fmt.Errorf("adding SMF track failed: %w", err)
	}
	if _, err := file.WriteTo(w); err != nil {
		return fmt.Errorf("writing SMF failed: %w", err)
	}
	return nil
}
