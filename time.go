package kontrol

import (
	"fmt"
	"math"
)

type (
	// Time is a position on a timeline. Whether it counts samples or beat
	// ticks depends on the TimeDomain of whoever owns the timeline; Time
	// itself carries no unit.
	Time int64

	// TimeDomain tells in which units a Time is counted.
	TimeDomain int

	// Beats is musical time counted in ticks, TicksPerBeat ticks per beat
	// (quarter note). Sequences use Beats for their event times.
	Beats int64

	// Samples is audio time counted in sample frames.
	Samples int64

	// Timestamp is the constraint for the event time types a Sequence can be
	// instantiated with.
	Timestamp interface {
		~int64
	}
)

const (
	AudioTime TimeDomain = iota
	BeatTime
)

// TicksPerBeat is the resolution of Beats.
const TicksPerBeat = 1920

// MaxTime is the largest representable Time, used as "never".
const MaxTime Time = math.MaxInt64

// Max returns the largest representable value of a Timestamp type. A note
// with this end time has not received its note-off yet.
func Max[T Timestamp]() T {
	return T(math.MaxInt64)
}

// GuardPointDelta returns the distance between a guard point and the point
// it protects: 64 samples in audio time, one tick in beat time.
func (d TimeDomain) GuardPointDelta() Time {
	if d == BeatTime {
		return 1
	}
	return 64
}

func (d TimeDomain) String() string {
	switch d {
	case AudioTime:
		return "audio"
	case BeatTime:
		return "beats"
	}
	return fmt.Sprintf("TimeDomain(%d)", int(d))
}

// BeatsFromFloat converts fractional beats to ticks, rounding to the nearest
// tick.
func BeatsFromFloat(beats float64) Beats {
	return Beats(math.Round(beats * TicksPerBeat))
}

// Float returns b as fractional beats.
func (b Beats) Float() float64 {
	return float64(b) / TicksPerBeat
}

// Split returns the whole beats and the remaining ticks.
func (b Beats) Split() (beats int64, ticks int64) {
	return int64(b) / TicksPerBeat, int64(b) % TicksPerBeat
}

func (b Beats) String() string {
	beats, ticks := b.Split()
	if ticks < 0 {
		ticks = -ticks
	}
	return fmt.Sprintf("%d:%04d", beats, ticks)
}

// TimeConverter converts between two time domains. The zero value is the
// identity conversion. Otherwise b = (a - OriginA) * Ratio + OriginB, and
// To and From are inverses of each other up to rounding.
type TimeConverter struct {
	OriginA Time
	OriginB Time
	Ratio   float64 // zero means 1
}

// To converts a time from domain A to domain B.
func (c TimeConverter) To(a Time) Time {
	if c.Ratio == 0 || c.Ratio == 1 {
		return a - c.OriginA + c.OriginB
	}
	return Time(math.Round(float64(a-c.OriginA)*c.Ratio)) + c.OriginB
}

// From converts a time from domain B back to domain A.
func (c TimeConverter) From(b Time) Time {
	if c.Ratio == 0 || c.Ratio == 1 {
		return b - c.OriginB + c.OriginA
	}
	return Time(math.Round(float64(b-c.OriginB)/c.Ratio)) + c.OriginA
}

// SamplesToBeats returns a TimeConverter from sample frames to beat ticks at
// a constant tempo.
func SamplesToBeats(sampleRate int, bpm float64) TimeConverter {
	return TimeConverter{Ratio: bpm * TicksPerBeat / (60 * float64(sampleRate))}
}
