package automation_test

import (
	"testing"

	"github.com/vsariola/kontrol"
	"github.com/vsariola/kontrol/automation"
)

type scanResult struct {
	t  kontrol.Time
	v  float64
	ok bool
}

func TestEarliestEventDiscrete(t *testing.T) {
	l := newList(midiRange, ev(0, 1), ev(10, 2), ev(20, 3))
	steps := []struct {
		start     kontrol.Time
		inclusive bool
		want      scanResult
	}{
		{0, true, scanResult{0, 1, true}},
		{0, false, scanResult{10, 2, true}},
		{10, false, scanResult{20, 3, true}},
		{20, false, scanResult{0, 0, false}},
		{5, true, scanResult{10, 2, true}},
		{10, true, scanResult{10, 2, true}},
	}
	l.WithReadLock(func() {
		for _, s := range steps {
			tt, v, ok := l.RTSafeEarliestEventDiscreteUnlocked(s.start, s.inclusive)
			if got := (scanResult{tt, v, ok}); got != s.want {
				t.Errorf("discrete scan from %v (inclusive %v) = %+v, want %+v", s.start, s.inclusive, got, s.want)
			}
		}
	})
}

func TestEarliestEventLinear(t *testing.T) {
	l := newList(midiRange, ev(0, 0), ev(1000, 125))
	steps := []struct {
		start     kontrol.Time
		inclusive bool
		minDelta  kontrol.Time
		want      scanResult
	}{
		{0, true, 0, scanResult{0, 0, true}},
		{0, false, 0, scanResult{8, 1, true}},
		{8, false, 0, scanResult{16, 2, true}},
		{8, false, 80, scanResult{96, 12, true}},
		{999, false, 0, scanResult{1000, 125, true}},
		{1000, false, 0, scanResult{0, 0, false}},
	}
	l.WithReadLock(func() {
		for _, s := range steps {
			tt, v, ok := l.RTSafeEarliestEventLinearUnlocked(s.start, s.inclusive, s.minDelta)
			if got := (scanResult{tt, v, ok}); got != s.want {
				t.Errorf("linear scan from %v (inclusive %v, min delta %v) = %+v, want %+v", s.start, s.inclusive, s.minDelta, got, s.want)
			}
		}
	})
}

func TestEarliestEventLinearPointWithinMinDelta(t *testing.T) {
	l := newList(midiRange, ev(0, 0), ev(100, 100), ev(110, 0))
	tt, v, ok := l.RTSafeEarliestEvent(95, false, 50)
	if !ok || tt != 100 || v != 100 {
		t.Fatalf("scan = %v, %v, %v, want the point at 100", tt, v, ok)
	}
}

func TestEarliestEventWalksWholeRamp(t *testing.T) {
	l := newList(midiRange, ev(0, 0), ev(1000, 125))
	var last kontrol.Time = -1
	count := 0
	tt, v, ok := l.RTSafeEarliestEvent(0, true, 0)
	for ok {
		if tt <= last {
			t.Fatalf("scan went backwards: %v after %v", tt, last)
		}
		if v < 0 || v > 125 {
			t.Fatalf("scan value %v outside the ramp", v)
		}
		last = tt
		count++
		tt, v, ok = l.RTSafeEarliestEvent(tt, false, 0)
	}
	if last != 1000 || count != 126 {
		t.Fatalf("scan ended at %v after %d events, want 1000 after 126", last, count)
	}
}

// reentrantCurve calls the realtime methods of its list from MarkDirty, which
// runs while the list is write-locked.
type reentrantCurve struct {
	l                        *automation.ControlList
	calls                    int
	evalOK, scanOK, vectorOK bool
}

func (c *reentrantCurve) Eval(kontrol.Time) float64 { return 0 }

func (c *reentrantCurve) MarkDirty() {
	_, c.evalOK = c.l.RTSafeEval(0)
	_, _, c.scanOK = c.l.RTSafeEarliestEvent(0, true, 0)
	c.vectorOK = c.l.RTSafeVector(0, 10, make([]float64, 4))
	c.calls++
}

func TestRealtimeReadsDoNotBlockWriter(t *testing.T) {
	l := newList(midiRange, ev(0, 0), ev(1000, 125))
	c := &reentrantCurve{l: l}
	l.SetCurve(c)
	l.Add(500, 3, false, false)
	if c.calls != 2 {
		t.Fatalf("MarkDirty called %d times, want 2", c.calls)
	}
	if c.evalOK || c.scanOK || c.vectorOK {
		t.Fatalf("realtime reads succeeded during a write: eval %v, scan %v, vector %v", c.evalOK, c.scanOK, c.vectorOK)
	}
	if _, ok := l.RTSafeEval(0); !ok {
		t.Fatalf("RTSafeEval failed on an idle list")
	}
}
