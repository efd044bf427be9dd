package automation_test

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vsariola/kontrol"
	"github.com/vsariola/kontrol/automation"
	"gopkg.in/yaml.v3"
)

const epsilon = 1e-9

var midiRange = kontrol.ParameterDescriptor{Lower: 0, Upper: 127, Normal: 64}

var ccParam = kontrol.Parameter{Type: kontrol.MIDICCAutomation, ID: 7}

func newList(desc kontrol.ParameterDescriptor, points ...kontrol.ControlEvent) *automation.ControlList {
	l := automation.NewControlList(ccParam, desc, kontrol.AudioTime)
	for _, p := range points {
		l.FastSimpleAdd(p.When, p.Value)
	}
	return l
}

func ev(t kontrol.Time, v float64) kontrol.ControlEvent {
	return kontrol.ControlEvent{When: t, Value: v}
}

func checkPoints(t *testing.T, l *automation.ControlList, want ...kontrol.ControlEvent) {
	t.Helper()
	got := l.Events()
	if len(got) != len(want) {
		t.Fatalf("got %d points %v, want %d points %v", len(got), got, len(want), want)
	}
	for i := range got {
		if got[i].When != want[i].When || math.Abs(got[i].Value-want[i].Value) > epsilon {
			t.Fatalf("point %d: got %v, want %v (all points: %v)", i, got[i], want[i], got)
		}
	}
}

// checkInvariants verifies the list is sorted, has no two points at the same
// time and keeps all values in range.
func checkInvariants(t *testing.T, l *automation.ControlList) {
	t.Helper()
	desc := l.Descriptor()
	events := l.Events()
	for i, e := range events {
		if e.Value < desc.Lower || e.Value > desc.Upper {
			t.Fatalf("point %d value %v out of range [%v, %v]", i, e.Value, desc.Lower, desc.Upper)
		}
		if i > 0 && events[i-1].When >= e.When {
			t.Fatalf("points %d and %d out of order: %v", i-1, i, events)
		}
	}
}

type evalFixture struct {
	Descriptor    kontrol.ParameterDescriptor
	Interpolation kontrol.InterpolationStyle
	Points        []kontrol.Point `yaml:",flow"`
	Eval          []kontrol.Point
}

func TestEvalFixtures(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.yml"))
	if err != nil {
		t.Fatalf("cannot glob files in the testdata directory: %v", err)
	}
	if len(files) == 0 {
		t.Fatalf("no fixtures found")
	}
	for _, filename := range files {
		testname := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
		t.Run(testname, func(t *testing.T) {
			b, err := os.ReadFile(filename)
			if err != nil {
				t.Fatalf("cannot read the fixture: %v", err)
			}
			var f evalFixture
			if err := yaml.Unmarshal(b, &f); err != nil {
				t.Fatalf("could not parse the .yml file: %v", err)
			}
			l := automation.NewControlList(ccParam, f.Descriptor, kontrol.AudioTime)
			if !l.SetInterpolation(f.Interpolation) {
				t.Fatalf("SetInterpolation(%v) refused", f.Interpolation)
			}
			for _, p := range f.Points {
				l.Add(p.When, p.Value, false, false)
			}
			for _, e := range f.Eval {
				if got := l.Eval(e.When); math.Abs(got-e.Value) > epsilon {
					t.Errorf("Eval(%v) = %v, want %v", e.When, got, e.Value)
				}
				got, ok := l.RTSafeEval(e.When)
				if !ok {
					t.Errorf("RTSafeEval(%v) failed on an idle list", e.When)
				} else if math.Abs(got-e.Value) > epsilon {
					t.Errorf("RTSafeEval(%v) = %v, want %v", e.When, got, e.Value)
				}
			}
		})
	}
}

func TestAddThenEvalReturnsValue(t *testing.T) {
	l := newList(midiRange)
	writes := []kontrol.ControlEvent{ev(500, 10), ev(100, 20), ev(300, 200), ev(300, 30), ev(50, -5), ev(1000, 10), ev(700, 10), ev(800, 10), ev(600, 64)}
	for _, w := range writes {
		l.Add(w.When, w.Value, true, true)
		checkInvariants(t, l)
		want := midiRange.Clamp(w.Value)
		if got := l.Eval(w.When); got != want {
			t.Fatalf("after Add(%v, %v): Eval = %v, want %v", w.When, w.Value, got, want)
		}
	}
}

func TestAddInitialAnchor(t *testing.T) {
	t.Run("Plain", func(t *testing.T) {
		l := newList(midiRange)
		l.Add(100, 5, false, true)
		checkPoints(t, l, ev(0, 5), ev(100, 5))
	})
	t.Run("Toggled", func(t *testing.T) {
		l := newList(kontrol.ParameterDescriptor{Lower: 0, Upper: 1, Toggled: true})
		if l.Interpolation() != kontrol.Discrete {
			t.Fatalf("toggled list interpolation = %v, want discrete", l.Interpolation())
		}
		l.Add(100, 1, false, true)
		checkPoints(t, l, ev(0, 0), ev(100, 1))
		if got := l.Eval(50); got != 0 {
			t.Fatalf("Eval(50) = %v, want 0", got)
		}
	})
	t.Run("AtZero", func(t *testing.T) {
		l := newList(midiRange)
		l.Add(0, 5, false, true)
		checkPoints(t, l, ev(0, 5))
	})
}

func TestAddStraightLine(t *testing.T) {
	l := newList(midiRange)
	l.Add(0, 10, false, false)
	l.Add(100, 10, false, false)
	l.Add(200, 10, false, false)
	checkPoints(t, l, ev(0, 10), ev(200, 10))
}

func TestWritePass(t *testing.T) {
	l := newList(midiRange, ev(0, 10), ev(1500, 99), ev(10000, 10))
	started := 0
	cancel := l.Observe(automation.Observer{WritePassStarted: func() { started++ }})
	defer cancel()
	l.StartWritePass(1000)
	l.SetInWritePass(true, false, 1000)
	if !l.InWritePass() {
		t.Fatalf("InWritePass() = false after SetInWritePass(true)")
	}
	l.Add(1000, 50, true, false)
	l.Add(2000, 60, true, false)
	l.Add(3000, 70, true, false)
	checkInvariants(t, l)
	if started != 1 {
		t.Fatalf("WritePassStarted fired %d times, want 1", started)
	}
	for _, e := range l.Events() {
		if e.Value == 99 {
			t.Fatalf("point recorded over was not erased: %v", l.Events())
		}
	}
	for _, w := range []kontrol.ControlEvent{ev(1000, 50), ev(2000, 60), ev(3000, 70), ev(10000, 10)} {
		if got := l.Eval(w.When); got != w.Value {
			t.Errorf("Eval(%v) = %v, want %v", w.When, got, w.Value)
		}
	}
	l.WritePassFinished(3000, 0)
	if l.InWritePass() {
		t.Fatalf("InWritePass() = true after WritePassFinished")
	}
}

func TestEditorAdd(t *testing.T) {
	l := newList(midiRange, ev(0, 0), ev(1000, 100))
	if !l.EditorAdd(500, 127, true) {
		t.Fatalf("EditorAdd refused a free position")
	}
	if l.EditorAdd(500, 1, true) {
		t.Fatalf("EditorAdd accepted an occupied position")
	}
	checkPoints(t, l, ev(0, 0), ev(436, 43.6), ev(500, 127), ev(564, 100), ev(1000, 100))
}

func TestEditorAddOrdered(t *testing.T) {
	l := newList(midiRange, ev(0, 0), ev(100, 10), ev(200, 20), ev(300, 30), ev(1000, 100))
	if !l.EditorAddOrdered([]kontrol.ControlEvent{ev(150, 5), ev(250, 6)}, false) {
		t.Fatalf("EditorAddOrdered returned false")
	}
	checkPoints(t, l, ev(0, 0), ev(100, 10), ev(150, 5), ev(250, 6), ev(300, 30), ev(1000, 100))
	if l.EditorAddOrdered(nil, false) {
		t.Fatalf("EditorAddOrdered with no points returned true")
	}
}

func TestThin(t *testing.T) {
	l := newList(midiRange, ev(0, 0), ev(1000, 1), ev(2000, 2), ev(3000, 3), ev(4000, 50), ev(5000, 5))
	before := l.Len()
	l.Thin(20)
	if l.Len() > before {
		t.Fatalf("Thin increased the number of points from %d to %d", before, l.Len())
	}
	checkPoints(t, l, ev(0, 0), ev(3000, 3), ev(4000, 50), ev(5000, 5))
	l.Thin(0)
	if l.Len() != 4 {
		t.Fatalf("Thin(0) removed points")
	}
}

func TestFreezeThaw(t *testing.T) {
	l := newList(midiRange, ev(0, 0), ev(100, 10))
	dirty := 0
	l.Observe(automation.Observer{Dirty: func() { dirty++ }})
	l.Freeze()
	l.Freeze()
	l.Modify(0, 500, 1)
	if l.IsSorted() {
		t.Fatalf("expected the list to be out of order while frozen")
	}
	l.Modify(1, 500, 2)
	if dirty != 0 {
		t.Fatalf("Dirty fired %d times while frozen", dirty)
	}
	l.Thaw()
	if dirty != 0 || !l.Frozen() {
		t.Fatalf("inner Thaw ended the batch")
	}
	l.Thaw()
	if dirty != 1 {
		t.Fatalf("Dirty fired %d times at Thaw, want 1", dirty)
	}
	checkPoints(t, l, ev(500, 2))
	defer func() {
		if recover() == nil {
			t.Fatalf("Thaw without Freeze did not panic")
		}
	}()
	l.Thaw()
}

func TestSetEventsNotFrozenPanics(t *testing.T) {
	l := newList(midiRange)
	defer func() {
		if recover() == nil {
			t.Fatalf("SetEvents on a list that is not frozen did not panic")
		}
	}()
	l.SetEvents([]kontrol.ControlEvent{ev(0, 1)})
}

func TestSetEvents(t *testing.T) {
	l := newList(midiRange)
	l.Freeze()
	l.SetEvents([]kontrol.ControlEvent{ev(20, 1), ev(10, 500), ev(20, 3)})
	l.Thaw()
	checkPoints(t, l, ev(10, 127), ev(20, 3))
}

func TestNaNPanics(t *testing.T) {
	l := newList(midiRange)
	defer func() {
		if recover() == nil {
			t.Fatalf("Add(NaN) did not panic")
		}
	}()
	l.Add(0, math.NaN(), false, false)
}

func TestCutPaste(t *testing.T) {
	orig := []kontrol.ControlEvent{ev(0, 0), ev(100, 10), ev(200, 20), ev(300, 0)}
	l := newList(midiRange, orig...)
	ref := l.Clone()
	cut := l.Cut(50, 250)
	checkPoints(t, cut, ev(0, 5), ev(50, 10), ev(150, 20), ev(200, 10))
	checkPoints(t, l, ev(0, 0), ev(50, 5), ev(250, 10), ev(300, 0))
	if !l.Paste(cut, 50) {
		t.Fatalf("Paste returned false")
	}
	checkInvariants(t, l)
	for _, p := range orig[1:3] {
		found := false
		for _, e := range l.Events() {
			if e.When == p.When && e.Value == p.Value {
				found = true
			}
		}
		if !found {
			t.Errorf("interior point %v not restored: %v", p, l.Events())
		}
	}
	for tt := kontrol.Time(0); tt <= 300; tt += 25 {
		if got, want := l.Eval(tt), ref.Eval(tt); math.Abs(got-want) > epsilon {
			t.Errorf("Eval(%v) = %v after cut and paste, want %v", tt, got, want)
		}
	}
}

func TestCopyAndClearRange(t *testing.T) {
	l := newList(midiRange, ev(0, 0), ev(100, 10), ev(200, 20))
	c := l.Copy(100, 200)
	checkPoints(t, c, ev(0, 10), ev(100, 20))
	checkPoints(t, l, ev(0, 0), ev(100, 10), ev(200, 20))
	if c2 := l.CloneRange(100, 200); !c2.Equal(c) {
		t.Fatalf("CloneRange differs from Copy: %v vs %v", c2.Events(), c.Events())
	}
	l.ClearRange(50, 150)
	checkPoints(t, l, ev(0, 0), ev(50, 5), ev(150, 15), ev(200, 20))
	if got := l.Eval(100); got != 10 {
		t.Fatalf("Eval(100) = %v after ClearRange, want 10", got)
	}
}

func TestZeroLengthRange(t *testing.T) {
	t.Run("ClearRange", func(t *testing.T) {
		l := newList(midiRange, ev(0, 0), ev(300, 30))
		l.ClearRange(100, 100)
		checkPoints(t, l, ev(0, 0), ev(100, 10), ev(300, 30))
	})
	t.Run("ClearRangeAtPoint", func(t *testing.T) {
		l := newList(midiRange, ev(0, 0), ev(100, 10), ev(300, 30))
		l.ClearRange(100, 100)
		checkPoints(t, l, ev(0, 0), ev(100, 10), ev(300, 30))
	})
	t.Run("Copy", func(t *testing.T) {
		l := newList(midiRange, ev(0, 0), ev(300, 30))
		checkPoints(t, l.Copy(100, 100), ev(0, 10))
	})
	t.Run("Cut", func(t *testing.T) {
		l := newList(midiRange, ev(0, 0), ev(300, 30))
		checkPoints(t, l.Cut(100, 100), ev(0, 10))
		checkPoints(t, l, ev(0, 0), ev(100, 10), ev(300, 30))
	})
	t.Run("PasteDuplicates", func(t *testing.T) {
		l := newList(midiRange, ev(0, 0), ev(300, 30))
		src := newList(midiRange, ev(0, 5), ev(0, 7))
		if !l.Paste(src, 100) {
			t.Fatalf("Paste returned false")
		}
		checkInvariants(t, l)
		if got := l.Eval(100); got != 7 {
			t.Errorf("Eval(100) = %v after paste, want 7", got)
		}
	})
}

func TestTruncate(t *testing.T) {
	t.Run("EndShrink", func(t *testing.T) {
		l := newList(midiRange, ev(0, 0), ev(100, 10))
		l.TruncateEnd(50)
		checkPoints(t, l, ev(0, 0), ev(50, 5))
	})
	t.Run("EndGrow", func(t *testing.T) {
		l := newList(midiRange, ev(0, 0), ev(100, 10))
		l.TruncateEnd(200)
		checkPoints(t, l, ev(0, 0), ev(100, 10), ev(200, 10))
	})
	t.Run("EndGrowFlat", func(t *testing.T) {
		l := newList(midiRange, ev(0, 5), ev(100, 5))
		l.TruncateEnd(200)
		checkPoints(t, l, ev(0, 5), ev(200, 5))
	})
	t.Run("StartShrink", func(t *testing.T) {
		l := newList(midiRange, ev(0, 0), ev(100, 100))
		l.TruncateStart(50)
		checkPoints(t, l, ev(0, 50), ev(50, 100))
	})
	t.Run("StartGrow", func(t *testing.T) {
		l := newList(midiRange, ev(0, 0), ev(100, 100))
		l.TruncateStart(200)
		checkPoints(t, l, ev(0, 0), ev(100, 0), ev(200, 100))
	})
}

func TestShift(t *testing.T) {
	t.Run("Forward", func(t *testing.T) {
		l := newList(midiRange, ev(0, 0), ev(100, 100))
		ref := l.Clone()
		l.Shift(50, 100)
		checkPoints(t, l, ev(0, 0), ev(50, 50), ev(150, 50), ev(200, 100))
		for _, tt := range []kontrol.Time{0, 25, 50} {
			if got, want := l.Eval(tt), ref.Eval(tt); got != want {
				t.Errorf("Eval(%v) = %v, want %v", tt, got, want)
			}
		}
		for _, tt := range []kontrol.Time{50, 75, 100} {
			if got, want := l.Eval(tt+100), ref.Eval(tt); got != want {
				t.Errorf("Eval(%v) = %v, want %v", tt+100, got, want)
			}
		}
	})
	t.Run("Backward", func(t *testing.T) {
		l := newList(midiRange, ev(0, 0), ev(100, 100))
		l.Shift(50, -20)
		checkPoints(t, l, ev(0, 0), ev(49, 50), ev(50, 70), ev(80, 100))
	})
}

func TestMoveRanges(t *testing.T) {
	l := newList(midiRange, ev(0, 0), ev(10, 10), ev(20, 20), ev(30, 30), ev(40, 40))
	if !l.MoveRanges([]automation.RangeMove{{From: 10, Length: 10, To: 30}}) {
		t.Fatalf("MoveRanges returned false")
	}
	checkPoints(t, l, ev(0, 0), ev(30, 10), ev(40, 20))
	if newList(midiRange).MoveRanges([]automation.RangeMove{{From: 0, Length: 10, To: 20}}) {
		t.Fatalf("MoveRanges on an empty list returned true")
	}
}

func TestListMerge(t *testing.T) {
	l := newList(midiRange, ev(0, 10), ev(100, 10))
	o := newList(midiRange, ev(50, 20))
	l.ListMerge(o, func(a, b float64) float64 { return a + b })
	checkPoints(t, l, ev(0, 30), ev(50, 30), ev(100, 30))
}

func TestScale(t *testing.T) {
	l := newList(midiRange, ev(0, 0), ev(100, 100))
	l.XScale(2)
	checkPoints(t, l, ev(0, 0), ev(200, 100))
	if !l.ExtendTo(400) {
		t.Fatalf("ExtendTo returned false")
	}
	checkPoints(t, l, ev(0, 0), ev(400, 100))
	if l.ExtendTo(400) {
		t.Fatalf("ExtendTo to the current end returned true")
	}
	l.YTransform(func(v float64) float64 { return v * 2 })
	checkPoints(t, l, ev(0, 0), ev(400, 127))
}

func TestEraseAndModify(t *testing.T) {
	l := newList(midiRange, ev(0, 0), ev(10, 1), ev(20, 2), ev(30, 3))
	if l.Erase(10, 5) {
		t.Fatalf("Erase removed a point with a different value")
	}
	if !l.Erase(10, 1) {
		t.Fatalf("Erase did not find the point")
	}
	l.EraseIndex(0)
	checkPoints(t, l, ev(20, 2), ev(30, 3))
	l.Modify(0, 40, 4)
	checkPoints(t, l, ev(30, 3), ev(40, 4))
	l.Slide(0, 5)
	checkPoints(t, l, ev(35, 3), ev(45, 4))
	if !l.EraseRange(0, 40) || l.EraseRange(0, 40) {
		t.Fatalf("EraseRange reported the wrong result")
	}
	checkPoints(t, l, ev(45, 4))
}

func TestControlPointsAdjacent(t *testing.T) {
	l := newList(midiRange, ev(0, 0), ev(10, 1), ev(20, 2))
	for _, c := range []struct {
		t             kontrol.Time
		before, after int
	}{{10, 0, 2}, {5, 0, 1}, {0, -1, -1}, {25, -1, -1}, {15, 1, 2}} {
		if b, a := l.ControlPointsAdjacent(c.t); b != c.before || a != c.after {
			t.Errorf("ControlPointsAdjacent(%v) = %d, %d, want %d, %d", c.t, b, a, c.before, c.after)
		}
	}
}

func TestSetInterpolation(t *testing.T) {
	l := newList(midiRange)
	var got []kontrol.InterpolationStyle
	l.Observe(automation.Observer{InterpolationChanged: func(s kontrol.InterpolationStyle) { got = append(got, s) }})
	if l.SetInterpolation(kontrol.Logarithmic) {
		t.Fatalf("Logarithmic accepted for a range starting at zero")
	}
	if !l.SetInterpolation(kontrol.Exponential) {
		t.Fatalf("Exponential refused for a range starting at zero")
	}
	if !l.SetInterpolation(kontrol.Discrete) {
		t.Fatalf("Discrete refused")
	}
	if len(got) != 2 || got[0] != kontrol.Exponential || got[1] != kontrol.Discrete {
		t.Fatalf("InterpolationChanged got %v", got)
	}
}

type constCurve struct {
	value float64
	dirty int
}

func (c *constCurve) Eval(kontrol.Time) float64 { return c.value }
func (c *constCurve) MarkDirty()                { c.dirty++ }

func TestCurved(t *testing.T) {
	l := newList(midiRange, ev(0, 0), ev(100, 100))
	c := &constCurve{value: 42}
	l.SetCurve(c)
	l.SetInterpolation(kontrol.Curved)
	if got := l.Eval(50); got != 42 {
		t.Fatalf("Eval(50) = %v, want the curve value 42", got)
	}
	if _, ok := l.RTSafeEval(50); ok {
		t.Fatalf("RTSafeEval of a curved list reported ok")
	}
	before := c.dirty
	l.Add(50, 3, false, false)
	if c.dirty == before {
		t.Fatalf("curve was not marked dirty by Add")
	}
}

func TestRTSafeVector(t *testing.T) {
	t.Run("Linear", func(t *testing.T) {
		l := newList(midiRange, ev(0, 0), ev(100, 100))
		out := make([]float64, 10)
		if !l.RTSafeVector(0, 100, out) {
			t.Fatalf("RTSafeVector failed")
		}
		for i, v := range out {
			if v != float64(10*i) {
				t.Fatalf("out[%d] = %v, want %v", i, v, 10*i)
			}
		}
	})
	t.Run("Discrete", func(t *testing.T) {
		l := newList(midiRange, ev(0, 1), ev(50, 2))
		l.SetInterpolation(kontrol.Discrete)
		out := make([]float64, 10)
		if !l.RTSafeVector(0, 100, out) {
			t.Fatalf("RTSafeVector failed")
		}
		for i, v := range out {
			want := 1.0
			if i >= 5 {
				want = 2
			}
			if v != want {
				t.Fatalf("out[%d] = %v, want %v", i, v, want)
			}
		}
	})
}

func TestStats(t *testing.T) {
	l := newList(midiRange, ev(0, 1), ev(10, 3), ev(20, 5))
	s := l.Stats()
	if s.Count != 3 || s.Min != 1 || s.Max != 5 || s.Mean != 3 || s.Start != 0 || s.End != 20 {
		t.Fatalf("Stats() = %+v", s)
	}
	if (newList(midiRange).Stats() != automation.Stats{}) {
		t.Fatalf("Stats of an empty list not zero")
	}
}
