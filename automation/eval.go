package automation

import (
	"math"

	"github.com/pkg/errors"
	"github.com/viterin/vek"
	"github.com/vsariola/kontrol"
)

// Eval returns the value of the curve at t. An empty list evaluates to the
// Normal value of the descriptor, a list with one point to the value of that
// point, and times outside the points to the value of the nearest end point.
func (l *ControlList) Eval(t kontrol.Time) float64 {
	l.mu.RLock()
	if l.interpolation == kontrol.Curved && l.curve != nil && len(l.events) > 1 {
		c := l.curve
		l.mu.RUnlock()
		return c.Eval(t)
	}
	defer l.mu.RUnlock()
	return l.unlockedEval(t)
}

// RTSafeEval is Eval for the realtime thread: it never blocks. ok is false
// if the list was being modified, or if the list uses Curved interpolation
// (the curve takes the lock itself).
func (l *ControlList) RTSafeEval(t kontrol.Time) (value float64, ok bool) {
	if !l.mu.TryRLock() {
		return 0, false
	}
	defer l.mu.RUnlock()
	if l.interpolation == kontrol.Curved && len(l.events) > 1 {
		return 0, false
	}
	return l.unlockedEval(t), true
}

// UnlockedEval evaluates the curve; the caller must hold the list locked,
// e.g. inside WithReadLock.
func (l *ControlList) UnlockedEval(t kontrol.Time) float64 {
	return l.unlockedEval(t)
}

// WithReadLock runs f with the list read-locked. f may call the Unlocked*
// methods of the list, and nothing else of it.
func (l *ControlList) WithReadLock(f func()) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f()
}

// TryWithReadLock is WithReadLock for the realtime thread: it returns false
// without calling f if the lock is not available.
func (l *ControlList) TryWithReadLock(f func()) bool {
	if !l.mu.TryRLock() {
		return false
	}
	defer l.mu.RUnlock()
	f()
	return true
}

func (l *ControlList) unlockedEval(t kontrol.Time) float64 {
	switch len(l.events) {
	case 0:
		return l.desc.Normal
	case 1:
		return l.events[0].Value
	}
	first, last := l.events[0], l.events[len(l.events)-1]
	if t >= last.When {
		return last.Value
	}
	if t <= first.When {
		return first.Value
	}
	if len(l.events) == 2 {
		if l.interpolation == kontrol.Discrete {
			return first.Value
		}
		return l.interpolate(first, last, t)
	}
	return l.multipointEval(t)
}

func (l *ControlList) multipointEval(t kontrol.Time) float64 {
	if l.interpolation == kontrol.Discrete {
		i := l.lowerBound(t)
		if i == 0 || l.events[i].When == t {
			return l.events[i].Value
		}
		return l.events[i-1].Value
	}
	var first, second int
	if l.cacheMu.TryLock() {
		c := &l.lookup
		if c.left == kontrol.MaxTime || c.left > t || c.first < 0 || c.second >= len(l.events) || l.events[c.second].When <= t {
			c.first = l.lowerBound(t)
			c.second = l.upperBound(t)
		}
		first, second = c.first, c.second
		if first == second {
			c.left = t
		} else {
			c.left = kontrol.MaxTime
		}
		l.cacheMu.Unlock()
	} else {
		first = l.lowerBound(t)
		second = l.upperBound(t)
	}
	if first != second {
		return l.events[first].Value
	}
	if first == 0 {
		return l.events[0].Value
	}
	if second >= len(l.events) {
		return l.events[len(l.events)-1].Value
	}
	return l.interpolate(l.events[first-1], l.events[second], t)
}

// interpolate evaluates the curve between the points a and b, a.When < t <
// b.When.
func (l *ControlList) interpolate(a, b kontrol.ControlEvent, t kontrol.Time) float64 {
	fraction := float64(t-a.When) / float64(b.When-a.When)
	switch l.interpolation {
	case kontrol.Logarithmic:
		return interpolateLogarithmic(a.Value, b.Value, fraction, l.desc.Lower, l.desc.Upper)
	case kontrol.Exponential:
		return interpolateGain(a.Value, b.Value, fraction, l.desc.Upper)
	case kontrol.Discrete:
		return a.Value
	case kontrol.Curved:
		panic(errors.WithStack(errors.New("automation: Curved interpolation must be evaluated by its Curve")))
	}
	return interpolateLinear(a.Value, b.Value, fraction)
}

func interpolateLinear(from, to, fraction float64) float64 {
	return from + fraction*(to-from)
}

func interpolateLogarithmic(from, to, fraction, lower, upper float64) float64 {
	r := math.Log(upper / lower)
	l0 := math.Log(from/lower) / r
	l1 := math.Log(to/lower) / r
	return lower * math.Pow(upper/lower, l0+fraction*(l1-l0))
}

func interpolateGain(from, to, fraction, upper float64) float64 {
	p0 := GainToSliderPositionWithMax(from, upper)
	p1 := GainToSliderPositionWithMax(to, upper)
	return SliderPositionToGainWithMax(p0+fraction*(p1-p0), upper)
}

// GainToSliderPosition maps a linear gain (1 = unity) to the position of a
// fader in [0, 1]; unity gain sits a bit above three quarters.
func GainToSliderPosition(g float64) float64 {
	if g <= 0 {
		return 0
	}
	b := (6*math.Log(g)/math.Log(2) + 192) / 198
	if b <= 0 {
		return 0
	}
	return math.Pow(b, 8)
}

// SliderPositionToGain is the inverse of GainToSliderPosition.
func SliderPositionToGain(pos float64) float64 {
	if pos <= 0 {
		return 0
	}
	return math.Pow(2, (math.Sqrt(math.Sqrt(math.Sqrt(pos)))*198-192)/6)
}

// GainToSliderPositionWithMax is GainToSliderPosition for a fader whose top
// is at maxGain instead of 2.
func GainToSliderPositionWithMax(g, maxGain float64) float64 {
	return GainToSliderPosition(g * 2 / maxGain)
}

func SliderPositionToGainWithMax(pos, maxGain float64) float64 {
	return SliderPositionToGain(pos) * maxGain / 2
}

// RTSafeVector fills out with the curve evaluated at evenly spaced times,
// out[i] at start + i*(end-start)/len(out). It does not allocate and does not
// block; it returns false, leaving out untouched, if the list was being
// modified or uses Curved interpolation.
func (l *ControlList) RTSafeVector(start, end kontrol.Time, out []float64) bool {
	if len(out) == 0 {
		return true
	}
	if !l.mu.TryRLock() {
		return false
	}
	defer l.mu.RUnlock()
	if l.interpolation == kontrol.Curved && len(l.events) > 1 {
		return false
	}
	l.unlockedVector(start, end, out)
	return true
}

func (l *ControlList) unlockedVector(start, end kontrol.Time, out []float64) {
	n := len(out)
	step := float64(end-start) / float64(n)
	if len(l.events) < 2 || step <= 0 {
		fill(out, l.unlockedEval(start))
		return
	}
	if l.interpolation != kontrol.Linear && l.interpolation != kontrol.Discrete {
		for i := range out {
			out[i] = l.unlockedEval(start + kontrol.Time(math.Round(float64(i)*step)))
		}
		return
	}
	first, last := l.events[0], l.events[len(l.events)-1]
	// index of the first sample at or after a time
	sampleAt := func(t kontrol.Time) int {
		k := int(math.Ceil(float64(t-start) / step))
		return max(0, min(n, k))
	}
	i := 0
	if k := sampleAt(first.When); k > 0 {
		fill(out[:k], first.Value)
		i = k
	}
	seg := max(0, l.lowerBound(start+kontrol.Time(float64(i)*step))-1)
	for i < n && seg+1 < len(l.events) {
		a, b := l.events[seg], l.events[seg+1]
		k := sampleAt(b.When)
		if k > i {
			part := out[i:k]
			if l.interpolation == kontrol.Discrete {
				fill(part, a.Value)
			} else {
				t0 := float64(start) + float64(i)*step
				slope := (b.Value - a.Value) / float64(b.When-a.When)
				for j := range part {
					part[j] = float64(j)
				}
				vek.MulNumber_Inplace(part, slope*step)
				vek.AddNumber_Inplace(part, a.Value+slope*(t0-float64(a.When)))
			}
			i = k
		}
		seg++
	}
	if i < n {
		fill(out[i:], last.Value)
	}
}

func fill(out []float64, v float64) {
	for i := range out {
		out[i] = v
	}
}
