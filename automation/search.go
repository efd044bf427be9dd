package automation

import (
	"math"

	"github.com/vsariola/kontrol"
)

// RTSafeEarliestEvent returns the next point (Discrete lists) or the next
// integer crossing of the curve (all other lists) after start, see
// RTSafeEarliestEventLinearUnlocked. It never blocks: ok is false if the
// list was being modified or there is no such event.
func (l *ControlList) RTSafeEarliestEvent(start kontrol.Time, inclusive bool, minDelta kontrol.Time) (t kontrol.Time, v float64, ok bool) {
	if !l.mu.TryRLock() {
		return 0, 0, false
	}
	defer l.mu.RUnlock()
	if l.interpolation == kontrol.Discrete {
		return l.RTSafeEarliestEventDiscreteUnlocked(start, inclusive)
	}
	return l.RTSafeEarliestEventLinearUnlocked(start, inclusive, minDelta)
}

// withSearchCache runs f with the search cache of the list, or with a
// throwaway cache if another reader is using it.
func (l *ControlList) withSearchCache(f func(c *searchCache)) {
	if l.cacheMu.TryLock() {
		f(&l.search)
		l.cacheMu.Unlock()
		return
	}
	var c searchCache
	c.invalidate()
	f(&c)
}

// buildSearchCache moves c.first to the first point at or after start,
// searching from scratch only when the cache is behind start.
func (l *ControlList) buildSearchCache(c *searchCache, start kontrol.Time, inclusive bool) {
	n := len(l.events)
	if n == 0 {
		c.first = 0
		c.left = kontrol.MaxTime
		return
	}
	if c.left == kontrol.MaxTime || c.left > start || (inclusive && c.left == start) || c.first < 0 || c.first > n {
		c.first = l.lowerBound(start)
	}
	for c.first < n && l.events[c.first].When < start {
		c.first++
	}
	c.left = start
}

// RTSafeEarliestEventDiscreteUnlocked returns the first point after start,
// or at start if inclusive. The caller holds the read lock. Successive calls
// with increasing start scan forward from where the previous call stopped.
func (l *ControlList) RTSafeEarliestEventDiscreteUnlocked(start kontrol.Time, inclusive bool) (t kontrol.Time, v float64, ok bool) {
	l.withSearchCache(func(c *searchCache) {
		t, v, ok = l.earliestDiscrete(c, start, inclusive)
	})
	return t, v, ok
}

func (l *ControlList) earliestDiscrete(c *searchCache, start kontrol.Time, inclusive bool) (kontrol.Time, float64, bool) {
	l.buildSearchCache(c, start, inclusive)
	n := len(l.events)
	for !inclusive && c.first < n && l.events[c.first].When == start {
		c.first++
	}
	if c.first >= n {
		return 0, 0, false
	}
	e := l.events[c.first]
	c.left = e.When
	c.first++
	return e.When, e.Value, true
}

// RTSafeEarliestEventLinearUnlocked returns the next time after start (at
// start if inclusive) where the curve, treated as linear, crosses an
// integer value, or the next point if it comes first. The result is at
// least minDelta after start unless a point lies in between; this limits
// the rate of the controller messages generated from a ramp. The caller
// holds the read lock.
func (l *ControlList) RTSafeEarliestEventLinearUnlocked(start kontrol.Time, inclusive bool, minDelta kontrol.Time) (t kontrol.Time, v float64, ok bool) {
	l.withSearchCache(func(c *searchCache) {
		t, v, ok = l.earliestLinear(c, start, inclusive, minDelta)
	})
	return t, v, ok
}

func (l *ControlList) earliestLinear(c *searchCache, start kontrol.Time, inclusive bool, minDelta kontrol.Time) (kontrol.Time, float64, bool) {
	n := len(l.events)
	switch n {
	case 0:
		return 0, 0, false
	case 1:
		return l.earliestDiscrete(c, start+minDelta, inclusive)
	}
	if minDelta > 0 {
		l.buildSearchCache(c, start, inclusive)
		if c.first < n {
			e := l.events[c.first]
			after := e.When > start || (inclusive && e.When == start)
			within := e.When < start+minDelta || (!inclusive && e.When == start+minDelta)
			if after && within {
				c.left = e.When
				return e.When, e.Value, true
			}
		}
	}
	start += minDelta
	l.buildSearchCache(c, start, inclusive)
	if c.first >= n {
		return 0, 0, false
	}
	var first, next kontrol.ControlEvent
	if c.first == 0 || l.events[c.first].When <= start {
		first = l.events[c.first]
		c.first++
		if c.first >= n {
			return 0, 0, false
		}
		next = l.events[c.first]
	} else {
		first, next = l.events[c.first-1], l.events[c.first]
	}
	if inclusive && first.When == start {
		c.left = first.When
		return first.When, first.Value, true
	}
	if next.When < start || (!inclusive && next.When == start) {
		return 0, 0, false
	}
	if math.Abs(first.Value-next.Value) <= 1 {
		if next.When > start {
			c.left = next.When
			return next.When, next.Value, true
		}
		return 0, 0, false
	}

	// the first integer level the ramp reaches after start
	slope := (next.Value - first.Value) / float64(next.When-first.When)
	from := first.When
	if start > from {
		from = start
	}
	cur := first.Value + slope*float64(from-first.When)
	var level float64
	switch {
	case inclusive && cur == math.Trunc(cur):
		level = cur
	case slope > 0:
		level = math.Floor(cur) + 1
	default:
		level = math.Ceil(cur) - 1
	}
	x := first.When + kontrol.Time(math.Ceil((level-first.Value)/slope))
	if x >= next.When {
		c.left = next.When
		return next.When, next.Value, true
	}
	if x < start || (!inclusive && x == start) {
		x = start
		if !inclusive {
			x++
		}
	}
	y := math.Max(math.Min(first.Value, next.Value), math.Min(math.Max(first.Value, next.Value), level))
	c.left = x
	return x, y, true
}
