package automation

import (
	"math"
	"slices"

	"github.com/vsariola/kontrol"
)

// Add writes a point at t, the way a fader or a control surface writes.
//
// Outside a write pass the point is inserted in place, with guard points
// keeping the shape of the curve around it. During a write pass, Add
// overwrites: each write erases the points recorded earlier between the
// previous write and t. The first write of a pass inserts a guard point at
// the pass start time (when withGuards) so the curve before the pass keeps
// its shape.
//
// If the list is empty and withInitial is set, an anchor point is added at
// time zero so the curve is defined before t.
func (l *ControlList) Add(t kontrol.Time, value float64, withGuards, withInitial bool) {
	checkValue(value)
	value = l.clamp(value)
	delta := l.GuardPointDelta()

	l.mu.Lock()
	if len(l.events) == 0 && withInitial && t >= 1 {
		anchor := value
		if l.desc.Toggled {
			if value >= l.desc.Lower+(l.desc.Upper-l.desc.Lower)/2 {
				anchor = l.desc.Lower
			} else {
				anchor = l.desc.Upper
			}
		}
		l.events = append(l.events, kontrol.ControlEvent{When: 0, Value: anchor})
	}

	switch {
	case l.inWritePass && l.newWritePass:
		if withGuards {
			pos := l.insertPosition
			if pos == kontrol.MaxTime {
				pos = t
			}
			l.addGuardPoint(pos, 0)
		} else {
			l.setCursor(l.lowerBound(t))
		}
		l.writePassStarted = true
		l.didWriteDuringPass = true
		l.newWritePass = false
	case l.inWritePass && (l.cursorAtEnd() || t > l.events[l.cursor].When):
		i := len(l.events)
		if !l.cursorAtEnd() {
			i = l.cursor + 1 // keep the point written last
		}
		if withGuards {
			l.setCursor(l.eraseFromTo(i, t+delta))
			l.maybeAddInsertGuard(t)
		} else {
			l.setCursor(l.eraseFromTo(i, t))
		}
	case !l.inWritePass:
		l.setCursor(l.lowerBound(t))
	}
	if !l.cursorValidFor(t) {
		l.setCursor(l.lowerBound(t))
	}

	if l.cursorAtEnd() {
		if !l.maybeInsertStraightLine(t, value) {
			l.events = append(l.events, kontrol.ControlEvent{When: t, Value: value})
		}
		l.cursor = len(l.events) - 1
	} else if c := l.cursor; l.events[c].When == t {
		if l.events[c].Value != value {
			l.events[c].Value = value
			if c == len(l.events)-1 {
				l.invalidateCursor()
			}
		}
	} else {
		done := false
		if c > 0 {
			same1 := l.events[c-1].Value == value
			same2 := c > 1 && l.events[c-2].Value == value
			if same1 && same2 {
				// the new point would extend a flat line: move its end
				l.events[c-1].When = t
				l.cursor = c - 1
				done = true
			}
		}
		if !done && !l.inWritePass {
			l.addGuardPoint(t, -delta)
			l.maybeAddInsertGuard(t)
		} else if withGuards {
			l.maybeAddInsertGuard(t)
		}
		if !done {
			c := l.cursor
			if l.cursorAtEnd() {
				c = len(l.events)
			}
			l.events = slices.Insert(l.events, c, kontrol.ControlEvent{When: t, Value: value})
			l.cursor = c
		}
	}
	l.markDirty()
	l.unlockAndNotify(l.changed())
}

func (l *ControlList) setCursor(i int) {
	if i < 0 || i >= len(l.events) {
		l.cursor = noCursor
		return
	}
	l.cursor = i
}

// cursorValidFor reports whether inserting a point at t just before the
// cursor keeps the list sorted.
func (l *ControlList) cursorValidFor(t kontrol.Time) bool {
	c := l.cursor
	if l.cursorAtEnd() {
		c = len(l.events)
	}
	if c < len(l.events) && l.events[c].When < t {
		return false
	}
	return c == 0 || l.events[c-1].When < t
}

// eraseFromTo erases the points from index i on that are earlier than t and
// returns the index of the first point left after them.
func (l *ControlList) eraseFromTo(i int, t kontrol.Time) int {
	j := i
	for j < len(l.events) && l.events[j].When < t {
		j++
	}
	if j > i {
		l.events = slices.Delete(l.events, i, j)
	}
	return i
}

// addGuardPoint inserts a point with the current value of the curve at
// t+offset, unless there already is a point between t+offset and t. A guard
// after t is only needed if the curve goes on after t. The
// cursor is left just after the guard point. Caller holds the write lock.
func (l *ControlList) addGuardPoint(t, offset kontrol.Time) {
	if offset < 0 && t+offset < 0 {
		return
	}
	if offset < 0 {
		if s := l.lowerBound(t + offset); s < len(l.events) && s != l.lowerBound(t) {
			return
		}
	} else if offset > 0 {
		u := l.upperBound(t)
		if u == len(l.events) || l.upperBound(t+offset) != u {
			return
		}
	}
	if l.inWritePass && l.newWritePass {
		l.writePassStarted = true
		l.didWriteDuringPass = true
		l.newWritePass = false
	}
	t += offset
	c := l.lowerBound(t)
	v := l.editEval(t)
	switch {
	case c == len(l.events):
		l.events = append(l.events, kontrol.ControlEvent{When: t, Value: v})
		l.invalidateCursor()
	case l.events[c].When == t:
		l.setCursor(c + 1)
	default:
		l.events = slices.Insert(l.events, c, kontrol.ControlEvent{When: t, Value: v})
		l.setCursor(c + 1)
	}
}

// editEval evaluates the curve for inserting guard and boundary points.
// Spline curves are approximated linearly; the curve recomputes its
// coefficients from the new points anyway.
func (l *ControlList) editEval(t kontrol.Time) float64 {
	if l.interpolation != kontrol.Curved {
		return l.clamp(l.unlockedEval(t))
	}
	l.interpolation = kontrol.Linear
	v := l.unlockedEval(t)
	l.interpolation = kontrol.Curved
	return l.clamp(v)
}

// maybeAddInsertGuard inserts a point with the value of the point at the
// cursor just after t, if the point at the cursor is far enough, and moves
// the cursor to it.
func (l *ControlList) maybeAddInsertGuard(t kontrol.Time) {
	if l.cursorAtEnd() {
		return
	}
	delta := l.GuardPointDelta()
	next := l.events[l.cursor]
	if next.When-t > delta {
		l.events = slices.Insert(l.events, l.cursor, kontrol.ControlEvent{When: t + delta, Value: next.Value})
	}
}

// maybeInsertStraightLine moves the last point to t if the last two points
// both have the given value, instead of adding a third one on the same line.
func (l *ControlList) maybeInsertStraightLine(t kontrol.Time, value float64) bool {
	n := len(l.events)
	if n < 2 || l.events[n-1].Value != value || l.events[n-2].Value != value {
		return false
	}
	l.events[n-1].When = t
	return true
}

// StartWritePass prepares the list for recording from t on. The insert
// cursor is looked up lazily at the first write, which may never come.
func (l *ControlList) StartWritePass(t kontrol.Time) {
	l.mu.Lock()
	l.insertPosition = t
	l.invalidateCursor()
	dirty := false
	if l.inWritePass && !l.newWritePass {
		n := len(l.events)
		l.addGuardPoint(t, 0)
		if len(l.events) != n {
			l.markDirty()
			dirty = l.changed()
		}
	}
	l.unlockAndNotify(dirty)
}

// WritePassFinished ends recording. If anything was written, the points are
// thinned with the given factor.
func (l *ControlList) WritePassFinished(t kontrol.Time, thinningFactor float64) {
	l.mu.Lock()
	wrote := l.didWriteDuringPass
	l.didWriteDuringPass = false
	l.mu.Unlock()
	if wrote {
		l.Thin(thinningFactor)
	}
	l.mu.Lock()
	l.newWritePass = true
	l.inWritePass = false
	l.mu.Unlock()
}

// SetInWritePass switches recording on or off. With addPoint, switching on
// adds a guard point at t.
func (l *ControlList) SetInWritePass(yn, addPoint bool, t kontrol.Time) {
	l.mu.Lock()
	l.inWritePass = yn
	dirty := false
	if yn && addPoint {
		n := len(l.events)
		l.addGuardPoint(t, 0)
		if len(l.events) != n {
			l.markDirty()
			dirty = l.changed()
		}
	}
	l.unlockAndNotify(dirty)
}

// EditorAdd inserts a point for a graphical editor. It refuses to add a
// point where one already exists. With withGuard, guard points keep the
// shape of the curve on both sides of the new point.
func (l *ControlList) EditorAdd(t kontrol.Time, value float64, withGuard bool) bool {
	checkValue(value)
	l.mu.Lock()
	if i := l.lowerBound(t); i < len(l.events) && l.events[i].When == t {
		l.mu.Unlock()
		return false
	}
	value = l.clamp(value)
	if len(l.events) == 0 && t >= 1 {
		l.events = append(l.events, kontrol.ControlEvent{When: 0, Value: value})
	}
	l.insertPosition = t
	if withGuard {
		l.addGuardPoint(t, -l.GuardPointDelta())
		l.setCursor(l.lowerBound(t))
		l.maybeAddInsertGuard(t)
	}
	i := l.lowerBound(t)
	l.events = slices.Insert(l.events, i, kontrol.ControlEvent{When: t, Value: value})
	l.invalidateCursor()
	l.markDirty()
	l.unlockAndNotify(l.changed())
	return true
}

// EditorAddOrdered replaces the curve between the first and the last of
// points (which must be in time order) with points. With withGuard, guard
// points just outside the range keep the shape of the curve beyond it.
func (l *ControlList) EditorAddOrdered(points []kontrol.ControlEvent, withGuard bool) bool {
	if len(points) == 0 {
		return false
	}
	for _, p := range points {
		checkValue(p.Value)
	}
	earliest, latest := points[0].When, points[len(points)-1].When
	delta := l.GuardPointDelta()

	l.mu.Lock()
	before, after := l.editEval(earliest-delta), l.editEval(latest+delta)
	hasBefore := len(l.events) > 0 && l.events[0].When < earliest-delta
	hasAfter := len(l.events) > 0 && l.events[len(l.events)-1].When > latest+delta
	l.eraseRange(earliest, latest)
	if withGuard {
		if hasBefore && earliest-delta >= 0 {
			if i := l.lowerBound(earliest - delta); i == len(l.events) || l.events[i].When >= earliest {
				l.events = slices.Insert(l.events, i, kontrol.ControlEvent{When: earliest - delta, Value: before})
			}
		}
		if hasAfter && latest+delta > latest {
			i := l.upperBound(latest)
			if i == len(l.events) || l.events[i].When > latest+delta {
				l.events = slices.Insert(l.events, i, kontrol.ControlEvent{When: latest + delta, Value: after})
			}
		}
	}
	if len(l.events) == 0 && earliest > 0 {
		l.events = append(l.events, kontrol.ControlEvent{When: 0, Value: l.clamp(points[0].Value)})
	}
	i := l.lowerBound(earliest)
	added := make([]kontrol.ControlEvent, 0, len(points))
	for _, p := range points {
		if len(added) > 0 && p.When <= added[len(added)-1].When {
			continue
		}
		added = append(added, kontrol.ControlEvent{When: p.When, Value: l.clamp(p.Value)})
	}
	l.events = slices.Insert(l.events, i, added...)
	l.insertPosition = latest
	l.invalidateCursor()
	l.markDirty()
	l.unlockAndNotify(l.changed())
	return true
}

// Thin removes points that add little to the shape of the curve: for every
// three consecutive points, the middle one is dropped if the triangle they
// form (values normalized to [0, 1]) has an area below thinningFactor. The
// first and the last point are never removed. Toggled parameters are not
// thinned.
func (l *ControlList) Thin(thinningFactor float64) {
	if thinningFactor == 0 || l.desc.Toggled {
		return
	}
	thinningFactor *= 0.7071
	l.mu.Lock()
	out := l.events[:0]
	for _, cur := range l.events {
		if n := len(out); n >= 2 {
			pp, p := out[n-2], out[n-1]
			ppw, pw, cw := float64(pp.When), float64(p.When), float64(cur.When)
			ppv := l.desc.ToInterface(pp.Value)
			pv := l.desc.ToInterface(p.Value)
			cv := l.desc.ToInterface(cur.Value)
			area := math.Abs(ppw*(pv-cv) + pw*(cv-ppv) + cw*(ppv-pv))
			if area < thinningFactor {
				out[n-1] = cur
				continue
			}
		}
		out = append(out, cur)
	}
	changed := len(out) != len(l.events)
	l.events = out
	dirty := false
	if changed {
		l.invalidateCursor()
		l.markDirty()
		dirty = l.changed()
	}
	l.unlockAndNotify(dirty)
}
