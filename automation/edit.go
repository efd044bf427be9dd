package automation

import (
	"math"
	"slices"

	"github.com/pkg/errors"
	"github.com/vsariola/kontrol"
)

type cutOp int

const (
	opCut cutOp = iota
	opCopy
	opClear
)

// eraseRange erases the points in [start, end]. Caller holds the write lock.
func (l *ControlList) eraseRange(start, end kontrol.Time) bool {
	s := l.lowerBound(start)
	if s == len(l.events) {
		return false
	}
	e := l.upperBound(end)
	if e <= s {
		return false
	}
	l.events = slices.Delete(l.events, s, e)
	l.invalidateCursor()
	return true
}

// EraseRange erases the points in [start, end].
func (l *ControlList) EraseRange(start, end kontrol.Time) bool {
	l.mu.Lock()
	erased := l.eraseRange(start, end)
	dirty := false
	if erased {
		l.markDirty()
		dirty = l.changed()
	}
	l.unlockAndNotify(dirty)
	return erased
}

// Erase erases the first point at t with exactly the value v.
func (l *ControlList) Erase(t kontrol.Time, v float64) bool {
	l.mu.Lock()
	for i := l.lowerBound(t); i < len(l.events) && l.events[i].When == t; i++ {
		if l.events[i].Value == v {
			l.events = slices.Delete(l.events, i, i+1)
			l.invalidateCursor()
			l.markDirty()
			l.unlockAndNotify(l.changed())
			return true
		}
	}
	l.mu.Unlock()
	return false
}

// EraseIndex erases the i-th point.
func (l *ControlList) EraseIndex(i int) {
	l.EraseIndexRange(i, i+1)
}

// EraseIndexRange erases the points with indices in [i, j).
func (l *ControlList) EraseIndexRange(i, j int) {
	l.mu.Lock()
	i, j = max(i, 0), min(j, len(l.events))
	if i >= j {
		l.mu.Unlock()
		return
	}
	l.events = slices.Delete(l.events, i, j)
	l.invalidateCursor()
	l.markDirty()
	l.unlockAndNotify(l.changed())
}

// resort restores the time order after an edit that may have broken it.
// While frozen, sorting is left to Thaw.
func (l *ControlList) resort() {
	if l.frozen > 0 {
		l.sortPending = true
		return
	}
	if !l.isSorted() {
		l.sortEvents()
	}
	l.removeDuplicates()
	l.invalidateCursor()
}

// Slide moves the i-th point and all the points after it by distance.
func (l *ControlList) Slide(i int, distance kontrol.Time) {
	l.mu.Lock()
	if i < 0 || i >= len(l.events) {
		l.mu.Unlock()
		return
	}
	for j := i; j < len(l.events); j++ {
		l.events[j].When += distance
	}
	l.resort()
	l.markDirty()
	l.unlockAndNotify(l.changed())
}

// Modify moves the i-th point to (t, v). If the move takes the point past its
// neighbours, the list is sorted again (at Thaw, when frozen).
func (l *ControlList) Modify(i int, t kontrol.Time, v float64) {
	checkValue(v)
	v = l.clamp(v)
	l.mu.Lock()
	if i < 0 || i >= len(l.events) {
		l.mu.Unlock()
		return
	}
	l.events[i].When = t
	l.events[i].Value = v
	l.resort()
	l.markDirty()
	l.unlockAndNotify(l.changed())
}

// ControlPointsAdjacent returns the indices of the point before t and the
// first point after t, or -1 for either when there is none. A point exactly
// at t is skipped.
func (l *ControlList) ControlPointsAdjacent(t kontrol.Time) (before, after int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i := l.lowerBound(t)
	if i == len(l.events) || i == 0 {
		return -1, -1
	}
	before = i - 1
	after = l.upperBound(t)
	if after == len(l.events) {
		after = -1
	}
	return before, after
}

// Shift moves all the points at or after pos by distance. A negative
// distance removes the time [pos, pos-distance] first. Guard points keep the
// value of the curve at pos and at the destination.
func (l *ControlList) Shift(pos, distance kontrol.Time) {
	if distance == 0 {
		return
	}
	l.mu.Lock()
	var v0, v1 float64
	if distance < 0 {
		v0 = l.editEval(pos)
		v1 = l.editEval(pos - distance)
		l.eraseRange(pos, pos-distance)
	} else {
		v0 = l.editEval(pos)
		v1 = v0
	}
	dstGuardExists := false
	for i := range l.events {
		if l.events[i].When == pos {
			dstGuardExists = true
		}
		if l.events[i].When >= pos {
			l.events[i].When += distance
		}
	}
	if distance > 0 {
		if s := l.lowerBound(pos); s < len(l.events) {
			l.events = slices.Insert(l.events, s, kontrol.ControlEvent{When: pos, Value: v0})
		}
		pos += distance
	} else if pos > 0 {
		if s := l.lowerBound(pos - 1); s < len(l.events) && l.events[s].When != pos-1 {
			l.events = slices.Insert(l.events, s, kontrol.ControlEvent{When: pos - 1, Value: v0})
		}
	}
	if !dstGuardExists {
		s := l.lowerBound(pos)
		if s == len(l.events) || l.events[s].When != pos {
			v := v1
			if s == len(l.events) {
				v = v0
			}
			l.events = slices.Insert(l.events, s, kontrol.ControlEvent{When: pos, Value: v})
		}
	}
	l.invalidateCursor()
	l.markDirty()
	l.unlockAndNotify(l.changed())
}

// TruncateEnd makes last the time of the last point. Extending moves the last
// point (if the last segment is flat) or adds a point with the last value.
// Shortening removes the points after last and puts a point at last with
// the value the curve had there.
func (l *ControlList) TruncateEnd(last kontrol.Time) {
	l.mu.Lock()
	n := len(l.events)
	if n == 0 || l.events[n-1].When == last {
		l.mu.Unlock()
		return
	}
	if last > l.events[n-1].When {
		back := l.events[n-1]
		if n >= 2 && l.events[n-2].Value == back.Value {
			l.events[n-1].When = last
		} else {
			l.events = append(l.events, kontrol.ControlEvent{When: last, Value: back.Value})
		}
	} else {
		v := l.clamp(l.editEval(last))
		i := l.lowerBound(last)
		l.events = l.events[:i+1]
		l.events[i] = kontrol.ControlEvent{When: last, Value: v}
	}
	l.invalidateCursor()
	l.markDirty()
	l.unlockAndNotify(l.changed())
}

// TruncateStart changes the length of the curve (the time of the last point)
// to overall by adding or removing time at the front. Growing duplicates the
// first value at zero; shrinking removes the points before the new start and
// puts a point at zero with the value the curve had at the new start.
func (l *ControlList) TruncateStart(overall kontrol.Time) {
	l.mu.Lock()
	n := len(l.events)
	if n == 0 || l.events[n-1].When == overall {
		l.mu.Unlock()
		return
	}
	if overall > l.events[n-1].When {
		shift := overall - l.events[n-1].When
		for i := range l.events {
			l.events[i].When += shift
		}
		switch {
		case l.events[0].When <= 0:
		case n >= 2 && l.events[0].Value == l.events[1].Value:
			l.events[0].When = 0
		default:
			l.events = slices.Insert(l.events, 0, kontrol.ControlEvent{When: 0, Value: l.events[0].Value})
		}
	} else {
		firstLegal := l.events[n-1].When - overall
		v := l.clamp(l.editEval(firstLegal))
		i := l.upperBound(firstLegal)
		l.events = slices.Delete(l.events, 0, i)
		for j := range l.events {
			l.events[j].When -= firstLegal
		}
		l.events = slices.Insert(l.events, 0, kontrol.ControlEvent{When: 0, Value: v})
	}
	l.invalidateCursor()
	l.markDirty()
	l.unlockAndNotify(l.changed())
}

// Cut removes the points in [start, end] and returns them as a new list with
// start at time zero. Boundary points are added so neither list changes
// shape: the returned list gets points at zero and at end-start with the
// values the curve had at start and end; l gets a point at start (unless
// start is before the first point) and a point at end with the same values.
func (l *ControlList) Cut(start, end kontrol.Time) *ControlList {
	return l.cutCopyClear(start, end, opCut)
}

// Copy is Cut without removing anything from l.
func (l *ControlList) Copy(start, end kontrol.Time) *ControlList {
	return l.cutCopyClear(start, end, opCopy)
}

// ClearRange is Cut without returning the removed points.
func (l *ControlList) ClearRange(start, end kontrol.Time) {
	l.cutCopyClear(start, end, opClear)
}

func (l *ControlList) cutCopyClear(start, end kontrol.Time, op cutOp) *ControlList {
	l.mu.Lock()
	nal := NewControlList(l.parameter, l.desc, l.domain)
	nal.interpolation = l.interpolation
	s := l.lowerBound(start)
	if s == len(l.events) {
		l.mu.Unlock()
		return nal
	}
	e := l.upperBound(end)
	endValue := l.editEval(end)
	if l.events[s].When != start {
		val := l.editEval(start)
		if op != opCopy && start > l.events[0].When {
			l.events = slices.Insert(l.events, s, kontrol.ControlEvent{When: start, Value: val})
			s++
			e++
		}
		if op != opClear {
			nal.events = append(nal.events, kontrol.ControlEvent{When: 0, Value: val})
		}
	}
	endExists := e > s && l.events[e-1].When == end
	if op != opClear {
		for _, ev := range l.events[s:e] {
			nal.events = append(nal.events, kontrol.ControlEvent{When: ev.When - start, Value: ev.Value})
		}
		if !endExists && (len(nal.events) == 0 || nal.events[len(nal.events)-1].When != end-start) {
			nal.events = append(nal.events, kontrol.ControlEvent{When: end - start, Value: endValue})
		}
	}
	dirty := false
	if op != opCopy {
		l.events = slices.Delete(l.events, s, e)
		// with start == end the start boundary is already the end boundary
		if s == 0 || l.events[s-1].When != end {
			l.events = slices.Insert(l.events, s, kontrol.ControlEvent{When: end, Value: endValue})
		}
		l.invalidateCursor()
		l.markDirty()
		dirty = l.changed()
	}
	l.unlockAndNotify(dirty)
	return nal
}

// Paste inserts the points of src, shifted by pos, replacing the points of l
// in [pos, pos+src's last time]. Guard points just outside that range keep
// the shape of l beyond it. Values are rescaled if src automates a different
// parameter.
func (l *ControlList) Paste(src *ControlList, pos kontrol.Time) bool {
	src.mu.RLock()
	points := removeDuplicateEvents(slices.Clone(src.events))
	srcParam, srcDesc := src.parameter, src.desc
	src.mu.RUnlock()
	if len(points) == 0 {
		return false
	}
	start, end := pos+points[0].When, pos+points[len(points)-1].When
	delta := l.GuardPointDelta()

	l.mu.Lock()
	l.addGuardPoint(start, -delta)
	l.addGuardPoint(end, delta)
	l.eraseRange(start, end)
	for i := range points {
		v := points[i].Value
		if srcParam != l.parameter && srcDesc.Upper != srcDesc.Lower {
			v = (v - srcDesc.Lower) / (srcDesc.Upper - srcDesc.Lower)
			v = v*(l.desc.Upper-l.desc.Lower) + l.desc.Lower
			if l.desc.Toggled {
				if v < 0.5 {
					v = 0
				} else {
					v = 1
				}
			}
		}
		points[i] = kontrol.ControlEvent{When: points[i].When + pos, Value: l.clamp(v)}
	}
	l.events = slices.Insert(l.events, l.lowerBound(start), points...)
	l.invalidateCursor()
	l.markDirty()
	l.unlockAndNotify(l.changed())
	return true
}

// MoveRanges moves the automation of each range to its destination. Both the
// source and the destination ranges are cleared first. Returns false if
// there was nothing to move.
func (l *ControlList) MoveRanges(moves []RangeMove) bool {
	l.mu.Lock()
	old := slices.Clone(l.events)
	erased := false
	for _, m := range moves {
		if l.eraseRange(m.From, m.From+m.Length) {
			erased = true
		}
		if l.eraseRange(m.To, m.To+m.Length) {
			erased = true
		}
	}
	if !erased {
		l.mu.Unlock()
		return false
	}
	for _, m := range moves {
		limit := m.From + m.Length
		dx := m.To - m.From
		for _, ev := range old {
			if ev.When > limit {
				break
			}
			if ev.When >= m.From {
				l.events = append(l.events, kontrol.ControlEvent{When: ev.When + dx, Value: ev.Value})
			}
		}
	}
	if l.frozen > 0 {
		l.sortPending = true
	} else {
		l.sortEvents()
		l.removeDuplicates()
		l.invalidateCursor()
	}
	l.markDirty()
	l.unlockAndNotify(l.changed())
	return true
}

// ListMerge combines other into l: every point of l gets the value
// fn(l value, other's curve at that time), and every point only in other
// gets fn(l's curve at that time, other value).
func (l *ControlList) ListMerge(other *ControlList, fn func(a, b float64) float64) {
	o := other.Clone()
	l.mu.Lock()
	merged := make([]kontrol.ControlEvent, 0, len(l.events)+len(o.events))
	for _, ev := range l.events {
		merged = append(merged, kontrol.ControlEvent{When: ev.When, Value: fn(ev.Value, o.editEval(ev.When))})
	}
	for _, ev := range o.events {
		if i := l.lowerBound(ev.When); i < len(l.events) && l.events[i].When == ev.When {
			continue
		}
		merged = append(merged, kontrol.ControlEvent{When: ev.When, Value: fn(l.editEval(ev.When), ev.Value)})
	}
	for i := range merged {
		checkValue(merged[i].Value)
		merged[i].Value = l.clamp(merged[i].Value)
	}
	l.events = merged
	l.sortEvents()
	l.removeDuplicates()
	l.invalidateCursor()
	l.markDirty()
	l.unlockAndNotify(l.changed())
}

// XScale multiplies the time of every point by factor, which must be
// positive.
func (l *ControlList) XScale(factor float64) {
	if !(factor > 0) {
		panic(errors.Errorf("automation: XScale by %v", factor))
	}
	l.mu.Lock()
	l.xScale(factor)
	l.unlockAndNotify(l.changed())
}

func (l *ControlList) xScale(factor float64) {
	for i := range l.events {
		l.events[i].When = kontrol.Time(math.Round(float64(l.events[i].When) * factor))
	}
	l.removeDuplicates()
	l.invalidateCursor()
	l.markDirty()
}

// ExtendTo scales the list in time so that its last point is at end. Returns
// false if the list is empty or already ends at end.
func (l *ControlList) ExtendTo(end kontrol.Time) bool {
	l.mu.Lock()
	n := len(l.events)
	if n == 0 || l.events[n-1].When == end || l.events[n-1].When <= 0 {
		l.mu.Unlock()
		return false
	}
	l.xScale(float64(end) / float64(l.events[n-1].When))
	l.unlockAndNotify(l.changed())
	return true
}

// YTransform replaces every value v with fn(v), clamped to the range of the
// parameter.
func (l *ControlList) YTransform(fn func(float64) float64) {
	l.mu.Lock()
	for i := range l.events {
		v := fn(l.events[i].Value)
		if math.IsNaN(v) {
			l.mu.Unlock()
			checkValue(v)
		}
		l.events[i].Value = l.clamp(v)
	}
	l.markDirty()
	l.unlockAndNotify(l.changed())
}
