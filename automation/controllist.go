package automation

import (
	"fmt"
	"io"
	"math"
	"slices"
	"sync"

	"github.com/pkg/errors"
	"github.com/vsariola/kontrol"
)

type (
	// ControlList is the automation curve of one parameter: a time-ordered
	// list of control points, evaluated with the interpolation style of the
	// list.
	//
	// The list is guarded by a reader/writer lock. Mutators take the write
	// lock for the whole operation and fire the Dirty notification after
	// releasing it (or at the balancing Thaw when the list is frozen). The
	// realtime methods (RTSafe*) only ever try to take the read lock and
	// report "no data" when they cannot get it.
	//
	// Add keeps a saved insert position (the "insert cursor") so that a
	// monotonically advancing stream of writes costs O(1) per point. Every
	// other mutator invalidates the cursor; the next Add then looks up its
	// position with a binary search. Add itself keeps the cursor pointing at
	// the point it just wrote.
	ControlList struct {
		mu     sync.RWMutex
		events []kontrol.ControlEvent

		parameter     kontrol.Parameter
		desc          kontrol.ParameterDescriptor
		domain        kontrol.TimeDomain
		interpolation kontrol.InterpolationStyle
		curve         kontrol.Curve

		frozen            int
		sortPending       bool
		changedWhenThawed bool

		cursor             int // index of the insert cursor, noCursor when at end
		insertPosition     kontrol.Time
		inWritePass        bool
		newWritePass       bool
		didWriteDuringPass bool
		writePassStarted   bool // WritePassStarted waiting to be emitted

		cacheMu sync.Mutex
		lookup  lookupCache
		search  searchCache

		observerMu   sync.Mutex
		observers    map[int]Observer
		nextObserver int
	}

	// Observer receives the notifications of a ControlList. Any of the
	// callbacks may be nil. Callbacks run on the goroutine that made the
	// change, after the list lock has been released.
	Observer struct {
		Dirty                func()
		WritePassStarted     func()
		InterpolationChanged func(kontrol.InterpolationStyle)
	}

	// RangeMove describes moving the automation in [From, From+Length] to
	// start at To.
	RangeMove struct {
		From   kontrol.Time
		Length kontrol.Time
		To     kontrol.Time
	}

	// lookupCache remembers the result of the last equal_range search of
	// Eval: the events in [first, second) share the time being looked up,
	// and left is the time that was looked up.
	lookupCache struct {
		left          kontrol.Time
		first, second int
	}

	// searchCache remembers where the realtime scans left off: first is the
	// index of the first event at or after left.
	searchCache struct {
		left  kontrol.Time
		first int
	}
)

const noCursor = -1

// NewControlList returns an empty list for a parameter. The time domain
// decides the distance of the guard points Add and EditorAdd insert.
func NewControlList(param kontrol.Parameter, desc kontrol.ParameterDescriptor, domain kontrol.TimeDomain) *ControlList {
	l := &ControlList{
		parameter:      param,
		desc:           desc,
		domain:         domain,
		interpolation:  desc.DefaultInterpolation(),
		cursor:         noCursor,
		insertPosition: kontrol.MaxTime,
		newWritePass:   true,
	}
	l.lookup.invalidate()
	l.search.invalidate()
	return l
}

func (c *lookupCache) invalidate() {
	c.left = kontrol.MaxTime
	c.first, c.second = -1, -1
}

func (c *searchCache) invalidate() {
	c.left = kontrol.MaxTime
	c.first = -1
}

func (l *ControlList) Parameter() kontrol.Parameter { return l.parameter }

func (l *ControlList) Descriptor() kontrol.ParameterDescriptor { return l.desc }

func (l *ControlList) TimeDomain() kontrol.TimeDomain { return l.domain }

func (l *ControlList) DefaultInterpolation() kontrol.InterpolationStyle {
	return l.desc.DefaultInterpolation()
}

// GuardPointDelta is the distance of guard points from the points they
// protect.
func (l *ControlList) GuardPointDelta() kontrol.Time {
	return l.domain.GuardPointDelta()
}

func (l *ControlList) Interpolation() kontrol.InterpolationStyle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.interpolation
}

// UnlockedInterpolation is Interpolation for callers holding the lock, e.g.
// inside WithReadLock.
func (l *ControlList) UnlockedInterpolation() kontrol.InterpolationStyle {
	return l.interpolation
}

// SetInterpolation changes how the curve is evaluated between points.
// Logarithmic needs a strictly positive range and Exponential a range
// starting at zero; for other ranges the change is refused and false
// returned.
func (l *ControlList) SetInterpolation(s kontrol.InterpolationStyle) bool {
	l.mu.Lock()
	if l.interpolation == s {
		l.mu.Unlock()
		return true
	}
	switch s {
	case kontrol.Logarithmic:
		if l.desc.Lower*l.desc.Upper <= 0 || l.desc.Upper <= l.desc.Lower {
			l.mu.Unlock()
			return false
		}
	case kontrol.Exponential:
		if l.desc.Lower != 0 || l.desc.Upper <= l.desc.Lower {
			l.mu.Unlock()
			return false
		}
	}
	l.interpolation = s
	l.markDirty()
	l.mu.Unlock()
	l.notify(func(o Observer) {
		if o.InterpolationChanged != nil {
			o.InterpolationChanged(s)
		}
	})
	return true
}

// SetCurve attaches the spline evaluator used for Curved interpolation.
func (l *ControlList) SetCurve(c kontrol.Curve) {
	l.mu.Lock()
	l.curve = c
	l.markDirty()
	l.mu.Unlock()
}

func (l *ControlList) Curve() kontrol.Curve {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.curve
}

// Observe registers callbacks for the notifications of the list. The
// returned function removes the registration.
func (l *ControlList) Observe(o Observer) (cancel func()) {
	l.observerMu.Lock()
	defer l.observerMu.Unlock()
	if l.observers == nil {
		l.observers = map[int]Observer{}
	}
	id := l.nextObserver
	l.nextObserver++
	l.observers[id] = o
	return func() {
		l.observerMu.Lock()
		delete(l.observers, id)
		l.observerMu.Unlock()
	}
}

func (l *ControlList) notify(f func(o Observer)) {
	l.observerMu.Lock()
	obs := make([]Observer, 0, len(l.observers))
	for _, o := range l.observers {
		obs = append(obs, o)
	}
	l.observerMu.Unlock()
	for _, o := range obs {
		f(o)
	}
}

// changed must be called with the write lock held after a mutation. It
// returns true if Dirty should be emitted once the lock is released; while
// frozen the notification is deferred to Thaw.
func (l *ControlList) changed() bool {
	if l.frozen > 0 {
		l.changedWhenThawed = true
		return false
	}
	return true
}

// unlockAndNotify releases the write lock and fires the notifications
// collected while it was held.
func (l *ControlList) unlockAndNotify(dirty bool) {
	passStarted := l.writePassStarted
	l.writePassStarted = false
	l.mu.Unlock()
	if passStarted {
		l.notify(func(o Observer) {
			if o.WritePassStarted != nil {
				o.WritePassStarted()
			}
		})
	}
	if dirty {
		l.notify(func(o Observer) {
			if o.Dirty != nil {
				o.Dirty()
			}
		})
	}
}

// markDirty drops the evaluation caches and tells the curve to recompute.
// Caller holds the write lock.
func (l *ControlList) markDirty() {
	l.cacheMu.Lock()
	l.lookup.invalidate()
	l.search.invalidate()
	l.cacheMu.Unlock()
	if l.curve != nil {
		l.curve.MarkDirty()
	}
}

// MarkDirty drops the evaluation caches.
func (l *ControlList) MarkDirty() {
	l.mu.Lock()
	l.markDirty()
	l.mu.Unlock()
}

func (l *ControlList) invalidateCursor() {
	l.cursor = noCursor
}

// InvalidateInsertCursor forgets the saved insert position, so that the next
// Add searches for its position.
func (l *ControlList) InvalidateInsertCursor() {
	l.mu.Lock()
	l.invalidateCursor()
	l.mu.Unlock()
}

func (l *ControlList) cursorAtEnd() bool {
	return l.cursor < 0 || l.cursor >= len(l.events)
}

// lowerBound returns the index of the first event with When >= t.
func (l *ControlList) lowerBound(t kontrol.Time) int {
	i, _ := slices.BinarySearchFunc(l.events, t, cmpWhen)
	return i
}

// upperBound returns the index of the first event with When > t.
func (l *ControlList) upperBound(t kontrol.Time) int {
	i := l.lowerBound(t)
	for i < len(l.events) && l.events[i].When == t {
		i++
	}
	return i
}

func cmpWhen(e kontrol.ControlEvent, t kontrol.Time) int {
	switch {
	case e.When < t:
		return -1
	case e.When > t:
		return 1
	}
	return 0
}

func (l *ControlList) clamp(v float64) float64 {
	return l.desc.Clamp(v)
}

// checkValue panics on NaN; a NaN reaching a list is a programming error
// somewhere upstream.
func checkValue(v float64) {
	if math.IsNaN(v) {
		panic(errors.WithStack(errors.New("automation: NaN control value")))
	}
}

// Len returns the number of control points.
func (l *ControlList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

func (l *ControlList) Empty() bool {
	return l.Len() == 0
}

// Events returns a copy of the control points.
func (l *ControlList) Events() []kontrol.ControlEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.events)
}

// Event returns the i-th control point.
func (l *ControlList) Event(i int) (kontrol.ControlEvent, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.events) {
		return kontrol.ControlEvent{}, false
	}
	return l.events[i], true
}

// Bounds returns the times of the first and the last control point, and
// false if the list is empty.
func (l *ControlList) Bounds() (first, last kontrol.Time, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.events) == 0 {
		return 0, 0, false
	}
	return l.events[0].When, l.events[len(l.events)-1].When, true
}

// Clear removes all control points.
func (l *ControlList) Clear() {
	l.mu.Lock()
	l.events = l.events[:0]
	l.invalidateCursor()
	l.markDirty()
	l.unlockAndNotify(l.changed())
}

// FastSimpleAdd appends a point without any of the checks of Add. Use it
// only for loading data that is already sorted; while frozen, the list is
// sorted at Thaw.
func (l *ControlList) FastSimpleAdd(t kontrol.Time, v float64) {
	checkValue(v)
	l.mu.Lock()
	l.events = append(l.events, kontrol.ControlEvent{When: t, Value: v})
	l.markDirty()
	if l.frozen > 0 {
		l.sortPending = true
	}
	l.mu.Unlock()
}

// Freeze starts a batch of edits. Sorting, removing duplicates and the Dirty
// notification are postponed until the matching Thaw. Freeze calls nest.
func (l *ControlList) Freeze() {
	l.mu.Lock()
	l.frozen++
	l.mu.Unlock()
}

// Thaw ends a batch of edits started with Freeze. Thaw without a matching
// Freeze panics.
func (l *ControlList) Thaw() {
	l.mu.Lock()
	if l.frozen <= 0 {
		l.mu.Unlock()
		panic(errors.WithStack(errors.New("automation: Thaw without Freeze")))
	}
	l.frozen--
	if l.frozen > 0 {
		l.mu.Unlock()
		return
	}
	if l.sortPending {
		l.sortEvents()
		l.removeDuplicates()
		l.invalidateCursor()
		l.markDirty()
		l.sortPending = false
	}
	dirty := l.changedWhenThawed
	l.changedWhenThawed = false
	l.unlockAndNotify(dirty)
}

func (l *ControlList) Frozen() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.frozen > 0
}

func (l *ControlList) sortEvents() {
	slices.SortStableFunc(l.events, func(a, b kontrol.ControlEvent) int {
		return cmpWhen(a, b.When)
	})
}

// removeDuplicates keeps only the last of consecutive points sharing a time.
// The list must be sorted.
func (l *ControlList) removeDuplicates() {
	l.events = removeDuplicateEvents(l.events)
}

func removeDuplicateEvents(events []kontrol.ControlEvent) []kontrol.ControlEvent {
	if len(events) < 2 {
		return events
	}
	n := 0
	for i := 1; i < len(events); i++ {
		if events[i].When != events[n].When {
			n++
		}
		events[n] = events[i]
	}
	return events[:n+1]
}

// Assign replaces the contents of l with a copy of other. The list must be
// frozen; assigning to a list that is not frozen panics.
func (l *ControlList) Assign(other *ControlList) {
	if other == l {
		return
	}
	other.mu.RLock()
	events := slices.Clone(other.events)
	param, desc, interp := other.parameter, other.desc, other.interpolation
	other.mu.RUnlock()
	l.mu.Lock()
	if l.frozen <= 0 {
		l.mu.Unlock()
		panic(errors.WithStack(errors.New("automation: Assign to a ControlList that is not frozen")))
	}
	l.changedWhenThawed = false
	l.sortPending = false
	l.newWritePass = true
	l.inWritePass = false
	l.didWriteDuringPass = false
	l.insertPosition = kontrol.MaxTime
	l.parameter, l.desc, l.interpolation = param, desc, interp
	l.events = events
	l.invalidateCursor()
	l.markDirty()
	l.unlockAndNotify(l.changed())
}

// SetEvents replaces the points of the list. The list must be frozen; the
// points are sorted and clamped at the balancing Thaw.
func (l *ControlList) SetEvents(events []kontrol.ControlEvent) {
	for _, e := range events {
		checkValue(e.Value)
	}
	l.mu.Lock()
	if l.frozen <= 0 {
		l.mu.Unlock()
		panic(errors.WithStack(errors.New("automation: SetEvents on a ControlList that is not frozen")))
	}
	l.events = make([]kontrol.ControlEvent, len(events))
	for i, e := range events {
		l.events[i] = kontrol.ControlEvent{When: e.When, Value: l.clamp(e.Value)}
	}
	l.sortPending = true
	l.invalidateCursor()
	l.markDirty()
	l.unlockAndNotify(l.changed())
}

// Clone returns a copy of the list with the same parameter, descriptor and
// interpolation. Observers and the curve are not copied.
func (l *ControlList) Clone() *ControlList {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c := NewControlList(l.parameter, l.desc, l.domain)
	c.interpolation = l.interpolation
	c.events = make([]kontrol.ControlEvent, len(l.events))
	for i, e := range l.events {
		c.events[i] = kontrol.ControlEvent{When: e.When, Value: e.Value}
	}
	return c
}

// CloneRange returns a new list holding a copy of [start, end], shifted so
// that start is at time zero. See Copy for the boundary points.
func (l *ControlList) CloneRange(start, end kontrol.Time) *ControlList {
	return l.Copy(start, end)
}

// Equal reports whether two lists have the same points, parameter,
// interpolation and value range.
func (l *ControlList) Equal(other *ControlList) bool {
	if l == other {
		return true
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	if len(l.events) != len(other.events) {
		return false
	}
	for i := range l.events {
		if l.events[i].When != other.events[i].When || l.events[i].Value != other.events[i].Value {
			return false
		}
	}
	return l.parameter == other.parameter &&
		l.interpolation == other.interpolation &&
		l.desc.Lower == other.desc.Lower &&
		l.desc.Upper == other.desc.Upper &&
		l.desc.Normal == other.desc.Normal
}

// IsSorted reports whether the points are in time order. It holds whenever
// the list is not frozen.
func (l *ControlList) IsSorted() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isSorted()
}

func (l *ControlList) isSorted() bool {
	for i := 1; i < len(l.events); i++ {
		if l.events[i].When < l.events[i-1].When {
			return false
		}
	}
	return true
}

// Dump writes the points as "value @ time" lines, for debugging.
func (l *ControlList) Dump(w io.Writer) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.events {
		if _, err := fmt.Fprintf(w, "%v @ %v\n", e.Value, e.When); err != nil {
			return err
		}
	}
	return nil
}

// InWritePass reports whether the list is recording.
func (l *ControlList) InWritePass() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inWritePass
}
