package automation

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/vsariola/kontrol"
)

type (
	// ControlFactory creates the Control of a parameter the first time a
	// ControlSet is asked for it.
	ControlFactory interface {
		CreateControl(p kontrol.Parameter) *Control
	}

	// ControlSet is the registry of the controls of one object, usually a
	// track. Looking up or creating a control takes the mutex of the set
	// only, never the lock of any list. The factory runs without the mutex.
	// A sorted copy of the controls is republished on every addition, so
	// the realtime thread can read it without locking.
	ControlSet struct {
		mu       sync.Mutex
		factory  ControlFactory
		controls map[kontrol.Parameter]*Control
		sorted   atomic.Pointer[[]*Control]
		onDirty  func(*Control)
	}

	// ControlFactoryFunc adapts a function to a ControlFactory.
	ControlFactoryFunc func(p kontrol.Parameter) *Control
)

func (f ControlFactoryFunc) CreateControl(p kontrol.Parameter) *Control { return f(p) }

// NewControlSet returns an empty set that creates missing controls with
// factory. A nil factory makes Control return nil for missing parameters.
func NewControlSet(factory ControlFactory) *ControlSet {
	s := &ControlSet{factory: factory, controls: map[kontrol.Parameter]*Control{}}
	s.sorted.Store(&[]*Control{})
	return s
}

// Control returns the control of p. If there is none and create is set, one
// is created with the factory and added to the set. If two callers create
// the same control at once, the first one added wins and both get it.
func (s *ControlSet) Control(p kontrol.Parameter, create bool) *Control {
	s.mu.Lock()
	c, ok := s.controls[p]
	factory := s.factory
	s.mu.Unlock()
	if ok {
		return c
	}
	if !create || factory == nil {
		return nil
	}
	c = factory.CreateControl(p)
	if c == nil {
		return nil
	}
	s.mu.Lock()
	if existing, ok := s.controls[p]; ok {
		s.mu.Unlock()
		c.SetList(nil)
		return existing
	}
	s.addLocked(c)
	s.mu.Unlock()
	return c
}

// AddControl adds c to the set, replacing the control of the same parameter.
func (s *ControlSet) AddControl(c *Control) {
	s.mu.Lock()
	s.addLocked(c)
	s.mu.Unlock()
}

func (s *ControlSet) addLocked(c *Control) {
	s.controls[c.Parameter()] = c
	c.OnListDirty(s.listDirty)
	sorted := make([]*Control, 0, len(s.controls))
	for _, other := range s.controls {
		sorted = append(sorted, other)
	}
	slices.SortFunc(sorted, func(a, b *Control) int {
		return a.Parameter().Compare(b.Parameter())
	})
	s.sorted.Store(&sorted)
}

func (s *ControlSet) listDirty(c *Control) {
	s.mu.Lock()
	f := s.onDirty
	s.mu.Unlock()
	if f != nil {
		f(c)
	}
}

// OnListDirty sets the function called when the list of any control of the
// set changes.
func (s *ControlSet) OnListDirty(f func(*Control)) {
	s.mu.Lock()
	s.onDirty = f
	s.mu.Unlock()
}

// Controls returns the controls of the set, ordered by parameter.
func (s *ControlSet) Controls() []*Control {
	return slices.Clone(s.RTSafeControls())
}

// RTSafeControls is Controls for the realtime thread: it neither locks nor
// allocates. The returned slice is shared and must not be modified.
func (s *ControlSet) RTSafeControls() []*Control {
	return *s.sorted.Load()
}

// Len returns the number of controls in the set.
func (s *ControlSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.controls)
}

// WhatHasData returns the parameters whose lists have points.
func (s *ControlSet) WhatHasData() []kontrol.Parameter {
	var ret []kontrol.Parameter
	for _, c := range s.Controls() {
		if l := c.List(); l != nil && !l.Empty() {
			ret = append(ret, c.Parameter())
		}
	}
	return ret
}

// ClearControls removes all points from all lists of the set.
func (s *ControlSet) ClearControls() {
	for _, c := range s.Controls() {
		if l := c.List(); l != nil {
			l.Clear()
		}
	}
}
