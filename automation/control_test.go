package automation_test

import (
	"testing"

	"github.com/vsariola/kontrol"
	"github.com/vsariola/kontrol/automation"
)

func TestControlFloat(t *testing.T) {
	l := newList(midiRange, ev(0, 0), ev(100, 100))
	c := automation.NewControl(ccParam, midiRange, l)
	if got := c.Float(false, 50); got != midiRange.Normal {
		t.Fatalf("user value = %v, want the normal value %v", got, midiRange.Normal)
	}
	if got := c.Float(true, 50); got != 50 {
		t.Fatalf("list value = %v, want 50", got)
	}
	c.SetFloat(300, 200, true)
	if got := c.Float(false, 0); got != 127 {
		t.Fatalf("user value = %v, want the clamped 127", got)
	}
	if got := l.Eval(200); got != 127 {
		t.Fatalf("SetFloat did not write to the list: Eval(200) = %v", got)
	}
	c.SetFloat(10, 300, false)
	if l.Len() != 3 {
		t.Fatalf("SetFloat without toList wrote to the list: %v", l.Events())
	}
}

func TestControlSetFloatDuringWritePass(t *testing.T) {
	l := newList(midiRange, ev(0, 0))
	c := automation.NewControl(ccParam, midiRange, l)
	l.SetInWritePass(true, false, 0)
	c.SetFloat(20, 100, true)
	if l.Len() != 1 {
		t.Fatalf("SetFloat wrote to a list being recorded: %v", l.Events())
	}
	toggle := kontrol.ParameterDescriptor{Lower: 0, Upper: 1, Toggled: true}
	tl := automation.NewControlList(ccParam, toggle, kontrol.AudioTime)
	tc := automation.NewControl(ccParam, toggle, tl)
	tl.SetInWritePass(true, false, 0)
	tc.SetFloat(1, 100, true)
	if tl.Len() != 1 {
		t.Fatalf("SetFloat did not write a toggled parameter during a write pass: %v", tl.Events())
	}
}

func TestControlSet(t *testing.T) {
	created := 0
	set := automation.NewControlSet(automation.ControlFactoryFunc(func(p kontrol.Parameter) *automation.Control {
		created++
		return automation.NewControl(p, midiRange, automation.NewControlList(p, midiRange, kontrol.BeatTime))
	}))
	p1 := kontrol.Parameter{Type: kontrol.MIDICCAutomation, ID: 1}
	p2 := kontrol.Parameter{Type: kontrol.MIDICCAutomation, ID: 1, Channel: 2}
	p3 := kontrol.Parameter{Type: kontrol.GainAutomation}
	if set.Control(p1, false) != nil {
		t.Fatalf("Control(create=false) created a control")
	}
	a := set.Control(p1, true)
	if a == nil || set.Control(p1, true) != a || created != 1 {
		t.Fatalf("Control did not return the same control twice (created %d)", created)
	}
	set.Control(p2, true)
	set.Control(p3, true)
	controls := set.Controls()
	if len(controls) != 3 || controls[0].Parameter() != p3 || controls[1].Parameter() != p1 || controls[2].Parameter() != p2 {
		t.Fatalf("Controls() not ordered by parameter")
	}
	var dirty []kontrol.Parameter
	set.OnListDirty(func(c *automation.Control) { dirty = append(dirty, c.Parameter()) })
	a.List().Add(10, 5, false, false)
	if len(dirty) != 1 || dirty[0] != p1 {
		t.Fatalf("OnListDirty got %v, want [%v]", dirty, p1)
	}
	if got := set.WhatHasData(); len(got) != 1 || got[0] != p1 {
		t.Fatalf("WhatHasData() = %v, want [%v]", got, p1)
	}
	set.ClearControls()
	if len(set.WhatHasData()) != 0 {
		t.Fatalf("ClearControls left data")
	}
}

func TestControlSetFactoryRunsUnlocked(t *testing.T) {
	p1 := kontrol.Parameter{Type: kontrol.MIDICCAutomation, ID: 1}
	p2 := kontrol.Parameter{Type: kontrol.MIDICCAutomation, ID: 2}
	entered, release := make(chan struct{}), make(chan struct{})
	calls := 0
	set := automation.NewControlSet(automation.ControlFactoryFunc(func(p kontrol.Parameter) *automation.Control {
		calls++
		if calls == 1 {
			close(entered)
			<-release
		}
		return automation.NewControl(p, midiRange, automation.NewControlList(p, midiRange, kontrol.BeatTime))
	}))
	done := make(chan *automation.Control)
	go func() { done <- set.Control(p1, true) }()
	<-entered
	// the first factory call is still running
	if got := set.RTSafeControls(); len(got) != 0 {
		t.Fatalf("RTSafeControls() = %v while nothing was added", got)
	}
	b := set.Control(p1, true)
	c := set.Control(p2, true)
	if b == nil || c == nil {
		t.Fatalf("Control did not create while another factory call was running")
	}
	close(release)
	if a := <-done; a != b {
		t.Fatalf("a racing creation did not return the control added first")
	}
	if set.Len() != 2 || set.Control(p1, false) != b {
		t.Fatalf("set has %d controls, want 2 with the first added kept", set.Len())
	}
	if got := set.RTSafeControls(); len(got) != 2 || got[0] != b || got[1] != c {
		t.Fatalf("RTSafeControls() not ordered by parameter")
	}
}

func TestControlSetList(t *testing.T) {
	old := newList(midiRange)
	c := automation.NewControl(ccParam, midiRange, old)
	dirty := 0
	c.OnListDirty(func(*automation.Control) { dirty++ })
	c.SetList(newList(midiRange))
	old.Add(0, 1, false, false)
	if dirty != 0 {
		t.Fatalf("control still follows its previous list")
	}
	c.List().Add(0, 1, false, false)
	if dirty != 1 {
		t.Fatalf("control does not follow its new list")
	}
}
