package automation

import (
	"sync"
	"sync/atomic"

	"github.com/vsariola/kontrol"
)

// Control binds a parameter to its automation list and keeps the value the
// user last set, which is used when the automation is not playing.
type Control struct {
	parameter kontrol.Parameter
	desc      kontrol.ParameterDescriptor

	list atomic.Pointer[ControlList]

	mu        sync.Mutex
	cancel    func()
	userValue float64
	onDirty   func(*Control)
}

// NewControl returns a control for param using list, which may be nil. The
// user value starts at the Normal value of the descriptor.
func NewControl(param kontrol.Parameter, desc kontrol.ParameterDescriptor, list *ControlList) *Control {
	c := &Control{parameter: param, desc: desc, userValue: desc.Normal}
	c.SetList(list)
	return c
}

func (c *Control) Parameter() kontrol.Parameter { return c.parameter }

func (c *Control) Descriptor() kontrol.ParameterDescriptor { return c.desc }

// List returns the automation list of the control. It never blocks.
func (c *Control) List() *ControlList { return c.list.Load() }

// SetList replaces the automation list of the control. The control follows
// the Dirty notifications of the new list only.
func (c *Control) SetList(list *ControlList) {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.list.Store(list)
	if list != nil {
		c.cancel = list.Observe(Observer{Dirty: c.listMarkedDirty})
	}
	c.mu.Unlock()
}

// OnListDirty sets the function called whenever the list of the control
// changes. ControlSet uses it to learn which parameters were edited.
func (c *Control) OnListDirty(f func(*Control)) {
	c.mu.Lock()
	c.onDirty = f
	c.mu.Unlock()
}

func (c *Control) listMarkedDirty() {
	c.mu.Lock()
	f := c.onDirty
	c.mu.Unlock()
	if f != nil {
		f(c)
	}
}

// Float returns the value of the automation at t if fromList is set and the
// control has a list, and the user value otherwise.
func (c *Control) Float(fromList bool, t kontrol.Time) float64 {
	c.mu.Lock()
	v := c.userValue
	c.mu.Unlock()
	if list := c.list.Load(); fromList && list != nil {
		return list.Eval(t)
	}
	return v
}

// SetFloat sets the user value. With toList, the value is also written to
// the list at t, except while the list is recording a write pass: then the
// recording code writes it, unless the parameter is toggled.
func (c *Control) SetFloat(v float64, t kontrol.Time, toList bool) {
	v = c.desc.Clamp(v)
	c.mu.Lock()
	c.userValue = v
	c.mu.Unlock()
	if list := c.list.Load(); toList && list != nil && (!list.InWritePass() || c.desc.Toggled) {
		list.Add(t, v, false, false)
	}
}
