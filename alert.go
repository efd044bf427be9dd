package kontrol

import (
	"fmt"
	"time"
)

type (
	// Alert is a non-fatal diagnostic: a dropped event, a value outside its
	// range, a failed file operation. Alerts with the same non-empty Name
	// replace each other instead of piling up.
	Alert struct {
		Name     string
		Priority AlertPriority
		Message  string
		Duration time.Duration
	}

	AlertPriority int

	// Alerts is a list of alerts waiting to be shown to the user. It is not
	// safe for concurrent use; realtime code sends alerts to a channel with
	// TrySend and the owner of the Alerts drains the channel.
	Alerts struct {
		alerts []Alert
	}
)

const (
	Info AlertPriority = iota
	Warning
	Error
)

const DefaultAlertDuration = 3 * time.Second

func (p AlertPriority) String() string {
	switch p {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return fmt.Sprintf("AlertPriority(%d)", int(p))
}

func (a Alert) String() string {
	return fmt.Sprintf("%v: %s", a.Priority, a.Message)
}

// TrySend is a helper function to send a value to a channel if it is not full.
// It is guaranteed to be non-blocking, also for a nil channel. Return true if
// the value was sent, false otherwise.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TimeoutReceive is a helper function to block until a value is received from a
// channel, or timing out after t. ok will be false if the timeout occurred or
// if the channel is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}

// SendAlert formats an alert and offers it to c without blocking.
func SendAlert(c chan<- Alert, name string, priority AlertPriority, format string, args ...any) bool {
	if c == nil {
		return false
	}
	return TrySend(c, Alert{Name: name, Priority: priority, Message: fmt.Sprintf(format, args...), Duration: DefaultAlertDuration})
}

func (m *Alerts) Add(message string, priority AlertPriority) {
	m.AddAlert(Alert{Priority: priority, Message: message, Duration: DefaultAlertDuration})
}

func (m *Alerts) AddNamed(name, message string, priority AlertPriority) {
	m.AddAlert(Alert{Name: name, Priority: priority, Message: message, Duration: DefaultAlertDuration})
}

func (m *Alerts) AddAlert(a Alert) {
	if a.Name != "" {
		for i := range m.alerts {
			if m.alerts[i].Name == a.Name {
				m.alerts[i] = a
				return
			}
		}
	}
	m.alerts = append(m.alerts, a)
}

func (m *Alerts) ClearNamed(name string) {
	for i := range m.alerts {
		if m.alerts[i].Name == name {
			m.alerts = append(m.alerts[:i], m.alerts[i+1:]...)
			return
		}
	}
}

// Drain moves all alerts currently buffered in c to m, without blocking.
// Returns the number of alerts received.
func (m *Alerts) Drain(c <-chan Alert) int {
	n := 0
	for {
		select {
		case a, ok := <-c:
			if !ok {
				return n
			}
			m.AddAlert(a)
			n++
		default:
			return n
		}
	}
}

// Update ages the alerts by d and removes the expired ones. Returns true if
// any alerts remain.
func (m *Alerts) Update(d time.Duration) bool {
	n := 0
	for _, a := range m.alerts {
		a.Duration -= d
		if a.Duration > 0 {
			m.alerts[n] = a
			n++
		}
	}
	m.alerts = m.alerts[:n]
	return n > 0
}

func (m *Alerts) Len() int { return len(m.alerts) }

// Iterate yields the alerts from the oldest to the newest.
func (m *Alerts) Iterate(yield func(index int, alert Alert) bool) {
	for i, a := range m.alerts {
		if !yield(i, a) {
			return
		}
	}
}

// Max returns the highest priority among the alerts, and false if there are
// none.
func (m *Alerts) Max() (AlertPriority, bool) {
	if len(m.alerts) == 0 {
		return Info, false
	}
	p := m.alerts[0].Priority
	for _, a := range m.alerts[1:] {
		p = max(p, a.Priority)
	}
	return p, true
}
