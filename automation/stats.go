package automation

import (
	"github.com/viterin/vek"
	"github.com/vsariola/kontrol"
)

// Stats summarizes the values of the control points of a list.
type Stats struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64 // mean of the points, not of the curve
	Start kontrol.Time
	End   kontrol.Time
}

// Stats returns a summary of the list. All fields are zero for an empty
// list.
func (l *ControlList) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.events) == 0 {
		return Stats{}
	}
	values := make([]float64, len(l.events))
	for i, e := range l.events {
		values[i] = e.Value
	}
	return Stats{
		Count: len(values),
		Min:   vek.Min(values),
		Max:   vek.Max(values),
		Mean:  vek.Mean(values),
		Start: l.events[0].When,
		End:   l.events[len(l.events)-1].When,
	}
}
