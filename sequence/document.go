package sequence

import (
	"github.com/vsariola/kontrol"
)

// LoadDocument adds the notes, patch changes, sysexes and automation lanes
// of doc to the sequence. Notes and sysexes that do not fit MIDI are dropped
// with an alert. Automation lanes replace the points of the lists of their
// parameters.
func (s *Sequence[T]) LoadDocument(doc kontrol.Document) {
	doc.Normalize()
	for _, n := range doc.Notes {
		s.AddNote(kontrol.Note[T]{
			Time:        T(n.Time),
			Length:      T(n.Length),
			Channel:     n.Channel,
			Note:        n.Note,
			Velocity:    n.Velocity,
			OffVelocity: n.OffVelocity,
		})
	}
	for _, p := range doc.PatchChanges {
		s.AddPatchChange(kontrol.PatchChange[T]{Time: T(p.Time), Channel: p.Channel, Program: p.Program, Bank: p.Bank})
	}
	for _, x := range doc.SysExes {
		s.AddSysEx(kontrol.SysEx[T]{Time: T(x.Time), Data: x.Data})
	}
	for _, lane := range doc.Automation {
		c := s.Control(lane.Parameter, true)
		if c == nil || c.List() == nil {
			kontrol.SendAlert(s.alerts, "NoControl", kontrol.Warning, "no automation for %s", s.typeMap.ToSymbol(lane.Parameter))
			continue
		}
		l := c.List()
		if !l.SetInterpolation(lane.Interpolation) {
			kontrol.SendAlert(s.alerts, "Interpolation", kontrol.Info, "%v interpolation not available for %s", lane.Interpolation, s.typeMap.ToSymbol(lane.Parameter))
		}
		events := make([]kontrol.ControlEvent, len(lane.Points))
		for i, p := range lane.Points {
			events[i] = kontrol.ControlEvent{When: p.When, Value: p.Value}
		}
		l.Freeze()
		l.SetEvents(events)
		l.Thaw()
	}
}

// Document returns the contents of the sequence in file form. Notes that
// have not ended are left out.
func (s *Sequence[T]) Document() kontrol.Document {
	doc := kontrol.Document{TicksPerBeat: kontrol.TicksPerBeat}
	for _, n := range s.Notes() {
		if n.Nascent() {
			continue
		}
		doc.Notes = append(doc.Notes, kontrol.Note[kontrol.Beats]{
			Time:        kontrol.Beats(n.Time),
			Length:      kontrol.Beats(n.Length),
			Channel:     n.Channel,
			Note:        n.Note,
			Velocity:    n.Velocity,
			OffVelocity: n.OffVelocity,
		})
	}
	for _, p := range s.PatchChanges() {
		doc.PatchChanges = append(doc.PatchChanges, kontrol.PatchChange[kontrol.Beats]{Time: kontrol.Beats(p.Time), Channel: p.Channel, Program: p.Program, Bank: p.Bank})
	}
	for _, x := range s.SysExes() {
		doc.SysExes = append(doc.SysExes, kontrol.SysEx[kontrol.Beats]{Time: kontrol.Beats(x.Time), Data: x.Data})
	}
	for _, c := range s.Controls() {
		l := c.List()
		if l == nil || l.Empty() {
			continue
		}
		lane := kontrol.AutomationLane{Parameter: c.Parameter(), Interpolation: l.Interpolation()}
		for _, e := range l.Events() {
			lane.Points = append(lane.Points, kontrol.Point{When: e.When, Value: e.Value})
		}
		doc.Automation = append(doc.Automation, lane)
	}
	return doc
}
