package automation_test

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/vsariola/kontrol"
	"github.com/vsariola/kontrol/automation"
)

type listFuzzState struct {
	list      *automation.ControlList
	clipboard *automation.ControlList
}

func (s *listFuzzState) Iterate(yield func(string, func()) bool, seed int) {
	l := s.list
	t := kontrol.Time(seed % 5000)
	v := float64(seed%300) - 80
	ops := []struct {
		name string
		f    func()
	}{
		{"Add", func() { l.Add(t, v, seed%2 == 0, seed%3 == 0) }},
		{"EditorAdd", func() { l.EditorAdd(t, v, seed%2 == 0) }},
		{"EditorAddOrdered", func() {
			l.EditorAddOrdered([]kontrol.ControlEvent{{When: t, Value: v}, {When: t + kontrol.Time(seed%300), Value: -v}}, seed%2 == 0)
		}},
		{"EraseRange", func() { l.EraseRange(t, t+kontrol.Time(seed%700)) }},
		{"EraseIndex", func() { l.EraseIndex(seed % 8) }},
		{"Cut", func() { s.clipboard = l.Cut(t, t+kontrol.Time(seed%900)) }},
		{"Copy", func() { s.clipboard = l.Copy(t, t+kontrol.Time(seed%900)) }},
		{"ClearRange", func() { l.ClearRange(t, t+kontrol.Time(seed%900)) }},
		{"Paste", func() {
			if s.clipboard != nil {
				l.Paste(s.clipboard, t)
			}
		}},
		{"ShiftForward", func() { l.Shift(t, kontrol.Time(seed%400+1)) }},
		{"ShiftBackward", func() { l.Shift(t, -kontrol.Time(seed%400+1)) }},
		{"TruncateEnd", func() { l.TruncateEnd(t + 1) }},
		{"TruncateStart", func() { l.TruncateStart(t + 1) }},
		{"Thin", func() { l.Thin(float64(seed % 40)) }},
		{"MoveRanges", func() {
			l.MoveRanges([]automation.RangeMove{{From: t, Length: kontrol.Time(seed % 300), To: kontrol.Time(seed % 4000)}})
		}},
		{"XScale", func() { l.XScale(float64(seed%4+1) / 2) }},
		{"Modify", func() { l.Modify(seed%8, t, v) }},
		{"Slide", func() { l.Slide(seed%8, kontrol.Time(seed%200)-100) }},
		{"StartWritePass", func() {
			l.StartWritePass(t)
			l.SetInWritePass(true, seed%2 == 0, t)
		}},
		{"WritePassFinished", func() { l.WritePassFinished(t, float64(seed%30)) }},
		{"SetInterpolation", func() { l.SetInterpolation(kontrol.InterpolationStyle(seed % 5)) }},
		{"YTransform", func() { l.YTransform(func(x float64) float64 { return x*1.5 - 10 }) }},
		{"ListMerge", func() {
			if s.clipboard != nil {
				l.ListMerge(s.clipboard, func(a, b float64) float64 { return (a + b) / 2 })
			}
		}},
	}
	for _, op := range ops {
		if !yield(op.name, op.f) {
			return
		}
	}
}

func FuzzControlList(f *testing.F) {
	f.Add([]byte{2, 40, 6, 8, 12, 200, 1, 18, 44, 4, 100, 3})
	f.Add([]byte{36, 0, 2, 90, 2, 120, 38, 7, 10, 16, 30})
	f.Fuzz(func(t *testing.T, slice []byte) {
		reader := bytes.NewReader(slice)
		state := listFuzzState{list: automation.NewControlList(ccParam, midiRange, kontrol.AudioTime)}
		count := 0
		state.Iterate(func(string, func()) bool {
			count++
			return true
		}, 0)
		totalPath := ""
		for m, err := binary.ReadVarint(reader); err == nil; m, err = binary.ReadVarint(reader) {
			seed := int(uint64(m) % (1 << 31))
			index := seed % count
			state.Iterate(func(n string, f func()) bool {
				if index == 0 {
					totalPath += fmt.Sprintf("%s(%d). ", n, seed)
					f()
					return false
				}
				index--
				return true
			}, seed)
			if !state.list.IsSorted() {
				t.Fatalf("Path: %s list not sorted: %v", totalPath, state.list.Events())
			}
			events := state.list.Events()
			for i, e := range events {
				if e.Value < midiRange.Lower || e.Value > midiRange.Upper {
					t.Fatalf("Path: %s value %v out of range", totalPath, e.Value)
				}
				if i > 0 && events[i-1].When == e.When {
					t.Fatalf("Path: %s two points at %v", totalPath, e.When)
				}
			}
		}
	})
}
