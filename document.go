package kontrol

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

type (
	// Document is the file representation of one track: its notes, patch
	// changes, sysexes and automation lanes. Times are in ticks at
	// TicksPerBeat resolution; a Document with TicksPerBeat == 0 is assumed
	// to use the default resolution.
	Document struct {
		TicksPerBeat int                  `yaml:",omitempty"`
		Notes        []Note[Beats]        `yaml:",omitempty"`
		PatchChanges []PatchChange[Beats] `yaml:",omitempty"`
		SysExes      []SysEx[Beats]       `yaml:",omitempty"`
		Automation   []AutomationLane     `yaml:",omitempty"`
	}

	// AutomationLane is the file representation of one automation list.
	AutomationLane struct {
		Parameter     Parameter
		Interpolation InterpolationStyle
		Points        []Point `yaml:",flow"`
	}

	// Point is a control point as stored in a file.
	Point struct {
		When  Time
		Value float64
	}
)

var ErrEmptyDocument = errors.New("document is empty")

// ParseDocument parses a document from JSON or, if that fails, YAML.
func ParseDocument(b []byte) (Document, error) {
	var doc Document
	if len(b) == 0 {
		return doc, ErrEmptyDocument
	}
	if errJSON := json.Unmarshal(b, &doc); errJSON != nil {
		doc = Document{}
		if errYaml := yaml.Unmarshal(b, &doc); errYaml != nil {
			return Document{}, fmt.Errorf("the document could not be parsed as .json (%v) or .yml (%v)", errJSON, errYaml)
		}
	}
	doc.Normalize()
	return doc, nil
}

// Marshal returns the document as YAML.
func (d *Document) Marshal() ([]byte, error) {
	return yaml.Marshal(d)
}

// Normalize rescales all the times of the document to TicksPerBeat ticks
// per beat.
func (d *Document) Normalize() {
	if d.TicksPerBeat == 0 || d.TicksPerBeat == TicksPerBeat {
		d.TicksPerBeat = TicksPerBeat
		return
	}
	scale := func(t Beats) Beats {
		return Beats(int64(t) * TicksPerBeat / int64(d.TicksPerBeat))
	}
	for i := range d.Notes {
		d.Notes[i].Time = scale(d.Notes[i].Time)
		d.Notes[i].Length = scale(d.Notes[i].Length)
	}
	for i := range d.PatchChanges {
		d.PatchChanges[i].Time = scale(d.PatchChanges[i].Time)
	}
	for i := range d.SysExes {
		d.SysExes[i].Time = scale(d.SysExes[i].Time)
	}
	for l := range d.Automation {
		for i := range d.Automation[l].Points {
			p := &d.Automation[l].Points[i]
			p.When = Time(scale(Beats(p.When)))
		}
	}
	d.TicksPerBeat = TicksPerBeat
}
