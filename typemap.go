package kontrol

type (
	// TypeMap maps parameters to their MIDI meaning and value range. The
	// automation and sequence packages only consume it; midimap.TypeMap is
	// the implementation for plain MIDI tracks.
	TypeMap interface {
		// TypeIsMIDI reports whether parameters of the type are played as
		// MIDI channel messages.
		TypeIsMIDI(t ParameterType) bool
		// ParameterMIDIType returns the MIDI status nibble (e.g. 0xB0 for
		// control change) a parameter is played as, or 0.
		ParameterMIDIType(p Parameter) byte
		// MIDIParameterType returns the parameter type a MIDI message
		// automates, or NullAutomation.
		MIDIParameterType(buf []byte) ParameterType
		Descriptor(p Parameter) ParameterDescriptor
		// ToSymbol returns a short, stable name of the parameter, usable in
		// files.
		ToSymbol(p Parameter) string
	}

	// Curve evaluates spline ("Curved") interpolation for a ControlList.
	// The list calls MarkDirty after every structural change; the curve
	// recomputes its coefficients lazily, reading the events under the
	// list's own lock.
	Curve interface {
		Eval(t Time) float64
		MarkDirty()
	}
)
