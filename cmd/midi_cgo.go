//go:build cgo

package cmd

import (
	"github.com/vsariola/kontrol/gomidi"
)

func NewMIDIContext() MIDIContext {
	return gomidi.NewContext()
}
