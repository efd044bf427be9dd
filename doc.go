/*
Package kontrol contains the value types shared by the automation and sequence
packages: times and time domains, parameters and their descriptors, control
points, notes, patch changes, sysexes, flattened events and the alerts used
for non-fatal diagnostics.

The automation package implements ControlList, a time-ordered automation
curve that a realtime audio thread can read without blocking while another
thread edits it, and Control and ControlSet that bind lists to parameters.

The sequence package implements Sequence, which owns the notes, patch changes
and sysexes of a track together with the automation of the track, records
incoming MIDI into them and merges them back into one time-ordered event
stream for playback.

Document is the file form of a track; it is read from JSON or YAML.
*/
package kontrol
