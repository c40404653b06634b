// Package notes defines the fixed seven-note scale played by the appliance
// and the mapping from sensed distance to a note.
package notes

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownNote is returned when a note name is not part of the scale.
var ErrUnknownNote = errors.New("unknown note")

// Note identifies one member of the scale. The zero value is C.
type Note int8

const (
	C Note = iota
	D
	E
	F
	G
	A
	H
)

// None stands for "no note", e.g. nothing played yet in this episode.
const None Note = -1

// Count is the number of notes in the scale.
const Count = 7

// All is the ordered scale used for multi-tone mapping.
var All = [Count]Note{C, D, E, F, G, A, H}

var names = [Count]string{"C", "D", "E", "F", "G", "A", "H"}

// Valid reports whether n is a member of the scale.
func (n Note) Valid() bool {
	return n >= 0 && int(n) < Count
}

func (n Note) String() string {
	if !n.Valid() {
		return "none"
	}
	return names[n]
}

// Parse converts a note name ("C".."H", case-insensitive) into a Note.
func Parse(s string) (Note, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, candidate := range names {
		if candidate == name {
			return Note(i), nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownNote, s)
}

// MarshalText implements encoding.TextMarshaler.
func (n Note) MarshalText() ([]byte, error) {
	if !n.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNote, int(n))
	}
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *Note) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}
