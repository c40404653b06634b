package notes

// Mapping carries the settings that decide which note sounds while presence
// is active.
type Mapping struct {
	MultiTone bool
	// Active is the note played in single-tone mode.
	Active    Note
	TriggerMm int
	SpacingMm int
}

// Select returns the note for a distance inside the trigger zone.
//
// In multi-tone mode every further SpacingMm of approach past the trigger
// distance selects the next note of the scale; anything deeper than the last
// band stays on the last note. A non-positive spacing is treated as a single
// band so the mapping never divides by zero.
func Select(distanceMm int, m Mapping) Note {
	if !m.MultiTone {
		return m.Active
	}
	if m.SpacingMm <= 0 {
		return All[0]
	}

	diff := m.TriggerMm - distanceMm
	if diff < 0 {
		diff = 0
	}
	index := diff / m.SpacingMm
	if index >= Count {
		index = Count - 1
	}
	return All[index]
}
