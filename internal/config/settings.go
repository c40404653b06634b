package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/presence-piano/internal/notes"
)

// ErrUnknownSetting is returned by Set for keys that are not part of PianoConfig.
var ErrUnknownSetting = errors.New("unknown setting")

// Default values, matching the appliance's factory settings.
const (
	DefaultTriggerMm     = 800
	DefaultHysteresisMm  = 100
	DefaultVolume        = 1.0
	DefaultNoteSpacingMm = 50
	MaxVolume            = 4.0
)

// Setting keys, shared by the JSON schema, the settings store and the CLI.
const (
	KeyTriggerMm     = "trigger_mm"
	KeyHysteresisMm  = "hysteresis_mm"
	KeyVolume        = "volume"
	KeyMultiTone     = "multi_tone"
	KeyNoteSpacingMm = "note_spacing_mm"
	KeyLoop          = "loop"
	KeyActiveNote    = "active_note"
)

// PianoConfig is the persisted form of the appliance settings. Every field is
// optional; unset fields resolve to their defaults so partial configs are safe.
type PianoConfig struct {
	TriggerMm     *int     `json:"trigger_mm,omitempty"`
	HysteresisMm  *int     `json:"hysteresis_mm,omitempty"`
	Volume        *float64 `json:"volume,omitempty"`
	MultiTone     *bool    `json:"multi_tone,omitempty"`
	NoteSpacingMm *int     `json:"note_spacing_mm,omitempty"`
	Loop          *bool    `json:"loop,omitempty"`
	ActiveNote    *string  `json:"active_note,omitempty"` // "C".."H"
}

// Settings is the resolved, read-only view the trigger loop works from.
type Settings struct {
	TriggerMm     int
	HysteresisMm  int
	Volume        float64
	MultiTone     bool
	NoteSpacingMm int
	Loop          bool
	ActiveNote    notes.Note
}

func ptrInt(v int) *int             { return &v }
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }

// DefaultPianoConfig returns a PianoConfig with every field set to its default.
func DefaultPianoConfig() *PianoConfig {
	return &PianoConfig{
		TriggerMm:     ptrInt(DefaultTriggerMm),
		HysteresisMm:  ptrInt(DefaultHysteresisMm),
		Volume:        ptrFloat64(DefaultVolume),
		MultiTone:     ptrBool(false),
		NoteSpacingMm: ptrInt(DefaultNoteSpacingMm),
		Loop:          ptrBool(false),
		ActiveNote:    ptrString(notes.C.String()),
	}
}

// DefaultSettings returns the resolved factory settings.
func DefaultSettings() Settings {
	return (&PianoConfig{}).Resolve()
}

// LoadPianoConfig loads a PianoConfig from a JSON file.
func LoadPianoConfig(path string) (*PianoConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 64 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &PianoConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the set values are usable.
func (c *PianoConfig) Validate() error {
	if c.TriggerMm != nil && *c.TriggerMm <= 0 {
		return fmt.Errorf("trigger_mm must be positive, got %d", *c.TriggerMm)
	}
	if c.HysteresisMm != nil && *c.HysteresisMm < 0 {
		return fmt.Errorf("hysteresis_mm must be non-negative, got %d", *c.HysteresisMm)
	}
	if c.Volume != nil && (*c.Volume < 0 || *c.Volume > MaxVolume) {
		return fmt.Errorf("volume must be between 0 and %.1f, got %f", MaxVolume, *c.Volume)
	}
	if c.GetMultiTone() && c.GetNoteSpacingMm() <= 0 {
		return fmt.Errorf("note_spacing_mm must be positive in multi-tone mode, got %d", c.GetNoteSpacingMm())
	}
	if c.ActiveNote != nil {
		if _, err := notes.Parse(*c.ActiveNote); err != nil {
			return fmt.Errorf("invalid active_note: %w", err)
		}
	}
	return nil
}

// GetTriggerMm returns trigger_mm or the default.
func (c *PianoConfig) GetTriggerMm() int {
	if c.TriggerMm == nil {
		return DefaultTriggerMm
	}
	return *c.TriggerMm
}

// GetHysteresisMm returns hysteresis_mm or the default. Negative values are
// clamped to zero.
func (c *PianoConfig) GetHysteresisMm() int {
	if c.HysteresisMm == nil {
		return DefaultHysteresisMm
	}
	if *c.HysteresisMm < 0 {
		return 0
	}
	return *c.HysteresisMm
}

// GetVolume returns volume or the default.
func (c *PianoConfig) GetVolume() float64 {
	if c.Volume == nil {
		return DefaultVolume
	}
	return *c.Volume
}

// GetMultiTone returns multi_tone or the default.
func (c *PianoConfig) GetMultiTone() bool {
	if c.MultiTone == nil {
		return false
	}
	return *c.MultiTone
}

// GetNoteSpacingMm returns note_spacing_mm or the default.
func (c *PianoConfig) GetNoteSpacingMm() int {
	if c.NoteSpacingMm == nil {
		return DefaultNoteSpacingMm
	}
	return *c.NoteSpacingMm
}

// GetLoop returns loop or the default.
func (c *PianoConfig) GetLoop() bool {
	if c.Loop == nil {
		return false
	}
	return *c.Loop
}

// GetActiveNote returns active_note or C when unset or unparseable.
func (c *PianoConfig) GetActiveNote() notes.Note {
	if c.ActiveNote == nil {
		return notes.C
	}
	n, err := notes.Parse(*c.ActiveNote)
	if err != nil {
		return notes.C
	}
	return n
}

// Resolve returns the Settings described by c, falling back to defaults.
func (c *PianoConfig) Resolve() Settings {
	return Settings{
		TriggerMm:     c.GetTriggerMm(),
		HysteresisMm:  c.GetHysteresisMm(),
		Volume:        c.GetVolume(),
		MultiTone:     c.GetMultiTone(),
		NoteSpacingMm: c.GetNoteSpacingMm(),
		Loop:          c.GetLoop(),
		ActiveNote:    c.GetActiveNote(),
	}
}

// Merge overlays every field set in other onto c.
func (c *PianoConfig) Merge(other *PianoConfig) {
	if other == nil {
		return
	}
	if other.TriggerMm != nil {
		c.TriggerMm = ptrInt(*other.TriggerMm)
	}
	if other.HysteresisMm != nil {
		c.HysteresisMm = ptrInt(*other.HysteresisMm)
	}
	if other.Volume != nil {
		c.Volume = ptrFloat64(*other.Volume)
	}
	if other.MultiTone != nil {
		c.MultiTone = ptrBool(*other.MultiTone)
	}
	if other.NoteSpacingMm != nil {
		c.NoteSpacingMm = ptrInt(*other.NoteSpacingMm)
	}
	if other.Loop != nil {
		c.Loop = ptrBool(*other.Loop)
	}
	if other.ActiveNote != nil {
		c.ActiveNote = ptrString(*other.ActiveNote)
	}
}

// Set parses value and assigns it to the field named by key.
func (c *PianoConfig) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case KeyTriggerMm, KeyHysteresisMm, KeyNoteSpacingMm:
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		switch key {
		case KeyTriggerMm:
			c.TriggerMm = &v
		case KeyHysteresisMm:
			c.HysteresisMm = &v
		default:
			c.NoteSpacingMm = &v
		}
	case KeyVolume:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		c.Volume = &v
	case KeyMultiTone, KeyLoop:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		if key == KeyMultiTone {
			c.MultiTone = &v
		} else {
			c.Loop = &v
		}
	case KeyActiveNote:
		n, err := notes.Parse(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		c.ActiveNote = ptrString(n.String())
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSetting, key)
	}
	return nil
}

// Values returns the set fields as key/value strings, the inverse of Set.
func (c *PianoConfig) Values() map[string]string {
	out := make(map[string]string)
	if c.TriggerMm != nil {
		out[KeyTriggerMm] = strconv.Itoa(*c.TriggerMm)
	}
	if c.HysteresisMm != nil {
		out[KeyHysteresisMm] = strconv.Itoa(*c.HysteresisMm)
	}
	if c.Volume != nil {
		out[KeyVolume] = strconv.FormatFloat(*c.Volume, 'f', -1, 64)
	}
	if c.MultiTone != nil {
		out[KeyMultiTone] = strconv.FormatBool(*c.MultiTone)
	}
	if c.NoteSpacingMm != nil {
		out[KeyNoteSpacingMm] = strconv.Itoa(*c.NoteSpacingMm)
	}
	if c.Loop != nil {
		out[KeyLoop] = strconv.FormatBool(*c.Loop)
	}
	if c.ActiveNote != nil {
		out[KeyActiveNote] = *c.ActiveNote
	}
	return out
}

// Keys lists every setting key in a stable order.
func Keys() []string {
	keys := []string{
		KeyTriggerMm, KeyHysteresisMm, KeyVolume, KeyMultiTone,
		KeyNoteSpacingMm, KeyLoop, KeyActiveNote,
	}
	sort.Strings(keys)
	return keys
}

// Mapping returns the note-selection parameters of s.
func (s Settings) Mapping() notes.Mapping {
	return notes.Mapping{
		MultiTone: s.MultiTone,
		Active:    s.ActiveNote,
		TriggerMm: s.TriggerMm,
		SpacingMm: s.NoteSpacingMm,
	}
}

// ReleaseMm is the distance above which an active presence ends.
func (s Settings) ReleaseMm() int {
	return s.TriggerMm + s.HysteresisMm
}
