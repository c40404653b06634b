// Package trigger turns filtered distance readings into presence episodes
// and decides when a note should start or stop.
package trigger

import (
	"github.com/google/uuid"

	"github.com/banshee-data/presence-piano/internal/config"
	"github.com/banshee-data/presence-piano/internal/monitoring"
	"github.com/banshee-data/presence-piano/internal/notes"
	"github.com/banshee-data/presence-piano/internal/playback"
)

// Presence is the debounced occupancy state.
type Presence int

const (
	Idle Presence = iota
	Active
)

func (p Presence) String() string {
	if p == Active {
		return "active"
	}
	return "idle"
}

// Player is the part of playback.Manager the machine drives.
type Player interface {
	Start(ep *playback.Episode, n notes.Note, s config.Settings) bool
	Stop(ep *playback.Episode)
}

// Listener is told when presence episodes begin and end.
type Listener interface {
	EpisodeStarted(id string, distanceMm int)
	EpisodeEnded(id string, distanceMm int)
}

// Machine is the hysteresis state machine. It is not safe for concurrent
// use; the scheduler goroutine owns it.
type Machine struct {
	player    Player
	episode   *playback.Episode
	listeners []Listener
	newID     func() string
}

// NewMachine returns an Idle machine driving player.
func NewMachine(player Player) *Machine {
	return &Machine{
		player:  player,
		episode: playback.NewEpisode(),
		newID:   uuid.NewString,
	}
}

// AddListener registers l for episode events.
func (m *Machine) AddListener(l Listener) {
	m.listeners = append(m.listeners, l)
}

// Episode returns the episode state shared with the playback manager.
func (m *Machine) Episode() *playback.Episode { return m.episode }

// Presence returns the current state.
func (m *Machine) Presence() Presence {
	if m.episode.Active {
		return Active
	}
	return Idle
}

// Step feeds one filtered distance through the machine.
//
// Presence begins when the distance drops strictly below the trigger and
// ends when it rises strictly above trigger plus hysteresis. Between the two
// nothing changes. Notes are only (re)started while the distance is below
// the trigger.
func (m *Machine) Step(distanceMm int, s config.Settings) {
	ep := m.episode

	if distanceMm < s.TriggerMm {
		if !ep.Active {
			ep.Active = true
			ep.HasPlayedOnce = false
			ep.ID = m.newID()
			monitoring.Debugf("episode %s started at %dmm", ep.ID, distanceMm)
			for _, l := range m.listeners {
				l.EpisodeStarted(ep.ID, distanceMm)
			}
		}

		target := notes.Select(distanceMm, s.Mapping())
		if s.MultiTone && target != ep.LastNote {
			ep.HasPlayedOnce = false
		}
		if !ep.HasPlayedOnce {
			m.player.Start(ep, target, s)
		}
		return
	}

	if ep.Active && distanceMm > s.ReleaseMm() {
		id := ep.ID
		ep.Active = false
		m.player.Stop(ep)
		ep.LastNote = notes.None
		ep.HasPlayedOnce = false
		ep.ID = ""
		monitoring.Debugf("episode %s ended at %dmm", id, distanceMm)
		for _, l := range m.listeners {
			l.EpisodeEnded(id, distanceMm)
		}
	}
}
