package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/presence-piano/internal/monitoring"
	"github.com/banshee-data/presence-piano/internal/notes"
	"github.com/banshee-data/presence-piano/internal/timeutil"
)

// recorderBuffer bounds the events queued between the control loop and
// the writer goroutine.
const recorderBuffer = 64

type eventKind int

const (
	episodeStarted eventKind = iota
	episodeEnded
	noteStarted
	noteStopped
)

type episodeEvent struct {
	kind       eventKind
	episodeID  string
	distanceMm int
	note       notes.Note
	at         time.Time
}

// Episode is one stored presence episode with the notes played during it.
type Episode struct {
	ID        string
	StartedAt time.Time
	EndedAt   *time.Time
	EnterMm   int
	ExitMm    *int
	Notes     []EpisodeNote
}

type EpisodeNote struct {
	Note      notes.Note
	StartedAt time.Time
	StoppedAt *time.Time
}

// EpisodeRecorder persists presence episodes and the notes played in them.
// Its listener methods are called from the control loop and never block:
// when the queue is full the event is dropped and counted.
type EpisodeRecorder struct {
	db      *DB
	clock   timeutil.Clock
	events  chan episodeEvent
	dropped int
}

func NewEpisodeRecorder(db *DB, clock timeutil.Clock) *EpisodeRecorder {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &EpisodeRecorder{
		db:     db,
		clock:  clock,
		events: make(chan episodeEvent, recorderBuffer),
	}
}

func (r *EpisodeRecorder) EpisodeStarted(id string, distanceMm int) {
	r.enqueue(episodeEvent{kind: episodeStarted, episodeID: id, distanceMm: distanceMm})
}

func (r *EpisodeRecorder) EpisodeEnded(id string, distanceMm int) {
	r.enqueue(episodeEvent{kind: episodeEnded, episodeID: id, distanceMm: distanceMm})
}

func (r *EpisodeRecorder) NoteStarted(episodeID string, n notes.Note) {
	r.enqueue(episodeEvent{kind: noteStarted, episodeID: episodeID, note: n})
}

func (r *EpisodeRecorder) NoteStopped(episodeID string, n notes.Note) {
	r.enqueue(episodeEvent{kind: noteStopped, episodeID: episodeID, note: n})
}

func (r *EpisodeRecorder) enqueue(ev episodeEvent) {
	ev.at = r.clock.Now()
	select {
	case r.events <- ev:
	default:
		r.dropped++
		monitoring.Debugf("episode recorder: queue full, dropped %d events", r.dropped)
	}
}

// Run writes queued events until ctx is done, then flushes what is left.
func (r *EpisodeRecorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.Flush()
			return ctx.Err()
		case ev := <-r.events:
			r.write(ev)
		}
	}
}

// Flush writes every queued event without waiting for more.
func (r *EpisodeRecorder) Flush() {
	for {
		select {
		case ev := <-r.events:
			r.write(ev)
		default:
			return
		}
	}
}

func (r *EpisodeRecorder) write(ev episodeEvent) {
	var err error
	switch ev.kind {
	case episodeStarted:
		err = r.db.InsertEpisode(ev.episodeID, ev.at, ev.distanceMm)
	case episodeEnded:
		err = r.db.EndEpisode(ev.episodeID, ev.at, ev.distanceMm)
	case noteStarted:
		err = r.db.InsertEpisodeNote(ev.episodeID, ev.note, ev.at)
	case noteStopped:
		err = r.db.StopEpisodeNote(ev.episodeID, ev.note, ev.at)
	}
	if err != nil {
		monitoring.Logf("episode recorder: %v", err)
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(v float64) time.Time {
	return time.Unix(0, int64(v*1e9)).UTC()
}

func (db *DB) InsertEpisode(id string, at time.Time, enterMm int) error {
	_, err := db.Exec(`INSERT INTO episodes (episode_id, started_unix, enter_mm) VALUES (?, ?, ?)`,
		id, unixSeconds(at), enterMm)
	if err != nil {
		return fmt.Errorf("failed to insert episode %s: %w", id, err)
	}
	return nil
}

func (db *DB) EndEpisode(id string, at time.Time, exitMm int) error {
	_, err := db.Exec(`UPDATE episodes SET ended_unix = ?, exit_mm = ? WHERE episode_id = ?`,
		unixSeconds(at), exitMm, id)
	if err != nil {
		return fmt.Errorf("failed to end episode %s: %w", id, err)
	}
	return nil
}

func (db *DB) InsertEpisodeNote(id string, n notes.Note, at time.Time) error {
	_, err := db.Exec(`INSERT INTO episode_notes (episode_id, note, started_unix) VALUES (?, ?, ?)`,
		id, n.String(), unixSeconds(at))
	if err != nil {
		return fmt.Errorf("failed to insert note %s for episode %s: %w", n, id, err)
	}
	return nil
}

// StopEpisodeNote closes the most recent open row for n in the episode.
func (db *DB) StopEpisodeNote(id string, n notes.Note, at time.Time) error {
	_, err := db.Exec(`
		UPDATE episode_notes SET stopped_unix = ?
		WHERE rowid = (
			SELECT rowid FROM episode_notes
			WHERE episode_id = ? AND note = ? AND stopped_unix IS NULL
			ORDER BY started_unix DESC LIMIT 1
		)`, unixSeconds(at), id, n.String())
	if err != nil {
		return fmt.Errorf("failed to stop note %s for episode %s: %w", n, id, err)
	}
	return nil
}

// RecentEpisodes returns up to limit episodes, newest first, with their notes.
func (db *DB) RecentEpisodes(limit int) ([]Episode, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT episode_id, started_unix, ended_unix, enter_mm, exit_mm
		FROM episodes ORDER BY started_unix DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %w", err)
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		var (
			ep      Episode
			started float64
			ended   sql.NullFloat64
			exit    sql.NullInt64
		)
		if err := rows.Scan(&ep.ID, &started, &ended, &ep.EnterMm, &exit); err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		ep.StartedAt = fromUnixSeconds(started)
		if ended.Valid {
			t := fromUnixSeconds(ended.Float64)
			ep.EndedAt = &t
		}
		if exit.Valid {
			v := int(exit.Int64)
			ep.ExitMm = &v
		}
		episodes = append(episodes, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range episodes {
		ns, err := db.episodeNotes(episodes[i].ID)
		if err != nil {
			return nil, err
		}
		episodes[i].Notes = ns
	}
	return episodes, nil
}

func (db *DB) episodeNotes(id string) ([]EpisodeNote, error) {
	rows, err := db.Query(`
		SELECT note, started_unix, stopped_unix FROM episode_notes
		WHERE episode_id = ? ORDER BY started_unix`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes for episode %s: %w", id, err)
	}
	defer rows.Close()

	var out []EpisodeNote
	for rows.Next() {
		var (
			name    string
			started float64
			stopped sql.NullFloat64
		)
		if err := rows.Scan(&name, &started, &stopped); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		n, err := notes.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("stored note for episode %s: %w", id, err)
		}
		en := EpisodeNote{Note: n, StartedAt: fromUnixSeconds(started)}
		if stopped.Valid {
			t := fromUnixSeconds(stopped.Float64)
			en.StoppedAt = &t
		}
		out = append(out, en)
	}
	return out, rows.Err()
}
