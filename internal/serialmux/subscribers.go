package serialmux

import (
	"sync"

	"github.com/google/uuid"
)

// registry tracks line subscribers. Once shut, new subscribers get an
// already-closed channel so their range loops end at once.
type registry struct {
	mu     sync.Mutex
	subs   map[string]chan string
	closed bool
}

func (r *registry) add(buffer int) (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string, buffer)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		close(ch)
		return id, ch
	}
	if r.subs == nil {
		r.subs = make(map[string]chan string)
	}
	r.subs[id] = ch
	return id, ch
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.subs[id]; ok {
		close(ch)
		delete(r.subs, id)
	}
}

// send offers line to every subscriber without blocking and reports how many
// were full. ok is false after shut.
func (r *registry) send(line string) (dropped int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, false
	}
	for _, ch := range r.subs {
		select {
		case ch <- line:
		default:
			dropped++
		}
	}
	return dropped, true
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// shut closes every subscriber channel. It reports false if already shut.
func (r *registry) shut() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.closed = true
	for id, ch := range r.subs {
		close(ch)
		delete(r.subs, id)
	}
	return true
}
