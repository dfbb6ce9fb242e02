package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// maxSessions caps the registry. Past the cap the oldest session is
	// evicted, oldest meaning earliest created, not least recently used.
	maxSessions = 50

	// sendPolls and sendPollInterval pace the wait for engine output
	// after a send: up to 3 seconds in quarter-second slices.
	sendPolls        = 12
	sendPollInterval = 250 * time.Millisecond

	// sendReplyLines and logLines bound what Send and Log return.
	sendReplyLines = 20
	logLines       = 50
)

// noOutputPlaceholder is returned when a send produced no engine output
// within the poll window. The output usually arrives later and shows up
// in the next exchange.
const noOutputPlaceholder = "sent, no new output yet"

// Engine is the slice of the supervisor the registry needs.
type Engine interface {
	LogSize() (int64, error)
	TailLog(offset, maxBytes int64) (string, int64, error)
	SendInput(line string) error
	AppendLine(line string) error
}

// Session is one interactive exchange channel with the engine. Each
// session reads the shared engine log from its own offset, so concurrent
// sessions see their own output windows.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	offset     int64
	transcript []string
}

// Registry tracks interactive sessions against the engine.
type Registry struct {
	engine Engine

	mu       sync.Mutex
	sessions map[string]*Session
	order    []string
}

// NewRegistry creates a registry over the given engine.
func NewRegistry(engine Engine) (*Registry, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	return &Registry{
		engine:   engine,
		sessions: make(map[string]*Session),
	}, nil
}

// Create opens a new session anchored at the current end of the engine
// log. When the registry is full the oldest session is dropped.
func (r *Registry) Create() (*Session, error) {
	offset, err := r.engine.LogSize()
	if err != nil {
		return nil, fmt.Errorf("sizing engine log: %w", err)
	}

	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		offset:    offset,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.order) >= maxSessions {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.sessions, oldest)
	}
	r.sessions[s.ID] = s
	r.order = append(r.order, s.ID)
	return s, nil
}

// List returns all sessions in creation order.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id])
	}
	return out
}

// Remove drops a session. Removing an unknown ID is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)
	for i, sid := range r.order {
		if sid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Send writes text to the engine on behalf of a session, waits briefly
// for output, and returns the tail of the session transcript.
func (r *Registry) Send(ctx context.Context, id, text string) ([]string, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}

	if err := r.engine.AppendLine(fmt.Sprintf("[session %s] > %s", s.ID, text)); err != nil {
		return nil, fmt.Errorf("recording session input: %w", err)
	}
	if err := r.engine.SendInput(text); err != nil {
		return nil, err
	}

	collected := r.collect(ctx, s)
	if len(collected) == 0 {
		collected = []string{noOutputPlaceholder}
	}

	r.mu.Lock()
	s.transcript = append(s.transcript, "> "+text)
	s.transcript = append(s.transcript, collected...)
	reply := lastN(s.transcript, sendReplyLines)
	r.mu.Unlock()
	return reply, nil
}

// Log returns the tail of a session's transcript. An unknown ID yields an
// empty transcript rather than an error, matching what a client sees for
// a session that has been evicted.
func (r *Registry) Log(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	return lastN(s.transcript, logLines)
}

// collect polls the engine log from the session offset, gathering
// non-blank lines. It stops early once output has arrived and a poll
// comes back quiet.
func (r *Registry) collect(ctx context.Context, s *Session) []string {
	var lines []string
	for i := 0; i < sendPolls; i++ {
		select {
		case <-ctx.Done():
			return lines
		case <-time.After(sendPollInterval):
		}

		// The offset is shared with any concurrent Send on this session,
		// so reads and writes stay under the registry lock.
		r.mu.Lock()
		offset := s.offset
		r.mu.Unlock()

		chunk, next, err := r.engine.TailLog(offset, 0)
		if err != nil {
			return lines
		}

		r.mu.Lock()
		if next > s.offset {
			s.offset = next
		}
		r.mu.Unlock()

		fresh := false
		for _, line := range strings.Split(chunk, "\n") {
			trimmed := strings.TrimSpace(line)
			// Session audit echoes live in the shared log too; they are
			// input, not engine output.
			if trimmed == "" || strings.HasPrefix(trimmed, "[session ") {
				continue
			}
			lines = append(lines, trimmed)
			fresh = true
		}
		if len(lines) > 0 && !fresh {
			break
		}
	}
	return lines
}

func lastN(lines []string, n int) []string {
	if len(lines) <= n {
		out := make([]string, len(lines))
		copy(out, lines)
		return out
	}
	out := make([]string, n)
	copy(out, lines[len(lines)-n:])
	return out
}
