package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Entry describes one MCP session seen by the server.
type Entry struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
	ToolCalls int64     `json:"tool_calls"`
}

// Registry tracks active MCP sessions. Entries are created on first use and
// evicted by Sweep once idle for longer than the timeout.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Entry
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewRegistry(timeout time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Entry),
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// Touch records a tool call for id, registering the session if it is new.
// An empty id (stdio transport) is ignored.
func (r *Registry) Touch(ctx context.Context, id string) {
	if id == "" {
		return
	}
	now := r.now()

	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		e = &Entry{ID: id, CreatedAt: now}
		r.sessions[id] = e
	}
	e.LastSeen = now
	e.ToolCalls++
	r.mu.Unlock()

	if !ok {
		r.logger.LogAttrs(ctx, slog.LevelInfo, "session registered", slog.String("mcp.session.id", id))
	}
}

// Remove forgets id, returning whether it was registered.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

// Sweep evicts sessions idle for longer than the timeout as of now and
// returns their ids.
func (r *Registry) Sweep(now time.Time) []string {
	r.mu.Lock()
	var expired []string
	for id, e := range r.sessions {
		if now.Sub(e.LastSeen) > r.timeout {
			expired = append(expired, id)
			delete(r.sessions, id)
		}
	}
	active := len(r.sessions)
	r.mu.Unlock()

	sort.Strings(expired)
	for _, id := range expired {
		r.logger.Info("session expired", slog.String("mcp.session.id", id))
	}
	if len(expired) > 0 {
		r.logger.Info("session sweep",
			slog.Int("expired", len(expired)),
			slog.Int("active", active),
		)
	}
	return expired
}

// Run sweeps every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}

// Snapshot returns a copy of the active sessions, oldest first.
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	out := make([]Entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, *e)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
