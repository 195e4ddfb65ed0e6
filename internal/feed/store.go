// Package feed keeps the client's merged view of pushed and pulled
// notifications.
package feed

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/katatrina/schoolhub-BE/internal/notification"
)

var (
	ErrStoreStopped = errors.New("feed store stopped")
	// ErrStaleGeneration rejects work that started before the last Clear.
	ErrStaleGeneration = errors.New("feed was cleared since the work started")
)

const inboxSize = 64

// op mutates the state. Only the Run goroutine executes ops.
type op struct {
	apply   func(s *state) bool
	applied chan struct{}
}

// state is owned by the Run goroutine.
type state struct {
	items []notification.Notification
	index map[string]int
	now   func() time.Time
}

// Store merges pushes and pulls into one list: every id at most once,
// newest first. All writes go through a single channel drained by Run.
type Store struct {
	inbox    chan op
	stopped  chan struct{}
	now      func() time.Time
	onChange func([]notification.Notification)

	// generation is bumped by every Clear, on the Run goroutine.
	generation atomic.Uint64

	mu   sync.RWMutex
	view []notification.Notification
}

type Option func(*Store)

// WithOnChange registers fn to receive a snapshot after every change. It
// runs on the Run goroutine.
func WithOnChange(fn func([]notification.Notification)) Option {
	return func(s *Store) {
		s.onChange = fn
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		inbox:   make(chan op, inboxSize),
		stopped: make(chan struct{}),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run applies queued operations until ctx is done.
func (s *Store) Run(ctx context.Context) {
	defer close(s.stopped)

	st := &state{index: make(map[string]int), now: s.now}
	for {
		select {
		case <-ctx.Done():
			return
		case o := <-s.inbox:
			if o.apply(st) {
				s.publish(st)
			}
			close(o.applied)
		}
	}
}

func (s *Store) publish(st *state) {
	view := make([]notification.Notification, len(st.items))
	copy(view, st.items)

	s.mu.Lock()
	s.view = view
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(view)
	}
}

// do queues fn and waits until Run has applied it.
func (s *Store) do(fn func(st *state) bool) error {
	o := op{apply: fn, applied: make(chan struct{})}
	select {
	case s.inbox <- o:
	case <-s.stopped:
		return ErrStoreStopped
	}

	select {
	case <-o.applied:
		return nil
	case <-s.stopped:
		return ErrStoreStopped
	}
}

// Generation identifies the feed contents between two Clears. Work that
// reads it before fetching passes it back so a fetch that straddles a
// logout cannot repopulate the feed.
func (s *Store) Generation() uint64 {
	return s.generation.Load()
}

// OnPush inserts n unless a notification with the same id is already held.
func (s *Store) OnPush(n notification.Notification) error {
	return s.PushFrom(s.Generation(), n)
}

// PushFrom is OnPush for a notification received during generation gen.
func (s *Store) PushFrom(gen uint64, n notification.Notification) error {
	stale := false
	err := s.do(func(st *state) bool {
		if s.generation.Load() != gen {
			stale = true
			return false
		}
		if _, ok := st.index[n.ID]; ok {
			return false
		}
		st.items = append(st.items, n)
		st.sort()
		return true
	})
	if err == nil && stale {
		err = ErrStaleGeneration
	}
	return err
}

// OnPullPage merges a pulled page. Pulled copies replace held ones, except
// that a notification already read stays read.
func (s *Store) OnPullPage(page []notification.Notification) error {
	return s.MergePage(s.Generation(), page)
}

// MergePage is OnPullPage for a page fetched during generation gen. A page
// fetched before the last Clear is discarded with ErrStaleGeneration.
func (s *Store) MergePage(gen uint64, page []notification.Notification) error {
	stale := false
	err := s.do(func(st *state) bool {
		if s.generation.Load() != gen {
			stale = true
			return false
		}
		for _, n := range page {
			if i, ok := st.index[n.ID]; ok {
				held := st.items[i]
				if held.IsRead && !n.IsRead {
					n.IsRead, n.ReadAt = true, held.ReadAt
				}
				st.items[i] = n
				continue
			}
			st.index[n.ID] = len(st.items)
			st.items = append(st.items, n)
		}
		st.sort()
		return len(page) > 0
	})
	if err == nil && stale {
		err = ErrStaleGeneration
	}
	return err
}

func (s *Store) MarkRead(id string) error {
	return s.do(func(st *state) bool {
		i, ok := st.index[id]
		if !ok || st.items[i].IsRead {
			return false
		}
		st.markRead(i)
		return true
	})
}

func (s *Store) MarkAllRead() error {
	return s.do(func(st *state) bool {
		changed := false
		for i := range st.items {
			if !st.items[i].IsRead {
				st.markRead(i)
				changed = true
			}
		}
		return changed
	})
}

// Remove drops a dismissed notification.
func (s *Store) Remove(id string) error {
	return s.do(func(st *state) bool {
		i, ok := st.index[id]
		if !ok {
			return false
		}
		st.items = append(st.items[:i], st.items[i+1:]...)
		st.reindex()
		return true
	})
}

// Clear empties the store, e.g. on logout, and starts a new generation.
func (s *Store) Clear() error {
	return s.do(func(st *state) bool {
		s.generation.Add(1)
		if len(st.items) == 0 {
			return false
		}
		st.items = nil
		st.index = make(map[string]int)
		return true
	})
}

// Snapshot returns the notifications newest first.
func (s *Store) Snapshot() []notification.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]notification.Notification, len(s.view))
	copy(out, s.view)
	return out
}

func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.view {
		if !n.IsRead {
			count++
		}
	}
	return count
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.view)
}

func (st *state) markRead(i int) {
	readAt := st.now()
	st.items[i].IsRead = true
	st.items[i].ReadAt = &readAt
}

// sort orders by CreatedAt descending, ties by id descending.
func (st *state) sort() {
	sort.SliceStable(st.items, func(i, j int) bool {
		a, b := st.items[i], st.items[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	st.reindex()
}

func (st *state) reindex() {
	st.index = make(map[string]int, len(st.items))
	for i, n := range st.items {
		st.index[n.ID] = i
	}
}
