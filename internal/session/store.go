// Package session maps each user to the conversation handle that carries
// their multi-turn exchange with the chat model.
//
// Keys are spread over a fixed set of shards and each key owns its own slot
// mutex, so creating a conversation for one user never blocks another user.
// An optional janitor evicts slots that have been idle longer than IdleTTL.
package session

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/54b3r/docqa-go/internal/rag"
)

// shardCount is the number of independently locked key partitions.
const shardCount = 16

// defaultSweepInterval caps how often the janitor scans for idle slots.
const defaultSweepInterval = time.Minute

// ErrEmptyKey is returned when GetOrCreate is called without a key.
var ErrEmptyKey = errors.New("session: key must not be empty")

// State is a read-only view of one user's session.
type State struct {
	// Key is the owner id the session belongs to.
	Key string
	// Handle is the live conversation.
	Handle rag.Conversation
	// LastActivity is the time of the last GetOrCreate for Key.
	LastActivity time.Time
}

// Config holds the settings for constructing a Store.
type Config struct {
	// Chat creates new conversations. Required.
	Chat rag.ChatModel
	// Model is passed to Chat.NewConversation. Empty selects the backend default.
	Model string
	// IdleTTL evicts sessions unused for longer than this. Zero disables eviction.
	IdleTTL time.Duration
	// SweepInterval is how often idle sessions are scanned for.
	// Defaults to IdleTTL/2, capped at one minute.
	SweepInterval time.Duration
	// Logger receives eviction events. Defaults to slog.Default().
	Logger *slog.Logger
}

// slot is the per-key cell. mu guards every field.
type slot struct {
	mu           sync.Mutex
	handle       rag.Conversation
	lastActivity time.Time
	// evicted marks a slot unlinked from its shard; holders must re-resolve.
	evicted bool
}

// shard is one partition of the key space. mu guards slots only; it is never
// held while a slot mutex is awaited.
type shard struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// Store is a concurrency-safe map from owner key to conversation handle.
type Store struct {
	shards  [shardCount]shard
	chat    rag.ChatModel
	model   string
	idleTTL time.Duration
	log     *slog.Logger
	now     func() time.Time

	// active counts slots holding a handle.
	active atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// New constructs a Store. When cfg.IdleTTL is positive a background janitor
// is started; call Close to stop it.
func New(cfg Config) (*Store, error) {
	if cfg.Chat == nil {
		return nil, fmt.Errorf("session: chat model is required")
	}
	if cfg.IdleTTL < 0 {
		return nil, fmt.Errorf("session: idle ttl must not be negative, got %s", cfg.IdleTTL)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Store{
		chat:    cfg.Chat,
		model:   cfg.Model,
		idleTTL: cfg.IdleTTL,
		log:     log,
		now:     time.Now,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i].slots = make(map[string]*slot)
	}

	if s.idleTTL <= 0 {
		close(s.done)
		return s, nil
	}

	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = min(s.idleTTL/2, defaultSweepInterval)
		if interval <= 0 {
			interval = s.idleTTL
		}
	}
	go s.evictLoop(interval)
	return s, nil
}

// GetOrCreate returns the conversation for key. A new conversation is created
// when none exists or when reset is true; otherwise the existing handle is
// reused. Concurrent non-reset callers for the same key observe a single
// created handle. Concurrent reset callers each create one and the last to
// finish wins.
func (s *Store) GetOrCreate(ctx context.Context, key string, reset bool) (rag.Conversation, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	for {
		sl := s.slotFor(key)
		sl.mu.Lock()
		if sl.evicted {
			sl.mu.Unlock()
			continue
		}

		if sl.handle == nil || reset {
			h, err := s.chat.NewConversation(ctx, s.model)
			if err != nil {
				if sl.handle == nil {
					s.unlink(key, sl)
				}
				sl.mu.Unlock()
				return nil, fmt.Errorf("session: create conversation: %w", err)
			}
			if sl.handle == nil {
				s.active.Add(1)
			}
			sl.handle = h
		}
		sl.lastActivity = s.now()
		h := sl.handle
		sl.mu.Unlock()
		return h, nil
	}
}

// Get returns the session for key without creating or touching it.
func (s *Store) Get(key string) (State, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	sl, ok := sh.slots[key]
	sh.mu.Unlock()
	if !ok {
		return State{}, false
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.evicted || sl.handle == nil {
		return State{}, false
	}
	return State{Key: key, Handle: sl.handle, LastActivity: sl.lastActivity}, true
}

// Len returns the number of live sessions.
func (s *Store) Len() int { return int(s.active.Load()) }

// Close stops the janitor. It is safe to call more than once.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
}

// slotFor returns the slot for key, creating an empty one if needed.
func (s *Store) slotFor(key string) *slot {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sl, ok := sh.slots[key]
	if !ok {
		sl = &slot{}
		sh.slots[key] = sl
	}
	return sl
}

// unlink removes sl from its shard. The caller must hold sl.mu.
func (s *Store) unlink(key string, sl *slot) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	if sh.slots[key] == sl {
		delete(sh.slots, key)
	}
	sh.mu.Unlock()
	sl.evicted = true
}

func (s *Store) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%shardCount]
}

// evictLoop removes idle sessions until Close is called.
func (s *Store) evictLoop(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if n := s.evict(); n > 0 {
				s.log.Debug("session: evicted idle sessions",
					slog.Int("evicted", n),
					slog.Int("active", s.Len()),
				)
			}
		}
	}
}

// evict removes slots idle for longer than idleTTL and returns how many were
// removed. Slots whose mutex is held are in use and skipped.
func (s *Store) evict() int {
	cutoff := s.now().Add(-s.idleTTL)
	evicted := 0

	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, sl := range sh.slots {
			if !sl.mu.TryLock() {
				continue
			}
			if sl.lastActivity.Before(cutoff) {
				delete(sh.slots, key)
				sl.evicted = true
				if sl.handle != nil {
					s.active.Add(-1)
					evicted++
				}
				sl.handle = nil
			}
			sl.mu.Unlock()
		}
		sh.mu.Unlock()
	}
	return evicted
}
