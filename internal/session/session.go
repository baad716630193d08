// Package session tracks per-session conversation history in memory.
//
// Sessions live for the lifetime of the process. Each session holds a bounded
// FIFO of question/answer exchanges; once the cap is reached the oldest
// exchange is evicted. History is rendered as plain text blocks suitable for
// inclusion in a model prompt.
package session

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Exchange is one completed question/answer pair.
type Exchange struct {
	Question string
	Answer   string
}

// Store holds conversation history for all active sessions.
// Safe for concurrent use.
type Store struct {
	mu           sync.RWMutex
	sessions     map[string][]Exchange
	counter      int
	maxExchanges int
	logger       *slog.Logger
}

// NewStore creates a session store that remembers up to maxExchanges
// exchanges per session. A cap of 0 disables memory: exchanges are recorded
// and immediately evicted, so History always returns "".
func NewStore(maxExchanges int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if maxExchanges < 0 {
		maxExchanges = 0
	}
	return &Store{
		sessions:     make(map[string][]Exchange),
		maxExchanges: maxExchanges,
		logger:       logger,
	}
}

// Create allocates a new session and returns its id.
// Ids are monotonically increasing within the process ("session_1", ...).
func (s *Store) Create() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	id := fmt.Sprintf("session_%d", s.counter)
	s.sessions[id] = nil

	s.logger.Debug("session created", "session_id", id)
	return id
}

// AddExchange records a completed question/answer pair for the session.
// Unknown session ids are created implicitly, so callers may bring their own
// id scheme. The oldest exchange is evicted once the cap is exceeded.
func (s *Store) AddExchange(id, question, answer string) {
	if id == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exchanges := append(s.sessions[id], Exchange{Question: question, Answer: answer})
	if overflow := len(exchanges) - s.maxExchanges; overflow > 0 {
		exchanges = exchanges[overflow:]
	}
	s.sessions[id] = exchanges
}

// History returns the session's exchanges formatted for prompt inclusion:
//
//	User: <question>
//	Assistant: <answer>
//
// blocks separated by blank lines, oldest first. Returns "" for unknown or
// empty sessions.
func (s *Store) History(id string) string {
	if id == "" {
		return ""
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	exchanges := s.sessions[id]
	if len(exchanges) == 0 {
		return ""
	}

	blocks := make([]string, 0, len(exchanges))
	for _, ex := range exchanges {
		blocks = append(blocks, "User: "+ex.Question+"\nAssistant: "+ex.Answer)
	}
	return strings.Join(blocks, "\n\n")
}

// Clear removes all exchanges for the session. The id remains valid; new
// exchanges can be added afterwards. Clearing an unknown id is a no-op.
func (s *Store) Clear(id string) {
	if id == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; ok {
		s.sessions[id] = nil
		s.logger.Debug("session cleared", "session_id", id)
	}
}

// Count returns the number of known sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
