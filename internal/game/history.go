package game

import (
	"sync"
)

const HISTORY_SIZE = 40

// History holds the most recent finished rounds, newest first.
type History struct {
	mu     sync.RWMutex
	rounds []*Round
	size   int
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = HISTORY_SIZE
	}
	return &History{
		rounds: make([]*Round, 0, size),
		size:   size,
	}
}

// Push prepends r, evicting the oldest round when full.
func (h *History) Push(r *Round) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.rounds) >= h.size {
		h.rounds = h.rounds[:h.size-1]
	}
	h.rounds = append(h.rounds, nil)
	copy(h.rounds[1:], h.rounds)
	h.rounds[0] = r
}

// Reset replaces the whole history, keeping at most size rounds.
func (h *History) Reset(rounds []*Round) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(rounds) > h.size {
		rounds = rounds[:h.size]
	}
	h.rounds = append(make([]*Round, 0, h.size), rounds...)
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rounds)
}

// Rounds returns a copy of the history, newest first.
func (h *History) Rounds() []*Round {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Round, len(h.rounds))
	copy(out, h.rounds)
	return out
}

// Latest returns the newest finished round, if any.
func (h *History) Latest() (*Round, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.rounds) == 0 {
		return nil, false
	}
	return h.rounds[0], true
}
