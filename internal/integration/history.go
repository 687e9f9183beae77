package integration

import (
	"sync"

	"github.com/droiddeck/backend/internal/shared/types"
)

// historySize bounds the sideload history kept in memory.
const historySize = 100

// history is a thread-safe ring of recent install outcomes, newest
// first on read.
type history struct {
	mu       sync.Mutex
	outcomes []types.InstallOutcome
	pos      int
	full     bool
}

func newHistory() *history {
	return &history{outcomes: make([]types.InstallOutcome, historySize)}
}

func (h *history) add(outcome types.InstallOutcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outcomes[h.pos] = outcome
	h.pos = (h.pos + 1) % len(h.outcomes)
	if h.pos == 0 {
		h.full = true
	}
}

func (h *history) recent(limit int) []types.InstallOutcome {
	h.mu.Lock()
	defer h.mu.Unlock()

	size := h.pos
	if h.full {
		size = len(h.outcomes)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]types.InstallOutcome, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (h.pos - i + len(h.outcomes)) % len(h.outcomes)
		out = append(out, h.outcomes[idx])
	}
	return out
}
