package engine

import "github.com/rhuss/cadence/pkg/api"

// history is the append-only conversation log. A tool round is staged by
// begin and becomes permanent with commit; rollback drops a staged round.
type history struct {
	turns []api.Turn

	// staged is the length before the uncommitted round, or -1.
	staged int
}

func newHistory() history {
	return history{staged: -1}
}

func (h *history) append(t api.Turn) {
	h.turns = append(h.turns, t)
}

func (h *history) begin() {
	h.staged = len(h.turns)
}

func (h *history) commit() {
	h.staged = -1
}

// rollback truncates to the start of the uncommitted round and reports
// how many turns were removed.
func (h *history) rollback() int {
	if h.staged < 0 {
		return 0
	}
	removed := len(h.turns) - h.staged
	h.turns = h.turns[:h.staged]
	h.staged = -1
	return removed
}

func (h *history) clear() {
	h.turns = nil
	h.staged = -1
}

func (h *history) snapshot() []api.Turn {
	return api.CloneTurns(h.turns)
}
