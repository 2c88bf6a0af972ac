package pipeline

import (
	"sync"
)

// inflight tracks which episodes have a processing attempt running in this
// process. The database claim is the cross-process guard; this map keeps a
// burst of requests for the same episode from racing to the claim and lets
// blocking resolves wait for the attempt already underway.
type inflight struct {
	mu     sync.Mutex
	active map[int64]chan struct{}
}

func newInflight() *inflight {
	return &inflight{active: make(map[int64]chan struct{})}
}

// begin registers an attempt for the episode. When one is already running it
// returns that attempt's done channel and started=false.
func (f *inflight) begin(episodeID int64) (done chan struct{}, finish func(), started bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.active[episodeID]; ok {
		return ch, nil, false
	}
	ch := make(chan struct{})
	f.active[episodeID] = ch
	finish = func() {
		f.mu.Lock()
		delete(f.active, episodeID)
		f.mu.Unlock()
		close(ch)
	}
	return ch, finish, true
}

// watch returns the done channel for a running attempt, or nil.
func (f *inflight) watch(episodeID int64) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[episodeID]
}
