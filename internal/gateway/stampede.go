package gateway

import "sync"

// stampedeTracker counts concurrent misses per key. A count above 1 means several
// callers are fetching the same key at once.
type stampedeTracker struct {
	mu           sync.Mutex
	activeMisses map[string]int
}

func newStampedeTracker() *stampedeTracker {
	return &stampedeTracker{activeMisses: make(map[string]int)}
}

// begin records a miss for key and returns the concurrent miss count including this one.
// Callers must call end(key) once the miss is resolved.
func (st *stampedeTracker) begin(key string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.activeMisses[key]++
	return st.activeMisses[key]
}

func (st *stampedeTracker) end(key string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.activeMisses[key] <= 1 {
		delete(st.activeMisses, key)
		return
	}
	st.activeMisses[key]--
}
