// Package navigation tracks the route the user is on and lets non-UI code
// force a route change (e.g. back to the login page after the session dies).
package navigation

import "sync"

const (
	HomePath  = "/"
	LoginPath = "/login"
)

// maxVisits bounds the route trail kept by History.
const maxVisits = 64

type Navigator interface {
	CurrentPath() string
	Navigate(path string)
}

// History is an in-process Navigator. The UI layer reports route changes
// with Navigate and polls CurrentPath to learn about forced redirects.
type History struct {
	mu      sync.RWMutex
	current string
	visits  []string
}

func NewHistory(start string) *History {
	if start == "" {
		start = HomePath
	}
	return &History{current: start, visits: []string{start}}
}

func (h *History) CurrentPath() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

func (h *History) Navigate(path string) {
	if path == "" {
		path = HomePath
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = path
	if len(h.visits) == maxVisits {
		copy(h.visits, h.visits[1:])
		h.visits = h.visits[:maxVisits-1]
	}
	h.visits = append(h.visits, path)
}

// Visits returns the most recent paths navigated to, oldest first.
func (h *History) Visits() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, len(h.visits))
	copy(out, h.visits)
	return out
}
