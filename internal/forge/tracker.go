package forge

import "sync"

// Tracker holds the single reference image for a session. The first
// successful generation sets it; after that it never changes, which is what
// keeps a session's assets visually consistent.
type Tracker struct {
	mu  sync.Mutex
	ref string
}

// RecordIfFirst stores imageID as the session reference if none is set.
// Returns true when this call set the reference. Empty IDs are ignored.
func (t *Tracker) RecordIfFirst(imageID string) bool {
	if imageID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ref != "" {
		return false
	}
	t.ref = imageID
	return true
}

// Reference returns the session reference image ID, or "" if not set yet.
func (t *Tracker) Reference() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ref
}
