package resolve

import "sync"

// Observed holds the most recently reported rendering-context values:
// the heading of the thread currently on screen and the client's
// navigation path. The intake layer updates them from request headers;
// tests drive them directly.
type Observed struct {
	mu      sync.RWMutex
	heading string
	path    string
}

func NewObserved() *Observed { return &Observed{} }

func (o *Observed) SetHeading(h string) {
	o.mu.Lock()
	o.heading = h
	o.mu.Unlock()
}

func (o *Observed) SetPath(p string) {
	o.mu.Lock()
	o.path = p
	o.mu.Unlock()
}

// Heading returns the last observed thread heading, if any.
func (o *Observed) Heading() (string, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.heading, o.heading != ""
}

// Path returns the last observed client navigation path, if any.
func (o *Observed) Path() (string, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.path, o.path != ""
}
