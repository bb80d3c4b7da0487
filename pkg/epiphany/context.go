package epiphany

import (
	"sync"

	"github.com/lorekeeper/chronicle/pkg/types"
)

// Context accumulates resolved units across pipeline runs so insight
// generation can look at more than one narrative at a time. It is an
// explicit object rather than package state: callers that need
// isolation (tests, concurrent users) create their own and reset it
// when done.
type Context struct {
	mu    sync.RWMutex
	units map[string][]types.ResolvedUnit
}

// NewContext creates an empty accumulation context.
func NewContext() *Context {
	return &Context{
		units: make(map[string][]types.ResolvedUnit),
	}
}

// Record appends a run's resolved units to the user's accumulated
// history.
func (c *Context) Record(userID string, units []types.ResolvedUnit) {
	if userID == "" || len(units) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.units[userID] = append(c.units[userID], units...)
}

// Units returns a copy of everything recorded for the user.
func (c *Context) Units(userID string) []types.ResolvedUnit {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stored := c.units[userID]
	if len(stored) == 0 {
		return nil
	}
	return append([]types.ResolvedUnit(nil), stored...)
}

// ResetUser drops the accumulated units for one user.
func (c *Context) ResetUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.units, userID)
}

// Reset drops everything.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.units = make(map[string][]types.ResolvedUnit)
}
