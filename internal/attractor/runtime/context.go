package runtime

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Context is the shared, thread-safe key/value store threaded through a
// run. Copies of a *Context share the same underlying map; use
// CloneIsolated for an independent deep copy.
type Context struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{data: make(map[string]any)}
}

// Get returns the value stored at key and whether it was present.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok
}

// GetString returns the value at key coerced to a string, or def if absent.
func (c *Context) GetString(key, def string) string {
	v, ok := c.Get(key)
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Set stores value at key, overwriting any previous value.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

// ApplyUpdates merges updates into the context as a single atomic operation.
// Caller-supplied values take precedence over whatever is already stored.
func (c *Context) ApplyUpdates(updates map[string]any) {
	if len(updates) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range updates {
		c.data[k] = v
	}
}

// Snapshot returns a shallow copy of the context's current contents. The
// returned map is safe to read and mutate independently of the Context, but
// values that are themselves reference types (maps, slices) are shared.
func (c *Context) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// CloneIsolated returns a new Context holding an independent deep copy of
// this context's data, for use when a run branches (e.g. parallel fan-out)
// and must not see the parent's subsequent writes. Values are deep-copied
// via a JSON round trip, since context values are JSON by contract.
func (c *Context) CloneIsolated() (*Context, error) {
	snap := c.Snapshot()
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("context: clone_isolated marshal: %w", err)
	}
	var copied map[string]any
	if err := json.Unmarshal(raw, &copied); err != nil {
		return nil, fmt.Errorf("context: clone_isolated unmarshal: %w", err)
	}
	return &Context{data: copied}, nil
}

// Len returns the number of keys currently stored.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
