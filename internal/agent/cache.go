package agent

import (
	"sync"

	"github.com/freeeve/parley/internal/model"
)

// DecisionCache memoizes the last bloc decision so that the expensive call
// happens at most once per phase no matter how many of the bloc's powers are
// iterated. Each cache slot is owned exclusively by one bloc agent; it holds
// a single entry replaced wholesale on every miss.
type DecisionCache struct {
	mu    sync.Mutex
	key   Fingerprint
	set   bool
	value map[model.Power][]model.Order
}

// NewDecisionCache returns an empty cache.
func NewDecisionCache() *DecisionCache {
	return &DecisionCache{}
}

// Get returns the cached decision if the stored fingerprint equals fp.
func (c *DecisionCache) Get(fp Fingerprint) (map[model.Power][]model.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.set || c.key != fp {
		return nil, false
	}
	return c.value, true
}

// Put replaces the cached entry. Key and value change together under the
// lock, so a concurrent Get never observes a fingerprint paired with the
// previous value.
func (c *DecisionCache) Put(fp Fingerprint, value map[model.Power][]model.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.key = fp
	c.set = true
	c.value = value
}

// PutFailure records a failed decision attempt for fp with an empty value
// map, so repeated calls within the same phase do not retry a broken agent.
// A new phase yields a new fingerprint and always retries.
func (c *DecisionCache) PutFailure(fp Fingerprint) {
	c.Put(fp, map[model.Power][]model.Order{})
}
