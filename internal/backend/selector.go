// Package backend chooses which upstream directory server connection a
// newly dispatched operation should be forwarded to.
package backend

import (
	"sync"
	"sync/atomic"

	"github.com/majewsky-labs/lloadd/internal/ldaperr"
	"github.com/majewsky-labs/lloadd/internal/lbconn"
)

// Selector picks an upstream Connection to carry a request. Implementations
// must be safe for concurrent use, since the dispatcher calls Select
// once per in-flight operation from worker-pool goroutines.
type Selector interface {
	// Select returns an upstream Connection to forward to, or
	// ldaperr.ErrNoUpstream if none is currently available.
	Select() (*lbconn.Connection, error)
}

// RoundRobin cycles through a fixed pool of upstream connections,
// skipping any that have been marked closed. It is the proxy's default
// Selector, playing the role OpenLDAP's lloadd fills with its
// configurable backend_select "round-robin" algorithm.
type RoundRobin struct {
	mu   sync.RWMutex
	pool []*lbconn.Connection
	next atomic.Uint64
}

// NewRoundRobin builds a RoundRobin selector over pool. The slice is
// copied; later calls to SetPool replace the active set wholesale.
func NewRoundRobin(pool []*lbconn.Connection) *RoundRobin {
	rr := &RoundRobin{}
	rr.SetPool(pool)
	return rr
}

// SetPool atomically replaces the set of upstream connections
// considered by Select, used when upstreams are reconfigured or a dead
// connection is retired.
func (rr *RoundRobin) SetPool(pool []*lbconn.Connection) {
	cp := make([]*lbconn.Connection, len(pool))
	copy(cp, pool)

	rr.mu.Lock()
	rr.pool = cp
	rr.mu.Unlock()
}

// Select implements Selector.
func (rr *RoundRobin) Select() (*lbconn.Connection, error) {
	rr.mu.RLock()
	pool := rr.pool
	rr.mu.RUnlock()

	if len(pool) == 0 {
		return nil, ldaperr.ErrNoUpstream
	}

	n := uint64(len(pool))
	for i := uint64(0); i < n; i++ {
		idx := (rr.next.Add(1) - 1) % n
		if pool[idx] != nil && !pool[idx].IsClosed() {
			return pool[idx], nil
		}
	}
	return nil, ldaperr.ErrNoUpstream
}
