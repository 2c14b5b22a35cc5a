package backend

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/majewsky-labs/lloadd/internal/lbconn"
)

func newUpstream(t *testing.T) *lbconn.Connection {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return lbconn.NewUpstreamConnection(a)
}

func TestRoundRobinCyclesThroughPool(t *testing.T) {
	c1 := newUpstream(t)
	c2 := newUpstream(t)
	rr := NewRoundRobin([]*lbconn.Connection{c1, c2})

	first, err := rr.Select()
	require.NoError(t, err)
	second, err := rr.Select()
	require.NoError(t, err)
	third, err := rr.Select()
	require.NoError(t, err)

	require.NotSame(t, first, second)
	require.Same(t, first, third)
}

func TestRoundRobinErrorsOnEmptyPool(t *testing.T) {
	rr := NewRoundRobin(nil)
	_, err := rr.Select()
	require.Error(t, err)
}

func TestRoundRobinSkipsClosedConnections(t *testing.T) {
	c1 := newUpstream(t)
	c2 := newUpstream(t)
	require.NoError(t, c1.Close())

	rr := NewRoundRobin([]*lbconn.Connection{c1, c2})

	for i := 0; i < 4; i++ {
		got, err := rr.Select()
		require.NoError(t, err)
		require.Same(t, c2, got)
	}
}
