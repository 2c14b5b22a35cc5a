package lbconn

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/btree"

	"github.com/majewsky-labs/lloadd/internal/ldaperr"
	"github.com/majewsky-labs/lloadd/internal/ldapwire"
)

// side distinguishes a Connection's role: it either faces an LDAP client
// or faces an upstream directory server. The two roles use different
// Operation orderings for their index (see byClientMsgID/byUpstreamMsgID),
// since a client-facing Connection's own message ids live in
// Operation.ClientMsgID while an upstream-facing one's live in
// Operation.UpstreamMsgID.
type side int

const (
	sideClient side = iota
	sideUpstream
)

var connSeq atomic.Uint64

// Connection wraps one TCP leg of the proxy (either the client side or
// an upstream side) together with the set of Operations currently
// in flight across it. All mutable state — the operation index, the
// next message id to hand out, and the closed flag — is guarded by a
// single mutex, per operation.c's one-mutex-per-connection discipline.
// Writes are not buffered here: Write checks liveness under the mutex
// and then writes to the socket without holding it.
type Connection struct {
	id   uint64
	side side
	conn net.Conn

	mu        sync.Mutex
	closed    bool
	ops       *btree.BTreeG[*Operation]
	nextMsgID int64
}

// NewClientConnection wraps a client-facing TCP connection. Message ids
// assigned to operations arriving on it are whatever the client sent;
// nextMsgID is unused on this side.
func NewClientConnection(conn net.Conn) *Connection {
	return &Connection{
		id:   connSeq.Add(1),
		side: sideClient,
		conn: conn,
		ops:  btree.NewG[*Operation](32, byClientMsgID),
	}
}

// NewUpstreamConnection wraps a connection to an upstream directory
// server. nextMsgID starts at 1 and is incremented under the connection
// mutex each time an operation is forwarded, so concurrently dispatched
// requests never collide on the same upstream message id — the proxy
// analogue of OpenLDAP's c_next_msgid counter.
func NewUpstreamConnection(conn net.Conn) *Connection {
	return &Connection{
		id:        connSeq.Add(1),
		side:      sideUpstream,
		conn:      conn,
		ops:       btree.NewG[*Operation](32, byUpstreamMsgID),
		nextMsgID: 1,
	}
}

// nextMsgIDLocked allocates and returns the next message id to use when
// forwarding a request on this (upstream) connection. It must be called
// with c.mu held; Reserve is its only caller.
func (c *Connection) nextMsgIDLocked() int64 {
	id := c.nextMsgID
	c.nextMsgID++
	return id
}

// Reserve allocates the next upstream message id and inserts op into this
// connection's index under that id, all atomically with respect to other
// Reserve/Remove/Find calls. It is the upstream-side analogue of
// operation_process's tavl_insert-after-c_next_msgid++ sequence.
func (c *Connection) Reserve(op *Operation) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, fmt.Errorf("lbconn: connection closed")
	}

	id := c.nextMsgIDLocked()
	op.Upstream = c
	op.UpstreamMsgID = id

	if c.ops.Has(op) {
		return 0, fmt.Errorf("lbconn: upstream message id %d: %w", id, ldaperr.ErrDuplicateMsgID)
	}
	c.ops.ReplaceOrInsert(op)
	return id, nil
}

// Insert adds op to this connection's index under its already-assigned
// message id for this side (ClientMsgID for a client connection,
// UpstreamMsgID for an upstream one). It reports an error if an operation
// with the same id is already tracked, mirroring tavl_insert's
// avl_dup_error handling in operation_init.
func (c *Connection) Insert(op *Operation) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("lbconn: connection closed")
	}

	if c.ops.Has(op) {
		return fmt.Errorf("lbconn: client message id on connection: %w", ldaperr.ErrDuplicateMsgID)
	}
	c.ops.ReplaceOrInsert(op)
	return nil
}

// Remove drops op from this connection's index, if present. It is safe
// to call more than once; the second call is a no-op. Grounded on
// operation_destroy's removal from both tavl indices under their
// respective mutexes.
func (c *Connection) Remove(op *Operation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops.Delete(op)
}

// FindByClientMsgID looks up the in-flight Operation with the given
// client-side message id on a client connection. It is used by the
// dispatcher to resolve an AbandonRequest's target message id to the
// operation it cancels.
func (c *Connection) FindByClientMsgID(msgID int64) (*Operation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ops.Get(&Operation{Client: c, ClientMsgID: msgID})
}

// FindByUpstreamMsgID looks up the in-flight Operation with the given
// upstream-side message id on an upstream connection. It is used by the
// response demultiplexer to map an inbound response back to the
// operation (and hence the client) that should receive it.
func (c *Connection) FindByUpstreamMsgID(msgID int64) (*Operation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ops.Get(&Operation{Upstream: c, UpstreamMsgID: msgID})
}

// InFlight reports the number of operations currently tracked on this
// connection.
func (c *Connection) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ops.Len()
}

// Write sends a fully-framed LDAPMessage envelope to this connection's
// peer, rewriting its message id to messageID. The connection mutex is
// not held across the write: operation_process releases its lock before
// calling the upstream write callback, and lbconn.Connection follows the
// same discipline so a slow peer cannot stall unrelated lookups against
// this connection's index.
func (c *Connection) Write(messageID int64, msg *ldapwire.Message) error {
	c.mu.Lock()
	closed := c.closed
	conn := c.conn
	c.mu.Unlock()

	if closed {
		return fmt.Errorf("lbconn: connection closed")
	}
	return ldapwire.WriteMessage(conn, messageID, msg)
}

// Close marks the connection closed and closes the underlying socket.
// Further Insert/Reserve calls fail; in-flight Operations already
// indexed are left for the caller to drain via Remove.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	return conn.Close()
}

// RemoteAddr returns the address of the connection's peer.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Conn returns the underlying net.Conn for use by the dedicated reader
// goroutine that owns this side of the connection. Per §5's suspension
// point rule, reads never need the connection mutex, so this accessor
// intentionally bypasses it; callers must not write to the returned
// conn directly — use Write instead, which does take the mutex around
// the liveness check.
func (c *Connection) Conn() net.Conn {
	return c.conn
}

// IsClosed reports whether Close has been called on this connection, so
// a Selector can skip retired upstreams still referenced by a stale pool
// slice.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
