// Package lbconn implements the proxy-side connection and in-flight
// operation bookkeeping: message-id remapping across the client/upstream
// fan-in, and the ordered indices used to look an Operation back up by
// either side's message id.
//
// Operation and Connection live in the same package because an Operation
// holds live pointers to both its client and upstream Connection, and a
// Connection indexes its Operations: splitting them across two packages
// would force an import cycle. OpenLDAP's own lloadd keeps both in
// operation.c/lload.h for the same reason.
package lbconn

import (
	"github.com/majewsky-labs/lloadd/internal/ldaptag"
)

// Operation tracks one in-flight LDAP request as it crosses the proxy:
// the client connection and message id it arrived on, the upstream
// connection and message id it was forwarded under, and the protocolOp
// tag needed to recognize the matching terminal response.
type Operation struct {
	Client      *Connection
	ClientMsgID int64

	Upstream      *Connection
	UpstreamMsgID int64

	// Tag is the request's protocolOp tag, used by the demultiplexer to
	// decide whether a given response tag is terminal for this operation.
	Tag ldaptag.Tag

	// TraceID correlates this operation's log lines (and, for entry
	// modifications applied by the directory server, its audit log row)
	// across the dispatch and demux halves of its lifetime.
	TraceID string

	// abandoned is set by Abandon. The demultiplexer consults it so a
	// response for an operation marked abandoned is dropped rather than
	// forwarded. The dispatcher's AbandonRequest handling does not set it:
	// it removes the target from both indices instead, so a late response
	// finds no index entry at all.
	abandoned bool
}

// Abandon marks the operation as abandoned. It is idempotent.
func (o *Operation) Abandon() {
	o.abandoned = true
}

// IsAbandoned reports whether Abandon has been called for this operation.
func (o *Operation) IsAbandoned() bool {
	return o.abandoned
}

// byClientMsgID orders Operations by (client connection identity, client
// message id), mirroring OpenLDAP operation_client_cmp's assertion that
// only operations belonging to the same connection are ever compared
// against one another within a single index.
func byClientMsgID(a, b *Operation) bool {
	if a.Client != b.Client {
		return a.Client.id < b.Client.id
	}
	return a.ClientMsgID < b.ClientMsgID
}

// byUpstreamMsgID orders Operations by (upstream connection identity,
// upstream message id), the upstream-side analogue of byClientMsgID,
// grounded on operation_upstream_cmp.
func byUpstreamMsgID(a, b *Operation) bool {
	if a.Upstream != b.Upstream {
		return a.Upstream.id < b.Upstream.id
	}
	return a.UpstreamMsgID < b.UpstreamMsgID
}
