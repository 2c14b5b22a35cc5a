// Package demux implements the proxy's response demultiplexer (spec
// component E): for each PDU read from an upstream, it looks up the
// Operation that originated it, rewrites the message id back to the
// client's own, and forwards the PDU — removing the Operation from both
// indices once a terminal response has gone out.
package demux

import (
	"fmt"
	"log/slog"

	"github.com/majewsky-labs/lloadd/internal/ldaptag"
	"github.com/majewsky-labs/lloadd/internal/ldapwire"
	"github.com/majewsky-labs/lloadd/internal/lbconn"
	"github.com/majewsky-labs/lloadd/internal/metrics"
)

// Demultiplexer runs the §4.E algorithm for responses arriving on an
// upstream connection.
type Demultiplexer struct {
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// New builds a Demultiplexer. logger may be nil, in which case slog's
// default logger is used.
func New(m *metrics.Metrics, logger *slog.Logger) *Demultiplexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Demultiplexer{Metrics: m, Logger: logger}
}

// Forward processes one response PDU read from upstream. A msg whose
// upstream message id has no matching Operation is silently discarded —
// the client abandoned the request, or the connection crossed a
// cancellation boundary — per §4.E.
func (d *Demultiplexer) Forward(upstream *lbconn.Connection, msg *ldapwire.Message) error {
	op, ok := upstream.FindByUpstreamMsgID(msg.MessageID)
	if !ok {
		d.Logger.Debug("discarding response for unknown upstream message id", "upstream_msgid", msg.MessageID)
		return nil
	}

	if op.IsAbandoned() {
		upstream.Remove(op)
		op.Client.Remove(op)
		return nil
	}

	outbound := msg.Rewrite(op.ClientMsgID)
	if err := op.Client.Write(op.ClientMsgID, outbound); err != nil {
		// The client connection may be gone; still retire the Operation so
		// it is not leaked in the upstream index.
		upstream.Remove(op)
		op.Client.Remove(op)
		return fmt.Errorf("demux: writing to client: %w", err)
	}

	if ldaptag.IsTerminal(op.Tag, msg.Tag) {
		upstream.Remove(op)
		op.Client.Remove(op)
		if d.Metrics != nil {
			d.Metrics.OperationsInFlight.Dec()
		}
	}
	return nil
}
