// Package dispatch implements the proxy's operation dispatcher (spec
// component D): turning one decoded client request into an Operation,
// selecting an upstream, assigning it a fresh upstream message id, and
// handing the re-encoded PDU to the upstream writer. It also provides
// the bounded worker pool each client reader uses to run dispatch
// concurrently with other connections' requests, grounded on
// operation.c's operation_process running under slapd's thread pool.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/semaphore"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/google/uuid"

	"github.com/majewsky-labs/lloadd/internal/backend"
	"github.com/majewsky-labs/lloadd/internal/ldaperr"
	"github.com/majewsky-labs/lloadd/internal/ldaptag"
	"github.com/majewsky-labs/lloadd/internal/ldapwire"
	"github.com/majewsky-labs/lloadd/internal/lbconn"
	"github.com/majewsky-labs/lloadd/internal/metrics"
)

// Dispatcher runs the §4.D algorithm for requests arriving on client
// connections.
type Dispatcher struct {
	Selector backend.Selector
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// New builds a Dispatcher. logger may be nil, in which case slog's
// default logger is used.
func New(selector backend.Selector, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{Selector: selector, Metrics: m, Logger: logger}
}

// Dispatch runs steps 1-7 of §4.D against one decoded request read from
// client. Abandon and Unbind are forwarded but never retain an upstream
// index entry, since neither expects a response.
func (d *Dispatcher) Dispatch(client *lbconn.Connection, msg *ldapwire.Message) error {
	op := &lbconn.Operation{Client: client, ClientMsgID: msg.MessageID, Tag: msg.Tag, TraceID: uuid.NewString()}

	if err := client.Insert(op); err != nil {
		if d.Metrics != nil && errors.Is(err, ldaperr.ErrDuplicateMsgID) {
			d.Metrics.DuplicateMsgID.Inc()
		}
		return fmt.Errorf("dispatch: duplicate client message id %d: %w", msg.MessageID, err)
	}

	if msg.Tag == ldaptag.AbandonRequest {
		return d.dispatchAbandon(client, op, msg)
	}

	resp, expectsResponse := ldaptag.ResponseFor(msg.Tag)
	_ = resp

	upstream, err := d.Selector.Select()
	if err != nil {
		client.Remove(op)
		if d.Metrics != nil {
			d.Metrics.BackendSelectFailed.Inc()
		}
		return ldaperr.Wrap(ldaperr.Unavailable, err, "no upstream connection available for %s", ldaptag.Name(msg.Tag))
	}

	upstreamMsgID, err := upstream.Reserve(op)
	if err != nil {
		client.Remove(op)
		return fmt.Errorf("dispatch: reserving upstream message id: %w", err)
	}

	outbound := msg.Rewrite(upstreamMsgID)
	if err := upstream.Write(upstreamMsgID, outbound); err != nil {
		upstream.Remove(op)
		client.Remove(op)
		return fmt.Errorf("dispatch: writing to upstream: %w", err)
	}

	if !expectsResponse {
		// Unbind: forwarded, but no response will ever arrive to trigger
		// the demultiplexer's index cleanup, so unwind both sides now.
		upstream.Remove(op)
		client.Remove(op)
		return nil
	}

	if d.Metrics != nil {
		d.Metrics.OperationsForwarded.WithLabelValues(ldaptag.Name(msg.Tag)).Inc()
		d.Metrics.OperationsInFlight.Inc()
	}
	d.Logger.Debug("forwarded operation", "trace_id", op.TraceID, "tag", ldaptag.Name(msg.Tag), "client_msgid", msg.MessageID, "upstream_msgid", upstreamMsgID)
	return nil
}

// dispatchAbandon implements the Abandon tie-break from §4.D: the
// Abandon request body names another in-flight operation's client
// message id. That target's upstream index entry is removed and an
// Abandon carrying the target's upstream message id is forwarded; the
// Abandon operation itself is never indexed on the upstream side.
func (d *Dispatcher) dispatchAbandon(client *lbconn.Connection, op *lbconn.Operation, msg *ldapwire.Message) error {
	defer client.Remove(op)

	targetID, err := abandonTargetMsgID(msg.Body)
	if err != nil {
		return fmt.Errorf("dispatch: decoding abandon target: %w", err)
	}

	target, ok := client.FindByClientMsgID(targetID)
	if !ok {
		// Nothing in flight under that id; RFC 4511 explicitly permits
		// silently ignoring an Abandon naming an unknown or already
		// completed operation.
		d.Logger.Debug("abandon target not found", "target_msgid", targetID)
		return nil
	}
	client.Remove(target)

	upstream := target.Upstream
	if upstream == nil {
		// Target never made it past backend selection; nothing to forward.
		return nil
	}
	upstreamTargetMsgID := target.UpstreamMsgID
	upstream.Remove(target)

	abandonBody := ber.NewInteger(ber.ClassApplication, ber.TypePrimitive, ber.Tag(ldaptag.AbandonRequest), upstreamTargetMsgID, "AbandonRequest")
	forwarded := &ldapwire.Message{Tag: ldaptag.AbandonRequest, Body: abandonBody}

	upstreamMsgID, err := upstream.Reserve(op)
	if err != nil {
		return fmt.Errorf("dispatch: reserving upstream message id for abandon: %w", err)
	}
	defer upstream.Remove(op)

	if err := upstream.Write(upstreamMsgID, forwarded); err != nil {
		return fmt.Errorf("dispatch: writing abandon to upstream: %w", err)
	}
	return nil
}

// abandonTargetMsgID extracts the MessageID operand of an
// AbandonRequest, which the wire protocol encodes as a primitive
// INTEGER directly in the protocolOp, not a SEQUENCE.
func abandonTargetMsgID(body *ber.Packet) (int64, error) {
	switch v := body.Value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case nil:
		// A non-universal packet read off the wire carries its content
		// only in Data; decode the INTEGER from those bytes.
		if body.Data == nil || body.Data.Len() == 0 {
			return 0, fmt.Errorf("abandon body is empty")
		}
		return ber.ParseInt64(body.Data.Bytes())
	default:
		return 0, fmt.Errorf("abandon body value is not an integer (%T)", body.Value)
	}
}

// WorkerPool bounds the number of dispatches running concurrently,
// standing in for the external thread-pool hook the core assumes per
// spec §5. It is a thin wrapper over golang.org/x/sync/semaphore so
// callers get back-pressure (Submit blocks once the pool is saturated)
// rather than an unbounded goroutine-per-request fan-out.
type WorkerPool struct {
	sem *semaphore.Weighted
}

// NewWorkerPool creates a WorkerPool that runs at most maxConcurrent
// jobs at once.
func NewWorkerPool(maxConcurrent int64) *WorkerPool {
	return &WorkerPool{sem: semaphore.NewWeighted(maxConcurrent)}
}

// Submit blocks until a slot is free (or ctx is cancelled), then runs fn
// in a new goroutine and returns immediately — matching §6's
// "Worker-dispatch hook: a function taking an Operation that returns
// promptly after scheduling its processing."
func (p *WorkerPool) Submit(ctx context.Context, fn func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("dispatch: acquiring worker slot: %w", err)
	}
	go func() {
		defer p.sem.Release(1)
		fn()
	}()
	return nil
}

// SubmitBackground is Submit with context.Background(), for callers
// (such as a connection's read loop) that have no per-request deadline
// of their own and are content to block until a slot frees up.
func (p *WorkerPool) SubmitBackground(fn func()) error {
	return p.Submit(context.Background(), fn)
}
