package transaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sirosfoundation/go-ebics/pkg/codec"
	"github.com/sirosfoundation/go-ebics/pkg/compression"
	"github.com/sirosfoundation/go-ebics/pkg/keyring"
	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/returncode"
	"github.com/sirosfoundation/go-ebics/pkg/subscriber"
	"github.com/sirosfoundation/go-ebics/pkg/transport"
)

// State represents the progress of the transaction run by an Engine
type State int

const (
	StateInit          State = iota // No request sent yet
	StateTransferring               // Segments are being exchanged
	StateAcknowledging              // Download receipt is being sent
	StateDone                       // Bank confirmed the transaction
	StateFailed                     // Transaction aborted with an error
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateTransferring:
		return "transferring"
	case StateAcknowledging:
		return "acknowledging"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrEngineUsed is returned when a second transaction is started on an engine
	ErrEngineUsed = errors.New("transaction: engine already ran a transaction")
	// ErrEmptyPayload is returned for uploads without order data
	ErrEmptyPayload = errors.New("transaction: upload payload is empty")
)

// Engine runs exactly one download or upload transaction
type Engine struct {
	ring            *keyring.KeyRing
	subscriber      subscriber.Subscriber
	transport       transport.Transport
	builder         *message.Builder
	parser          *message.Parser
	compressor      *compression.Compressor
	logger          *slog.Logger
	maxSegmentSize  int
	requireVerified bool
	builderOpts     []message.Option

	mu    sync.Mutex
	state State
	used  bool
}

// Option represents a functional option for Engine
type Option func(*Engine)

// WithLogger sets the logger of the engine
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMaxSegmentSize bounds the size of upload segments
func WithMaxSegmentSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSegmentSize = n
		}
	}
}

// WithVerifiedBankKeys refuses to run until the bank keys were verified
// against the initialization letter
func WithVerifiedBankKeys(required bool) Option {
	return func(e *Engine) {
		e.requireVerified = required
	}
}

// WithBuilderOptions passes options to the request builder
func WithBuilderOptions(opts ...message.Option) Option {
	return func(e *Engine) {
		e.builderOpts = append(e.builderOpts, opts...)
	}
}

// NewEngine creates an engine for one transaction
func NewEngine(ring *keyring.KeyRing, sub subscriber.Subscriber, t transport.Transport, opts ...Option) *Engine {
	e := &Engine{
		ring:           ring,
		subscriber:     sub,
		transport:      t,
		compressor:     compression.NewCompressor(),
		logger:         slog.Default(),
		maxSegmentSize: codec.DefaultMaxSegmentSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.builder = message.NewBuilder(ring, sub, e.builderOpts...)
	e.parser = message.NewParser(ring)
	return e
}

// State returns the current state of the transaction
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.used {
		return ErrEngineUsed
	}
	e.used = true
	return nil
}

// finish records the outcome of the transaction
func (e *Engine) finish(err error) {
	if err != nil {
		e.setState(StateFailed)
		return
	}
	e.setState(StateDone)
}

// prepare checks that o can be run as a transaction of direction d
func (e *Engine) prepare(o order.Order, d order.Direction) error {
	if err := e.ring.GuardTransaction(e.requireVerified); err != nil {
		return err
	}
	if err := o.Validate(); err != nil {
		return returncode.Wrap(returncode.KindProtocol, err, "invalid order")
	}
	spec, err := order.Lookup(e.ring.Version(), o.Type)
	if err != nil {
		return err
	}
	if spec.Direction != d {
		return returncode.New(returncode.KindProtocol, "order type %s is not a %s order", spec.Type, d)
	}
	return nil
}

// exchange builds, sends and parses one request. Transport errors are
// returned unmodified.
func (e *Engine) exchange(ctx context.Context, req message.Request) (*message.Response, error) {
	data, err := e.builder.Build(req)
	if err != nil {
		return nil, err
	}
	raw, err := e.transport.Send(ctx, data)
	if err != nil {
		return nil, err
	}
	resp, err := e.parser.Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		if returncode.IsTransactionDiscarded(resp.TechnicalCode) {
			e.logger.Warn("bank discarded the transaction",
				"transaction_id", req.TransactionID, "return_code", resp.TechnicalCode)
		}
		return resp, err
	}
	return resp, nil
}

// checkTransaction verifies a response belongs to the running transaction
func checkTransaction(resp *message.Response, id string) error {
	if resp.TransactionID != id {
		return returncode.New(returncode.KindProtocol,
			"transaction ID mismatch: expected %s, got %q", id, resp.TransactionID)
	}
	return nil
}
