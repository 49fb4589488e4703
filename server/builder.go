package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cyberinferno/go-abci/codec"
	"github.com/cyberinferno/go-abci/logger"
	"github.com/cyberinferno/go-abci/service"
)

// ErrIncompleteBuilder is returned by FinishOrError when a handler slot is unset.
var ErrIncompleteBuilder = errors.New("server: incomplete builder")

// Options tunes server behavior. The zero value is usable.
type Options struct {
	// Name identifies the server in log entries.
	Name string
	// MaxMessageSize bounds a single inbound or outbound message; 0 selects
	// codec.DefaultMaxMessageSize.
	MaxMessageSize int
	// ExceptionOnError makes a session write a ResponseException describing
	// a handler failure before it closes the connection. When false the
	// connection is closed without a response.
	ExceptionOnError bool
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "abci"
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = codec.DefaultMaxMessageSize
	}
	return o
}

// Builder collects the four handler services a Server needs. Setting a slot
// again overwrites the previous value.
type Builder struct {
	consensus service.ConsensusService
	mempool   service.MempoolService
	info      service.InfoService
	snapshot  service.SnapshotService
	logger    logger.Logger
	opts      Options
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Consensus sets the service that handles InitChain, BeginBlock, DeliverTx, EndBlock and Commit.
//
// Parameters:
//   - svc: The consensus handler, shared by every connection
//
// Returns:
//   - The Builder, for chaining
func (b *Builder) Consensus(svc service.ConsensusService) *Builder {
	b.consensus = svc
	return b
}

// Mempool sets the service that handles CheckTx.
//
// Parameters:
//   - svc: The mempool handler, shared by every connection
//
// Returns:
//   - The Builder, for chaining
func (b *Builder) Mempool(svc service.MempoolService) *Builder {
	b.mempool = svc
	return b
}

// Info sets the service that handles Echo, Info, SetOption and Query.
//
// Parameters:
//   - svc: The info handler, shared by every connection
//
// Returns:
//   - The Builder, for chaining
func (b *Builder) Info(svc service.InfoService) *Builder {
	b.info = svc
	return b
}

// Snapshot sets the service that handles ListSnapshots, OfferSnapshot, LoadSnapshotChunk and ApplySnapshotChunk.
//
// Parameters:
//   - svc: The snapshot handler, shared by every connection
//
// Returns:
//   - The Builder, for chaining
func (b *Builder) Snapshot(svc service.SnapshotService) *Builder {
	b.snapshot = svc
	return b
}

// Logger sets the logger used by the server and its sessions. Without it the
// server logs nothing.
func (b *Builder) Logger(l logger.Logger) *Builder {
	b.logger = l
	return b
}

// Options sets the server options.
func (b *Builder) Options(opts Options) *Builder {
	b.opts = opts
	return b
}

// Finish assembles the Server.
//
// Returns:
//   - The Server, or nil if any of the four handler services is missing
func (b *Builder) Finish() *Server {
	if len(b.missing()) > 0 {
		return nil
	}

	l := b.logger
	if l == nil {
		l = logger.NewNopLogger()
	}

	return newServer(handlers{
		consensus: b.consensus,
		mempool:   b.mempool,
		info:      b.info,
		snapshot:  b.snapshot,
	}, b.opts.withDefaults(), l)
}

// FinishOrError is Finish for startup code that wants to report which handler
// services are missing.
//
// Returns:
//   - The Server, or an error wrapping ErrIncompleteBuilder naming the unset slots
func (b *Builder) FinishOrError() (*Server, error) {
	if missing := b.missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrIncompleteBuilder, strings.Join(missing, ", "))
	}

	return b.Finish(), nil
}

func (b *Builder) missing() []string {
	var missing []string
	if b.consensus == nil {
		missing = append(missing, "consensus")
	}
	if b.mempool == nil {
		missing = append(missing, "mempool")
	}
	if b.info == nil {
		missing = append(missing, "info")
	}
	if b.snapshot == nil {
		missing = append(missing, "snapshot")
	}
	return missing
}
