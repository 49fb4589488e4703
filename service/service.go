// Package service defines the contract between the ABCI server and the
// application handlers that serve each request category, together with
// adapters for building handlers from plain functions and for bounding
// their concurrency.
package service

import (
	"context"

	"github.com/cyberinferno/go-abci/abci"
)

// Service is an asynchronous request handler with its own admission signal.
// The server awaits Ready immediately before every Call and runs each Call on
// its own goroutine, so a Service that keeps reporting ready receives
// overlapping calls. Implementations are shared by all connections and must
// be safe for concurrent use.
type Service[Req any, Resp any] interface {
	// Ready blocks until the service can accept a new call.
	//
	// Parameters:
	//   - ctx: Context for cancellation of the wait
	//
	// Returns:
	//   - nil when a call may be issued, or an error if the service failed
	Ready(ctx context.Context) error

	// Call handles one request. It may block until the response is available.
	//
	// Parameters:
	//   - ctx: Context cancelled when the issuing connection closes
	//   - req: The typed request
	//
	// Returns:
	//   - The typed response, or an error if handling failed
	Call(ctx context.Context, req Req) (Resp, error)
}

// ConsensusService handles InitChain, BeginBlock, DeliverTx, EndBlock and Commit.
type ConsensusService = Service[abci.ConsensusRequest, abci.ConsensusResponse]

// MempoolService handles CheckTx.
type MempoolService = Service[abci.MempoolRequest, abci.MempoolResponse]

// InfoService handles Echo, Info, SetOption and Query.
type InfoService = Service[abci.InfoRequest, abci.InfoResponse]

// SnapshotService handles the state sync snapshot methods.
type SnapshotService = Service[abci.SnapshotRequest, abci.SnapshotResponse]

// Func adapts a plain function into a Service that is always ready.
type Func[Req any, Resp any] func(ctx context.Context, req Req) (Resp, error)

// Ready implements Service. It only fails once ctx is done.
func (f Func[Req, Resp]) Ready(ctx context.Context) error {
	return ctx.Err()
}

// Call implements Service.
func (f Func[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	return f(ctx, req)
}
