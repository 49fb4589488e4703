// Package abci defines the request and response messages exchanged between a
// consensus engine and an ABCI application, and the categories (method kinds)
// used to route requests to the application's handler services.
package abci

// MethodKind classifies a request by the handler category that serves it.
type MethodKind int

const (
	KindFlush     MethodKind = iota // Control request answered by the server itself
	KindConsensus                   // InitChain, BeginBlock, DeliverTx, EndBlock, Commit
	KindMempool                     // CheckTx
	KindInfo                        // Echo, Info, SetOption, Query
	KindSnapshot                    // ListSnapshots, OfferSnapshot, LoadSnapshotChunk, ApplySnapshotChunk
)

// String returns a human-readable name for the method kind.
func (k MethodKind) String() string {
	switch k {
	case KindFlush:
		return "flush"
	case KindConsensus:
		return "consensus"
	case KindMempool:
		return "mempool"
	case KindInfo:
		return "info"
	case KindSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}
