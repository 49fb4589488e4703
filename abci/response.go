package abci

import tmabci "github.com/tendermint/tendermint/abci/types"

// Response is an outbound ABCI response. Typed responses produced by the
// handler services are Responses, so converting them back into the generic
// outbound message always succeeds.
type Response interface {
	// Method returns the ABCI method name the response answers.
	Method() string
}

// ConsensusResponse is a response produced by the consensus handler.
type ConsensusResponse interface {
	Response
	isConsensusResponse()
}

// MempoolResponse is a response produced by the mempool handler.
type MempoolResponse interface {
	Response
	isMempoolResponse()
}

// InfoResponse is a response produced by the info handler.
type InfoResponse interface {
	Response
	isInfoResponse()
}

// SnapshotResponse is a response produced by the snapshot handler.
type SnapshotResponse interface {
	Response
	isSnapshotResponse()
}

// ResponseException reports an application failure to the peer. The server
// only emits it when configured to do so before closing a connection.
type ResponseException tmabci.ResponseException

// ResponseEcho returns the echoed message.
type ResponseEcho tmabci.ResponseEcho

// ResponseFlush acknowledges a Flush once every earlier response was sent.
type ResponseFlush tmabci.ResponseFlush

// ResponseInfo reports the application's version and last committed state.
type ResponseInfo tmabci.ResponseInfo

// ResponseSetOption reports the outcome of SetOption.
type ResponseSetOption tmabci.ResponseSetOption

// ResponseQuery carries the value read by a Query, with an optional proof.
type ResponseQuery tmabci.ResponseQuery

// ResponseInitChain may replace the genesis validator set or consensus
// parameters and reports the initial app hash.
type ResponseInitChain tmabci.ResponseInitChain

// ResponseBeginBlock carries the events emitted while opening the block.
type ResponseBeginBlock tmabci.ResponseBeginBlock

// ResponseCheckTx reports whether a transaction may enter the mempool.
type ResponseCheckTx tmabci.ResponseCheckTx

// ResponseDeliverTx reports the result and events of one applied transaction.
type ResponseDeliverTx tmabci.ResponseDeliverTx

// ResponseEndBlock carries validator set and consensus parameter updates.
type ResponseEndBlock tmabci.ResponseEndBlock

// ResponseCommit carries the app hash of the committed state.
type ResponseCommit tmabci.ResponseCommit

// ResponseListSnapshots lists the snapshots the application can serve.
type ResponseListSnapshots tmabci.ResponseListSnapshots

// ResponseOfferSnapshot accepts or rejects a snapshot offer.
type ResponseOfferSnapshot tmabci.ResponseOfferSnapshot

// ResponseLoadSnapshotChunk carries one snapshot chunk; empty when unknown.
type ResponseLoadSnapshotChunk tmabci.ResponseLoadSnapshotChunk

// ResponseApplySnapshotChunk reports the outcome of applying a chunk and may
// ask for chunks to be refetched or senders to be banned.
type ResponseApplySnapshotChunk tmabci.ResponseApplySnapshotChunk

func (*ResponseException) Method() string          { return "exception" }
func (*ResponseFlush) Method() string              { return "flush" }
func (*ResponseEcho) Method() string               { return "echo" }
func (*ResponseInfo) Method() string               { return "info" }
func (*ResponseSetOption) Method() string          { return "set_option" }
func (*ResponseQuery) Method() string              { return "query" }
func (*ResponseInitChain) Method() string          { return "init_chain" }
func (*ResponseBeginBlock) Method() string         { return "begin_block" }
func (*ResponseDeliverTx) Method() string          { return "deliver_tx" }
func (*ResponseEndBlock) Method() string           { return "end_block" }
func (*ResponseCommit) Method() string             { return "commit" }
func (*ResponseCheckTx) Method() string            { return "check_tx" }
func (*ResponseListSnapshots) Method() string      { return "list_snapshots" }
func (*ResponseOfferSnapshot) Method() string      { return "offer_snapshot" }
func (*ResponseLoadSnapshotChunk) Method() string  { return "load_snapshot_chunk" }
func (*ResponseApplySnapshotChunk) Method() string { return "apply_snapshot_chunk" }

func (*ResponseEcho) isInfoResponse()      {}
func (*ResponseInfo) isInfoResponse()      {}
func (*ResponseSetOption) isInfoResponse() {}
func (*ResponseQuery) isInfoResponse()     {}

func (*ResponseInitChain) isConsensusResponse()  {}
func (*ResponseBeginBlock) isConsensusResponse() {}
func (*ResponseDeliverTx) isConsensusResponse()  {}
func (*ResponseEndBlock) isConsensusResponse()   {}
func (*ResponseCommit) isConsensusResponse()     {}

func (*ResponseCheckTx) isMempoolResponse() {}

func (*ResponseListSnapshots) isSnapshotResponse()      {}
func (*ResponseOfferSnapshot) isSnapshotResponse()      {}
func (*ResponseLoadSnapshotChunk) isSnapshotResponse()  {}
func (*ResponseApplySnapshotChunk) isSnapshotResponse() {}

// IsOK reports whether the CheckTx result code signals success.
func (r *ResponseCheckTx) IsOK() bool { return r.Code == CodeTypeOK }

// IsOK reports whether the DeliverTx result code signals success.
func (r *ResponseDeliverTx) IsOK() bool { return r.Code == CodeTypeOK }

// IsOK reports whether the Query result code signals success.
func (r *ResponseQuery) IsOK() bool { return r.Code == CodeTypeOK }
