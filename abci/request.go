package abci

import tmabci "github.com/tendermint/tendermint/abci/types"

// Request is a decoded inbound ABCI request. Every request belongs to exactly
// one MethodKind, which determines the handler service that receives it.
type Request interface {
	// Kind returns the handler category of the request.
	Kind() MethodKind

	// Method returns the ABCI method name (e.g. "deliver_tx").
	Method() string
}

// ConsensusRequest is a request served by the consensus connection handler.
type ConsensusRequest interface {
	Request
	isConsensusRequest()
}

// MempoolRequest is a request served by the mempool connection handler.
type MempoolRequest interface {
	Request
	isMempoolRequest()
}

// InfoRequest is a request served by the info connection handler.
type InfoRequest interface {
	Request
	isInfoRequest()
}

// SnapshotRequest is a request served by the state sync snapshot handler.
type SnapshotRequest interface {
	Request
	isSnapshotRequest()
}

// RequestEcho asks the application to echo Message back.
type RequestEcho tmabci.RequestEcho

// RequestFlush asks the server to send every outstanding response. It is
// answered by the server, never by a handler.
type RequestFlush tmabci.RequestFlush

// RequestInfo asks for the application's last committed height and app hash.
type RequestInfo tmabci.RequestInfo

// RequestSetOption sets a non-consensus application option.
type RequestSetOption tmabci.RequestSetOption

// RequestQuery reads application state at Height (0 means latest).
type RequestQuery tmabci.RequestQuery

// RequestInitChain is sent once at genesis with the initial validator set,
// consensus parameters and application state.
type RequestInitChain tmabci.RequestInitChain

// RequestBeginBlock opens a block. It carries the block header, the last
// commit's votes and evidence of misbehaving validators.
type RequestBeginBlock tmabci.RequestBeginBlock

// RequestDeliverTx applies one transaction of the current block.
type RequestDeliverTx tmabci.RequestDeliverTx

// RequestEndBlock closes the block at Height. Its response may update the
// validator set.
type RequestEndBlock tmabci.RequestEndBlock

// RequestCommit persists the block's state changes.
type RequestCommit tmabci.RequestCommit

// RequestCheckTx validates a transaction before it enters the mempool.
type RequestCheckTx tmabci.RequestCheckTx

// RequestListSnapshots asks for the snapshots the application can serve.
type RequestListSnapshots tmabci.RequestListSnapshots

// RequestOfferSnapshot offers a snapshot discovered from peers for restore.
type RequestOfferSnapshot tmabci.RequestOfferSnapshot

// RequestLoadSnapshotChunk asks for one chunk of a local snapshot.
type RequestLoadSnapshotChunk tmabci.RequestLoadSnapshotChunk

// RequestApplySnapshotChunk delivers one chunk of an accepted snapshot offer.
type RequestApplySnapshotChunk tmabci.RequestApplySnapshotChunk

func (*RequestFlush) Kind() MethodKind              { return KindFlush }
func (*RequestEcho) Kind() MethodKind               { return KindInfo }
func (*RequestInfo) Kind() MethodKind               { return KindInfo }
func (*RequestSetOption) Kind() MethodKind          { return KindInfo }
func (*RequestQuery) Kind() MethodKind              { return KindInfo }
func (*RequestInitChain) Kind() MethodKind          { return KindConsensus }
func (*RequestBeginBlock) Kind() MethodKind         { return KindConsensus }
func (*RequestDeliverTx) Kind() MethodKind          { return KindConsensus }
func (*RequestEndBlock) Kind() MethodKind           { return KindConsensus }
func (*RequestCommit) Kind() MethodKind             { return KindConsensus }
func (*RequestCheckTx) Kind() MethodKind            { return KindMempool }
func (*RequestListSnapshots) Kind() MethodKind      { return KindSnapshot }
func (*RequestOfferSnapshot) Kind() MethodKind      { return KindSnapshot }
func (*RequestLoadSnapshotChunk) Kind() MethodKind  { return KindSnapshot }
func (*RequestApplySnapshotChunk) Kind() MethodKind { return KindSnapshot }

func (*RequestFlush) Method() string              { return "flush" }
func (*RequestEcho) Method() string               { return "echo" }
func (*RequestInfo) Method() string               { return "info" }
func (*RequestSetOption) Method() string          { return "set_option" }
func (*RequestQuery) Method() string              { return "query" }
func (*RequestInitChain) Method() string          { return "init_chain" }
func (*RequestBeginBlock) Method() string         { return "begin_block" }
func (*RequestDeliverTx) Method() string          { return "deliver_tx" }
func (*RequestEndBlock) Method() string           { return "end_block" }
func (*RequestCommit) Method() string             { return "commit" }
func (*RequestCheckTx) Method() string            { return "check_tx" }
func (*RequestListSnapshots) Method() string      { return "list_snapshots" }
func (*RequestOfferSnapshot) Method() string      { return "offer_snapshot" }
func (*RequestLoadSnapshotChunk) Method() string  { return "load_snapshot_chunk" }
func (*RequestApplySnapshotChunk) Method() string { return "apply_snapshot_chunk" }

func (*RequestEcho) isInfoRequest()      {}
func (*RequestInfo) isInfoRequest()      {}
func (*RequestSetOption) isInfoRequest() {}
func (*RequestQuery) isInfoRequest()     {}

func (*RequestInitChain) isConsensusRequest()  {}
func (*RequestBeginBlock) isConsensusRequest() {}
func (*RequestDeliverTx) isConsensusRequest()  {}
func (*RequestEndBlock) isConsensusRequest()   {}
func (*RequestCommit) isConsensusRequest()     {}

func (*RequestCheckTx) isMempoolRequest() {}

func (*RequestListSnapshots) isSnapshotRequest()      {}
func (*RequestOfferSnapshot) isSnapshotRequest()      {}
func (*RequestLoadSnapshotChunk) isSnapshotRequest()  {}
func (*RequestApplySnapshotChunk) isSnapshotRequest() {}
