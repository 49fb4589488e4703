package abci

// ToConsensusRequest narrows a request to the consensus category.
//
// Parameters:
//   - req: The generic request
//
// Returns:
//   - The typed request and true if req belongs to KindConsensus, nil and false otherwise
func ToConsensusRequest(req Request) (ConsensusRequest, bool) {
	r, ok := req.(ConsensusRequest)
	return r, ok
}

// ToMempoolRequest narrows a request to the mempool category.
func ToMempoolRequest(req Request) (MempoolRequest, bool) {
	r, ok := req.(MempoolRequest)
	return r, ok
}

// ToInfoRequest narrows a request to the info category.
func ToInfoRequest(req Request) (InfoRequest, bool) {
	r, ok := req.(InfoRequest)
	return r, ok
}

// ToSnapshotRequest narrows a request to the snapshot category.
func ToSnapshotRequest(req Request) (SnapshotRequest, bool) {
	r, ok := req.(SnapshotRequest)
	return r, ok
}
