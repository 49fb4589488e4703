package abci

import (
	tmabci "github.com/tendermint/tendermint/abci/types"
	tmcrypto "github.com/tendermint/tendermint/proto/tendermint/crypto"
	tmproto "github.com/tendermint/tendermint/proto/tendermint/types"
)

// CodeTypeOK is the result code of a successful CheckTx, DeliverTx, Query or SetOption.
const CodeTypeOK = tmabci.CodeTypeOK

// CheckTxType distinguishes first-time checks from mempool rechecks.
type CheckTxType = tmabci.CheckTxType

const (
	CheckTxTypeNew     = tmabci.CheckTxType_New
	CheckTxTypeRecheck = tmabci.CheckTxType_Recheck
)

// Nested message types shared with the Tendermint v0.34 schema.
type (
	// Snapshot describes an application state snapshot offered to syncing nodes.
	Snapshot = tmabci.Snapshot
	// Event is emitted by BeginBlock, DeliverTx, CheckTx and EndBlock for indexing.
	Event          = tmabci.Event
	EventAttribute = tmabci.EventAttribute
	// ValidatorUpdate changes the voting power of one validator; power 0 removes it.
	ValidatorUpdate = tmabci.ValidatorUpdate
	ConsensusParams = tmabci.ConsensusParams
	LastCommitInfo  = tmabci.LastCommitInfo
	VoteInfo        = tmabci.VoteInfo
	Evidence        = tmabci.Evidence
	// Header is the block header delivered with BeginBlock.
	Header    = tmproto.Header
	PublicKey = tmcrypto.PublicKey
)

// OfferSnapshotResult is the application's verdict on an offered snapshot.
type OfferSnapshotResult = tmabci.ResponseOfferSnapshot_Result

const (
	OfferSnapshotUnknown      = tmabci.ResponseOfferSnapshot_UNKNOWN
	OfferSnapshotAccept       = tmabci.ResponseOfferSnapshot_ACCEPT
	OfferSnapshotAbort        = tmabci.ResponseOfferSnapshot_ABORT
	OfferSnapshotReject       = tmabci.ResponseOfferSnapshot_REJECT
	OfferSnapshotRejectFormat = tmabci.ResponseOfferSnapshot_REJECT_FORMAT
	OfferSnapshotRejectSender = tmabci.ResponseOfferSnapshot_REJECT_SENDER
)

// ApplySnapshotChunkResult is the application's verdict on an applied chunk.
type ApplySnapshotChunkResult = tmabci.ResponseApplySnapshotChunk_Result

const (
	ApplySnapshotChunkUnknown        = tmabci.ResponseApplySnapshotChunk_UNKNOWN
	ApplySnapshotChunkAccept         = tmabci.ResponseApplySnapshotChunk_ACCEPT
	ApplySnapshotChunkAbort          = tmabci.ResponseApplySnapshotChunk_ABORT
	ApplySnapshotChunkRetry          = tmabci.ResponseApplySnapshotChunk_RETRY
	ApplySnapshotChunkRetrySnapshot  = tmabci.ResponseApplySnapshotChunk_RETRY_SNAPSHOT
	ApplySnapshotChunkRejectSnapshot = tmabci.ResponseApplySnapshotChunk_REJECT_SNAPSHOT
)

// Ed25519ValidatorUpdate builds a validator update for an ed25519 public key.
//
// Parameters:
//   - pubKey: The raw 32-byte ed25519 public key
//   - power: The new voting power; 0 removes the validator
//
// Returns:
//   - The ValidatorUpdate
func Ed25519ValidatorUpdate(pubKey []byte, power int64) ValidatorUpdate {
	return ValidatorUpdate{
		PubKey: PublicKey{Sum: &tmcrypto.PublicKey_Ed25519{Ed25519: pubKey}},
		Power:  power,
	}
}
