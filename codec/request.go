package codec

import (
	"fmt"

	tmabci "github.com/tendermint/tendermint/abci/types"

	"github.com/cyberinferno/go-abci/abci"
)

// MarshalRequest encodes a request as a Tendermint v0.34 Request message
// (without the length prefix).
//
// Parameters:
//   - req: The request to encode
//
// Returns:
//   - The encoded message, or an error if the request type is not supported
func MarshalRequest(req abci.Request) ([]byte, error) {
	pb := &tmabci.Request{}

	switch r := req.(type) {
	case *abci.RequestEcho:
		pb.Value = &tmabci.Request_Echo{Echo: (*tmabci.RequestEcho)(r)}
	case *abci.RequestFlush:
		pb.Value = &tmabci.Request_Flush{Flush: (*tmabci.RequestFlush)(r)}
	case *abci.RequestInfo:
		pb.Value = &tmabci.Request_Info{Info: (*tmabci.RequestInfo)(r)}
	case *abci.RequestSetOption:
		pb.Value = &tmabci.Request_SetOption{SetOption: (*tmabci.RequestSetOption)(r)}
	case *abci.RequestInitChain:
		pb.Value = &tmabci.Request_InitChain{InitChain: (*tmabci.RequestInitChain)(r)}
	case *abci.RequestQuery:
		pb.Value = &tmabci.Request_Query{Query: (*tmabci.RequestQuery)(r)}
	case *abci.RequestBeginBlock:
		pb.Value = &tmabci.Request_BeginBlock{BeginBlock: (*tmabci.RequestBeginBlock)(r)}
	case *abci.RequestCheckTx:
		pb.Value = &tmabci.Request_CheckTx{CheckTx: (*tmabci.RequestCheckTx)(r)}
	case *abci.RequestDeliverTx:
		pb.Value = &tmabci.Request_DeliverTx{DeliverTx: (*tmabci.RequestDeliverTx)(r)}
	case *abci.RequestEndBlock:
		pb.Value = &tmabci.Request_EndBlock{EndBlock: (*tmabci.RequestEndBlock)(r)}
	case *abci.RequestCommit:
		pb.Value = &tmabci.Request_Commit{Commit: (*tmabci.RequestCommit)(r)}
	case *abci.RequestListSnapshots:
		pb.Value = &tmabci.Request_ListSnapshots{ListSnapshots: (*tmabci.RequestListSnapshots)(r)}
	case *abci.RequestOfferSnapshot:
		pb.Value = &tmabci.Request_OfferSnapshot{OfferSnapshot: (*tmabci.RequestOfferSnapshot)(r)}
	case *abci.RequestLoadSnapshotChunk:
		pb.Value = &tmabci.Request_LoadSnapshotChunk{LoadSnapshotChunk: (*tmabci.RequestLoadSnapshotChunk)(r)}
	case *abci.RequestApplySnapshotChunk:
		pb.Value = &tmabci.Request_ApplySnapshotChunk{ApplySnapshotChunk: (*tmabci.RequestApplySnapshotChunk)(r)}
	default:
		return nil, fmt.Errorf("codec: unsupported request type %T", req)
	}

	return pb.Marshal()
}

// UnmarshalRequest decodes a Request message (without the length prefix).
// Unknown fields are skipped; a message without a known method is malformed.
//
// Parameters:
//   - b: The encoded message
//
// Returns:
//   - The decoded request, or an error wrapping ErrMalformed
func UnmarshalRequest(b []byte) (abci.Request, error) {
	pb := &tmabci.Request{}
	if err := pb.Unmarshal(b); err != nil {
		return nil, fmt.Errorf("%w: request: %v", ErrMalformed, err)
	}

	switch v := pb.Value.(type) {
	case *tmabci.Request_Echo:
		return (*abci.RequestEcho)(orEmpty(v.Echo)), nil
	case *tmabci.Request_Flush:
		return (*abci.RequestFlush)(orEmpty(v.Flush)), nil
	case *tmabci.Request_Info:
		return (*abci.RequestInfo)(orEmpty(v.Info)), nil
	case *tmabci.Request_SetOption:
		return (*abci.RequestSetOption)(orEmpty(v.SetOption)), nil
	case *tmabci.Request_InitChain:
		return (*abci.RequestInitChain)(orEmpty(v.InitChain)), nil
	case *tmabci.Request_Query:
		return (*abci.RequestQuery)(orEmpty(v.Query)), nil
	case *tmabci.Request_BeginBlock:
		return (*abci.RequestBeginBlock)(orEmpty(v.BeginBlock)), nil
	case *tmabci.Request_CheckTx:
		return (*abci.RequestCheckTx)(orEmpty(v.CheckTx)), nil
	case *tmabci.Request_DeliverTx:
		return (*abci.RequestDeliverTx)(orEmpty(v.DeliverTx)), nil
	case *tmabci.Request_EndBlock:
		return (*abci.RequestEndBlock)(orEmpty(v.EndBlock)), nil
	case *tmabci.Request_Commit:
		return (*abci.RequestCommit)(orEmpty(v.Commit)), nil
	case *tmabci.Request_ListSnapshots:
		return (*abci.RequestListSnapshots)(orEmpty(v.ListSnapshots)), nil
	case *tmabci.Request_OfferSnapshot:
		return (*abci.RequestOfferSnapshot)(orEmpty(v.OfferSnapshot)), nil
	case *tmabci.Request_LoadSnapshotChunk:
		return (*abci.RequestLoadSnapshotChunk)(orEmpty(v.LoadSnapshotChunk)), nil
	case *tmabci.Request_ApplySnapshotChunk:
		return (*abci.RequestApplySnapshotChunk)(orEmpty(v.ApplySnapshotChunk)), nil
	default:
		return nil, fmt.Errorf("%w: request carries no known method", ErrMalformed)
	}
}

// orEmpty returns p, or a new zero message when p is nil.
func orEmpty[T any](p *T) *T {
	if p == nil {
		return new(T)
	}
	return p
}
