package codec

import (
	"fmt"

	tmabci "github.com/tendermint/tendermint/abci/types"

	"github.com/cyberinferno/go-abci/abci"
)

// MarshalResponse encodes a response as a Tendermint v0.34 Response message
// (without the length prefix).
//
// Parameters:
//   - resp: The response to encode
//
// Returns:
//   - The encoded message, or an error if the response type is not supported
func MarshalResponse(resp abci.Response) ([]byte, error) {
	pb := &tmabci.Response{}

	switch r := resp.(type) {
	case *abci.ResponseException:
		pb.Value = &tmabci.Response_Exception{Exception: (*tmabci.ResponseException)(r)}
	case *abci.ResponseEcho:
		pb.Value = &tmabci.Response_Echo{Echo: (*tmabci.ResponseEcho)(r)}
	case *abci.ResponseFlush:
		pb.Value = &tmabci.Response_Flush{Flush: (*tmabci.ResponseFlush)(r)}
	case *abci.ResponseInfo:
		pb.Value = &tmabci.Response_Info{Info: (*tmabci.ResponseInfo)(r)}
	case *abci.ResponseSetOption:
		pb.Value = &tmabci.Response_SetOption{SetOption: (*tmabci.ResponseSetOption)(r)}
	case *abci.ResponseInitChain:
		pb.Value = &tmabci.Response_InitChain{InitChain: (*tmabci.ResponseInitChain)(r)}
	case *abci.ResponseQuery:
		pb.Value = &tmabci.Response_Query{Query: (*tmabci.ResponseQuery)(r)}
	case *abci.ResponseBeginBlock:
		pb.Value = &tmabci.Response_BeginBlock{BeginBlock: (*tmabci.ResponseBeginBlock)(r)}
	case *abci.ResponseCheckTx:
		pb.Value = &tmabci.Response_CheckTx{CheckTx: (*tmabci.ResponseCheckTx)(r)}
	case *abci.ResponseDeliverTx:
		pb.Value = &tmabci.Response_DeliverTx{DeliverTx: (*tmabci.ResponseDeliverTx)(r)}
	case *abci.ResponseEndBlock:
		pb.Value = &tmabci.Response_EndBlock{EndBlock: (*tmabci.ResponseEndBlock)(r)}
	case *abci.ResponseCommit:
		pb.Value = &tmabci.Response_Commit{Commit: (*tmabci.ResponseCommit)(r)}
	case *abci.ResponseListSnapshots:
		pb.Value = &tmabci.Response_ListSnapshots{ListSnapshots: (*tmabci.ResponseListSnapshots)(r)}
	case *abci.ResponseOfferSnapshot:
		pb.Value = &tmabci.Response_OfferSnapshot{OfferSnapshot: (*tmabci.ResponseOfferSnapshot)(r)}
	case *abci.ResponseLoadSnapshotChunk:
		pb.Value = &tmabci.Response_LoadSnapshotChunk{LoadSnapshotChunk: (*tmabci.ResponseLoadSnapshotChunk)(r)}
	case *abci.ResponseApplySnapshotChunk:
		pb.Value = &tmabci.Response_ApplySnapshotChunk{ApplySnapshotChunk: (*tmabci.ResponseApplySnapshotChunk)(r)}
	default:
		return nil, fmt.Errorf("codec: unsupported response type %T", resp)
	}

	return pb.Marshal()
}

// UnmarshalResponse decodes a Response message (without the length prefix).
//
// Parameters:
//   - b: The encoded message
//
// Returns:
//   - The decoded response, or an error wrapping ErrMalformed
func UnmarshalResponse(b []byte) (abci.Response, error) {
	pb := &tmabci.Response{}
	if err := pb.Unmarshal(b); err != nil {
		return nil, fmt.Errorf("%w: response: %v", ErrMalformed, err)
	}

	switch v := pb.Value.(type) {
	case *tmabci.Response_Exception:
		return (*abci.ResponseException)(orEmpty(v.Exception)), nil
	case *tmabci.Response_Echo:
		return (*abci.ResponseEcho)(orEmpty(v.Echo)), nil
	case *tmabci.Response_Flush:
		return (*abci.ResponseFlush)(orEmpty(v.Flush)), nil
	case *tmabci.Response_Info:
		return (*abci.ResponseInfo)(orEmpty(v.Info)), nil
	case *tmabci.Response_SetOption:
		return (*abci.ResponseSetOption)(orEmpty(v.SetOption)), nil
	case *tmabci.Response_InitChain:
		return (*abci.ResponseInitChain)(orEmpty(v.InitChain)), nil
	case *tmabci.Response_Query:
		return (*abci.ResponseQuery)(orEmpty(v.Query)), nil
	case *tmabci.Response_BeginBlock:
		return (*abci.ResponseBeginBlock)(orEmpty(v.BeginBlock)), nil
	case *tmabci.Response_CheckTx:
		return (*abci.ResponseCheckTx)(orEmpty(v.CheckTx)), nil
	case *tmabci.Response_DeliverTx:
		return (*abci.ResponseDeliverTx)(orEmpty(v.DeliverTx)), nil
	case *tmabci.Response_EndBlock:
		return (*abci.ResponseEndBlock)(orEmpty(v.EndBlock)), nil
	case *tmabci.Response_Commit:
		return (*abci.ResponseCommit)(orEmpty(v.Commit)), nil
	case *tmabci.Response_ListSnapshots:
		return (*abci.ResponseListSnapshots)(orEmpty(v.ListSnapshots)), nil
	case *tmabci.Response_OfferSnapshot:
		return (*abci.ResponseOfferSnapshot)(orEmpty(v.OfferSnapshot)), nil
	case *tmabci.Response_LoadSnapshotChunk:
		return (*abci.ResponseLoadSnapshotChunk)(orEmpty(v.LoadSnapshotChunk)), nil
	case *tmabci.Response_ApplySnapshotChunk:
		return (*abci.ResponseApplySnapshotChunk)(orEmpty(v.ApplySnapshotChunk)), nil
	default:
		return nil, fmt.Errorf("%w: response carries no known method", ErrMalformed)
	}
}
