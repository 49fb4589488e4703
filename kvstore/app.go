// Package kvstore is an example ABCI application: an in-memory key/value
// store that serves all four handler categories.
package kvstore

import (
	"context"
	"encoding/hex"
	"fmt"
	"maps"
	"strconv"
	"sync"

	"github.com/cyberinferno/go-abci/abci"
	"github.com/cyberinferno/go-abci/cacher"
	"github.com/cyberinferno/go-abci/logger"
	"github.com/cyberinferno/go-abci/service"
)

const (
	// CodeTypeEncodingError rejects an empty or unparsable transaction.
	CodeTypeEncodingError uint32 = 1

	// AppVersion is reported by Info.
	AppVersion uint64 = 1

	DefaultChunkSize = 64 * 1024
)

// Config tunes the application.
type Config struct {
	// SnapshotInterval takes a snapshot every N committed heights; 0 disables snapshots.
	SnapshotInterval int64
	// SnapshotKeep is how many recent snapshots are retained.
	SnapshotKeep int
	// ChunkSize is the snapshot chunk size in bytes; 0 selects DefaultChunkSize.
	ChunkSize int
}

// QueryResult is the cached outcome of a key lookup.
type QueryResult struct {
	Value []byte `json:"value"`
	Found bool   `json:"found"`
}

// App is the key/value application. It is safe for concurrent use.
type App struct {
	cfg    Config
	cache  cacher.Cacher[QueryResult]
	logger logger.Logger

	mu        sync.RWMutex
	working   map[string][]byte
	committed map[string][]byte
	height    int64
	appHash   []byte
	snapshots *snapshotStore
	restore   *restore

	// valUpdates collects the validator changes of the current block.
	valUpdates []abci.ValidatorUpdate
}

// New creates an empty application.
//
// Parameters:
//   - cfg: Snapshot settings
//   - cache: Cache for query results; entries are keyed by height
//   - l: Logger for commits and snapshot activity
//
// Returns:
//   - A new *App at height 0
func New(cfg Config, cache cacher.Cacher[QueryResult], l logger.Logger) *App {
	if cfg.SnapshotKeep < 1 {
		cfg.SnapshotKeep = 1
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}

	return &App{
		cfg:       cfg,
		cache:     cache,
		logger:    l.With(logger.Field{Key: "component", Value: "kvstore"}),
		working:   make(map[string][]byte),
		committed: make(map[string][]byte),
		appHash:   hashState(nil),
		snapshots: newSnapshotStore(cfg.SnapshotKeep),
	}
}

// ConsensusService returns the handler for consensus requests. It admits one
// call at a time, so block requests are applied in arrival order.
func (a *App) ConsensusService() service.ConsensusService {
	return service.ConcurrencyLimit[abci.ConsensusRequest, abci.ConsensusResponse](service.Func[abci.ConsensusRequest, abci.ConsensusResponse](a.Consensus), 1)
}

// MempoolService returns the handler for mempool requests.
func (a *App) MempoolService() service.MempoolService {
	return service.Func[abci.MempoolRequest, abci.MempoolResponse](a.Mempool)
}

// InfoService returns the handler for info requests.
func (a *App) InfoService() service.InfoService {
	return service.Func[abci.InfoRequest, abci.InfoResponse](a.Info)
}

// SnapshotService returns the handler for snapshot requests.
func (a *App) SnapshotService() service.SnapshotService {
	return service.Func[abci.SnapshotRequest, abci.SnapshotResponse](a.Snapshot)
}

// Consensus handles InitChain, BeginBlock, DeliverTx, EndBlock and Commit.
func (a *App) Consensus(ctx context.Context, req abci.ConsensusRequest) (abci.ConsensusResponse, error) {
	switch r := req.(type) {
	case *abci.RequestInitChain:
		return a.initChain(r)
	case *abci.RequestBeginBlock:
		a.mu.Lock()
		a.valUpdates = nil
		a.mu.Unlock()

		a.logger.Debug("begin block",
			logger.Field{Key: "height", Value: r.Header.Height},
			logger.Field{Key: "votes", Value: len(r.LastCommitInfo.Votes)},
		)
		return &abci.ResponseBeginBlock{}, nil
	case *abci.RequestDeliverTx:
		return a.deliverTx(r), nil
	case *abci.RequestEndBlock:
		a.mu.Lock()
		updates := a.valUpdates
		a.valUpdates = nil
		a.mu.Unlock()

		return &abci.ResponseEndBlock{ValidatorUpdates: updates}, nil
	case *abci.RequestCommit:
		return a.commit(ctx)
	default:
		return nil, fmt.Errorf("kvstore: unexpected consensus request %s", req.Method())
	}
}

// Mempool handles CheckTx.
func (a *App) Mempool(_ context.Context, req abci.MempoolRequest) (abci.MempoolResponse, error) {
	r, ok := req.(*abci.RequestCheckTx)
	if !ok {
		return nil, fmt.Errorf("kvstore: unexpected mempool request %s", req.Method())
	}

	if _, err := parseTx(r.Tx); err != nil {
		return &abci.ResponseCheckTx{Code: CodeTypeEncodingError, Log: err.Error()}, nil
	}

	return &abci.ResponseCheckTx{Code: abci.CodeTypeOK, GasWanted: 1}, nil
}

// Info handles Echo, Info, SetOption and Query.
func (a *App) Info(ctx context.Context, req abci.InfoRequest) (abci.InfoResponse, error) {
	switch r := req.(type) {
	case *abci.RequestEcho:
		return &abci.ResponseEcho{Message: r.Message}, nil
	case *abci.RequestInfo:
		a.mu.RLock()
		defer a.mu.RUnlock()
		return &abci.ResponseInfo{
			Data:             fmt.Sprintf(`{"size":%d}`, len(a.committed)),
			Version:          r.Version,
			AppVersion:       AppVersion,
			LastBlockHeight:  a.height,
			LastBlockAppHash: a.appHash,
		}, nil
	case *abci.RequestSetOption:
		return &abci.ResponseSetOption{Code: abci.CodeTypeOK}, nil
	case *abci.RequestQuery:
		return a.query(ctx, r)
	default:
		return nil, fmt.Errorf("kvstore: unexpected info request %s", req.Method())
	}
}

// Snapshot handles ListSnapshots, OfferSnapshot, LoadSnapshotChunk and
// ApplySnapshotChunk.
func (a *App) Snapshot(ctx context.Context, req abci.SnapshotRequest) (abci.SnapshotResponse, error) {
	switch r := req.(type) {
	case *abci.RequestListSnapshots:
		return &abci.ResponseListSnapshots{Snapshots: a.snapshots.list()}, nil
	case *abci.RequestOfferSnapshot:
		return a.offerSnapshot(r), nil
	case *abci.RequestLoadSnapshotChunk:
		return &abci.ResponseLoadSnapshotChunk{Chunk: a.snapshots.chunk(r.Height, r.Format, r.Chunk)}, nil
	case *abci.RequestApplySnapshotChunk:
		return a.applySnapshotChunk(ctx, r), nil
	default:
		return nil, fmt.Errorf("kvstore: unexpected snapshot request %s", req.Method())
	}
}

func (a *App) initChain(req *abci.RequestInitChain) (*abci.ResponseInitChain, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, v := range req.Validators {
		pubKey := v.PubKey.GetEd25519()
		if len(pubKey) == 0 {
			return nil, fmt.Errorf("kvstore: genesis validator without ed25519 key")
		}
		a.setValidator(pubKey, v.Power)
	}

	a.logger.Info("init chain",
		logger.Field{Key: "chain_id", Value: req.ChainId},
		logger.Field{Key: "validators", Value: len(req.Validators)},
	)

	return &abci.ResponseInitChain{}, nil
}

func (a *App) deliverTx(req *abci.RequestDeliverTx) *abci.ResponseDeliverTx {
	t, err := parseTx(req.Tx)
	if err != nil {
		return &abci.ResponseDeliverTx{Code: CodeTypeEncodingError, Log: err.Error()}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if t.validator != nil {
		a.setValidator(t.validator.PubKey.GetEd25519(), t.validator.Power)
		a.valUpdates = append(a.valUpdates, *t.validator)
	} else {
		a.working[t.key] = t.value
	}

	return &abci.ResponseDeliverTx{
		Code: abci.CodeTypeOK,
		Events: []abci.Event{{
			Type: "app",
			Attributes: []abci.EventAttribute{
				{Key: []byte("key"), Value: []byte(t.key), Index: true},
			},
		}},
	}
}

// setValidator stores a validator's power in the application state; power 0
// removes it. Callers hold a.mu.
func (a *App) setValidator(pubKey []byte, power int64) {
	key := validatorKey(pubKey)
	if power == 0 {
		delete(a.working, key)
		return
	}
	a.working[key] = []byte(strconv.FormatInt(power, 10))
}

func (a *App) commit(ctx context.Context) (*abci.ResponseCommit, error) {
	a.mu.Lock()
	a.committed = maps.Clone(a.working)
	a.height++
	a.appHash = hashState(a.committed)
	height, appHash := a.height, a.appHash

	var taken *abci.Snapshot
	if a.cfg.SnapshotInterval > 0 && height%a.cfg.SnapshotInterval == 0 {
		s, err := a.snapshots.take(uint64(height), a.committed, a.cfg.ChunkSize)
		if err != nil {
			a.mu.Unlock()
			return nil, fmt.Errorf("kvstore: snapshot at height %d: %w", height, err)
		}
		taken = s
	}
	a.mu.Unlock()

	if err := a.cache.Purge(ctx); err != nil {
		a.logger.Warn("failed to purge query cache", logger.Err(err))
	}

	a.logger.Debug("committed",
		logger.Field{Key: "height", Value: height},
		logger.Field{Key: "app_hash", Value: hex.EncodeToString(appHash)},
	)
	if taken != nil {
		a.logger.Info("took snapshot",
			logger.Field{Key: "height", Value: taken.Height},
			logger.Field{Key: "chunks", Value: taken.Chunks},
		)
	}

	return &abci.ResponseCommit{Data: appHash}, nil
}

func (a *App) query(ctx context.Context, req *abci.RequestQuery) (*abci.ResponseQuery, error) {
	// committed is replaced on commit, never mutated, so the snapshot taken
	// here stays consistent with height.
	a.mu.RLock()
	height, state := a.height, a.committed
	a.mu.RUnlock()

	key := fmt.Sprintf("%d/%x", height, req.Data)
	res, err := a.cache.GetOrFetch(ctx, key, func(ctx context.Context) (QueryResult, error) {
		v, ok := state[string(req.Data)]
		return QueryResult{Value: v, Found: ok}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("kvstore: query %q: %w", req.Data, err)
	}

	resp := &abci.ResponseQuery{
		Code:   abci.CodeTypeOK,
		Key:    req.Data,
		Value:  res.Value,
		Height: height,
		Log:    "does not exist",
	}
	if res.Found {
		resp.Log = "exists"
	}

	return resp, nil
}
