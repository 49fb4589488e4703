package kvstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"maps"
	"sync"

	"github.com/cyberinferno/go-abci/abci"
	"github.com/cyberinferno/go-abci/logger"
)

// SnapshotFormat is the only snapshot format this application produces and
// accepts: the JSON encoding of the sorted key/value pairs.
const SnapshotFormat uint32 = 1

type pair struct {
	Key   string `json:"k"`
	Value []byte `json:"v"`
}

type storedSnapshot struct {
	meta   *abci.Snapshot
	chunks [][]byte
}

// snapshotStore keeps the most recent snapshots, oldest first.
type snapshotStore struct {
	mu    sync.RWMutex
	keep  int
	items []storedSnapshot
}

func newSnapshotStore(keep int) *snapshotStore {
	return &snapshotStore{keep: keep}
}

func (s *snapshotStore) take(height uint64, state map[string][]byte, chunkSize int) (*abci.Snapshot, error) {
	data, err := encodeState(state)
	if err != nil {
		return nil, err
	}

	var chunks [][]byte
	for len(data) > chunkSize {
		chunks = append(chunks, data[:chunkSize])
		data = data[chunkSize:]
	}
	chunks = append(chunks, data)

	sum := sha256.Sum256(bytes.Join(chunks, nil))
	meta := &abci.Snapshot{
		Height: height,
		Format: SnapshotFormat,
		Chunks: uint32(len(chunks)),
		Hash:   sum[:],
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append(s.items, storedSnapshot{meta: meta, chunks: chunks})
	if over := len(s.items) - s.keep; over > 0 {
		s.items = s.items[over:]
	}

	return meta, nil
}

func (s *snapshotStore) list() []*abci.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*abci.Snapshot, len(s.items))
	for i, item := range s.items {
		out[i] = item.meta
	}
	return out
}

// chunk returns nil when the snapshot or chunk does not exist.
func (s *snapshotStore) chunk(height uint64, format, index uint32) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if item.meta.Height == height && item.meta.Format == format {
			if int(index) < len(item.chunks) {
				return item.chunks[index]
			}
			return nil
		}
	}
	return nil
}

// restore tracks an accepted snapshot offer while its chunks arrive.
type restore struct {
	meta     *abci.Snapshot
	appHash  []byte
	chunks   [][]byte
	received int
}

func (a *App) offerSnapshot(req *abci.RequestOfferSnapshot) *abci.ResponseOfferSnapshot {
	switch {
	case req.Snapshot == nil || req.Snapshot.Chunks == 0:
		return &abci.ResponseOfferSnapshot{Result: abci.OfferSnapshotReject}
	case req.Snapshot.Format != SnapshotFormat:
		return &abci.ResponseOfferSnapshot{Result: abci.OfferSnapshotRejectFormat}
	}

	a.mu.Lock()
	a.restore = &restore{
		meta:    req.Snapshot,
		appHash: req.AppHash,
		chunks:  make([][]byte, req.Snapshot.Chunks),
	}
	a.mu.Unlock()

	a.logger.Info("accepted snapshot offer",
		logger.Field{Key: "height", Value: req.Snapshot.Height},
		logger.Field{Key: "chunks", Value: req.Snapshot.Chunks},
	)

	return &abci.ResponseOfferSnapshot{Result: abci.OfferSnapshotAccept}
}

func (a *App) applySnapshotChunk(ctx context.Context, req *abci.RequestApplySnapshotChunk) *abci.ResponseApplySnapshotChunk {
	result, restored := a.storeChunk(req)
	if restored != nil {
		if err := a.cache.Purge(ctx); err != nil {
			a.logger.Warn("failed to purge query cache", logger.Err(err))
		}
		a.logger.Info("restored snapshot", logger.Field{Key: "height", Value: restored.Height})
	}

	return &abci.ResponseApplySnapshotChunk{Result: result}
}

// storeChunk records one chunk and, once all chunks are present, replaces
// the application state. It returns the restored snapshot when that happens.
func (a *App) storeChunk(req *abci.RequestApplySnapshotChunk) (abci.ApplySnapshotChunkResult, *abci.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := a.restore
	if r == nil {
		return abci.ApplySnapshotChunkAbort, nil
	}
	if int(req.Index) >= len(r.chunks) {
		a.restore = nil
		return abci.ApplySnapshotChunkRejectSnapshot, nil
	}

	if r.chunks[req.Index] == nil {
		r.received++
	}
	r.chunks[req.Index] = append([]byte{}, req.Chunk...)
	if r.received < len(r.chunks) {
		return abci.ApplySnapshotChunkAccept, nil
	}

	a.restore = nil
	state, err := r.decode()
	if err != nil {
		a.logger.Warn("rejected snapshot", logger.Field{Key: "height", Value: r.meta.Height}, logger.Err(err))
		return abci.ApplySnapshotChunkRejectSnapshot, nil
	}

	a.committed = state
	a.working = maps.Clone(state)
	a.height = int64(r.meta.Height)
	a.appHash = hashState(state)

	return abci.ApplySnapshotChunkAccept, r.meta
}

func (r *restore) decode() (map[string][]byte, error) {
	data := bytes.Join(r.chunks, nil)

	sum := sha256.Sum256(data)
	if !bytes.Equal(sum[:], r.meta.Hash) {
		return nil, fmt.Errorf("snapshot hash mismatch")
	}

	state, err := decodeState(data)
	if err != nil {
		return nil, err
	}

	if len(r.appHash) > 0 && !bytes.Equal(hashState(state), r.appHash) {
		return nil, fmt.Errorf("app hash mismatch")
	}

	return state, nil
}

func encodeState(state map[string][]byte) ([]byte, error) {
	pairs := make([]pair, 0, len(state))
	for _, k := range sortedKeys(state) {
		pairs = append(pairs, pair{Key: k, Value: state[k]})
	}

	return json.Marshal(pairs)
}

func decodeState(data []byte) (map[string][]byte, error) {
	var pairs []pair
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	state := make(map[string][]byte, len(pairs))
	for _, p := range pairs {
		state[p.Key] = p.Value
	}
	return state, nil
}
