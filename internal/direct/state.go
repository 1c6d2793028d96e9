package direct

import (
	"sync"

	"github.com/hnolan/httpbridge/internal/handler"
)

// numShards bounds the lock contention on the requestId -> state map
// to whichever shard a request id hashes to; the map is hit from the
// native-callback thread and from handler goroutines concurrently.
const numShards = 32

// requestState tracks one in-flight request id. mu guards the mutable
// fields: feedExisting runs on the thread that delivers frames (the
// native callback or the poll loop) while the handler goroutine
// promotes the state into a tunnel after detach.
type requestState struct {
	mu       sync.Mutex
	body     *handler.BodyStream
	detach   *handler.DetachedSocket
	rw       *responseWriter
	received int
}

func (st *requestState) bodyStream() *handler.BodyStream {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.body
}

func (st *requestState) detachedSocket() *handler.DetachedSocket {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.detach
}

// promote switches the state from body-streaming to tunneling.
func (st *requestState) promote(detach *handler.DetachedSocket) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.body = nil
	st.detach = detach
}

// addReceived accumulates the running body byte count across chunks.
func (st *requestState) addReceived(n int) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.received += n
	return st.received
}

type shard struct {
	mu sync.Mutex
	m  map[uint64]*requestState
}

func newShards() []shard {
	shards := make([]shard, numShards)
	for i := range shards {
		shards[i].m = make(map[uint64]*requestState)
	}
	return shards
}

func (e *Engine) shardFor(requestID uint64) *shard {
	return &e.shards[requestID%numShards]
}

// load returns the state for requestID, if any is registered.
func (e *Engine) load(requestID uint64) (*requestState, bool) {
	sh := e.shardFor(requestID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	st, ok := sh.m[requestID]
	return st, ok
}

// store registers st for requestID, replacing anything already there.
func (e *Engine) store(requestID uint64, st *requestState) {
	sh := e.shardFor(requestID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.m[requestID] = st
}

// delete idempotently removes requestID's state. Safe to call more
// than once; a second call is a no-op.
func (e *Engine) delete(requestID uint64) {
	sh := e.shardFor(requestID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.m, requestID)
}
