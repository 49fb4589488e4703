package server

import (
	"sync"

	"github.com/cyberinferno/go-abci/abci"
)

// pending is a dispatched handler call. done is closed once resp or err is
// set; neither is read before that.
type pending struct {
	kind   abci.MethodKind
	method string

	once sync.Once
	done chan struct{}
	resp abci.Response
	err  error
}

func newPending(req abci.Request) *pending {
	return &pending{
		kind:   req.Kind(),
		method: req.Method(),
		done:   make(chan struct{}),
	}
}

func (p *pending) resolve(resp abci.Response, err error) {
	p.once.Do(func() {
		p.resp = resp
		if err != nil {
			p.err = &HandlerError{Kind: p.kind, Method: p.method, Err: err}
		}
		close(p.done)
	})
}

// pendingQueue holds pending calls in request arrival order. Entries leave
// only from the head, whatever order their calls complete in.
type pendingQueue struct {
	items []*pending
}

func (q *pendingQueue) push(p *pending) {
	q.items = append(q.items, p)
}

// peek returns the head, or nil when empty.
func (q *pendingQueue) peek() *pending {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

func (q *pendingQueue) pop() *pending {
	p := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return p
}

func (q *pendingQueue) len() int {
	return len(q.items)
}
