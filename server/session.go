package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/cyberinferno/go-abci/abci"
	"github.com/cyberinferno/go-abci/codec"
	"github.com/cyberinferno/go-abci/logger"
	"github.com/cyberinferno/go-abci/service"
)

// HandlerError reports a failed readiness check or call of a handler
// service. It is fatal to the connection that issued the request.
type HandlerError struct {
	Kind   abci.MethodKind
	Method string
	Err    error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s handler failed on %s: %v", e.Kind, e.Method, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// session owns one connection. A single goroutine runs the control loop; a
// reader goroutine feeds it decoded requests and every dispatched call runs
// on its own goroutine, resolving a pending entry in the session's queue.
type session struct {
	id       uint64
	conn     net.Conn
	handlers handlers
	opts     Options
	log      logger.Logger

	enc *codec.Encoder

	closeOnce sync.Once
	closeErr  error
}

type inbound struct {
	req abci.Request
	err error
}

func newSession(id uint64, conn net.Conn, h handlers, opts Options, l logger.Logger) *session {
	return &session{
		id:       id,
		conn:     conn,
		handlers: h,
		opts:     opts,
		log:      l,
		enc:      codec.NewEncoder(conn, opts.MaxMessageSize),
	}
}

// Run serves requests until the peer closes the connection, ctx is cancelled
// or a fatal error occurs. Calls still in flight when Run returns observe a
// cancelled context and their results are dropped.
func (s *session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.Close()

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	s.log.Info("listening for requests")

	requests := make(chan inbound)
	go s.readLoop(ctx, codec.NewDecoder(s.conn, s.opts.MaxMessageSize), requests)

	err := s.loop(ctx, requests)

	var herr *HandlerError
	if s.opts.ExceptionOnError && errors.As(err, &herr) {
		if werr := s.write(&abci.ResponseException{Error: herr.Error()}); werr != nil {
			s.log.Warn("failed to send exception", logger.Err(werr))
		}
	}

	if err == nil {
		s.log.Info("connection closed")
	}

	return err
}

// Close closes the connection. It is safe to call multiple times.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *session) loop(ctx context.Context, requests <-chan inbound) error {
	var queue pendingQueue

	for {
		// A nil channel never fires, so the head is only raced when queued.
		var headDone <-chan struct{}
		if head := queue.peek(); head != nil {
			headDone = head.done
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case in, ok := <-requests:
			if !ok {
				return nil
			}
			if in.err != nil {
				if errors.Is(in.err, io.EOF) {
					return nil
				}
				return fmt.Errorf("decode request: %w", in.err)
			}

			if err := s.handle(ctx, in.req, &queue); err != nil {
				return err
			}

		case <-headDone:
			if err := s.send(queue.pop()); err != nil {
				return err
			}
		}
	}
}

// handle classifies one request. Dispatch awaits the handler's readiness
// inline, so already resolved responses wait until it is admitted.
func (s *session) handle(ctx context.Context, req abci.Request, queue *pendingQueue) error {
	s.log.Debug("new request", logger.Field{Key: "method", Value: req.Method()})

	var (
		p   *pending
		err error
	)

	switch req.Kind() {
	case abci.KindConsensus:
		r, ok := abci.ToConsensusRequest(req)
		if !ok {
			panic("checked kind")
		}
		p, err = dispatch(ctx, s.handlers.consensus, req, r)
	case abci.KindMempool:
		r, ok := abci.ToMempoolRequest(req)
		if !ok {
			panic("checked kind")
		}
		p, err = dispatch(ctx, s.handlers.mempool, req, r)
	case abci.KindInfo:
		r, ok := abci.ToInfoRequest(req)
		if !ok {
			panic("checked kind")
		}
		p, err = dispatch(ctx, s.handlers.info, req, r)
	case abci.KindSnapshot:
		r, ok := abci.ToSnapshotRequest(req)
		if !ok {
			panic("checked kind")
		}
		p, err = dispatch(ctx, s.handlers.snapshot, req, r)
	case abci.KindFlush:
		return s.flush(ctx, queue)
	default:
		return fmt.Errorf("request %s has unknown kind %v", req.Method(), req.Kind())
	}

	if err != nil {
		return err
	}

	queue.push(p)
	return nil
}

// flush drains the queue in order and then acknowledges the Flush. No
// further requests are read until it returns.
func (s *session) flush(ctx context.Context, queue *pendingQueue) error {
	s.log.Debug("flushing responses", logger.Field{Key: "pending", Value: queue.len()})

	for queue.len() > 0 {
		p := queue.pop()

		select {
		case <-p.done:
		case <-ctx.Done():
			return ctx.Err()
		}

		if err := s.send(p); err != nil {
			return err
		}
	}

	return s.write(&abci.ResponseFlush{})
}

// send writes the response of a resolved pending call.
func (s *session) send(p *pending) error {
	if p.err != nil {
		return p.err
	}
	if p.resp == nil {
		return &HandlerError{Kind: p.kind, Method: p.method, Err: errors.New("nil response")}
	}

	s.log.Debug("sending response", logger.Field{Key: "method", Value: p.resp.Method()})
	return s.write(p.resp)
}

func (s *session) write(resp abci.Response) error {
	if err := s.enc.WriteResponse(resp); err != nil {
		return fmt.Errorf("write %s response: %w", resp.Method(), err)
	}
	if err := s.enc.Flush(); err != nil {
		return fmt.Errorf("flush %s response: %w", resp.Method(), err)
	}
	return nil
}

func (s *session) readLoop(ctx context.Context, dec *codec.Decoder, out chan<- inbound) {
	defer close(out)

	for {
		req, err := dec.ReadRequest()

		select {
		case out <- inbound{req: req, err: err}:
		case <-ctx.Done():
			return
		}

		if err != nil {
			return
		}
	}
}

// dispatch awaits svc's readiness and starts the call on a new goroutine.
func dispatch[Req any, Resp abci.Response](
	ctx context.Context,
	svc service.Service[Req, Resp],
	req abci.Request,
	typed Req,
) (*pending, error) {
	if err := svc.Ready(ctx); err != nil {
		return nil, &HandlerError{Kind: req.Kind(), Method: req.Method(), Err: err}
	}

	p := newPending(req)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.resolve(nil, fmt.Errorf("panic: %v", r))
			}
		}()

		resp, err := svc.Call(ctx, typed)
		if err != nil {
			p.resolve(nil, err)
			return
		}
		p.resolve(resp, nil)
	}()

	return p, nil
}
