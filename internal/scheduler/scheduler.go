// Package scheduler serializes feature requests through priority-aware
// debouncing: critical requests run immediately, everything else waits out
// a debounce window during which newer requests for the same key replace
// older ones. Low-priority request types batch once their queue fills.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tliron/commonlog"

	"github.com/tabcalc/tablang/internal/config"
)

// Priority classes, highest first.
type Priority int

const (
	Critical Priority = iota // execute immediately, no debouncing
	High                     // short debounce
	Medium                   // standard debounce
	Low                      // long debounce, batched
)

// RequestType identifies a feature request kind.
type RequestType string

const (
	TypeDiagnostics      RequestType = "diagnostics"
	TypeHover            RequestType = "hover"
	TypeSignatureHelp    RequestType = "signatureHelp"
	TypeCompletion       RequestType = "completion"
	TypeDefinition       RequestType = "definition"
	TypeReferences       RequestType = "references"
	TypeCodeAction       RequestType = "codeAction"
	TypeSemanticTokens   RequestType = "semanticTokens"
	TypeFormatting       RequestType = "formatting"
	TypeDocumentSymbols  RequestType = "documentSymbols"
	TypeWorkspaceSymbols RequestType = "workspaceSymbols"
)

// Priority returns the type's priority class.
func (t RequestType) Priority() Priority {
	switch t {
	case TypeDiagnostics:
		return Critical
	case TypeHover, TypeSignatureHelp:
		return High
	case TypeCompletion, TypeDefinition, TypeReferences, TypeCodeAction:
		return Medium
	default:
		return Low
	}
}

// Batchable reports whether queued requests of this type dispatch together
// once the queue reaches the configured batch size.
func (t RequestType) Batchable() bool {
	return t.Priority() == Low
}

// Handler performs the actual feature work. It must honour ctx.
type Handler func(ctx context.Context) (any, error)

// Request is one feature request. PositionKey distinguishes requests at
// different positions in the same document; use "global" (or leave empty)
// for requests without a position.
type Request struct {
	Type        RequestType
	URI         string
	PositionKey string
	Handler     Handler
}

// Outcome is delivered on the channel returned by Schedule.
type Outcome struct {
	Value any
	Err   error
}

// Sentinel errors delivered to displaced or cancelled waiters.
var (
	ErrSuperseded = errors.New("request superseded by a newer request for the same key")
	ErrCancelled  = errors.New("request cancelled")
	ErrShutdown   = errors.New("scheduler shut down")
)

// Adaptive delay tuning: arrivals within rapidThreshold of each other grow
// the delay; arrivals farther apart than calmThreshold shrink it.
const (
	rapidThreshold = 100 * time.Millisecond
	calmThreshold  = 300 * time.Millisecond
	growFactor     = 1.5
	shrinkFactor   = 0.7
)

type pending struct {
	req    Request
	ctx    context.Context
	key    string
	timer  *time.Timer
	result chan Outcome
}

type delayState struct {
	last  time.Time
	delay time.Duration
}

// Scheduler debounces and dispatches feature requests.
type Scheduler struct {
	cfg config.Scheduler
	log commonlog.Logger

	mu      sync.Mutex
	pending map[string]*pending
	delays  map[string]*delayState
	queues  map[RequestType][]*pending
	closed  bool

	wg sync.WaitGroup
}

// New creates a Scheduler.
func New(cfg config.Scheduler) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		log:     commonlog.GetLogger("tablang.scheduler"),
		pending: make(map[string]*pending),
		delays:  make(map[string]*delayState),
		queues:  make(map[RequestType][]*pending),
	}
}

// Schedule submits a request and returns a channel that receives exactly
// one Outcome. A newer request with the same (type, uri, position) key
// cancels this one's timer and rejects its waiter with ErrSuperseded.
func (s *Scheduler) Schedule(ctx context.Context, req Request) <-chan Outcome {
	result := make(chan Outcome, 1)

	if req.PositionKey == "" {
		req.PositionKey = "global"
	}

	if req.Type.Priority() == Critical {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			result <- s.run(ctx, req)
		}()
		return result
	}

	key := fmt.Sprintf("%s|%s|%s", req.Type, req.URI, req.PositionKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		result <- Outcome{Err: ErrShutdown}
		return result
	}

	if prior, ok := s.pending[key]; ok {
		prior.timer.Stop()
		s.dropFromQueueLocked(prior)
		prior.result <- Outcome{Err: ErrSuperseded}
	}

	p := &pending{
		req:    req,
		ctx:    ctx,
		key:    key,
		result: result,
	}
	s.pending[key] = p

	delay := s.nextDelayLocked(req)
	p.timer = time.AfterFunc(delay, func() { s.fire(p) })

	if req.Type.Batchable() {
		s.queues[req.Type] = append(s.queues[req.Type], p)
		if len(s.queues[req.Type]) >= s.cfg.BatchSize {
			s.dispatchBatchLocked(req.Type)
		}
	}

	return result
}

// nextDelayLocked computes the adaptive debounce delay for the request's
// (type, uri) pair: rapid repeats stretch the delay toward MaxDelay,
// quiet periods shrink it toward MinDelay.
func (s *Scheduler) nextDelayLocked(req Request) time.Duration {
	base := s.baseDelay(req.Type)
	key := fmt.Sprintf("%s|%s", req.Type, req.URI)
	now := time.Now()

	state, ok := s.delays[key]
	if !ok {
		s.delays[key] = &delayState{last: now, delay: base}
		return base
	}

	sinceLast := now.Sub(state.last)
	state.last = now
	switch {
	case sinceLast < rapidThreshold:
		state.delay = time.Duration(float64(state.delay) * growFactor)
		if state.delay > s.cfg.MaxDelay {
			state.delay = s.cfg.MaxDelay
		}
	case sinceLast > calmThreshold:
		state.delay = time.Duration(float64(state.delay) * shrinkFactor)
		if state.delay < s.cfg.MinDelay {
			state.delay = s.cfg.MinDelay
		}
	}
	return state.delay
}

func (s *Scheduler) baseDelay(t RequestType) time.Duration {
	switch t.Priority() {
	case High:
		return s.cfg.HighDelay
	case Medium:
		return s.cfg.MediumDelay
	default:
		return s.cfg.LowDelay
	}
}

// fire runs a pending request whose debounce timer expired.
func (s *Scheduler) fire(p *pending) {
	s.mu.Lock()
	if s.pending[p.key] != p {
		// superseded or cancelled between timer expiry and now
		s.mu.Unlock()
		return
	}
	delete(s.pending, p.key)
	s.dropFromQueueLocked(p)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		p.result <- s.run(p.ctx, p.req)
	}()
}

// dispatchBatchLocked fires every queued request of the type concurrently.
func (s *Scheduler) dispatchBatchLocked(t RequestType) {
	batch := s.queues[t]
	s.queues[t] = nil
	for _, p := range batch {
		p.timer.Stop()
		if s.pending[p.key] != p {
			continue
		}
		delete(s.pending, p.key)
		s.wg.Add(1)
		go func(p *pending) {
			defer s.wg.Done()
			p.result <- s.run(p.ctx, p.req)
		}(p)
	}
}

func (s *Scheduler) dropFromQueueLocked(p *pending) {
	if !p.req.Type.Batchable() {
		return
	}
	queue := s.queues[p.req.Type]
	for i, q := range queue {
		if q == p {
			s.queues[p.req.Type] = append(queue[:i], queue[i+1:]...)
			return
		}
	}
}

// run executes the handler, honouring cancellation at entry and converting
// panics into errors so one failing handler never takes down another.
func (s *Scheduler) run(ctx context.Context, req Request) (outcome Outcome) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return Outcome{Err: err}
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("handler panic for %s %s: %v", req.Type, req.URI, r)
			outcome = Outcome{Err: fmt.Errorf("handler panic: %v", r)}
		}
	}()

	value, err := req.Handler(ctx)
	return Outcome{Value: value, Err: err}
}

// ClearDocumentRequests cancels every pending request for the URI. Waiters
// receive ErrCancelled.
func (s *Scheduler) ClearDocumentRequests(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, p := range s.pending {
		if p.req.URI != uri {
			continue
		}
		p.timer.Stop()
		s.dropFromQueueLocked(p)
		delete(s.pending, key)
		p.result <- Outcome{Err: ErrCancelled}
	}
}

// FlushAll fires every pending timer immediately and waits for all running
// handlers to finish. Used at shutdown.
func (s *Scheduler) FlushAll() {
	s.mu.Lock()
	s.closed = true
	var flushed []*pending
	for key, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, key)
		flushed = append(flushed, p)
	}
	for t := range s.queues {
		s.queues[t] = nil
	}
	s.mu.Unlock()

	for _, p := range flushed {
		s.wg.Add(1)
		go func(p *pending) {
			defer s.wg.Done()
			p.result <- s.run(p.ctx, p.req)
		}(p)
	}
	s.wg.Wait()
}

// PendingCount returns the number of debouncing requests.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
