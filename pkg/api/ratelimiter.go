package api

import (
	"context"
	"time"
)

// ==========================
// Per-IP rate limiting logic
// ==========================

// RequestKind distinguishes lightweight metadata calls from the mask
// computations and poster renders that actually burn CPU.
type RequestKind int

const (
	// RequestGeneral marks inexpensive lookups that still benefit from
	// the per-IP queue so clients cannot overwhelm the server with
	// concurrent requests.
	RequestGeneral RequestKind = iota
	// RequestHeavy marks compute and render endpoints. We enforce a
	// cooldown after each heavy call so one client dragging a slider
	// cannot starve everyone else's page loads.
	RequestHeavy
)

// RateLimiter sequences requests per client IP without mutexes: a
// dispatcher goroutine routes each acquire to a per-IP queue goroutine
// that grants one slot at a time, following "Do not communicate by
// sharing memory; share memory by communicating".
type RateLimiter struct {
	heavyCooldown time.Duration
	acquires      chan dispatch
	now           func() time.Time
}

// dispatch routes one slot request to the queue for its IP.
type dispatch struct {
	ip  string
	req slotRequest
}

type slotRequest struct {
	ctx     context.Context
	kind    RequestKind
	arrived time.Time
	reply   chan grantReply
}

// grantReply hands back the release channel and how long the request
// sat in the queue plus cooldown, or the context error.
type grantReply struct {
	release chan struct{}
	waited  time.Duration
	err     error
}

// Permit is one granted slot. Release it when the handler is done so
// the next queued request for the same IP can proceed.
type Permit struct {
	release      chan struct{}
	WaitNotice   bool
	WaitDuration time.Duration
}

// Release signals the queue goroutine that the slot is free. The
// channel is nilled so double releases are harmless, and the nil
// permit (no limiter configured) releases as a no-op.
func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	close(p.release)
	p.release = nil
}

// NewRateLimiter starts the dispatcher with the given cooldown applied
// after every heavy request.
func NewRateLimiter(heavyCooldown time.Duration) *RateLimiter {
	limiter := &RateLimiter{
		heavyCooldown: heavyCooldown,
		acquires:      make(chan dispatch),
		now:           time.Now,
	}

	go limiter.loop()

	return limiter
}

// Acquire blocks until the IP's queue grants a slot or ctx ends. The
// nil limiter grants everything immediately via the nil Permit.
func (l *RateLimiter) Acquire(ctx context.Context, ip string, kind RequestKind) (*Permit, error) {
	if l == nil {
		return nil, nil
	}

	req := slotRequest{
		ctx:     ctx,
		kind:    kind,
		arrived: l.now(),
		reply:   make(chan grantReply, 1),
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case l.acquires <- dispatch{ip: ip, req: req}:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-req.reply:
		if resp.err != nil {
			return nil, resp.err
		}
		return &Permit{
			release:      resp.release,
			WaitNotice:   resp.waited > 0,
			WaitDuration: resp.waited,
		}, nil
	}
}

// loop owns the queue map. Queues are created on first contact and
// live for the process lifetime; scene traffic comes from a small set
// of browsers, not an unbounded address space.
func (l *RateLimiter) loop() {
	queues := make(map[string]chan slotRequest)

	for d := range l.acquires {
		ch, ok := queues[d.ip]
		if !ok {
			ch = make(chan slotRequest)
			queues[d.ip] = ch
			go l.runClientQueue(ch)
		}

		select {
		case ch <- d.req:
		case <-d.req.ctx.Done():
			d.req.reply <- grantReply{err: d.req.ctx.Err()}
		}
	}
}

// runClientQueue grants slots one at a time for a single IP, holding
// the heavy cooldown between consecutive heavy requests.
func (l *RateLimiter) runClientQueue(requests <-chan slotRequest) {
	var lastHeavyFinish time.Time

	for req := range requests {
		select {
		case <-req.ctx.Done():
			req.reply <- grantReply{err: req.ctx.Err()}
			continue
		default:
		}

		waited := l.now().Sub(req.arrived)
		if waited < 0 {
			waited = 0
		}

		if delay := l.cooldownLeft(req.kind, lastHeavyFinish); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-req.ctx.Done():
				if !timer.Stop() {
					<-timer.C
				}
				req.reply <- grantReply{err: req.ctx.Err()}
				continue
			case <-timer.C:
				waited += delay
			}
		}

		release := make(chan struct{})
		select {
		case <-req.ctx.Done():
			req.reply <- grantReply{err: req.ctx.Err()}
			continue
		case req.reply <- grantReply{release: release, waited: waited}:
		}

		// Wait for the handler; a dead context still requires the
		// deferred Release, which keeps the accounting exact.
		select {
		case <-release:
		case <-req.ctx.Done():
			<-release
		}

		if req.kind == RequestHeavy {
			lastHeavyFinish = l.now()
		}
	}
}

// cooldownLeft reports how much of the heavy cooldown is still to be
// served before the next heavy slot may be granted.
func (l *RateLimiter) cooldownLeft(kind RequestKind, lastHeavyFinish time.Time) time.Duration {
	if kind != RequestHeavy || lastHeavyFinish.IsZero() {
		return 0
	}
	left := lastHeavyFinish.Add(l.heavyCooldown).Sub(l.now())
	if left < 0 {
		return 0
	}
	return left
}
