package claim

import "sync"

// Pool is the process-wide set of claim targets. Every session's racer
// consumes from the same pool. A target leaves the active queue when a
// racer acquires it and comes back either to the head (failed attempt) or,
// on success, to the consumed queue — so a target is gone from the active
// pool exactly once it has realized a claim. When rotation is enabled the
// consumed queue refills the active queue FIFO-order once it runs dry.
type Pool struct {
	mu       sync.Mutex
	active   []string
	consumed []string
	rotate   bool
}

func NewPool(targets []string, rotate bool) *Pool {
	active := make([]string, len(targets))
	copy(active, targets)
	return &Pool{active: active, rotate: rotate}
}

// Acquire pops the first available target, refilling from the consumed
// queue first when rotation is enabled. Returns false when nothing is left.
func (p *Pool) Acquire() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.active) == 0 && p.rotate && len(p.consumed) > 0 {
		p.active = p.consumed
		p.consumed = nil
	}
	if len(p.active) == 0 {
		return "", false
	}

	target := p.active[0]
	p.active = p.active[1:]
	return target, true
}

// Restore returns an acquired target to the head of the active queue after
// an attempt that did not consume it.
func (p *Pool) Restore(target string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = append([]string{target}, p.active...)
}

// Consume records a successfully used target into the rotated-back queue.
func (p *Pool) Consume(target string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consumed = append(p.consumed, target)
}

// Exhausted reports whether no target can ever be acquired again: the
// active queue is empty and either rotation is disabled or there is nothing
// to rotate back in.
func (p *Pool) Exhausted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.active) > 0 {
		return false
	}
	return !p.rotate || len(p.consumed) == 0
}

// Remaining returns the number of immediately available targets.
func (p *Pool) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}
