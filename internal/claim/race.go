package claim

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/vanityracer/sniper/internal/rest"
)

// AliasSetter issues the vanity mutation for one credential.
type AliasSetter interface {
	SetAlias(ctx context.Context, guildID, code string) (*rest.Result, error)
}

// Sink receives best-effort success announcements.
type Sink interface {
	Send(ctx context.Context, content string)
}

// CoolDowns records the per-resource suppression window after an attempt.
type CoolDowns interface {
	SetCoolDown(guildID string, until time.Time)
}

// Options are the race's fixed knobs, taken from claim config.
type Options struct {
	// Retries bounds how many times a rate-limited attempt is retried
	// before the candidate is abandoned.
	Retries int
	// Cooldown is the per-origin suppression window set after every
	// attempt, success or failure.
	Cooldown time.Duration
	// StopAfterFirst exits the process after the first successful claim.
	StopAfterFirst bool
}

// Racer races a vacated alias onto the first available claim target.
// One racer per credential; the pool and sink are shared process-wide.
type Racer struct {
	opts  Options
	pool  *Pool
	api   AliasSetter
	sink  Sink
	cool  CoolDowns
	label string

	// sleep and exit are swappable for tests.
	sleep func(time.Duration)
	exit  func(int)
	now   func() time.Time
}

func NewRacer(opts Options, pool *Pool, api AliasSetter, sink Sink, cool CoolDowns, label string) *Racer {
	return &Racer{
		opts:  opts,
		pool:  pool,
		api:   api,
		sink:  sink,
		cool:  cool,
		label: label,
		sleep: time.Sleep,
		exit:  os.Exit,
		now:   time.Now,
	}
}

// Attempt races candidate onto a claim target. originGuild is the resource
// whose alias change triggered the race; its cool-down is refreshed when the
// attempt finishes regardless of outcome. Rate-limited responses are retried
// after the server's hint, up to the retry ceiling; any other failure
// abandons the candidate. Pool exhaustion ends the process: there is nothing
// left to apply claims to.
func (r *Racer) Attempt(ctx context.Context, candidate, originGuild string) {
	defer func() {
		if r.opts.Cooldown > 0 {
			r.cool.SetCoolDown(originGuild, r.now().Add(r.opts.Cooldown))
		}
	}()

	for tries := 0; ; tries++ {
		if r.pool.Exhausted() {
			log.Printf("[%s] claim: no targets remain, shutting down", r.label)
			r.exit(0)
			return
		}

		target, ok := r.pool.Acquire()
		if !ok {
			// Another racer drained the pool between the guard and the
			// acquire; re-run the guard.
			continue
		}

		res, err := r.api.SetAlias(ctx, target, candidate)
		if err != nil {
			r.pool.Restore(target)
			log.Printf("[%s] claim: %q on %s failed: %v", r.label, candidate, target, err)
			return
		}

		switch res.Outcome {
		case rest.Applied:
			r.pool.Consume(target)
			log.Printf("[%s] claim: won %q on %s in %s (vacated by guild %s)",
				r.label, candidate, target, res.Latency, originGuild)
			r.sink.Send(ctx, fmt.Sprintf("Claimed vanity `%s` on guild %s in %s", candidate, target, res.Latency))
			if r.opts.StopAfterFirst {
				log.Printf("[%s] claim: stop_after_first set, shutting down", r.label)
				r.exit(0)
			}
			return

		case rest.RateLimited:
			r.pool.Restore(target)
			if tries >= r.opts.Retries {
				log.Printf("[%s] claim: %q rate limited %d times, giving up on candidate", r.label, candidate, tries+1)
				return
			}
			log.Printf("[%s] claim: %q rate limited, retrying in %s", r.label, candidate, res.RetryAfter)
			r.sleep(res.RetryAfter)

		default:
			r.pool.Restore(target)
			log.Printf("[%s] claim: %q on %s rejected (status %d): %s", r.label, candidate, target, res.Status, res.Message)
			return
		}
	}
}
