package watch

import (
	"log"
	"sync"
	"time"
)

// Resource is one watched guild as seen in a gateway snapshot or event.
type Resource struct {
	ID    string
	Alias string
}

// Set tracks, for one session, every guild that currently exposes a
// non-empty vanity alias, together with the per-guild cool-down map and the
// ignore list. An alias change or removal hands the *vacated* alias to the
// race callback; a guild gaining its first alias never races.
type Set struct {
	mu        sync.Mutex
	aliases   map[string]string
	cooldowns map[string]time.Time
	ignored   map[string]bool
	race      func(candidate, originGuild string)
	label     string
	now       func() time.Time
}

func NewSet(ignore []string, label string) *Set {
	ignored := make(map[string]bool, len(ignore))
	for _, id := range ignore {
		ignored[id] = true
	}
	return &Set{
		aliases:   make(map[string]string),
		cooldowns: make(map[string]time.Time),
		ignored:   ignored,
		label:     label,
		now:       time.Now,
	}
}

// OnVacated registers the callback invoked with a vacated alias and the
// guild it vacated from. The callback runs on its own goroutine so a slow
// race never stalls frame handling. Must be set before the session starts.
func (s *Set) OnVacated(race func(candidate, originGuild string)) {
	s.race = race
}

// Snapshot replaces the whole set with the guilds from a fresh session
// snapshot that carry a non-empty alias. Guilds without one are not tracked.
func (s *Set) Snapshot(resources []Resource) {
	s.mu.Lock()
	s.aliases = make(map[string]string)
	for _, r := range resources {
		if r.Alias != "" {
			s.aliases[r.ID] = r.Alias
		}
	}
	n := len(s.aliases)
	s.mu.Unlock()

	log.Printf("[%s] watch: ready, tracking %d guild(s) with a vanity alias", s.label, n)
}

// Update applies a guild change event. A guild new to the set is added
// without racing (first sight is not a change). A tracked guild whose alias
// differs vacates the previous alias: subject to the ignore list and the
// cool-down gate, the race callback fires with the old value.
func (s *Set) Update(id, alias string) {
	s.mu.Lock()
	prev, tracked := s.aliases[id]

	if !tracked {
		if alias != "" {
			s.aliases[id] = alias
		}
		s.mu.Unlock()
		return
	}

	if alias == prev {
		s.mu.Unlock()
		return
	}

	if alias == "" {
		delete(s.aliases, id)
	} else {
		s.aliases[id] = alias
	}

	ok := s.gateLocked(id)
	s.mu.Unlock()

	if ok {
		s.trigger(prev, id)
	}
}

// Remove drops a guild that became unavailable upstream and treats its last
// alias as vacated, through the same ignore/cool-down gate as an update.
func (s *Set) Remove(id string) {
	s.mu.Lock()
	prev, tracked := s.aliases[id]
	if !tracked {
		s.mu.Unlock()
		return
	}
	delete(s.aliases, id)

	ok := s.gateLocked(id)
	s.mu.Unlock()

	if ok {
		s.trigger(prev, id)
	}
}

// Resumed marks the session back in steady state. The set is kept as-is: a
// resume replays missed events rather than re-snapshotting.
func (s *Set) Resumed() {
	log.Printf("[%s] watch: session resumed", s.label)
}

// SetCoolDown refreshes the suppression window for a guild. Called by the
// racer when an attempt finishes.
func (s *Set) SetCoolDown(id string, until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldowns[id] = until
}

// Alias returns the tracked alias for a guild, if any.
func (s *Set) Alias(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alias, ok := s.aliases[id]
	return alias, ok
}

// Len returns the number of tracked guilds.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.aliases)
}

// gateLocked decides whether a vacated alias from the given guild may race.
// Expired cool-down entries are removed here, lazily, before racing.
func (s *Set) gateLocked(id string) bool {
	if s.ignored[id] {
		log.Printf("[%s] watch: guild %s is on the ignore list, skipping", s.label, id)
		return false
	}
	if until, ok := s.cooldowns[id]; ok {
		if s.now().Before(until) {
			log.Printf("[%s] watch: guild %s cooling down until %s, skipping", s.label, id, until.Format(time.RFC3339))
			return false
		}
		delete(s.cooldowns, id)
	}
	return true
}

func (s *Set) trigger(candidate, originGuild string) {
	if s.race == nil {
		return
	}
	go s.race(candidate, originGuild)
}
