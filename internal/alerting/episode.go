package alerting

import (
	"sync"
	"time"
)

// episode is the sustained-condition state of one alert.
type episode struct {
	armed      bool
	armedSince time.Time
	notified   bool
}

// EpisodeTracker keeps per-alert episode state so an alert notifies at most
// once per unbroken run of true evaluations.
//
// Results are tagged with the generation of the definition that produced
// them. Once Reset has moved an alert to a newer generation, results from
// older generations are ignored.
type EpisodeTracker struct {
	episodes    map[int64]*episode
	generations map[int64]uint64
	mu          sync.Mutex
}

// NewEpisodeTracker creates an empty tracker.
func NewEpisodeTracker() *EpisodeTracker {
	return &EpisodeTracker{
		episodes:    make(map[int64]*episode),
		generations: make(map[int64]uint64),
	}
}

// Observe applies one evaluation result at time now and reports whether the
// alert should fire. A false result ends the episode. The first true result
// arms it; the alert fires once when it has been armed for at least sustain.
// A zero sustain fires on the arming observation. A result from a stale
// generation changes nothing.
func (t *EpisodeTracker) Observe(alertID int64, generation uint64, satisfied bool, now time.Time, sustain time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if generation < t.generations[alertID] {
		return false
	}
	if !satisfied {
		delete(t.episodes, alertID)
		return false
	}

	ep, ok := t.episodes[alertID]
	if !ok {
		ep = &episode{armed: true, armedSince: now}
		t.episodes[alertID] = ep
	}
	if ep.notified || now.Sub(ep.armedSince) < sustain {
		return false
	}
	ep.notified = true
	return true
}

// Reset discards the state of an alert and, when generation is newer than
// the one recorded, makes it the oldest generation still accepted.
func (t *EpisodeTracker) Reset(alertID int64, generation uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.episodes, alertID)
	if generation > t.generations[alertID] {
		t.generations[alertID] = generation
	}
}

// Armed reports whether an alert is inside an episode and whether it has
// already notified during it.
func (t *EpisodeTracker) Armed(alertID int64) (armed, notified bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ep, ok := t.episodes[alertID]
	if !ok {
		return false, false
	}
	return ep.armed, ep.notified
}
