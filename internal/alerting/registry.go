package alerting

import (
	"cmp"
	"slices"
	"sync"

	"github.com/metrink/metrink-go/internal/metric"
)

// Registry holds the live alert definitions partitioned by owner. Each
// partition is ordered by ascending alert ID. Reads run concurrently;
// Upsert and Remove are atomic per call.
type Registry struct {
	mu       sync.RWMutex
	owners   map[int64][]*Definition
	ownerOf  map[int64]int64 // alert ID -> owner ID
	ownerIDs []int64         // ascending

	// match indexes, rebuilt on every mutation
	exact    map[metric.Identity][]*Definition
	wildcard []*Definition

	sweepMu   sync.Mutex
	sweepLast map[int64]int64 // owner -> last alert ID returned in the current sweep
	nextOwner int64

	generation uint64 // guarded by mu
	episodes   *EpisodeTracker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		owners:    make(map[int64][]*Definition),
		ownerOf:   make(map[int64]int64),
		exact:     make(map[metric.Identity][]*Definition),
		sweepLast: make(map[int64]int64),
		episodes:  NewEpisodeTracker(),
	}
}

// Episodes returns the episode state shared with the evaluation engine.
func (r *Registry) Episodes() *EpisodeTracker {
	return r.episodes
}

func byAlertID(a, b *Definition) int { return cmp.Compare(a.AlertID, b.AlertID) }

func findAlert(defs []*Definition, alertID int64) (int, bool) {
	return slices.BinarySearchFunc(defs, alertID, func(d *Definition, id int64) int {
		return cmp.Compare(d.AlertID, id)
	})
}

// Upsert inserts or replaces each definition in its owner's partition. An
// alert that changed owner leaves its old partition. Each upserted
// definition gets a fresh generation and its episode state is discarded.
func (r *Registry) Upsert(defs []*Definition) {
	if len(defs) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, def := range defs {
		if def == nil {
			continue
		}
		if prev, ok := r.ownerOf[def.AlertID]; ok && prev != def.OwnerID {
			r.removeLocked(def.AlertID)
		}
		part := r.owners[def.OwnerID]
		if idx, found := findAlert(part, def.AlertID); found {
			part[idx] = def
		} else {
			part = slices.Insert(part, idx, def)
		}
		r.owners[def.OwnerID] = part
		r.ownerOf[def.AlertID] = def.OwnerID
		r.generation++
		def.Generation = r.generation
		r.episodes.Reset(def.AlertID, def.Generation)
	}
	r.reindexLocked()
}

// Remove deletes an alert from whichever partition holds it and drops its
// episode state. It reports whether the alert was present.
func (r *Registry) Remove(alertID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := r.removeLocked(alertID)
	if removed {
		r.reindexLocked()
	}
	r.generation++
	r.episodes.Reset(alertID, r.generation)
	return removed
}

func (r *Registry) removeLocked(alertID int64) bool {
	owner, ok := r.ownerOf[alertID]
	if !ok {
		return false
	}
	delete(r.ownerOf, alertID)
	part := r.owners[owner]
	if idx, found := findAlert(part, alertID); found {
		part = slices.Delete(part, idx, idx+1)
	}
	if len(part) == 0 {
		delete(r.owners, owner)
	} else {
		r.owners[owner] = part
	}
	return true
}

func (r *Registry) reindexLocked() {
	r.ownerIDs = r.ownerIDs[:0]
	for owner := range r.owners {
		r.ownerIDs = append(r.ownerIDs, owner)
	}
	slices.Sort(r.ownerIDs)

	clear(r.exact)
	r.wildcard = r.wildcard[:0]
	for _, owner := range r.ownerIDs {
		for _, def := range r.owners[owner] {
			if def.Condition == nil {
				continue
			}
			p := def.Condition.Pattern()
			if p.IsExact() {
				id := metric.Identity{Device: p.Device, Group: p.Group, Name: p.Name}
				r.exact[id] = append(r.exact[id], def)
			} else {
				r.wildcard = append(r.wildcard, def)
			}
		}
	}
}

// Match returns the definitions whose pattern selects id, by ascending alert ID.
func (r *Registry) Match(id metric.Identity) []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exact := r.exact[id]
	out := make([]*Definition, 0, len(exact)+len(r.wildcard))
	out = append(out, exact...)
	for _, def := range r.wildcard {
		if def.Matches(id) {
			out = append(out, def)
		}
	}
	slices.SortFunc(out, byAlertID)
	return out
}

// Get returns the live definition for an alert.
func (r *Registry) Get(alertID int64) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owner, ok := r.ownerOf[alertID]
	if !ok {
		return nil, false
	}
	part := r.owners[owner]
	idx, found := findAlert(part, alertID)
	if !found {
		return nil, false
	}
	return part[idx], true
}

// Len returns the number of live definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ownerOf)
}

// ActiveBatch returns up to quota definitions, sharing the quota evenly
// between owners that still have definitions left in the current sweep and
// visiting owners round-robin by ascending owner ID. A sweep returns every
// definition exactly once; a new sweep starts on the call after the previous
// one finished, so a batch at the end of a sweep may be short.
func (r *Registry) ActiveBatch(quota int) []*Definition {
	if quota <= 0 {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()

	if len(r.pendingOwnersLocked()) == 0 {
		clear(r.sweepLast)
	}

	out := make([]*Definition, 0, min(quota, len(r.ownerOf)))
	for len(out) < quota {
		pending := r.pendingOwnersLocked()
		if len(pending) == 0 {
			break
		}
		turn := (quota - len(out) + len(pending) - 1) / len(pending)
		for _, owner := range pending {
			if len(out) >= quota {
				break
			}
			out = r.takeLocked(owner, min(turn, quota-len(out)), out)
			r.nextOwner = owner + 1
		}
	}
	return out
}

// sweepStart returns the index in owner's partition where the sweep resumes.
func (r *Registry) sweepStart(owner int64) int {
	last, ok := r.sweepLast[owner]
	if !ok {
		return 0
	}
	idx, found := findAlert(r.owners[owner], last)
	if found {
		idx++
	}
	return idx
}

// pendingOwnersLocked lists owners with definitions left in the sweep,
// rotated to start at the round-robin cursor.
func (r *Registry) pendingOwnersLocked() []int64 {
	start, _ := slices.BinarySearch(r.ownerIDs, r.nextOwner)
	pending := make([]int64, 0, len(r.ownerIDs))
	for i := range r.ownerIDs {
		owner := r.ownerIDs[(start+i)%len(r.ownerIDs)]
		if r.sweepStart(owner) < len(r.owners[owner]) {
			pending = append(pending, owner)
		}
	}
	return pending
}

func (r *Registry) takeLocked(owner int64, n int, out []*Definition) []*Definition {
	part := r.owners[owner]
	idx := r.sweepStart(owner)
	end := min(idx+n, len(part))
	if idx >= end {
		return out
	}
	out = append(out, part[idx:end]...)
	r.sweepLast[owner] = part[end-1].AlertID
	return out
}
