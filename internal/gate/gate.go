// Package gate serialises video processing: one job per user, one job
// machine-wide, and album deduplication so a media group converts only
// its first part.
package gate

import (
	"context"
	"sync"
	"time"
)

// DefaultGroupTTL is how long a media group is remembered.
const DefaultGroupTTL = 5 * time.Minute

type groupEntry struct {
	firstPartID int64
	expires     time.Time
}

// Gate coordinates the per-user try-locks, the global processing slot and
// the media-group dedup table.
type Gate struct {
	mu       sync.Mutex
	userBusy map[int64]struct{}
	groups   map[string]groupEntry

	// globalSlot is a one-slot semaphore.
	globalSlot chan struct{}

	groupTTL time.Duration
	now      func() time.Time
	schedule func(d time.Duration, fn func())
}

// New creates a Gate with the given media-group TTL.
func New(groupTTL time.Duration) *Gate {
	if groupTTL <= 0 {
		groupTTL = DefaultGroupTTL
	}
	return &Gate{
		userBusy:   make(map[int64]struct{}),
		groups:     make(map[string]groupEntry),
		globalSlot: make(chan struct{}, 1),
		groupTTL:   groupTTL,
		now:        time.Now,
		schedule:   func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
	}
}

// WithClock overrides the time source and timer scheduling, for tests.
func (g *Gate) WithClock(now func() time.Time, schedule func(time.Duration, func())) *Gate {
	g.now = now
	g.schedule = schedule
	return g
}

// TryAcquireUser attempts to claim the per-user slot without blocking.
// On success it returns a release func; on failure the user already has
// a video in flight.
func (g *Gate) TryAcquireUser(userID int64) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.userBusy[userID]; busy {
		return nil, false
	}
	g.userBusy[userID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.userBusy, userID)
			g.mu.Unlock()
		})
	}, true
}

// AcquireGlobal claims the machine-wide processing slot, blocking until it
// is free or ctx is done. If the slot is occupied, onQueued is invoked
// exactly once before waiting.
func (g *Gate) AcquireGlobal(ctx context.Context, onQueued func()) (release func(), err error) {
	select {
	case g.globalSlot <- struct{}{}:
	default:
		if onQueued != nil {
			onQueued()
		}
		select {
		case g.globalSlot <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-g.globalSlot })
	}, nil
}

// NoteGroupPart records a media-group part. The first part of a group is
// accepted; later parts are rejected as duplicates. Re-delivery of the
// first part stays accepted. Entries expire after the group TTL.
func (g *Gate) NoteGroupPart(groupID string, partID int64) (first bool, firstPartID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if e, ok := g.groups[groupID]; ok {
		return partID == e.firstPartID, e.firstPartID
	}

	g.groups[groupID] = groupEntry{
		firstPartID: partID,
		expires:     g.now().Add(g.groupTTL),
	}
	g.schedule(g.groupTTL, func() { g.expireGroup(groupID) })
	return true, partID
}

// expireGroup drops the group entry once its TTL has elapsed, rescheduling
// if the clock says it is still live.
func (g *Gate) expireGroup(groupID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.groups[groupID]
	if !ok {
		return
	}
	if remaining := e.expires.Sub(g.now()); remaining > 0 {
		g.schedule(remaining, func() { g.expireGroup(groupID) })
		return
	}
	delete(g.groups, groupID)
}
