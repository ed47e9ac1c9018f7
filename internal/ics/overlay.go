package ics

import (
	"context"
	"errors"
	"sync"
	"time"

	appLog "companion/internal/log"
	"companion/internal/model"
)

// Overlay serves events from the configured subscriptions. Parsed feeds are
// kept in memory and refetched when older than maxAge or on Refresh.
type Overlay struct {
	fetcher *Fetcher
	subs    []Subscription
	loc     *time.Location
	maxAge  time.Duration
	now     func() time.Time

	refreshMu sync.Mutex

	mu       sync.RWMutex
	entries  map[string][]Entry
	loadedAt time.Time
}

func NewOverlay(fetcher *Fetcher, subs []Subscription, loc *time.Location, maxAge time.Duration) *Overlay {
	if loc == nil {
		loc = time.Local
	}
	return &Overlay{
		fetcher: fetcher,
		subs:    subs,
		loc:     loc,
		maxAge:  maxAge,
		now:     time.Now,
		entries: make(map[string][]Entry),
	}
}

func (o *Overlay) Subscriptions() []Subscription {
	return append([]Subscription(nil), o.subs...)
}

// Refresh refetches every subscription. A feed that fails keeps its
// previous entries.
func (o *Overlay) Refresh(ctx context.Context) error {
	if len(o.subs) == 0 {
		return nil
	}
	o.refreshMu.Lock()
	defer o.refreshMu.Unlock()

	results, errs := o.fetcher.FetchAll(ctx, o.subs)
	parsed := make(map[string][]Entry, len(results))
	for _, res := range results {
		entries, err := Parse(res.Subscription, res.Body, o.loc)
		if err != nil {
			appLog.Error("ics parse failed", err, "id", res.Subscription.ID)
			errs = append(errs, err)
			continue
		}
		parsed[res.Subscription.ID] = entries
	}

	o.mu.Lock()
	for id, entries := range parsed {
		o.entries[id] = entries
	}
	o.loadedAt = o.now()
	o.mu.Unlock()

	appLog.Info("ics overlay refreshed", "subscriptions", len(o.subs), "ok", len(parsed))
	return errors.Join(errs...)
}

func (o *Overlay) stale() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.loadedAt.IsZero() || (o.maxAge > 0 && o.now().Sub(o.loadedAt) > o.maxAge)
}

// Events returns subscription events starting in [from, to).
func (o *Overlay) Events(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	if len(o.subs) == 0 {
		return nil, nil
	}
	if o.stale() {
		if err := o.Refresh(ctx); err != nil {
			appLog.Warn("ics overlay refresh incomplete", "err", err)
		}
	}

	o.mu.RLock()
	var all []Entry
	for _, entries := range o.entries {
		all = append(all, entries...)
	}
	o.mu.RUnlock()

	return Expand(all, ExpandOptions{From: from, To: to, Location: o.loc})
}
