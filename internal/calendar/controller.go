package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"companion/internal/dateutil"
	appLog "companion/internal/log"
	"companion/internal/model"
)

// MonthSource fetches the backend month view.
type MonthSource interface {
	MonthView(ctx context.Context, year, month int) (model.MonthView, error)
}

// OverlaySource yields read-only events (ICS subscriptions) in [from, to).
type OverlaySource interface {
	Events(ctx context.Context, from, to time.Time) ([]model.Event, error)
}

// ControllerConfig wires a Controller.
type ControllerConfig struct {
	Source  MonthSource
	Overlay OverlaySource // optional
	Cache   *MonthCache   // optional; an unbounded cache is created if nil
	Grid    GridOptions
	Now     func() time.Time
}

// Controller holds the calendar navigation state and keeps the displayed
// month loaded. Loads are guarded by the month cache; concurrent loads of the
// same month share one request.
type Controller struct {
	src     MonthSource
	overlay OverlaySource
	cache   *MonthCache
	grid    GridOptions
	now     func() time.Time

	mu  sync.Mutex
	nav Navigator

	loads singleflight.Group
}

func NewController(cfg ControllerConfig) *Controller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Cache == nil {
		cfg.Cache = NewMonthCache(0)
	}
	if cfg.Grid.Location == nil {
		cfg.Grid.Location = time.Local
	}
	return &Controller{
		src:     cfg.Source,
		overlay: cfg.Overlay,
		cache:   cfg.Cache,
		grid:    cfg.Grid,
		now:     cfg.Now,
		nav:     NewNavigator(cfg.Now().In(cfg.Grid.Location)),
	}
}

// Current returns the displayed month.
func (c *Controller) Current() Navigator {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nav
}

func (c *Controller) Previous(ctx context.Context) error {
	return c.transition(ctx, func(n Navigator) (Navigator, error) { return n.Previous(), nil })
}

func (c *Controller) Next(ctx context.Context) error {
	return c.transition(ctx, func(n Navigator) (Navigator, error) { return n.Next(), nil })
}

func (c *Controller) Today(ctx context.Context) error {
	now := c.now().In(c.grid.Location)
	return c.transition(ctx, func(n Navigator) (Navigator, error) { return n.Today(now), nil })
}

func (c *Controller) GoTo(ctx context.Context, month, year int) error {
	return c.transition(ctx, func(n Navigator) (Navigator, error) { return n.GoTo(month, year) })
}

func (c *Controller) transition(ctx context.Context, step func(Navigator) (Navigator, error)) error {
	c.mu.Lock()
	next, err := step(c.nav)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.nav = next
	c.mu.Unlock()

	_, err = c.load(ctx, next.Year, next.Month)
	return err
}

// Mutated must be called after any create, update or delete of an event or
// task. Every month touched by the given instants is invalidated; if the
// displayed month is among them it is refetched right away.
func (c *Controller) Mutated(ctx context.Context, at ...time.Time) error {
	current := c.Current()
	reload := false
	for _, t := range at {
		if t.IsZero() {
			continue
		}
		key := dateutil.MonthKeyOf(t.In(c.grid.Location))
		c.cache.Invalidate(key)
		c.loads.Forget(key)
		if key == current.Key() {
			reload = true
		}
	}
	if !reload {
		return nil
	}
	_, err := c.load(ctx, current.Year, current.Month)
	return err
}

// CachedEvent finds an event by ID among the months already loaded. Writes
// use it to learn which month an event sat in before it moved or went away.
func (c *Controller) CachedEvent(id string) (model.Event, bool) {
	for _, mv := range c.cache.Views() {
		for _, d := range mv.Days {
			for _, ev := range d.Events {
				if ev.ID == id {
					return ev, true
				}
			}
		}
	}
	return model.Event{}, false
}

// Refresh drops the displayed month and loads it again.
func (c *Controller) Refresh(ctx context.Context) error {
	current := c.Current()
	c.cache.Invalidate(current.Key())
	c.loads.Forget(current.Key())
	_, err := c.load(ctx, current.Year, current.Month)
	return err
}

// View returns the display grid of the current month.
func (c *Controller) View(ctx context.Context, f Filter) (MonthGrid, error) {
	current := c.Current()
	return c.ViewMonth(ctx, current.Year, current.Month, f)
}

// ViewMonth returns the display grid of any month without moving the
// navigator.
func (c *Controller) ViewMonth(ctx context.Context, year, month int, f Filter) (MonthGrid, error) {
	if month < 1 || month > 12 {
		return MonthGrid{}, ErrInvalidMonth
	}
	mv, err := c.load(ctx, year, month)
	if err != nil {
		return MonthGrid{}, err
	}
	opts := c.grid
	opts.Today = c.now()
	return BuildMonthGrid(mv, f, opts), nil
}

// Location is the zone dates are computed in.
func (c *Controller) Location() *time.Location {
	return c.grid.Location
}

// Month returns the (cached) month view for year/month without moving the
// navigator.
func (c *Controller) Month(ctx context.Context, year, month int) (model.MonthView, error) {
	if month < 1 || month > 12 {
		return model.MonthView{}, ErrInvalidMonth
	}
	return c.load(ctx, year, month)
}

// Day returns the grouped detail of a date, loading its month if needed.
func (c *Controller) Day(ctx context.Context, key string) (DayDetail, error) {
	t, err := dateutil.ParseDateKey(key, c.grid.Location)
	if err != nil {
		return DayDetail{}, err
	}
	mv, err := c.load(ctx, t.Year(), int(t.Month()))
	if err != nil {
		return DayDetail{}, err
	}
	day, ok := mv.DayIndex()[key]
	if !ok {
		day = model.CalendarDayView{Date: key}
	}
	return Detail(day), nil
}

func (c *Controller) load(ctx context.Context, year, month int) (model.MonthView, error) {
	key := dateutil.MonthKey(year, month)
	if mv, ok := c.cache.Get(key); ok {
		return mv, nil
	}

	gen := c.cache.Generation(key)
	v, err, _ := c.loads.Do(key, func() (any, error) {
		// Callers joining this flight must not fail because the first one left.
		ctx := context.WithoutCancel(ctx)
		appLog.Debug("calendar month fetch", "month", key)
		mv, err := c.src.MonthView(ctx, year, month)
		if err != nil {
			return model.MonthView{}, fmt.Errorf("calendar: load %s: %w", key, err)
		}
		mv.Year, mv.Month = year, month

		if c.overlay != nil {
			from, to := dateutil.MonthBounds(year, month, c.grid.Location)
			events, oerr := c.overlay.Events(ctx, from, to)
			if oerr != nil {
				// Subscriptions are decorative; the backend month still shows.
				appLog.Error("calendar overlay failed", oerr, "month", key)
			} else {
				mv = MergeOverlay(mv, events, c.grid.Location)
			}
		}

		if !c.cache.PutIfCurrent(key, mv, gen) {
			appLog.Debug("calendar month invalidated during fetch", "month", key)
		}
		return mv, nil
	})
	if err != nil {
		return model.MonthView{}, err
	}
	return v.(model.MonthView), nil
}
