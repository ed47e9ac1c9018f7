package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"companion/internal/dateutil"
	"companion/internal/model"
)

// Tasks

func (c *Client) ListTasks(ctx context.Context) ([]model.Task, error) {
	return list[model.Task](ctx, c, "/tasks", nil)
}

func (c *Client) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	if err := validTask(t); err != nil {
		return model.Task{}, err
	}
	return call[model.Task](ctx, c, http.MethodPost, "/tasks", t)
}

func (c *Client) UpdateTask(ctx context.Context, t model.Task) (model.Task, error) {
	if err := requireID(t.ID); err != nil {
		return model.Task{}, err
	}
	if err := validTask(t); err != nil {
		return model.Task{}, err
	}
	return call[model.Task](ctx, c, http.MethodPut, itemPath("/tasks", t.ID), t)
}

func (c *Client) ToggleTask(ctx context.Context, id string) (model.Task, error) {
	if err := requireID(id); err != nil {
		return model.Task{}, err
	}
	return call[model.Task](ctx, c, http.MethodPatch, itemPath("/tasks", id)+"/toggle", nil)
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	if err := requireID(id); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, itemPath("/tasks", id), nil, nil, nil)
}

func validTask(t model.Task) error {
	if strings.TrimSpace(t.Title) == "" {
		return invalid("title")
	}
	if t.Priority != 0 && !t.Priority.Valid() {
		return fmt.Errorf("%w: priority must be 1, 2 or 3", ErrValidation)
	}
	if t.ScheduledDate != "" {
		if _, err := time.Parse(dateutil.DateLayout, t.ScheduledDate); err != nil {
			return fmt.Errorf("%w: scheduledDate must be YYYY-MM-DD", ErrValidation)
		}
	}
	return nil
}

// Calendar events

// ListEvents returns events starting within [from, to).
func (c *Client) ListEvents(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	q := url.Values{
		"start": {from.UTC().Format(time.RFC3339)},
		"end":   {to.UTC().Format(time.RFC3339)},
	}
	return list[model.Event](ctx, c, "/calendar/events", q)
}

func (c *Client) CreateEvent(ctx context.Context, e model.Event) (model.Event, error) {
	if err := validEvent(e); err != nil {
		return model.Event{}, err
	}
	return call[model.Event](ctx, c, http.MethodPost, "/calendar/events", e)
}

func (c *Client) UpdateEvent(ctx context.Context, e model.Event) (model.Event, error) {
	if err := requireID(e.ID); err != nil {
		return model.Event{}, err
	}
	if err := validEvent(e); err != nil {
		return model.Event{}, err
	}
	return call[model.Event](ctx, c, http.MethodPut, itemPath("/calendar/events", e.ID), e)
}

func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	if err := requireID(id); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, itemPath("/calendar/events", id), nil, nil, nil)
}

// End before start is accepted; the display copes with it.
func validEvent(e model.Event) error {
	if strings.TrimSpace(e.Title) == "" {
		return invalid("title")
	}
	if e.StartDate.IsZero() {
		return invalid("startDate")
	}
	return nil
}

// MonthView fetches the server-computed day views of a month.
func (c *Client) MonthView(ctx context.Context, year, month int) (model.MonthView, error) {
	if month < 1 || month > 12 {
		return model.MonthView{}, fmt.Errorf("%w: month %d out of range", ErrValidation, month)
	}
	mv, err := call[model.MonthView](ctx, c, http.MethodGet, fmt.Sprintf("/calendar/month/%d/%d", year, month), nil)
	if err != nil {
		return model.MonthView{}, err
	}
	if mv.Year == 0 {
		mv.Year, mv.Month = year, month
	}
	return mv, nil
}

// DayView fetches one date's events and due tasks.
func (c *Client) DayView(ctx context.Context, date string) (model.CalendarDayView, error) {
	if _, err := time.Parse(dateutil.DateLayout, date); err != nil {
		return model.CalendarDayView{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
	}
	return call[model.CalendarDayView](ctx, c, http.MethodGet, "/calendar/day/"+date, nil)
}
