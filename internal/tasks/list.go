package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "companion/internal/log"
	"companion/internal/model"
)

var (
	ErrEmptyTitle = errors.New("tasks: title is required")
	ErrNotFound   = errors.New("tasks: not found")
)

// provisionalPrefix marks IDs assigned locally before the backend answers.
const provisionalPrefix = "tmp-"

// Backend is the remote task API.
type Backend interface {
	ListTasks(ctx context.Context) ([]model.Task, error)
	CreateTask(ctx context.Context, t model.Task) (model.Task, error)
	UpdateTask(ctx context.Context, t model.Task) (model.Task, error)
	ToggleTask(ctx context.Context, id string) (model.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// MutationHook is told which instants a successful write touched, so month
// caches holding them can be invalidated.
type MutationHook func(ctx context.Context, at ...time.Time)

// List is the local copy of the user's tasks. Writes are applied locally
// first and rolled back if the backend refuses them.
type List struct {
	backend Backend
	onWrite MutationHook

	mu    sync.Mutex
	items []model.Task
}

func NewList(backend Backend, onWrite MutationHook) *List {
	return &List{backend: backend, onWrite: onWrite}
}

// Load replaces the local copy with the backend's.
func (l *List) Load(ctx context.Context) error {
	ts, err := l.backend.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("tasks: load: %w", err)
	}
	l.mu.Lock()
	l.items = append([]model.Task(nil), ts...)
	l.mu.Unlock()
	return nil
}

// Seed replaces the local copy with tasks fetched elsewhere, e.g. by the
// parallel start-up load.
func (l *List) Seed(ts []model.Task) {
	l.mu.Lock()
	l.items = append([]model.Task(nil), ts...)
	l.mu.Unlock()
}

// Tasks returns a snapshot of the local copy.
func (l *List) Tasks() []model.Task {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Task(nil), l.items...)
}

func (l *List) Get(id string) (model.Task, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexLocked(id)
	if i < 0 {
		return model.Task{}, false
	}
	return l.items[i], true
}

// Toggle flips completion locally, then asks the backend.
func (l *List) Toggle(ctx context.Context, id string) (model.Task, error) {
	l.mu.Lock()
	i := l.indexLocked(id)
	if i < 0 {
		l.mu.Unlock()
		return model.Task{}, ErrNotFound
	}
	before := l.items[i]
	l.items[i].Completed = !before.Completed
	l.mu.Unlock()

	saved, err := l.backend.ToggleTask(ctx, id)
	if err != nil {
		l.restore(id, before)
		appLog.Error("task toggle rolled back", err, "task_id", id)
		return before, fmt.Errorf("tasks: toggle %s: %w", id, err)
	}
	l.replace(id, saved)
	l.notify(ctx, before, saved)
	return saved, nil
}

// Create inserts a provisional task and swaps in the backend's copy.
func (l *List) Create(ctx context.Context, t model.Task) (model.Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return model.Task{}, ErrEmptyTitle
	}
	if t.Priority == 0 {
		t.Priority = model.PriorityMedium
	}

	tmpID := provisionalPrefix + uuid.NewString()
	provisional := t
	provisional.ID = tmpID
	l.mu.Lock()
	l.items = append(l.items, provisional)
	l.mu.Unlock()

	saved, err := l.backend.CreateTask(ctx, t)
	if err != nil {
		l.remove(tmpID)
		return model.Task{}, fmt.Errorf("tasks: create: %w", err)
	}
	l.replace(tmpID, saved)
	l.notify(ctx, saved)
	return saved, nil
}

// Update applies t locally and rolls back if the backend refuses it.
func (l *List) Update(ctx context.Context, t model.Task) (model.Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return model.Task{}, ErrEmptyTitle
	}
	l.mu.Lock()
	i := l.indexLocked(t.ID)
	if i < 0 {
		l.mu.Unlock()
		return model.Task{}, ErrNotFound
	}
	before := l.items[i]
	l.items[i] = t
	l.mu.Unlock()

	saved, err := l.backend.UpdateTask(ctx, t)
	if err != nil {
		l.restore(t.ID, before)
		return before, fmt.Errorf("tasks: update %s: %w", t.ID, err)
	}
	l.replace(t.ID, saved)
	l.notify(ctx, before, saved)
	return saved, nil
}

// Delete removes the task locally and puts it back at the same position if
// the backend refuses.
func (l *List) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	i := l.indexLocked(id)
	if i < 0 {
		l.mu.Unlock()
		return ErrNotFound
	}
	before := l.items[i]
	l.items = append(l.items[:i:i], l.items[i+1:]...)
	l.mu.Unlock()

	if err := l.backend.DeleteTask(ctx, id); err != nil {
		l.mu.Lock()
		if i > len(l.items) {
			i = len(l.items)
		}
		l.items = append(l.items[:i], append([]model.Task{before}, l.items[i:]...)...)
		l.mu.Unlock()
		return fmt.Errorf("tasks: delete %s: %w", id, err)
	}
	l.notify(ctx, before)
	return nil
}

func (l *List) indexLocked(id string) int {
	for i, t := range l.items {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (l *List) replace(id string, t model.Task) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := l.indexLocked(id); i >= 0 {
		l.items[i] = t
	}
}

func (l *List) restore(id string, t model.Task) {
	l.replace(id, t)
}

func (l *List) remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := l.indexLocked(id); i >= 0 {
		l.items = append(l.items[:i:i], l.items[i+1:]...)
	}
}

func (l *List) notify(ctx context.Context, ts ...model.Task) {
	if l.onWrite == nil {
		return
	}
	var at []time.Time
	for _, t := range ts {
		if t.DueDate != nil {
			at = append(at, *t.DueDate)
		}
	}
	if len(at) > 0 {
		l.onWrite(ctx, at...)
	}
}
