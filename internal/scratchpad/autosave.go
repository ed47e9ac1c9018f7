// Package scratchpad keeps the user's bloc-note and saves it after the
// user stops typing.
package scratchpad

import (
	"context"
	"sync"
	"time"

	appLog "companion/internal/log"
	"companion/internal/model"
)

const (
	DefaultDelay = 2 * time.Second
	saveTimeout  = 15 * time.Second
)

// Saver persists the scratch-pad content.
type Saver interface {
	SaveBlocNote(ctx context.Context, content string) (model.BlocNote, error)
}

type Timer interface {
	Stop() bool
}

type AfterFunc func(d time.Duration, f func()) Timer

// State is what a view shows next to the editor.
type State struct {
	Content   string    `json:"content"`
	Dirty     bool      `json:"dirty"`
	Saving    bool      `json:"saving"`
	LastSaved time.Time `json:"lastSaved,omitempty"`
	Err       string    `json:"error,omitempty"`
}

// Autosaver debounces edits: every Edit restarts the delay and only the
// last scheduled save runs, with the content current at that moment.
type Autosaver struct {
	saver     Saver
	delay     time.Duration
	afterFunc AfterFunc
	now       func() time.Time

	// saves are serialized so an older save never lands after a newer one.
	saveMu sync.Mutex

	mu     sync.Mutex
	st     State
	timer  Timer
	gen    uint64
	closed bool
}

type Option func(*Autosaver)

func WithDelay(d time.Duration) Option {
	return func(a *Autosaver) {
		if d > 0 {
			a.delay = d
		}
	}
}

func WithAfterFunc(f AfterFunc) Option {
	return func(a *Autosaver) { a.afterFunc = f }
}

func WithNow(now func() time.Time) Option {
	return func(a *Autosaver) { a.now = now }
}

func New(saver Saver, opts ...Option) *Autosaver {
	a := &Autosaver{
		saver: saver,
		delay: DefaultDelay,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		now: time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Reset replaces the content with the server copy without scheduling a save.
func (a *Autosaver) Reset(note model.BlocNote) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
	a.st = State{Content: note.Content, LastSaved: note.UpdatedAt}
}

// Edit records new content and restarts the save delay.
func (a *Autosaver) Edit(content string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.st.Content = content
	a.st.Dirty = true
	a.stopLocked()
	gen := a.gen
	a.timer = a.afterFunc(a.delay, func() { a.fire(gen) })
}

func (a *Autosaver) fire(gen uint64) {
	a.mu.Lock()
	stale := gen != a.gen || a.closed
	a.mu.Unlock()
	if stale {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := a.save(ctx); err != nil {
		appLog.Error("scratch-pad autosave failed", err)
	}
}

// Flush cancels the pending delay and saves now if there are unsaved edits.
func (a *Autosaver) Flush(ctx context.Context) error {
	a.mu.Lock()
	a.stopLocked()
	a.mu.Unlock()
	return a.save(ctx)
}

// Close cancels the pending save. Unsaved edits are dropped; call Flush
// first to keep them.
func (a *Autosaver) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.stopLocked()
}

func (a *Autosaver) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.st
}

func (a *Autosaver) save(ctx context.Context) error {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	a.mu.Lock()
	if !a.st.Dirty {
		a.mu.Unlock()
		return nil
	}
	content := a.st.Content
	a.st.Dirty = false
	a.st.Saving = true
	a.mu.Unlock()

	saved, err := a.saver.SaveBlocNote(ctx, content)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.st.Saving = false
	if err != nil {
		// Keep the edit pending so the next Edit or Flush retries it.
		a.st.Dirty = true
		a.st.Err = err.Error()
		return err
	}
	a.st.Err = ""
	a.st.LastSaved = saved.UpdatedAt
	if a.st.LastSaved.IsZero() {
		a.st.LastSaved = a.now()
	}
	appLog.Debug("scratch-pad saved", "bytes", len(content))
	return nil
}

func (a *Autosaver) stopLocked() {
	a.gen++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}
