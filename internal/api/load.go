package api

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	appLog "companion/internal/log"
	"companion/internal/model"
)

// Initial is the result of the parallel start-up fetch. Each part is
// independent: a failed part leaves its field empty and its error in Errs.
type Initial struct {
	Notes     []model.Note
	Links     []model.Link
	Tasks     []model.Task
	Notebooks []model.Notebook
	Labels    []model.Label
	BlocNote  model.BlocNote

	Errs map[string]error
}

// LoadAll fetches notes, links, tasks, notebooks, labels and the
// scratch-pad concurrently. A failure in one part does not cancel the
// others. The returned error is the first failure, if any.
func (c *Client) LoadAll(ctx context.Context) (Initial, error) {
	var (
		out Initial
		mu  sync.Mutex
		g   errgroup.Group
	)
	out.Errs = map[string]error{}

	part := func(name string, fetch func() error) {
		g.Go(func() error {
			err := fetch()
			if err != nil {
				appLog.Error("initial load failed", err, "part", name)
				mu.Lock()
				out.Errs[name] = err
				mu.Unlock()
			}
			return err
		})
	}

	// Each closure writes only its own field.
	part("notes", func() (err error) { out.Notes, err = c.ListNotes(ctx); return })
	part("links", func() (err error) { out.Links, err = c.ListLinks(ctx); return })
	part("tasks", func() (err error) { out.Tasks, err = c.ListTasks(ctx); return })
	part("notebooks", func() (err error) { out.Notebooks, err = c.ListNotebooks(ctx); return })
	part("labels", func() (err error) { out.Labels, err = c.ListLabels(ctx); return })
	part("bloc-note", func() (err error) { out.BlocNote, err = c.GetBlocNote(ctx); return })

	err := g.Wait()
	return out, err
}
