package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"companion/internal/model"
)

func itemPath(collection, id string) string {
	return collection + "/" + url.PathEscape(id)
}

func list[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var out []T
	if err := c.do(ctx, http.MethodGet, path, query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func call[T any](ctx context.Context, c *Client, method, path string, in any) (T, error) {
	var out T
	err := c.do(ctx, method, path, nil, in, &out)
	return out, err
}

func requireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return invalid("id")
	}
	return nil
}

// Notes

func (c *Client) ListNotes(ctx context.Context) ([]model.Note, error) {
	return list[model.Note](ctx, c, "/notes", nil)
}

func (c *Client) GetNote(ctx context.Context, id string) (model.Note, error) {
	if err := requireID(id); err != nil {
		return model.Note{}, err
	}
	return call[model.Note](ctx, c, http.MethodGet, itemPath("/notes", id), nil)
}

func (c *Client) CreateNote(ctx context.Context, n model.Note) (model.Note, error) {
	if strings.TrimSpace(n.Title) == "" {
		return model.Note{}, invalid("title")
	}
	return call[model.Note](ctx, c, http.MethodPost, "/notes", n)
}

func (c *Client) UpdateNote(ctx context.Context, n model.Note) (model.Note, error) {
	if err := requireID(n.ID); err != nil {
		return model.Note{}, err
	}
	if strings.TrimSpace(n.Title) == "" {
		return model.Note{}, invalid("title")
	}
	return call[model.Note](ctx, c, http.MethodPut, itemPath("/notes", n.ID), n)
}

func (c *Client) DeleteNote(ctx context.Context, id string) error {
	if err := requireID(id); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, itemPath("/notes", id), nil, nil, nil)
}

// Notebooks

func (c *Client) ListNotebooks(ctx context.Context) ([]model.Notebook, error) {
	return list[model.Notebook](ctx, c, "/notebooks", nil)
}

func (c *Client) CreateNotebook(ctx context.Context, nb model.Notebook) (model.Notebook, error) {
	if strings.TrimSpace(nb.Name) == "" {
		return model.Notebook{}, invalid("name")
	}
	return call[model.Notebook](ctx, c, http.MethodPost, "/notebooks", nb)
}

func (c *Client) UpdateNotebook(ctx context.Context, nb model.Notebook) (model.Notebook, error) {
	if err := requireID(nb.ID); err != nil {
		return model.Notebook{}, err
	}
	if strings.TrimSpace(nb.Name) == "" {
		return model.Notebook{}, invalid("name")
	}
	return call[model.Notebook](ctx, c, http.MethodPut, itemPath("/notebooks", nb.ID), nb)
}

func (c *Client) DeleteNotebook(ctx context.Context, id string) error {
	if err := requireID(id); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, itemPath("/notebooks", id), nil, nil, nil)
}

// Labels

func (c *Client) ListLabels(ctx context.Context) ([]model.Label, error) {
	return list[model.Label](ctx, c, "/labels", nil)
}

func (c *Client) CreateLabel(ctx context.Context, l model.Label) (model.Label, error) {
	if strings.TrimSpace(l.Name) == "" {
		return model.Label{}, invalid("name")
	}
	return call[model.Label](ctx, c, http.MethodPost, "/labels", l)
}

func (c *Client) UpdateLabel(ctx context.Context, l model.Label) (model.Label, error) {
	if err := requireID(l.ID); err != nil {
		return model.Label{}, err
	}
	if strings.TrimSpace(l.Name) == "" {
		return model.Label{}, invalid("name")
	}
	return call[model.Label](ctx, c, http.MethodPut, itemPath("/labels", l.ID), l)
}

func (c *Client) DeleteLabel(ctx context.Context, id string) error {
	if err := requireID(id); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, itemPath("/labels", id), nil, nil, nil)
}

// Links

func (c *Client) ListLinks(ctx context.Context) ([]model.Link, error) {
	return list[model.Link](ctx, c, "/links", nil)
}

func (c *Client) CreateLink(ctx context.Context, l model.Link) (model.Link, error) {
	if err := validLinkURL(l.URL); err != nil {
		return model.Link{}, err
	}
	return call[model.Link](ctx, c, http.MethodPost, "/links", l)
}

func (c *Client) UpdateLink(ctx context.Context, l model.Link) (model.Link, error) {
	if err := requireID(l.ID); err != nil {
		return model.Link{}, err
	}
	if err := validLinkURL(l.URL); err != nil {
		return model.Link{}, err
	}
	return call[model.Link](ctx, c, http.MethodPut, itemPath("/links", l.ID), l)
}

func (c *Client) DeleteLink(ctx context.Context, id string) error {
	if err := requireID(id); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, itemPath("/links", id), nil, nil, nil)
}

func validLinkURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return invalid("url")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return invalid("absolute http(s) url")
	}
	return nil
}

// Scratch-pad

func (c *Client) GetBlocNote(ctx context.Context) (model.BlocNote, error) {
	return call[model.BlocNote](ctx, c, http.MethodGet, "/bloc-note", nil)
}

func (c *Client) SaveBlocNote(ctx context.Context, content string) (model.BlocNote, error) {
	return call[model.BlocNote](ctx, c, http.MethodPut, "/bloc-note", map[string]string{"content": content})
}

// Weather

func (c *Client) Weather(ctx context.Context, city string) (model.Weather, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return model.Weather{}, invalid("city")
	}
	var out model.Weather
	err := c.do(ctx, http.MethodGet, "/weather", url.Values{"city": {city}}, nil, &out)
	return out, err
}
