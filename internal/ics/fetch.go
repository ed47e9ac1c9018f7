package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"companion/internal/config"
	appLog "companion/internal/log"
)

const maxConcurrentFetches = 4

// Subscription is a read-only ICS feed shown on top of the backend calendar.
type Subscription struct {
	ID   string
	Name string
	URL  string
}

// FetchResult is one subscription's body, fresh or from the disk cache.
type FetchResult struct {
	Subscription Subscription
	Body         []byte
	FromCache    bool
}

// cacheMeta holds the validators of the last 200 answer for one URL.
type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads ICS feeds with conditional requests and keeps the last
// good body on disk so a failing feed still renders.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

func NewFetcher(cacheDir string, timeout time.Duration) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		cacheDir: cacheDir,
	}
}

// FetchAll fetches subscriptions concurrently. Failed subscriptions are
// logged and reported in the error slice; the rest are returned.
func (f *Fetcher) FetchAll(ctx context.Context, subs []Subscription) ([]FetchResult, []error) {
	var (
		mu      sync.Mutex
		results = make([]FetchResult, 0, len(subs))
		errs    []error
		g       errgroup.Group
	)
	g.SetLimit(maxConcurrentFetches)

	for _, sub := range subs {
		g.Go(func() error {
			res, err := f.FetchOne(ctx, sub)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				appLog.Error("ics fetch failed", err, "id", sub.ID, "url", redactURL(sub.URL))
				errs = append(errs, fmt.Errorf("ics: %s: %w", sub.ID, err))
				return nil
			}
			results = append(results, res)
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}

// FetchOne fetches a single subscription, sending If-None-Match and
// If-Modified-Since from the previous answer.
func (f *Fetcher) FetchOne(ctx context.Context, sub Subscription) (FetchResult, error) {
	if sub.URL == "" {
		return FetchResult{}, errors.New("subscription url is empty")
	}
	dir := f.cacheDirFor(sub.URL)
	meta, _ := loadMeta(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, "body.ics"))

	fallback := func(cause error) (FetchResult, error) {
		if len(cached) == 0 {
			return FetchResult{}, cause
		}
		appLog.Warn("ics fetch failed, using cached body", "id", sub.ID, "url", redactURL(sub.URL), "err", cause)
		return FetchResult{Subscription: sub, Body: cached, FromCache: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sub.URL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	req.Header.Set("Accept", "text/calendar")
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fallback(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fallback(err)
		}
		next := cacheMeta{
			URL:          sub.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    time.Now().UTC(),
		}
		if err := saveCache(dir, next, body); err != nil {
			appLog.Error("ics cache save failed", err, "id", sub.ID)
		}
		appLog.Debug("ics fetched", "id", sub.ID, "url", redactURL(sub.URL), "bytes", len(body))
		return FetchResult{Subscription: sub, Body: body}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return FetchResult{}, errors.New("304 Not Modified without a cached body")
		}
		return FetchResult{Subscription: sub, Body: cached, FromCache: true}, nil

	default:
		return fallback(errors.New(resp.Status))
	}
}

func (f *Fetcher) cacheDirFor(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadMeta(dir string) (cacheMeta, error) {
	var meta cacheMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(data, &meta)
	return meta, err
}

// saveCache writes the body before the metadata so the validators never
// describe a body that is not on disk.
func saveCache(dir string, meta cacheMeta, body []byte) error {
	if err := config.WriteFileAtomic(filepath.Join(dir, "body.ics"), body); err != nil {
		return err
	}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return config.WriteFileAtomic(filepath.Join(dir, "meta.json"), data)
}

// redactURL keeps scheme and host; feed paths and queries often embed
// private tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
