package capture

import (
	"context"
	"testing"

	"companion/internal/config"
)

func TestFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Listen = "127.0.0.1:9999"
	cfg.Snapshot.Path = "/tmp/preview.png"
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}

	opts := FromConfig(cfg)
	if opts.URL != "http://127.0.0.1:9999/calendar" {
		t.Fatalf("unexpected URL %q", opts.URL)
	}
	if opts.Username != "admin" || opts.Password != "secret" || opts.OutputPath != "/tmp/preview.png" {
		t.Fatalf("unexpected options %+v", opts)
	}
	if err := opts.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if opts.Width != DefaultWidth || opts.Height != DefaultHeight || opts.Timeout != DefaultTimeout {
		t.Fatalf("expected defaults, got %+v", opts)
	}
}

func TestSnapshotRequiresURLAndPath(t *testing.T) {
	if err := SnapshotPNG(context.Background(), Options{OutputPath: "x.png"}); err == nil {
		t.Fatalf("expected error without URL")
	}
	if err := SnapshotPNG(context.Background(), Options{URL: "http://127.0.0.1/calendar"}); err == nil {
		t.Fatalf("expected error without output path")
	}
}

func TestBasicAuthHeader(t *testing.T) {
	if got := basicAuth("admin", "secret"); got != "Basic YWRtaW46c2VjcmV0" {
		t.Fatalf("unexpected header %q", got)
	}
}
