package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelWarn)
	defer SetLevel(LevelInfo)

	Info("hidden", "k", "v")
	Warn("shown", "month", "2025-01")
	Error("failed", errors.New("boom"), "path", "/tasks")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected INFO line to be filtered, got %q", out)
	}
	if !strings.Contains(out, "[WARN] shown month=2025-01") {
		t.Fatalf("expected warn line, got %q", out)
	}
	if !strings.Contains(out, "[ERROR] failed err=boom path=/tasks") {
		t.Fatalf("expected error line, got %q", out)
	}
}

func TestValuesWithSpacesAreQuoted(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelDebug)
	defer SetLevel(LevelInfo)

	Debug("msg", "title", "team sync")
	if !strings.Contains(buf.String(), `title="team sync"`) {
		t.Fatalf("expected quoted value, got %q", buf.String())
	}
}

func TestWarnOnce(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelInfo)

	WarnOnce("identity-key", "no identity key")
	WarnOnce("identity-key", "no identity key")
	if n := strings.Count(buf.String(), "no identity key"); n != 1 {
		t.Fatalf("expected exactly one warning, got %d", n)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
