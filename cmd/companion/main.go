package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"companion/internal/api"
	"companion/internal/calendar"
	"companion/internal/capture"
	"companion/internal/config"
	"companion/internal/ics"
	appLog "companion/internal/log"
	"companion/internal/scratchpad"
	"companion/internal/session"
	"companion/internal/tasks"
	"companion/internal/web"
)

const (
	version = "0.1.0"

	// envPassword carries the -login password so it never shows up in ps.
	envPassword = "COMPANION_PASSWORD"

	shutdownTimeout = 10 * time.Second
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	snapshot   bool
	login      string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv(os.LookupEnv)
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("companion starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"api_url", conf.APIURL,
		"timezone", conf.Timezone,
		"week_start", conf.WeekStart,
		"refresh", conf.RefreshCron,
		"subscriptions", len(conf.Subscriptions),
		"snapshot", conf.Snapshot.Enabled,
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("companion failed", err)
		os.Exit(1)
	}
	appLog.Info("companion exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./companion.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Print the current month grid and exit")
	flag.BoolVar(&cfg.snapshot, "snapshot", false, "Write a PNG of /calendar and exit")
	flag.StringVar(&cfg.login, "login", "", "Sign in with this email ("+envPassword+" holds the password) and exit")

	flag.Parse()

	return cfg
}

// app is everything the commands share.
type app struct {
	conf     *config.Config
	session  *session.Session
	client   *api.Client
	overlay  *ics.Overlay
	calendar *calendar.Controller
	tasks    *tasks.List
	scratch  *scratchpad.Autosaver
	server   *web.Server
}

func build(conf *config.Config) (*app, error) {
	loc, err := conf.Location()
	if err != nil {
		appLog.Warn("unknown timezone, using local time", "timezone", conf.Timezone, "err", err)
	}

	sess, err := session.New(session.Config{
		Path:         conf.SessionPath,
		PublicKeyPEM: conf.IdentityPublicKey,
		Skew:         conf.RefreshSkew,
	})
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	client := api.New(conf.APIURL, sess, conf.HTTPTimeout)

	subs := make([]ics.Subscription, 0, len(conf.Subscriptions))
	for i, s := range conf.Subscriptions {
		id := s.ID
		if id == "" {
			id = fmt.Sprintf("sub%d", i+1)
		}
		subs = append(subs, ics.Subscription{ID: id, Name: s.Name, URL: s.URL})
	}
	var overlay *ics.Overlay
	var overlaySource calendar.OverlaySource
	if len(subs) > 0 {
		overlay = ics.NewOverlay(ics.NewFetcher(conf.CacheDir, conf.HTTPTimeout), subs, loc, conf.MonthCacheTTL)
		overlaySource = overlay
	}

	ctrl := calendar.NewController(calendar.ControllerConfig{
		Source:  client,
		Overlay: overlaySource,
		Cache:   calendar.NewMonthCache(conf.MonthCacheTTL),
		Grid: calendar.GridOptions{
			SundayFirst: conf.WeekStart == "sunday",
			Location:    loc,
		},
	})

	a := &app{
		conf:     conf,
		session:  sess,
		client:   client,
		overlay:  overlay,
		calendar: ctrl,
		scratch:  scratchpad.New(client, scratchpad.WithDelay(conf.AutosaveDelay)),
	}
	a.tasks = tasks.NewList(client, func(ctx context.Context, at ...time.Time) {
		if err := ctrl.Mutated(ctx, at...); err != nil {
			appLog.Error("calendar reload after task write failed", err)
		}
		if a.server != nil {
			a.server.InvalidateFeeds()
		}
	})
	a.server = web.NewServer(web.Deps{
		Config:   conf,
		Calendar: ctrl,
		Events:   client,
		Tasks:    a.tasks,
		Scratch:  a.scratch,
		Session:  sess,
	})

	sess.OnExpired(func() {
		appLog.Warn("session expired; sign in again with -login")
	})
	return a, nil
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	a, err := build(conf)
	if err != nil {
		return err
	}
	defer a.session.Close()

	switch {
	case flags.login != "":
		return a.login(ctx, flags.login)
	case flags.once:
		return a.printMonth(ctx, os.Stdout)
	case flags.snapshot:
		return a.snapshotOnce(ctx)
	}
	return a.serve(ctx)
}

func (a *app) login(ctx context.Context, email string) error {
	password, ok := os.LookupEnv(envPassword)
	if !ok || password == "" {
		return fmt.Errorf("login: %s is not set", envPassword)
	}
	user, err := a.client.Login(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	appLog.Info("signed in", "user", user.Username, "expires_at", a.session.ExpiresAt().Format(time.RFC3339))
	return nil
}

// loadInitial seeds the local task list and scratch-pad. Failed parts stay
// empty; LoadAll has already logged them.
func (a *app) loadInitial(ctx context.Context) {
	initial, err := a.client.LoadAll(ctx)
	if errors.Is(err, api.ErrSessionExpired) {
		appLog.Warn("not signed in; run with -login first")
		return
	}
	if _, failed := initial.Errs["tasks"]; !failed {
		a.tasks.Seed(initial.Tasks)
	}
	if _, failed := initial.Errs["bloc-note"]; !failed {
		a.scratch.Reset(initial.BlocNote)
	}
	appLog.Info("initial load done",
		"notes", len(initial.Notes),
		"links", len(initial.Links),
		"tasks", len(initial.Tasks),
		"notebooks", len(initial.Notebooks),
		"labels", len(initial.Labels),
	)
}

// refresh is the periodic job: subscriptions, then the displayed month.
func (a *app) refresh(ctx context.Context) {
	if a.overlay != nil {
		if err := a.overlay.Refresh(ctx); err != nil {
			appLog.Error("subscription refresh failed", err)
		}
	}
	if err := a.calendar.Refresh(ctx); err != nil {
		appLog.Error("calendar refresh failed", err)
		return
	}
	a.server.InvalidateFeeds()
	if a.conf.Snapshot.Enabled {
		if err := capture.SnapshotPNG(ctx, capture.FromConfig(a.conf)); err != nil {
			appLog.Error("calendar snapshot failed", err)
		}
	}
}

func (a *app) serve(ctx context.Context) error {
	a.loadInitial(ctx)

	sched := cron.New(cron.WithLocation(a.calendar.Location()))
	if _, err := sched.AddFunc(a.conf.RefreshCron, func() {
		jobCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		a.refresh(jobCtx)
	}); err != nil {
		return fmt.Errorf("refresh schedule %q: %w", a.conf.RefreshCron, err)
	}
	sched.Start()

	serveErr := a.server.Serve(ctx)

	<-sched.Stop().Done()

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.scratch.Flush(flushCtx); err != nil {
		appLog.Error("scratch-pad flush on shutdown failed", err)
	}
	a.scratch.Close()

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return nil
}

// snapshotOnce serves the page just long enough for Chromium to capture it.
func (a *app) snapshotOnce(ctx context.Context) error {
	srvCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Serve(srvCtx) }()

	if err := capture.SnapshotPNG(ctx, capture.FromConfig(a.conf)); err != nil {
		return err
	}
	cancel()
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// printMonth writes the current month as a plain-text grid.
func (a *app) printMonth(ctx context.Context, w io.Writer) error {
	grid, err := a.calendar.View(ctx, calendar.FilterAll)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n\n", grid.Title)
	for _, d := range grid.Weekdays {
		fmt.Fprintf(w, "%-6.3s", d)
	}
	fmt.Fprintln(w)
	for _, week := range grid.Weeks() {
		for _, c := range week {
			mark := " "
			switch {
			case c.IsToday:
				mark = "*"
			case c.TotalItems > 0:
				mark = "."
			}
			if c.IsCurrentMonth {
				fmt.Fprintf(w, "%2d%s   ", c.Day, mark)
			} else {
				fmt.Fprint(w, "      ")
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w)
	for _, c := range grid.Cells {
		if !c.IsCurrentMonth || len(c.Items) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s\n", c.Date)
		for _, it := range c.Items {
			fmt.Fprintf(w, "  [%s] %s\n", it.Type, it.Label)
		}
		if c.Overflow != "" {
			fmt.Fprintf(w, "  %s\n", c.Overflow)
		}
	}
	return nil
}
