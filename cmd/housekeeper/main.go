// Package main is the entry point for the house-keeper server.
//
// house-keeper tracks what is stored where in a house: a tree of areas per
// house, kept as JSON documents in a data directory and backed up daily.
// Configuration is read from CLI flags, HOUSE_KEEPER_* environment variables,
// a .env file in the data directory, and server_config.json (for JWT secret,
// quotas and rate limits).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/zheng93775/house-keeper/internal/backup"
	"github.com/zheng93775/house-keeper/internal/docstore"
	"github.com/zheng93775/house-keeper/internal/server"
	"github.com/zheng93775/house-keeper/internal/server/handlers"
	"github.com/zheng93775/house-keeper/internal/server/ipgeo"
	"github.com/zheng93775/house-keeper/internal/server/ratelimit"
	"github.com/zheng93775/house-keeper/internal/storage"
)

const envPrefix = "HOUSE_KEEPER_"

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "housekeeper: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	httpAddr := flag.String("http", "localhost:8080", "Address to listen on (e.g., localhost:8080, :8080, 0.0.0.0:8080). Use 0.0.0.0:port to listen on all interfaces.")
	dataDir := flag.String("data-dir", "./data", "Data directory")
	backupDir := flag.String("backup-dir", "", "Backup directory (default: <data-dir>/../backup)")
	staticDir := flag.String("static-dir", "", "Directory of static web files to serve on / (optional)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	backupInterval := flag.Duration("backup-interval", time.Hour, "Interval between full backup runs")
	backupGit := flag.Bool("backup-git", false, "Commit every backup into a git repository in the backup directory")
	geoDB := flag.String("geo-db", "", "Path to MaxMind MMDB file for IP geolocation (optional)")
	secureCookies := flag.Bool("secure-cookies", false, "Mark the session cookie Secure (when served over TLS)")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	if *version {
		printVersion()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			// Drop localhost IPs.
			if a.Key == "ip" {
				if v := a.Value.String(); v == "127.0.0.1" || v == "::1" {
					return slog.Attr{}
				}
			}
			skip := false
			switch t := a.Value.Any().(type) {
			case string:
				skip = t == ""
			case bool:
				skip = !t
			case uint64:
				skip = t == 0
			case int64:
				skip = t == 0
			case float64:
				skip = t == 0
			case time.Time:
				skip = t.IsZero()
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	// The .env file lives in the data directory, so only the environment can
	// override the data directory itself.
	osLookup := func(name string) string {
		return os.Getenv(envPrefix + name)
	}
	if !set["data-dir"] {
		if v := envValue("data-dir", osLookup); v != "" {
			*dataDir = v
		}
	}
	if err := os.MkdirAll(*dataDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	env, err := loadDotEnv(*dataDir)
	if err != nil {
		return err
	}
	lookup := func(name string) string {
		if v := osLookup(name); v != "" {
			return v
		}
		return env[name]
	}
	if err := applyEnv(flag.CommandLine, set, lookup); err != nil {
		return err
	}

	switch *logLevel {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", *logLevel)
	}

	// Normalize addr: ":8080" becomes "localhost:8080"
	addr := *httpAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	if *backupDir == "" {
		*backupDir = filepath.Join(filepath.Dir(filepath.Clean(*dataDir)), "backup")
	}

	serverCfg, err := storage.LoadServerConfig(*dataDir)
	if err != nil {
		return fmt.Errorf("failed to load server_config.json: %w", err)
	}

	store, err := docstore.New(*dataDir)
	if err != nil {
		return fmt.Errorf("failed to open data directory: %w", err)
	}
	userService, err := storage.NewUserService(store, serverCfg.Quotas.MaxUsers)
	if err != nil {
		return fmt.Errorf("failed to initialize user service: %w", err)
	}
	houseService, err := storage.NewHouseService(store, userService)
	if err != nil {
		return fmt.Errorf("failed to initialize house service: %w", err)
	}
	backupMgr, err := backup.New(*dataDir, *backupDir)
	if err != nil {
		return fmt.Errorf("failed to initialize backup: %w", err)
	}
	var archive *backup.Archive
	if *backupGit {
		if archive, err = backup.OpenArchive(*backupDir, "", ""); err != nil {
			return err
		}
		slog.InfoContext(ctx, "Backup archive enabled", "dir", *backupDir)
	}

	// Watch own executable for modifications (for development restarts)
	if err := watchExecutable(ctx, stop); err != nil {
		return fmt.Errorf("failed to watch executable: %w", err)
	}

	sched := &backup.Scheduler{Manager: backupMgr, Interval: *backupInterval, Archive: archive}
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.ErrorContext(ctx, "Backup scheduler stopped", "err", err)
		}
	}()

	var geoChecker *ipgeo.Checker
	if *geoDB != "" {
		geoChecker, err = ipgeo.Open(*geoDB)
		if err != nil {
			return fmt.Errorf("failed to open geo database: %w", err)
		}
		defer func() { _ = geoChecker.Close() }()
		slog.InfoContext(ctx, "IP geolocation enabled", "db", *geoDB)
	}

	svc := &handlers.Services{
		Users:   userService,
		Houses:  houseService,
		Images:  storage.NewImageService(store, serverCfg.Quotas.MaxImageBytes),
		Backup:  backupMgr,
		Archive: archive,
	}
	buildVersion, _, _, _ := getBuildInfo()
	cfg := &handlers.Config{
		ServerConfig:  *serverCfg,
		Version:       buildVersion,
		SecureCookies: *secureCookies,
	}
	limiters := ratelimit.NewConfig(serverCfg.RateLimits)
	defer limiters.Close()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.NewRouter(svc, cfg, limiters, *staticDir, geoChecker),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", addr, "data", *dataDir, "backup", *backupDir, "version", buildVersion)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		stop()
		<-schedDone
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		<-schedDone
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

// legacyEnv maps flag names to the variable names of older deployments,
// used when the name derived from the flag is not set.
var legacyEnv = map[string]string{
	"data-dir":   "STORAGE_PATH",
	"backup-dir": "BACKUP_PATH",
	"static-dir": "STATIC_PATH",
	"http":       "PORT",
}

// envValue returns the value for flag name from lookup, keyed by the flag
// name in upper snake case ("backup-dir" -> "BACKUP_DIR") or else by its
// legacy name. A bare legacy PORT listens on all interfaces.
func envValue(name string, lookup func(string) string) string {
	if v := lookup(strings.ToUpper(strings.ReplaceAll(name, "-", "_"))); v != "" {
		return v
	}
	alias, ok := legacyEnv[name]
	if !ok {
		return ""
	}
	v := lookup(alias)
	if name == "http" && v != "" && !strings.Contains(v, ":") {
		v = net.JoinHostPort("0.0.0.0", v)
	}
	return v
}

// applyEnv fills every flag of fs not set on the command line from lookup.
// The data directory is resolved before .env is read and is skipped here.
func applyEnv(fs *flag.FlagSet, set map[string]bool, lookup func(string) string) error {
	var errs []error
	fs.VisitAll(func(f *flag.Flag) {
		if set[f.Name] || f.Name == "version" || f.Name == "data-dir" {
			return
		}
		if v := envValue(f.Name, lookup); v != "" {
			if err := f.Value.Set(v); err != nil {
				errs = append(errs, fmt.Errorf("invalid %s: %w", f.Name, err))
			}
		}
	})
	return errors.Join(errs...)
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("housekeeper %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}

func loadDotEnv(dataDir string) (map[string]string, error) {
	env := make(map[string]string)
	path := filepath.Join(dataDir, ".env")
	envContent, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir flag, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return env, nil
		}
		return nil, err
	}

	for line := range strings.SplitSeq(string(envContent), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimPrefix(strings.TrimSpace(key), envPrefix)
		val = strings.TrimSpace(val)

		if strings.HasPrefix(val, "'") || strings.HasSuffix(val, "'") {
			if strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'") {
				return nil, fmt.Errorf("single quotes are not supported for wrapping in .env: %s", line)
			}
			return nil, fmt.Errorf("unbalanced single quotes in .env: %s", line)
		}
		if strings.HasPrefix(val, "\"") {
			unquoted, err := strconv.Unquote(val)
			if err != nil {
				return nil, fmt.Errorf("failed to unquote %s: %w", key, err)
			}
			val = unquoted
		}
		env[key] = val
	}
	return env, nil
}

func watchExecutable(ctx context.Context, stop context.CancelFunc) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(exe); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Chmod) {
					slog.InfoContext(ctx, "Executable modified, initiating shutdown")
					stop()
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching executable", "err", err)
			}
		}
	}()
	return nil
}
