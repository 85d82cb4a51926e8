// Package cmd wires corefish's four core components (variable store,
// history engine, event dispatcher, job tracker) plus the universal
// helper client and the YAML config into a cobra CLI surface. It is the
// demonstration driver named in spec §1's "interactive runtime core":
// each subcommand is a thin adapter onto the library packages, not a
// reimplementation of their logic.
//
// Grounded on the teacher's internal/cmd/root.go for the group/Execute
// shape, and cmd/claid/main.go for the logger/config/paths bootstrap
// sequence, collapsed here into one process instead of a daemon/client
// split since corefish's helper process is internal/universal, not a
// generic IPC daemon.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rivershell/corefish/internal/config"
	"github.com/rivershell/corefish/internal/event"
	"github.com/rivershell/corefish/internal/history"
	"github.com/rivershell/corefish/internal/iothread"
	"github.com/rivershell/corefish/internal/job"
	"github.com/rivershell/corefish/internal/sanity"
	"github.com/rivershell/corefish/internal/universal"
	"github.com/rivershell/corefish/internal/variable"
)

// Command group IDs.
const (
	groupCore  = "core"
	groupSetup = "setup"
)

var rootCmd = &cobra.Command{
	Use:   "corefish",
	Short: "a POSIX-shell interactive runtime core",
	Long: `corefish - a POSIX-shell interactive runtime core

  - scoped variable store with universal cross-session propagation
  - per-session history with lazy load and merge-on-save
  - signal-deferred event dispatcher
  - job/process tracker with SIGCHLD reaping`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: groupCore, Title: "Core Commands:"},
		&cobra.Group{ID: groupSetup, Title: "Setup & Configuration:"},
	)

	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(eraseCmd)
	rootCmd.AddCommand(varsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(eventCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(pipelineCmd)

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(universalCmd)
}

// runtime bundles the live components a single CLI invocation needs.
// It is assembled fresh per process: corefish is invoked once per
// command rather than run as a persistent shell, so there is no
// long-lived session to keep alive across invocations beyond the
// on-disk history file and the universal helper's socket.
type runtime struct {
	cfg    *config.Config
	paths  *config.Paths
	logger *slog.Logger

	dispatcher *event.Dispatcher
	store      *variable.Store
	tracker    *job.Tracker
	session    *history.Session
	pool       *iothread.Pool

	uniClient *universal.Client
}

// sessionName resolves the history-session identifier: the
// COREFISH_SESSION_ID environment variable if set, else a fresh UUID
// (spec §6 "History file": "<session-name>_history").
func sessionName() string {
	if v := os.Getenv("COREFISH_SESSION_ID"); v != "" {
		return v
	}
	return uuid.NewString()
}

// newRuntime loads configuration, ensures the on-disk directory layout,
// and constructs the dispatcher/store/tracker/session quartet wired
// together the way spec §6 describes (store and tracker each consult the
// dispatcher: the store for variable events, the tracker for
// PROCESS_EXIT/JOB_EXIT), and publishes the configured path prefixes as
// the global, exported __fish_datadir, __fish_sysconfdir,
// __fish_help_dir and __fish_bin_dir variables. It does not dial
// the universal helper; callers that need universal-variable
// propagation call connectUniversal explicitly, since not every
// subcommand needs it.
func newRuntime() (*runtime, error) {
	paths := config.DefaultPaths()
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("corefish: load config: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("corefish: ensure directories: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	dispatcher := event.New(func(handlerName string, args []string) int {
		logger.Debug("corefish: event handler invocation not wired to an interpreter", "handler", handlerName)
		return 0
	}, logger)

	tracker := job.New(
		job.WithDispatcher(dispatcher),
		job.WithLogger(logger),
	)

	store := variable.New(
		variable.WithDispatcher(dispatcher),
		variable.WithSanityHook(variable.SanityHook(sanity.Default(logger))),
		variable.WithLogger(logger),
	)
	store.ImportEnvironment(os.Environ())
	for name, value := range map[string]string{
		"__fish_datadir":    cfg.Paths.DataDir,
		"__fish_sysconfdir": cfg.Paths.SysconfDir,
		"__fish_help_dir":   cfg.Paths.DocDir,
		"__fish_bin_dir":    cfg.Paths.BinDir,
	} {
		store.Set(name, variable.Values{value}, variable.Global|variable.Export)
	}

	session := history.NewSession(
		sessionName(),
		cfg.Paths.HistoryDir,
		history.WithSaveInterval(secondsToDuration(cfg.History.SaveIntervalSeconds)),
		history.WithUnsavedTrigger(cfg.History.UnsavedCountTrigger),
		history.WithLRUCap(cfg.History.LRUCap),
		history.WithLogger(logger),
	)

	pool := iothread.New(iothread.DefaultWorkers, iothread.DefaultQueueSize, logger)

	return &runtime{
		cfg:        cfg,
		paths:      paths,
		logger:     logger,
		dispatcher: dispatcher,
		store:      store,
		tracker:    tracker,
		session:    session,
		pool:       pool,
	}, nil
}

// connectUniversal dials the universal helper's socket if present,
// seeding the store's shadow table before returning. It is a no-op
// (not an error) when no helper is listening, since a session can run
// standalone (spec §4.A "Universal propagation" is best-effort: a
// session without a reachable helper simply has no cross-session
// variables).
func (rt *runtime) connectUniversal() {
	sockPath := rt.socketPath()
	timeout := millisToDuration(rt.cfg.Universal.DialTimeoutMillis)

	c, err := universal.Dial(sockPath, timeout, func(kind universal.Kind, name string, values []string) {
		rt.store.OnUniversalNotification(toStoreKind(kind), name, variable.Values(values))
	}, rt.logger)
	if err != nil {
		rt.logger.Debug("corefish: universal helper not reachable", "err", err)
		return
	}
	rt.uniClient = c

	ctx, cancel := withDefaultTimeout(timeout)
	defer cancel()
	if err := c.WaitBarrier(ctx); err != nil {
		rt.logger.Warn("corefish: universal helper barrier not reached", "err", err)
	}
	rt.store.SetBarrierPassed(true)
}

// socketPath resolves the universal helper's Unix socket path: the
// configured override if set, else "<socket-dir>/universal.sock" (spec
// §6 "Universal helper").
func (rt *runtime) socketPath() string {
	dir := rt.cfg.Universal.SocketDir
	if dir == "" {
		dir = rt.paths.SocketDir()
	}
	return joinPath(dir, "universal.sock")
}

func joinPath(dir, file string) string { return filepath.Join(dir, file) }

func secondsToDuration(n int) time.Duration { return time.Duration(n) * time.Second }

func millisToDuration(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func withDefaultTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 500 * time.Millisecond
	}
	return context.WithTimeout(context.Background(), d)
}

func toStoreKind(k universal.Kind) variable.UniversalNotificationKind {
	switch k {
	case universal.KindSetExport:
		return variable.UniversalSetExport
	case universal.KindErase:
		return variable.UniversalErase
	default:
		return variable.UniversalSet
	}
}

// close saves unsaved history and disconnects the universal client, if
// any. Each subcommand that opens a runtime defers it right after
// newRuntime succeeds.
func (rt *runtime) close() {
	rt.pool.Drain()
	rt.pool.Close()
	if err := rt.session.Save(); err != nil {
		rt.logger.Warn("corefish: history save failed", "err", err)
	}
	if rt.uniClient != nil {
		_ = rt.uniClient.Close()
	}
}
