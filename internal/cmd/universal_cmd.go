package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rivershell/corefish/internal/config"
	"github.com/rivershell/corefish/internal/universal"
)

var universalCmd = &cobra.Command{
	Use:     "universal-helper",
	Short:   "Run the universal-variable helper process",
	GroupID: groupSetup,
	Args:    cobra.NoArgs,
	Long: `Run the cooperating background process that holds the canonical
table of universal variables and fans out SET/SET_EXPORT/ERASE between
every connected session (spec §6 "Universal helper"). Runs until
interrupted.`,
	RunE: runUniversalHelper,
}

func runUniversalHelper(cmd *cobra.Command, args []string) error {
	paths := config.DefaultPaths()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("universal-helper: load config: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return fmt.Errorf("universal-helper: ensure directories: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	sockDir := cfg.Universal.SocketDir
	if sockDir == "" {
		sockDir = paths.SocketDir()
	}
	sockPath := filepath.Join(sockDir, "universal.sock")
	dbPath := filepath.Join(sockDir, "universal.db")

	h, err := universal.NewHelper(dbPath, sockPath, logger)
	if err != nil {
		return fmt.Errorf("universal-helper: %w", err)
	}
	defer h.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("universal-helper: listening", "socket", sockPath)
	if err := h.Serve(ctx); err != nil {
		return fmt.Errorf("universal-helper: %w", err)
	}
	return nil
}
