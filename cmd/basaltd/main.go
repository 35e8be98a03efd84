// Command basaltd runs the transactional data grid's HTTP entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/basalt-db/basalt/internal/httpapi"
	"github.com/basalt-db/basalt/pkg/database"
	"github.com/basalt-db/basalt/pkg/persistence"
)

var (
	listenAddr        string
	dataDir           string
	snapshotThreshold int
	devCORS           bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "basaltd",
		Short: "basaltd serves the transactional in-memory data grid over HTTP",
		RunE:  run,
	}
	root.PersistentFlags().StringVar(&listenAddr, "listen", ":8080", "HTTP listen address")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "persistence directory; empty means memory-only, no recovery")
	root.PersistentFlags().IntVar(&snapshotThreshold, "snapshot-threshold", 10_000, "committed transactions between log snapshots")
	root.PersistentFlags().BoolVar(&devCORS, "dev-cors", false, "enable permissive CORS for local development")
	return root
}

func run(cmd *cobra.Command, args []string) error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	db, closeLog, err := openDatabase(logger)
	if err != nil {
		logger.Error("unrecoverable startup failure", zap.Error(err))
		return err
	}
	if closeLog != nil {
		defer closeLog()
	}

	server := httpapi.New(db, httpapi.Config{DevCORS: devCORS, Logger: logger})
	httpServer := &http.Server{Addr: listenAddr, Handler: server.Handler()}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", listenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			return err
		}
		return nil
	case err := <-serveErr:
		if err != nil {
			logger.Error("server exited with error", zap.Error(err))
			return err
		}
		return nil
	}
}

// openDatabase builds a memory-only database when dataDir is empty,
// otherwise recovers from the persisted log. The returned closer flushes
// and closes the log file; it is nil for a memory-only database.
func openDatabase(logger *zap.Logger) (*database.Database, func(), error) {
	if dataDir == "" {
		db := database.New(nil)
		db.CloseRegistration()
		return db, nil, nil
	}

	db, log, err := persistence.Recover(dataDir, snapshotThreshold)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("recovered", zap.String("data_dir", dataDir), zap.Strings("tables", db.TablesMeta()))
	return db, func() { log.Close() }, nil
}
