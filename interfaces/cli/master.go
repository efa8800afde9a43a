// Package cli provides the command-line entry points for the master
// and worker processes.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taskmesh/dispatch/application"
	"github.com/taskmesh/dispatch/domain/scheduler"
	"github.com/taskmesh/dispatch/infrastructure/logging"
	"github.com/taskmesh/dispatch/infrastructure/storage/memory"
	redisstore "github.com/taskmesh/dispatch/infrastructure/storage/redis"
	"github.com/taskmesh/dispatch/internal/config"
	"github.com/taskmesh/dispatch/internal/httpapi"
	"github.com/taskmesh/dispatch/internal/telemetry"
)

// MasterApp is the master process's CLI.
type MasterApp struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer
}

// NewMasterApp constructs the master CLI.
func NewMasterApp() *MasterApp {
	app := &MasterApp{stdout: os.Stdout, stderr: os.Stderr}

	var configPath string
	root := &cobra.Command{
		Use:           "master",
		Short:         "Run the task-dispatch master",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.serve(cmd.Context(), configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to master configuration file")
	app.root = root
	return app
}

// Execute runs the master CLI under signal-driven cancellation.
func (a *MasterApp) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return a.root.ExecuteContext(ctx)
}

func (a *MasterApp) serve(ctx context.Context, configPath string) error {
	cfg, err := config.LoadMasterConfig(configPath)
	if err != nil {
		return fmt.Errorf("load master config: %w", err)
	}

	store := memory.NewProblemStore()
	registry, err := newRegistry(cfg, store)
	if err != nil {
		return fmt.Errorf("construct registry: %w", err)
	}

	metrics, err := telemetry.NewMetricsProvider(telemetry.WithWriter(a.stdout))
	if err != nil {
		return fmt.Errorf("construct metrics provider: %w", err)
	}
	defer metrics.Shutdown(context.Background())

	onDemote := func(demoteCtx context.Context, demoted int) {
		if demoted > 0 {
			metrics.RecordTasksRevoked(demoteCtx, demoted)
		}
	}
	master := application.NewMaster(store, registry, cfg.Timeouts, onDemote)
	if err := master.Start(ctx); err != nil {
		return fmt.Errorf("start background loops: %w", err)
	}
	defer master.Stop()

	server := httpapi.New(registry, httpapi.Config{Address: fmt.Sprintf(":%d", cfg.Port)})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	logging.Info().
		Add(logging.Component("cli")).
		Msg("master listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.HeartbeatTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// newRegistry constructs the Registry variant selected by
// cfg.StoreBackend. Both variants implement scheduler.Registry
// identically from application.Master's perspective.
func newRegistry(cfg config.MasterConfig, store scheduler.ProblemStore) (scheduler.Registry, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		redisCfg := redisstore.DefaultConfig()
		redisCfg.Address = cfg.RedisURL
		redisCfg.KeyPrefix = cfg.RedisKeyPrefix
		return redisstore.NewTaskRegistry(redisCfg, store)
	default:
		return memory.NewTaskRegistry(store), nil
	}
}
