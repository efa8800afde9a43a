package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/taskmesh/dispatch/infrastructure/logging"
	"github.com/taskmesh/dispatch/internal/config"
	"github.com/taskmesh/dispatch/internal/httpclient"
	"github.com/taskmesh/dispatch/internal/workeragent"
)

// WorkerApp is the worker process's CLI.
type WorkerApp struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer
}

// NewWorkerApp constructs the worker CLI.
func NewWorkerApp() *WorkerApp {
	app := &WorkerApp{stdout: os.Stdout, stderr: os.Stderr}

	var configPath string
	root := &cobra.Command{
		Use:           "worker",
		Short:         "Run a task-dispatch worker",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd.Context(), configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to worker configuration file")
	app.root = root
	return app
}

// Execute runs the worker CLI under signal-driven cancellation.
func (a *WorkerApp) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return a.root.ExecuteContext(ctx)
}

func (a *WorkerApp) run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWorkerConfig(configPath)
	if err != nil {
		return fmt.Errorf("load worker config: %w", err)
	}

	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = uuid.NewString()
	}

	client := httpclient.New(cfg.MasterServerURL, cfg.RequestTimeout)
	agent := workeragent.New(client, workeragent.Config{
		HeartbeatInterval: cfg.HeartbeatInterval,
	})

	logging.Info().
		Add(logging.WorkerID(workerID)).
		Add(logging.Component("cli")).
		Msg("worker starting")

	agent.Run(ctx)

	logging.Info().
		Add(logging.WorkerID(workerID)).
		Add(logging.Component("cli")).
		Msg("worker stopped")
	return nil
}
