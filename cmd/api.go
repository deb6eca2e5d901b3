package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/missland/tryon-service/internal/application"
	"github.com/missland/tryon-service/internal/config"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run the HTTP + WebSocket API server",
	RunE:  runAPI,
}

func runAPI(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	api, err := application.NewAPI(cfg)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return api.Run(ctx)
}
