package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/assignx-api/internal/models"
	"github.com/noah-isme/assignx-api/internal/repository"
	"github.com/noah-isme/assignx-api/internal/service"
	"github.com/noah-isme/assignx-api/pkg/cache"
	"github.com/noah-isme/assignx-api/pkg/config"
	"github.com/noah-isme/assignx-api/pkg/database"
	"github.com/noah-isme/assignx-api/pkg/logger"
)

const notifyDrainTimeout = 10 * time.Second

func sweepCmd() *cobra.Command {
	var dryRun, notify bool
	var batch int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one auto approval pass against the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logr, err := logger.New(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer logr.Sync() //nolint:errcheck

			db, err := database.NewPostgres(cfg.Database)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer db.Close() //nolint:errcheck

			if batch <= 0 {
				batch = cfg.Sweep.BatchSize
			}
			projects := repository.NewProjectRepository(db)
			now := time.Now()

			if dryRun {
				due, err := projects.ListDueForAutoApproval(cmd.Context(), now, batch)
				if err != nil {
					return err
				}
				if wantJSON(cmd) {
					return printJSON(cmd.OutOrStdout(), due)
				}
				renderDue(cmd, due)
				return nil
			}

			params := service.LifecycleParams{
				Store:   projects,
				Audit:   repository.NewAuditRepository(db),
				Logger:  logr,
				Timeout: cfg.Workflow.ActionTimeout,
				Grace:   cfg.Workflow.AutoApproveGrace,
			}
			if notify {
				redisClient, err := cache.NewRedis(cfg.Redis)
				if err != nil {
					return fmt.Errorf("connect redis: %w", err)
				}
				defer redisClient.Close() //nolint:errcheck
				notifications := service.NewNotificationService(repository.NewCacheRepository(redisClient, logr), nil, nil, logr, service.NotificationConfig{
					ChannelPrefix: cfg.Notifications.ChannelPrefix,
					Workers:       1,
					BufferSize:    cfg.Notifications.BufferSize,
					MaxRetries:    cfg.Notifications.MaxRetries,
					RetryDelay:    cfg.Notifications.RetryDelay,
				})
				notifications.Start(cmd.Context())
				defer func() {
					drainCtx, cancel := context.WithTimeout(context.Background(), notifyDrainTimeout)
					defer cancel()
					notifications.Stop(drainCtx)
				}()
				params.Publisher = notifications
			}

			sweeper := service.NewAutoApprovalService(service.NewLifecycle(params), projects, nil, logr, batch)
			result, err := sweeper.Sweep(cmd.Context(), now)
			if err != nil {
				logr.Error("auto approval sweep failed", zap.Error(err))
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "examined=%d approved=%d skipped=%d failed=%d\n",
				result.Examined, result.Approved, result.Skipped, result.Failed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list due projects without approving them")
	cmd.Flags().BoolVar(&notify, "notify", true, "publish status notifications to redis")
	cmd.Flags().IntVar(&batch, "batch", 0, "maximum projects per pass (defaults to SWEEP_BATCH_SIZE)")
	return cmd
}

func renderDue(cmd *cobra.Command, due []models.Project) {
	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.AppendHeader(table.Row{"Project", "ID", "Delivered", "Auto approve at"})
	for _, p := range due {
		tw.AppendRow(table.Row{p.ProjectNumber, p.ID, formatTime(p.DeliveredAt), formatTime(p.AutoApproveAt)})
	}
	tw.AppendFooter(table.Row{"total", len(due), "", ""})
	tw.Render()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
