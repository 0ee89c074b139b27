package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/assignx-api/internal/models"
	"github.com/noah-isme/assignx-api/pkg/jobs"
)

type notificationChannel interface {
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
}

type notificationBroadcaster interface {
	Broadcast(userID string, payload []byte) int
}

// NotificationConfig tunes the delivery worker pool.
type NotificationConfig struct {
	ChannelPrefix string
	Workers       int
	BufferSize    int
	MaxRetries    int
	RetryDelay    time.Duration
}

// NotificationService delivers status notices to each recipient over Redis
// pub/sub and any open websocket. Publishing never blocks the caller.
type NotificationService struct {
	queue   *jobs.Queue[notificationDelivery]
	channel notificationChannel
	hub     notificationBroadcaster
	metrics *MetricsService
	logger  *zap.Logger
	prefix  string
}

type notificationDelivery struct {
	UserID string
	Notice models.StatusNotification
}

// NewNotificationService wires the delivery queue. Either transport may be nil.
func NewNotificationService(channel notificationChannel, hub notificationBroadcaster, metrics *MetricsService, logger *zap.Logger, cfg NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = "notifications"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	svc := &NotificationService{
		channel: channel,
		hub:     hub,
		metrics: metrics,
		logger:  logger,
		prefix:  cfg.ChannelPrefix,
	}
	svc.queue = jobs.NewQueue("notifications", svc.handle, jobs.Config{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return svc
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop delivers what is still queued, giving up when ctx ends.
func (s *NotificationService) Stop(ctx context.Context) {
	s.queue.Stop(ctx)
}

// Publish queues one delivery per notice and recipient. Deliveries that do
// not fit in the buffer are dropped and logged.
func (s *NotificationService) Publish(ctx context.Context, notices []models.StatusNotification) {
	for _, notice := range notices {
		for _, userID := range notice.Recipients {
			job := jobs.Job[notificationDelivery]{
				ID:      fmt.Sprintf("%s:%s:%s", notice.ProjectID, notice.ToStatus, userID),
				Payload: notificationDelivery{UserID: userID, Notice: notice},
			}
			if err := s.queue.TryEnqueue(job); err != nil {
				s.metrics.RecordNotification("dropped")
				s.logger.Warn("notification dropped",
					zap.String("project_id", notice.ProjectID),
					zap.String("to_status", string(notice.ToStatus)),
					zap.String("user_id", userID),
					zap.Error(err),
				)
			}
		}
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job[notificationDelivery]) error {
	delivery := job.Payload
	payload, err := json.Marshal(delivery.Notice)
	if err != nil {
		s.logger.Error("failed to encode notification", zap.String("job_id", job.ID), zap.Error(err))
		return nil
	}

	// Retries only concern the pub/sub leg; sockets already got the first attempt.
	if s.hub != nil && job.Attempt == 0 {
		s.hub.Broadcast(delivery.UserID, payload)
	}
	if s.channel == nil {
		s.metrics.RecordNotification("delivered")
		return nil
	}
	if _, err := s.channel.Publish(ctx, s.channelFor(delivery.UserID), payload); err != nil {
		s.metrics.RecordNotification("failed")
		return err
	}
	s.metrics.RecordNotification("delivered")
	return nil
}

func (s *NotificationService) channelFor(userID string) string {
	return s.prefix + ":" + userID
}
