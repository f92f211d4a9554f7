package handlers

import (
	"context"
	"fmt"

	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/logging"
	"backend/internal/notify"
)

// Bootstrap loads configuration and opens every client the App needs.
// Called once per Lambda cold start, before lambda.Start.
func Bootstrap(ctx context.Context) (*App, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Logging)

	gdb, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var notifier notify.Notifier = notify.NopNotifier{}
	if len(cfg.Notify.ChannelTopics) > 0 || cfg.Notify.DefaultTopic != "" {
		snsc, err := db.NewSNSClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("sns client: %w", err)
		}
		notifier = notify.NewSNSNotifier(snsc, cfg.Notify, logger)
	}

	ddb, err := db.NewDynamoClient(ctx)
	if err != nil {
		logger.Warn("dynamodb client unavailable, webhook dedupe disabled", "error", err)
		ddb = nil
	}
	s3c, err := db.NewS3Client(ctx)
	if err != nil {
		logger.Warn("s3 client unavailable, payload archive disabled", "error", err)
		s3c = nil
	}

	return NewApp(cfg, logger, gdb, ddb, s3c, notifier)
}
