package handlers

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// archivePayload stashes a webhook body that could not be fully processed
// so it can be replayed by hand. Best effort; no bucket means no archive.
func (a *App) archivePayload(ctx context.Context, topic, shop string, body []byte) {
	if a.s3c == nil || a.cfg.Webhooks.ArchiveBucket == "" {
		return
	}

	key := fmt.Sprintf("%s%s/%s/%s-%s.json",
		a.cfg.Webhooks.ArchivePrefix,
		strings.ReplaceAll(topic, "/", "_"),
		shop,
		time.Now().UTC().Format("20060102T150405Z"),
		uuid.NewString(),
	)

	_, err := a.s3c.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Webhooks.ArchiveBucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		a.logger.Error("payload archive failed", "topic", topic, "shop", shop, "key", key, "error", err)
		return
	}
	a.logger.Info("payload archived", "topic", topic, "shop", shop, "key", key)
}
