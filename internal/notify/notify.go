// Package notify delivers free-text operator notifications to named
// channels. Channels map to SNS topics; where no mapping exists the
// default topic catches the message.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"backend/internal/config"
)

// Notifier accepts free-text messages routed to a named channel.
type Notifier interface {
	Notify(ctx context.Context, channel, text string) error
}

// SNSNotifier publishes to per-channel SNS topics.
type SNSNotifier struct {
	client *sns.Client
	cfg    config.NotifyConfig
	logger *slog.Logger
}

func NewSNSNotifier(client *sns.Client, cfg config.NotifyConfig, logger *slog.Logger) *SNSNotifier {
	return &SNSNotifier{client: client, cfg: cfg, logger: logger}
}

// Notify publishes text to the channel's topic. With no topic configured
// for the channel and no default, the message is logged and dropped;
// notification delivery is never allowed to fail a request.
func (n *SNSNotifier) Notify(ctx context.Context, channel, text string) error {
	channel = strings.TrimPrefix(strings.TrimSpace(channel), "#")

	topic := n.cfg.ChannelTopics[channel]
	if topic == "" {
		topic = n.cfg.DefaultTopic
	}
	if topic == "" {
		n.logger.Warn("no topic for notification channel, dropping", "channel", channel, "text", text)
		return nil
	}

	_, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(topic),
		Subject:  aws.String(channel),
		Message:  aws.String(text),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

// NopNotifier drops everything; useful where no sink is configured.
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, channel, text string) error { return nil }
