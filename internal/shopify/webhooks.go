package shopify

import "context"

// Webhook topics this app subscribes every installed shop to, mapped to
// the receiver paths that handle them.
var subscribedTopics = []struct {
	Topic string
	Path  string
}{
	{"app/uninstalled", "/app_uninstalled"},
	{"orders/create", "/orders_create"},
	{"refunds/create", "/refunds_create"},
}

// RegisterWebhooks subscribes a freshly installed shop to all required
// topics. A failed topic is reported rather than fatal; Shopify delivers
// nothing for a missing subscription, so callers should log failures loudly.
func (c *Client) RegisterWebhooks(ctx context.Context, serverBaseURL string) (created, failed []string) {
	for _, t := range subscribedTopics {
		if c.CreateWebhook(ctx, t.Topic, serverBaseURL+t.Path) == nil {
			failed = append(failed, t.Topic)
			continue
		}
		created = append(created, t.Topic)
	}
	return created, failed
}
