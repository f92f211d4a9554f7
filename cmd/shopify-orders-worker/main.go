package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"backend/internal/handlers"
	"backend/internal/installs"
	"backend/internal/orders"
	"backend/internal/shopify"
	"backend/internal/store"
)

// EBEvent is an EventBridge-wrapped Shopify delivery as it arrives from
// the SQS pipe: webhook headers under detail.metadata, the order body
// under detail.payload.
type EBEvent struct {
	DetailType string `json:"detail-type"`
	Source     string `json:"source"`
	Detail     struct {
		Metadata map[string]string `json:"metadata"`
		Payload  json.RawMessage   `json:"payload"`
	} `json:"detail"`
}

type worker struct {
	app *handlers.App
}

func (w *worker) handler(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	failures := make([]events.SQSBatchItemFailure, 0)

	for _, rec := range sqsEvent.Records {
		if err := w.processOne(ctx, rec.Body); err != nil {
			// Mark this message failed so it retries (or lands in the DLQ).
			fmt.Printf("orders-worker: msgId=%s failed: %v\n", rec.MessageId, err)
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}

	return events.SQSEventResponse{BatchItemFailures: failures}, nil
}

func (w *worker) processOne(ctx context.Context, body string) error {
	var e EBEvent
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		return fmt.Errorf("unmarshal eb event: %w", err)
	}

	topic := e.Detail.Metadata["X-Shopify-Topic"]
	shopDomain := shopify.NormalizeShopAddress(e.Detail.Metadata["X-Shopify-Shop-Domain"])

	if topic == "" || shopDomain == "" || !strings.HasPrefix(topic, "orders/") {
		// Not ours; treat as success (should not happen due to filter)
		return nil
	}

	payload, err := orders.DecodeOrder(e.Detail.Payload)
	if err != nil {
		return fmt.Errorf("decode order: %w", err)
	}

	machine := w.app.Machine()
	rec, status, err := machine.Lookup(ctx, shopDomain)
	if err != nil {
		return fmt.Errorf("shop lookup: %w", err)
	}
	if status != installs.Installed {
		// Retrying will not install the shop; drop the message.
		return nil
	}

	token, err := machine.AccessToken(rec)
	if err != nil {
		return fmt.Errorf("access token: %w", err)
	}
	client := w.app.Client(shopDomain, token)

	if err := w.app.Reconciler().Process(ctx, rec, client, payload); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// No business mapped to this shop; nothing to reconcile.
			return nil
		}
		return fmt.Errorf("reconcile order %d: %w", payload.ID, err)
	}
	return nil
}

func main() {
	app, err := handlers.Bootstrap(context.Background())
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	w := &worker{app: app}
	lambda.Start(w.handler)
}
