package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"backend/internal/installs"
	"backend/internal/orders"
	"backend/internal/shopify"
	"backend/internal/store"
)

// topicPaths maps Shopify webhook topics onto the receiver's paths, so a
// delivery can be routed by either.
var topicPaths = map[string]string{
	"app/uninstalled":        "/app_uninstalled",
	"orders/create":          "/orders_create",
	"refunds/create":         "/refunds_create",
	"customers/redact":       "/customers_redact",
	"shop/redact":            "/shop_redact",
	"customers/data_request": "/customers_data_request",
}

// WebhookHandler verifies, dedupes and routes inbound Shopify webhooks.
// Shop-level problems (unknown store, not installed) are absorbed with a
// descriptive body and a 200 so Shopify stops redelivering.
func (a *App) WebhookHandler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	body, err := requestBody(req)
	if err != nil {
		return errResp(400, "unreadable body")
	}

	if !shopify.VerifyWebhook(body, a.cfg.Shopify.APISecret, header(req, "x-shopify-hmac-sha256")) {
		return errResp(401, "hmac verification failed")
	}

	shop := shopify.NormalizeShopAddress(header(req, "x-shopify-shop-domain"))
	topic := header(req, "x-shopify-topic")

	if fresh, err := a.claimDelivery(ctx, req, shop, topic); err != nil {
		// Dedupe trouble never blocks processing; the workflows are
		// idempotent anyway.
		a.logger.Warn("webhook dedupe claim failed", "shop", shop, "topic", topic, "error", err)
	} else if !fresh {
		return jsonResp(200, map[string]any{"result": "duplicate delivery ignored"})
	}

	path := req.RawPath
	if mapped, ok := topicPaths[topic]; ok && (path == "" || path == "/") {
		path = mapped
	}

	switch path {
	case "/app_uninstalled":
		return a.appUninstalled(ctx, shop)
	case "/orders_create":
		return a.ordersCreate(ctx, shop, topic, body)
	case "/refunds_create":
		return a.refundsCreate(ctx, shop, body)
	case "/customers_redact":
		return a.customersRedact(ctx, shop, topic, body)
	case "/shop_redact":
		return a.shopRedact(ctx, shop, topic, body)
	case "/customers_data_request":
		a.logger.Info("customer data request acknowledged", "shop", shop)
		return jsonResp(200, map[string]any{"result": "acknowledged"})
	default:
		return errResp(404, "not found")
	}
}

func (a *App) claimDelivery(ctx context.Context, req events.APIGatewayV2HTTPRequest, shop, topic string) (bool, error) {
	if a.ddb == nil || a.cfg.Webhooks.DedupeTable == "" {
		return true, nil
	}
	webhookID := header(req, "x-shopify-webhook-id")
	if webhookID == "" {
		return true, nil
	}
	dup, err := shopify.ClaimWebhook(ctx, a.ddb, a.cfg.Webhooks.DedupeTable, webhookID, shop, topic)
	return !dup, err
}

func (a *App) appUninstalled(ctx context.Context, shop string) (events.APIGatewayV2HTTPResponse, error) {
	if err := a.machine.Uninstall(ctx, shop); err != nil {
		switch {
		case errors.Is(err, installs.ErrNotInstalled):
			return jsonResp(200, map[string]any{"result": fmt.Sprintf("store %s is not installed", shop)})
		default:
			a.logger.Error("uninstall failed", "shop", shop, "error", err)
			return errResp(500, "uninstall failed")
		}
	}
	a.logger.Info("store uninstalled", "shop", shop)
	return jsonResp(200, map[string]any{"result": "uninstalled"})
}

func (a *App) ordersCreate(ctx context.Context, shop, topic string, body []byte) (events.APIGatewayV2HTTPResponse, error) {
	rec, status, err := a.machine.Lookup(ctx, shop)
	if err != nil {
		a.logger.Error("shop lookup failed", "shop", shop, "error", err)
		return errResp(500, "shop lookup failed")
	}
	if status != installs.Installed {
		a.archivePayload(ctx, topic, shop, body)
		return jsonResp(200, map[string]any{"result": fmt.Sprintf("no installed store with address %s", shop)})
	}

	payload, err := orders.DecodeOrder(body)
	if err != nil {
		a.logger.Error("order decode failed", "shop", shop, "error", err)
		a.archivePayload(ctx, topic, shop, body)
		return errResp(400, "malformed order payload")
	}

	token, err := a.machine.AccessToken(rec)
	if err != nil {
		a.logger.Error("access token decrypt failed", "shop", shop, "error", err)
		a.archivePayload(ctx, topic, shop, body)
		return errResp(500, "access token unavailable")
	}
	client := shopify.NewClient(a.cfg.Shopify, shop, token, a.logger)

	if err := a.reconciler.Process(ctx, rec, client, payload); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.archivePayload(ctx, topic, shop, body)
			return jsonResp(200, map[string]any{"result": fmt.Sprintf("no business for store %s", shop)})
		}
		a.logger.Error("order processing failed", "shop", shop, "order_id", payload.ID, "error", err)
		a.archivePayload(ctx, topic, shop, body)
		return errResp(500, "order processing failed")
	}

	return jsonResp(200, map[string]any{"result": "processed", "order_id": payload.ID})
}

func (a *App) refundsCreate(ctx context.Context, shop string, body []byte) (events.APIGatewayV2HTTPResponse, error) {
	var refund struct {
		ID      int64 `json:"id"`
		OrderID int64 `json:"order_id"`
	}
	if err := json.Unmarshal(body, &refund); err != nil {
		return errResp(400, "malformed refund payload")
	}

	text := fmt.Sprintf("Refund %d received for shop %s (order %d)", refund.ID, shop, refund.OrderID)
	if err := a.notifier.Notify(ctx, a.cfg.Notify.RefundsChannel, text); err != nil {
		a.logger.Error("refund notification failed", "shop", shop, "refund_id", refund.ID, "error", err)
	}
	return jsonResp(200, map[string]any{"result": "noted"})
}

func (a *App) customersRedact(ctx context.Context, shop, topic string, body []byte) (events.APIGatewayV2HTTPResponse, error) {
	var payload struct {
		Customer struct {
			ID int64 `json:"id"`
		} `json:"customer"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Customer.ID == 0 {
		return errResp(400, "malformed redaction payload")
	}

	if err := a.orderStore.DeleteCustomerData(ctx, payload.Customer.ID); err != nil {
		a.logger.Error("customer redaction failed", "shop", shop, "customer_id", payload.Customer.ID, "error", err)
		a.archivePayload(ctx, topic, shop, body)
		return errResp(500, "customer redaction failed")
	}
	a.logger.Info("customer data redacted", "shop", shop, "customer_id", payload.Customer.ID)
	return jsonResp(200, map[string]any{"result": "redacted"})
}

func (a *App) shopRedact(ctx context.Context, shop, topic string, body []byte) (events.APIGatewayV2HTTPResponse, error) {
	var payload struct {
		ShopDomain string `json:"shop_domain"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return errResp(400, "malformed redaction payload")
	}
	if payload.ShopDomain != "" {
		shop = shopify.NormalizeShopAddress(payload.ShopDomain)
	}

	business, err := a.businessStore.ByShopifyAddress(ctx, shop)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return jsonResp(200, map[string]any{"result": fmt.Sprintf("no business for store %s", shop)})
		}
		a.logger.Error("business lookup failed", "shop", shop, "error", err)
		return errResp(500, "business lookup failed")
	}

	if err := a.orderStore.DeleteShopData(ctx, business.ID); err != nil {
		a.logger.Error("shop redaction failed", "shop", shop, "business_id", business.ID, "error", err)
		a.archivePayload(ctx, topic, shop, body)
		return errResp(500, "shop redaction failed")
	}
	a.logger.Info("shop data redacted", "shop", shop, "business_id", business.ID)
	return jsonResp(200, map[string]any{"result": "redacted"})
}

// header does a case-insensitive lookup; API Gateway lowercases header
// names but test fixtures often do not.
func header(req events.APIGatewayV2HTTPRequest, name string) string {
	if v, ok := req.Headers[name]; ok {
		return v
	}
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func requestBody(req events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if req.IsBase64Encoded {
		return base64.StdEncoding.DecodeString(req.Body)
	}
	return []byte(req.Body), nil
}
