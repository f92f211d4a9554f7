package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"backend/internal/config"
)

// Client issues authenticated Admin API calls for one shop. Per the error
// contract, every call that fails upstream is logged here and surfaced to
// the caller as a nil result; callers check for nil, they never see the
// transport error.
type Client struct {
	shop        string
	baseURL     string
	accessToken string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient builds a client for a shop's Admin API using its access token.
func NewClient(cfg config.ShopifyConfig, shop, accessToken string, logger *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		shop:        shop,
		baseURL:     fmt.Sprintf("https://%s/admin/api/%s/", shop, cfg.APIVersion),
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// Shop returns the storefront hostname this client is bound to.
func (c *Client) Shop() string { return c.shop }

// call performs one authenticated request and decodes the response body
// into out (when out is non-nil and the body is non-empty). A false return
// means the call failed; the reason has already been logged.
func (c *Client) call(ctx context.Context, method, path string, payload, out any) bool {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			c.logger.Error("shopify call: marshal payload", "shop", c.shop, "path", path, "error", err)
			return false
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		c.logger.Error("shopify call: build request", "shop", c.shop, "path", path, "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)

	res, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("shopify call failed", "shop", c.shop, "method", method, "path", path, "error", err)
		return false
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		c.logger.Error("shopify call returned error status",
			"shop", c.shop, "method", method, "path", path,
			"status", res.StatusCode, "body", string(raw))
		return false
	}

	if out == nil || len(raw) == 0 {
		return true
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Error("shopify call: decode response", "shop", c.shop, "path", path, "error", err)
		return false
	}
	return true
}

// PriceRule is the Admin API price rule object, trimmed to what we read.
type PriceRule struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Value string `json:"value"`
}

// DiscountCode is the redeemable code created under a price rule.
type DiscountCode struct {
	ID          int64  `json:"id"`
	PriceRuleID int64  `json:"price_rule_id"`
	Code        string `json:"code"`
}

// Webhook is a registered webhook subscription.
type Webhook struct {
	ID      int64  `json:"id"`
	Topic   string `json:"topic"`
	Address string `json:"address"`
}

// RecurringApplicationCharge is the billing subscription object.
type RecurringApplicationCharge struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Status          string `json:"status"`
	ConfirmationURL string `json:"confirmation_url"`
}

// UsageCharge is one usage-based charge against a recurring charge.
type UsageCharge struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
	Price       string `json:"price"`
}

// ShopInfo is the shop resource, trimmed to the fields we use.
type ShopInfo struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	MyshopifyDomain string `json:"myshopify_domain"`
	Currency        string `json:"currency"`
}

// CreatePriceRule creates a percentage-off rule covering all line items,
// one use per customer, bounded by the discount's start and end times.
func (c *Client) CreatePriceRule(ctx context.Context, title string, percentOff string, startTime, endTime time.Time) *PriceRule {
	payload := map[string]any{
		"price_rule": map[string]any{
			"value_type":         "percentage",
			"value":              "-" + percentOff,
			"customer_selection": "all",
			"target_type":        "line_item",
			"target_selection":   "all",
			"once_per_customer":  true,
			"allocation_method":  "across",
			"starts_at":          startTime.UTC().Format(time.RFC3339),
			"ends_at":            endTime.UTC().Format(time.RFC3339),
			"title":              title,
		},
	}
	var out struct {
		PriceRule PriceRule `json:"price_rule"`
	}
	if !c.call(ctx, http.MethodPost, "price_rules.json", payload, &out) {
		return nil
	}
	return &out.PriceRule
}

// DeletePriceRule removes a price rule; false means the delete did not land.
func (c *Client) DeletePriceRule(ctx context.Context, priceRuleID int64) bool {
	return c.call(ctx, http.MethodDelete, fmt.Sprintf("price_rules/%d.json", priceRuleID), nil, nil)
}

// CreateDiscountCode creates the redeemable code under a price rule.
func (c *Client) CreateDiscountCode(ctx context.Context, priceRuleID int64, code string) *DiscountCode {
	payload := map[string]any{
		"discount_code": map[string]any{"code": code},
	}
	var out struct {
		DiscountCode DiscountCode `json:"discount_code"`
	}
	path := fmt.Sprintf("price_rules/%d/discount_codes.json", priceRuleID)
	if !c.call(ctx, http.MethodPost, path, payload, &out) {
		return nil
	}
	return &out.DiscountCode
}

// DeleteDiscountCode removes a discount code from its price rule.
func (c *Client) DeleteDiscountCode(ctx context.Context, priceRuleID, discountID int64) bool {
	path := fmt.Sprintf("price_rules/%d/discount_codes/%d.json", priceRuleID, discountID)
	return c.call(ctx, http.MethodDelete, path, nil, nil)
}

// CreateWebhook registers a webhook subscription delivering JSON to address.
func (c *Client) CreateWebhook(ctx context.Context, topic, address string) *Webhook {
	payload := map[string]any{
		"webhook": map[string]any{
			"topic":   topic,
			"address": address,
			"format":  "json",
		},
	}
	var out struct {
		Webhook Webhook `json:"webhook"`
	}
	if !c.call(ctx, http.MethodPost, "webhooks.json", payload, &out) {
		return nil
	}
	return &out.Webhook
}

// CreateRecurringApplicationCharge opens the usage-based billing
// subscription the kickback charges are posted against. The merchant still
// has to accept it via the returned confirmation URL.
func (c *Client) CreateRecurringApplicationCharge(ctx context.Context, cfg config.BillingConfig) *RecurringApplicationCharge {
	payload := map[string]any{
		"recurring_application_charge": map[string]any{
			"name":          cfg.RecurringChargeName,
			"price":         0.0,
			"return_url":    cfg.PostChargeReturnURL,
			"capped_amount": cfg.RecurringCappedAmount,
			"terms":         cfg.RecurringChargeTerms,
		},
	}
	var out struct {
		RecurringApplicationCharge RecurringApplicationCharge `json:"recurring_application_charge"`
	}
	c.logger.Info("establishing recurring application charge", "shop", c.shop)
	if !c.call(ctx, http.MethodPost, "recurring_application_charges.json", payload, &out) {
		return nil
	}
	return &out.RecurringApplicationCharge
}

// ActivateRecurringApplicationCharge activates an accepted recurring charge.
func (c *Client) ActivateRecurringApplicationCharge(ctx context.Context, racID int64) *RecurringApplicationCharge {
	var out struct {
		RecurringApplicationCharge RecurringApplicationCharge `json:"recurring_application_charge"`
	}
	path := fmt.Sprintf("recurring_application_charges/%d/activate.json", racID)
	if !c.call(ctx, http.MethodPost, path, map[string]any{}, &out) {
		return nil
	}
	return &out.RecurringApplicationCharge
}

// CreateUsageCharge posts one usage charge against the recurring charge.
func (c *Client) CreateUsageCharge(ctx context.Context, racID int64, description string, price string) *UsageCharge {
	payload := map[string]any{
		"usage_charge": map[string]any{
			"description": description,
			"price":       price,
		},
	}
	var out struct {
		UsageCharge UsageCharge `json:"usage_charge"`
	}
	path := fmt.Sprintf("recurring_application_charges/%d/usage_charges.json", racID)
	if !c.call(ctx, http.MethodPost, path, payload, &out) {
		return nil
	}
	return &out.UsageCharge
}

// GetShop fetches the shop resource.
func (c *Client) GetShop(ctx context.Context) *ShopInfo {
	var out struct {
		Shop ShopInfo `json:"shop"`
	}
	if !c.call(ctx, http.MethodGet, "shop.json", nil, &out) {
		return nil
	}
	return &out.Shop
}
