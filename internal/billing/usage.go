package billing

import (
	"context"
	"fmt"
	"log/slog"

	"backend/internal/notify"
	"backend/internal/shopify"
	"backend/internal/store"
)

// UsageGateway is the slice of the Shopify client the charger needs.
type UsageGateway interface {
	CreateUsageCharge(ctx context.Context, racID int64, description, price string) *shopify.UsageCharge
}

// Charger posts kickback amounts as usage charges against a shop's
// recurring application charge and tells the operators about it.
type Charger struct {
	rates    RateSource
	notifier notify.Notifier
	channel  string
	logger   *slog.Logger
}

func NewCharger(rates RateSource, notifier notify.Notifier, channel string, logger *slog.Logger) *Charger {
	return &Charger{rates: rates, notifier: notifier, channel: channel, logger: logger}
}

// Charge converts the kickback to USD and posts one usage charge. Billing
// failures are absorbed: they are logged and reported as a nil result, and
// never unwind the kickback that was already recorded.
func (c *Charger) Charge(ctx context.Context, gw UsageGateway, shop string, racID int64, k *store.Kickback) *shopify.UsageCharge {
	usd, err := c.rates.ToUSD(k.Kickback, k.KickbackCurrency)
	if err != nil {
		c.logger.Error("usage charge skipped: rate lookup failed",
			"shop", shop, "order_id", k.OrderID, "currency", k.KickbackCurrency, "error", err)
		return nil
	}
	// Rounding happens here, at the billing boundary, not on the raw sum.
	price := usd.Round(2).String()

	description := fmt.Sprintf("Charge on order: %d unique discount: %s", k.OrderID, k.PRDID)
	uc := gw.CreateUsageCharge(ctx, racID, description, price)
	if uc == nil {
		c.logger.Error("usage charge failed", "shop", shop, "order_id", k.OrderID, "price", price)
		return nil
	}

	text := fmt.Sprintf("Created charge of %s USD for %s (order %d, discount %s)",
		price, shop, k.OrderID, k.PRDID)
	if err := c.notifier.Notify(ctx, c.channel, text); err != nil {
		c.logger.Error("charge notification failed", "shop", shop, "error", err)
	}
	return uc
}
