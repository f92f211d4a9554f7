// Package discounts turns a pending price rule discount row into live
// Shopify objects: a percentage price rule plus its redeemable code.
package discounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"backend/internal/shopify"
	"backend/internal/store"
)

// Source reads and updates price rule discount rows.
type Source interface {
	FindByCode(ctx context.Context, code string) (*store.PriceRuleDiscount, error)
	AssignExternalIDs(ctx context.Context, code string, priceRuleID, discountID int64) error
}

// UserSource resolves the endorser behind a discount, for the rule title.
type UserSource interface {
	UserByID(ctx context.Context, id int64) (*store.User, error)
}

// Gateway is the slice of the Shopify client issuance needs.
type Gateway interface {
	CreatePriceRule(ctx context.Context, title, percentOff string, startTime, endTime time.Time) *shopify.PriceRule
	CreateDiscountCode(ctx context.Context, priceRuleID int64, code string) *shopify.DiscountCode
	DeletePriceRule(ctx context.Context, priceRuleID int64) bool
}

// Issuer runs the issuance workflow. Invoked by an operator, so unknown
// codes and gateway failures surface as errors rather than being absorbed.
type Issuer struct {
	discounts Source
	users     UserSource
	logger    *slog.Logger
}

func NewIssuer(discounts Source, users UserSource, logger *slog.Logger) *Issuer {
	return &Issuer{discounts: discounts, users: users, logger: logger}
}

// Issue creates the price rule and discount code for the PRD holding code
// and persists the returned ids. A PRD that already has external ids is
// returned as-is.
func (i *Issuer) Issue(ctx context.Context, gw Gateway, code string) (*store.PriceRuleDiscount, error) {
	prd, err := i.discounts.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if prd == nil {
		return nil, fmt.Errorf("discount code %q: %w", code, store.ErrNotFound)
	}
	if prd.PriceRuleID != nil {
		i.logger.Info("discount already issued", "discount_code", code, "price_rule_id", *prd.PriceRuleID)
		return prd, nil
	}

	title := i.ruleTitle(ctx, prd)

	pr := gw.CreatePriceRule(ctx, title, prd.Discount.String(), prd.StartTime, prd.EndTime)
	if pr == nil {
		return nil, fmt.Errorf("price rule creation failed for discount %q", code)
	}

	dc := gw.CreateDiscountCode(ctx, pr.ID, prd.DiscountCode)
	if dc == nil {
		// Roll back the orphan rule so a retry does not stack duplicates.
		if !gw.DeletePriceRule(ctx, pr.ID) {
			i.logger.Warn("orphan price rule left behind", "discount_code", code, "price_rule_id", pr.ID)
		}
		return nil, fmt.Errorf("discount code creation failed for discount %q", code)
	}

	if err := i.discounts.AssignExternalIDs(ctx, code, pr.ID, dc.ID); err != nil {
		return nil, err
	}
	prd.PriceRuleID = &pr.ID
	prd.DiscountID = &dc.ID

	i.logger.Info("discount issued",
		"discount_code", code, "price_rule_id", pr.ID, "discount_id", dc.ID)
	return prd, nil
}

// ruleTitle names the rule after the endorser when we can resolve them.
func (i *Issuer) ruleTitle(ctx context.Context, prd *store.PriceRuleDiscount) string {
	user, err := i.users.UserByID(ctx, prd.EndorserID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			i.logger.Warn("endorser lookup failed", "endorser_id", prd.EndorserID, "error", err)
		}
		return prd.DiscountCode
	}
	if user.FirstName != nil && *user.FirstName != "" {
		return fmt.Sprintf("%s's discount", *user.FirstName)
	}
	return prd.DiscountCode
}
