package handlers

import (
	"context"
	"errors"

	"github.com/aws/aws-lambda-go/events"

	"backend/internal/installs"
	"backend/internal/shopify"
	"backend/internal/store"
)

// ShopifyHandler routes the OAuth app surface.
func (a *App) ShopifyHandler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	switch req.RawPath {
	case "/", "":
		return landingResp()
	case "/app_launched":
		return a.appLaunched(ctx, req)
	case "/app_installed":
		return a.appInstalled(ctx, req)
	case "/discounts/issue":
		if req.RequestContext.HTTP.Method != "POST" {
			return errResp(405, "method not allowed")
		}
		return a.issueDiscount(ctx, req)
	default:
		return errResp(404, "not found")
	}
}

// appLaunched starts (or restarts) the install handshake and bounces the
// merchant to Shopify's authorize page.
func (a *App) appLaunched(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	params := req.QueryStringParameters
	if !shopify.VerifyWebCall(params, a.cfg.Shopify.APISecret) {
		return errResp(400, "hmac verification failed")
	}

	shop := shopify.NormalizeShopAddress(params["shop"])
	if !shopify.IsValidShopDomain(shop) {
		return errResp(400, "invalid shop (expected like your-store.myshopify.com)")
	}

	rec, status, err := a.machine.Lookup(ctx, shop)
	if err != nil {
		a.logger.Error("shop lookup failed", "shop", shop, "error", err)
		return errResp(500, "shop lookup failed")
	}

	switch {
	case status == installs.NotKnown:
		rec, err = a.machine.RequestInstall(ctx, shop)
	case status == installs.Uninstalled,
		status == installs.Installed && rec.NeedsRescope:
		rec, err = a.machine.RequestReinstall(ctx, shop)
	default:
		return errResp(400, "app already installed for this shop")
	}
	if err != nil {
		a.logger.Error("install request failed", "shop", shop, "error", err)
		return errResp(500, "install request failed")
	}

	return redirectResp(shopify.InstallRedirectURL(a.cfg.Shopify, shop, rec.Nonce))
}

// appInstalled is the OAuth callback: nonce check, token exchange, webhook
// registration and billing setup.
func (a *App) appInstalled(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	params := req.QueryStringParameters
	if !shopify.VerifyWebCall(params, a.cfg.Shopify.APISecret) {
		return errResp(400, "hmac verification failed")
	}

	shop := shopify.NormalizeShopAddress(params["shop"])
	if !shopify.IsValidShopDomain(shop) {
		return errResp(400, "invalid shop (expected like your-store.myshopify.com)")
	}

	token, err := shopify.Authenticate(ctx, a.cfg.Shopify, shop, params["code"])
	if err != nil {
		a.logger.Error("access token exchange failed", "shop", shop, "error", err)
		return errResp(502, "access token exchange failed")
	}

	if err := a.machine.ConfirmInstallation(ctx, shop, params["state"], token); err != nil {
		switch {
		case errors.Is(err, installs.ErrStateMismatch):
			return errResp(400, "authentication failed")
		case errors.Is(err, installs.ErrNotRequested), errors.Is(err, installs.ErrAlreadyInstalled):
			return errResp(400, "no pending installation for this shop")
		default:
			a.logger.Error("install confirmation failed", "shop", shop, "error", err)
			return errResp(500, "install confirmation failed")
		}
	}

	client := shopify.NewClient(a.cfg.Shopify, shop, token, a.logger)

	created, failed := client.RegisterWebhooks(ctx, a.cfg.Shopify.ServerBaseURL)
	if len(failed) > 0 {
		a.logger.Warn("webhook registration incomplete",
			"shop", shop, "created", created, "failed", failed)
	}

	// The merchant still has to accept the charge; until then rac_id stays
	// unset and orders convert without billing.
	if rac := client.CreateRecurringApplicationCharge(ctx, a.cfg.Billing); rac != nil {
		if err := a.machine.UpdateBillingReference(ctx, shop, rac.ID); err != nil {
			a.logger.Error("billing reference update failed", "shop", shop, "rac_id", rac.ID, "error", err)
		}
		if rac.ConfirmationURL != "" {
			return redirectResp(rac.ConfirmationURL)
		}
	} else {
		a.logger.Warn("recurring charge creation failed", "shop", shop)
	}

	return redirectResp(shopify.PostInstallRedirectURL(a.cfg.Shopify, shop))
}

// issueDiscount is the operator trigger that materializes a pending
// discount on the owning shop.
func (a *App) issueDiscount(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	code := req.QueryStringParameters["code"]
	if code == "" {
		return errResp(400, "missing code parameter")
	}

	prd, err := a.discountStore.FindByCode(ctx, code)
	if err != nil {
		a.logger.Error("discount lookup failed", "discount_code", code, "error", err)
		return errResp(500, "discount lookup failed")
	}
	if prd == nil {
		return errResp(404, "unknown discount code")
	}

	business, err := a.businessStore.ByID(ctx, prd.BusinessID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errResp(404, "business for discount not found")
		}
		a.logger.Error("business lookup failed", "business_id", prd.BusinessID, "error", err)
		return errResp(500, "business lookup failed")
	}

	shop := shopify.NormalizeShopAddress(business.ShopifyAddress)
	rec, status, err := a.machine.Lookup(ctx, shop)
	if err != nil {
		a.logger.Error("shop lookup failed", "shop", shop, "error", err)
		return errResp(500, "shop lookup failed")
	}
	if status != installs.Installed {
		return errResp(409, "app is not installed for the discount's shop")
	}

	token, err := a.machine.AccessToken(rec)
	if err != nil {
		a.logger.Error("access token decrypt failed", "shop", shop, "error", err)
		return errResp(500, "access token unavailable")
	}

	client := shopify.NewClient(a.cfg.Shopify, shop, token, a.logger)
	issued, err := a.issuer.Issue(ctx, client, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errResp(404, "unknown discount code")
		}
		a.logger.Error("discount issuance failed", "discount_code", code, "error", err)
		return errResp(502, "discount issuance failed")
	}

	return jsonResp(200, map[string]any{
		"discount_code": issued.DiscountCode,
		"price_rule_id": issued.PriceRuleID,
		"discount_id":   issued.DiscountID,
	})
}
