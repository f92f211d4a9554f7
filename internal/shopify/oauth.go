package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"backend/internal/config"
)

var shopDomainRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9\-]*\.myshopify\.com$`)

// IsValidShopDomain reports whether shop looks like a storefront hostname.
func IsValidShopDomain(shop string) bool {
	return shopDomainRe.MatchString(shop)
}

// NormalizeShopAddress strips the scheme and trailing slash so the same
// shop always maps to the same shopify_shopifystore row.
func NormalizeShopAddress(shop string) string {
	shop = strings.TrimSpace(shop)
	shop = strings.TrimPrefix(shop, "https://")
	shop = strings.TrimPrefix(shop, "http://")
	return strings.ToLower(strings.TrimSuffix(shop, "/"))
}

// InstallRedirectURL builds the authorize URL the merchant is sent to at
// install time; state carries the nonce bound to this install request.
func InstallRedirectURL(cfg config.ShopifyConfig, shop, nonce string) string {
	u := url.URL{Scheme: "https", Host: shop, Path: "/admin/oauth/authorize"}
	q := u.Query()
	q.Set("client_id", cfg.APIKey)
	q.Set("scope", strings.Join(cfg.Scopes, ","))
	q.Set("redirect_uri", cfg.ServerBaseURL+"/app_installed")
	q.Set("state", nonce)
	q.Set("grant_options[]", strings.Join(cfg.AccessMode, ","))
	u.RawQuery = q.Encode()
	return u.String()
}

// PostInstallRedirectURL points the merchant back at the app in admin.
func PostInstallRedirectURL(cfg config.ShopifyConfig, shop string) string {
	return fmt.Sprintf("https://%s/admin/apps/%s", shop, cfg.AppName)
}

// Authenticate exchanges the OAuth callback code for a permanent access
// token. A failed exchange is logged by the caller; this returns the
// transport/decode error untouched so the callback can reject loudly.
func Authenticate(ctx context.Context, cfg config.ShopifyConfig, shop, code string) (string, error) {
	tokenURL := fmt.Sprintf("https://%s/admin/oauth/access_token", shop)

	body, _ := json.Marshal(map[string]string{
		"client_id":     cfg.APIKey,
		"client_secret": cfg.APISecret,
		"code":          code,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: cfg.RequestTimeout}
	if cfg.RequestTimeout <= 0 {
		client.Timeout = 15 * time.Second
	}

	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("token exchange failed: http %d: %s", res.StatusCode, string(raw))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		Scope       string `json:"scope"`
	}
	if err := json.Unmarshal(raw, &tok); err != nil || tok.AccessToken == "" {
		return "", fmt.Errorf("invalid token response")
	}
	return tok.AccessToken, nil
}
