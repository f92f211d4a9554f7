// Package handlers adapts the install, webhook and discount workflows to
// API Gateway V2 Lambda events.
package handlers

import (
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gorm.io/gorm"

	"backend/internal/billing"
	"backend/internal/config"
	"backend/internal/discounts"
	"backend/internal/installs"
	"backend/internal/notify"
	"backend/internal/orders"
	"backend/internal/security"
	"backend/internal/shopify"
	"backend/internal/store"
)

// App holds the wired application. One App is built per Lambda cold start
// and shared across invocations.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	machine       *installs.Machine
	shopStore     *store.ShopStore
	orderStore    *store.OrderStore
	discountStore *store.DiscountStore
	kickbackStore *store.KickbackStore
	businessStore *store.BusinessStore

	reconciler *orders.Reconciler
	issuer     *discounts.Issuer
	notifier   notify.Notifier

	ddb *dynamodb.Client
	s3c *s3.Client
}

// NewApp wires stores and workflows on top of already-opened clients.
// ddb and s3c may be nil; the dedupe and archive features then sit idle.
func NewApp(cfg config.Config, logger *slog.Logger, gdb *gorm.DB, ddb *dynamodb.Client, s3c *s3.Client, notifier notify.Notifier) (*App, error) {
	cipher, err := security.NewCipher(cfg.Shopify.TokenEncKeyB64)
	if err != nil {
		return nil, fmt.Errorf("token cipher: %w", err)
	}

	shops := store.NewShopStore(gdb)
	orderStore := store.NewOrderStore(gdb)
	discountStore := store.NewDiscountStore(gdb)
	kickbackStore := store.NewKickbackStore(gdb)
	businessStore := store.NewBusinessStore(gdb)

	charger := billing.NewCharger(billing.NewFixedRates(), notifier, cfg.Notify.ChargesChannel, logger)
	reconciler := orders.NewReconciler(
		orderStore, discountStore, kickbackStore, businessStore,
		charger, cfg.Billing.PlatformFeePercent, logger,
	)

	return &App{
		cfg:           cfg,
		logger:        logger,
		machine:       installs.NewMachine(shops, cipher, logger),
		shopStore:     shops,
		orderStore:    orderStore,
		discountStore: discountStore,
		kickbackStore: kickbackStore,
		businessStore: businessStore,
		reconciler:    reconciler,
		issuer:        discounts.NewIssuer(discountStore, businessStore, logger),
		notifier:      notifier,
		ddb:           ddb,
		s3c:           s3c,
	}, nil
}

// Reconciler exposes the order workflow for the SQS worker entrypoint.
func (a *App) Reconciler() *orders.Reconciler { return a.reconciler }

// Machine exposes the installation state machine for the worker entrypoint.
func (a *App) Machine() *installs.Machine { return a.machine }

// Client builds a Shopify API client bound to one shop.
func (a *App) Client(shop, accessToken string) *shopify.Client {
	return shopify.NewClient(a.cfg.Shopify, shop, accessToken, a.logger)
}
