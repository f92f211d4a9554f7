package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Config aggregates everything the Lambdas need, built once at startup and
// passed down explicitly. Nothing below reads the environment after Load.
type Config struct {
	Shopify  ShopifyConfig
	Database DatabaseConfig
	Billing  BillingConfig
	Notify   NotifyConfig
	Webhooks WebhooksConfig
	Logging  LoggingConfig
}

// ShopifyConfig carries the app credentials and OAuth endpoints.
type ShopifyConfig struct {
	APIKey          string
	APISecret       string
	APIVersion      string
	AppName         string
	Scopes          []string
	ServerBaseURL   string // https://<SERVER_DOMAIN>
	TokenEncKeyB64  string // optional; access tokens stored plaintext when empty
	RequestTimeout  time.Duration
	AccessMode      []string // empty means offline access mode
}

// DatabaseConfig describes the Postgres connection.
type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// BillingConfig holds the usage-charge knobs.
type BillingConfig struct {
	PlatformFeePercent    float64
	RecurringChargeName   string
	RecurringChargeTerms  string
	RecurringCappedAmount float64
	PostChargeReturnURL   string
}

// NotifyConfig maps free-text channel names to SNS topic ARNs.
type NotifyConfig struct {
	ChannelTopics  map[string]string
	DefaultTopic   string
	ChargesChannel string
	RefundsChannel string
}

// WebhooksConfig covers inbound webhook processing.
type WebhooksConfig struct {
	DedupeTable   string // DynamoDB claim table; empty disables dedupe
	ArchiveBucket string // S3 bucket for failed-payload diagnostics; empty disables
	ArchivePrefix string
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level  string
	Format string // text|json
}

const (
	defaultAPIVersion     = "2021-04"
	defaultScopes         = "write_script_tags,write_customers,write_discounts,read_orders"
	defaultRequestTimeout = 15 * time.Second
	defaultFeePercent     = 30.0
	defaultCappedAmount   = 1000.0
	defaultChargesChannel = "charges"
	defaultRefundsChannel = "new_refunds"
)

// Load reads configuration from environment variables, resolving any secret
// that names an SSM parameter via its *_SSM_PARAM companion variable.
func Load(ctx context.Context) (Config, error) {
	secrets, err := newSecretResolver(ctx)
	if err != nil {
		return Config{}, err
	}

	apiSecret, err := secrets.resolve(ctx, "SHOPIFY_API_SECRET")
	if err != nil {
		return Config{}, err
	}
	dbPassword, err := secrets.resolve(ctx, "DATABASE_PASSWORD")
	if err != nil {
		return Config{}, err
	}
	tokenKey, err := secrets.resolve(ctx, "TOKEN_ENC_KEY_B64")
	if err != nil {
		return Config{}, err
	}

	serverDomain := strings.TrimSpace(os.Getenv("SERVER_DOMAIN"))

	cfg := Config{
		Shopify: ShopifyConfig{
			APIKey:         strings.TrimSpace(os.Getenv("SHOPIFY_API_KEY")),
			APISecret:      apiSecret,
			APIVersion:     valueOrDefault("SHOPIFY_API_VERSION", defaultAPIVersion),
			AppName:        strings.TrimSpace(os.Getenv("APP_NAME")),
			Scopes:         splitCSV(valueOrDefault("SHOPIFY_SCOPES", defaultScopes)),
			ServerBaseURL:  "https://" + serverDomain,
			TokenEncKeyB64: tokenKey,
			RequestTimeout: parseDurationWithDefault("SHOPIFY_REQUEST_TIMEOUT", defaultRequestTimeout),
			AccessMode:     splitCSV(os.Getenv("SHOPIFY_ACCESS_MODE")),
		},
		Database: DatabaseConfig{
			Host:     strings.TrimSpace(os.Getenv("DATABASE_HOST")),
			Port:     parseIntWithDefault("DATABASE_PORT", 5432),
			Name:     strings.TrimSpace(os.Getenv("DATABASE_NAME")),
			User:     strings.TrimSpace(os.Getenv("DATABASE_USER")),
			Password: dbPassword,
			SSLMode:  valueOrDefault("DATABASE_SSLMODE", "require"),
		},
		Billing: BillingConfig{
			PlatformFeePercent:    parseFloatWithDefault("PLATFORM_FEE_PERCENT", defaultFeePercent),
			RecurringChargeName:   valueOrDefault("RECURRING_CHARGE_NAME", "Endorser Reward Program"),
			RecurringChargeTerms:  valueOrDefault("RECURRING_CHARGE_TERMS", "Pay % rewards to endorsers for converted sales"),
			RecurringCappedAmount: parseFloatWithDefault("RECURRING_CHARGE_CAP", defaultCappedAmount),
			PostChargeReturnURL:   strings.TrimSpace(os.Getenv("POST_RECURRING_CHARGE_URL")),
		},
		Notify: NotifyConfig{
			ChannelTopics:  parseChannelTopics(os.Getenv("NOTIFY_CHANNEL_TOPICS")),
			DefaultTopic:   strings.TrimSpace(os.Getenv("NOTIFY_DEFAULT_TOPIC_ARN")),
			ChargesChannel: valueOrDefault("NOTIFY_CHARGES_CHANNEL", defaultChargesChannel),
			RefundsChannel: valueOrDefault("NOTIFY_REFUNDS_CHANNEL", defaultRefundsChannel),
		},
		Webhooks: WebhooksConfig{
			DedupeTable:   strings.TrimSpace(os.Getenv("SHOPIFY_WEBHOOK_DEDUPE_TABLE")),
			ArchiveBucket: strings.TrimSpace(os.Getenv("WEBHOOK_ARCHIVE_BUCKET")),
			ArchivePrefix: valueOrDefault("WEBHOOK_ARCHIVE_PREFIX", "failed_webhooks/"),
		},
		Logging: LoggingConfig{
			Level:  valueOrDefault("LOG_LEVEL", "info"),
			Format: valueOrDefault("LOG_FORMAT", "json"),
		},
	}

	if cfg.Shopify.APIKey == "" || cfg.Shopify.APISecret == "" {
		return Config{}, fmt.Errorf("missing SHOPIFY_API_KEY / SHOPIFY_API_SECRET")
	}
	if serverDomain == "" {
		return Config{}, fmt.Errorf("missing SERVER_DOMAIN")
	}

	return cfg, nil
}

// secretResolver prefers a plain env var, falling back to the SSM parameter
// named by <KEY>_SSM_PARAM. The SSM client is only built when some secret
// actually needs it.
type secretResolver struct {
	client *ssm.Client
}

func newSecretResolver(ctx context.Context) (*secretResolver, error) {
	r := &secretResolver{}
	for _, key := range []string{"SHOPIFY_API_SECRET", "DATABASE_PASSWORD", "TOKEN_ENC_KEY_B64"} {
		if os.Getenv(key) == "" && strings.TrimSpace(os.Getenv(key+"_SSM_PARAM")) != "" {
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, fmt.Errorf("load aws config for ssm: %w", err)
			}
			r.client = ssm.NewFromConfig(awsCfg)
			break
		}
	}
	return r, nil
}

func (r *secretResolver) resolve(ctx context.Context, key string) (string, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v, nil
	}
	param := strings.TrimSpace(os.Getenv(key + "_SSM_PARAM"))
	if param == "" || r.client == nil {
		return "", nil
	}
	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &param,
		WithDecryption: boolPtr(true),
	})
	if err != nil {
		return "", fmt.Errorf("ssm get %s: %w", param, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("ssm parameter %s has no value", param)
	}
	return *out.Parameter.Value, nil
}

func boolPtr(b bool) *bool { return &b }

// parseChannelTopics parses "channel=arn,channel=arn" pairs.
func parseChannelTopics(raw string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(strings.TrimPrefix(k, "#"))
		v = strings.TrimSpace(v)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

func splitCSV(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func valueOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseIntWithDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func parseFloatWithDefault(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func parseDurationWithDefault(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
