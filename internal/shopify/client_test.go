package shopify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backend/internal/config"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.ShopifyConfig{APIVersion: "2021-04", RequestTimeout: 2 * time.Second}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewClient(cfg, "acme.myshopify.com", "shpat_tok", logger)
	c.baseURL = srv.URL + "/"
	c.httpClient = srv.Client()
	return c, srv
}

func TestCreatePriceRulePayload(t *testing.T) {
	var gotPath, gotToken string
	var gotBody map[string]any
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-Shopify-Access-Token")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"price_rule":{"id":111,"title":"t","value":"-15"}}`))
	})

	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	pr := c.CreatePriceRule(context.Background(), "t", "15", start, end)
	if pr == nil || pr.ID != 111 {
		t.Fatalf("price rule = %+v", pr)
	}
	if gotPath != "/price_rules.json" {
		t.Errorf("path = %s", gotPath)
	}
	if gotToken != "shpat_tok" {
		t.Errorf("token header = %q", gotToken)
	}

	rule, _ := gotBody["price_rule"].(map[string]any)
	if rule["value"] != "-15" || rule["value_type"] != "percentage" {
		t.Errorf("value = %v %v", rule["value"], rule["value_type"])
	}
	if rule["customer_selection"] != "all" || rule["target_type"] != "line_item" {
		t.Errorf("targeting = %v %v", rule["customer_selection"], rule["target_type"])
	}
	if rule["once_per_customer"] != true || rule["allocation_method"] != "across" {
		t.Errorf("allocation = %v %v", rule["once_per_customer"], rule["allocation_method"])
	}
	if rule["starts_at"] != "2024-05-01T00:00:00Z" {
		t.Errorf("starts_at = %v", rule["starts_at"])
	}
}

func TestCreateUsageChargePath(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"usage_charge":{"id":900,"description":"d","price":"7.82"}}`))
	})

	uc := c.CreateUsageCharge(context.Background(), 555, "d", "7.82")
	if uc == nil || uc.ID != 900 || uc.Price != "7.82" {
		t.Fatalf("usage charge = %+v", uc)
	}
	if gotPath != "/recurring_application_charges/555/usage_charges.json" {
		t.Errorf("path = %s", gotPath)
	}
	charge, _ := gotBody["usage_charge"].(map[string]any)
	if charge["price"] != "7.82" {
		t.Errorf("price = %v", charge["price"])
	}
}

func TestCallFailureReturnsNil(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":"rule not found"}`, http.StatusNotFound)
	})

	if pr := c.CreatePriceRule(context.Background(), "t", "15", time.Now(), time.Now()); pr != nil {
		t.Errorf("price rule = %+v, want nil on upstream error", pr)
	}
	if ok := c.DeletePriceRule(context.Background(), 111); ok {
		t.Error("delete reported success on upstream error")
	}
}

func TestRegisterWebhooks(t *testing.T) {
	var topics []string
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Webhook struct {
				Topic   string `json:"topic"`
				Address string `json:"address"`
				Format  string `json:"format"`
			} `json:"webhook"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		topics = append(topics, body.Webhook.Topic)
		if body.Webhook.Topic == "refunds/create" {
			http.Error(w, "nope", http.StatusUnprocessableEntity)
			return
		}
		_, _ = w.Write([]byte(`{"webhook":{"id":1}}`))
	})

	created, failed := c.RegisterWebhooks(context.Background(), "https://app.example.com")
	if len(created) != 2 || len(failed) != 1 || failed[0] != "refunds/create" {
		t.Errorf("created = %v failed = %v", created, failed)
	}
	if len(topics) != 3 {
		t.Errorf("topics = %v", topics)
	}
}
