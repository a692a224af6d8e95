package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apppay "github.com/Zhima-Mochi/storefront/internal/application/payment"
	dompay "github.com/Zhima-Mochi/storefront/internal/domain/payment"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultBaseURL   = "https://api-m.sandbox.paypal.com"
	DefaultCurrency  = "USD"
	DefaultTimeout   = 15 * time.Second
	maxResponseBytes = 1 << 20
)

type Config struct {
	BaseURL  string
	ClientID string
	Secret   string
	Currency string
	TokenKey string
}

// Client calls PayPal's Orders v2 API with a client-credentials token.
type Client struct {
	cfg    Config
	http   *http.Client
	tokens *TokenCache
}

var _ apppay.PayPalGateway = (*Client)(nil)

// New builds a client. rdb is optional and shares the access token across
// processes when set.
func New(cfg Config, httpClient *http.Client, rdb redis.Cmdable) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	c := &Client{cfg: cfg, http: httpClient}
	c.tokens = NewTokenCache(c.fetchToken, rdb, cfg.TokenKey)
	return c
}

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	ReferenceID string `json:"reference_id"`
	Amount      amount `json:"amount"`
}

type createOrderBody struct {
	Intent        string         `json:"intent"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
}

func (c *Client) CreateOrder(ctx context.Context, req apppay.PayPalOrderRequest) (*apppay.PayPalOrder, error) {
	body, err := json.Marshal(createOrderBody{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: req.ReferenceID,
			Amount:      amount{CurrencyCode: c.cfg.Currency, Value: req.Amount.StringFixed(2)},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("paypal: encode order: %w", err)
	}
	return c.orders(ctx, "/v2/checkout/orders", body)
}

func (c *Client) CaptureOrder(ctx context.Context, paypalOrderID string) (*apppay.PayPalOrder, error) {
	return c.orders(ctx, "/v2/checkout/orders/"+url.PathEscape(paypalOrderID)+"/capture", nil)
}

// orders posts to an Orders API path, refreshing the token once on 401.
func (c *Client) orders(ctx context.Context, path string, body []byte) (*apppay.PayPalOrder, error) {
	for attempt := 0; ; attempt++ {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		status, raw, err := c.post(ctx, path, token, body)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized && attempt == 0 {
			c.tokens.Invalidate(ctx)
			continue
		}
		return decodeOrder(status, raw)
	}
}

func (c *Client) post(ctx context.Context, path, token string, body []byte) (int, []byte, error) {
	if body == nil {
		body = []byte("{}")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("paypal: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: paypal: %s: %w", apppay.ErrProviderUnavailable, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: paypal: read %s: %w", apppay.ErrProviderUnavailable, path, err)
	}
	return resp.StatusCode, raw, nil
}

type orderBody struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type errorBody struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func decodeOrder(status int, raw []byte) (*apppay.PayPalOrder, error) {
	switch {
	case status >= 200 && status < 300:
		var ob orderBody
		if err := json.Unmarshal(raw, &ob); err != nil || ob.ID == "" {
			return nil, fmt.Errorf("%w: paypal: unreadable order response", apppay.ErrProviderUnavailable)
		}
		return &apppay.PayPalOrder{ID: ob.ID, Status: ob.Status, Raw: json.RawMessage(raw)}, nil
	case status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusUnauthorized:
		return nil, &apppay.ProviderError{Provider: dompay.ProviderPayPal, Message: errorMessage(status, raw)}
	default:
		return nil, fmt.Errorf("%w: paypal: HTTP %d", apppay.ErrProviderUnavailable, status)
	}
}

func errorMessage(status int, raw []byte) string {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil {
		return fmt.Sprintf("HTTP %d", status)
	}
	msg := eb.Message
	if msg == "" {
		msg = eb.Name
	}
	if len(eb.Details) > 0 && eb.Details[0].Issue != "" {
		msg += ": " + eb.Details[0].Issue
	}
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", status)
	}
	return msg
}

type tokenBody struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *Client) fetchToken(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("paypal: build token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.Secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: paypal: token: %w", apppay.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("%w: paypal: token returned HTTP %d", apppay.ErrProviderUnavailable, resp.StatusCode)
	}
	var tb tokenBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&tb); err != nil || tb.AccessToken == "" {
		return "", 0, fmt.Errorf("%w: paypal: unreadable token response", apppay.ErrProviderUnavailable)
	}
	return tb.AccessToken, time.Duration(tb.ExpiresIn) * time.Second, nil
}
