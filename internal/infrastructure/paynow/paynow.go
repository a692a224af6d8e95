package paynow

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apppay "github.com/Zhima-Mochi/storefront/internal/application/payment"
	dompay "github.com/Zhima-Mochi/storefront/internal/domain/payment"
)

var ErrMalformed = errors.New("paynow: malformed form body")

const (
	hashKey          = "hash"
	maxResponseBytes = 64 << 10
	DefaultTimeout   = 15 * time.Second
	// ReferencePlaceholder in ReturnURL is replaced by the payment reference.
	ReferencePlaceholder = "{reference}"
)

type Config struct {
	IntegrationID  string
	IntegrationKey string
	InitiateURL    string
	ReturnURL      string
	ResultURL      string
}

// Client talks to Paynow's "initiate transaction" endpoint and verifies the
// status updates it posts back.
type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{cfg: cfg, http: httpClient}
}

var _ apppay.PaynowGateway = (*Client)(nil)

func (c *Client) Initiate(ctx context.Context, req apppay.PaynowRequest) (*apppay.PaynowRedirect, error) {
	fields := []apppay.Field{
		{Key: "id", Value: c.cfg.IntegrationID},
		{Key: "reference", Value: req.Reference},
		{Key: "amount", Value: req.Amount.StringFixed(2)},
		{Key: "additionalinfo", Value: req.AdditionalInfo},
		{Key: "returnurl", Value: strings.ReplaceAll(c.cfg.ReturnURL, ReferencePlaceholder, url.QueryEscape(req.Reference))},
		{Key: "resulturl", Value: c.cfg.ResultURL},
		{Key: "status", Value: "Message"},
	}
	fields = append(fields, apppay.Field{Key: hashKey, Value: Hash(fields, c.cfg.IntegrationKey)})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.InitiateURL, strings.NewReader(EncodeFields(fields)))
	if err != nil {
		return nil, fmt.Errorf("paynow: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: paynow: initiate: %w", apppay.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: paynow: read response: %w", apppay.ErrProviderUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: paynow: initiate returned HTTP %d", apppay.ErrProviderUnavailable, resp.StatusCode)
	}

	out, err := ParseFields(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apppay.ErrProviderUnavailable, err)
	}
	switch strings.ToLower(lookup(out, "status")) {
	case "ok":
	case "error":
		msg := lookup(out, "error")
		if msg == "" {
			msg = "unknown error from Paynow"
		}
		return nil, &apppay.ProviderError{Provider: dompay.ProviderPaynow, Message: msg}
	default:
		return nil, fmt.Errorf("%w: paynow: unexpected status %q", apppay.ErrProviderUnavailable, lookup(out, "status"))
	}
	if lookup(out, hashKey) != "" && !c.Verify(out) {
		return nil, fmt.Errorf("%w: paynow: response hash mismatch", apppay.ErrProviderUnavailable)
	}

	return &apppay.PaynowRedirect{
		BrowserURL:        lookup(out, "browserurl"),
		PollURL:           lookup(out, "pollurl"),
		ProviderReference: lookup(out, "paynowreference"),
	}, nil
}

// Verify recomputes the hash over every field except hash, in the order received.
func (c *Client) Verify(fields []apppay.Field) bool {
	got := lookup(fields, hashKey)
	if got == "" {
		return false
	}
	want := Hash(fields, c.cfg.IntegrationKey)
	return subtle.ConstantTimeCompare([]byte(strings.ToUpper(got)), []byte(want)) == 1
}

// Hash is SHA512 over the concatenated field values (hash excluded) followed by
// the integration key, as upper-case hex.
func Hash(fields []apppay.Field, integrationKey string) string {
	h := sha512.New()
	for _, f := range fields {
		if strings.EqualFold(f.Key, hashKey) {
			continue
		}
		_, _ = io.WriteString(h, f.Value)
	}
	_, _ = io.WriteString(h, integrationKey)
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil)))
}

// ParseFields decodes a form body and keeps the pairs in wire order.
func ParseFields(body string) ([]apppay.Field, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrMalformed
	}
	pairs := strings.Split(body, "&")
	fields := make([]apppay.Field, 0, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: pair %q", ErrMalformed, pair)
		}
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", ErrMalformed, k, err)
		}
		val, err := url.QueryUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("%w: value of %q: %v", ErrMalformed, key, err)
		}
		fields = append(fields, apppay.Field{Key: key, Value: val})
	}
	return fields, nil
}

// EncodeFields is the inverse of ParseFields.
func EncodeFields(fields []apppay.Field) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(f.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f.Value))
	}
	return b.String()
}

func lookup(fields []apppay.Field, key string) string {
	for _, f := range fields {
		if strings.EqualFold(f.Key, key) {
			return f.Value
		}
	}
	return ""
}
