// Package stripe is a thin client for the slice of the payment processor's
// API this service touches: creating and retrieving payment intents, and
// verifying webhook signatures. SDK internals are out of scope on purpose.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Intent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Status       string            `json:"status"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata"`
}

type Client struct {
	baseURL       string
	secretKey     string
	webhookSecret string
	http          *http.Client

	// tolerance bounds how stale a webhook timestamp may be.
	tolerance time.Duration
}

func NewClient(baseURL, secretKey, webhookSecret string) *Client {
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		http:          &http.Client{Timeout: 10 * time.Second},
		tolerance:     5 * time.Minute,
	}
}

// CreateIntent reserves amountCents for capture and returns the intent id and
// client secret the browser needs to complete payment.
func (c *Client) CreateIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	form.Set("currency", currency)
	form.Set("automatic_payment_methods[enabled]", "true")
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}
	return c.doIntent(ctx, http.MethodPost, "/v1/payment_intents", strings.NewReader(form.Encode()))
}

func (c *Client) GetIntent(ctx context.Context, id string) (*Intent, error) {
	return c.doIntent(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(id), nil)
}

func (c *Client) doIntent(ctx context.Context, method, path string, body io.Reader) (*Intent, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
				Code    string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("stripe: %s (%s)", apiErr.Error.Message, apiErr.Error.Code)
		}
		return nil, fmt.Errorf("stripe: status %d: %s", resp.StatusCode, raw)
	}

	var intent Intent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return nil, fmt.Errorf("stripe: decode intent: %w", err)
	}
	return &intent, nil
}
