// Package shopify wraps the commerce platform's admin REST API: order
// create/update and customer search, authenticated with an access-token
// header. Upstream error bodies are passed through verbatim.
package shopify

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
)

const apiVersion = "2024-01"

type LineItem struct {
	VariantID int64  `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
	Title     string `json:"title,omitempty"`
	Price     string `json:"price,omitempty"`
}

type Address struct {
	Address1 string `json:"address1,omitempty"`
	Address2 string `json:"address2,omitempty"`
	City     string `json:"city,omitempty"`
	Province string `json:"province,omitempty"`
	Country  string `json:"country,omitempty"`
	Zip      string `json:"zip,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

type OrderRequest struct {
	Email           string     `json:"email,omitempty"`
	LineItems       []LineItem `json:"line_items"`
	ShippingAddress *Address   `json:"shipping_address,omitempty"`
	FinancialStatus string     `json:"financial_status"`
	Tags            string     `json:"tags,omitempty"`
	Note            string     `json:"note,omitempty"`
	SendReceipt     bool       `json:"send_receipt"`
}

type Order struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	FinancialStatus string `json:"financial_status"`
	Tags            string `json:"tags,omitempty"`
}

type OrderUpdate struct {
	Note string `json:"note,omitempty"`
	Tags string `json:"tags,omitempty"`
}

type Customer struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Tags  string `json:"tags"`
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient takes the store's admin base URL (https://<shop>.myshopify.com)
// and an admin API access token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	var out struct {
		Order *Order `json:"order"`
	}
	err := c.do(ctx, http.MethodPost, "/orders.json", map[string]any{"order": req}, &out)
	if err != nil {
		return nil, err
	}
	if out.Order == nil {
		return nil, fmt.Errorf("shopify: order missing from response")
	}
	return out.Order, nil
}

func (c *Client) UpdateOrder(ctx context.Context, id int64, upd OrderUpdate) error {
	body := map[string]any{"order": map[string]any{"id": id, "note": upd.Note, "tags": upd.Tags}}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/orders/%d.json", id), body, nil)
}

func (c *Client) SearchCustomers(ctx context.Context, email string) ([]Customer, error) {
	var out struct {
		Customers []Customer `json:"customers"`
	}
	path := "/customers/search.json?query=" + url.QueryEscape("email:"+email)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Customers, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	u := c.baseURL + "/admin/api/" + apiVersion + path
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-Shopify-Access-Token", c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("shopify: status %d: %s", resp.StatusCode, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("shopify: decode response: %w", err)
		}
	}
	return nil
}
