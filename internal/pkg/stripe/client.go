package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.stripe.com/v1"
	defaultTimeout = 30 * time.Second
)

// Client is a minimal Stripe API client covering the operations this
// service needs: customers and hosted checkout sessions. Stripe's API is
// form-encoded on the way in and JSON on the way out.
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

// NewClient creates a Stripe client
func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// Customer is a Stripe customer object (fields we care about)
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// CheckoutSession is a Stripe checkout session object (fields we care about)
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CheckoutParams describes a hosted checkout session to create
type CheckoutParams struct {
	CustomerID string
	Mode       string // "subscription" or "payment"
	PriceID    string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// CreateCustomer creates a Stripe customer tagged with our user ID
func (c *Client) CreateCustomer(ctx context.Context, email, userID string) (*Customer, error) {
	form := url.Values{}
	form.Set("email", email)
	form.Set("metadata[user_id]", userID)

	var customer Customer
	if err := c.post(ctx, "/customers", form, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

// CreateCheckoutSession creates a hosted checkout session
func (c *Client) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("customer", params.CustomerID)
	form.Set("mode", params.Mode)
	form.Set("payment_method_types[0]", "card")
	form.Set("line_items[0][price]", params.PriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	for k, v := range params.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var session CheckoutSession
	if err := c.post(ctx, "/checkout/sessions", form, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out interface{}) error {
	if c.secretKey == "" {
		return fmt.Errorf("stripe: secret key not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("stripe: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.secretKey, "")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("stripe: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("stripe: http error: status=%d body=%s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("stripe: decode response: %w", err)
	}
	return nil
}
