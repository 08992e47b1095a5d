// Package billing talks to the billing provider's API.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sheetmind/sheetmind-backend/internal/apperrors"
)

// requestTimeout bounds one billing API round trip.
const requestTimeout = 10 * time.Second

// defaultAPIBase is the billing provider API origin.
const defaultAPIBase = "https://api.stripe.com"

// StripeClient creates billing portal sessions against the Stripe API.
type StripeClient struct {
	secretKey  string
	apiBase    string
	httpClient *http.Client
}

// NewStripeClient constructs a StripeClient.
func NewStripeClient(secretKey string) *StripeClient {
	return &StripeClient{
		secretKey:  strings.TrimSpace(secretKey),
		apiBase:    defaultAPIBase,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// WithAPIBase overrides the API origin. Used to point at a stand-in.
func (c *StripeClient) WithAPIBase(base string) *StripeClient {
	c.apiBase = strings.TrimRight(base, "/")
	return c
}

// CreatePortalSession opens a self-service portal session for a
// customer and returns the redirect URL.
func (c *StripeClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if c == nil || c.secretKey == "" {
		return "", apperrors.NewConfiguration("billing secret key not configured")
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return "", apperrors.NewBillingLinkMissing("")
	}

	form := url.Values{}
	form.Set("customer", customerID)
	if strings.TrimSpace(returnURL) != "" {
		form.Set("return_url", returnURL)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+"/v1/billing_portal/sessions", strings.NewReader(form.Encode()))
	if errReq != nil {
		return "", fmt.Errorf("billing: build portal request: %w", errReq)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		return "", apperrors.NewNetwork(errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	body, errRead := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if errRead != nil {
		return "", apperrors.NewNetwork(errRead)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		detail := fmt.Sprintf("billing api returned status %d", resp.StatusCode)
		if errUnmarshal := json.Unmarshal(body, &apiErr); errUnmarshal == nil && apiErr.Error.Message != "" {
			detail = apiErr.Error.Message
		}
		return "", fmt.Errorf("billing: create portal session: %s", detail)
	}

	var session struct {
		URL string `json:"url"`
	}
	if errUnmarshal := json.Unmarshal(body, &session); errUnmarshal != nil || session.URL == "" {
		return "", fmt.Errorf("billing: malformed portal session response")
	}
	return session.URL, nil
}
