package oauth

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

// exchangeTimeout bounds one token-endpoint round trip.
const exchangeTimeout = 10 * time.Second

// tokenResponse mirrors the provider token endpoint payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int64  `json:"expires_in"`
	IDToken      string `json:"id_token"`

	ErrorCode        string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// exchangeClient performs the code-for-token POST against a provider
// token endpoint.
type exchangeClient struct {
	httpClient *http.Client
}

func newExchangeClient() *exchangeClient {
	return &exchangeClient{httpClient: &http.Client{Timeout: exchangeTimeout}}
}

// exchange redeems an authorization code with its PKCE verifier.
func (c *exchangeClient) exchange(ctx context.Context, tokenURL string, creds ClientCredentials, code, verifier, redirectURI string) (tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("code_verifier", verifier)
	form.Set("redirect_uri", redirectURI)
	form.Set("client_id", creds.ClientID)
	if creds.ClientSecret != "" {
		form.Set("client_secret", creds.ClientSecret)
	}
	return c.post(ctx, tokenURL, form)
}

// refresh redeems a refresh token for a new token set.
func (c *exchangeClient) refresh(ctx context.Context, tokenURL string, creds ClientCredentials, refreshToken string) (tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", creds.ClientID)
	if creds.ClientSecret != "" {
		form.Set("client_secret", creds.ClientSecret)
	}
	return c.post(ctx, tokenURL, form)
}

// post submits a token-endpoint grant. A non-2xx response carries the
// provider detail; transport failures surface as retryable network
// errors.
func (c *exchangeClient) post(ctx context.Context, tokenURL string, form url.Values) (tokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if errReq != nil {
		return tokenResponse{}, fmt.Errorf("oauth: build exchange request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		return tokenResponse{}, apperrors.NewNetwork(errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	body, errRead := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if errRead != nil {
		return tokenResponse{}, apperrors.NewNetwork(errRead)
	}

	var parsed tokenResponse
	if errUnmarshal := json.Unmarshal(body, &parsed); errUnmarshal != nil && resp.StatusCode < 300 {
		return tokenResponse{}, apperrors.NewExchange("malformed token response", errUnmarshal)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := strings.TrimSpace(parsed.ErrorDescription)
		if detail == "" {
			detail = strings.TrimSpace(parsed.ErrorCode)
		}
		if detail == "" {
			detail = fmt.Sprintf("token endpoint returned status %d", resp.StatusCode)
		}
		return tokenResponse{}, apperrors.NewExchange(detail, nil)
	}

	if strings.TrimSpace(parsed.AccessToken) == "" {
		return tokenResponse{}, apperrors.NewExchange("token response missing access_token", nil)
	}
	return parsed, nil
}
