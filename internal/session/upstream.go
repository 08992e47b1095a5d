package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sheetmind/sheetmind-backend/internal/apperrors"
)

// upstreamTimeout bounds one call to the upstream auth service.
const upstreamTimeout = 10 * time.Second

// UpstreamClient proxies session operations to the upstream auth
// service, forwarding the caller's cookies.
type UpstreamClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewUpstreamClient constructs an UpstreamClient.
func NewUpstreamClient(baseURL string) *UpstreamClient {
	return &UpstreamClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: upstreamTimeout},
	}
}

// Forward relays a request to the upstream service and returns the
// status and raw body. Transport failures surface as network errors.
func (c *UpstreamClient) Forward(ctx context.Context, method, path string, inbound *http.Request) (int, []byte, error) {
	if c == nil || c.baseURL == "" {
		return 0, nil, apperrors.NewConfiguration("upstream auth service not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, upstreamTimeout)
	defer cancel()

	req, errReq := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if errReq != nil {
		return 0, nil, fmt.Errorf("session: build upstream request: %w", errReq)
	}
	if inbound != nil {
		for _, cookie := range inbound.Cookies() {
			req.AddCookie(cookie)
		}
	}

	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		return 0, nil, apperrors.NewNetwork(errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	body, errRead := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if errRead != nil {
		return 0, nil, apperrors.NewNetwork(errRead)
	}
	return resp.StatusCode, body, nil
}

// Detail extracts the upstream error body's detail field, falling
// back to the raw body.
func Detail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if errUnmarshal := json.Unmarshal(body, &parsed); errUnmarshal == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return strings.TrimSpace(string(body))
}

// UpstreamResolver resolves sessions by asking the upstream auth
// service for the current profile.
type UpstreamResolver struct {
	client *UpstreamClient
}

// NewUpstreamResolver constructs an UpstreamResolver.
func NewUpstreamResolver(client *UpstreamClient) *UpstreamResolver {
	return &UpstreamResolver{client: client}
}

// Resolve calls the upstream /auth/me. Any non-2xx answer means no
// usable session.
func (r *UpstreamResolver) Resolve(ctx context.Context, req *http.Request) (Session, error) {
	status, body, err := r.client.Forward(ctx, http.MethodGet, "/auth/me", req)
	if err != nil {
		return Session{}, err
	}
	if status < 200 || status >= 300 {
		return Session{}, apperrors.NewSessionAbsent()
	}

	var payload struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if errUnmarshal := json.Unmarshal(body, &payload); errUnmarshal != nil || payload.ID == "" {
		return Session{}, apperrors.NewSessionAbsent()
	}
	return Session{UserID: payload.ID, Email: payload.Email}, nil
}
