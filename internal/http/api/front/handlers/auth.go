package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sheetmind/sheetmind-backend/internal/apperrors"
	"github.com/sheetmind/sheetmind-backend/internal/errlog"
	"github.com/sheetmind/sheetmind-backend/internal/oauth"
	"github.com/sheetmind/sheetmind-backend/internal/session"
	"github.com/sheetmind/sheetmind-backend/internal/tokenstore"
)

// AuthHandler serves the authorization handshake and session proxy
// endpoints.
type AuthHandler struct {
	orchestrator *oauth.Orchestrator
	tokens       oauth.TokenStore
	sessions     *session.CookieResolver
	resolver     session.Resolver
	upstream     *session.UpstreamClient
	errors       *errlog.Recorder
	sessionTTL   time.Duration
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(orchestrator *oauth.Orchestrator, tokens oauth.TokenStore, sessions *session.CookieResolver, resolver session.Resolver, upstream *session.UpstreamClient, errors *errlog.Recorder, sessionTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		orchestrator: orchestrator,
		tokens:       tokens,
		sessions:     sessions,
		resolver:     resolver,
		upstream:     upstream,
		errors:       errors,
		sessionTTL:   sessionTTL,
	}
}

// initiateRequest is the POST /auth/:provider/initiate body.
type initiateRequest struct {
	Mode string `json:"mode"`
}

// Initiate starts a handshake and returns the authorization URL.
func (h *AuthHandler) Initiate(c *gin.Context) {
	provider, errProvider := oauth.ParseProvider(c.Param("provider"))
	if errProvider != nil {
		respondError(c, errProvider)
		return
	}

	var payload initiateRequest
	// Empty body means sign-in.
	_ = c.ShouldBindJSON(&payload)
	mode, errMode := oauth.ParseMode(payload.Mode)
	if errMode != nil {
		respondError(c, errMode)
		return
	}

	var userID string
	if mode == oauth.ModeGrantPermissions {
		sess, errResolve := h.resolver.Resolve(c.Request.Context(), c.Request)
		if errResolve != nil {
			respondError(c, errResolve)
			return
		}
		userID = sess.UserID
	}

	authURL, errInitiate := h.orchestrator.Initiate(c.Request.Context(), provider, mode, userID)
	if errInitiate != nil {
		h.errors.Record(c.Request.Context(), userID, errInitiate.Error(), apperrors.CodeOf(errInitiate))
		respondError(c, errInitiate)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authorization_url": authURL})
}

// Callback returns the handler for a provider's fixed callback route.
func (h *AuthHandler) Callback(provider oauth.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.completeCallback(c, provider)
	}
}

// HostedCallback serves the provider-hosted callback variant, which
// carries the provider in a query parameter.
func (h *AuthHandler) HostedCallback(c *gin.Context) {
	provider, errProvider := oauth.ParseProvider(c.DefaultQuery("provider", string(oauth.ProviderGoogle)))
	if errProvider != nil {
		c.Redirect(http.StatusFound, errorRedirect(errProvider))
		return
	}
	h.completeCallback(c, provider)
}

// completeCallback finishes the handshake and redirects the browser.
func (h *AuthHandler) completeCallback(c *gin.Context, provider oauth.Provider) {
	providerErr := c.Query("error")
	if description := c.Query("error_description"); description != "" {
		providerErr = description
	}

	result, errCallback := h.orchestrator.HandleCallback(
		c.Request.Context(), provider, c.Query("code"), c.Query("state"), providerErr)
	if errCallback != nil {
		h.errors.Record(c.Request.Context(), result.UserID, errCallback.Error(), apperrors.CodeOf(errCallback))
		c.Redirect(http.StatusFound, errorRedirect(errCallback))
		return
	}

	if result.Mode == oauth.ModeSignIn {
		token, errToken := h.sessions.IssueToken(result.UserID, "", h.sessionTTL)
		if errToken != nil {
			h.errors.Record(c.Request.Context(), result.UserID, errToken.Error(), "")
			c.Redirect(http.StatusFound, errorRedirect(errToken))
			return
		}
		c.SetCookie(session.SessionCookie, token, int(h.sessionTTL/time.Second), "/", "", false, true)
		c.Redirect(http.StatusFound, oauth.RouteNames)
		return
	}
	c.Redirect(http.StatusFound, oauth.RouteDashboard)
}

// storeTokensRequest is the body for the direct token storage routes.
type storeTokensRequest struct {
	AccessToken  string `json:"access_token" binding:"required"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int64  `json:"expires_in"`
}

// StoreTokens returns the handler persisting a client-supplied token
// set for the signed-in user.
func (h *AuthHandler) StoreTokens(provider oauth.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := session.FromContext(c)
		if !ok {
			respondError(c, apperrors.NewSessionAbsent())
			return
		}

		var payload storeTokensRequest
		if errBind := c.ShouldBindJSON(&payload); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		set := tokenstore.TokenSet{
			AccessToken:  payload.AccessToken,
			RefreshToken: payload.RefreshToken,
			TokenType:    payload.TokenType,
			Scope:        payload.Scope,
		}
		if payload.ExpiresIn > 0 {
			set.ExpiresAt = time.Now().UTC().Add(time.Duration(payload.ExpiresIn) * time.Second)
		}

		if errUpsert := h.tokens.Upsert(c.Request.Context(), sess.UserID, string(provider), set); errUpsert != nil {
			h.errors.Record(c.Request.Context(), sess.UserID, errUpsert.Error(), apperrors.CodeOf(errUpsert))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store tokens failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "tokens stored"})
	}
}

// SkipPermissionsSetup marks setup complete without a second grant.
func (h *AuthHandler) SkipPermissionsSetup(c *gin.Context) {
	sess, ok := session.FromContext(c)
	if !ok {
		respondError(c, apperrors.NewSessionAbsent())
		return
	}
	if errComplete := h.orchestrator.CompleteSetup(c.Request.Context(), sess.UserID); errComplete != nil {
		respondError(c, errComplete)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "permissions setup completed"})
}

// refreshRequest is the POST /auth/refresh-token body.
type refreshRequest struct {
	Provider string `json:"provider"`
}

// RefreshToken rotates the signed-in user's stored token set for a
// provider.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	sess, ok := session.FromContext(c)
	if !ok {
		respondError(c, apperrors.NewSessionAbsent())
		return
	}

	var payload refreshRequest
	_ = c.ShouldBindJSON(&payload)
	if strings.TrimSpace(payload.Provider) == "" {
		payload.Provider = string(oauth.ProviderMicrosoft)
	}
	provider, errProvider := oauth.ParseProvider(payload.Provider)
	if errProvider != nil {
		respondError(c, errProvider)
		return
	}

	set, errRefresh := h.orchestrator.Refresh(c.Request.Context(), sess.UserID, provider)
	if errRefresh != nil {
		h.errors.Record(c.Request.Context(), sess.UserID, errRefresh.Error(), apperrors.CodeOf(errRefresh))
		respondError(c, errRefresh)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": set.AccessToken,
		"expires_at":   set.ExpiresAt,
	})
}

// Me proxies the current-profile lookup to the upstream auth service.
func (h *AuthHandler) Me(c *gin.Context) {
	h.proxy(c, http.MethodGet, "/auth/me")
}

// Token proxies the access-token lookup to the upstream auth service.
func (h *AuthHandler) Token(c *gin.Context) {
	h.proxy(c, http.MethodGet, "/auth/token")
}

// Logout clears the local session cookie and forwards the logout to
// the upstream auth service.
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetCookie(session.SessionCookie, "", -1, "/", "", false, true)
	h.proxy(c, http.MethodPost, "/auth/logout")
}

// proxy forwards a session operation upstream and translates the
// upstream error body.
func (h *AuthHandler) proxy(c *gin.Context, method, path string) {
	status, body, errForward := h.upstream.Forward(c.Request.Context(), method, path, c.Request)
	if errForward != nil {
		respondError(c, errForward)
		return
	}
	if status < 200 || status >= 300 {
		c.JSON(status, gin.H{"error": session.Detail(body)})
		return
	}
	c.Data(status, "application/json", body)
}

// errorRedirect builds the error page target from the envelope.
func errorRedirect(err error) string {
	envelope := apperrors.Envelope(err)
	q := url.Values{}
	q.Set("error", envelope["error"])
	q.Set("error_code", envelope["error_code"])
	if strings.TrimSpace(envelope["error_description"]) != "" {
		q.Set("error_description", envelope["error_description"])
	}
	return oauth.RouteError + "?" + q.Encode()
}
