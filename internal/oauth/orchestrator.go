package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sheetmind/sheetmind-backend/internal/apperrors"
	"github.com/sheetmind/sheetmind-backend/internal/models"
	"github.com/sheetmind/sheetmind-backend/internal/pkce"
	"github.com/sheetmind/sheetmind-backend/internal/tokenstore"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// handshakeTTL bounds how long an initiated handshake stays claimable.
const handshakeTTL = 10 * time.Minute

// HandshakeState tracks one handshake instance through its legs.
type HandshakeState string

// Handshake states. Failed is terminal from any non-terminal state.
const (
	StateInitiated        HandshakeState = "INITIATED"
	StateCallbackReceived HandshakeState = "CALLBACK_RECEIVED"
	StateExchanged        HandshakeState = "EXCHANGED"
	StateComplete         HandshakeState = "COMPLETE"
	StateFailed           HandshakeState = "FAILED"
)

// ClientCredentials holds one provider's OAuth client registration.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

// Config carries the orchestrator's explicit configuration. No
// ambient clients: everything is passed at construction.
type Config struct {
	// BaseURL is the application origin used to build redirect URIs.
	BaseURL string

	Google    ClientCredentials
	Microsoft ClientCredentials
}

// TokenStore is the persistence contract the orchestrator consumes.
type TokenStore interface {
	Upsert(ctx context.Context, userID, provider string, set tokenstore.TokenSet) error
	Get(ctx context.Context, userID, provider string) (tokenstore.TokenSet, error)
}

// Result reports a completed handshake.
type Result struct {
	UserID   string
	Provider Provider
	Mode     Mode
	State    HandshakeState
}

// Orchestrator drives the three-leg authorization handshake.
type Orchestrator struct {
	db       *gorm.DB
	registry *Registry
	cfg      Config
	tokens   TokenStore
	client   *exchangeClient

	tokenURLOverrides map[Provider]string
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithTokenEndpoint overrides a provider token endpoint. Used to point
// the exchange at a local stand-in.
func WithTokenEndpoint(provider Provider, tokenURL string) Option {
	return func(o *Orchestrator) { o.tokenURLOverrides[provider] = tokenURL }
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(db *gorm.DB, registry *Registry, cfg Config, tokens TokenStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		db:                db,
		registry:          registry,
		cfg:               cfg,
		tokens:            tokens,
		client:            newExchangeClient(),
		tokenURLOverrides: make(map[Provider]string),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// credentials returns the client registration for a provider.
func (o *Orchestrator) credentials(provider Provider) (ClientCredentials, error) {
	var creds ClientCredentials
	switch provider {
	case ProviderGoogle:
		creds = o.cfg.Google
	case ProviderMicrosoft:
		creds = o.cfg.Microsoft
	default:
		return ClientCredentials{}, apperrors.NewConfiguration("unknown provider: " + string(provider))
	}
	if strings.TrimSpace(creds.ClientID) == "" {
		return ClientCredentials{}, apperrors.NewConfiguration("missing client id for " + string(provider))
	}
	return creds, nil
}

// Initiate starts a handshake and returns the authorization URL.
// userID is empty for sign-in and set for incremental grants.
func (o *Orchestrator) Initiate(ctx context.Context, provider Provider, mode Mode, userID string) (string, error) {
	providerCfg, err := o.registry.Lookup(provider)
	if err != nil {
		return "", err
	}
	callbackPath, err := o.registry.CallbackPath(provider, mode)
	if err != nil {
		return "", err
	}
	creds, err := o.credentials(provider)
	if err != nil {
		return "", err
	}

	verifier, errVerifier := pkce.GenerateVerifier()
	if errVerifier != nil {
		return "", errVerifier
	}
	state := uuid.NewString()

	o.sweepExpired(ctx)

	row := models.PendingHandshake{
		State:     state,
		Verifier:  verifier,
		Provider:  string(provider),
		Mode:      string(mode),
		UserID:    strings.TrimSpace(userID),
		ExpiresAt: time.Now().UTC().Add(handshakeTTL),
	}
	if errCreate := o.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return "", fmt.Errorf("oauth: persist handshake: %w", errCreate)
	}

	authURL, errParse := url.Parse(providerCfg.AuthURL)
	if errParse != nil {
		return "", apperrors.NewConfiguration("invalid authorization endpoint for " + string(provider))
	}
	q := url.Values{}
	q.Set("client_id", creds.ClientID)
	q.Set("redirect_uri", o.redirectURI(callbackPath))
	q.Set("response_type", "code")
	q.Set("scope", providerCfg.ScopeString(mode))
	q.Set("state", state)
	q.Set("code_challenge", pkce.DeriveChallenge(verifier))
	q.Set("code_challenge_method", "S256")
	for k, v := range providerCfg.ExtraAuthParams {
		q.Set(k, v)
	}
	authURL.RawQuery = q.Encode()

	log.WithFields(log.Fields{"provider": provider, "mode": mode, "state": StateInitiated}).
		Debug("authorization handshake initiated")
	return authURL.String(), nil
}

// HandleCallback processes the provider redirect: it verifies the
// state nonce, redeems the code, stores the token set, and flips the
// user's permission flags.
func (o *Orchestrator) HandleCallback(ctx context.Context, provider Provider, code, state, providerErr string) (Result, error) {
	failed := Result{Provider: provider, State: StateFailed}

	if strings.TrimSpace(providerErr) != "" {
		// Provider-reported failure; discard the pending record so the
		// state cannot be replayed later.
		o.discardHandshake(ctx, state)
		return failed, apperrors.NewExchange(providerErr, nil)
	}
	if strings.TrimSpace(code) == "" {
		o.discardHandshake(ctx, state)
		return failed, apperrors.NewExchange("no code provided", nil)
	}

	handshake, errClaim := o.claimHandshake(ctx, provider, state)
	if errClaim != nil {
		return failed, errClaim
	}
	mode := Mode(handshake.Mode)

	providerCfg, err := o.registry.Lookup(provider)
	if err != nil {
		return failed, err
	}
	callbackPath, err := o.registry.CallbackPath(provider, mode)
	if err != nil {
		return failed, err
	}
	creds, err := o.credentials(provider)
	if err != nil {
		return failed, err
	}

	tokenURL := providerCfg.TokenURL
	if override := o.tokenURLOverrides[provider]; override != "" {
		tokenURL = override
	}

	resp, errExchange := o.client.exchange(ctx, tokenURL, creds, code, handshake.Verifier, o.redirectURI(callbackPath))
	if errExchange != nil {
		return failed, errExchange
	}

	userID := handshake.UserID
	identity, errIdentity := identityFromIDToken(provider, resp.IDToken)
	if errIdentity == nil && userID == "" {
		userID = identity.userID
	}
	if userID == "" {
		return failed, apperrors.NewExchange("cannot attribute token set: no user in handshake or id_token", nil)
	}

	if mode == ModeSignIn {
		if errEnsure := o.ensureUserRecords(ctx, userID, identity); errEnsure != nil {
			return failed, errEnsure
		}
	}

	expiresAt := time.Now().UTC().Add(time.Duration(resp.ExpiresIn) * time.Second)
	set := tokenstore.TokenSet{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		Scope:        resp.Scope,
		ExpiresAt:    expiresAt,
	}
	if errUpsert := o.tokens.Upsert(ctx, userID, string(provider), set); errUpsert != nil {
		return failed, errUpsert
	}

	if errMark := o.markPermissions(ctx, userID, provider); errMark != nil {
		return failed, errMark
	}

	log.WithFields(log.Fields{"provider": provider, "mode": mode, "user_id": userID, "state": StateComplete}).
		Info("authorization handshake completed")
	return Result{UserID: userID, Provider: provider, Mode: mode, State: StateComplete}, nil
}

// Refresh rotates the stored token set for a (user, provider) pair
// using its refresh token. Providers that omit the refresh token on
// rotation keep the previous one.
func (o *Orchestrator) Refresh(ctx context.Context, userID string, provider Provider) (tokenstore.TokenSet, error) {
	providerCfg, err := o.registry.Lookup(provider)
	if err != nil {
		return tokenstore.TokenSet{}, err
	}
	creds, err := o.credentials(provider)
	if err != nil {
		return tokenstore.TokenSet{}, err
	}

	current, errGet := o.tokens.Get(ctx, userID, string(provider))
	if errGet != nil {
		if errors.Is(errGet, tokenstore.ErrNotFound) {
			return tokenstore.TokenSet{}, apperrors.NewExchange("no token set stored for "+string(provider), nil)
		}
		return tokenstore.TokenSet{}, errGet
	}
	if strings.TrimSpace(current.RefreshToken) == "" {
		return tokenstore.TokenSet{}, apperrors.NewExchange("no refresh token stored for "+string(provider), nil)
	}

	tokenURL := providerCfg.TokenURL
	if override := o.tokenURLOverrides[provider]; override != "" {
		tokenURL = override
	}

	resp, errRefresh := o.client.refresh(ctx, tokenURL, creds, current.RefreshToken)
	if errRefresh != nil {
		return tokenstore.TokenSet{}, errRefresh
	}

	set := tokenstore.TokenSet{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		Scope:        resp.Scope,
		ExpiresAt:    time.Now().UTC().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	if set.RefreshToken == "" {
		set.RefreshToken = current.RefreshToken
	}
	if set.TokenType == "" {
		set.TokenType = current.TokenType
	}
	if set.Scope == "" {
		set.Scope = current.Scope
	}
	if errUpsert := o.tokens.Upsert(ctx, userID, string(provider), set); errUpsert != nil {
		return tokenstore.TokenSet{}, errUpsert
	}

	log.WithFields(log.Fields{"provider": provider, "user_id": userID}).Debug("token set refreshed")
	return set, nil
}

// redirectURI joins the application origin with a callback path.
func (o *Orchestrator) redirectURI(callbackPath string) string {
	return strings.TrimRight(o.cfg.BaseURL, "/") + callbackPath
}

// claimHandshake atomically consumes the pending record for a state.
// Single-use: a second callback for the same state finds nothing and
// is rejected before any network call.
func (o *Orchestrator) claimHandshake(ctx context.Context, provider Provider, state string) (models.PendingHandshake, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return models.PendingHandshake{}, apperrors.NewCsrf("missing state")
	}

	var row models.PendingHandshake
	errTx := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.Where("state = ?", state).First(&row).Error; errFind != nil {
			return errFind
		}
		res := tx.Where("id = ?", row.ID).Delete(&models.PendingHandshake{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if errTx != nil {
		if errors.Is(errTx, gorm.ErrRecordNotFound) {
			return models.PendingHandshake{}, apperrors.NewCsrf("unknown or already used state")
		}
		return models.PendingHandshake{}, fmt.Errorf("oauth: claim handshake: %w", errTx)
	}

	if row.Provider != string(provider) {
		return models.PendingHandshake{}, apperrors.NewCsrf("state issued for a different provider")
	}
	if time.Now().UTC().After(row.ExpiresAt) {
		return models.PendingHandshake{}, apperrors.NewCsrf("handshake expired")
	}
	return row, nil
}

// discardHandshake drops a pending record without claiming it.
func (o *Orchestrator) discardHandshake(ctx context.Context, state string) {
	state = strings.TrimSpace(state)
	if state == "" {
		return
	}
	if err := o.db.WithContext(ctx).Where("state = ?", state).Delete(&models.PendingHandshake{}).Error; err != nil {
		log.WithError(err).Warn("oauth: discard handshake failed")
	}
}

// sweepExpired removes stale unclaimed handshakes. Best effort.
func (o *Orchestrator) sweepExpired(ctx context.Context) {
	if err := o.db.WithContext(ctx).
		Where("expires_at < ?", time.Now().UTC()).
		Delete(&models.PendingHandshake{}).Error; err != nil {
		log.WithError(err).Warn("oauth: sweep expired handshakes failed")
	}
}

// ensureUserRecords bootstraps the profile and usage rows on first
// sign-in.
func (o *Orchestrator) ensureUserRecords(ctx context.Context, userID string, identity providerIdentity) error {
	profile := models.UserProfile{
		ID:                           userID,
		FirstName:                    identity.firstName,
		LastName:                     identity.lastName,
		Plan:                         models.PlanFree,
		ShowSheetModificationWarning: true,
	}
	if errProfile := o.db.WithContext(ctx).
		Where(models.UserProfile{ID: userID}).
		FirstOrCreate(&profile).Error; errProfile != nil {
		return fmt.Errorf("oauth: ensure profile: %w", errProfile)
	}

	usage := models.UserUsage{ID: userID, RecentURLs: []byte("[]"), RecentQueries: []byte("[]")}
	if errUsage := o.db.WithContext(ctx).
		Where(models.UserUsage{ID: userID}).
		FirstOrCreate(&usage).Error; errUsage != nil {
		return fmt.Errorf("oauth: ensure usage: %w", errUsage)
	}
	return nil
}

// markPermissions flips the provider flag and marks permissions setup
// complete. One granted provider is enough to use the product; the
// second can be connected later from settings.
func (o *Orchestrator) markPermissions(ctx context.Context, userID string, provider Provider) error {
	var profile models.UserProfile
	if errFind := o.db.WithContext(ctx).First(&profile, "id = ?", userID).Error; errFind != nil {
		return fmt.Errorf("oauth: load profile: %w", errFind)
	}

	switch provider {
	case ProviderGoogle:
		profile.GooglePermissionsSet = true
	case ProviderMicrosoft:
		profile.MicrosoftPermissionsSet = true
	}

	if errSave := o.db.WithContext(ctx).Model(&models.UserProfile{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"google_permissions_set":    profile.GooglePermissionsSet,
			"microsoft_permissions_set": profile.MicrosoftPermissionsSet,
			"permissions_setup_done":    true,
		}).Error; errSave != nil {
		return fmt.Errorf("oauth: mark permissions: %w", errSave)
	}
	return nil
}

// CompleteSetup marks permissions setup done without a grant. Backs
// the explicit skip action on the setup page.
func (o *Orchestrator) CompleteSetup(ctx context.Context, userID string) error {
	res := o.db.WithContext(ctx).Model(&models.UserProfile{}).
		Where("id = ?", strings.TrimSpace(userID)).
		Update("permissions_setup_done", true)
	if res.Error != nil {
		return fmt.Errorf("oauth: complete setup: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NewSessionAbsent()
	}
	return nil
}

// providerIdentity is the subset of id_token claims used for account
// bootstrap.
type providerIdentity struct {
	userID    string
	firstName string
	lastName  string
}

// identityFromIDToken derives a stable application user ID from the
// provider subject. The id_token arrived over TLS directly from the
// token endpoint, so its claims are read without local verification.
func identityFromIDToken(provider Provider, idToken string) (providerIdentity, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return providerIdentity{}, errors.New("oauth: no id_token in response")
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, errParse := parser.ParseUnverified(idToken, claims); errParse != nil {
		return providerIdentity{}, fmt.Errorf("oauth: parse id_token: %w", errParse)
	}

	sub, _ := claims["sub"].(string)
	if strings.TrimSpace(sub) == "" {
		return providerIdentity{}, errors.New("oauth: id_token missing sub")
	}

	identity := providerIdentity{
		userID: uuid.NewSHA1(uuid.NameSpaceURL, []byte("sheetmind:"+string(provider)+":"+sub)).String(),
	}
	if v, ok := claims["given_name"].(string); ok {
		identity.firstName = v
	}
	if v, ok := claims["family_name"].(string); ok {
		identity.lastName = v
	}
	return identity, nil
}
