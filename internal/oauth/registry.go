// Package oauth drives the authorization-code-with-PKCE handshake
// against the configured identity providers.
package oauth

import (
	"strings"

	"github.com/sheetmind/sheetmind-backend/internal/apperrors"
)

// Provider identifies an identity provider.
type Provider string

// Supported identity providers.
const (
	ProviderGoogle    Provider = "google"
	ProviderMicrosoft Provider = "microsoft"
)

// Mode distinguishes initial sign-in from incremental permission grants.
type Mode string

// Handshake modes.
const (
	ModeSignIn           Mode = "sign_in"
	ModeGrantPermissions Mode = "grant_permissions"
)

// Fixed redirect targets.
const (
	RouteDashboard        = "/dashboard"
	RouteLogin            = "/auth/login"
	RouteError            = "/auth/error"
	RouteNames            = "/auth/names"
	RouteSetupPermissions = "/auth/setup-permissions"
)

// HostedCallbackPath is the identity-provider-hosted-session callback
// variant, served alongside the per-provider callbacks.
const HostedCallbackPath = "/auth/callback"

// ProviderConfig is the static per-provider handshake configuration.
// Values are enumerated, never computed, to prevent scope and
// endpoint drift.
type ProviderConfig struct {
	AuthURL  string
	TokenURL string

	// Scopes per handshake mode, in request order. Sign-in needs the
	// identity scopes that make the provider issue an id_token; grants
	// request only the document scopes.
	Scopes map[Mode][]string

	// CallbackPaths maps each handshake mode to the application's
	// own callback route.
	CallbackPaths map[Mode]string

	// ExtraAuthParams are provider-specific authorization parameters.
	ExtraAuthParams map[string]string
}

// ScopeString returns the exact space-joined scope parameter for a mode.
func (c ProviderConfig) ScopeString(mode Mode) string {
	return strings.Join(c.Scopes[mode], " ")
}

// Registry holds the enumerated provider configurations. Read-only
// after construction.
type Registry struct {
	providers map[Provider]ProviderConfig
}

// NewRegistry constructs the static provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: map[Provider]ProviderConfig{
		ProviderGoogle: {
			AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
			Scopes: map[Mode][]string{
				ModeSignIn: {
					"openid",
					"email",
					"profile",
					"https://www.googleapis.com/auth/drive.file",
					"https://www.googleapis.com/auth/spreadsheets",
					"https://www.googleapis.com/auth/drive.readonly",
				},
				ModeGrantPermissions: {
					"https://www.googleapis.com/auth/drive.file",
					"https://www.googleapis.com/auth/spreadsheets",
					"https://www.googleapis.com/auth/drive.readonly",
				},
			},
			CallbackPaths: map[Mode]string{
				ModeSignIn:           "/auth/google/callback",
				ModeGrantPermissions: "/auth/google-permissions-callback",
			},
			ExtraAuthParams: map[string]string{
				"access_type": "offline",
				"prompt":      "consent",
			},
		},
		ProviderMicrosoft: {
			AuthURL:  "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
			TokenURL: "https://login.microsoftonline.com/common/oauth2/v2.0/token",
			Scopes: map[Mode][]string{
				ModeSignIn: {
					"openid",
					"email",
					"offline_access",
					"Files.Read",
					"Files.ReadWrite.Selected",
					"User.Read",
				},
				ModeGrantPermissions: {
					"openid",
					"email",
					"offline_access",
					"Files.Read",
					"Files.ReadWrite.Selected",
					"User.Read",
				},
			},
			CallbackPaths: map[Mode]string{
				ModeSignIn:           "/auth/microsoft/callback",
				ModeGrantPermissions: "/auth/microsoft-permissions-callback",
			},
		},
	}}
}

// Lookup returns the configuration for a provider.
func (r *Registry) Lookup(provider Provider) (ProviderConfig, error) {
	cfg, ok := r.providers[provider]
	if !ok {
		return ProviderConfig{}, apperrors.NewConfiguration("unknown provider: " + string(provider))
	}
	return cfg, nil
}

// CallbackPath returns the callback route for a provider and mode.
func (r *Registry) CallbackPath(provider Provider, mode Mode) (string, error) {
	cfg, err := r.Lookup(provider)
	if err != nil {
		return "", err
	}
	path, ok := cfg.CallbackPaths[mode]
	if !ok {
		return "", apperrors.NewConfiguration("unknown mode: " + string(mode))
	}
	return path, nil
}

// ParseProvider validates a provider name from a route parameter.
func ParseProvider(raw string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(raw))) {
	case ProviderGoogle:
		return ProviderGoogle, nil
	case ProviderMicrosoft:
		return ProviderMicrosoft, nil
	default:
		return "", apperrors.NewConfiguration("unknown provider: " + raw)
	}
}

// ParseMode validates a handshake mode, defaulting to sign-in.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeSignIn, "":
		return ModeSignIn, nil
	case ModeGrantPermissions:
		return ModeGrantPermissions, nil
	default:
		return "", apperrors.NewConfiguration("unknown mode: " + raw)
	}
}
