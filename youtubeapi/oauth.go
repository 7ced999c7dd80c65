package youtubeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/onnwee/chat-console/config"
)

// TokenEndpoint is the Google OAuth token endpoint. Overridable in tests.
var TokenEndpoint = google.Endpoint.TokenURL

// TokenPair is the credential set held for the console's single operator
// account. RefreshToken is empty for implicit-flow handoffs.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string
}

// OAuthConfig builds the authorization-code flow config from app settings.
func OAuthConfig(cfg *config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.YTClientID,
		ClientSecret: cfg.YTClientSecret,
		RedirectURL:  cfg.YTRedirectURI,
		Scopes:       cfg.YTScopes,
		Endpoint:     google.Endpoint,
	}
}

// AuthCodeURL returns the consent page URL for the given CSRF state. Offline
// access is requested so the grant yields a refresh token.
func AuthCodeURL(cfg *config.Config, state string) string {
	return OAuthConfig(cfg).AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
}

// ExchangeAuthCode trades an authorization code for tokens.
func ExchangeAuthCode(ctx context.Context, cfg *config.Config, code string) (TokenPair, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", cfg.YTClientID)
	form.Set("client_secret", cfg.YTClientSecret)
	form.Set("redirect_uri", cfg.YTRedirectURI)
	return postTokenForm(ctx, form)
}

// RefreshToken trades a refresh token for a fresh access token. Google does
// not rotate refresh tokens on refresh, so the input token is carried forward.
func RefreshToken(ctx context.Context, cfg *config.Config, refreshToken string) (TokenPair, error) {
	if refreshToken == "" {
		return TokenPair{}, errors.New("youtubeapi: no refresh token")
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", cfg.YTClientID)
	form.Set("client_secret", cfg.YTClientSecret)
	pair, err := postTokenForm(ctx, form)
	if err != nil {
		return TokenPair{}, err
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	return pair, nil
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int    `json:"expires_in"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func postTokenForm(ctx context.Context, form url.Values) (TokenPair, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, TokenEndpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return TokenPair{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return TokenPair{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return TokenPair{}, fmt.Errorf("read token response: %w", err)
	}
	var tr tokenResponse
	if resp.StatusCode != http.StatusOK {
		// Surface the provider's own description verbatim when present;
		// "invalid_grant" alone tells an operator nothing.
		if json.Unmarshal(body, &tr) == nil && tr.ErrorDescription != "" {
			return TokenPair{}, fmt.Errorf("token endpoint: %s", tr.ErrorDescription)
		}
		if tr.Error != "" {
			return TokenPair{}, fmt.Errorf("token endpoint: %s", tr.Error)
		}
		return TokenPair{}, fmt.Errorf("token endpoint: status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &tr); err != nil {
		return TokenPair{}, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return TokenPair{}, errors.New("token endpoint: empty access token")
	}
	return TokenPair{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    ComputeExpiry(tr.ExpiresIn),
		Scope:        tr.Scope,
	}, nil
}

// ComputeExpiry turns an expires_in value into an absolute deadline. A zero
// or missing value defaults to one hour out.
func ComputeExpiry(expiresIn int) time.Time {
	if expiresIn <= 0 {
		return time.Now().Add(time.Hour)
	}
	return time.Now().Add(time.Duration(expiresIn) * time.Second)
}
