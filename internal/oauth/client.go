package oauth

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

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/google"

	"coursebase.org/internal/auth"
)

// ErrNoIDToken indicates the provider response carried no id_token to
// derive a profile from.
var ErrNoIDToken = errors.New("oauth: no id token in provider response")

// Apple has no endpoint constant in golang.org/x/oauth2.
var appleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://appleid.apple.com/auth/authorize",
	TokenURL: "https://appleid.apple.com/auth/token",
}

const (
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	googleRevokeURL   = "https://oauth2.googleapis.com/revoke"
	facebookMeURL     = "https://graph.facebook.com/v18.0/me"
)

// Credentials is one provider's client registration. Empty ClientID means
// the provider is disabled.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Options configures the provider client set.
type Options struct {
	// RedirectBaseURL is prefixed to /v1/auth/oauth/{provider}/callback.
	RedirectBaseURL string
	Google          Credentials
	Facebook        Credentials
	Apple           Credentials
}

// Client implements auth.ProviderClient for google, facebook and apple.
type Client struct {
	configs map[auth.Provider]*oauth2.Config
	now     func() time.Time
}

var _ auth.ProviderClient = (*Client)(nil)

// New builds provider configs for every enabled provider.
func New(opts Options) *Client {
	base := strings.TrimRight(opts.RedirectBaseURL, "/")
	redirect := func(p auth.Provider) string {
		return fmt.Sprintf("%s/v1/auth/oauth/%s/callback", base, p)
	}

	configs := make(map[auth.Provider]*oauth2.Config)
	if opts.Google.ClientID != "" {
		configs[auth.ProviderGoogle] = &oauth2.Config{
			ClientID:     opts.Google.ClientID,
			ClientSecret: opts.Google.ClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  redirect(auth.ProviderGoogle),
			Scopes:       []string{"openid", "email", "profile"},
		}
	}
	if opts.Facebook.ClientID != "" {
		configs[auth.ProviderFacebook] = &oauth2.Config{
			ClientID:     opts.Facebook.ClientID,
			ClientSecret: opts.Facebook.ClientSecret,
			Endpoint:     facebook.Endpoint,
			RedirectURL:  redirect(auth.ProviderFacebook),
			Scopes:       []string{"email", "public_profile"},
		}
	}
	if opts.Apple.ClientID != "" {
		configs[auth.ProviderApple] = &oauth2.Config{
			ClientID:     opts.Apple.ClientID,
			ClientSecret: opts.Apple.ClientSecret,
			Endpoint:     appleEndpoint,
			RedirectURL:  redirect(auth.ProviderApple),
			Scopes:       []string{"name", "email"},
		}
	}
	return &Client{configs: configs, now: time.Now}
}

// Enabled reports whether the provider has client credentials configured.
func (c *Client) Enabled(p auth.Provider) bool {
	_, ok := c.configs[p]
	return ok
}

// SupportsPKCE reports whether the provider accepts a code challenge.
func SupportsPKCE(p auth.Provider) bool {
	return p == auth.ProviderGoogle
}

// AuthorizationURL builds the consent screen redirect.
func (c *Client) AuthorizationURL(p auth.Provider, state, codeVerifier string) (string, error) {
	conf, ok := c.configs[p]
	if !ok {
		return "", fmt.Errorf("%w: %s", auth.ErrProviderNotConfigured, p)
	}
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
	if codeVerifier != "" && SupportsPKCE(p) {
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", Challenge(codeVerifier)),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)
	}
	return conf.AuthCodeURL(state, opts...), nil
}

// Exchange trades the authorization code for tokens and fetches the profile.
func (c *Client) Exchange(ctx context.Context, p auth.Provider, code, codeVerifier string) (auth.Profile, auth.ProviderTokens, error) {
	conf, ok := c.configs[p]
	if !ok {
		return auth.Profile{}, auth.ProviderTokens{}, fmt.Errorf("%w: %s", auth.ErrProviderNotConfigured, p)
	}
	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" && SupportsPKCE(p) {
		opts = append(opts, oauth2.SetAuthURLParam("code_verifier", codeVerifier))
	}
	token, err := conf.Exchange(ctx, code, opts...)
	if err != nil {
		return auth.Profile{}, auth.ProviderTokens{}, fmt.Errorf("exchange code with %s: %w", p, err)
	}

	var profile auth.Profile
	switch p {
	case auth.ProviderGoogle:
		profile, err = c.googleProfile(ctx, conf, token)
	case auth.ProviderFacebook:
		profile, err = c.facebookProfile(ctx, conf, token)
	case auth.ProviderApple:
		profile, err = appleProfile(token)
	default:
		err = fmt.Errorf("%w: %s", auth.ErrProviderNotConfigured, p)
	}
	if err != nil {
		return auth.Profile{}, auth.ProviderTokens{}, err
	}
	return profile, providerTokens(token), nil
}

// RefreshProviderToken obtains fresh tokens. Only google issues refreshable
// tokens; facebook and apple fail with ErrRefreshNotSupported.
func (c *Client) RefreshProviderToken(ctx context.Context, p auth.Provider, refreshToken string) (auth.ProviderTokens, error) {
	conf, ok := c.configs[p]
	if !ok {
		return auth.ProviderTokens{}, fmt.Errorf("%w: %s", auth.ErrProviderNotConfigured, p)
	}
	if p != auth.ProviderGoogle {
		return auth.ProviderTokens{}, fmt.Errorf("%w: %s", auth.ErrRefreshNotSupported, p)
	}
	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return auth.ProviderTokens{}, fmt.Errorf("refresh %s token: %w", p, err)
	}
	return providerTokens(token), nil
}

// Revoke invalidates the token at the provider. Callers treat failures as
// best effort.
func (c *Client) Revoke(ctx context.Context, p auth.Provider, token string) error {
	switch p {
	case auth.ProviderGoogle:
		body := url.Values{"token": {token}}.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleRevokeURL, strings.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("revoke google token: status %d", resp.StatusCode)
		}
		return nil
	case auth.ProviderFacebook:
		u := facebookMeURL + "/permissions?access_token=" + url.QueryEscape(token)
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("revoke facebook token: status %d", resp.StatusCode)
		}
		return nil
	default:
		// Apple exposes no usable revocation for this flow.
		return nil
	}
}

func providerTokens(token *oauth2.Token) auth.ProviderTokens {
	out := auth.ProviderTokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		out.ExpiresAt = &expiry
	}
	return out
}

func (c *Client) googleProfile(ctx context.Context, conf *oauth2.Config, token *oauth2.Token) (auth.Profile, error) {
	var info struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := fetchJSON(ctx, conf, token, googleUserInfoURL, &info); err != nil {
		return auth.Profile{}, err
	}
	if info.Sub == "" {
		return auth.Profile{}, errors.New("oauth: google userinfo missing subject")
	}
	return auth.Profile{
		Provider:       auth.ProviderGoogle,
		ProviderUserID: info.Sub,
		Email:          info.Email,
		Name:           info.Name,
		AvatarURL:      info.Picture,
	}, nil
}

func (c *Client) facebookProfile(ctx context.Context, conf *oauth2.Config, token *oauth2.Token) (auth.Profile, error) {
	var info struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}
	u := facebookMeURL + "?fields=" + url.QueryEscape("id,name,email,picture")
	if err := fetchJSON(ctx, conf, token, u, &info); err != nil {
		return auth.Profile{}, err
	}
	if info.ID == "" {
		return auth.Profile{}, errors.New("oauth: facebook profile missing id")
	}
	return auth.Profile{
		Provider:       auth.ProviderFacebook,
		ProviderUserID: info.ID,
		Email:          info.Email,
		Name:           info.Name,
		AvatarURL:      info.Picture.Data.URL,
	}, nil
}

// appleProfile derives the identity from the id_token. Apple returns the
// profile only there; the signature was just obtained over TLS from Apple's
// token endpoint, so the claims are read without local verification.
func appleProfile(token *oauth2.Token) (auth.Profile, error) {
	raw, _ := token.Extra("id_token").(string)
	if raw == "" {
		return auth.Profile{}, ErrNoIDToken
	}
	var claims struct {
		Email string `json:"email"`
		jwt.RegisteredClaims
	}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return auth.Profile{}, fmt.Errorf("parse apple id token: %w", err)
	}
	if claims.Subject == "" {
		return auth.Profile{}, errors.New("oauth: apple id token missing subject")
	}
	return auth.Profile{
		Provider:       auth.ProviderApple,
		ProviderUserID: claims.Subject,
		Email:          claims.Email,
	}, nil
}

func fetchJSON(ctx context.Context, conf *oauth2.Config, token *oauth2.Token, url string, dst any) error {
	resp, err := conf.Client(ctx, token).Get(url)
	if err != nil {
		return fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("fetch profile: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
