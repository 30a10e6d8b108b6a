// Package google manages the OAuth2 handshake with Google: client secrets
// loaded from credentials.json, the authorized token persisted as
// token.json, and HTTP clients that refresh transparently.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
)

const (
	credentialsFile = "credentials.json"
	tokenFile       = "token.json"
)

// Auth loads and stores the OAuth artifacts under a single directory.
type Auth struct {
	dir string
}

// NewAuth returns an Auth rooted at dir. The directory is created lazily on
// the first token save.
func NewAuth(dir string) *Auth {
	return &Auth{dir: dir}
}

// Status describes which OAuth artifacts are present on disk. It carries no
// secrets and is safe to return from an API handler.
type Status struct {
	// HasCredentials reports whether credentials.json exists.
	HasCredentials bool `json:"has_credentials"`
	// HasToken reports whether an authorized token.json exists.
	HasToken bool `json:"has_token"`
}

// Status inspects the auth directory without touching the network.
func (a *Auth) Status() Status {
	return Status{
		HasCredentials: fileExists(filepath.Join(a.dir, credentialsFile)),
		HasToken:       fileExists(filepath.Join(a.dir, tokenFile)),
	}
}

// config parses credentials.json into an oauth2 config scoped to calendar
// read/write access.
func (a *Auth) config() (*oauth2.Config, error) {
	raw, err := os.ReadFile(filepath.Join(a.dir, credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("read client credentials: %w", err)
	}
	conf, err := google.ConfigFromJSON(raw, gcal.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("parse client credentials: %w", err)
	}
	return conf, nil
}

// AuthURL returns the browser URL the user visits to authorize access.
func (a *Auth) AuthURL() (string, error) {
	conf, err := a.config()
	if err != nil {
		return "", err
	}
	return conf.AuthCodeURL("state", oauth2.AccessTypeOffline), nil
}

// Exchange trades the authorization code for a token and persists it as
// token.json.
func (a *Auth) Exchange(ctx context.Context, code string) error {
	conf, err := a.config()
	if err != nil {
		return err
	}
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}
	return a.saveToken(tok)
}

// Client returns an HTTP client that authenticates with the stored token and
// refreshes it as needed. Fails when either artifact is missing.
func (a *Auth) Client(ctx context.Context) (*http.Client, error) {
	conf, err := a.config()
	if err != nil {
		return nil, err
	}
	tok, err := a.loadToken()
	if err != nil {
		return nil, err
	}
	return conf.Client(ctx, tok), nil
}

func (a *Auth) saveToken(tok *oauth2.Token) error {
	if err := os.MkdirAll(a.dir, 0o700); err != nil {
		return fmt.Errorf("create auth directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(a.dir, tokenFile), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create token file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

func (a *Auth) loadToken() (*oauth2.Token, error) {
	raw, err := os.ReadFile(filepath.Join(a.dir, tokenFile))
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	return &tok, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
