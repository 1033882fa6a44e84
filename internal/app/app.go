package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sineways/anymoment-cli/internal/api"
	"github.com/sineways/anymoment-cli/internal/authsession"
	"github.com/sineways/anymoment-cli/internal/credcipher"
	"github.com/sineways/anymoment-cli/internal/tokenstore"
)

// App wires the credential subsystem and the API client from
// configuration. It owns no global state; two Apps with different
// configs coexist.
type App struct {
	cfg     *Config
	store   *tokenstore.Store
	session *authsession.Session
	client  *api.Client
}

// New creates an App. The store's key material (installation secret and
// salt) is created on first use, so first-run works without any setup
// step.
func New(ctx context.Context, cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	source, err := cfg.newSecretSource()
	if err != nil {
		return nil, fmt.Errorf("failed to create key source: %w", err)
	}
	key, err := credcipher.LoadKey(ctx, source, cfg.Storage.SaltFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load encryption key: %w", err)
	}
	cipher, err := credcipher.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	store, err := tokenstore.New(cfg.Storage.TokensFile, cipher, cfg.Storage.LockTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.API.Timeout}

	refresher, err := api.NewTokenRefresher(cfg.API.BaseURL,
		api.WithDoer(httpClient),
		api.WithMaxAttempts(cfg.API.MaxAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token refresher: %w", err)
	}

	session, err := authsession.New(store, refresher,
		authsession.WithRefreshMargin(cfg.Auth.RefreshMargin),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth session: %w", err)
	}

	client, err := api.New(cfg.API.BaseURL, session,
		api.WithDoer(httpClient),
		api.WithMaxAttempts(cfg.API.MaxAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	return &App{
		cfg:     cfg,
		store:   store,
		session: session,
		client:  client,
	}, nil
}

// Config returns the effective configuration.
func (a *App) Config() *Config {
	return a.cfg
}

// Client returns the API client bound to the configured host.
func (a *App) Client() *api.Client {
	return a.client
}

// Store returns the token store, for the CLI surface that operates on
// stored credentials directly (list hosts, clear).
func (a *App) Store() *tokenstore.Store {
	return a.store
}

// newSecretSource creates the installation-secret backend selected by
// the authentication configuration.
func (c *Config) newSecretSource() (credcipher.SecretSource, error) {
	switch c.Auth.KeySource {
	case KeySourceTypeFile:
		return credcipher.NewFileSecretSource(c.Storage.SecretFile)
	case KeySourceTypeKeyring:
		return credcipher.NewKeyringSecretSource(keyringService, c.Auth.KeyringUser)
	default:
		return nil, fmt.Errorf("unsupported key source: %s", c.Auth.KeySource)
	}
}
