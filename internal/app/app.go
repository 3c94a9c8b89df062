// Package app is the composition root: it loads configuration and wires
// storage, clients and services together for the server and CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/gatekeep/internal/clients/dingtalk"
	"github.com/bobmcallan/gatekeep/internal/clients/github"
	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/mail"
	"github.com/bobmcallan/gatekeep/internal/metrics"
	"github.com/bobmcallan/gatekeep/internal/services/admin"
	"github.com/bobmcallan/gatekeep/internal/services/oauth2"
	"github.com/bobmcallan/gatekeep/internal/services/session"
	"github.com/bobmcallan/gatekeep/internal/storage"
	"github.com/bobmcallan/gatekeep/internal/tokens"
)

// App holds the initialized storage, clients and services.
type App struct {
	Config         *common.Config
	Logger         *common.Logger
	Storage        interfaces.StorageManager
	Denylist       interfaces.Denylist
	Mailer         interfaces.Mailer
	Metrics        *metrics.Metrics
	SessionService interfaces.SessionService
	OAuthService   interfaces.OAuthService
	AdminService   *admin.Service
	StartupTime    time.Time
}

type options struct {
	storage   interfaces.StorageManager
	mailer    interfaces.Mailer
	providers []interfaces.IdentityProvider
}

// Option overrides a dependency that would otherwise be built from config.
type Option func(*options)

// WithStorage uses an existing storage manager.
func WithStorage(s interfaces.StorageManager) Option {
	return func(o *options) { o.storage = s }
}

// WithMailer replaces the configured mailer.
func WithMailer(m interfaces.Mailer) Option {
	return func(o *options) { o.mailer = m }
}

// WithIdentityProviders replaces the configured federated providers.
func WithIdentityProviders(providers ...interfaces.IdentityProvider) Option {
	return func(o *options) { o.providers = providers }
}

func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// ResolveConfigPath picks the config file: the given path, GATEKEEP_CONFIG,
// gatekeep.toml next to the binary, then config/gatekeep.toml.
func ResolveConfigPath(configPath string) string {
	if configPath == "" {
		configPath = os.Getenv("GATEKEEP_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "gatekeep.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/gatekeep.toml"
		}
	}
	return configPath
}

// NewApp loads configuration from configPath and initializes the app.
func NewApp(ctx context.Context, configPath string, opts ...Option) (*App, error) {
	config, err := common.LoadConfig(ResolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := common.NewLoggerFromConfig(config.Logging)
	return New(ctx, config, logger, opts...)
}

// New wires every dependency from an already loaded config.
func New(ctx context.Context, config *common.Config, logger *common.Logger, opts ...Option) (*App, error) {
	startupStart := time.Now()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	storageManager := o.storage
	if storageManager == nil {
		var err error
		storageManager, err = storage.NewStorageManager(logger, config)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
	}

	denylist, err := storage.NewDenylist(ctx, logger, config)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize denylist: %w", err)
	}

	codec, err := tokens.NewCodec(
		config.Auth.JWTSecret,
		config.Auth.JWTRefreshSecret,
		config.Auth.GetAccessExpiry(),
		config.Auth.GetRefreshExpiry(),
	)
	if err != nil {
		storageManager.Close()
		denylist.Close()
		return nil, fmt.Errorf("failed to create token codec: %w", err)
	}

	mailer := o.mailer
	if mailer == nil {
		mailer = mail.New(config.Mail, config.Server.FrontendURL, logger)
	}

	providers := o.providers
	if providers == nil {
		providers = identityProviders(config, logger)
	}

	m := metrics.New()

	sessionService := session.NewService(
		storageManager, codec, denylist, mailer,
		tokens.NewStateSigner(config.Auth.StateSecret),
		logger,
		session.WithProviders(providers...),
		session.WithMetrics(m),
		session.WithBcryptCost(config.Auth.BcryptCost),
	)
	oauthService := oauth2.NewService(storageManager, m, logger)
	adminService := admin.NewService(storageManager, config.Auth.BcryptCost, logger)

	a := &App{
		Config:         config,
		Logger:         logger,
		Storage:        storageManager,
		Denylist:       denylist,
		Mailer:         mailer,
		Metrics:        m,
		SessionService: sessionService,
		OAuthService:   oauthService,
		AdminService:   adminService,
		StartupTime:    startupStart,
	}

	if err := a.ensureBuiltins(ctx); err != nil {
		a.Close()
		return nil, err
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")
	return a, nil
}

// identityProviders builds the federated clients that have credentials.
func identityProviders(config *common.Config, logger *common.Logger) []interfaces.IdentityProvider {
	var providers []interfaces.IdentityProvider
	if config.Federation.GitHub.Enabled() {
		providers = append(providers, github.NewFromConfig(config.Federation.GitHub, logger))
	} else {
		logger.Info().Msg("GitHub login not configured")
	}
	if config.Federation.DingTalk.Enabled() {
		providers = append(providers, dingtalk.NewFromConfig(config.Federation.DingTalk, logger))
	} else {
		logger.Info().Msg("DingTalk login not configured")
	}
	return providers
}

// Close releases storage and the denylist.
func (a *App) Close() error {
	var errs []error
	if a.Denylist != nil {
		errs = append(errs, a.Denylist.Close())
	}
	if a.Storage != nil {
		errs = append(errs, a.Storage.Close())
	}
	return errors.Join(errs...)
}
