package main

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/sirosfoundation/go-ebics/internal/config"
	"github.com/sirosfoundation/go-ebics/internal/storage"
	"github.com/sirosfoundation/go-ebics/internal/storage/file"
	"github.com/sirosfoundation/go-ebics/internal/storage/mongodb"
	"github.com/sirosfoundation/go-ebics/pkg/client"
	"github.com/sirosfoundation/go-ebics/pkg/keyring"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/transport"
)

// session bundles everything one command invocation needs
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	store  storage.KeyRingStore
	id     storage.KeyRingID
	client *client.Client
}

// openSession loads the configuration and the keyring. A missing keyring is
// created only when create is set, which is the case for the INI step.
func openSession(ctx context.Context, create bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	password, err := cfg.Password()
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:    cfg,
		logger: logger,
		store:  store,
		id:     storage.IDFor(cfg.Identity()),
	}

	var opts []keyring.Option
	if cfg.KeyRing.KDFCost > 0 {
		opts = append(opts, keyring.WithKDFCost(cfg.KeyRing.KDFCost))
	}
	ring, err := storage.LoadKeyRing(ctx, store, s.id, password, opts...)
	switch {
	case errors.Is(err, storage.ErrNotFound) && create:
		logger.Info("creating keyring", "keyring", s.id.String(), "version", cfg.Version().String())
		ring, err = keyring.New(cfg.Version(), password, opts...)
		if err != nil {
			s.close(ctx)
			return nil, err
		}
	case errors.Is(err, storage.ErrNotFound):
		s.close(ctx)
		return nil, fmt.Errorf("no keyring for %s, run 'ebics ini' first", s.id)
	case err != nil:
		s.close(ctx)
		return nil, err
	}
	if ring.Version() != cfg.Version() {
		s.close(ctx)
		return nil, fmt.Errorf("keyring %s was created for EBICS %s, configuration says %s",
			s.id, ring.Version(), cfg.Version())
	}

	t, err := newTransport(cfg, logger)
	if err != nil {
		s.close(ctx)
		return nil, err
	}

	roots, err := loadPool(cfg.Bank.CertificateRoots)
	if err != nil {
		s.close(ctx)
		return nil, err
	}

	s.client, err = client.NewClient(&client.ClientConfig{
		Subscriber:              cfg.Identity(),
		KeyRing:                 ring,
		Transport:               t,
		MaxSegmentSize:          cfg.Transaction.MaxSegmentSize,
		RequireVerifiedBankKeys: cfg.Transaction.RequireVerifiedBankKeys,
		BankCertificates:        security.NewDefaultCertificateValidator(roots),
		Logger:                  logger,
	})
	if err != nil {
		s.close(ctx)
		return nil, err
	}
	return s, nil
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// save persists the keyring after a step that changed it
func (s *session) save(ctx context.Context) error {
	return storage.SaveKeyRing(ctx, s.store, s.id, s.client.KeyRing())
}

func (s *session) close(ctx context.Context) {
	if err := s.store.Close(ctx); err != nil {
		s.logger.Warn("closing keyring store", "error", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (storage.KeyRingStore, error) {
	switch cfg.KeyRing.Store {
	case "mongodb":
		return mongodb.NewStore(ctx, &mongodb.Config{
			URI:        cfg.KeyRing.MongoDB.URI,
			Database:   cfg.KeyRing.MongoDB.Database,
			Collection: cfg.KeyRing.MongoDB.Collection,
		})
	default:
		return file.NewStore(cfg.KeyRing.File.Dir)
	}
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

func newTransport(cfg *config.Config, logger *slog.Logger) (*transport.HTTPSClient, error) {
	httpsConfig := transport.DefaultHTTPSConfig()
	minTLS, err := cfg.TLSMinVersion()
	if err != nil {
		return nil, err
	}
	httpsConfig.MinTLSVersion = minTLS
	httpsConfig.Timeout = cfg.Transport.Timeout
	httpsConfig.IdleConnTimeout = cfg.Transport.IdleConnTimeout
	httpsConfig.Logger = logger

	pool, err := loadPool(cfg.Transport.CAFile)
	if err != nil {
		return nil, err
	}
	httpsConfig.RootCAs = pool

	return transport.NewHTTPSClient(cfg.Bank.URL, httpsConfig), nil
}

// loadPool reads a PEM bundle; an empty path yields a nil pool
func loadPool(path string) (*x509.CertPool, error) {
	if path == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}
