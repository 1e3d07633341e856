package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sirosfoundation/go-ebics/pkg/keyring"
	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/subscriber"
	"github.com/sirosfoundation/go-ebics/pkg/transaction"
	"github.com/sirosfoundation/go-ebics/pkg/transport"
	"github.com/sirosfoundation/go-ebics/pkg/version"
)

// Client is the EBICS client of one subscriber at one bank
type Client struct {
	subscriber      subscriber.Subscriber
	ring            *keyring.KeyRing
	transport       transport.Transport
	logger          *slog.Logger
	maxSegmentSize  int
	requireVerified bool
	builderOpts     []message.Option
	parser          *message.Parser
	certificates    security.CertificateValidator
}

// ClientConfig holds client configuration
type ClientConfig struct {
	Subscriber subscriber.Subscriber
	KeyRing    *keyring.KeyRing
	Transport  transport.Transport

	// MaxSegmentSize bounds upload segments; zero selects 1 MiB
	MaxSegmentSize int
	// RequireVerifiedBankKeys refuses order transactions until
	// VerifyBankKeys succeeded
	RequireVerifiedBankKeys bool
	// Clock overrides the time source of request timestamps
	Clock func() time.Time
	// BankCertificates validates the bank certificates of EBICS 3.0 HPB
	// responses before they are stored. Nil skips the check.
	BankCertificates security.CertificateValidator

	Logger *slog.Logger
}

// NewClient creates a new EBICS client
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if config.KeyRing == nil {
		return nil, fmt.Errorf("key ring is required")
	}
	if config.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if err := config.Subscriber.Validate(); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// One sequence per client keeps H003 order IDs unique in the session
	builderOpts := []message.Option{message.WithOrderIDGenerator(security.NewOrderIDGenerator())}
	if config.Clock != nil {
		builderOpts = append(builderOpts, message.WithClock(config.Clock))
	}

	return &Client{
		subscriber:      config.Subscriber,
		ring:            config.KeyRing,
		transport:       config.Transport,
		logger:          logger.With("host_id", config.Subscriber.HostID, "user_id", config.Subscriber.UserID),
		maxSegmentSize:  config.MaxSegmentSize,
		requireVerified: config.RequireVerifiedBankKeys,
		builderOpts:     builderOpts,
		parser:          message.NewParser(config.KeyRing),
		certificates:    config.BankCertificates,
	}, nil
}

// KeyRing returns the key ring of the client, e.g. for persisting it after
// a handshake step
func (c *Client) KeyRing() *keyring.KeyRing {
	return c.ring
}

// Version returns the protocol version the client speaks
func (c *Client) Version() version.Version {
	return c.ring.Version()
}

func (c *Client) builder() *message.Builder {
	return message.NewBuilder(c.ring, c.subscriber, c.builderOpts...)
}

func (c *Client) engine() *transaction.Engine {
	return transaction.NewEngine(c.ring, c.subscriber, c.transport,
		transaction.WithLogger(c.logger),
		transaction.WithMaxSegmentSize(c.maxSegmentSize),
		transaction.WithVerifiedBankKeys(c.requireVerified),
		transaction.WithBuilderOptions(c.builderOpts...),
	)
}

// Download runs a download transaction for any supported order type
func (c *Client) Download(ctx context.Context, o order.Order, opts transaction.DownloadOptions) (*transaction.DownloadResult, error) {
	return c.engine().Download(ctx, o, opts)
}

// Upload runs an upload transaction for any supported order type
func (c *Client) Upload(ctx context.Context, o order.Order, data []byte) (*transaction.UploadResult, error) {
	return c.engine().Upload(ctx, o, data)
}

// CheckKeyring reports whether the key ring password opens the stored keys
func (c *Client) CheckKeyring() bool {
	return c.ring.Check()
}

// ChangeKeyringPassword re-seals the user keys under a new password
func (c *Client) ChangeKeyringPassword(newPassword string) error {
	return c.ring.ChangePassword(newPassword)
}
