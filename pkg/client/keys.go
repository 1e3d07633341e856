package client

import (
	"context"
	"fmt"

	"github.com/sirosfoundation/go-ebics/pkg/keyring"
	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/orderdata"
	"github.com/sirosfoundation/go-ebics/pkg/returncode"
	"github.com/sirosfoundation/go-ebics/pkg/security"
)

// keyManagement sends a key management request and classifies the answer
func (c *Client) keyManagement(ctx context.Context, request []byte) (*message.Response, error) {
	raw, err := c.transport.Send(ctx, request)
	if err != nil {
		return nil, err
	}
	resp, err := c.parser.Parse(raw)
	if err != nil {
		return nil, err
	}
	if resp.Root != message.RootKeyManagementResponse {
		return nil, returncode.New(returncode.KindProtocol, "unexpected response %s", resp.Root)
	}
	if err := resp.Err(); err != nil {
		return resp, err
	}
	return resp, nil
}

// HEV asks the bank which protocol versions it supports
func (c *Client) HEV(ctx context.Context) (*message.HEVResponse, error) {
	request, err := c.builder().HEV()
	if err != nil {
		return nil, err
	}
	raw, err := c.transport.Send(ctx, request)
	if err != nil {
		return nil, err
	}
	resp, err := message.ParseHEV(raw)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return resp, err
	}
	c.logger.Debug("HEV", "versions", len(resp.Versions))
	return resp, nil
}

// INI submits the signature key. The key is generated when the ring has
// none. A second INI fails with returncode.ErrUserAlreadyActive.
func (c *Client) INI(ctx context.Context) error {
	if err := c.ring.GuardINI(); err != nil {
		return err
	}
	if err := c.ring.GenerateSignatureKey(); err != nil {
		return err
	}
	request, err := c.builder().INI()
	if err != nil {
		return err
	}
	if _, err := c.keyManagement(ctx, request); err != nil {
		return err
	}
	c.ring.MarkSignatureKeySent()
	c.logger.Info("signature key submitted", "order_type", "INI")
	return nil
}

// HIA submits the authentication and encryption keys, generating them
// when the ring has none
func (c *Client) HIA(ctx context.Context) error {
	if err := c.ring.GuardHIA(); err != nil {
		return err
	}
	if err := c.ring.GenerateAuthEncKeys(); err != nil {
		return err
	}
	request, err := c.builder().HIA()
	if err != nil {
		return err
	}
	if _, err := c.keyManagement(ctx, request); err != nil {
		return err
	}
	c.ring.MarkAuthEncKeysSent()
	c.logger.Info("authentication and encryption keys submitted", "order_type", "HIA")
	return nil
}

// HPB retrieves the bank keys and stores them in the ring. The keys are
// not trusted until VerifyBankKeys succeeds.
func (c *Client) HPB(ctx context.Context) (*orderdata.BankKeys, error) {
	if err := c.ring.GuardHPB(); err != nil {
		return nil, err
	}
	request, err := c.builder().HPB()
	if err != nil {
		return nil, err
	}
	resp, err := c.keyManagement(ctx, request)
	if err != nil {
		return nil, err
	}
	if resp.OrderData == nil || resp.TransactionKey == nil {
		return nil, returncode.New(returncode.KindProtocol, "HPB response carries no order data")
	}
	data, err := c.parser.DecryptOrderData(resp.TransactionKey, [][]byte{resp.OrderData})
	if err != nil {
		return nil, err
	}
	keys, err := orderdata.ParseHPB(c.ring.Version(), data)
	if err != nil {
		return nil, returncode.Wrap(returncode.KindProtocol, err, "HPB order data")
	}
	if keys.HostID != "" && keys.HostID != c.subscriber.HostID {
		return nil, returncode.New(returncode.KindProtocol,
			"HPB keys belong to host %s, expected %s", keys.HostID, c.subscriber.HostID)
	}
	if err := c.validateBankCertificates(keys); err != nil {
		return nil, err
	}
	if err := c.ring.SetBankKeys(keys.Authentication, keys.Encryption); err != nil {
		return nil, err
	}
	c.logger.Info("bank keys received", "order_type", "HPB")
	return keys, nil
}

func (c *Client) validateBankCertificates(keys *orderdata.BankKeys) error {
	if c.certificates == nil || !c.ring.Version().Profile().UsesCertificates {
		return nil
	}
	checks := []struct {
		sig   keyring.Signature
		usage security.KeyUsage
	}{
		{keys.Authentication, security.UsageAuthentication},
		{keys.Encryption, security.UsageEncryption},
	}
	for _, check := range checks {
		cert, err := check.sig.X509()
		if err != nil {
			return returncode.Wrap(returncode.KindProtocol, err, "HPB bank certificate")
		}
		if err := c.certificates.ValidateCertificate(cert, nil, check.usage); err != nil {
			return returncode.Wrap(returncode.KindAuthentication, err,
				fmt.Sprintf("bank %s certificate rejected", check.usage))
		}
	}
	return nil
}

// VerifyBankKeys compares the bank keys with the digests of the bank's
// initialization letter
func (c *Client) VerifyBankKeys(authenticationHash, encryptionHash []byte) error {
	if err := c.ring.VerifyBankKeys(authenticationHash, encryptionHash); err != nil {
		return err
	}
	c.logger.Info("bank keys verified")
	return nil
}

// BankKeyHashes returns the digests of the stored bank keys, for display
// next to the initialization letter
func (c *Client) BankKeyHashes() (authentication, encryption []byte, err error) {
	return c.ring.BankKeyDigests()
}

// InitializationLetter returns the digests of the user keys to be printed
// on the INI and HIA letters
func (c *Client) InitializationLetter() (map[keyring.KeyKind][]byte, error) {
	hashes, err := c.ring.UserKeyHashes()
	if err != nil {
		return nil, fmt.Errorf("initialization letter: %w", err)
	}
	return hashes, nil
}
