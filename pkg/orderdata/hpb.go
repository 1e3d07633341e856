package orderdata

import (
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-ebics/pkg/codec"
	"github.com/sirosfoundation/go-ebics/pkg/keyring"
	"github.com/sirosfoundation/go-ebics/pkg/version"
)

// BankKeys is the content of an HPB response
type BankKeys struct {
	HostID         string
	Authentication keyring.Signature
	Encryption     keyring.Signature
}

// ParseHPB extracts the bank keys from HPBResponseOrderData. EBICS 2.x
// prefers the certificate and falls back to the raw key; EBICS 3.0
// requires certificates.
func ParseHPB(v version.Version, data []byte) (*BankKeys, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parsing HPB order data: %w", err)
	}

	auth := doc.FindElement("//AuthenticationPubKeyInfo")
	enc := doc.FindElement("//EncryptionPubKeyInfo")
	if auth == nil || enc == nil {
		return nil, fmt.Errorf("parsing HPB order data: missing key info")
	}

	keys := &BankKeys{}
	if host := doc.FindElement("//HostID"); host != nil {
		keys.HostID = strings.TrimSpace(host.Text())
	}

	var err error
	if keys.Authentication, err = parsePubKeyInfo(v, auth); err != nil {
		return nil, fmt.Errorf("bank authentication key: %w", err)
	}
	if keys.Encryption, err = parsePubKeyInfo(v, enc); err != nil {
		return nil, fmt.Errorf("bank encryption key: %w", err)
	}
	return keys, nil
}

func parsePubKeyInfo(v version.Version, info *etree.Element) (keyring.Signature, error) {
	if certEl := info.FindElement("./X509Data/X509Certificate"); certEl != nil && strings.TrimSpace(certEl.Text()) != "" {
		der, err := codec.DecodeBase64(certEl.Text())
		if err != nil {
			return keyring.Signature{}, err
		}
		return keyring.SignatureFromCertificate(der)
	}
	if v.Profile().UsesCertificates {
		return keyring.Signature{}, ErrCertificateRequired
	}

	modEl := info.FindElement("./PubKeyValue/RSAKeyValue/Modulus")
	expEl := info.FindElement("./PubKeyValue/RSAKeyValue/Exponent")
	if modEl == nil || expEl == nil {
		return keyring.Signature{}, fmt.Errorf("missing RSA key value")
	}
	mod, err := codec.DecodeBase64(modEl.Text())
	if err != nil {
		return keyring.Signature{}, err
	}
	exp, err := codec.DecodeBase64(expEl.Text())
	if err != nil {
		return keyring.Signature{}, err
	}
	sig := keyring.Signature{Modulus: mod, Exponent: exp}
	if _, err := sig.PublicKey(); err != nil {
		return keyring.Signature{}, err
	}
	return sig, nil
}

// BuildHPB renders HPBResponseOrderData, the bank side of an HPB exchange
func BuildHPB(v version.Version, hostID string, authentication, encryption keyring.Signature, now time.Time) ([]byte, error) {
	profile := v.Profile()
	doc, root := newDocument("HPBResponseOrderData", profile.Namespace)

	auth := root.CreateElement("AuthenticationPubKeyInfo")
	if err := appendPubKeyInfo(auth, v, authentication, now); err != nil {
		return nil, err
	}
	auth.CreateElement("AuthenticationVersion").SetText(profile.AuthenticationVersion)

	enc := root.CreateElement("EncryptionPubKeyInfo")
	if err := appendPubKeyInfo(enc, v, encryption, now); err != nil {
		return nil, err
	}
	enc.CreateElement("EncryptionVersion").SetText(profile.EncryptionVersion)

	root.CreateElement("HostID").SetText(hostID)
	return serialize(doc)
}
