// Package orderdata builds and parses the XML order data documents of the
// key management orders and the electronic signature.
//
// The layout depends on the protocol version: EBICS 2.x publishes keys as
// raw RSA modulus and exponent (optionally with a certificate), EBICS 3.0
// publishes certificates only.
package orderdata

import (
	"errors"
	"fmt"
	"time"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-ebics/pkg/codec"
	"github.com/sirosfoundation/go-ebics/pkg/keyring"
	"github.com/sirosfoundation/go-ebics/pkg/subscriber"
	"github.com/sirosfoundation/go-ebics/pkg/version"
)

// ErrCertificateRequired is returned when an EBICS 3.0 bank publishes its
// keys without certificates
var ErrCertificateRequired = errors.New("version 3.0 is not supported for not certified banks")

// timestampLayout is the xs:dateTime form used in PubKeyValue
const timestampLayout = "2006-01-02T15:04:05Z"

func newDocument(root, namespace string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	el := doc.CreateElement(root)
	el.CreateAttr("xmlns", namespace)
	el.CreateAttr("xmlns:ds", version.NamespaceDSig)
	return doc, el
}

func serialize(doc *etree.Document) ([]byte, error) {
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serializing order data: %w", err)
	}
	return out, nil
}

// appendPubKeyInfo writes the certificate and, for EBICS 2.x, the raw key
// of sig into info
func appendPubKeyInfo(info *etree.Element, v version.Version, sig keyring.Signature, now time.Time) error {
	profile := v.Profile()

	if len(sig.Certificate) > 0 {
		cert, err := sig.X509()
		if err != nil {
			return err
		}
		data := info.CreateElement("ds:X509Data")
		serial := data.CreateElement("ds:X509IssuerSerial")
		serial.CreateElement("ds:X509IssuerName").SetText(cert.Issuer.String())
		serial.CreateElement("ds:X509SerialNumber").SetText(cert.SerialNumber.String())
		data.CreateElement("ds:X509Certificate").SetText(codec.EncodeBase64(sig.Certificate))
	} else if profile.UsesCertificates {
		return fmt.Errorf("EBICS %s requires certificates", v)
	}

	if profile.UsesCertificates {
		return nil
	}
	pkv := info.CreateElement("PubKeyValue")
	rsaKey := pkv.CreateElement("ds:RSAKeyValue")
	rsaKey.CreateElement("ds:Modulus").SetText(codec.EncodeBase64(sig.Modulus))
	rsaKey.CreateElement("ds:Exponent").SetText(codec.EncodeBase64(sig.Exponent))
	pkv.CreateElement("TimeStamp").SetText(now.UTC().Format(timestampLayout))
	return nil
}

// BuildINI returns the SignaturePubKeyOrderData document carrying the
// subscriber's signature key
func BuildINI(ring *keyring.KeyRing, sub subscriber.Subscriber, now time.Time) ([]byte, error) {
	v := ring.Version()
	sig, err := ring.UserSignature(keyring.KeySignature)
	if err != nil {
		return nil, fmt.Errorf("INI order data: %w", err)
	}

	doc, root := newDocument("SignaturePubKeyOrderData", v.Profile().SignatureNamespace)
	info := root.CreateElement("SignaturePubKeyInfo")
	if err := appendPubKeyInfo(info, v, sig, now); err != nil {
		return nil, fmt.Errorf("INI order data: %w", err)
	}
	info.CreateElement("SignatureVersion").SetText(v.Profile().SignatureVersion)
	root.CreateElement("PartnerID").SetText(sub.PartnerID)
	root.CreateElement("UserID").SetText(sub.UserID)

	return serialize(doc)
}

// BuildHIA returns the HIARequestOrderData document carrying the
// authentication and encryption keys
func BuildHIA(ring *keyring.KeyRing, sub subscriber.Subscriber, now time.Time) ([]byte, error) {
	v := ring.Version()
	profile := v.Profile()

	x, err := ring.UserSignature(keyring.KeyAuthentication)
	if err != nil {
		return nil, fmt.Errorf("HIA order data: %w", err)
	}
	e, err := ring.UserSignature(keyring.KeyEncryption)
	if err != nil {
		return nil, fmt.Errorf("HIA order data: %w", err)
	}

	doc, root := newDocument("HIARequestOrderData", profile.Namespace)

	auth := root.CreateElement("AuthenticationPubKeyInfo")
	if err := appendPubKeyInfo(auth, v, x, now); err != nil {
		return nil, fmt.Errorf("HIA order data: %w", err)
	}
	auth.CreateElement("AuthenticationVersion").SetText(profile.AuthenticationVersion)

	enc := root.CreateElement("EncryptionPubKeyInfo")
	if err := appendPubKeyInfo(enc, v, e, now); err != nil {
		return nil, fmt.Errorf("HIA order data: %w", err)
	}
	enc.CreateElement("EncryptionVersion").SetText(profile.EncryptionVersion)

	root.CreateElement("PartnerID").SetText(sub.PartnerID)
	root.CreateElement("UserID").SetText(sub.UserID)

	return serialize(doc)
}
