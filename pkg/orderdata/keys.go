package orderdata

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-ebics/pkg/keyring"
	"github.com/sirosfoundation/go-ebics/pkg/version"
)

// SubscriberKeys is the content of INI and HIA order data as received by
// a bank
type SubscriberKeys struct {
	PartnerID      string
	UserID         string
	Signature      keyring.Signature
	Authentication keyring.Signature
	Encryption     keyring.Signature
}

func readOrderData(data []byte, what string) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parsing %s order data: %w", what, err)
	}
	return doc, nil
}

func readSubscriber(doc *etree.Document, keys *SubscriberKeys) {
	if el := doc.FindElement("//PartnerID"); el != nil {
		keys.PartnerID = strings.TrimSpace(el.Text())
	}
	if el := doc.FindElement("//UserID"); el != nil {
		keys.UserID = strings.TrimSpace(el.Text())
	}
}

// ParseINI extracts the signature key from SignaturePubKeyOrderData
func ParseINI(v version.Version, data []byte) (*SubscriberKeys, error) {
	doc, err := readOrderData(data, "INI")
	if err != nil {
		return nil, err
	}
	info := doc.FindElement("//SignaturePubKeyInfo")
	if info == nil {
		return nil, fmt.Errorf("parsing INI order data: missing SignaturePubKeyInfo")
	}
	keys := &SubscriberKeys{}
	readSubscriber(doc, keys)
	if keys.Signature, err = parsePubKeyInfo(v, info); err != nil {
		return nil, fmt.Errorf("signature key: %w", err)
	}
	return keys, nil
}

// ParseHIA extracts the authentication and encryption keys from
// HIARequestOrderData
func ParseHIA(v version.Version, data []byte) (*SubscriberKeys, error) {
	doc, err := readOrderData(data, "HIA")
	if err != nil {
		return nil, err
	}
	auth := doc.FindElement("//AuthenticationPubKeyInfo")
	enc := doc.FindElement("//EncryptionPubKeyInfo")
	if auth == nil || enc == nil {
		return nil, fmt.Errorf("parsing HIA order data: missing key info")
	}
	keys := &SubscriberKeys{}
	readSubscriber(doc, keys)
	if keys.Authentication, err = parsePubKeyInfo(v, auth); err != nil {
		return nil, fmt.Errorf("authentication key: %w", err)
	}
	if keys.Encryption, err = parsePubKeyInfo(v, enc); err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	return keys, nil
}
