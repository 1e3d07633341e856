package orderdata

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-ebics/pkg/codec"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/subscriber"
	"github.com/sirosfoundation/go-ebics/pkg/version"
)

// UserSignature is one electronic signature over order data
type UserSignature struct {
	Version   security.SignatureVersion
	Value     []byte
	PartnerID string
	UserID    string
}

// BuildUserSignature renders UserSignatureData for the signature data
// element of an upload
func BuildUserSignature(v version.Version, sub subscriber.Subscriber, value []byte) ([]byte, error) {
	profile := v.Profile()
	doc, root := newDocument("UserSignatureData", profile.SignatureNamespace)

	osd := root.CreateElement("OrderSignatureData")
	osd.CreateElement("SignatureVersion").SetText(profile.SignatureVersion)
	osd.CreateElement("SignatureValue").SetText(codec.EncodeBase64(value))
	osd.CreateElement("PartnerID").SetText(sub.PartnerID)
	osd.CreateElement("UserID").SetText(sub.UserID)

	return serialize(doc)
}

// ParseUserSignature reads the first signature of UserSignatureData
func ParseUserSignature(data []byte) (*UserSignature, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parsing user signature data: %w", err)
	}
	osd := doc.FindElement("//OrderSignatureData")
	if osd == nil {
		return nil, fmt.Errorf("parsing user signature data: missing OrderSignatureData")
	}

	text := func(path string) string {
		if el := osd.FindElement(path); el != nil {
			return strings.TrimSpace(el.Text())
		}
		return ""
	}

	value, err := codec.DecodeBase64(text("./SignatureValue"))
	if err != nil {
		return nil, err
	}
	return &UserSignature{
		Version:   security.SignatureVersion(text("./SignatureVersion")),
		Value:     value,
		PartnerID: text("./PartnerID"),
		UserID:    text("./UserID"),
	}, nil
}
